package rfc5444

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"
)

func TestRegistry_AddProtocolRefcounting(t *testing.T) {
	reg := NewRegistry(nil)
	p1 := reg.AddProtocol("olsrv2", time.Second, MaxPacketSize)
	p2 := reg.AddProtocol("olsrv2", time.Second, MaxPacketSize)
	if p1 != p2 {
		t.Fatal("expected the same Protocol instance on second AddProtocol")
	}

	if err := reg.RemoveProtocol("olsrv2"); err != nil {
		t.Fatalf("RemoveProtocol (1st): %v", err)
	}
	if _, ok := reg.Protocol("olsrv2"); !ok {
		t.Fatal("protocol should still exist after one of two removals")
	}
	if err := reg.RemoveProtocol("olsrv2"); err != nil {
		t.Fatalf("RemoveProtocol (2nd): %v", err)
	}
	if _, ok := reg.Protocol("olsrv2"); ok {
		t.Fatal("protocol should be gone after refcount reaches zero")
	}
}

func TestRegistry_RemoveUnknownProtocol(t *testing.T) {
	reg := NewRegistry(nil)
	if err := reg.RemoveProtocol("nhdp"); !errors.Is(err, ErrNoSuchProtocol) {
		t.Fatalf("got %v, want ErrNoSuchProtocol", err)
	}
}

func TestProtocol_InterfaceRefcounting(t *testing.T) {
	reg := NewRegistry(nil)
	p := reg.AddProtocol("nhdp", time.Second, MaxPacketSize)
	i1 := p.AddInterface("eth0")
	i2 := p.AddInterface("eth0")
	if i1 != i2 {
		t.Fatal("expected the same Interface instance on second AddInterface")
	}
	if err := p.RemoveInterface("eth0"); err != nil {
		t.Fatalf("RemoveInterface (1st): %v", err)
	}
	if _, ok := p.Interface("eth0"); !ok {
		t.Fatal("interface should still exist after one of two removals")
	}
	if err := p.RemoveInterface("eth0"); err != nil {
		t.Fatalf("RemoveInterface (2nd): %v", err)
	}
	if _, ok := p.Interface("eth0"); ok {
		t.Fatal("interface should be gone after refcount reaches zero")
	}
}

func TestInterface_TargetRefcounting(t *testing.T) {
	reg := NewRegistry(nil)
	p := reg.AddProtocol("nhdp", time.Second, MaxPacketSize)
	iface := p.AddInterface("eth0")
	dst := netip.MustParseAddr("ff02::6d")

	t1 := iface.AddTarget(dst, fakeSender{})
	t2 := iface.AddTarget(dst, fakeSender{})
	if t1 != t2 {
		t.Fatal("expected the same Target instance on second AddTarget")
	}
	if !t1.Active() {
		t.Fatal("target should be active right after creation")
	}

	if err := iface.RemoveTarget(dst); err != nil {
		t.Fatalf("RemoveTarget (1st): %v", err)
	}
	if !t1.Active() {
		t.Fatal("target should still be active after one of two removals")
	}
	if err := iface.RemoveTarget(dst); err != nil {
		t.Fatalf("RemoveTarget (2nd): %v", err)
	}
	if t1.Active() {
		t.Fatal("target should be inactive once refcount reaches zero")
	}
}

func TestTarget_SendToInactiveTargetFails(t *testing.T) {
	reg := NewRegistry(nil)
	p := reg.AddProtocol("nhdp", time.Second, MaxPacketSize)
	iface := p.AddInterface("eth0")
	dst := netip.MustParseAddr("ff02::6d")
	target := iface.AddTarget(dst, fakeSender{})
	iface.RemoveTarget(dst)

	if err := target.Send(context.Background(), []byte{0x00}); !errors.Is(err, ErrTargetNotActive) {
		t.Fatalf("got %v, want ErrTargetNotActive", err)
	}
}

// TestTarget_PacketSeqNumGating exercises the resolved design decision
// that packet sequencing is target-local, gated by either the target's
// own refcount or its owning protocol's refcount.
func TestTarget_PacketSeqNumGating(t *testing.T) {
	reg := NewRegistry(nil)
	p := reg.AddProtocol("olsrv2", time.Second, MaxPacketSize)
	iface := p.AddInterface("eth0")
	target := iface.AddTarget(netip.MustParseAddr("ff02::6d"), fakeSender{})

	if _, has := target.nextPacketSeqNum(); has {
		t.Fatal("expected no sequence number before anything requires one")
	}

	target.RequireSequenceNumbers(1)
	seq1, has := target.nextPacketSeqNum()
	if !has || seq1 != 1 {
		t.Fatalf("target-gated: got seq=%d has=%v, want 1/true", seq1, has)
	}
	seq2, has := target.nextPacketSeqNum()
	if !has || seq2 != 2 {
		t.Fatalf("got seq=%d has=%v, want 2/true", seq2, has)
	}
	target.RequireSequenceNumbers(-1)
	if _, has := target.nextPacketSeqNum(); has {
		t.Fatal("expected sequencing to stop once the target's own requirement is released")
	}

	p.RequireSequenceNumbers(1)
	seq3, has := target.nextPacketSeqNum()
	if !has || seq3 != 3 {
		t.Fatalf("protocol-gated: got seq=%d has=%v, want 3/true (counter keeps advancing from the target's own state)", seq3, has)
	}
}

func TestTarget_RemoveUnknownTarget(t *testing.T) {
	reg := NewRegistry(nil)
	p := reg.AddProtocol("nhdp", time.Second, MaxPacketSize)
	iface := p.AddInterface("eth0")
	if err := iface.RemoveTarget(netip.MustParseAddr("::1")); !errors.Is(err, ErrNoSuchTarget) {
		t.Fatalf("got %v, want ErrNoSuchTarget", err)
	}
}

func TestProtocol_ProcessPacketDecodesAndReturns(t *testing.T) {
	reg := NewRegistry(nil)
	p := reg.AddProtocol("nhdp", time.Second, MaxPacketSize)
	pkt, err := p.ProcessPacket(scenarioAFixture)
	if err != nil {
		t.Fatalf("ProcessPacket: %v", err)
	}
	if len(pkt.Messages) != 1 {
		t.Fatalf("messages: got %d, want 1", len(pkt.Messages))
	}
}

func TestProtocol_ProcessForward(t *testing.T) {
	reg := NewRegistry(nil)
	p := reg.AddProtocol("nhdp", time.Second, MaxPacketSize)

	self := netip.MustParseAddr("2001:db8::ffff")
	msg := Message{
		Header: MessageHeader{
			Type:          1,
			AddrLength:    16,
			HasOriginator: true,
			Originator:    netip.MustParseAddr("2001:db8::1"),
			HasHopLimit:   true,
			HopLimit:      4,
			HasSeqNum:     true,
			SeqNum:        10,
		},
	}

	raw, forward, err := p.ProcessForward(msg, self, time.Minute)
	if err != nil {
		t.Fatalf("ProcessForward (1st): %v", err)
	}
	if !forward || len(raw) == 0 {
		t.Fatalf("first observation should forward, got forward=%v raw=%v", forward, raw)
	}

	// Re-delivering the same sequence number must not forward again.
	_, forward, err = p.ProcessForward(msg, self, time.Minute)
	if err != nil {
		t.Fatalf("ProcessForward (repeat): %v", err)
	}
	if forward {
		t.Fatal("duplicate message should not forward a second time")
	}

	// Self-originated messages never forward, regardless of seqno.
	selfMsg := msg
	selfMsg.Header.Originator = self
	selfMsg.Header.SeqNum = 11
	if _, forward, err := p.ProcessForward(selfMsg, self, time.Minute); err != nil || forward {
		t.Fatalf("self-originated message forwarded: forward=%v err=%v", forward, err)
	}
}

func TestProtocol_ProcessForward_NoSeqNum(t *testing.T) {
	reg := NewRegistry(nil)
	p := reg.AddProtocol("nhdp", time.Second, MaxPacketSize)

	self := netip.MustParseAddr("2001:db8::ffff")
	msg := Message{
		Header: MessageHeader{
			Type:          1,
			AddrLength:    16,
			HasOriginator: true,
			Originator:    netip.MustParseAddr("2001:db8::1"),
			HasHopLimit:   true,
			HopLimit:      4,
		},
	}

	raw, forward, err := p.ProcessForward(msg, self, time.Minute)
	if err != nil {
		t.Fatalf("ProcessForward: %v", err)
	}
	if !forward || len(raw) == 0 {
		t.Fatalf("message without seqno should still forward when eligible, got forward=%v", forward)
	}
}
