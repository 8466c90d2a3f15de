package rfc5444

import (
	"context"
	"net/netip"
	"testing"
)

// scenarioAFixture is the literal interop2010 test vector: one packet,
// seqno 34, carrying a single message (type 1, 16-byte addresses, an
// originator and no other optional header fields) whose four addresses
// are split across two compressed address blocks.
var scenarioAFixture = []byte{
	0x08, 0x00, 0x22, 0x01, 0x8f, 0x00, 0x34, 0xab, 0xcd, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00,
	0x00, 0x02, 0xc0, 0x0d, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x02, 0x00, 0x02, 0x00, 0x11, 0x00, 0x00,
	0x02, 0x20, 0x0f, 0x10, 0x11, 0x00, 0x00,
}

func mustAddr16(t *testing.T, b ...byte) netip.Addr {
	t.Helper()
	if len(b) != 16 {
		t.Fatalf("mustAddr16: need 16 bytes, got %d", len(b))
	}
	var a [16]byte
	copy(a[:], b)
	return netip.AddrFrom16(a)
}

func TestDecodePacket_ScenarioA(t *testing.T) {
	pkt, err := DecodePacket(scenarioAFixture)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}

	if !pkt.Header.HasSeqNum || pkt.Header.SeqNum != 34 {
		t.Fatalf("packet header: got hasSeqNum=%v seq=%d, want true/34", pkt.Header.HasSeqNum, pkt.Header.SeqNum)
	}
	if len(pkt.TLVs) != 0 {
		t.Fatalf("packet TLVs: got %d, want 0", len(pkt.TLVs))
	}
	if len(pkt.Messages) != 1 {
		t.Fatalf("messages: got %d, want 1", len(pkt.Messages))
	}

	msg := pkt.Messages[0]
	if msg.Header.Type != 1 {
		t.Errorf("message type: got %d, want 1", msg.Header.Type)
	}
	if msg.Header.AddrLength != 16 {
		t.Errorf("addr length: got %d, want 16", msg.Header.AddrLength)
	}
	if !msg.Header.HasOriginator {
		t.Fatalf("expected originator flag set")
	}
	wantOriginator := mustAddr16(t, 0xab, 0xcd, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01)
	if msg.Header.Originator != wantOriginator {
		t.Errorf("originator: got %s, want %s", msg.Header.Originator, wantOriginator)
	}
	if msg.Header.HasHopLimit || msg.Header.HasHopCount || msg.Header.HasSeqNum {
		t.Errorf("expected no hop-limit/hop-count/seqnum flags, got %+v", msg.Header)
	}
	if len(msg.TLVs) != 0 {
		t.Errorf("message TLVs: got %d, want 0", len(msg.TLVs))
	}

	var addrs []netip.Addr
	var plens []uint8
	for _, ab := range msg.AddressBlocks {
		addrs = append(addrs, ab.Addresses...)
		plens = append(plens, ab.PrefixLengths...)
	}
	if len(addrs) != 4 {
		t.Fatalf("addresses: got %d, want 4", len(addrs))
	}

	want := []netip.Addr{
		mustAddr16(t, 0x10, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x02),
		mustAddr16(t, 0x10, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x11, 0, 0x02),
		mustAddr16(t, 0x10, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0),
		mustAddr16(t, 0x11, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0),
	}
	for i, w := range want {
		if addrs[i] != w {
			t.Errorf("address[%d]: got %s, want %s", i, addrs[i], w)
		}
		if plens[i] != 128 {
			t.Errorf("prefix length[%d]: got %d, want 128", i, plens[i])
		}
	}
}

func TestDecodePacket_TooShort(t *testing.T) {
	if _, err := DecodePacket(nil); err == nil {
		t.Fatal("expected error decoding empty packet")
	}
}

func TestDecodePacket_BadVersion(t *testing.T) {
	buf := []byte{0x10, 0x01, 0x00} // version nibble = 1
	if _, err := DecodePacket(buf); err == nil {
		t.Fatal("expected ErrUnsupportedVersion")
	}
}

func TestEncodeDecodePacketRoundTrip(t *testing.T) {
	pkt, err := DecodePacket(scenarioAFixture)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}

	var blocks []AddressBlockSpec
	for _, ab := range pkt.Messages[0].AddressBlocks {
		blocks = append(blocks, AddressBlockSpec{
			Addrs:      ab.Addresses,
			PrefixLens: ab.PrefixLengths,
		})
	}

	var out []byte
	w := NewWriter(MaxPacketSize, nil)
	provider := fakeProvider{msgType: pkt.Messages[0].Header.Type, blocks: blocks}
	w.RegisterContentProvider(provider)

	reg := NewRegistry(nil)
	proto := reg.AddProtocol("test", 0, MaxPacketSize)
	proto.writer = w
	iface := proto.AddInterface("eth0")
	target := iface.AddTarget(netip.MustParseAddr("::1"), fakeSender{})

	hdr := pkt.Messages[0].Header
	if err := proto.writer.CreateMessageFor(provider.msgType, hdr, target); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	packets, err := proto.writer.Flush(target)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(packets) != 1 {
		t.Fatalf("packets: got %d, want 1", len(packets))
	}
	out = packets[0]

	reDecoded, err := DecodePacket(out)
	if err != nil {
		t.Fatalf("re-decode: %v", err)
	}
	if len(reDecoded.Messages) != 1 || reDecoded.Messages[0].Header.Originator != hdr.Originator {
		t.Fatalf("round trip mismatch: %+v", reDecoded)
	}
}

type fakeProvider struct {
	msgType uint8
	blocks  []AddressBlockSpec
}

func (f fakeProvider) MessageType() uint8                                  { return f.msgType }
func (f fakeProvider) Priority() int                                       { return 0 }
func (f fakeProvider) AddMessageTLVs(msgType uint8) []TLVSpec              { return nil }
func (f fakeProvider) AddAddresses(msgType uint8) []AddressBlockSpec       { return f.blocks }

type fakeSender struct{}

func (fakeSender) Send(ctx context.Context, dst netip.Addr, data []byte) error { return nil }
