package rfc5444

import (
	"net/netip"
	"testing"
)

func TestShouldForward_DuplicateNeverForwards(t *testing.T) {
	self := netip.MustParseAddr("2001:db8::1")
	other := netip.MustParseAddr("2001:db8::2")
	hdr := MessageHeader{HasOriginator: true, Originator: other, HasHopLimit: true, HopLimit: 10}
	if ShouldForward(ResultDuplicate, hdr, self) {
		t.Fatal("a duplicate classification must never be forwarded")
	}
	if ShouldForward(ResultCurrent, hdr, self) {
		t.Fatal("a current classification must never be forwarded")
	}
	if ShouldForward(ResultTooOld, hdr, self) {
		t.Fatal("a too-old classification must never be forwarded")
	}
}

func TestShouldForward_SelfOriginatedNeverForwards(t *testing.T) {
	self := netip.MustParseAddr("2001:db8::1")
	hdr := MessageHeader{HasOriginator: true, Originator: self, HasHopLimit: true, HopLimit: 10}
	if ShouldForward(ResultNewest, hdr, self) {
		t.Fatal("a message this node originated must never be forwarded")
	}
}

func TestShouldForward_ExhaustedHopLimitNeverForwards(t *testing.T) {
	self := netip.MustParseAddr("2001:db8::1")
	other := netip.MustParseAddr("2001:db8::2")
	hdr := MessageHeader{HasOriginator: true, Originator: other, HasHopLimit: true, HopLimit: 1}
	if ShouldForward(ResultNew, hdr, self) {
		t.Fatal("hop-limit of 1 leaves no budget after decrement, must not forward")
	}
	hdr.HopLimit = 0
	if ShouldForward(ResultNew, hdr, self) {
		t.Fatal("hop-limit of 0 must not forward")
	}
}

func TestShouldForward_EligibleNewOrNewestForwards(t *testing.T) {
	self := netip.MustParseAddr("2001:db8::1")
	other := netip.MustParseAddr("2001:db8::2")
	hdr := MessageHeader{HasOriginator: true, Originator: other, HasHopLimit: true, HopLimit: 2}
	if !ShouldForward(ResultNew, hdr, self) {
		t.Fatal("NEW from another originator with hop-limit budget should forward")
	}
	if !ShouldForward(ResultNewest, hdr, self) {
		t.Fatal("NEWEST from another originator with hop-limit budget should forward")
	}
}

func TestShouldForward_AbsentHopLimitDefaultsTo255(t *testing.T) {
	self := netip.MustParseAddr("2001:db8::1")
	other := netip.MustParseAddr("2001:db8::2")
	hdr := MessageHeader{HasOriginator: true, Originator: other}
	if !ShouldForward(ResultNew, hdr, self) {
		t.Fatal("an absent hop-limit implies 255, which has plenty of budget")
	}
}

func TestShouldForward_AbsentOriginatorIsNotSelf(t *testing.T) {
	self := netip.MustParseAddr("2001:db8::1")
	hdr := MessageHeader{HasHopLimit: true, HopLimit: 10}
	if !ShouldForward(ResultNew, hdr, self) {
		t.Fatal("a message with no originator field cannot be self-originated")
	}
}

func TestPrepareForward_DecrementsHopLimitIncrementsHopCount(t *testing.T) {
	pkt, err := DecodePacket(scenarioAFixture)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	msg := pkt.Messages[0]
	msg.Header.HasHopLimit = true
	msg.Header.HopLimit = 5
	msg.Header.HasHopCount = true
	msg.Header.HopCount = 2

	out, err := PrepareForward(msg)
	if err != nil {
		t.Fatalf("PrepareForward: %v", err)
	}

	fwd, _, err := DecodeMessage(out)
	if err != nil {
		t.Fatalf("DecodeMessage(forwarded): %v", err)
	}
	if !fwd.Header.HasHopLimit || fwd.Header.HopLimit != 4 {
		t.Fatalf("hop-limit: got %+v, want 4", fwd.Header)
	}
	if !fwd.Header.HasHopCount || fwd.Header.HopCount != 3 {
		t.Fatalf("hop-count: got %+v, want 3", fwd.Header)
	}
	if fwd.Header.Originator != msg.Header.Originator {
		t.Fatalf("originator changed across forward: got %s, want %s", fwd.Header.Originator, msg.Header.Originator)
	}
}

func TestPrepareForward_AppliesImplicitDefaultsWhenAbsent(t *testing.T) {
	pkt, err := DecodePacket(scenarioAFixture)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	msg := pkt.Messages[0] // has neither hop-limit nor hop-count set

	out, err := PrepareForward(msg)
	if err != nil {
		t.Fatalf("PrepareForward: %v", err)
	}
	fwd, _, err := DecodeMessage(out)
	if err != nil {
		t.Fatalf("DecodeMessage(forwarded): %v", err)
	}
	if fwd.Header.HopLimit != 254 {
		t.Fatalf("hop-limit: got %d, want 254 (implicit 255 minus one)", fwd.Header.HopLimit)
	}
	if fwd.Header.HopCount != 1 {
		t.Fatalf("hop-count: got %d, want 1 (implicit 0 plus one)", fwd.Header.HopCount)
	}
}

func TestPrepareForward_PreservesAddresses(t *testing.T) {
	pkt, err := DecodePacket(scenarioAFixture)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	msg := pkt.Messages[0]

	out, err := PrepareForward(msg)
	if err != nil {
		t.Fatalf("PrepareForward: %v", err)
	}
	fwd, _, err := DecodeMessage(out)
	if err != nil {
		t.Fatalf("DecodeMessage(forwarded): %v", err)
	}

	var before, after []netip.Addr
	for _, ab := range msg.AddressBlocks {
		before = append(before, ab.Addresses...)
	}
	for _, ab := range fwd.AddressBlocks {
		after = append(after, ab.Addresses...)
	}
	if len(before) != len(after) {
		t.Fatalf("address count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("address[%d] changed: %s -> %s", i, before[i], after[i])
		}
	}
}
