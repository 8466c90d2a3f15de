package rfc5444

import (
	"bytes"
	"fmt"
	"net/netip"
)

// ShouldForward reports whether a message classified result by a
// Protocol's forwarded-set is eligible for re-flooding. Per the
// resolved design question (originator must not be this node, and at
// least one hop of budget must remain after the mandatory decrement),
// only non-duplicate classifications with a live hop-limit qualify.
func ShouldForward(result DupResult, hdr MessageHeader, self netip.Addr) bool {
	if result != ResultNew && result != ResultNewest {
		return false
	}
	if hdr.HasOriginator && hdr.Originator == self {
		return false
	}
	hopLimit := uint8(255)
	if hdr.HasHopLimit {
		hopLimit = hdr.HopLimit
	}
	return hopLimit > 1
}

// PrepareForward re-encodes msg with its hop-limit decremented and
// hop-count incremented (RFC 5444 Section 5.3: a forwarding router MUST
// perform both adjustments), ready to hand to Writer.ForwardMessage. A
// message with no explicit hop-limit/hop-count is treated as having the
// implicit defaults of 255 and 0 respectively before adjustment.
func PrepareForward(msg Message) ([]byte, error) {
	hdr := msg.Header
	if !hdr.HasHopLimit {
		hdr.HasHopLimit = true
		hdr.HopLimit = 255
	}
	hdr.HopLimit--
	if !hdr.HasHopCount {
		hdr.HasHopCount = true
		hdr.HopCount = 0
	}
	hdr.HopCount++

	var buf bytes.Buffer
	err := EncodeMessage(&buf, hdr, tlvSpecsFromDecoded(msg.TLVs), addressBlockSpecsFromDecoded(msg.AddressBlocks))
	if err != nil {
		return nil, fmt.Errorf("prepare forward: %w", err)
	}
	return buf.Bytes(), nil
}

func tlvSpecsFromDecoded(tlvs []DecodedTLV) []TLVSpec {
	specs := make([]TLVSpec, len(tlvs))
	for i, t := range tlvs {
		specs[i] = TLVSpec{
			Type:       t.Type,
			TypeExt:    t.TypeExt,
			HasExt:     t.HasTypeExt,
			HasIndex:   t.HasIndex,
			StartIndex: t.StartIndex,
			StopIndex:  t.StopIndex,
			Multivalue: t.Multivalue,
			Value:      t.Value,
			Values:     t.Values,
		}
	}
	return specs
}

func addressBlockSpecsFromDecoded(blocks []AddressBlock) []AddressBlockSpec {
	specs := make([]AddressBlockSpec, len(blocks))
	for i, ab := range blocks {
		specs[i] = AddressBlockSpec{
			Addrs:      ab.Addresses,
			PrefixLens: ab.PrefixLengths,
			TLVs:       tlvSpecsFromDecoded(ab.TLVs),
		}
	}
	return specs
}
