package rfc5444

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

// Printer formats decoded packets for debug logging: a structured dump
// of headers/TLVs/addresses followed by a hex dump of the raw bytes.
// Grounded on olsr_rfc5444.c's _print_packet_to_buffer. Neither the
// receive loop nor the aggregation timer calls it; callers invoke it
// explicitly on a decoded packet.
type Printer struct{}

// NewPrinter creates a Printer. It holds no state; decoded structure is
// passed in per call.
func NewPrinter() *Printer { return &Printer{} }

// DumpPacket renders pkt (already decoded from raw) as a multi-line
// human-readable string suitable for slog.Debug attachment.
func (p *Printer) DumpPacket(raw []byte, pkt Packet) string {
	var b strings.Builder

	fmt.Fprintf(&b, "packet %d bytes", len(raw))
	if pkt.Header.HasSeqNum {
		fmt.Fprintf(&b, " seq=%d", pkt.Header.SeqNum)
	}
	b.WriteByte('\n')

	for _, t := range pkt.TLVs {
		fmt.Fprintf(&b, "  pkt-tlv type=%d value=%x\n", t.Type, t.Value)
	}

	for _, m := range pkt.Messages {
		fmt.Fprintf(&b, "  message type=%d addr-length=%d", m.Header.Type, m.Header.AddrLength)
		if m.Header.HasOriginator {
			fmt.Fprintf(&b, " originator=%s", m.Header.Originator)
		}
		if m.Header.HasHopLimit {
			fmt.Fprintf(&b, " hop-limit=%d", m.Header.HopLimit)
		}
		if m.Header.HasHopCount {
			fmt.Fprintf(&b, " hop-count=%d", m.Header.HopCount)
		}
		if m.Header.HasSeqNum {
			fmt.Fprintf(&b, " seq=%d", m.Header.SeqNum)
		}
		b.WriteByte('\n')

		for _, t := range m.TLVs {
			fmt.Fprintf(&b, "    msg-tlv type=%d value=%x\n", t.Type, t.Value)
		}
		for _, ab := range m.AddressBlocks {
			for i, a := range ab.Addresses {
				fmt.Fprintf(&b, "    addr[%d]=%s/%d\n", i, a, ab.PrefixLengths[i])
			}
			for _, t := range ab.TLVs {
				fmt.Fprintf(&b, "    addr-tlv type=%d index=%d..%d\n", t.Type, t.StartIndex, t.StopIndex)
			}
		}
	}

	b.WriteString(hexDump(raw))
	return b.String()
}

// hexDump renders b as a classic 16-bytes-per-line hex dump.
func hexDump(b []byte) string {
	var out strings.Builder
	for i := 0; i < len(b); i += 16 {
		end := min(i+16, len(b))
		fmt.Fprintf(&out, "  %04x  %s\n", i, hex.EncodeToString(b[i:end]))
	}
	return out.String()
}

// LogMalformed logs a packet that failed to decode: a one-line warning
// plus, at Debug, the raw hex dump — the error-handling behavior named
// in spec §7, so a bad datagram is never silently swallowed in
// production logs but also never escalated past Warn.
func LogMalformed(logger *slog.Logger, raw []byte, err error) {
	logger.Warn("malformed rfc5444 packet", slog.String("error", err.Error()), slog.Int("bytes", len(raw)))
	logger.Debug("malformed rfc5444 packet dump", slog.String("hex", hexDump(raw)))
}
