package rfc5444

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
)

// Version is the only packet version this codec understands (RFC 5444
// Section 5.2 reserves the value 0).
const Version = 0

// MaxPacketSize is the default buffer size handed out by PacketPool.
// RFC 5444 itself does not bound packet size; 1500 covers the common
// Ethernet MTU. Larger MTUs size their own buffers directly.
const MaxPacketSize = 1500

// Packet header flag bits (RFC 5444 Section 5.2), the low nibble of the
// first octet; the high nibble carries Version.
const (
	pktFlagHasSeqNum = 0x08
	pktFlagHasTLV    = 0x04
)

// PacketHeader is the fixed-format portion of an RFC 5444 packet.
type PacketHeader struct {
	HasSeqNum bool
	SeqNum    uint16
}

// Packet is a fully decoded RFC 5444 packet: zero or more packet-scope
// TLVs followed by zero or more messages.
type Packet struct {
	Header   PacketHeader
	TLVs     []DecodedTLV
	Messages []Message
}

// PacketPool hands out reusable MaxPacketSize-byte buffers for receive
// and transmit paths, following the same zero-allocation-steady-state
// pattern gVisor's netstack uses for packet buffers: callers Get a
// buffer, slice it to the bytes actually used, and Put it back once the
// bytes have been consumed or copied elsewhere.
var PacketPool = sync.Pool{
	New: func() any {
		b := make([]byte, MaxPacketSize)
		return &b
	},
}

// EncodePacketHeader appends the packet header (version/flags, optional
// sequence number, optional packet TLV block) to buf.
func EncodePacketHeader(buf *bytes.Buffer, hasSeqNum bool, seqNum uint16, tlvSpecs []TLVSpec) error {
	hasTLV := len(tlvSpecs) > 0

	var flags byte
	if hasSeqNum {
		flags |= pktFlagHasSeqNum
	}
	if hasTLV {
		flags |= pktFlagHasTLV
	}
	buf.WriteByte(Version<<4 | flags)

	if hasSeqNum {
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], seqNum)
		buf.Write(b[:])
	}

	if hasTLV {
		block, err := EncodeTLVBlock(tlvSpecs)
		if err != nil {
			return fmt.Errorf("encode packet tlvs: %w", err)
		}
		buf.Write(block)
	}
	return nil
}

// DecodePacket parses a complete RFC 5444 packet from buf. A malformed
// packet returns a non-nil error and no partial Packet; callers drop the
// datagram and log via the print pass (print.go).
func DecodePacket(buf []byte) (Packet, error) {
	if len(buf) < 1 {
		return Packet{}, fmt.Errorf("decode packet: %w", ErrPacketTooShort)
	}

	b0 := buf[0]
	if b0>>4 != Version {
		return Packet{}, fmt.Errorf("decode packet version %d: %w", b0>>4, ErrUnsupportedVersion)
	}
	flags := b0 & 0x0f
	off := 1

	var hdr PacketHeader
	if flags&pktFlagHasSeqNum != 0 {
		if len(buf) < off+2 {
			return Packet{}, fmt.Errorf("decode packet seqno: %w", ErrPacketTooShort)
		}
		hdr.HasSeqNum = true
		hdr.SeqNum = binary.BigEndian.Uint16(buf[off:])
		off += 2
	}

	var tlvs []DecodedTLV
	if flags&pktFlagHasTLV != 0 {
		t, n, err := DecodeTLVBlock(buf[off:])
		if err != nil {
			return Packet{}, fmt.Errorf("decode packet tlvs: %w", err)
		}
		tlvs = t
		off += n
	}

	var messages []Message
	for off < len(buf) {
		m, n, err := DecodeMessage(buf[off:])
		if err != nil {
			return Packet{}, fmt.Errorf("decode packet message: %w", err)
		}
		messages = append(messages, m)
		off += n
	}

	return Packet{Header: hdr, TLVs: tlvs, Messages: messages}, nil
}
