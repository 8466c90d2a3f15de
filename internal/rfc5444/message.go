package rfc5444

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net/netip"
)

// Message header flag bits (RFC 5444 Section 5.3), occupying the high
// nibble of the flags/addr-length byte.
const (
	msgFlagOriginator = 0x80
	msgFlagHopLimit   = 0x40
	msgFlagHopCount   = 0x20
	msgFlagSeqNum     = 0x10
)

// MessageHeader is the fixed-format portion of an RFC 5444 message.
type MessageHeader struct {
	Type       uint8
	AddrLength int // 4 or 16

	HasOriginator bool
	Originator    netip.Addr

	HasHopLimit bool
	HopLimit    uint8

	HasHopCount bool
	HopCount    uint8

	HasSeqNum bool
	SeqNum    uint16
}

// Message is a fully decoded RFC 5444 message.
type Message struct {
	Header        MessageHeader
	TLVs          []DecodedTLV
	AddressBlocks []AddressBlock
}

// AddressBlockSpec describes one address block to be written by
// EncodeMessage.
type AddressBlockSpec struct {
	Addrs      []netip.Addr
	PrefixLens []uint8
	TLVs       []TLVSpec
}

// EncodeMessage appends the wire encoding of a complete message (header,
// message TLV block, and address blocks in order) to buf.
func EncodeMessage(buf *bytes.Buffer, hdr MessageHeader, tlvSpecs []TLVSpec, blocks []AddressBlockSpec) error {
	if hdr.AddrLength != 4 && hdr.AddrLength != 16 {
		return ErrInvalidAddrLength
	}

	start := buf.Len()
	buf.WriteByte(hdr.Type)

	var flags byte
	if hdr.HasOriginator {
		flags |= msgFlagOriginator
	}
	if hdr.HasHopLimit {
		flags |= msgFlagHopLimit
	}
	if hdr.HasHopCount {
		flags |= msgFlagHopCount
	}
	if hdr.HasSeqNum {
		flags |= msgFlagSeqNum
	}
	addrLenNibble := byte(hdr.AddrLength - 1)
	buf.WriteByte(flags | addrLenNibble)

	sizeOffset := buf.Len()
	buf.Write([]byte{0, 0}) // msg-size placeholder, patched below

	if hdr.HasOriginator {
		buf.Write(addrBytes(hdr.Originator, hdr.AddrLength))
	}
	if hdr.HasHopLimit {
		buf.WriteByte(hdr.HopLimit)
	}
	if hdr.HasHopCount {
		buf.WriteByte(hdr.HopCount)
	}
	if hdr.HasSeqNum {
		var seq [2]byte
		binary.BigEndian.PutUint16(seq[:], hdr.SeqNum)
		buf.Write(seq[:])
	}

	tlvBlock, err := EncodeTLVBlock(tlvSpecs)
	if err != nil {
		return fmt.Errorf("encode message tlvs: %w", err)
	}
	buf.Write(tlvBlock)

	for i, ab := range blocks {
		if err := EncodeAddressBlock(buf, hdr.AddrLength, ab.Addrs, ab.PrefixLens, ab.TLVs); err != nil {
			return fmt.Errorf("encode address block %d: %w", i, err)
		}
	}

	total := buf.Len() - start
	if total > 0xffff {
		return fmt.Errorf("encode message: %w", ErrMessageTooLargeForMTU)
	}
	out := buf.Bytes()
	binary.BigEndian.PutUint16(out[sizeOffset:sizeOffset+2], uint16(total))
	return nil
}

// DecodeMessage reads one message from buf and returns the number of
// bytes consumed (equal to the msg-size field, verified against buf's
// remaining length).
func DecodeMessage(buf []byte) (Message, int, error) {
	if len(buf) < 4 {
		return Message{}, 0, fmt.Errorf("decode message header: %w", ErrMessageTooShort)
	}

	var hdr MessageHeader
	hdr.Type = buf[0]
	flagByte := buf[1]
	hdr.AddrLength = int(flagByte&0x0f) + 1
	hdr.HasOriginator = flagByte&msgFlagOriginator != 0
	hdr.HasHopLimit = flagByte&msgFlagHopLimit != 0
	hdr.HasHopCount = flagByte&msgFlagHopCount != 0
	hdr.HasSeqNum = flagByte&msgFlagSeqNum != 0

	msgSize := int(binary.BigEndian.Uint16(buf[2:4]))
	if msgSize > len(buf) {
		return Message{}, 0, fmt.Errorf("decode message: %w", ErrMessageSizeMismatch)
	}
	body := buf[:msgSize]
	off := 4

	if hdr.HasOriginator {
		if len(body) < off+hdr.AddrLength {
			return Message{}, 0, fmt.Errorf("decode message originator: %w", ErrMessageTooShort)
		}
		if hdr.AddrLength == 16 {
			var b [16]byte
			copy(b[:], body[off:off+16])
			hdr.Originator = netip.AddrFrom16(b)
		} else {
			var b [4]byte
			copy(b[:], body[off:off+4])
			hdr.Originator = netip.AddrFrom4(b)
		}
		off += hdr.AddrLength
	}
	if hdr.HasHopLimit {
		if len(body) < off+1 {
			return Message{}, 0, fmt.Errorf("decode message hop-limit: %w", ErrMessageTooShort)
		}
		hdr.HopLimit = body[off]
		off++
	}
	if hdr.HasHopCount {
		if len(body) < off+1 {
			return Message{}, 0, fmt.Errorf("decode message hop-count: %w", ErrMessageTooShort)
		}
		hdr.HopCount = body[off]
		off++
	}
	if hdr.HasSeqNum {
		if len(body) < off+2 {
			return Message{}, 0, fmt.Errorf("decode message seq-num: %w", ErrMessageTooShort)
		}
		hdr.SeqNum = binary.BigEndian.Uint16(body[off:])
		off += 2
	}

	tlvs, n, err := DecodeTLVBlock(body[off:])
	if err != nil {
		return Message{}, 0, fmt.Errorf("decode message tlvs: %w", err)
	}
	off += n

	var blocks []AddressBlock
	for off < len(body) {
		ab, n, err := DecodeAddressBlock(body[off:], hdr.AddrLength)
		if err != nil {
			return Message{}, 0, fmt.Errorf("decode address block: %w", err)
		}
		blocks = append(blocks, ab)
		off += n
	}

	return Message{Header: hdr, TLVs: tlvs, AddressBlocks: blocks}, msgSize, nil
}
