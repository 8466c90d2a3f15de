package rfc5444

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// TLV flag bits (RFC 5444 Section 5.4.1). The upper six bits of the flags
// byte, mirrored across packet, message, and address-block TLVs.
const (
	tlvFlagTypeExt = 0x80
	tlvFlagSingleIdx = 0x40
	tlvFlagMultiIdx  = 0x20
	tlvFlagValue     = 0x10
	tlvFlagExtLen    = 0x08
	tlvFlagMultivalue = 0x04
)

// TLVSpec describes a TLV to be encoded. Message- and packet-scope TLVs
// leave HasIndex false. Address-block TLVs set StartIndex/StopIndex to
// the range of addresses they describe; a single address uses
// StartIndex == StopIndex.
type TLVSpec struct {
	Type    uint8
	TypeExt uint8
	HasExt  bool

	HasIndex   bool
	StartIndex uint8
	StopIndex  uint8

	// Multivalue indicates one distinct value per covered address index
	// (Values must hold StopIndex-StartIndex+1 entries, all equal length).
	// Otherwise Value is shared across the whole index range.
	Multivalue bool
	Value      []byte
	Values     [][]byte
}

// DecodedTLV is a TLV as produced by DecodeTLVBlock. Address-scope
// consumers read per-address values through ValueForIndex.
type DecodedTLV struct {
	Type       uint8
	TypeExt    uint8
	HasTypeExt bool

	HasIndex   bool
	StartIndex uint8
	StopIndex  uint8

	Multivalue bool
	Value      []byte
	Values     [][]byte
}

// ValueForIndex returns the TLV value applicable to address index idx
// (message/packet TLVs only answer idx == 0). ok is false if idx falls
// outside the TLV's covered range.
func (t DecodedTLV) ValueForIndex(idx int) (value []byte, ok bool) {
	if !t.HasIndex {
		if idx == 0 {
			return t.Value, true
		}
		return nil, false
	}
	lo, hi := int(t.StartIndex), int(t.StopIndex)
	if idx < lo || idx > hi {
		return nil, false
	}
	if t.Multivalue {
		return t.Values[idx-lo], true
	}
	return t.Value, true
}

// EncodeTLV appends the wire encoding of spec to buf.
func EncodeTLV(buf *bytes.Buffer, spec TLVSpec) error {
	var flags byte
	if spec.HasExt {
		flags |= tlvFlagTypeExt
	}
	if spec.HasIndex {
		if spec.StartIndex == spec.StopIndex {
			flags |= tlvFlagSingleIdx
		} else {
			flags |= tlvFlagMultiIdx
		}
	}

	hasValue := spec.Value != nil || len(spec.Values) > 0
	var valueLen int
	if hasValue {
		flags |= tlvFlagValue
		if spec.Multivalue {
			flags |= tlvFlagMultivalue
			if len(spec.Values) == 0 {
				return fmt.Errorf("encode tlv type %d: %w", spec.Type, ErrTLVValueTruncated)
			}
			valueLen = len(spec.Values[0])
		} else {
			valueLen = len(spec.Value)
		}
		if valueLen > 255 {
			flags |= tlvFlagExtLen
		}
	}

	buf.WriteByte(spec.Type)
	buf.WriteByte(flags)
	if spec.HasExt {
		buf.WriteByte(spec.TypeExt)
	}
	if spec.HasIndex {
		buf.WriteByte(spec.StartIndex)
		if flags&tlvFlagMultiIdx != 0 {
			buf.WriteByte(spec.StopIndex)
		}
	}
	if hasValue {
		if flags&tlvFlagExtLen != 0 {
			var lenBuf [2]byte
			binary.BigEndian.PutUint16(lenBuf[:], uint16(valueLen))
			buf.Write(lenBuf[:])
		} else {
			buf.WriteByte(byte(valueLen))
		}
		if spec.Multivalue {
			for _, v := range spec.Values {
				if len(v) != valueLen {
					return fmt.Errorf("encode tlv type %d: %w", spec.Type, ErrTLVValueTruncated)
				}
				buf.Write(v)
			}
		} else {
			buf.Write(spec.Value)
		}
	}
	return nil
}

// EncodeTLVBlock encodes specs into a length-prefixed TLV block (the
// 2-byte tlvs-length field followed by the concatenated TLVs), as used
// for both message TLV blocks and address-block TLV blocks.
func EncodeTLVBlock(specs []TLVSpec) ([]byte, error) {
	var body bytes.Buffer
	for _, s := range specs {
		if err := EncodeTLV(&body, s); err != nil {
			return nil, err
		}
	}

	out := make([]byte, 2+body.Len())
	binary.BigEndian.PutUint16(out, uint16(body.Len()))
	copy(out[2:], body.Bytes())
	return out, nil
}

// DecodeTLVBlock reads a single 2-byte-length-prefixed TLV block and
// returns the decoded TLVs plus the number of bytes consumed (2 + the
// declared block length).
func DecodeTLVBlock(buf []byte) ([]DecodedTLV, int, error) {
	if len(buf) < 2 {
		return nil, 0, fmt.Errorf("decode tlv block: %w", ErrTLVTooShort)
	}
	blockLen := int(binary.BigEndian.Uint16(buf))
	total := 2 + blockLen
	if len(buf) < total {
		return nil, 0, fmt.Errorf("decode tlv block: %w", ErrTLVTooShort)
	}

	var tlvs []DecodedTLV
	rest := buf[2:total]
	for len(rest) > 0 {
		t, n, err := decodeOneTLV(rest)
		if err != nil {
			return nil, 0, err
		}
		tlvs = append(tlvs, t)
		rest = rest[n:]
	}
	return tlvs, total, nil
}

func decodeOneTLV(buf []byte) (DecodedTLV, int, error) {
	if len(buf) < 2 {
		return DecodedTLV{}, 0, fmt.Errorf("decode tlv: %w", ErrTLVTooShort)
	}
	var t DecodedTLV
	t.Type = buf[0]
	flags := buf[1]
	off := 2

	if flags&tlvFlagTypeExt != 0 {
		if len(buf) < off+1 {
			return DecodedTLV{}, 0, fmt.Errorf("decode tlv type-ext: %w", ErrTLVTooShort)
		}
		t.HasTypeExt = true
		t.TypeExt = buf[off]
		off++
	}

	if flags&(tlvFlagSingleIdx|tlvFlagMultiIdx) != 0 {
		t.HasIndex = true
		if len(buf) < off+1 {
			return DecodedTLV{}, 0, fmt.Errorf("decode tlv index: %w", ErrTLVTooShort)
		}
		t.StartIndex = buf[off]
		off++
		if flags&tlvFlagMultiIdx != 0 {
			if len(buf) < off+1 {
				return DecodedTLV{}, 0, fmt.Errorf("decode tlv stop-index: %w", ErrTLVTooShort)
			}
			t.StopIndex = buf[off]
			off++
		} else {
			t.StopIndex = t.StartIndex
		}
	}

	if flags&tlvFlagValue == 0 {
		return t, off, nil
	}

	var valueLen int
	if flags&tlvFlagExtLen != 0 {
		if len(buf) < off+2 {
			return DecodedTLV{}, 0, fmt.Errorf("decode tlv ext value-len: %w", ErrTLVTooShort)
		}
		valueLen = int(binary.BigEndian.Uint16(buf[off:]))
		off += 2
	} else {
		if len(buf) < off+1 {
			return DecodedTLV{}, 0, fmt.Errorf("decode tlv value-len: %w", ErrTLVTooShort)
		}
		valueLen = int(buf[off])
		off++
	}

	t.Multivalue = flags&tlvFlagMultivalue != 0
	if t.Multivalue && t.HasIndex {
		count := int(t.StopIndex) - int(t.StartIndex) + 1
		if count < 1 {
			return DecodedTLV{}, 0, fmt.Errorf("decode tlv multivalue range: %w", ErrTLVValueTruncated)
		}
		if len(buf) < off+valueLen*count {
			return DecodedTLV{}, 0, fmt.Errorf("decode tlv multivalue: %w", ErrTLVValueTruncated)
		}
		t.Values = make([][]byte, count)
		for i := range count {
			t.Values[i] = buf[off : off+valueLen]
			off += valueLen
		}
		return t, off, nil
	}

	if len(buf) < off+valueLen {
		return DecodedTLV{}, 0, fmt.Errorf("decode tlv value: %w", ErrTLVValueTruncated)
	}
	t.Value = buf[off : off+valueLen]
	off += valueLen
	return t, off, nil
}
