package rfc5444

import (
	"bytes"
	"fmt"
	"net/netip"
)

// Address-block flag bits (RFC 5444 Section 5.5).
const (
	addrFlagHead     = 0x80
	addrFlagFullTail = 0x40
	addrFlagZeroTail = 0x20
	addrFlagSinglePlen = 0x10
	addrFlagMultiPlen  = 0x08
)

// AddressBlock is a decoded address block: the addresses it carries,
// their prefix lengths (full-address, i.e. addrLen*8, when the wire
// encoding omitted prefix-length information), and the TLVs scoped to
// those addresses.
type AddressBlock struct {
	AddrLength    int
	Addresses     []netip.Addr
	PrefixLengths []uint8
	TLVs          []DecodedTLV
}

// addrBytes returns the raw bytes of addr, padded/truncated to length n
// (4 for IPv4, 16 for IPv6).
func addrBytes(addr netip.Addr, n int) []byte {
	if n == 16 {
		b := addr.As16()
		return b[:]
	}
	b := addr.As4()
	return b[:]
}

func commonPrefixLen(a, b []byte) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

func commonSuffixLen(a, b []byte, limit int) int {
	n := 0
	for n < len(a)-limit && n < len(b)-limit && a[len(a)-1-n] == b[len(b)-1-n] {
		n++
	}
	return n
}

// EncodeAddressBlock appends the wire encoding of an address block
// (head/tail-compressed addresses, optional prefix lengths, and the
// address-scope TLV block) to buf.
func EncodeAddressBlock(buf *bytes.Buffer, addrLen int, addrs []netip.Addr, prefixLens []uint8, tlvSpecs []TLVSpec) error {
	if addrLen != 4 && addrLen != 16 {
		return ErrInvalidAddrLength
	}
	if len(addrs) == 0 || len(addrs) > 255 {
		return fmt.Errorf("encode address block: %d addresses out of range", len(addrs))
	}

	raw := make([][]byte, len(addrs))
	for i, a := range addrs {
		raw[i] = addrBytes(a, addrLen)
	}

	headLen := addrLen
	for _, r := range raw {
		if c := commonPrefixLen(raw[0], r); c < headLen {
			headLen = c
		}
	}
	tailLen := addrLen - headLen
	for _, r := range raw {
		if c := commonSuffixLen(raw[0], r, headLen); c < tailLen {
			tailLen = c
		}
	}
	if headLen+tailLen > addrLen {
		tailLen = addrLen - headLen
	}

	var head, tail []byte
	var flags byte
	if headLen > 0 {
		head = raw[0][:headLen]
		flags |= addrFlagHead
	}
	zeroTail := false
	if tailLen > 0 {
		tail = raw[0][addrLen-tailLen:]
		zeroTail = true
		for _, b := range tail {
			if b != 0 {
				zeroTail = false
				break
			}
		}
		if zeroTail {
			flags |= addrFlagZeroTail
		} else {
			flags |= addrFlagFullTail
		}
	}

	allFull := true
	allSame := true
	for _, p := range prefixLens {
		if int(p) != addrLen*8 {
			allFull = false
		}
		if p != prefixLens[0] {
			allSame = false
		}
	}
	if len(prefixLens) != len(addrs) {
		allFull = true // absent == full address
	}
	switch {
	case allFull:
		// omit
	case allSame:
		flags |= addrFlagSinglePlen
	default:
		flags |= addrFlagMultiPlen
	}

	buf.WriteByte(byte(len(addrs)))
	buf.WriteByte(flags)
	if flags&addrFlagHead != 0 {
		buf.WriteByte(byte(headLen))
		buf.Write(head)
	}
	if flags&(addrFlagFullTail|addrFlagZeroTail) != 0 {
		buf.WriteByte(byte(tailLen))
		if flags&addrFlagFullTail != 0 {
			buf.Write(tail)
		}
	}
	midLen := addrLen - headLen - tailLen
	for _, r := range raw {
		buf.Write(r[headLen : headLen+midLen])
	}
	if flags&addrFlagSinglePlen != 0 {
		buf.WriteByte(prefixLens[0])
	} else if flags&addrFlagMultiPlen != 0 {
		for _, p := range prefixLens {
			buf.WriteByte(p)
		}
	}

	tlvBlock, err := EncodeTLVBlock(tlvSpecs)
	if err != nil {
		return fmt.Errorf("encode address-block tlvs: %w", err)
	}
	buf.Write(tlvBlock)
	return nil
}

// DecodeAddressBlock reads one address block from buf and returns the
// number of bytes consumed.
func DecodeAddressBlock(buf []byte, addrLen int) (AddressBlock, int, error) {
	if addrLen != 4 && addrLen != 16 {
		return AddressBlock{}, 0, ErrInvalidAddrLength
	}
	if len(buf) < 2 {
		return AddressBlock{}, 0, fmt.Errorf("decode address block: %w", ErrAddrBlockTooShort)
	}

	numAddr := int(buf[0])
	if numAddr == 0 {
		return AddressBlock{}, 0, fmt.Errorf("decode address block: %w", ErrAddrBlockOverflow)
	}
	flags := buf[1]
	off := 2

	var headLen int
	var head []byte
	if flags&addrFlagHead != 0 {
		if len(buf) < off+1 {
			return AddressBlock{}, 0, fmt.Errorf("decode address block head-len: %w", ErrAddrBlockTooShort)
		}
		headLen = int(buf[off])
		off++
		if len(buf) < off+headLen {
			return AddressBlock{}, 0, fmt.Errorf("decode address block head: %w", ErrAddrBlockTooShort)
		}
		head = buf[off : off+headLen]
		off += headLen
	}

	var tailLen int
	var tail []byte
	if flags&(addrFlagFullTail|addrFlagZeroTail) != 0 {
		if len(buf) < off+1 {
			return AddressBlock{}, 0, fmt.Errorf("decode address block tail-len: %w", ErrAddrBlockTooShort)
		}
		tailLen = int(buf[off])
		off++
		if flags&addrFlagFullTail != 0 {
			if len(buf) < off+tailLen {
				return AddressBlock{}, 0, fmt.Errorf("decode address block tail: %w", ErrAddrBlockTooShort)
			}
			tail = buf[off : off+tailLen]
			off += tailLen
		} else {
			tail = make([]byte, tailLen)
		}
	}

	midLen := addrLen - headLen - tailLen
	if midLen < 0 {
		return AddressBlock{}, 0, fmt.Errorf("decode address block: %w", ErrAddrBlockTooShort)
	}
	if len(buf) < off+midLen*numAddr {
		return AddressBlock{}, 0, fmt.Errorf("decode address block mid: %w", ErrAddrBlockTooShort)
	}

	addrs := make([]netip.Addr, numAddr)
	for i := range numAddr {
		full := make([]byte, 0, addrLen)
		full = append(full, head...)
		full = append(full, buf[off:off+midLen]...)
		full = append(full, tail...)
		off += midLen

		if addrLen == 16 {
			var b [16]byte
			copy(b[:], full)
			addrs[i] = netip.AddrFrom16(b)
		} else {
			var b [4]byte
			copy(b[:], full)
			addrs[i] = netip.AddrFrom4(b)
		}
	}

	prefixLens := make([]uint8, numAddr)
	for i := range prefixLens {
		prefixLens[i] = uint8(addrLen * 8)
	}
	if flags&addrFlagSinglePlen != 0 {
		if len(buf) < off+1 {
			return AddressBlock{}, 0, fmt.Errorf("decode address block plen: %w", ErrAddrBlockTooShort)
		}
		p := buf[off]
		off++
		for i := range prefixLens {
			prefixLens[i] = p
		}
	} else if flags&addrFlagMultiPlen != 0 {
		if len(buf) < off+numAddr {
			return AddressBlock{}, 0, fmt.Errorf("decode address block plens: %w", ErrAddrBlockTooShort)
		}
		copy(prefixLens, buf[off:off+numAddr])
		off += numAddr
	}

	tlvs, n, err := DecodeTLVBlock(buf[off:])
	if err != nil {
		return AddressBlock{}, 0, fmt.Errorf("decode address-block tlvs: %w", err)
	}
	off += n

	for _, t := range tlvs {
		if !t.HasIndex {
			continue
		}
		if int(t.StartIndex) >= numAddr || int(t.StopIndex) >= numAddr {
			return AddressBlock{}, 0, fmt.Errorf("decode address-block tlv type %d: %w", t.Type, ErrBadTLVIndexRange)
		}
	}

	return AddressBlock{
		AddrLength:    addrLen,
		Addresses:     addrs,
		PrefixLengths: prefixLens,
		TLVs:          tlvs,
	}, off, nil
}
