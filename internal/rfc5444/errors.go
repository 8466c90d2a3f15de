package rfc5444

import "errors"

// Wire-format errors, returned by the codec layer (packet.go, message.go,
// tlv.go, addrblock.go). All are non-fatal: a malformed datagram is
// dropped by the caller, never escalated.
var (
	ErrPacketTooShort    = errors.New("rfc5444: packet shorter than header")
	ErrUnsupportedVersion = errors.New("rfc5444: unsupported packet version")
	ErrMessageTooShort   = errors.New("rfc5444: message shorter than header")
	ErrMessageSizeMismatch = errors.New("rfc5444: msg-size does not match buffer")
	ErrTLVTooShort       = errors.New("rfc5444: tlv block shorter than declared length")
	ErrTLVValueTruncated = errors.New("rfc5444: tlv value truncated")
	ErrAddrBlockTooShort = errors.New("rfc5444: address block shorter than declared length")
	ErrInvalidAddrLength = errors.New("rfc5444: address length must be 4 or 16")
	ErrAddrBlockOverflow = errors.New("rfc5444: address block has zero addresses")
	ErrBadTLVIndexRange  = errors.New("rfc5444: tlv start/stop index out of range for address block")
	ErrBufferTooSmall    = errors.New("rfc5444: output buffer too small")
	ErrPoolType          = errors.New("rfc5444: unexpected type from buffer pool")
)

// Consumer dispatch errors (consumer.go, reader.go).
var (
	ErrMandatoryTLVMissing = errors.New("rfc5444: mandatory tlv missing from block")
	ErrNoSuchMessageType   = errors.New("rfc5444: no consumer registered for message type")
)

// Multiplex-layer errors (multiplex.go).
var (
	ErrProtocolExists    = errors.New("rfc5444: protocol already registered")
	ErrNoSuchProtocol    = errors.New("rfc5444: no such protocol")
	ErrInterfaceExists   = errors.New("rfc5444: interface already registered")
	ErrNoSuchInterface   = errors.New("rfc5444: no such interface")
	ErrTargetExists      = errors.New("rfc5444: target already registered")
	ErrNoSuchTarget      = errors.New("rfc5444: no such target")
	ErrTargetNotActive   = errors.New("rfc5444: target is not active")
)

// Writer errors (writer.go).
var (
	ErrMessageTooLargeForMTU = errors.New("rfc5444: message exceeds MTU and cannot be fragmented")
	ErrNoContentProvider     = errors.New("rfc5444: no content provider registered for message type")
)
