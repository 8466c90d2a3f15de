package rfc5444

import (
	"fmt"
	"net/netip"
)

// unknownFmt is the format string used by String() methods across this
// package for enum values with no name.
const unknownFmt = "Unknown(%d)"

// DropAction tells the dispatcher what to do with the rest of a block
// after a consumer callback returns.
type DropAction int

const (
	// Okay continues normal processing.
	Okay DropAction = iota
	// DropAddress discards the current address but keeps processing the
	// message (address-scope consumers only).
	DropAddress
	// DropMessage discards the rest of the current message.
	DropMessage
	// DropPacket discards the rest of the packet, including messages not
	// yet dispatched.
	DropPacket
)

var dropActionNames = [...]string{"okay", "drop-address", "drop-message", "drop-packet"}

func (d DropAction) String() string {
	if d < 0 || int(d) >= len(dropActionNames) {
		return fmt.Sprintf(unknownFmt, int(d))
	}
	return dropActionNames[d]
}

// AnyMessageType matches every message type.
const AnyMessageType = -1

// ConsumerEntry names one TLV type a consumer expects to find in the
// block it is scoped to. Mandatory entries missing from a block cause
// the dispatcher to reject the block before invoking the callback,
// mirroring the C reference's _message_consumer_entries table.
type ConsumerEntry struct {
	Type      uint8
	Mandatory bool
}

// MessageConsumer is notified once per message of a matching type (or
// every message, via AnyMessageType).
type MessageConsumer interface {
	MessageType() int
	MandatoryEntries() []ConsumerEntry
	HandleMessage(msg *Message) DropAction
}

// AddressConsumer is notified once per address within messages of a
// matching type. Mandatory entries are checked per-address, so one
// address in a block can be rejected while its siblings are still
// delivered.
type AddressConsumer interface {
	MessageType() int
	MandatoryEntries() []ConsumerEntry
	HandleAddress(msg *Message, block *AddressBlock, idx int, addr netip.Addr, prefixLen uint8) DropAction
}

// hasAllMandatory reports whether every mandatory entry in entries has a
// matching TLV (by Type) in tlvs that covers address index idx. A
// negative idx means "message scope" and matches any TLV of that Type,
// regardless of its index fields.
func hasAllMandatory(entries []ConsumerEntry, tlvs []DecodedTLV, idx int) bool {
	for _, e := range entries {
		if !e.Mandatory {
			continue
		}
		found := false
		for _, t := range tlvs {
			if t.Type != e.Type {
				continue
			}
			if idx < 0 {
				found = true
				break
			}
			if _, ok := t.ValueForIndex(idx); ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
