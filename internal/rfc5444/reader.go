package rfc5444

import (
	"log/slog"
)

// Reader turns raw packet bytes into decoded Packets and dispatches each
// message and address to the consumers registered with it. It has no
// socket of its own; internal/netio feeds it received datagrams.
//
// Grounded on the C reference's rfc5444_reader: a single reader instance
// is shared by every message/address consumer registered against it, and
// dispatch order follows registration order (reader.c).
type Reader struct {
	msgConsumers  []MessageConsumer
	addrConsumers []AddressConsumer
	logger        *slog.Logger
}

// NewReader creates an empty Reader. Register consumers with
// AddMessageConsumer/AddAddressConsumer before calling ParsePacket.
func NewReader(logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{logger: logger.With(slog.String("component", "rfc5444.reader"))}
}

// AddMessageConsumer registers c to be notified once per matching
// message (message-type filtered, or AnyMessageType for all messages).
func (r *Reader) AddMessageConsumer(c MessageConsumer) {
	r.msgConsumers = append(r.msgConsumers, c)
}

// AddAddressConsumer registers c to be notified once per address within
// matching messages.
func (r *Reader) AddAddressConsumer(c AddressConsumer) {
	r.addrConsumers = append(r.addrConsumers, c)
}

// ParsePacket decodes buf and dispatches its messages to every
// registered consumer whose message type matches. A wire-format error
// (malformed header, truncated TLV, etc.) is returned and nothing is
// dispatched. A consumer-requested drop (DropMessage/DropPacket) is not
// an error: it simply stops dispatch early and ParsePacket still returns
// the decoded Packet so the caller (e.g. the duplicate/forwarding set)
// can still make its own per-message decisions.
func (r *Reader) ParsePacket(buf []byte) (Packet, error) {
	pkt, err := DecodePacket(buf)
	if err != nil {
		return Packet{}, err
	}

messageLoop:
	for mi := range pkt.Messages {
		msg := &pkt.Messages[mi]

		switch r.dispatchMessageConsumers(msg) {
		case DropMessage:
			continue messageLoop
		case DropPacket:
			break messageLoop
		}

		if r.dispatchAddressConsumers(msg) == DropPacket {
			break messageLoop
		}
	}

	return pkt, nil
}

func (r *Reader) dispatchMessageConsumers(msg *Message) DropAction {
	for _, c := range r.msgConsumers {
		if c.MessageType() != AnyMessageType && int(msg.Header.Type) != c.MessageType() {
			continue
		}
		if !hasAllMandatory(c.MandatoryEntries(), msg.TLVs, -1) {
			r.logger.Debug("mandatory message tlv missing",
				slog.Int("msg_type", int(msg.Header.Type)))
			continue
		}
		switch action := c.HandleMessage(msg); action {
		case DropMessage, DropPacket:
			return action
		}
	}
	return Okay
}

func (r *Reader) dispatchAddressConsumers(msg *Message) DropAction {
	for _, c := range r.addrConsumers {
		if c.MessageType() != AnyMessageType && int(msg.Header.Type) != c.MessageType() {
			continue
		}
		for bi := range msg.AddressBlocks {
			block := &msg.AddressBlocks[bi]
			for idx, addr := range block.Addresses {
				if !hasAllMandatory(c.MandatoryEntries(), block.TLVs, idx) {
					continue
				}
				switch c.HandleAddress(msg, block, idx, addr, block.PrefixLengths[idx]) {
				case DropAddress:
					continue
				case DropMessage:
					return DropMessage
				case DropPacket:
					return DropPacket
				}
			}
		}
	}
	return Okay
}
