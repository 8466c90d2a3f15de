package rfc5444

import (
	"bytes"
	"fmt"
	"log/slog"
	"sort"
)

// ContentProvider supplies the TLVs and addresses for one message type.
// Multiple content providers can register against the same message type;
// all of them are consulted on every CreateMessage, mirroring the C
// reference's rfc5444_writer_content_provider / addMessageTLVs callback
// pair (writer.c) and olsr_rfc5444.c's priority-ordered provider list.
type ContentProvider interface {
	MessageType() uint8
	// Priority orders this provider among others registered for the same
	// message type: lower values contribute their TLVs and addresses
	// first, ties broken by registration order.
	Priority() int
	AddMessageTLVs(msgType uint8) []TLVSpec
	AddAddresses(msgType uint8) []AddressBlockSpec
}

// TargetSelector reports whether target should receive the message being
// built by CreateMessage, mirroring rfc5444_writer_targetselector
// (olsr_rfc5444.c).
type TargetSelector func(target *Target) bool

// SingleTarget returns a TargetSelector matching only target, mirroring
// olsr_rfc5444.c's _cb_single_target_selector.
func SingleTarget(target *Target) TargetSelector {
	return func(t *Target) bool { return t == target }
}

// AllTargets is a TargetSelector matching every candidate target.
func AllTargets(*Target) bool { return true }

// Writer aggregates messages produced by registered content providers
// (and raw bytes handed to ForwardMessage) per Target, and packs them
// into MTU-respecting packets on Flush. It is not safe for concurrent
// use: per §5's single-threaded event-loop model, a Writer is only ever
// touched from the goroutine that owns its Protocol.
type Writer struct {
	providers map[uint8][]ContentProvider
	pending   map[*Target][][]byte
	mtu       int
	logger    *slog.Logger
}

// NewWriter creates a Writer that packs messages into packets no larger
// than mtu bytes.
func NewWriter(mtu int, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		providers: make(map[uint8][]ContentProvider),
		pending:   make(map[*Target][][]byte),
		mtu:       mtu,
		logger:    logger.With(slog.String("component", "rfc5444.writer")),
	}
}

// RegisterContentProvider adds p to the ordered list of providers for its
// MessageType. A second (or third...) registration for the same type
// does not replace the first: CreateMessage consults every registered
// provider for a type, in ascending Priority order with ties broken by
// registration order (spec §4.2 step 3/4, "build once, target many").
func (w *Writer) RegisterContentProvider(p ContentProvider) {
	list := append(w.providers[p.MessageType()], p)
	sort.SliceStable(list, func(i, j int) bool { return list[i].Priority() < list[j].Priority() })
	w.providers[p.MessageType()] = list
}

// CreateMessage builds one message of msgType by consulting every
// registered content provider for that type (coalescing their message
// TLVs and addresses into a single encoded message, §4.2 steps 3-6), then
// enqueues the built bytes for every target in targets for which
// selector returns true. The message is built exactly once regardless of
// how many targets match. The message is rejected up front if it alone
// cannot fit in an MTU-sized packet (see Flush for the same check
// applied during packing).
func (w *Writer) CreateMessage(msgType uint8, hdr MessageHeader, targets []*Target, selector TargetSelector) error {
	providers := w.providers[msgType]
	if len(providers) == 0 {
		return fmt.Errorf("create message type %d: %w", msgType, ErrNoContentProvider)
	}

	var tlvs []TLVSpec
	var blocks []AddressBlockSpec
	for _, p := range providers {
		tlvs = append(tlvs, p.AddMessageTLVs(msgType)...)
		blocks = append(blocks, p.AddAddresses(msgType)...)
	}

	var buf bytes.Buffer
	if err := EncodeMessage(&buf, hdr, tlvs, blocks); err != nil {
		return fmt.Errorf("create message type %d: %w", msgType, err)
	}

	if buf.Len() > w.mtu-packetHeaderBudget {
		return fmt.Errorf("create message type %d (%d bytes): %w", msgType, buf.Len(), ErrMessageTooLargeForMTU)
	}

	for _, t := range targets {
		if selector(t) {
			w.enqueue(t, buf.Bytes())
		}
	}
	return nil
}

// CreateMessageFor is CreateMessage restricted to the single target the
// caller already holds, the common case of addressing one interface's
// aggregation target directly.
func (w *Writer) CreateMessageFor(msgType uint8, hdr MessageHeader, target *Target) error {
	return w.CreateMessage(msgType, hdr, []*Target{target}, SingleTarget(target))
}

// ForwardMessage enqueues a message's raw wire bytes for re-transmission
// without re-encoding it, as required when relaying a message this node
// did not originate (spec §4.5/§9): the forwarded bytes are opaque to
// the writer, only hop-limit/hop-count having been adjusted by the
// caller beforehand.
func (w *Writer) ForwardMessage(target *Target, rawMessage []byte) error {
	if len(rawMessage) > w.mtu-packetHeaderBudget {
		return fmt.Errorf("forward message (%d bytes): %w", len(rawMessage), ErrMessageTooLargeForMTU)
	}
	w.enqueue(target, rawMessage)
	return nil
}

func (w *Writer) enqueue(t *Target, msg []byte) {
	cp := make([]byte, len(msg))
	copy(cp, msg)
	w.pending[t] = append(w.pending[t], cp)
}

// Pending reports how many messages are queued for target.
func (w *Writer) Pending(t *Target) int {
	return len(w.pending[t])
}

// packetHeaderBudget reserves room for the largest packet header this
// writer ever emits (version/flags byte + 2-byte sequence number).
const packetHeaderBudget = 3

// Flush packs every message queued for target into as few MTU-sized
// packets as possible, assigning each packet a fresh sequence number via
// target.nextPacketSeqNum, and clears the queue. A single message that
// does not fit into an otherwise-empty packet is a hard error: RFC 5444
// packets are not fragmented across datagrams (spec §8 Scenario F).
func (w *Writer) Flush(target *Target) ([][]byte, error) {
	msgs := w.pending[target]
	if len(msgs) == 0 {
		return nil, nil
	}
	delete(w.pending, target)

	var packets [][]byte
	var cur bytes.Buffer

	startPacket := func() {
		cur.Reset()
		seq, hasSeq := target.nextPacketSeqNum()
		_ = EncodePacketHeader(&cur, hasSeq, seq, nil)
	}
	startPacket()

	for _, m := range msgs {
		if cur.Len()+len(m) > w.mtu {
			if cur.Len() <= packetHeaderBudget {
				return nil, fmt.Errorf("flush target: message of %d bytes: %w", len(m), ErrMessageTooLargeForMTU)
			}
			packets = append(packets, append([]byte(nil), cur.Bytes()...))
			startPacket()
			if cur.Len()+len(m) > w.mtu {
				return nil, fmt.Errorf("flush target: message of %d bytes: %w", len(m), ErrMessageTooLargeForMTU)
			}
		}
		cur.Write(m)
	}
	packets = append(packets, append([]byte(nil), cur.Bytes()...))

	w.logger.Debug("flushed target",
		slog.Int("messages", len(msgs)),
		slog.Int("packets", len(packets)))
	return packets, nil
}
