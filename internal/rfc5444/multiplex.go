package rfc5444

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"time"
)

// Sender delivers an already-packed packet to one destination address.
// internal/netio's Transport implements this for real sockets; tests use
// a fake.
type Sender interface {
	Send(ctx context.Context, dst netip.Addr, data []byte) error
}

// Registry is the root of the Protocol/Interface/Target tree. Protocols,
// interfaces, and targets are all refcounted: a second Add call for the
// same name bumps the refcount instead of creating a duplicate, and
// removal only tears the object down once its refcount reaches zero.
// This mirrors olsr_rfc5444.c's olsr_rfc5444_add_protocol/add_interface/
// add_target family.
type Registry struct {
	protocols map[string]*Protocol
	logger    *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		protocols: make(map[string]*Protocol),
		logger:    logger.With(slog.String("component", "rfc5444.multiplex")),
	}
}

// AddProtocol returns the Protocol named name, creating it (with its own
// Reader, Writer, and duplicate/forwarding sets) on first reference.
func (reg *Registry) AddProtocol(name string, aggregationInterval time.Duration, mtu int) *Protocol {
	if p, ok := reg.protocols[name]; ok {
		p.refcount++
		return p
	}
	p := &Protocol{
		Name:                name,
		AggregationInterval: aggregationInterval,
		MTU:                 mtu,
		reader:              NewReader(reg.logger),
		writer:              NewWriter(mtu, reg.logger),
		processedSet:        NewDuplicateSet(),
		forwardedSet:        NewDuplicateSet(),
		interfaces:          make(map[string]*Interface),
		refcount:            1,
		logger:              reg.logger.With(slog.String("protocol", name)),
	}
	reg.protocols[name] = p
	return p
}

// RemoveProtocol decrements the named protocol's refcount, destroying it
// once it reaches zero.
func (reg *Registry) RemoveProtocol(name string) error {
	p, ok := reg.protocols[name]
	if !ok {
		return fmt.Errorf("remove protocol %q: %w", name, ErrNoSuchProtocol)
	}
	p.refcount--
	if p.refcount <= 0 {
		delete(reg.protocols, name)
	}
	return nil
}

// Protocol looks up a registered protocol by name.
func (reg *Registry) Protocol(name string) (*Protocol, bool) {
	p, ok := reg.protocols[name]
	return p, ok
}

// Protocols returns every currently registered protocol, for
// introspection (internal/server).
func (reg *Registry) Protocols() []*Protocol {
	out := make([]*Protocol, 0, len(reg.protocols))
	for _, p := range reg.protocols {
		out = append(out, p)
	}
	return out
}

// Protocol is the root of one RFC 5444 wire-format instance: one Reader,
// one Writer, one pair of duplicate/forwarding sets, and the interfaces
// it runs on.
type Protocol struct {
	Name                string
	AggregationInterval time.Duration
	MTU                 int

	reader       *Reader
	writer       *Writer
	processedSet *DuplicateSet
	forwardedSet *DuplicateSet

	interfaces map[string]*Interface
	refcount   int

	// pktSeqnoRefcount, when > 0, forces every target of every interface
	// under this protocol to carry a packet sequence number even if the
	// target itself has no reason to (olsr_rfc5444.c's _cb_add_seqno).
	pktSeqnoRefcount int

	logger *slog.Logger
}

// Reader returns the protocol's shared Reader for consumer registration.
func (p *Protocol) Reader() *Reader { return p.reader }

// Writer returns the protocol's shared Writer for content-provider
// registration and message creation.
func (p *Protocol) Writer() *Writer { return p.writer }

// RequireSequenceNumbers arms (delta=+1) or disarms (delta=-1) the
// protocol-wide packet sequence number requirement.
func (p *Protocol) RequireSequenceNumbers(delta int) {
	p.pktSeqnoRefcount += delta
}

// ProcessPacket decodes and dispatches buf via the protocol's Reader and
// returns the decoded Packet so the caller (the daemon's receive loop)
// can decide whether to forward any of its messages. It does not consult
// or update the processed-message duplicate set: every decoded message
// is dispatched to the matching consumers, repeats included.
func (p *Protocol) ProcessPacket(buf []byte) (Packet, error) {
	pkt, err := p.reader.ParsePacket(buf)
	if err != nil {
		return Packet{}, err
	}
	return pkt, nil
}

// ProcessForward runs a decoded message against this protocol's
// forwarded-message duplicate set and returns the re-encoded bytes to
// re-flood when the message is new/newest, not self-originated, and
// still has hops to spend. vtime bounds how long the forwarded-set
// entry survives before eviction (olsr_rfc5444.c's per-message
// forwarding pipeline, split across duplicate.go and forward.go).
func (p *Protocol) ProcessForward(msg Message, self netip.Addr, vtime time.Duration) ([]byte, bool, error) {
	if !msg.Header.HasSeqNum {
		// No sequence number means no duplicate/forwarding set entry to
		// key on; fall back to the hop-limit/originator checks alone.
		if !ShouldForward(ResultNewest, msg.Header, self) {
			return nil, false, nil
		}
		raw, err := PrepareForward(msg)
		if err != nil {
			return nil, false, fmt.Errorf("prepare forward: %w", err)
		}
		return raw, true, nil
	}

	result := p.forwardedSet.Add(msg.Header.Type, msg.Header.Originator, msg.Header.SeqNum, vtime)
	if !ShouldForward(result, msg.Header, self) {
		return nil, false, nil
	}
	raw, err := PrepareForward(msg)
	if err != nil {
		return nil, false, fmt.Errorf("prepare forward: %w", err)
	}
	return raw, true, nil
}

// AddInterface returns the named Interface under this protocol, creating
// it on first reference.
func (p *Protocol) AddInterface(name string) *Interface {
	if i, ok := p.interfaces[name]; ok {
		i.refcount++
		return i
	}
	i := &Interface{
		Name:     name,
		protocol: p,
		targets:  make(map[netip.Addr]*Target),
		refcount: 1,
	}
	p.interfaces[name] = i
	return i
}

// RemoveInterface decrements the named interface's refcount, destroying
// it (and implicitly orphaning its targets) once it reaches zero.
func (p *Protocol) RemoveInterface(name string) error {
	i, ok := p.interfaces[name]
	if !ok {
		return fmt.Errorf("remove interface %q: %w", name, ErrNoSuchInterface)
	}
	i.refcount--
	if i.refcount <= 0 {
		delete(p.interfaces, name)
	}
	return nil
}

// Interface looks up a registered interface by name.
func (p *Protocol) Interface(name string) (*Interface, bool) {
	i, ok := p.interfaces[name]
	return i, ok
}

// Targets returns every target across all of this protocol's interfaces,
// the candidate set CreateMessage selects from.
func (p *Protocol) Targets() []*Target {
	var out []*Target
	for _, i := range p.interfaces {
		out = append(out, i.Targets()...)
	}
	return out
}

// CreateMessage builds one message of msgType via the protocol's Writer,
// consulting all of its registered content providers, and enqueues it
// for every target (across all of this protocol's interfaces) for which
// selector returns true.
func (p *Protocol) CreateMessage(msgType uint8, hdr MessageHeader, selector TargetSelector) error {
	return p.writer.CreateMessage(msgType, hdr, p.Targets(), selector)
}

// Interfaces returns the names of all registered interfaces, for
// introspection (internal/server).
func (p *Protocol) Interfaces() []string {
	names := make([]string, 0, len(p.interfaces))
	for name := range p.interfaces {
		names = append(names, name)
	}
	return names
}

// Interface is one network interface a Protocol runs on: the set of
// destination Targets (unicast peers and/or the IPv4/IPv6 multicast
// groups) reachable through it.
type Interface struct {
	Name     string
	protocol *Protocol
	targets  map[netip.Addr]*Target
	refcount int
}

// AddTarget returns the Target for dst under this interface, creating it
// (with its own packet sequence counter) on first
// reference. sender performs the actual datagram transmission.
func (i *Interface) AddTarget(dst netip.Addr, sender Sender) *Target {
	if t, ok := i.targets[dst]; ok {
		t.refcount++
		return t
	}
	t := &Target{
		Addr:      dst,
		iface:     i,
		sender:    sender,
		active:    true,
		refcount:  1,
	}
	i.targets[dst] = t
	return t
}

// RemoveTarget decrements dst's refcount, destroying (deactivating) the
// target once it reaches zero.
func (i *Interface) RemoveTarget(dst netip.Addr) error {
	t, ok := i.targets[dst]
	if !ok {
		return fmt.Errorf("remove target %s: %w", dst, ErrNoSuchTarget)
	}
	t.refcount--
	if t.refcount <= 0 {
		t.active = false
		delete(i.targets, dst)
	}
	return nil
}

// Target looks up a registered target by destination address.
func (i *Interface) Target(dst netip.Addr) (*Target, bool) {
	t, ok := i.targets[dst]
	return t, ok
}

// Targets returns every target currently registered on this interface.
func (i *Interface) Targets() []*Target {
	out := make([]*Target, 0, len(i.targets))
	for _, t := range i.targets {
		out = append(out, t)
	}
	return out
}

// Protocol returns the owning protocol.
func (i *Interface) Protocol() *Protocol { return i.protocol }

// Target is one destination this node sends RFC 5444 packets to: a
// single unicast peer, or the interface's IPv4/IPv6 multicast group.
type Target struct {
	Addr netip.Addr

	iface    *Interface
	sender   Sender
	active   bool
	refcount int

	pktSeqnoRefcount int
	pktSeqno         uint16
}

// RequireSequenceNumbers arms (delta=+1) or disarms (delta=-1) this
// target's own packet sequence number requirement, independent of its
// owning protocol's requirement (see nextPacketSeqNum).
func (t *Target) RequireSequenceNumbers(delta int) {
	t.pktSeqnoRefcount += delta
}

// nextPacketSeqNum returns the next packet sequence number for this
// target and whether one should be carried at all. Per spec's resolved
// Open Question (and olsr_rfc5444.c's _cb_add_seqno), sequencing is
// target-local: it is enabled by either this target's own refcount or
// its owning protocol's refcount, but the counter itself always belongs
// to the target, never to the protocol.
func (t *Target) nextPacketSeqNum() (uint16, bool) {
	if t.pktSeqnoRefcount <= 0 && t.iface.protocol.pktSeqnoRefcount <= 0 {
		return 0, false
	}
	t.pktSeqno++
	return t.pktSeqno, true
}

// Active reports whether the target currently accepts new messages.
func (t *Target) Active() bool { return t.active }

// Interface returns the owning interface.
func (t *Target) Interface() *Interface { return t.iface }

// Send transmits an already-packed packet to this target via its
// Sender. Returns ErrTargetNotActive if the target has been torn down.
func (t *Target) Send(ctx context.Context, data []byte) error {
	if !t.active {
		return fmt.Errorf("send to %s: %w", t.Addr, ErrTargetNotActive)
	}
	if err := t.sender.Send(ctx, t.Addr, data); err != nil {
		return fmt.Errorf("send to %s: %w", t.Addr, err)
	}
	return nil
}
