package netio

import (
	"context"
	"errors"
	"net/netip"
)

// PacketMeta carries transport-layer metadata about a received packet.
type PacketMeta struct {
	// SrcAddr is the source address the packet arrived from.
	SrcAddr netip.Addr

	// IfIndex is the interface index the packet was received on.
	// UDPTransport.Recv does not fill it in; it is always zero there.
	IfIndex int
}

// Transport abstracts RFC 5444 packet send/receive over a network
// interface. Implementations own one socket per interface/address
// family and handle multicast group membership.
type Transport interface {
	// Recv blocks until a packet is received or ctx is cancelled.
	// The returned slice is only valid until the next call to Recv.
	Recv(ctx context.Context) ([]byte, PacketMeta, error)

	// Send transmits data to dst. Satisfies rfc5444.Sender.
	Send(ctx context.Context, dst netip.Addr, data []byte) error

	// Close releases the underlying socket.
	Close() error
}

// Sentinel errors.
var (
	// ErrClosed indicates an operation on a closed transport.
	ErrClosed = errors.New("transport closed")

	// ErrUnexpectedConnType indicates net.ListenConfig.ListenPacket
	// returned a connection type other than *net.UDPConn.
	ErrUnexpectedConnType = errors.New("unexpected connection type")
)
