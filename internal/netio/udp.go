package netio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// pollInterval bounds how long Recv blocks on a single read before
// re-checking ctx, so cancellation is observed promptly without
// requiring a dedicated watchdog goroutine per transport.
const pollInterval = 500 * time.Millisecond

// ACL is an accept/deny address list applied to inbound packets: a
// packet is permitted if it matches no Deny prefix and either Allow is
// empty or it matches an Allow prefix (spec.md §6's "acl (accept/deny
// address list)").
type ACL struct {
	Allow []netip.Prefix
	Deny  []netip.Prefix
}

// Permit reports whether addr is allowed to pass this ACL.
func (a ACL) Permit(addr netip.Addr) bool {
	for _, d := range a.Deny {
		if d.Contains(addr) {
			return false
		}
	}
	if len(a.Allow) == 0 {
		return true
	}
	for _, al := range a.Allow {
		if al.Contains(addr) {
			return true
		}
	}
	return false
}

// UDPTransport is the reference Transport implementation: one UDP
// socket bound to bindAddr/port, joined to group on ifaceName if group
// is a multicast address, filtering inbound packets through acl.
type UDPTransport struct {
	conn   *net.UDPConn
	pconn4 *ipv4.PacketConn
	pconn6 *ipv6.PacketConn
	isV6   bool
	port   uint16
	acl    ACL
	mu     sync.Mutex
	closed bool
}

// NewUDPTransport creates a UDPTransport bound to bindAddr on port
// (ifaceName is used only for the multicast join; the socket is not
// bound to the device), joining group if it holds a valid multicast address, and
// dropping any inbound packet acl rejects. The address family is
// auto-detected from group (falling back to IPv4 when group is not
// set); bindAddr, if set, must agree with group's family.
func NewUDPTransport(ifaceName string, bindAddr, group netip.Addr, port uint16, acl ACL) (*UDPTransport, error) {
	isV6 := group.Is6() && !group.Is4In6()

	network := "udp4"
	if isV6 {
		network = "udp6"
	}

	var ifi *net.Interface
	if ifaceName != "" {
		found, err := net.InterfaceByName(ifaceName)
		if err != nil {
			return nil, fmt.Errorf("lookup interface %s: %w", ifaceName, err)
		}
		ifi = found
	}

	var bindIP net.IP
	if bindAddr.IsValid() {
		bindIP = net.IP(bindAddr.AsSlice())
	}

	conn, err := net.ListenUDP(network, &net.UDPAddr{IP: bindIP, Port: int(port)})
	if err != nil {
		return nil, fmt.Errorf("listen udp %s:%d: %w", ifaceName, port, err)
	}

	t := &UDPTransport{conn: conn, isV6: isV6, port: port, acl: acl}

	if group.IsValid() && group.IsMulticast() {
		if isV6 {
			t.pconn6 = ipv6.NewPacketConn(conn)
			if joinErr := t.pconn6.JoinGroup(ifi, &net.UDPAddr{IP: net.IP(group.AsSlice())}); joinErr != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("join ipv6 group %s on %s: %w", group, ifaceName, joinErr)
			}
		} else {
			t.pconn4 = ipv4.NewPacketConn(conn)
			if joinErr := t.pconn4.JoinGroup(ifi, &net.UDPAddr{IP: net.IP(group.AsSlice())}); joinErr != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("join ipv4 group %s on %s: %w", group, ifaceName, joinErr)
			}
		}
	}

	return t, nil
}

// Recv implements Transport.
func (t *UDPTransport) Recv(ctx context.Context) ([]byte, PacketMeta, error) {
	buf := make([]byte, 65535)

	for {
		if err := ctx.Err(); err != nil {
			return nil, PacketMeta{}, fmt.Errorf("udp transport recv: %w", err)
		}

		if err := t.conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
			return nil, PacketMeta{}, fmt.Errorf("set read deadline: %w", err)
		}

		n, src, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if closed {
				return nil, PacketMeta{}, fmt.Errorf("udp transport recv: %w", ErrClosed)
			}
			return nil, PacketMeta{}, fmt.Errorf("udp transport read: %w", err)
		}

		addr, ok := netip.AddrFromSlice(src.IP)
		if !ok {
			continue
		}
		addr = addr.Unmap()

		if !t.acl.Permit(addr) {
			continue
		}

		return buf[:n], PacketMeta{SrcAddr: addr}, nil
	}
}

// Send implements Transport and rfc5444.Sender.
func (t *UDPTransport) Send(_ context.Context, dst netip.Addr, data []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("udp transport send to %s: %w", dst, ErrClosed)
	}
	t.mu.Unlock()

	udpAddr := net.UDPAddrFromAddrPort(netip.AddrPortFrom(dst, t.port))
	if _, err := t.conn.WriteToUDP(data, udpAddr); err != nil {
		return fmt.Errorf("udp transport send to %s: %w", dst, err)
	}
	return nil
}

// LocalAddr returns the local address and port the socket is bound to.
func (t *UDPTransport) LocalAddr() netip.AddrPort {
	addr, ok := t.conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return netip.AddrPort{}
	}
	return addr.AddrPort()
}

// Close implements Transport.
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	if err := t.conn.Close(); err != nil {
		return fmt.Errorf("close udp transport: %w", err)
	}
	return nil
}
