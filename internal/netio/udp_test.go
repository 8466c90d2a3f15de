package netio_test

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/oonf-project/rfc5444d/internal/netio"
)

func TestUDPTransport_SendRecvLoopback(t *testing.T) {
	t.Parallel()

	server, err := netio.NewUDPTransport("", netip.Addr{}, netip.Addr{}, 0, netio.ACL{})
	if err != nil {
		t.Fatalf("NewUDPTransport(server) error: %v", err)
	}
	defer server.Close()

	client, err := netio.NewUDPTransport("", netip.Addr{}, netip.Addr{}, 0, netio.ACL{})
	if err != nil {
		t.Fatalf("NewUDPTransport(client) error: %v", err)
	}
	defer client.Close()

	dst := server.LocalAddr()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	want := []byte{0xde, 0xad, 0xbe, 0xef}

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Send(ctx, dst.Addr(), want)
	}()

	got, meta, err := server.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv() error: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if string(got) != string(want) {
		t.Errorf("Recv() payload = %x, want %x", got, want)
	}
	if !meta.SrcAddr.IsValid() {
		t.Error("Recv() meta.SrcAddr is invalid")
	}
}

func TestUDPTransport_SendAfterCloseFails(t *testing.T) {
	t.Parallel()

	tr, err := netio.NewUDPTransport("", netip.Addr{}, netip.Addr{}, 0, netio.ACL{})
	if err != nil {
		t.Fatalf("NewUDPTransport() error: %v", err)
	}

	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	// Second close must be a no-op.
	if err := tr.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}

	err = tr.Send(context.Background(), netip.MustParseAddr("127.0.0.1"), []byte("x"))
	if err == nil {
		t.Fatal("Send() after Close() returned nil error")
	}
}

func TestACL_Permit(t *testing.T) {
	t.Parallel()

	allowed := netip.MustParsePrefix("2001:db8::/32")
	denied := netip.MustParsePrefix("2001:db8::dead/128")

	acl := netio.ACL{Allow: []netip.Prefix{allowed}, Deny: []netip.Prefix{denied}}

	if !acl.Permit(netip.MustParseAddr("2001:db8::1")) {
		t.Error("Permit() = false for address inside Allow and outside Deny, want true")
	}
	if acl.Permit(netip.MustParseAddr("2001:db8::dead")) {
		t.Error("Permit() = true for address matching Deny, want false")
	}
	if acl.Permit(netip.MustParseAddr("2001:db9::1")) {
		t.Error("Permit() = true for address outside Allow, want false")
	}

	empty := netio.ACL{}
	if !empty.Permit(netip.MustParseAddr("192.0.2.1")) {
		t.Error("Permit() = false for empty ACL, want true (no restriction)")
	}
}

func TestUDPTransport_RecvDropsPacketsDeniedByACL(t *testing.T) {
	t.Parallel()

	loopback := netip.MustParseAddr("127.0.0.1")
	denyLoopback := netio.ACL{Deny: []netip.Prefix{netip.PrefixFrom(loopback, 32)}}

	server, err := netio.NewUDPTransport("", netip.Addr{}, netip.Addr{}, 0, denyLoopback)
	if err != nil {
		t.Fatalf("NewUDPTransport(server) error: %v", err)
	}
	defer server.Close()

	client, err := netio.NewUDPTransport("", netip.Addr{}, netip.Addr{}, 0, netio.ACL{})
	if err != nil {
		t.Fatalf("NewUDPTransport(client) error: %v", err)
	}
	defer client.Close()

	dst := server.LocalAddr()

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Send(ctx, dst.Addr(), []byte{0x01})
	}()
	if err := <-errCh; err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	_, _, err = server.Recv(ctx)
	if err == nil {
		t.Fatal("Recv() returned nil error, want context deadline after the packet was dropped by ACL")
	}
}

func TestUDPTransport_RecvRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	tr, err := netio.NewUDPTransport("", netip.Addr{}, netip.Addr{}, 0, netio.ACL{})
	if err != nil {
		t.Fatalf("NewUDPTransport() error: %v", err)
	}
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, _, recvErr := tr.Recv(ctx)
		done <- recvErr
	}()

	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Recv() returned nil error after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Recv() did not return within 2s of context cancellation")
	}
}
