// Package netio provides the UDP transport used to send and receive
// RFC 5444 packets on a network interface, including link-local
// multicast group membership.
//
// Uses golang.org/x/net/ipv4 and golang.org/x/net/ipv6 for multicast
// group join, mirroring the socket-setup shape of the BFD daemon's
// raw UDP listener but without its GTSM TTL checks and
// SO_BINDTODEVICE raw-socket handling, which are specific to BFD's
// single-hop/multi-hop distinction and out of scope here.
package netio
