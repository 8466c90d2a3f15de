// Package rfc5444 implements the RFC 5444 generalized MANET packet/message
// format: a byte-exact reader and writer, a consumer dispatch layer, a
// Protocol/Interface/Target multiplex tree, and a duplicate/forwarding set.
//
// The wire codec (packet.go, message.go, tlv.go, addrblock.go) is
// transport-agnostic: it reads and writes byte slices only. Everything that
// talks to a socket lives in internal/netio.
package rfc5444
