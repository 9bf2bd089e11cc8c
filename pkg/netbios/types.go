// Package netbios implements the RFC1001 name service node: wire codec,
// local/remote name tables, the request/retry engine, and the UDP
// receive loop that ties them together.
package netbios

import (
	"net"
	"time"
)

// Name type selectors recognized by the node. NetBIOS reserves the
// trailing byte of every 16-byte name as a type/service discriminator;
// these are the ones the node itself registers or queries for.
const (
	TypeWorkstation  byte = 0x00
	TypeFileServer   byte = 0x20
	TypeDomainMaster byte = 0x1B
)

// NetBIOSName is the identity of a name this node owns or has observed.
type NetBIOSName struct {
	Name      string
	Type      byte
	Group     bool
	Addresses []net.IP
	TTL       time.Duration
	Expiry    time.Time
}

// Key identifies a name independent of its addresses or TTL; the tables
// are keyed on (Name, Type).
type Key struct {
	Name string
	Type byte
}

func (n NetBIOSName) Key() Key { return Key{Name: n.Name, Type: n.Type} }

// Expired reports whether n's TTL has elapsed as of now.
func (n NetBIOSName) Expired(now time.Time) bool {
	return !n.Expiry.IsZero() && now.After(n.Expiry)
}

// AddNameListener is notified after a name is successfully added to the
// local table.
type AddNameListener func(n NetBIOSName)

// QueryNameListener is notified when this node answers a NameQuery for
// one of its own names.
type QueryNameListener func(n NetBIOSName, from net.Addr)

// RemoteNameListener is notified when the remote table gains, refreshes,
// or loses an entry.
type RemoteNameListener func(n NetBIOSName, removed bool)
