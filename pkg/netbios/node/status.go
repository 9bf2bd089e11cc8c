package node

import (
	"github.com/nbcluster/nbcluster/pkg/netbios"
	"github.com/nbcluster/nbcluster/pkg/netbios/wire"
)

// statusWildcard is the well-known adapter-status query name: a literal
// '*' followed by 14 zero bytes and type 0x00, per RFC1002 §4.2.18.
var statusWildcard = func() [wire.RawNameLen]byte {
	var raw [wire.RawNameLen]byte
	raw[0] = '*'
	return raw
}()

// isAdapterStatusQuery reports whether raw is the NBSTAT wildcard name.
func isAdapterStatusQuery(raw [wire.RawNameLen]byte) bool {
	return raw == statusWildcard
}

// buildNodeStatusReply converts the local table into NBSTAT entries.
func buildNodeStatusReply(names []netbios.NetBIOSName) []wire.NodeNameEntry {
	entries := make([]wire.NodeNameEntry, 0, len(names))
	for _, n := range names {
		flags := wire.NameFlagActive
		if n.Group {
			flags |= wire.NameFlagGroup
		}
		entries = append(entries, wire.NodeNameEntry{
			Raw:   wirePadName(n),
			Flags: flags,
		})
	}
	return entries
}

func wirePadName(n netbios.NetBIOSName) [wire.RawNameLen]byte {
	return wire.PadName(n.Name, n.Type)
}
