package table

import (
	"testing"

	"github.com/nbcluster/nbcluster/pkg/netbios"
	"github.com/stretchr/testify/assert"
)

func TestLocal_AddDeleteAddLeavesOneEntry(t *testing.T) {
	l := NewLocal()
	n := netbios.NetBIOSName{Name: "JFILESRV", Type: netbios.TypeFileServer}

	l.Add(n)
	l.Remove(n.Name, n.Type)
	l.Add(n)

	all := l.All()
	assert.Len(t, all, 1)
	assert.Equal(t, "JFILESRV", all[0].Name)
}

func TestLocal_AddFiresListenerWithoutHoldingLock(t *testing.T) {
	l := NewLocal()
	var got netbios.NetBIOSName
	l.AddListener(func(n netbios.NetBIOSName) {
		got = n
		// Reentrant call from inside the listener must not deadlock.
		l.Find(n.Name, n.Type)
	})

	l.Add(netbios.NetBIOSName{Name: "NODE1", Type: netbios.TypeWorkstation})
	assert.Equal(t, "NODE1", got.Name)
}

func TestLocal_AddIsIdempotentBySameKey(t *testing.T) {
	l := NewLocal()
	l.Add(netbios.NetBIOSName{Name: "A", Type: netbios.TypeFileServer, TTL: 1})
	l.Add(netbios.NetBIOSName{Name: "A", Type: netbios.TypeFileServer, TTL: 2})

	all := l.All()
	assert.Len(t, all, 1)
}

func TestRemote_UpsertAndRemove(t *testing.T) {
	r := NewRemote()
	n := netbios.NetBIOSName{Name: "PEER", Type: netbios.TypeFileServer}
	r.Upsert(n)

	got, ok := r.Find("PEER", netbios.TypeFileServer)
	assert.True(t, ok)
	assert.Equal(t, n.Name, got.Name)

	r.Remove("PEER", netbios.TypeFileServer)
	_, ok = r.Find("PEER", netbios.TypeFileServer)
	assert.False(t, ok)
}

func TestRemote_RemoveFiresListenerOnlyWhenPresent(t *testing.T) {
	r := NewRemote()
	calls := 0
	r.AddListener(func(n netbios.NetBIOSName, removed bool) { calls++ })

	r.Remove("GHOST", netbios.TypeFileServer)
	assert.Equal(t, 0, calls)

	r.Upsert(netbios.NetBIOSName{Name: "GHOST", Type: netbios.TypeFileServer})
	r.Remove("GHOST", netbios.TypeFileServer)
	assert.Equal(t, 2, calls)
}
