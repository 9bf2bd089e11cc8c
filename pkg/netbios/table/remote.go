package table

import (
	"sync"

	"github.com/nbcluster/nbcluster/pkg/netbios"
)

// Remote is the advisory, non-persisted table of names last observed
// owned by other hosts, learned from registrations and refreshes seen
// on the wire.
type Remote struct {
	mu        sync.Mutex
	entries   map[netbios.Key]netbios.NetBIOSName
	listeners []netbios.RemoteNameListener
}

// NewRemote builds an empty remote name table.
func NewRemote() *Remote {
	return &Remote{entries: make(map[netbios.Key]netbios.NetBIOSName)}
}

// Upsert records or refreshes an observed remote name.
func (t *Remote) Upsert(n netbios.NetBIOSName) {
	t.mu.Lock()
	t.entries[n.Key()] = n
	listeners := append([]netbios.RemoteNameListener(nil), t.listeners...)
	t.mu.Unlock()

	for _, l := range listeners {
		l(n, false)
	}
}

// Remove drops a name a NameRelease was observed for.
func (t *Remote) Remove(name string, typ byte) {
	t.mu.Lock()
	key := netbios.Key{Name: name, Type: typ}
	n, ok := t.entries[key]
	if ok {
		delete(t.entries, key)
	}
	listeners := append([]netbios.RemoteNameListener(nil), t.listeners...)
	t.mu.Unlock()

	if ok {
		for _, l := range listeners {
			l(n, true)
		}
	}
}

// Find looks up the last-seen owner of a remote name.
func (t *Remote) Find(name string, typ byte) (netbios.NetBIOSName, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.entries[netbios.Key{Name: name, Type: typ}]
	return n, ok
}

// AddListener registers f to be called on every Upsert/Remove.
func (t *Remote) AddListener(f netbios.RemoteNameListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, f)
}
