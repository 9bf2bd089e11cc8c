// Package table holds the node's local (owned) and remote (observed)
// NetBIOS name tables.
package table

import (
	"sync"

	"github.com/nbcluster/nbcluster/pkg/netbios"
)

// Local is the ordered set of names this node owns. Inserts are
// idempotent: adding a name already present by (Name, Type) replaces its
// record in place rather than appending a duplicate.
type Local struct {
	mu      sync.Mutex
	order   []netbios.Key
	entries map[netbios.Key]netbios.NetBIOSName

	listeners []netbios.AddNameListener
}

// NewLocal builds an empty local name table.
func NewLocal() *Local {
	return &Local{entries: make(map[netbios.Key]netbios.NetBIOSName)}
}

// Add inserts or replaces n and fires registered listeners. Listeners
// are invoked after the lock is released against a snapshot, so a
// listener can safely call back into the table.
func (t *Local) Add(n netbios.NetBIOSName) {
	t.mu.Lock()
	key := n.Key()
	if _, exists := t.entries[key]; !exists {
		t.order = append(t.order, key)
	}
	t.entries[key] = n
	listeners := append([]netbios.AddNameListener(nil), t.listeners...)
	t.mu.Unlock()

	for _, l := range listeners {
		l(n)
	}
}

// Remove deletes the name keyed by (name, typ), if present.
func (t *Local) Remove(name string, typ byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := netbios.Key{Name: name, Type: typ}
	if _, ok := t.entries[key]; !ok {
		return
	}
	delete(t.entries, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Find looks up a name by (name, typ).
func (t *Local) Find(name string, typ byte) (netbios.NetBIOSName, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.entries[netbios.Key{Name: name, Type: typ}]
	return n, ok
}

// All returns a snapshot of every owned name, in insertion order.
func (t *Local) All() []netbios.NetBIOSName {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]netbios.NetBIOSName, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.entries[k])
	}
	return out
}

// AddListener registers f to be called whenever Add succeeds.
func (t *Local) AddListener(f netbios.AddNameListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, f)
}

// UpdateExpiry refreshes the TTL/expiry of an existing entry in place,
// used by the refresh scheduler after a positive response.
func (t *Local) UpdateExpiry(name string, typ byte, expiry netbios.NetBIOSName) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := netbios.Key{Name: name, Type: typ}
	if cur, ok := t.entries[key]; ok {
		cur.Expiry = expiry.Expiry
		cur.TTL = expiry.TTL
		t.entries[key] = cur
	}
}
