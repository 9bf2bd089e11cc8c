package node

import (
	"net"
	"sync"

	"github.com/nbcluster/nbcluster/pkg/netbios"
)

// listenerSet holds the node-level listeners. Add/remote name
// listeners live on the tables themselves (pkg/netbios/table); this set
// covers the two kinds the node fires directly: an incoming query for a
// name this node owns, and a dropped refresh.
type listenerSet struct {
	mu           sync.Mutex
	query        []netbios.QueryNameListener
	refreshIOErr []RefreshIOErrorListener
}

// RefreshIOErrorListener is notified when a WINS RefreshName request
// completes negatively or fails to send; the name is dropped and this
// fires instead of the add-failed path.
type RefreshIOErrorListener func(n netbios.NetBIOSName)

func (s *listenerSet) addQueryListener(f netbios.QueryNameListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = append(s.query, f)
}

func (s *listenerSet) addRefreshIOErrorListener(f RefreshIOErrorListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshIOErr = append(s.refreshIOErr, f)
}

func (s *listenerSet) fireQuery(n netbios.NetBIOSName, from net.Addr) {
	s.mu.Lock()
	snapshot := append([]netbios.QueryNameListener(nil), s.query...)
	s.mu.Unlock()

	for _, f := range snapshot {
		f(n, from)
	}
}

func (s *listenerSet) fireRefreshIOError(n netbios.NetBIOSName) {
	s.mu.Lock()
	snapshot := append([]RefreshIOErrorListener(nil), s.refreshIOErr...)
	s.mu.Unlock()

	for _, f := range snapshot {
		f(n)
	}
}
