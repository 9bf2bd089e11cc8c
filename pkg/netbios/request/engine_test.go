package request

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nbcluster/nbcluster/pkg/netbios"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu         sync.Mutex
	unicasts   int
	broadcasts int
}

func (f *fakeTransport) SendUnicast(buf []byte, addr *net.UDPAddr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unicasts++
	return nil
}

func (f *fakeTransport) SendBroadcast(buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts++
	return nil
}

func buildTestPacket(r *Request) []byte { return []byte{byte(r.Kind)} }

func TestEngine_BroadcastExhaustionAssumesSuccess(t *testing.T) {
	q := NewQueue()
	tr := &fakeTransport{}
	e := NewEngine(q, tr, buildTestPacket, nil)

	var successes atomic.Int32
	e.OnSuccess = func(r *Request) { successes.Add(1) }

	r := NewRequest(KindAdd, netbios.NetBIOSName{Name: "JFILESRV"}, 1)
	r.RetryInterval = time.Millisecond
	r.MaxRetries = 3
	q.Enqueue(r)

	go e.Run()
	defer e.Stop()

	require.Eventually(t, func() bool { return successes.Load() == 1 }, time.Second, time.Millisecond)
	assert.True(t, r.Positive)
}

func TestEngine_WINSExhaustionFails(t *testing.T) {
	q := NewQueue()
	tr := &fakeTransport{}
	wins := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 137}
	e := NewEngine(q, tr, buildTestPacket, wins)

	var failures atomic.Int32
	e.OnFailed = func(r *Request) { failures.Add(1) }

	r := NewRequest(KindAdd, netbios.NetBIOSName{Name: "JFILESRV"}, 2)
	r.RetryInterval = time.Millisecond
	r.MaxRetries = 2
	q.Enqueue(r)

	go e.Run()
	defer e.Stop()

	require.Eventually(t, func() bool { return failures.Load() == 1 }, time.Second, time.Millisecond)
	assert.False(t, r.Positive)
	assert.True(t, tr.unicasts >= 2)
}

func TestEngine_CompleteStopsRetriesEarly(t *testing.T) {
	q := NewQueue()
	tr := &fakeTransport{}
	e := NewEngine(q, tr, buildTestPacket, nil)

	var successes atomic.Int32
	e.OnSuccess = func(r *Request) { successes.Add(1) }

	r := NewRequest(KindAdd, netbios.NetBIOSName{Name: "JFILESRV"}, 3)
	r.RetryInterval = time.Hour // would never fire on its own
	r.MaxRetries = 5
	q.Enqueue(r)

	go e.Run()
	defer e.Stop()

	time.Sleep(10 * time.Millisecond)
	found, ok := q.MatchTransaction(3)
	require.True(t, ok)
	e.Complete(found, true)

	require.Eventually(t, func() bool { return successes.Load() == 1 }, time.Second, time.Millisecond)
}

func TestTxnCounter_WrapsSilently(t *testing.T) {
	c := &TxnCounter{}
	c.next.Store(65535)
	got := c.Next()
	assert.Equal(t, uint16(0), got)
}
