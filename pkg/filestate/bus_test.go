package filestate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbcluster/nbcluster/pkg/cluster"
	"github.com/nbcluster/nbcluster/pkg/cluster/local"
)

func newTestFacade(t *testing.T, nodeID string, topic cluster.Topic) (*Facade, *local.Store[ClusterFileState]) {
	t.Helper()
	store := local.NewStore[ClusterFileState]("files")
	f := NewFacade(nodeID, "files", store, topic)
	return f, store
}

func TestBusHandler_RoutesBreakRequestOnlyToAddressedHolder(t *testing.T) {
	topic := local.NewTopic()
	facade, _ := newTestFacade(t, "nodeY", topic)

	lookup, set := newPerNodeRegistry()
	pn := NewPerNodeState(1)
	pn.SetLocalOpLock(OpLock{Kind: OpLockLocal, Type: OpLockTypeBatch})
	set("/held", pn)

	broken := make(chan struct{}, 1)
	onBreak := func(ctx context.Context, path string, toType OpLockType) error {
		broken <- struct{}{}
		return nil
	}
	breaker := NewBreakCoordinator("nodeX", topic, time.Second, lookup, onBreak, NewMetrics())
	handler := NewBusHandler("nodeX", topic, facade, breaker)
	handler.Start()
	defer handler.Stop()

	// Addressed to a different node: must not trigger this node's break.
	require.NoError(t, topic.Publish(context.Background(), cluster.Message{
		Kind: MsgOplockBreakRequest, SenderID: "nodeY", Key: "/held",
		Payload: BreakRequestPayload{ToType: OpLockTypeNone, HolderNode: "nodeZ"},
	}))
	select {
	case <-broken:
		t.Fatal("break callback fired for a request addressed to a different holder")
	case <-time.After(50 * time.Millisecond):
	}

	// Addressed to this node: must trigger.
	require.NoError(t, topic.Publish(context.Background(), cluster.Message{
		Kind: MsgOplockBreakRequest, SenderID: "nodeY", Key: "/held",
		Payload: BreakRequestPayload{ToType: OpLockTypeNone, HolderNode: "nodeX"},
	}))
	select {
	case <-broken:
	case <-time.After(time.Second):
		t.Fatal("break callback never fired for this node's holder")
	}
}

func TestBusHandler_IgnoresOwnStateEchoes(t *testing.T) {
	topic := local.NewTopic()
	facade, _ := newTestFacade(t, "nodeX", topic)
	lookup, _ := newPerNodeRegistry()
	breaker := NewBreakCoordinator("nodeX", topic, time.Second, lookup, nil, NewMetrics())
	handler := NewBusHandler("nodeX", topic, facade, breaker)
	handler.Start()
	defer handler.Stop()

	_ = facade.perNodeFor("/a")
	require.NoError(t, topic.Publish(context.Background(), cluster.Message{
		Kind: MsgStateEvicted, SenderID: "nodeX", Key: "/a",
	}))
	time.Sleep(50 * time.Millisecond)

	facade.perNodeMu.Lock()
	_, stillThere := facade.perNode["/a"]
	facade.perNodeMu.Unlock()
	assert.True(t, stillThere, "own echo should not evict local per-node state")
}

func TestBusHandler_MirrorsDataUpdateFromOtherNode(t *testing.T) {
	topic := local.NewTopic()
	facade, _ := newTestFacade(t, "nodeX", topic)
	lookup, _ := newPerNodeRegistry()
	breaker := NewBreakCoordinator("nodeX", topic, time.Second, lookup, nil, NewMetrics())
	handler := NewBusHandler("nodeX", topic, facade, breaker)
	handler.Start()
	defer handler.Stop()

	require.NoError(t, topic.Publish(context.Background(), cluster.Message{
		Kind: MsgDataUpdateStarted, SenderID: "nodeY", Key: "/b",
		Payload: DataUpdatePayload{NodeID: "nodeY"},
	}))

	require.Eventually(t, func() bool {
		return facade.perNodeFor("/b").GetDataStatus() == DataUpdating
	}, time.Second, 10*time.Millisecond)
}
