package filestate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbcluster/nbcluster/pkg/cluster/local"
)

func TestFacade_CreateFindRemoveRoundTrip(t *testing.T) {
	store := local.NewStore[ClusterFileState]("files")
	f := NewFacade("n1", "files", store, nil)
	ctx := context.Background()

	_, err := f.Create(ctx, "/A/B//c.txt")
	require.NoError(t, err)

	got, ok, err := f.Find(ctx, "/a/b/c.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/a/b/c.txt", got.Path)

	removed, err := f.Remove(ctx, "/a/b/c.txt")
	require.NoError(t, err)
	assert.True(t, removed)

	_, ok, err = f.Find(ctx, "/a/b/c.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFacade_GrantThenReleaseLeavesOpenCountUnchanged(t *testing.T) {
	store := local.NewStore[ClusterFileState]("files")
	f := NewFacade("n1", "files", store, nil)
	ctx := context.Background()

	params := OpenParams{Access: AccessRead, ShareAllow: ShareRead, Owner: OpLockOwner{SessionID: "s1"}}
	res, err := f.GrantAccess(ctx, "/x", params)
	require.NoError(t, err)
	require.NotNil(t, res.Token)

	_, err = f.ReleaseAccess(ctx, "/x", *res.Token)
	require.NoError(t, err)

	st, ok, err := f.Find(ctx, "/x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, st.OpenCount)
}

func TestFacade_TwoCompatibleReadersBothGrantedNoBreak(t *testing.T) {
	store := local.NewStore[ClusterFileState]("files")
	f := NewFacade("n1", "files", store, nil)
	ctx := context.Background()

	p := OpenParams{Access: AccessRead, ShareAllow: ShareRead | ShareWrite, Owner: OpLockOwner{SessionID: "s1"}}
	r1, err := f.GrantAccess(ctx, "/shared.txt", p)
	require.NoError(t, err)
	require.NotNil(t, r1.Token)

	p2 := p
	p2.Owner = OpLockOwner{SessionID: "s2"}
	r2, err := f.GrantAccess(ctx, "/shared.txt", p2)
	require.NoError(t, err)
	require.NotNil(t, r2.Token)

	st, _, err := f.Find(ctx, "/shared.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, st.OpenCount)
	assert.True(t, st.OpLock.IsNone())
}

// TestFacade_WriteAgainstBatchOplockBreaksThenSucceeds covers the
// cross-node break handshake: node X holds a Batch oplock; node Y's
// write request is blocked (BreakInProgress), the break coordinator on
// X downgrades to Level-II and publishes BreakComplete, and Y's
// retried GrantFileAccess succeeds.
func TestFacade_WriteAgainstBatchOplockBreaksThenSucceeds(t *testing.T) {
	store := local.NewStore[ClusterFileState]("files")
	topic := local.NewTopic()
	path := "/b.txt"

	fx := NewFacade("X", "files", store, topic)
	fy := NewFacade("Y", "files", store, topic)

	ctx := context.Background()
	shareAll := ShareRead | ShareWrite | ShareDelete
	holderOwner := OpLockOwner{SessionID: "sx", FileID: 1}
	grantX, err := fx.GrantAccess(ctx, path, OpenParams{Access: AccessRead, ShareAllow: shareAll, Owner: holderOwner})
	require.NoError(t, err)
	require.NotNil(t, grantX.Token)
	require.NoError(t, fx.AddOpLock(ctx, path, OpLock{Kind: OpLockRemote, Type: OpLockTypeBatch, Owner: holderOwner, OwningNode: "X"}))

	pn := fx.perNodeFor(path)
	pn.SetLocalOpLock(OpLock{Kind: OpLockLocal, Type: OpLockTypeBatch, Owner: holderOwner})

	breaker := NewBreakCoordinator("X", topic, time.Second, fx.perNodeFor, func(ctx context.Context, p string, toType OpLockType) error {
		return nil
	}, NewMetrics())
	breaker.ApplyDowngrade = fx.ApplyOplockBreak
	busX := NewBusHandler("X", topic, fx, breaker)
	busX.Start()
	defer busX.Stop()

	writerOwner := OpLockOwner{SessionID: "sy", FileID: 2}
	result, err := fy.GrantAccessWaitingForBreak(ctx, path, OpenParams{Access: AccessWrite, ShareAllow: shareAll, Owner: writerOwner}, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, result.Token, "write should eventually succeed once the oplock is broken")
}
