package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/sigauth/core"
	"github.com/layer-3/sigauth/ports"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func newRedisStore(t *testing.T) ports.Store {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "")
}

func newMemoryStore(t *testing.T) ports.Store {
	return NewMemoryStore()
}

func transition(seq uint64, account common.Address, status core.Status, sig string) *core.Transition {
	kind := core.EventUserAuthenticated
	var key common.Hash
	if sig != "" {
		key = crypto.Keccak256Hash([]byte(sig))
	} else {
		kind = core.EventAuthenticationRevoked
	}
	return &core.Transition{
		Account:      account,
		Status:       status,
		SignatureKey: key,
		Event: core.Event{
			Seq:       seq,
			Kind:      kind,
			Account:   account,
			Timestamp: time.Unix(1700000000+int64(seq), 0).UTC(),
			Hash:      crypto.Keccak256Hash([]byte{byte(seq)}),
		},
	}
}

func requireSameEvent(t *testing.T, want, got core.Event) {
	t.Helper()
	require.Equal(t, want.Seq, got.Seq)
	require.Equal(t, want.Kind, got.Kind)
	require.Equal(t, want.Account, got.Account)
	require.Equal(t, want.Hash, got.Hash)
	require.Equal(t, want.PrevHash, got.PrevHash)
	require.True(t, want.Timestamp.Equal(got.Timestamp), "timestamp %v != %v", want.Timestamp, got.Timestamp)
}

func TestStores(t *testing.T) {
	backends := map[string]func(t *testing.T) ports.Store{
		"memory": newMemoryStore,
		"redis":  newRedisStore,
	}

	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			t.Run("defaults", func(t *testing.T) { testDefaults(t, newStore(t)) })
			t.Run("commit", func(t *testing.T) { testCommit(t, newStore(t)) })
			t.Run("replay", func(t *testing.T) { testReplay(t, newStore(t)) })
			t.Run("journal", func(t *testing.T) { testJournal(t, newStore(t)) })
			t.Run("head conflict", func(t *testing.T) { testHeadConflict(t, newStore(t)) })
		})
	}
}

func testDefaults(t *testing.T, s ports.Store) {
	ctx := context.Background()

	status, err := s.Status(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, core.StatusUnauthenticated, status)

	status, err = s.Status(ctx, common.Address{})
	require.NoError(t, err)
	assert.Equal(t, core.StatusUnauthenticated, status)

	head, err := s.Head(ctx)
	require.NoError(t, err)
	assert.Nil(t, head)

	events, err := s.Events(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func testCommit(t *testing.T, s ports.Store) {
	ctx := context.Background()
	tr := transition(1, alice, core.StatusAuthenticated, "sig-1")

	require.NoError(t, s.Commit(ctx, tr))

	status, err := s.Status(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, core.StatusAuthenticated, status)

	status, err = s.Status(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, core.StatusUnauthenticated, status)

	used, err := s.IsSignatureConsumed(ctx, tr.SignatureKey)
	require.NoError(t, err)
	assert.True(t, used)

	require.NoError(t, s.Commit(ctx, transition(2, alice, core.StatusUnauthenticated, "")))

	status, err = s.Status(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, core.StatusUnauthenticated, status)

	// Revocation leaves the consumed set alone
	used, err = s.IsSignatureConsumed(ctx, tr.SignatureKey)
	require.NoError(t, err)
	assert.True(t, used)
}

func testReplay(t *testing.T, s ports.Store) {
	ctx := context.Background()

	require.NoError(t, s.Commit(ctx, transition(1, alice, core.StatusAuthenticated, "sig-1")))
	require.NoError(t, s.Commit(ctx, transition(2, alice, core.StatusUnauthenticated, "")))

	err := s.Commit(ctx, transition(3, alice, core.StatusAuthenticated, "sig-1"))
	require.ErrorIs(t, err, core.ErrSignatureAlreadyUsed)

	// Nothing from the rejected commit is visible
	status, err := s.Status(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, core.StatusUnauthenticated, status)

	events, err := s.Events(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func testJournal(t *testing.T, s ports.Store) {
	ctx := context.Background()
	trs := []*core.Transition{
		transition(1, alice, core.StatusAuthenticated, "sig-1"),
		transition(2, bob, core.StatusAuthenticated, "sig-2"),
		transition(3, alice, core.StatusUnauthenticated, ""),
	}
	for _, tr := range trs {
		require.NoError(t, s.Commit(ctx, tr))
	}

	head, err := s.Head(ctx)
	require.NoError(t, err)
	require.NotNil(t, head)
	requireSameEvent(t, trs[2].Event, *head)

	events, err := s.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, e := range events {
		requireSameEvent(t, trs[i].Event, e)
	}

	aliceEvents, err := s.AccountEvents(ctx, alice)
	require.NoError(t, err)
	require.Len(t, aliceEvents, 2)
	requireSameEvent(t, trs[0].Event, aliceEvents[0])
	requireSameEvent(t, trs[2].Event, aliceEvents[1])

	none, err := s.AccountEvents(ctx, common.HexToAddress("0x1"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testHeadConflict(t *testing.T, s ports.Store) {
	ctx := context.Background()
	require.NoError(t, s.Commit(ctx, transition(1, alice, core.StatusAuthenticated, "sig-1")))

	// Stale writer reusing seq 1, and one skipping ahead
	for _, seq := range []uint64{1, 3} {
		err := s.Commit(ctx, transition(seq, bob, core.StatusAuthenticated, "sig-2"))
		require.ErrorIs(t, err, core.ErrHeadConflict)
	}

	used, err := s.IsSignatureConsumed(ctx, crypto.Keccak256Hash([]byte("sig-2")))
	require.NoError(t, err)
	assert.False(t, used)

	status, err := s.Status(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, core.StatusUnauthenticated, status)

	events, err := s.Events(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	require.NoError(t, s.Commit(ctx, transition(2, bob, core.StatusAuthenticated, "sig-2")))
}

func TestRedisStoreRejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	s := NewRedisStore(client, "")

	for _, raw := range []string{"2", "255", "x"} {
		mr.HSet(DefaultRedisPrefix+"status", alice.Hex(), raw)
		_, err := s.Status(ctx, alice)
		require.ErrorIs(t, err, core.ErrStoreOperationFailed, raw)
	}

	mr.HSet(DefaultRedisPrefix+"status", alice.Hex(), "1")
	status, err := s.Status(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, core.StatusAuthenticated, status)
}
