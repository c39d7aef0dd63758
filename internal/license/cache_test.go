package license

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/internal/security"
	"licensegate/pkg/contracts/domain"
)

// teamStore serves FindTeam and counts round trips
type teamStore struct {
	Store
	mu    sync.Mutex
	teams map[string]domain.TeamPolicy
	calls atomic.Int64
	err   error
}

func (s *teamStore) FindTeam(ctx context.Context, teamID string) (*domain.TeamPolicy, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	team, ok := s.teams[teamID]
	if !ok {
		return nil, ErrNotFound
	}
	return &team, nil
}

func newTestKeyring(t *testing.T) *security.Keyring {
	t.Helper()
	k, err := security.NewKeyring("lookup-secret", "encryption-secret")
	require.NoError(t, err)
	return k
}

func TestTeamCacheTTL(t *testing.T) {
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	store := &teamStore{teams: map[string]domain.TeamPolicy{"t1": {ID: "t1", Name: "alpha"}}}
	cache := NewTeamCache(store, newTestKeyring(t), clock, 30*time.Second, 10)
	ctx := context.Background()

	team, err := cache.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", team.Policy.Name)

	_, err = cache.Get(ctx, "t1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, store.calls.Load())

	clock.Advance(31 * time.Second).MustWait(ctx)
	_, err = cache.Get(ctx, "t1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, store.calls.Load())

	cache.Invalidate("t1")
	_, err = cache.Get(ctx, "t1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, store.calls.Load())

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.EqualValues(t, 1, stats.HitCount)
	assert.EqualValues(t, 3, stats.MissCount)
}

func TestTeamCacheNotFoundAndDeleted(t *testing.T) {
	deleted := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	store := &teamStore{teams: map[string]domain.TeamPolicy{"gone": {ID: "gone", DeletedAt: &deleted}}}
	cache := NewTeamCache(store, newTestKeyring(t), quartz.NewMock(t), time.Minute, 10)

	_, err := cache.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = cache.Get(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrNotFound)

	store.err = errors.New("connection reset")
	_, err = cache.Get(context.Background(), "other")
	require.Error(t, err)
	assert.False(t, isNotFound(err))
}

func TestTeamCacheDecryptsPrivateKey(t *testing.T) {
	keyring := newTestKeyring(t)
	privPEM, pubPEM, err := security.GenerateKeyPair(2048)
	require.NoError(t, err)
	blob, err := keyring.EncryptAtRest(privPEM)
	require.NoError(t, err)

	store := &teamStore{teams: map[string]domain.TeamPolicy{
		"t1":  {ID: "t1", KeyPair: &domain.KeyPair{PublicKey: pubPEM, PrivateKey: blob}},
		"bad": {ID: "bad", KeyPair: &domain.KeyPair{PrivateKey: "00:00:00"}},
	}}
	cache := NewTeamCache(store, keyring, quartz.NewMock(t), time.Minute, 10)

	team, err := cache.Get(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, team.PrivateKey)
	pub, err := security.ParsePublicKey(pubPEM)
	require.NoError(t, err)
	assert.True(t, team.PrivateKey.PublicKey.Equal(pub))

	_, err = cache.Get(context.Background(), "bad")
	assert.ErrorIs(t, err, security.ErrDecryptionFailed)
}

func TestTeamCacheEvictsOldest(t *testing.T) {
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	store := &teamStore{teams: map[string]domain.TeamPolicy{"a": {ID: "a"}, "b": {ID: "b"}, "c": {ID: "c"}}}
	cache := NewTeamCache(store, newTestKeyring(t), clock, time.Hour, 2)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := cache.Get(ctx, id)
		require.NoError(t, err)
		clock.Advance(time.Second).MustWait(ctx)
	}
	assert.Equal(t, 2, cache.Stats().Entries)

	_, err := cache.Get(ctx, "a")
	require.NoError(t, err)
	assert.EqualValues(t, 4, store.calls.Load(), "a was evicted first")
}
