package boltcache_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"marginrisk/pkg/store/boltcache"
)

func openTestCache(t *testing.T) *boltcache.Cache {
	t.Helper()
	cache, err := boltcache.Open(filepath.Join(t.TempDir(), "cache.db"), &bolt.Options{Timeout: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestAccountSnapshotRoundTrip(t *testing.T) {
	cache := openTestCache(t)

	snap := boltcache.AccountSnapshot{
		Address:    "mrg1exampleaddress",
		FetchedAt:  time.Now().UTC().Truncate(time.Second),
		RawAccount: []byte(`{"tokenPositions":[]}`),
	}
	require.NoError(t, cache.PutAccount(snap))

	got, err := cache.GetAccount(snap.Address)
	require.NoError(t, err)
	require.Equal(t, snap.Address, got.Address)
	require.True(t, snap.FetchedAt.Equal(got.FetchedAt))
	require.JSONEq(t, string(snap.RawAccount), string(got.RawAccount))
}

func TestGetAccountNotFound(t *testing.T) {
	cache := openTestCache(t)
	_, err := cache.GetAccount("mrg1doesnotexist")
	require.ErrorIs(t, err, boltcache.ErrNotFound)
}

func TestTCSIndexRoundTrip(t *testing.T) {
	cache := openTestCache(t)

	entry := boltcache.TCSIndexEntry{
		Address:     "mrg1exampleaddress",
		TCSIndex:    3,
		Interesting: true,
		CheckedAt:   time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, cache.PutTCSIndex(entry))

	got, err := cache.GetTCSIndex(entry.Address, entry.TCSIndex)
	require.NoError(t, err)
	require.Equal(t, entry, got)

	_, err = cache.GetTCSIndex(entry.Address, entry.TCSIndex+1)
	require.ErrorIs(t, err, boltcache.ErrNotFound)
}

func TestTCSIndexDistinguishesNegativeIndices(t *testing.T) {
	cache := openTestCache(t)

	require.NoError(t, cache.PutTCSIndex(boltcache.TCSIndexEntry{Address: "mrg1a", TCSIndex: -1, Interesting: false}))
	require.NoError(t, cache.PutTCSIndex(boltcache.TCSIndexEntry{Address: "mrg1a", TCSIndex: 1, Interesting: true}))

	neg, err := cache.GetTCSIndex("mrg1a", -1)
	require.NoError(t, err)
	require.False(t, neg.Interesting)

	pos, err := cache.GetTCSIndex("mrg1a", 1)
	require.NoError(t, err)
	require.True(t, pos.Interesting)
}
