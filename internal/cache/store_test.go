package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBbolt(t *testing.T) Store {
	t.Helper()
	st, err := NewBboltStore(filepath.Join(t.TempDir(), "nested", "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestFS(t *testing.T) Store {
	t.Helper()
	st, err := NewFSStore(filepath.Join(t.TempDir(), "entries"))
	require.NoError(t, err)
	return st
}

func newTestRedis(t *testing.T) Store {
	t.Helper()
	mr := miniredis.RunT(t)
	st, err := NewRedisStore("redis://"+mr.Addr(), "skedits:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

var backends = map[string]func(*testing.T) Store{
	"bbolt": newTestBbolt,
	"fs":    newTestFS,
	"redis": newTestRedis,
}

func testKey() string {
	return Key{Artifact: "sequence", Segment: 864691135, Scheme: "time"}.Fingerprint()
}

func TestStore_PutGet(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			st := newStore(t)
			ctx := context.Background()
			key := testKey()

			ok, err := st.Has(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, st.Put(ctx, key, []byte("payload")))

			ok, err = st.Has(ctx, key)
			require.NoError(t, err)
			assert.True(t, ok)

			data, err := st.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, []byte("payload"), data)
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			_, err := newStore(t).Get(context.Background(), testKey())
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_PutNeverOverwrites(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			st := newStore(t)
			ctx := context.Background()
			key := testKey()

			require.NoError(t, st.Put(ctx, key, []byte("first")))
			assert.ErrorIs(t, st.Put(ctx, key, []byte("second")), ErrExists)

			data, err := st.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, []byte("first"), data)
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			st := newStore(t)
			ctx := context.Background()
			key := testKey()

			require.NoError(t, st.Delete(ctx, key), "deleting an absent key is fine")
			require.NoError(t, st.Put(ctx, key, []byte("x")))
			require.NoError(t, st.Delete(ctx, key))

			ok, err := st.Has(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok)
			require.NoError(t, st.Put(ctx, key, []byte("y")))
		})
	}
}

func TestFSStore_RejectsNonFingerprintKeys(t *testing.T) {
	st := newTestFS(t)
	ctx := context.Background()

	assert.Error(t, st.Put(ctx, "../escape", []byte("x")))
	ok, err := st.Has(ctx, "../escape")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBboltStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	st, err := NewBboltStore(path)
	require.NoError(t, err)
	require.NoError(t, st.Put(ctx, testKey(), []byte("kept")))
	require.NoError(t, st.Close())

	st, err = NewBboltStore(path)
	require.NoError(t, err)
	defer st.Close()
	data, err := st.Get(ctx, testKey())
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), data)
}
