package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Labels []string `json:"labels"`
	Counts []int    `json:"counts"`
}

func TestKey_StringAndFingerprint(t *testing.T) {
	k := Key{Artifact: "sequence", Segment: 42, Scheme: "random", Parameter: "meta", Seed: 7}
	assert.Equal(t, "sequence/segment=42-scheme=random-param=meta-seed=7", k.String())
	assert.Len(t, k.Fingerprint(), 64)
	assert.Equal(t, k.Fingerprint(), k.Fingerprint())

	other := k
	other.Seed = 8
	assert.NotEqual(t, k.Fingerprint(), other.Fingerprint())
}

func TestCodec_RoundTrip(t *testing.T) {
	in := record{Labels: []string{"0", "1"}, Counts: []int{3, 5}}
	data, err := Encode(in)
	require.NoError(t, err)

	var out record
	require.NoError(t, Decode(data, &out))
	assert.Equal(t, in, out)

	assert.Error(t, Decode([]byte("not zstd"), &out))
}

func TestGetOrCompute_HitAfterMiss(t *testing.T) {
	c := New(newTestBbolt(t), Options{UseCache: true})
	ctx := context.Background()
	key := Key{Artifact: "sequence", Segment: 1}
	calls := 0
	compute := func(context.Context) (record, error) {
		calls++
		return record{Counts: []int{calls}}, nil
	}

	v, hit, err := GetOrCompute(ctx, c, key, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []int{1}, v.Counts)

	v, hit, err = GetOrCompute(ctx, c, key, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []int{1}, v.Counts)
	assert.Equal(t, 1, calls)
}

func TestGetOrCompute_ForceRecomputeReplaces(t *testing.T) {
	st := newTestBbolt(t)
	ctx := context.Background()
	key := Key{Artifact: "sequence", Segment: 1}

	_, _, err := GetOrCompute(ctx, New(st, Options{UseCache: true}), key, func(context.Context) (record, error) {
		return record{Counts: []int{1}}, nil
	})
	require.NoError(t, err)

	v, hit, err := GetOrCompute(ctx, New(st, Options{UseCache: true, ForceRecompute: true}), key, func(context.Context) (record, error) {
		return record{Counts: []int{2}}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []int{2}, v.Counts)

	var stored record
	ok, err := New(st, Options{UseCache: true}).Load(ctx, key, &stored)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int{2}, stored.Counts)
}

func TestGetOrCompute_DisabledBypassesStore(t *testing.T) {
	st := newTestBbolt(t)
	c := New(st, Options{UseCache: false})
	ctx := context.Background()
	key := Key{Artifact: "sequence", Segment: 1}

	for i := 0; i < 2; i++ {
		_, hit, err := GetOrCompute(ctx, c, key, func(context.Context) (record, error) {
			return record{}, nil
		})
		require.NoError(t, err)
		assert.False(t, hit)
	}
	ok, err := st.Has(ctx, key.Fingerprint())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetOrCompute_NilStore(t *testing.T) {
	c := New(nil, Options{UseCache: true})
	assert.False(t, c.Options().UseCache)

	_, hit, err := GetOrCompute(context.Background(), c, Key{}, func(context.Context) (int, error) {
		return 1, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestGetOrCompute_ComputeErrorNotStored(t *testing.T) {
	st := newTestBbolt(t)
	c := New(st, Options{UseCache: true})
	key := Key{Artifact: "sequence", Segment: 1}
	boom := errors.New("boom")

	_, _, err := GetOrCompute(context.Background(), c, key, func(context.Context) (record, error) {
		return record{}, boom
	})
	assert.ErrorIs(t, err, boom)

	ok, err := st.Has(context.Background(), key.Fingerprint())
	require.NoError(t, err)
	assert.False(t, ok)
}
