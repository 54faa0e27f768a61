package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/go-faker/faker/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeIdentities(t *testing.T, n int) []Identity {
	t.Helper()
	out := make([]Identity, n)
	for i := range out {
		out[i] = Identity{ID: faker.UUIDHyphenated(), UpdatedAt: faker.Timestamp()}
	}
	return out
}

func TestComputeFingerprint_OrderIndependent(t *testing.T) {
	items := fakeIdentities(t, 50)
	want := ComputeFingerprint(items)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]Identity(nil), items...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, ComputeFingerprint(shuffled), "permutation %d", i)
	}
}

func TestComputeFingerprint_DetectsSingleChange(t *testing.T) {
	items := fakeIdentities(t, 50)
	base := ComputeFingerprint(items)

	for _, idx := range []int{0, 25, 49} {
		changed := append([]Identity(nil), items...)
		changed[idx].UpdatedAt += "1"
		assert.NotEqual(t, base, ComputeFingerprint(changed), "changed item %d", idx)
	}

	assert.NotEqual(t, base, ComputeFingerprint(items[1:]), "removing an item must change the digest")
}

func TestComputeFingerprint_KnownValue(t *testing.T) {
	sum := sha256.Sum256([]byte("1-a2-b"))
	want := hex.EncodeToString(sum[:])

	got := ComputeFingerprint([]Identity{{ID: "2", UpdatedAt: "b"}, {ID: "1", UpdatedAt: "a"}})
	assert.Equal(t, want, got)

	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ComputeFingerprint(nil))
}

func TestWatermarkFormat(t *testing.T) {
	ts := time.Date(2025, 3, 10, 14, 5, 9, 0, time.UTC)
	assert.Equal(t, "2025-03-10 14:05:09", FormatWatermark(ts))

	parsed, err := ParseWatermark("2025-03-10 14:05:09")
	require.NoError(t, err)
	assert.True(t, ts.Equal(parsed))

	parsed, err = ParseWatermark("2025-03-10T14:05:09Z")
	require.NoError(t, err)
	assert.True(t, ts.Equal(parsed))

	_, err = ParseWatermark("yesterday")
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	_, err := m.GetWatermark(ctx, "badges")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.GetFingerprint(ctx, "badges_templates")
	assert.ErrorIs(t, err, ErrNotFound)

	ts := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.PutWatermark(ctx, "badges", ts))
	require.NoError(t, m.PutWatermark(ctx, "badges", ts.Add(time.Hour)))

	w, err := m.GetWatermark(ctx, "badges")
	require.NoError(t, err)
	assert.True(t, w.Watermark.Equal(ts.Add(time.Hour)), "last writer wins")
	assert.Equal(t, 2, m.WatermarkPuts())

	fp := Fingerprint{Dataset: "badges_templates", PayloadHash: "abc", RecordCount: 3, LastUpdatedAt: ts}
	require.NoError(t, m.PutFingerprint(ctx, fp))
	got, err := m.GetFingerprint(ctx, "badges_templates")
	require.NoError(t, err)
	assert.Equal(t, fp, *got)

	m.GetErr = errors.New("unavailable")
	_, err = m.GetWatermark(ctx, "badges")
	assert.ErrorIs(t, err, m.GetErr)
}
