package revocation_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trustpass/inspect/pkg/cache"
	"github.com/trustpass/inspect/pkg/filter"
	"github.com/trustpass/inspect/pkg/revocation"
)

func newStore() *revocation.Store {
	return revocation.NewStore(cache.NewMemoryProvider("revtest"))
}

func hexHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func TestSaveLoadRevocation(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	missing, err := s.LoadRevocation(ctx, "none")
	require.NoError(t, err)
	assert.Nil(t, missing)

	now := time.Now().UTC().Truncate(time.Second)
	err = s.SaveRevocations(ctx, []revocation.Revocation{
		{
			KID:         "kid1",
			HashTypes:   []string{"SIGNATURE", "UCI"},
			Mode:        revocation.ModePoint,
			Expires:     now.Add(time.Hour),
			LastUpdated: now,
		},
	})
	require.NoError(t, err)

	r, err := s.LoadRevocation(ctx, "kid1")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, revocation.ModePoint, r.Mode)
	assert.True(t, r.HasHashType(revocation.HashTypeSignature))
	assert.True(t, r.HasHashType(revocation.HashTypeUCI))
	assert.False(t, r.HasHashType(revocation.HashTypeCountryCodeUCI))

	list, err := s.Revocations(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPartitionsAndSlices(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	require.NoError(t, s.SaveRevocations(ctx, []revocation.Revocation{
		{KID: "kid1", Mode: revocation.ModePoint, HashTypes: []string{"UCI"}},
	}))

	err := s.SavePartitions(ctx, "kid1", []revocation.Partition{
		{
			// undefined id and coordinates are normalized
			Chunks: []revocation.Chunk{
				{
					CID: "ab",
					Slices: []revocation.Slice{
						{HashID: "s1", Type: filter.TypeBloom, Version: "1.0"},
					},
				},
			},
		},
	})
	require.NoError(t, err)

	parts, err := s.Partitions(ctx, "kid1")
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, revocation.NoCoordinate, parts[0].ID)
	assert.Equal(t, revocation.NoCoordinate, parts[0].X)
	assert.Equal(t, revocation.NoCoordinate, parts[0].Y)

	// payload absent until fetched
	slices, err := s.LoadSlices(ctx, "kid1", revocation.NoCoordinate, revocation.NoCoordinate, "ab")
	require.NoError(t, err)
	require.Len(t, slices, 1)
	assert.Empty(t, slices[0].HashData)

	require.NoError(t, s.SaveSliceData(ctx, []revocation.SliceMetadata{
		{KID: "kid1", PartitionID: revocation.NoCoordinate, CID: "ab", HashID: "s1", Data: []byte{1, 2, 3}},
	}))

	slices, err = s.LoadSlices(ctx, "kid1", revocation.NoCoordinate, revocation.NoCoordinate, "ab")
	require.NoError(t, err)
	require.Len(t, slices, 1)
	assert.Equal(t, []byte{1, 2, 3}, slices[0].HashData)

	// wrong coordinates or chunk yield nothing
	slices, err = s.LoadSlices(ctx, "kid1", "aa", revocation.NoCoordinate, "ab")
	require.NoError(t, err)
	assert.Empty(t, slices)
	slices, err = s.LoadSlices(ctx, "kid1", revocation.NoCoordinate, revocation.NoCoordinate, "cd")
	require.NoError(t, err)
	assert.Empty(t, slices)
}

func TestRemoveRevocationCascades(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	require.NoError(t, s.SaveRevocations(ctx, []revocation.Revocation{
		{KID: "kid1", Mode: revocation.ModePoint},
	}))
	require.NoError(t, s.SavePartitions(ctx, "kid1", []revocation.Partition{
		{ID: "p1", Chunks: []revocation.Chunk{{CID: "ab", Slices: []revocation.Slice{{HashID: "s1"}}}}},
	}))
	require.NoError(t, s.SaveSliceData(ctx, []revocation.SliceMetadata{
		{KID: "kid1", PartitionID: "p1", CID: "ab", HashID: "s1", Data: []byte{9}},
	}))

	require.NoError(t, s.RemoveRevocation(ctx, "kid1"))

	r, err := s.LoadRevocation(ctx, "kid1")
	require.NoError(t, err)
	assert.Nil(t, r)
	parts, err := s.Partitions(ctx, "kid1")
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestDeleteExpired(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	now := time.Now().UTC()

	require.NoError(t, s.SaveRevocations(ctx, []revocation.Revocation{
		{KID: "old", Mode: revocation.ModePoint, Expires: now.Add(-time.Hour)},
		{KID: "live", Mode: revocation.ModePoint, Expires: now.Add(time.Hour)},
	}))
	require.NoError(t, s.SavePartitions(ctx, "live", []revocation.Partition{
		{ID: "p-old", Expired: now.Add(-time.Minute)},
		{ID: "p-live", Expired: now.Add(time.Minute)},
	}))

	require.NoError(t, s.DeleteExpired(ctx, now))

	r, err := s.LoadRevocation(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, r)
	r, err = s.LoadRevocation(ctx, "live")
	require.NoError(t, err)
	assert.NotNil(t, r)

	parts, err := s.Partitions(ctx, "live")
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, "p-live", parts[0].ID)
}

func TestCoordinates(t *testing.T) {
	hash := "a1b2c3d4"

	x, y, cid := revocation.Coordinates(revocation.ModePoint, hash)
	assert.Equal(t, revocation.NoCoordinate, x)
	assert.Equal(t, revocation.NoCoordinate, y)
	assert.Equal(t, "a1", cid)

	x, y, cid = revocation.Coordinates(revocation.ModeVector, hash)
	assert.Equal(t, "a1", x)
	assert.Equal(t, revocation.NoCoordinate, y)
	assert.Equal(t, "b2", cid)

	x, y, cid = revocation.Coordinates(revocation.ModeCoordinate, hash)
	assert.Equal(t, "a1", x)
	assert.Equal(t, "b2", y)
	assert.Equal(t, "c3", cid)
}
