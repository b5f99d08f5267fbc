package revocation

import (
	"context"
	"path"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/trustpass/inspect/pkg/cache"
)

var logger = xlog.NewPackageLogger("github.com/trustpass/inspect/pkg", "revocation")

// Key layout within the cache provider:
//
//	rev/<kid>                          Revocation
//	part/<kid>/<pid>                   Partition with chunks and slice metadata
//	slice/<kid>/<pid>/<cid>/<hashID>   raw filter payload
//
// Child records carry their parent ids in the key, never live back-pointers.

// Store persists the revocation hierarchy and answers membership queries.
type Store struct {
	prov cache.Provider
}

// NewStore returns a Store backed by the cache provider.
func NewStore(prov cache.Provider) *Store {
	return &Store{prov: prov}
}

func revKey(kid string) string {
	return path.Join("rev", kid)
}

func partKey(kid, pid string) string {
	return path.Join("part", kid, pid)
}

func sliceKey(kid, pid, cid, hashID string) string {
	return path.Join("slice", kid, pid, cid, hashID)
}

// SaveRevocations stores the per-signer roots.
func (s *Store) SaveRevocations(ctx context.Context, list []Revocation) error {
	for i := range list {
		r := &list[i]
		if err := s.prov.Set(ctx, revKey(r.KID), r, cache.KeepTTL); err != nil {
			return errors.WithMessagef(err, "failed to save revocation %s", r.KID)
		}
		logger.KV(xlog.DEBUG, "status", "saved_revocation", "kid", r.KID, "mode", r.Mode)
	}
	return nil
}

// LoadRevocation returns the root for the signer,
// or nil when the signer has no revocation entry.
func (s *Store) LoadRevocation(ctx context.Context, kid string) (*Revocation, error) {
	var r Revocation
	err := s.prov.Get(ctx, revKey(kid), &r)
	if err != nil {
		if cache.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, errors.WithMessagef(err, "failed to load revocation %s", kid)
	}
	return &r, nil
}

// Revocations returns all stored per-signer roots.
func (s *Store) Revocations(ctx context.Context) ([]Revocation, error) {
	keys, err := s.prov.Keys(ctx, "rev/*")
	if err != nil {
		return nil, errors.WithMessage(err, "failed to list revocations")
	}
	list := make([]Revocation, 0, len(keys))
	for _, key := range keys {
		var r Revocation
		if err := s.prov.Get(ctx, key, &r); err != nil {
			if cache.IsNotFoundError(err) {
				continue
			}
			return nil, errors.WithMessagef(err, "failed to load %s", key)
		}
		list = append(list, r)
	}
	return list, nil
}

// RemoveRevocation deletes the signer's root and cascades to its
// partitions and slice payloads.
func (s *Store) RemoveRevocation(ctx context.Context, kid string) error {
	for _, pattern := range []string{
		path.Join("part", kid, "*"),
		path.Join("slice", kid, "*"),
	} {
		keys, err := s.prov.Keys(ctx, pattern)
		if err != nil {
			return errors.WithMessagef(err, "failed to list %s", pattern)
		}
		if err := s.prov.Delete(ctx, keys...); err != nil {
			return errors.WithMessagef(err, "failed to delete children of %s", kid)
		}
	}
	if err := s.prov.Delete(ctx, revKey(kid)); err != nil {
		return errors.WithMessagef(err, "failed to delete revocation %s", kid)
	}
	logger.KV(xlog.DEBUG, "status", "removed_revocation", "kid", kid)
	return nil
}

// SavePartitions stores the partitions of a signer. Undefined ids and
// coordinates are normalized to the NoCoordinate placeholder.
func (s *Store) SavePartitions(ctx context.Context, kid string, parts []Partition) error {
	for i := range parts {
		p := parts[i]
		p.KID = kid
		if p.ID == "" {
			p.ID = NoCoordinate
		}
		if p.X == "" {
			p.X = NoCoordinate
		}
		if p.Y == "" {
			p.Y = NoCoordinate
		}
		if err := s.prov.Set(ctx, partKey(kid, p.ID), &p, cache.KeepTTL); err != nil {
			return errors.WithMessagef(err, "failed to save partition %s/%s", kid, p.ID)
		}
	}
	return nil
}

// Partitions returns all partitions stored for a signer.
func (s *Store) Partitions(ctx context.Context, kid string) ([]Partition, error) {
	keys, err := s.prov.Keys(ctx, path.Join("part", kid, "*"))
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to list partitions of %s", kid)
	}
	list := make([]Partition, 0, len(keys))
	for _, key := range keys {
		var p Partition
		if err := s.prov.Get(ctx, key, &p); err != nil {
			if cache.IsNotFoundError(err) {
				continue
			}
			return nil, errors.WithMessagef(err, "failed to load %s", key)
		}
		list = append(list, p)
	}
	return list, nil
}

// SaveSliceData stores fetched filter payloads.
func (s *Store) SaveSliceData(ctx context.Context, metas []SliceMetadata) error {
	for _, m := range metas {
		key := sliceKey(m.KID, m.PartitionID, m.CID, m.HashID)
		if err := s.prov.Set(ctx, key, m.Data, cache.KeepTTL); err != nil {
			return errors.WithMessagef(err, "failed to save slice %s", key)
		}
	}
	return nil
}

// LoadSlices returns the slices of the chunk addressed by the partition
// coordinates, with payloads attached where already fetched.
func (s *Store) LoadSlices(ctx context.Context, kid, x, y, cid string) ([]Slice, error) {
	parts, err := s.Partitions(ctx, kid)
	if err != nil {
		return nil, err
	}

	var out []Slice
	for _, p := range parts {
		if p.X != x || p.Y != y {
			continue
		}
		for _, c := range p.Chunks {
			if c.CID != cid {
				continue
			}
			for _, sl := range c.Slices {
				if len(sl.HashData) == 0 {
					var data []byte
					err := s.prov.Get(ctx, sliceKey(kid, p.ID, c.CID, sl.HashID), &data)
					if err != nil && !cache.IsNotFoundError(err) {
						return nil, errors.WithMessagef(err, "failed to load slice %s", sl.HashID)
					}
					sl.HashData = data
				}
				out = append(out, sl)
			}
		}
	}
	logger.KV(xlog.DEBUG, "status", "loaded_slices", "kid", kid, "x", x, "y", y, "cid", cid, "count", len(out))
	return out, nil
}

// DeleteExpired removes revocations and partitions whose expiry is before
// the given time. Lookups running concurrently see "not found" for removed
// entries, never partial state.
func (s *Store) DeleteExpired(ctx context.Context, before time.Time) error {
	list, err := s.Revocations(ctx)
	if err != nil {
		return err
	}
	for i := range list {
		r := &list[i]
		if !r.Expires.IsZero() && r.Expires.Before(before) {
			if err := s.RemoveRevocation(ctx, r.KID); err != nil {
				return err
			}
			continue
		}
		parts, err := s.Partitions(ctx, r.KID)
		if err != nil {
			return err
		}
		for _, p := range parts {
			if p.Expired.IsZero() || !p.Expired.Before(before) {
				continue
			}
			if err := s.DeletePartition(ctx, r.KID, p.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// DeletePartition removes one partition and its slice payloads.
func (s *Store) DeletePartition(ctx context.Context, kid, pid string) error {
	keys, err := s.prov.Keys(ctx, path.Join("slice", kid, pid, "*"))
	if err != nil {
		return errors.WithMessagef(err, "failed to list slices of %s/%s", kid, pid)
	}
	if err := s.prov.Delete(ctx, keys...); err != nil {
		return errors.WithMessagef(err, "failed to delete slices of %s/%s", kid, pid)
	}
	return s.prov.Delete(ctx, partKey(kid, pid))
}

// Clear removes the whole dataset.
func (s *Store) Clear(ctx context.Context) error {
	for _, pattern := range []string{"rev/*", "part/*", "slice/*"} {
		keys, err := s.prov.Keys(ctx, pattern)
		if err != nil {
			return errors.WithMessagef(err, "failed to list %s", pattern)
		}
		if err := s.prov.Delete(ctx, keys...); err != nil {
			return errors.WithMessage(err, "failed to clear revocation data")
		}
	}
	return nil
}
