package revocation

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/trustpass/inspect/metricskey"
	"github.com/trustpass/inspect/pkg/filter"
	"github.com/trustpass/inspect/pkg/hashutil"
)

// filterCacheSize bounds the number of decoded filters kept in memory.
const filterCacheSize = 512

// Checker answers whether a certificate hash might be revoked.
// A positive answer escalates to "revoked": bloom filters have no false
// negatives, and the engine deliberately accepts the false-positive rate
// in favor of safety.
type Checker struct {
	store   *Store
	filters *lru.Cache[string, filter.Filter]
}

// NewChecker returns a Checker over the store. Decoded filter payloads are
// cached by slice hashID, which is the content address of the payload.
func NewChecker(store *Store) *Checker {
	filters, _ := lru.New[string, filter.Filter](filterCacheSize)
	return &Checker{
		store:   store,
		filters: filters,
	}
}

// MightContainRevoked tests the hex-encoded hash against the slices of the
// partition derived from the hash under the signer's mode. Missing or
// expired data yields false: revocation data is best-effort and absence
// must not block validation.
func (c *Checker) MightContainRevoked(ctx context.Context, kid string, mode Mode, hash string) (bool, error) {
	raw := hashutil.Decode(hash)
	if len(raw) == 0 {
		return false, errors.Errorf("malformed lookup hash for kid %s", kid)
	}

	x, y, cid := Coordinates(mode, hash)
	slices, err := c.store.LoadSlices(ctx, kid, x, y, cid)
	if err != nil {
		return false, err
	}

	for _, sl := range slices {
		if len(sl.HashData) == 0 {
			continue
		}
		f, err := c.decode(sl)
		if err != nil {
			// an unknown or malformed slice is skipped, not fatal
			logger.KV(xlog.WARNING, "reason", "slice_skipped", "kid", kid, "hash_id", sl.HashID, "type", sl.Type, "err", err.Error())
			metricskey.StatsRevocationSliceSkipped.IncrCounter(1)
			continue
		}
		if f.MightContain(raw) {
			logger.KV(xlog.INFO, "status", "revocation_hit", "kid", kid, "mode", mode, "slice", sl.HashID)
			metricskey.StatsRevocationLookupHit.IncrCounter(1)
			return true, nil
		}
	}
	return false, nil
}

func (c *Checker) decode(sl Slice) (filter.Filter, error) {
	if f, ok := c.filters.Get(sl.HashID); ok {
		return f, nil
	}
	f, err := filter.Decode(sl.Type, sl.HashData)
	if err != nil {
		return nil, err
	}
	c.filters.Add(sl.HashID, f)
	return f, nil
}
