package datasync

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"

	"github.com/trustpass/inspect/pkg/revocation"
)

// RevocationWorker reconciles the stored revocation hierarchy with the
// gateway list: new signers are fetched in full, known signers refresh
// their partitions when the server copy is newer, and signers the
// server no longer lists are removed.
type RevocationWorker struct {
	gw    Gateway
	store *revocation.Store
}

// NewRevocationWorker creates a worker over the gateway and store.
func NewRevocationWorker(gw Gateway, store *revocation.Store) *RevocationWorker {
	return &RevocationWorker{
		gw:    gw,
		store: store,
	}
}

// Refresh runs one reconciliation pass.
func (w *RevocationWorker) Refresh(ctx context.Context) error {
	if err := w.store.DeleteExpired(ctx, time.Now()); err != nil {
		return err
	}

	server, err := w.gw.RevocationLists(ctx)
	if err != nil {
		return err
	}
	stored, err := w.store.Revocations(ctx)
	if err != nil {
		return err
	}

	known := make(map[string]revocation.Revocation, len(stored))
	for _, r := range stored {
		known[r.KID] = r
	}
	listed := make(map[string]bool, len(server))

	for _, rev := range server {
		listed[rev.KID] = true

		prev, ok := known[rev.KID]
		if ok && !rev.LastUpdated.After(prev.LastUpdated) {
			continue
		}

		if err := w.store.SaveRevocations(ctx, []revocation.Revocation{rev}); err != nil {
			return err
		}
		if err := w.descend(ctx, rev.KID); err != nil {
			return errors.WithMessagef(err, "failed to refresh revocation data of %s", rev.KID)
		}
		logger.ContextKV(ctx, xlog.INFO,
			"status", "revocation_refreshed",
			"kid", rev.KID,
			"known", ok,
			"last_updated", rev.LastUpdated)
	}

	for kid := range known {
		if !listed[kid] {
			if err := w.store.RemoveRevocation(ctx, kid); err != nil {
				return err
			}
			logger.ContextKV(ctx, xlog.INFO, "status", "revocation_removed", "kid", kid)
		}
	}
	return nil
}

// descend fetches the partitions of a signer and the filter payloads of
// every slice they announce.
func (w *RevocationWorker) descend(ctx context.Context, kid string) error {
	parts, err := w.gw.Partitions(ctx, kid)
	if err != nil {
		return err
	}
	if err := w.store.SavePartitions(ctx, kid, parts); err != nil {
		return err
	}

	var metas []revocation.SliceMetadata
	for _, p := range parts {
		pid := p.ID
		if pid == "" {
			pid = revocation.NoCoordinate
		}
		for _, c := range p.Chunks {
			for _, sl := range c.Slices {
				data, err := w.gw.Slice(ctx, kid, pid, c.CID, sl.HashID)
				if err != nil {
					return errors.WithMessagef(err, "failed to fetch slice %s/%s/%s/%s", kid, pid, c.CID, sl.HashID)
				}
				metas = append(metas, revocation.SliceMetadata{
					KID:         kid,
					PartitionID: pid,
					CID:         c.CID,
					HashID:      sl.HashID,
					Data:        data,
				})
			}
		}
	}
	return w.store.SaveSliceData(ctx, metas)
}
