// Package datasync keeps the local dataset aligned with the gateway:
// content-addressed manifest refresh for rules and value sets, the
// coordinated multi-branch sync pass, and the revocation refresh worker.
package datasync

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"

	"github.com/trustpass/inspect/metricskey"
	"github.com/trustpass/inspect/pkg/hashutil"
)

var logger = xlog.NewPackageLogger("github.com/trustpass/inspect/pkg", "datasync")

// Defaults for per-item manifest fetches.
const (
	defaultConcurrency  = 4
	defaultFetchTimeout = 10 * time.Second
)

// Item is a manifest entry: the gateway announces content by key and
// hash, and the body is fetched separately and re-verified on receipt.
type Item struct {
	// Key is the grouping key of the entry, the country code for rules,
	// empty for value sets.
	Key  string
	Hash string
}

// Diff splits the remote manifest against the local hash set: missing
// is remote content not held locally, stale is local content the remote
// no longer announces. Content is immutable under its hash, so hash
// equality is the whole comparison.
func Diff(local []string, remote []Item) (missing []Item, stale []string) {
	have := make(map[string]bool, len(local))
	for _, h := range local {
		have[h] = true
	}
	announced := make(map[string]bool, len(remote))
	for _, it := range remote {
		announced[it.Hash] = true
		if !have[it.Hash] {
			missing = append(missing, it)
		}
	}
	for _, h := range local {
		if !announced[h] {
			stale = append(stale, h)
		}
	}
	return missing, stale
}

// FetchFunc downloads the raw body of a manifest item.
type FetchFunc func(ctx context.Context, it Item) ([]byte, error)

// CommitFunc stores a verified item body. Commits are serialized by the
// syncer; the func does not need its own locking.
type CommitFunc func(it Item, body []byte) error

// ManifestSyncer reconciles one content-addressed collection. Missing
// items are fetched concurrently, verified against the announced hash
// and committed; stale items are removed only after the fetch phase
// succeeded, so a failed pass never shrinks the usable dataset.
type ManifestSyncer struct {
	// Concurrency bounds the parallel item fetches.
	Concurrency int
	// FetchTimeout bounds each item download.
	FetchTimeout time.Duration
}

// Sync brings the collection in line with the remote manifest.
// An item whose recomputed hash does not match the manifest is dropped
// and counted; it does not fail the pass and does not affect siblings.
// A transport failure on any item fails the pass.
func (s *ManifestSyncer) Sync(ctx context.Context, local []string, remote []Item, fetch FetchFunc, commit CommitFunc, remove func(hash string)) error {
	concurrency := s.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	timeout := s.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	missing, stale := Diff(local, remote)
	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "manifest_diff",
		"remote", len(remote),
		"local", len(local),
		"missing", len(missing),
		"stale", len(stale))

	var (
		wg       sync.WaitGroup
		lock     sync.Mutex
		firstErr error
	)
	sem := make(chan struct{}, concurrency)

	for _, it := range missing {
		wg.Add(1)
		sem <- struct{}{}
		go func(it Item) {
			defer wg.Done()
			defer func() { <-sem }()

			err := s.fetchOne(ctx, it, timeout, fetch, commit, &lock)
			if err != nil {
				lock.Lock()
				if firstErr == nil {
					firstErr = err
				}
				lock.Unlock()
			}
		}(it)
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}

	for _, h := range stale {
		remove(h)
	}
	return nil
}

func (s *ManifestSyncer) fetchOne(ctx context.Context, it Item, timeout time.Duration, fetch FetchFunc, commit CommitFunc, lock *sync.Mutex) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := fetch(ctx, it)
	if err != nil {
		return errors.WithMessagef(err, "failed to fetch item %s", it.Hash)
	}

	if !hashutil.Matches(body, it.Hash) {
		// the body does not match its announced content hash: discard
		// the item, the rest of the manifest is unaffected
		logger.ContextKV(ctx, xlog.WARNING,
			"reason", "integrity_mismatch",
			"key", it.Key,
			"hash", it.Hash,
			"size", len(body))
		metricskey.StatsSyncIntegrityMismatch.IncrCounter(1)
		return nil
	}

	lock.Lock()
	defer lock.Unlock()
	if err := commit(it, body); err != nil {
		return errors.WithMessagef(err, "failed to commit item %s", it.Hash)
	}
	return nil
}
