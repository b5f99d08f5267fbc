package datasync

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"

	"github.com/trustpass/inspect/metricskey"
	"github.com/trustpass/inspect/pkg/gateway"
	"github.com/trustpass/inspect/pkg/hashutil"
	"github.com/trustpass/inspect/pkg/localdata"
	"github.com/trustpass/inspect/pkg/revocation"
	"github.com/trustpass/inspect/pkg/validity"
	"github.com/trustpass/inspect/xhttp/httperror"
)

// Gateway is the slice of the gateway client the sync pipeline uses.
type Gateway interface {
	Status(ctx context.Context) ([]string, error)
	Update(ctx context.Context, resumeToken string) (*gateway.KeyUpdate, error)
	CountryList(ctx context.Context) ([]string, error)
	Rules(ctx context.Context) ([]gateway.RuleIdentifier, error)
	Rule(ctx context.Context, country, hash string) ([]byte, error)
	ValueSets(ctx context.Context) ([]gateway.ValueSetIdentifier, error)
	ValueSet(ctx context.Context, hash string) ([]byte, error)
	RevocationLists(ctx context.Context) ([]revocation.Revocation, error)
	Partitions(ctx context.Context, kid string) ([]revocation.Partition, error)
	Slice(ctx context.Context, kid, id, cid, hashID string) ([]byte, error)
	Lookup(ctx context.Context, tokens []string) ([]string, error)
}

// TokenSigner signs held-certificate hashes into a lookup token,
// proving to the gateway that the caller holds the certificates it
// asks about.
type TokenSigner func(hashes []string) (string, error)

// Orchestrator runs one coordinated sync pass over all branches of the
// dataset. Branches run concurrently and fail soft: a failed branch
// never cancels its siblings, and the pass reports a single aggregate
// error. LastFetch is stamped and the snapshot persisted only when
// every branch succeeded.
type Orchestrator struct {
	gw        Gateway
	local     *localdata.Manager
	worker    *RevocationWorker
	manifests ManifestSyncer

	appVersion string

	// Signer enables the wallet lookup branch: when set, the hashes of
	// held certificates are signed, posted to the gateway, and the
	// revoked flags updated from the answer.
	Signer TokenSigner

	// BranchTimeout bounds each branch of the pass. NewOrchestrator
	// sets DefaultBranchTimeout; zero falls back to the caller's
	// context as the only bound.
	BranchTimeout time.Duration
}

// DefaultBranchTimeout bounds a single sync branch. The revocation
// branch descends into many slices, so the bound is generous; the
// per-request timeout on the gateway client is the tighter limit.
const DefaultBranchTimeout = 5 * time.Minute

// NewOrchestrator wires a sync pass over the gateway, the local dataset
// and the revocation store.
func NewOrchestrator(gw Gateway, local *localdata.Manager, store *revocation.Store, appVersion string) *Orchestrator {
	return &Orchestrator{
		gw:            gw,
		local:         local,
		worker:        NewRevocationWorker(gw, store),
		appVersion:    appVersion,
		BranchTimeout: DefaultBranchTimeout,
	}
}

// Refresh runs the pass: signer keys, country list, rules, value sets,
// revocation data, and the wallet lookup when a Signer is configured.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	defer metricskey.PerfSync.MeasureSince(time.Now())

	var (
		wg   sync.WaitGroup
		lock sync.Mutex
		errs []error
	)
	run := func(name string, fn func(ctx context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()

			bctx := ctx
			if o.BranchTimeout > 0 {
				var cancel context.CancelFunc
				bctx, cancel = context.WithTimeout(ctx, o.BranchTimeout)
				defer cancel()
			}
			if err := fn(bctx); err != nil {
				logger.ContextKV(ctx, xlog.ERROR, "branch", name, "err", err.Error())
				lock.Lock()
				errs = append(errs, errors.WithMessagef(err, "%s branch failed", name))
				lock.Unlock()
			}
		}()
	}

	run("keys", o.syncKeys)
	run("countries", o.syncCountries)
	run("rules", o.syncRules)
	run("valuesets", o.syncValueSets)
	run("revocation", o.syncRevocation)
	if o.Signer != nil {
		run("wallet", o.syncWallet)
	}
	wg.Wait()

	if len(errs) > 0 {
		metricskey.HealthSyncFailed.IncrCounter(1)
		return errors.Join(errs...)
	}

	o.local.StampFetch(time.Now(), o.appVersion)
	if err := o.local.Save(); err != nil {
		metricskey.HealthSyncFailed.IncrCounter(1)
		return err
	}
	metricskey.HealthSyncSuccessful.IncrCounter(1)
	logger.ContextKV(ctx, xlog.INFO, "status", "sync_complete", "app_version", o.appVersion)
	return nil
}

// syncKeys pulls the key update stream until exhausted, then prunes the
// key map to the signers the status endpoint still lists.
func (o *Orchestrator) syncKeys(ctx context.Context) error {
	for {
		upd, err := o.gw.Update(ctx, o.local.ResumeToken())
		if err != nil {
			return err
		}
		if upd == nil {
			break
		}
		o.local.AddEncodedPublicKey(upd.KID, upd.EncodedPublicKey)
		o.local.SetResumeToken(upd.ResumeToken)
	}

	kids, err := o.gw.Status(ctx)
	if err != nil {
		return err
	}
	o.local.KeepKeys(kids)
	return nil
}

func (o *Orchestrator) syncCountries(ctx context.Context) error {
	countries, err := o.gw.CountryList(ctx)
	if err != nil {
		return err
	}
	o.local.SetCountries(countries)
	return nil
}

func (o *Orchestrator) syncRules(ctx context.Context) error {
	manifest, err := o.gw.Rules(ctx)
	if err != nil {
		return err
	}
	remote := make([]Item, 0, len(manifest))
	for _, m := range manifest {
		remote = append(remote, Item{Key: m.Country, Hash: m.Hash})
	}

	fetch := func(ctx context.Context, it Item) ([]byte, error) {
		return o.gw.Rule(ctx, it.Key, it.Hash)
	}
	commit := func(it Item, body []byte) error {
		var rule validity.Rule
		if err := json.Unmarshal(body, &rule); err != nil {
			return errors.WithMessagef(err, "malformed rule %s", it.Hash)
		}
		rule.Hash = it.Hash
		o.local.AddRule(rule)
		return nil
	}
	return o.manifests.Sync(ctx, o.local.RuleHashes(), remote, fetch, commit, o.local.RemoveRuleByHash)
}

func (o *Orchestrator) syncValueSets(ctx context.Context) error {
	manifest, err := o.gw.ValueSets(ctx)
	if err != nil {
		return err
	}
	remote := make([]Item, 0, len(manifest))
	for _, m := range manifest {
		remote = append(remote, Item{Key: m.ID, Hash: m.Hash})
	}

	fetch := func(ctx context.Context, it Item) ([]byte, error) {
		return o.gw.ValueSet(ctx, it.Hash)
	}
	commit := func(it Item, body []byte) error {
		var vs validity.ValueSet
		if err := json.Unmarshal(body, &vs); err != nil {
			return errors.WithMessagef(err, "malformed value set %s", it.Hash)
		}
		vs.Hash = it.Hash
		o.local.AddValueSet(vs)
		return nil
	}
	return o.manifests.Sync(ctx, o.local.ValueSetHashes(), remote, fetch, commit, o.local.RemoveValueSetByHash)
}

// syncWallet asks the gateway which of the held certificates are
// revoked. The gateway answers with hash prefixes; a held certificate
// whose payload hash matches a returned prefix is flagged revoked, and
// a certificate no longer reported is cleared.
func (o *Orchestrator) syncWallet(ctx context.Context) error {
	certs := o.local.Certificates()
	if len(certs) == 0 {
		return nil
	}

	hashes := make([]string, 0, len(certs))
	for _, c := range certs {
		hashes = append(hashes, hashutil.SHA256Hex([]byte(c.Payload)))
	}
	token, err := o.Signer(hashes)
	if err != nil {
		return errors.WithMessage(err, "unable to sign lookup token")
	}
	revoked, err := o.gw.Lookup(ctx, []string{token})
	if err != nil {
		return err
	}

	flagged := make(map[string]bool, len(revoked))
	for i, c := range certs {
		for _, prefix := range revoked {
			if strings.HasPrefix(hashes[i], prefix) {
				flagged[c.Payload] = true
				break
			}
		}
	}
	if changed := o.local.MarkRevoked(flagged); changed > 0 {
		logger.ContextKV(ctx, xlog.INFO, "status", "wallet_revocations", "changed", changed)
	}
	return nil
}

// syncRevocation runs the revocation worker. The gateway is known to
// answer 404 transiently while its lists rotate, so a not-found failure
// gets one bounded retry; success on the retry is branch success.
func (o *Orchestrator) syncRevocation(ctx context.Context) error {
	err := o.worker.Refresh(ctx)
	if err != nil && httperror.IsNotFound(err) {
		logger.ContextKV(ctx, xlog.WARNING, "reason", "revocation_not_found", "action", "retry")
		err = o.worker.Refresh(ctx)
	}
	return err
}
