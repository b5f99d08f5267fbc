// Package inspect assembles the certificate inspection engine: the
// local dataset, the gateway client, the sync pipeline and the
// validity state machine, behind one explicitly wired service.
package inspect

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/go-jose/go-jose/v3"
	"github.com/mitchellh/go-homedir"

	"github.com/trustpass/inspect/pkg/cache"
	"github.com/trustpass/inspect/pkg/certificate"
	"github.com/trustpass/inspect/pkg/datasync"
	"github.com/trustpass/inspect/pkg/gateway"
	"github.com/trustpass/inspect/pkg/localdata"
	"github.com/trustpass/inspect/pkg/revocation"
	"github.com/trustpass/inspect/pkg/tasks"
	"github.com/trustpass/inspect/pkg/validity"
	"github.com/trustpass/inspect/xhttp/httperror"
)

var logger = xlog.NewPackageLogger("github.com/trustpass/inspect/pkg", "inspect")

// Service is the inspection engine. All collaborators are wired
// explicitly at construction; there is no global state.
type Service struct {
	cfg       *Config
	gw        datasync.Gateway
	local     *localdata.Manager
	store     *revocation.Store
	orch      *datasync.Orchestrator
	validator *validity.Validator
	cacheProv cache.Provider
	scheduler tasks.Scheduler
}

// New creates the service from configuration. The rule engine is an
// external collaborator supplied by the caller.
func New(cfg *Config, engine validity.RuleEngine) (*Service, error) {
	gw, err := gateway.New(&cfg.Gateway)
	if err != nil {
		return nil, err
	}
	return NewWithGateway(cfg, engine, gw)
}

// NewWithGateway creates the service over the supplied gateway.
func NewWithGateway(cfg *Config, engine validity.RuleEngine, gw datasync.Gateway) (*Service, error) {
	if cfg.ExpiryInterval <= 0 {
		cfg.ExpiryInterval = DefaultExpiryInterval
	}

	prov, err := cache.New(&cfg.Cache, "inspect")
	if err != nil {
		return nil, err
	}
	local, err := localdata.NewManager(cfg.StorageFolder)
	if err != nil {
		_ = prov.Close()
		return nil, err
	}

	store := revocation.NewStore(cache.NewProxyProvider("revocation", prov))
	svc := &Service{
		cfg:       cfg,
		gw:        gw,
		local:     local,
		store:     store,
		orch:      datasync.NewOrchestrator(gw, local, store, cfg.AppVersion),
		validator: validity.NewValidator(engine, local, store),
		cacheProv: prov,
	}

	if cfg.WalletKeyFile != "" {
		key, err := loadWalletKey(cfg.WalletKeyFile)
		if err != nil {
			_ = prov.Close()
			return nil, err
		}
		svc.orch.Signer = func(hashes []string) (string, error) {
			return gateway.NewLookupToken(key, jose.ES256, hashes)
		}
	}
	return svc, nil
}

// loadWalletKey reads the PEM-encoded EC private key used to sign
// wallet lookup tokens.
func loadWalletKey(file string) (*ecdsa.PrivateKey, error) {
	path, err := homedir.Expand(file)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to expand %q", file)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to read wallet key %q", path)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.Errorf("no PEM block in wallet key %q", path)
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to parse wallet key %q", path)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.Errorf("wallet key %q is not an EC key", path)
	}
	return key, nil
}

// LocalData returns the local dataset manager.
func (s *Service) LocalData() *localdata.Manager {
	return s.local
}

// RevocationStore returns the revocation store.
func (s *Service) RevocationStore() *revocation.Store {
	return s.store
}

// LastUpdate returns the completion time of the last successful sync.
func (s *Service) LastUpdate() time.Time {
	return s.local.LastFetch()
}

// PrepareLocalData makes the dataset usable: it refreshes when the
// dataset is empty, stale, or was written by a different application
// version. A failed refresh over a usable cached dataset is a soft
// failure; without trusted keys the engine cannot validate anything
// and the error is hard.
func (s *Service) PrepareLocalData(ctx context.Context) error {
	if !s.needsRefresh() {
		return nil
	}

	err := s.UpdateLocalData(ctx)
	if err == nil {
		return nil
	}
	if !s.local.HasKeys() {
		return httperror.NoInputData("no local data and sync failed").WithCause(err)
	}
	logger.ContextKV(ctx, xlog.WARNING,
		"reason", "refresh_failed",
		"last_fetch", s.local.LastFetch(),
		"err", err.Error())
	return nil
}

func (s *Service) needsRefresh() bool {
	if !s.local.HasKeys() {
		return true
	}
	if s.local.LastAppVersion() != s.cfg.AppVersion {
		return true
	}
	return time.Since(s.local.LastFetch()) > s.cfg.ExpiryInterval
}

// UpdateLocalData runs one full sync pass.
func (s *Service) UpdateLocalData(ctx context.Context) error {
	return s.orch.Refresh(ctx)
}

// CheckValidity runs the validity state machine over the certificate
// against the local dataset.
func (s *Service) CheckValidity(ctx context.Context, cert *certificate.Certificate) validity.ValidityState {
	return s.validator.Validate(ctx, cert)
}

// StartScheduler begins background refresh per the configured schedule.
// It is a no-op when no schedule is configured.
func (s *Service) StartScheduler() error {
	if s.cfg.RefreshSchedule == "" {
		return nil
	}

	task, err := tasks.NewTask(s.cfg.RefreshSchedule)
	if err != nil {
		return err
	}
	task.Do("refresh", func() {
		ctx := context.Background()
		if err := s.UpdateLocalData(ctx); err != nil {
			logger.KV(xlog.ERROR, "reason", "scheduled_refresh", "err", err.Error())
		}
	})

	s.scheduler = tasks.NewScheduler().Add(task)
	return s.scheduler.Start()
}

// Close stops the scheduler and releases the gateway connection and
// the cache provider.
func (s *Service) Close() error {
	if s.scheduler != nil && s.scheduler.IsRunning() {
		_ = s.scheduler.Stop()
	}
	if c, ok := s.gw.(io.Closer); ok {
		_ = c.Close()
	}
	return s.cacheProv.Close()
}
