package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/effective-security/xlog"
	"github.com/pkg/errors"
)

// Wrap time.Tick so we can override it in tests.
var makeTicker = func(interval time.Duration) (func(), <-chan time.Time) {
	t := time.NewTicker(interval)
	return t.Stop, t.C
}

// KeypairReloader watches a certificate and key pair on disk and
// serves the freshest parse to the TLS handshake.
type KeypairReloader struct {
	label          string
	lock           sync.RWMutex
	loadedAt       time.Time
	count          uint32
	keypair        *tls.Certificate
	certPath       string
	certModifiedAt time.Time
	keyPath        string
	keyModifiedAt  time.Time
	stopChan       chan struct{}
	closed         bool
}

// NewKeypairReloader loads the pair and starts watching the files.
func NewKeypairReloader(label, certPath, keyPath string, checkInterval time.Duration) (*KeypairReloader, error) {
	if label == "" {
		label = path.Base(certPath)
	}

	k := &KeypairReloader{
		label:    label,
		certPath: certPath,
		keyPath:  keyPath,
		stopChan: make(chan struct{}),
	}
	if err := k.Reload(); err != nil {
		return nil, err
	}

	tickerStop, tickChan := makeTicker(checkInterval)
	go func() {
		for {
			select {
			case <-k.stopChan:
				tickerStop()
				logger.KV(xlog.TRACE, "status", "closed", "label", k.label, "count", k.LoadedCount())
				return
			case <-tickChan:
				if k.modified() {
					if err := k.Reload(); err != nil {
						logger.KV(xlog.ERROR, "label", k.label, "err", err.Error())
					}
				}
			}
		}
	}()
	return k, nil
}

func (k *KeypairReloader) modified() bool {
	k.lock.RLock()
	defer k.lock.RUnlock()

	for _, f := range []struct {
		file string
		at   time.Time
	}{
		{k.certPath, k.certModifiedAt},
		{k.keyPath, k.keyModifiedAt},
	} {
		fi, err := os.Stat(f.file)
		if err != nil {
			logger.KV(xlog.WARNING, "reason", "stat", "label", k.label, "file", f.file, "err", err.Error())
			continue
		}
		if fi.ModTime().After(f.at) {
			return true
		}
	}
	return false
}

// Reload explicitly loads the pair from disk.
func (k *KeypairReloader) Reload() error {
	pair, err := tls.LoadX509KeyPair(k.certPath, k.keyPath)
	if err != nil {
		return errors.WithMessagef(err, "failed to load keypair %q", k.certPath)
	}
	if pair.Leaf == nil && len(pair.Certificate) > 0 {
		pair.Leaf, _ = x509.ParseCertificate(pair.Certificate[0])
	}
	if pair.Leaf != nil && pair.Leaf.NotAfter.Before(time.Now()) {
		logger.KV(xlog.ERROR, "label", k.label, "cert", k.certPath, "expired", pair.Leaf.NotAfter.Format(time.RFC3339))
	}

	k.lock.Lock()
	defer k.lock.Unlock()

	k.keypair = &pair
	k.loadedAt = time.Now().UTC()
	atomic.AddUint32(&k.count, 1)

	if fi, err := os.Stat(k.certPath); err == nil {
		k.certModifiedAt = fi.ModTime()
	}
	if fi, err := os.Stat(k.keyPath); err == nil {
		k.keyModifiedAt = fi.ModTime()
	}

	logger.KV(xlog.INFO, "status", "loaded", "label", k.label, "count", k.count, "cert", k.certPath)
	return nil
}

// GetClientCertificateFunc is a callback for tls.Config to provide the
// current client certificate.
func (k *KeypairReloader) GetClientCertificateFunc() func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
	return func(_ *tls.CertificateRequestInfo) (*tls.Certificate, error) {
		return k.Keypair(), nil
	}
}

// Keypair returns the current pair.
func (k *KeypairReloader) Keypair() *tls.Certificate {
	if k == nil {
		return nil
	}
	k.lock.RLock()
	defer k.lock.RUnlock()
	return k.keypair
}

// LoadedAt returns the last time the pair was loaded.
func (k *KeypairReloader) LoadedAt() time.Time {
	k.lock.RLock()
	defer k.lock.RUnlock()
	return k.loadedAt
}

// LoadedCount returns the number of times the pair was loaded from disk.
func (k *KeypairReloader) LoadedCount() uint32 {
	return atomic.LoadUint32(&k.count)
}

// Close stops the file watcher.
func (k *KeypairReloader) Close() error {
	if k == nil {
		return nil
	}

	k.lock.Lock()
	defer k.lock.Unlock()
	if k.closed {
		return errors.New("already closed")
	}
	k.closed = true
	close(k.stopChan)
	return nil
}
