// Package tlsconfig builds the client TLS configuration for the
// gateway connection. The gateway requires mutual TLS; terminal
// deployments rotate their client certificates, so the keypair is
// reloaded from disk when the files change.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"time"

	"github.com/effective-security/xlog"
	"github.com/pkg/errors"
)

var logger = xlog.NewPackageLogger("github.com/trustpass/inspect/pkg", "tlsconfig")

// DefaultCheckInterval between keypair file checks.
const DefaultCheckInterval = 5 * time.Minute

// ClientConfig specifies the client TLS material.
type ClientConfig struct {
	// CertFile and KeyFile are the PEM encoded client certificate and key.
	CertFile string `json:"cert_file" yaml:"cert_file"`
	KeyFile  string `json:"key_file" yaml:"key_file"`

	// TrustedCAFile is the PEM bundle of trusted gateway roots;
	// empty means the system pool.
	TrustedCAFile string `json:"trusted_ca_file" yaml:"trusted_ca_file"`
}

// Empty returns true when no client TLS is configured.
func (c *ClientConfig) Empty() bool {
	return c == nil || (c.CertFile == "" && c.TrustedCAFile == "")
}

// NewClientTLS builds a *tls.Config from the config. When a client
// certificate is configured, the returned reloader keeps it fresh and
// must be closed when the connection is discarded; it is nil otherwise.
func NewClientTLS(cfg *ClientConfig) (*tls.Config, *KeypairReloader, error) {
	if cfg.Empty() {
		return nil, nil, nil
	}

	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if cfg.TrustedCAFile != "" {
		pool, err := rootCAs(cfg.TrustedCAFile)
		if err != nil {
			return nil, nil, err
		}
		tlsCfg.RootCAs = pool
	}

	if cfg.CertFile == "" {
		return tlsCfg, nil, nil
	}

	reloader, err := NewKeypairReloader("gateway", cfg.CertFile, cfg.KeyFile, DefaultCheckInterval)
	if err != nil {
		return nil, nil, err
	}
	tlsCfg.GetClientCertificate = reloader.GetClientCertificateFunc()
	return tlsCfg, reloader, nil
}

func rootCAs(file string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to read trusted CA bundle %q", file)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.Errorf("no certificates found in %q", file)
	}
	return pool, nil
}
