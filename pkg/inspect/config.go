package inspect

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/trustpass/inspect/pkg/cache"
	"github.com/trustpass/inspect/pkg/gateway"
)

// DefaultExpiryInterval is how long a synced dataset stays fresh.
const DefaultExpiryInterval = 24 * time.Hour

// Config provides configuration for the inspection service.
type Config struct {
	// Gateway configures the backend gateway client.
	Gateway gateway.Config `json:"gateway" yaml:"gateway"`

	// Cache configures the revocation store provider.
	Cache cache.Config `json:"cache" yaml:"cache"`

	// StorageFolder holds the persisted local dataset.
	StorageFolder string `json:"storage_folder" yaml:"storage_folder"`

	// ExpiryInterval is the age after which the local dataset is
	// considered stale and refreshed on prepare.
	ExpiryInterval time.Duration `json:"expiry_interval" yaml:"expiry_interval"`

	// RefreshSchedule is the background refresh interval in the
	// "every N minutes" syntax; empty disables the scheduler.
	RefreshSchedule string `json:"refresh_schedule" yaml:"refresh_schedule"`

	// AppVersion is recorded with each successful sync; a version
	// change forces a refresh on prepare.
	AppVersion string `json:"app_version" yaml:"app_version"`

	// WalletKeyFile is the PEM-encoded EC private key used to sign
	// wallet lookup tokens; empty disables the wallet lookup branch.
	WalletKeyFile string `json:"wallet_key_file,omitempty" yaml:"wallet_key_file,omitempty"`
}

// LoadConfig reads the YAML configuration from the file.
func LoadConfig(file string) (*Config, error) {
	path, err := homedir.Expand(file)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to expand %q", file)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to read %q", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.WithMessagef(err, "failed to parse %q", path)
	}
	if cfg.ExpiryInterval <= 0 {
		cfg.ExpiryInterval = DefaultExpiryInterval
	}
	return &cfg, nil
}
