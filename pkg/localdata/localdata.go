// Package localdata persists the verifier's offline dataset: trusted
// public keys, wallet certificates, the country list, business rules and
// value sets, together with the sync bookkeeping needed to resume an
// interrupted key update stream.
package localdata

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/mitchellh/go-homedir"
	"github.com/ugorji/go/codec"

	"github.com/trustpass/inspect/pkg/certificate"
	"github.com/trustpass/inspect/pkg/validity"
)

var logger = xlog.NewPackageLogger("github.com/trustpass/inspect/pkg", "localdata")

// fileName is the snapshot file within the storage folder.
const fileName = "localdata.json"

var jsonHandle codec.Handle = &codec.JsonHandle{}

// Data is the persisted snapshot. It is written as one unit: a sync pass
// mutates the in-memory copy and commits with Save only after every branch
// succeeded.
type Data struct {
	// EncodedPublicKeys maps a signer KID to its base64 encoded public keys.
	// A KID may carry several keys while a signer rotates.
	EncodedPublicKeys map[string][]string `json:"encodedPublicKeys"`

	Certificates []certificate.Dated `json:"certificates,omitempty"`
	Countries    []string            `json:"countries,omitempty"`
	Rules        []validity.Rule     `json:"rules,omitempty"`
	ValueSets    []validity.ValueSet `json:"valueSets,omitempty"`

	// ResumeToken marks the position in the key update stream.
	ResumeToken string `json:"resumeToken,omitempty"`

	// LastFetch is the completion time of the last fully successful sync.
	LastFetch time.Time `json:"lastFetch,omitempty"`
	// LastAppVersion is the application version that wrote LastFetch.
	LastAppVersion string `json:"lastAppVersion,omitempty"`
}

// Manager owns the snapshot file. All access goes through the manager:
// the sync pipeline is the single writer, validators read consistent
// copies under the read lock.
type Manager struct {
	lock sync.RWMutex
	file string
	data Data
}

// NewManager opens the snapshot under the given storage folder, creating
// the folder when absent. A missing snapshot file yields an empty dataset.
func NewManager(folder string) (*Manager, error) {
	dir, err := homedir.Expand(folder)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to expand storage folder %q", folder)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.WithMessagef(err, "failed to create storage folder %q", dir)
	}

	m := &Manager{
		file: filepath.Join(dir, fileName),
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	raw, err := os.ReadFile(m.file)
	if err != nil {
		if os.IsNotExist(err) {
			logger.KV(xlog.DEBUG, "status", "no_snapshot", "file", m.file)
			return nil
		}
		return errors.WithMessagef(err, "failed to read %s", m.file)
	}

	var data Data
	if err := codec.NewDecoderBytes(raw, jsonHandle).Decode(&data); err != nil {
		return errors.WithMessagef(err, "malformed snapshot %s", m.file)
	}
	m.data = data
	logger.KV(xlog.INFO, "status", "loaded",
		"file", m.file,
		"keys", len(data.EncodedPublicKeys),
		"rules", len(data.Rules),
		"last_fetch", data.LastFetch)
	return nil
}

// Save writes the snapshot atomically: encode to a temp file in the same
// folder, then rename over the previous snapshot.
func (m *Manager) Save() error {
	m.lock.RLock()
	var buf bytes.Buffer
	err := codec.NewEncoder(&buf, jsonHandle).Encode(&m.data)
	m.lock.RUnlock()
	if err != nil {
		return errors.WithMessage(err, "failed to encode snapshot")
	}

	tmp := m.file + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return errors.WithMessagef(err, "failed to write %s", tmp)
	}
	if err := os.Rename(tmp, m.file); err != nil {
		return errors.WithMessagef(err, "failed to replace %s", m.file)
	}
	return nil
}

// Snapshot returns a copy of the dataset. Slices and the key map are
// cloned so the caller can hold the copy across writer activity.
func (m *Manager) Snapshot() Data {
	m.lock.RLock()
	defer m.lock.RUnlock()

	out := m.data
	if m.data.EncodedPublicKeys != nil {
		out.EncodedPublicKeys = make(map[string][]string, len(m.data.EncodedPublicKeys))
		for kid, keys := range m.data.EncodedPublicKeys {
			out.EncodedPublicKeys[kid] = append([]string(nil), keys...)
		}
	}
	out.Certificates = append([]certificate.Dated(nil), m.data.Certificates...)
	out.Countries = append([]string(nil), m.data.Countries...)
	out.Rules = append([]validity.Rule(nil), m.data.Rules...)
	out.ValueSets = append([]validity.ValueSet(nil), m.data.ValueSets...)
	return out
}

// Update runs fn with the dataset under the write lock. The sync pipeline
// uses it to apply a branch result as one step.
func (m *Manager) Update(fn func(d *Data)) {
	m.lock.Lock()
	defer m.lock.Unlock()
	fn(&m.data)
}

// AddEncodedPublicKey records a key for the signer, skipping duplicates.
func (m *Manager) AddEncodedPublicKey(kid, encoded string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.data.EncodedPublicKeys == nil {
		m.data.EncodedPublicKeys = map[string][]string{}
	}
	for _, k := range m.data.EncodedPublicKeys[kid] {
		if k == encoded {
			return
		}
	}
	m.data.EncodedPublicKeys[kid] = append(m.data.EncodedPublicKeys[kid], encoded)
}

// KeepKeys prunes the key map to the given KIDs. The status endpoint is
// authoritative: a KID it no longer lists has been withdrawn.
func (m *Manager) KeepKeys(kids []string) {
	keep := make(map[string]bool, len(kids))
	for _, kid := range kids {
		keep[kid] = true
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	for kid := range m.data.EncodedPublicKeys {
		if !keep[kid] {
			logger.KV(xlog.INFO, "status", "key_withdrawn", "kid", kid)
			delete(m.data.EncodedPublicKeys, kid)
		}
	}
}

// PublicKeys returns the encoded keys of a signer.
func (m *Manager) PublicKeys(kid string) []string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return append([]string(nil), m.data.EncodedPublicKeys[kid]...)
}

// HasKeys reports whether any trusted key is present. Validation is not
// possible without keys; the caller treats an empty key set after a failed
// sync as a hard no-input-data condition.
func (m *Manager) HasKeys() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.data.EncodedPublicKeys) > 0
}

// ResumeToken returns the key update stream position.
func (m *Manager) ResumeToken() string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.data.ResumeToken
}

// SetResumeToken advances the key update stream position.
func (m *Manager) SetResumeToken(token string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.data.ResumeToken = token
}

// SetCountries replaces the country list.
func (m *Manager) SetCountries(countries []string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.data.Countries = append([]string(nil), countries...)
}

// Countries returns the country list.
func (m *Manager) Countries() []string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return append([]string(nil), m.data.Countries...)
}

// HasRuleHash reports whether a rule with the content hash is stored.
func (m *Manager) HasRuleHash(hash string) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()

	for i := range m.data.Rules {
		if m.data.Rules[i].Hash == hash {
			return true
		}
	}
	return false
}

// RuleHashes returns the content hashes of the stored rules.
func (m *Manager) RuleHashes() []string {
	m.lock.RLock()
	defer m.lock.RUnlock()

	out := make([]string, 0, len(m.data.Rules))
	for i := range m.data.Rules {
		out = append(out, m.data.Rules[i].Hash)
	}
	return out
}

// AddRule stores a rule fetched from the gateway.
func (m *Manager) AddRule(r validity.Rule) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.data.Rules = append(m.data.Rules, r)
}

// RemoveRuleByHash drops the rule with the content hash, if stored.
func (m *Manager) RemoveRuleByHash(hash string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	for i := range m.data.Rules {
		if m.data.Rules[i].Hash == hash {
			m.data.Rules = append(m.data.Rules[:i], m.data.Rules[i+1:]...)
			return
		}
	}
}

// Rules returns the rules applicable to the country and certificate type.
// An empty country returns all stored rules.
func (m *Manager) Rules(country string) []validity.Rule {
	m.lock.RLock()
	defer m.lock.RUnlock()

	if country == "" {
		return append([]validity.Rule(nil), m.data.Rules...)
	}
	var out []validity.Rule
	for i := range m.data.Rules {
		if m.data.Rules[i].CountryCode == country {
			out = append(out, m.data.Rules[i])
		}
	}
	return out
}

// HasValueSetHash reports whether a value set with the content hash is stored.
func (m *Manager) HasValueSetHash(hash string) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()

	for i := range m.data.ValueSets {
		if m.data.ValueSets[i].Hash == hash {
			return true
		}
	}
	return false
}

// ValueSetHashes returns the content hashes of the stored value sets.
func (m *Manager) ValueSetHashes() []string {
	m.lock.RLock()
	defer m.lock.RUnlock()

	out := make([]string, 0, len(m.data.ValueSets))
	for i := range m.data.ValueSets {
		out = append(out, m.data.ValueSets[i].Hash)
	}
	return out
}

// AddValueSet stores a value set fetched from the gateway.
func (m *Manager) AddValueSet(vs validity.ValueSet) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.data.ValueSets = append(m.data.ValueSets, vs)
}

// RemoveValueSetByHash drops the value set with the content hash, if stored.
func (m *Manager) RemoveValueSetByHash(hash string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	for i := range m.data.ValueSets {
		if m.data.ValueSets[i].Hash == hash {
			m.data.ValueSets = append(m.data.ValueSets[:i], m.data.ValueSets[i+1:]...)
			return
		}
	}
}

// ExternalValueSets returns the value set codes keyed by set id, in the
// shape the rule engine's external parameters expect.
func (m *Manager) ExternalValueSets() map[string][]string {
	m.lock.RLock()
	defer m.lock.RUnlock()

	out := make(map[string][]string, len(m.data.ValueSets))
	for i := range m.data.ValueSets {
		vs := &m.data.ValueSets[i]
		out[vs.ID] = vs.Codes()
	}
	return out
}

// AddCertificate records a wallet certificate.
func (m *Manager) AddCertificate(c certificate.Dated) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.data.Certificates = append(m.data.Certificates, c)
}

// Certificates returns the stored wallet certificates.
func (m *Manager) Certificates() []certificate.Dated {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return append([]certificate.Dated(nil), m.data.Certificates...)
}

// MarkRevoked flags the wallet certificates whose payload is in the
// revoked set and reports how many changed.
func (m *Manager) MarkRevoked(payloads map[string]bool) int {
	m.lock.Lock()
	defer m.lock.Unlock()

	changed := 0
	for i := range m.data.Certificates {
		revoked := payloads[m.data.Certificates[i].Payload]
		if m.data.Certificates[i].Revoked != revoked {
			m.data.Certificates[i].Revoked = revoked
			changed++
		}
	}
	return changed
}

// LastFetch returns the completion time of the last successful sync,
// zero when the dataset has never been synced.
func (m *Manager) LastFetch() time.Time {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.data.LastFetch
}

// LastAppVersion returns the application version of the last sync.
func (m *Manager) LastAppVersion() string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.data.LastAppVersion
}

// StampFetch records a fully successful sync. It is called only after
// every branch of the pass succeeded.
func (m *Manager) StampFetch(at time.Time, appVersion string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.data.LastFetch = at
	m.data.LastAppVersion = appVersion
}
