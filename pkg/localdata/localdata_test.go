package localdata_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trustpass/inspect/pkg/certificate"
	"github.com/trustpass/inspect/pkg/localdata"
	"github.com/trustpass/inspect/pkg/validity"
)

func TestLoadSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()

	m, err := localdata.NewManager(dir)
	require.NoError(t, err)
	assert.False(t, m.HasKeys())
	assert.True(t, m.LastFetch().IsZero())

	m.AddEncodedPublicKey("kid1", "MFkw...")
	m.AddEncodedPublicKey("kid1", "MFkw...") // duplicate ignored
	m.AddEncodedPublicKey("kid2", "MHcw...")
	m.SetResumeToken("token-42")
	m.SetCountries([]string{"DE", "FR"})
	m.AddRule(validity.Rule{Identifier: "GR-DE-1", CountryCode: "DE", Hash: "aa11"})
	m.AddValueSet(validity.ValueSet{
		ID:     "disease-agent-targeted",
		Values: map[string]json.RawMessage{"840539006": json.RawMessage(`{}`)},
		Hash:   "bb22",
	})
	m.AddCertificate(certificate.Dated{Date: time.Now().UTC(), Payload: "HC1:AAA"})
	m.StampFetch(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC), "1.4.0")

	require.NoError(t, m.Save())

	reopened, err := localdata.NewManager(dir)
	require.NoError(t, err)
	assert.True(t, reopened.HasKeys())
	assert.Equal(t, []string{"MFkw..."}, reopened.PublicKeys("kid1"))
	assert.Equal(t, "token-42", reopened.ResumeToken())
	assert.Equal(t, []string{"DE", "FR"}, reopened.Countries())
	assert.True(t, reopened.HasRuleHash("aa11"))
	assert.True(t, reopened.HasValueSetHash("bb22"))
	require.Len(t, reopened.Certificates(), 1)
	assert.Equal(t, "HC1:AAA", reopened.Certificates()[0].Payload)
	assert.Equal(t, "1.4.0", reopened.LastAppVersion())
	assert.Equal(t, time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC), reopened.LastFetch().UTC())
}

func TestMalformedSnapshot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "localdata.json"), []byte("{not json"), 0644))

	_, err := localdata.NewManager(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed snapshot")
}

func TestKeepKeys(t *testing.T) {
	m, err := localdata.NewManager(t.TempDir())
	require.NoError(t, err)

	m.AddEncodedPublicKey("kid1", "k1")
	m.AddEncodedPublicKey("kid2", "k2")
	m.AddEncodedPublicKey("kid3", "k3")

	m.KeepKeys([]string{"kid1", "kid3"})
	assert.Equal(t, []string{"k1"}, m.PublicKeys("kid1"))
	assert.Empty(t, m.PublicKeys("kid2"))
	assert.Equal(t, []string{"k3"}, m.PublicKeys("kid3"))
}

func TestRuleDiffHelpers(t *testing.T) {
	m, err := localdata.NewManager(t.TempDir())
	require.NoError(t, err)

	m.AddRule(validity.Rule{Identifier: "GR-DE-1", CountryCode: "DE", Hash: "h1"})
	m.AddRule(validity.Rule{Identifier: "GR-DE-2", CountryCode: "DE", Hash: "h2"})
	m.AddRule(validity.Rule{Identifier: "GR-FR-1", CountryCode: "FR", Hash: "h3"})

	assert.ElementsMatch(t, []string{"h1", "h2", "h3"}, m.RuleHashes())
	assert.Len(t, m.Rules("DE"), 2)
	assert.Len(t, m.Rules(""), 3)

	m.RemoveRuleByHash("h2")
	assert.False(t, m.HasRuleHash("h2"))
	assert.Len(t, m.Rules("DE"), 1)

	// removing an unknown hash is a no-op
	m.RemoveRuleByHash("h2")
	assert.Len(t, m.Rules(""), 2)
}

func TestExternalValueSets(t *testing.T) {
	m, err := localdata.NewManager(t.TempDir())
	require.NoError(t, err)

	m.AddValueSet(validity.ValueSet{
		ID: "country-2-codes",
		Values: map[string]json.RawMessage{
			"DE": json.RawMessage(`{}`),
			"FR": json.RawMessage(`{}`),
		},
		Hash: "h1",
	})
	m.AddValueSet(validity.ValueSet{
		ID:     "disease-agent-targeted",
		Values: map[string]json.RawMessage{"840539006": json.RawMessage(`{}`)},
		Hash:   "h2",
	})

	ext := m.ExternalValueSets()
	assert.ElementsMatch(t, []string{"DE", "FR"}, ext["country-2-codes"])
	assert.Equal(t, []string{"840539006"}, ext["disease-agent-targeted"])

	m.RemoveValueSetByHash("h1")
	assert.NotContains(t, m.ExternalValueSets(), "country-2-codes")
}

func TestMarkRevoked(t *testing.T) {
	m, err := localdata.NewManager(t.TempDir())
	require.NoError(t, err)

	m.AddCertificate(certificate.Dated{Payload: "HC1:AAA"})
	m.AddCertificate(certificate.Dated{Payload: "HC1:BBB", Revoked: true})
	m.AddCertificate(certificate.Dated{Payload: "HC1:CCC"})

	changed := m.MarkRevoked(map[string]bool{"HC1:AAA": true})
	assert.Equal(t, 2, changed, "AAA flagged, BBB cleared")

	certs := m.Certificates()
	assert.True(t, certs[0].Revoked)
	assert.False(t, certs[1].Revoked)
	assert.False(t, certs[2].Revoked)
}

func TestSnapshotIsolation(t *testing.T) {
	m, err := localdata.NewManager(t.TempDir())
	require.NoError(t, err)

	m.AddEncodedPublicKey("kid1", "k1")
	m.SetCountries([]string{"DE"})

	snap := m.Snapshot()
	m.AddEncodedPublicKey("kid1", "k2")
	m.SetCountries([]string{"DE", "FR"})

	assert.Equal(t, []string{"k1"}, snap.EncodedPublicKeys["kid1"])
	assert.Equal(t, []string{"DE"}, snap.Countries)
}
