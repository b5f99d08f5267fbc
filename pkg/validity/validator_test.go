package validity_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trustpass/inspect/pkg/cache"
	"github.com/trustpass/inspect/pkg/certificate"
	"github.com/trustpass/inspect/pkg/filter"
	"github.com/trustpass/inspect/pkg/hashutil"
	"github.com/trustpass/inspect/pkg/revocation"
	"github.com/trustpass/inspect/pkg/validity"
)

type fakeEngine struct {
	results map[validity.RuleKind][]validity.RuleResult
	calls   []validity.RuleKind

	lastFilter   validity.FilterParameter
	lastExternal validity.ExternalParameter
}

func (f *fakeEngine) Validate(_ context.Context, kind validity.RuleKind, fp validity.FilterParameter, ep validity.ExternalParameter, _ string) []validity.RuleResult {
	f.calls = append(f.calls, kind)
	f.lastFilter = fp
	f.lastExternal = ep
	return f.results[kind]
}

type fakeValueSets map[string][]string

func (f fakeValueSets) ExternalValueSets() map[string][]string { return f }

func newCert() *certificate.Certificate {
	now := time.Now()
	return &certificate.Certificate{
		Payload:       "HC1:ABCDEF",
		Body:          `{"v":[{"tg":"840539006"}]}`,
		IssuedAt:      now.Add(-24 * time.Hour),
		ExpiresAt:     now.Add(24 * time.Hour),
		IssuerCountry: "DE",
		RuleCountry:   "DE",
		KID:           "s1dR2k3a",
		Type:          certificate.TypeVaccine,
		HasPayload:    true,
	}
}

func pass() validity.RuleResult { return validity.RuleResult{Outcome: validity.OutcomePass} }
func open() validity.RuleResult { return validity.RuleResult{Outcome: validity.OutcomeOpen} }
func fail() validity.RuleResult { return validity.RuleResult{Outcome: validity.OutcomeFail} }

func TestValidateTechnicalFailures(t *testing.T) {
	eng := &fakeEngine{results: map[validity.RuleKind][]validity.RuleResult{}}
	store := revocation.NewStore(cache.NewMemoryProvider(t.Name()))
	v := validity.NewValidator(eng, fakeValueSets{}, store)

	t.Run("no_entries", func(t *testing.T) {
		cert := newCert()
		cert.HasPayload = false
		cert.EntryFailures = []string{"ignored when there is no payload"}

		state := v.Validate(context.Background(), cert)
		assert.Equal(t, validity.Invalid, state.Technical)
		assert.Equal(t, validity.Invalid, state.Issuer)
		assert.Equal(t, validity.Invalid, state.Destination)
		assert.Equal(t, validity.Invalid, state.Traveler)
		assert.Equal(t, validity.Invalid, state.AllRules)
		assert.Equal(t, []string{"No entries in the certificate."}, state.ValidityFailures)
		assert.False(t, state.IsRevoked)
		assert.True(t, state.IsVerificationFailed())
		assert.Empty(t, eng.calls, "rules must not run on a technical failure")
	})

	t.Run("expired", func(t *testing.T) {
		cert := newCert()
		cert.ExpiresAt = time.Now().Add(-time.Minute)

		state := v.Validate(context.Background(), cert)
		assert.Equal(t, validity.Invalid, state.Technical)
		assert.Contains(t, state.ValidityFailures, "Certificate past expiration date.")
	})

	t.Run("issued_in_future", func(t *testing.T) {
		cert := newCert()
		cert.IssuedAt = time.Now().Add(time.Hour)

		state := v.Validate(context.Background(), cert)
		assert.Equal(t, validity.Invalid, state.Technical)
		assert.Contains(t, state.ValidityFailures, "Certificate issuance date is in the future.")
	})

	t.Run("entry_failures", func(t *testing.T) {
		cert := newCert()
		cert.EntryFailures = []string{"Date of birth is malformed."}

		state := v.Validate(context.Background(), cert)
		assert.Equal(t, validity.Invalid, state.Technical)
		assert.Equal(t, []string{"Date of birth is malformed."}, state.ValidityFailures)
	})
}

func TestValidateVerdicts(t *testing.T) {
	eng := &fakeEngine{
		results: map[validity.RuleKind][]validity.RuleResult{
			validity.KindIssuer:      {pass(), pass()},
			validity.KindDestination: {pass(), open()},
			validity.KindTraveler:    {open(), fail()},
			validity.KindAll:         {pass()},
		},
	}
	store := revocation.NewStore(cache.NewMemoryProvider(t.Name()))
	v := validity.NewValidator(eng, fakeValueSets{"country-2-codes": {"DE", "FR"}}, store)

	state := v.Validate(context.Background(), newCert())
	assert.Equal(t, validity.Valid, state.Technical)
	assert.Equal(t, validity.Valid, state.Issuer)
	assert.Equal(t, validity.PartlyValid, state.Destination)
	assert.Equal(t, validity.Invalid, state.Traveler)
	assert.Equal(t, validity.Valid, state.AllRules)
	assert.Nil(t, state.Report)
	assert.True(t, state.IsVerificationFailed())

	assert.Equal(t, []validity.RuleKind{
		validity.KindIssuer,
		validity.KindDestination,
		validity.KindTraveler,
		validity.KindAll,
	}, eng.calls)
	assert.Equal(t, "DE", eng.lastFilter.CountryCode)
	assert.Equal(t, "vaccine", eng.lastFilter.CertificationType)
	assert.Equal(t, []string{"DE", "FR"}, eng.lastExternal.ValueSets["country-2-codes"])
	assert.Equal(t, "s1dR2k3a", eng.lastExternal.KID)
}

func TestValidateNoRuleCountry(t *testing.T) {
	// without a rule context every rule verdict stays Valid and the
	// engine is never consulted, but revocation still runs
	eng := &fakeEngine{
		results: map[validity.RuleKind][]validity.RuleResult{
			validity.KindIssuer: {fail()},
		},
	}
	ctx := context.Background()
	store := revocation.NewStore(cache.NewMemoryProvider(t.Name()))

	cert := newCert()
	cert.RuleCountry = ""
	cert.SignatureHash = hashutil.SHA256Hex([]byte("sig-bytes"))
	seedRevoked(t, ctx, store, cert.KID, cert.SignatureHash)

	v := validity.NewValidator(eng, fakeValueSets{}, store)
	state := v.Validate(ctx, cert)

	assert.Equal(t, validity.Valid, state.Technical)
	assert.Equal(t, validity.Valid, state.Issuer)
	assert.Equal(t, validity.Valid, state.Destination)
	assert.Equal(t, validity.Valid, state.Traveler)
	assert.Equal(t, validity.Valid, state.AllRules)
	assert.Empty(t, eng.calls)
	assert.True(t, state.IsRevoked)
	assert.True(t, state.IsVerificationFailed())
}

func TestValidateReport(t *testing.T) {
	rule := &validity.Rule{
		Identifier:  "VR-DE-0001",
		CountryCode: "DE",
		Description: []validity.RuleDescription{
			{Lang: "de", Desc: "Impfserie muss vollständig sein"},
			{Lang: "en", Desc: "Vaccination series must be complete"},
		},
	}
	eng := &fakeEngine{
		results: map[validity.RuleKind][]validity.RuleResult{
			validity.KindAll: {
				pass(),
				{Rule: rule, Outcome: validity.OutcomeFail},
				{Outcome: validity.OutcomeOpen, Errors: []string{"engine timeout"}},
			},
		},
	}
	store := revocation.NewStore(cache.NewMemoryProvider(t.Name()))
	v := validity.NewValidator(eng, fakeValueSets{}, store)

	state := v.Validate(context.Background(), newCert())
	assert.Equal(t, validity.PartlyValid, state.AllRules)

	require.NotNil(t, state.Report)
	assert.Equal(t, "Possible limitation", state.Report.Header)
	assert.Equal(t, "Country rules validation failed", state.Report.Content)
	require.Len(t, state.Report.Items, 2)

	failed := state.Report.Items[0]
	assert.Equal(t, "Vaccination series must be complete", failed.Header)
	assert.Equal(t, "VR-DE-0001", failed.Content)
	assert.Equal(t, "DE", failed.Country)
	assert.Equal(t, validity.Invalid, failed.Result)

	errored := state.Report.Items[1]
	assert.Equal(t, "Cannot validate the certificate", errored.Header)
	assert.Equal(t, "engine timeout", errored.Content)
	assert.Equal(t, validity.PartlyValid, errored.Result)
}

func TestValidateRevocation(t *testing.T) {
	eng := &fakeEngine{
		results: map[validity.RuleKind][]validity.RuleResult{
			validity.KindIssuer:      {pass()},
			validity.KindDestination: {pass()},
			validity.KindTraveler:    {pass()},
			validity.KindAll:         {pass()},
		},
	}
	ctx := context.Background()

	t.Run("signature_hit", func(t *testing.T) {
		store := revocation.NewStore(cache.NewMemoryProvider(t.Name()))
		cert := newCert()
		cert.SignatureHash = hashutil.SHA256Hex([]byte("sig-bytes"))
		seedRevoked(t, ctx, store, cert.KID, cert.SignatureHash)

		v := validity.NewValidator(eng, fakeValueSets{}, store)
		state := v.Validate(ctx, cert)
		assert.True(t, state.IsRevoked)
		assert.True(t, state.IsVerificationFailed())
	})

	t.Run("uci_hit_after_signature_miss", func(t *testing.T) {
		store := revocation.NewStore(cache.NewMemoryProvider(t.Name()))
		cert := newCert()
		cert.SignatureHash = hashutil.SHA256Hex([]byte("sig-bytes"))
		cert.UVCIHash = hashutil.SHA256Hex([]byte("URN:UVCI:01:DE:187/37512422923"))
		seedRevoked(t, ctx, store, cert.KID, cert.UVCIHash)

		v := validity.NewValidator(eng, fakeValueSets{}, store)
		state := v.Validate(ctx, cert)
		assert.True(t, state.IsRevoked)
	})

	t.Run("hash_type_not_published", func(t *testing.T) {
		store := revocation.NewStore(cache.NewMemoryProvider(t.Name()))
		cert := newCert()
		cert.UVCIHash = hashutil.SHA256Hex([]byte("URN:UVCI:01:DE:187/37512422923"))
		seedRevoked(t, ctx, store, cert.KID, cert.UVCIHash)

		// the signer only publishes SIGNATURE slices, so the UCI hash
		// must not be looked up even though a filter would match it
		rev := revocation.Revocation{
			KID:       cert.KID,
			HashTypes: []string{string(revocation.HashTypeSignature)},
			Mode:      revocation.ModePoint,
			Expires:   time.Now().Add(time.Hour),
		}
		require.NoError(t, store.SaveRevocations(ctx, []revocation.Revocation{rev}))

		v := validity.NewValidator(eng, fakeValueSets{}, store)
		state := v.Validate(ctx, cert)
		assert.False(t, state.IsRevoked)
	})

	t.Run("no_revocation_data", func(t *testing.T) {
		store := revocation.NewStore(cache.NewMemoryProvider(t.Name()))
		cert := newCert()
		cert.SignatureHash = hashutil.SHA256Hex([]byte("sig-bytes"))

		v := validity.NewValidator(eng, fakeValueSets{}, store)
		state := v.Validate(ctx, cert)
		assert.False(t, state.IsRevoked)
		assert.False(t, state.IsVerificationFailed())
	})
}

// seedRevoked stores a POINT-mode revocation for the signer with a bloom
// slice containing the given hex hash.
func seedRevoked(t *testing.T, ctx context.Context, store *revocation.Store, kid, hexHash string) {
	t.Helper()

	raw := hashutil.Decode(hexHash)
	require.NotEmpty(t, raw)

	payload, err := filter.EncodeBloom([][]byte{raw}, 0.00000001)
	require.NoError(t, err)

	rev := revocation.Revocation{
		KID: kid,
		HashTypes: []string{
			string(revocation.HashTypeSignature),
			string(revocation.HashTypeUCI),
			string(revocation.HashTypeCountryCodeUCI),
		},
		Mode:    revocation.ModePoint,
		Expires: time.Now().Add(time.Hour),
	}
	require.NoError(t, store.SaveRevocations(ctx, []revocation.Revocation{rev}))

	_, _, cid := revocation.Coordinates(revocation.ModePoint, hexHash)
	part := revocation.Partition{
		ID:      revocation.NoCoordinate,
		Expired: time.Now().Add(time.Hour),
		Chunks: []revocation.Chunk{{
			CID: cid,
			Slices: []revocation.Slice{{
				HashID:      hashutil.SHA256Hex(payload),
				Type:        filter.TypeBloom,
				ExpiredDate: time.Now().Add(time.Hour),
			}},
		}},
	}
	require.NoError(t, store.SavePartitions(ctx, kid, []revocation.Partition{part}))
	require.NoError(t, store.SaveSliceData(ctx, []revocation.SliceMetadata{{
		KID:         kid,
		PartitionID: revocation.NoCoordinate,
		CID:         cid,
		HashID:      hashutil.SHA256Hex(payload),
		Data:        payload,
	}}))
}
