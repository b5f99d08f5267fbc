package validity

import (
	"context"
	"time"

	"github.com/effective-security/xlog"
	"github.com/trustpass/inspect/metricskey"
	"github.com/trustpass/inspect/pkg/certificate"
	"github.com/trustpass/inspect/pkg/revocation"
)

var logger = xlog.NewPackageLogger("github.com/trustpass/inspect/pkg", "validity")

// Technical failure messages.
const (
	failureNoEntries    = "No entries in the certificate."
	failureExpired      = "Certificate past expiration date."
	failureIssuedFuture = "Certificate issuance date is in the future."

	reportHeaderLimitation = "Possible limitation"
	reportRulesFailed      = "Country rules validation failed"
	reportCannotValidate   = "Cannot validate the certificate"
)

// ValueSetSource provides value set codes for the rule engine's
// external parameters.
type ValueSetSource interface {
	ExternalValueSets() map[string][]string
}

// Validator computes the validity state of a certificate from the
// local data snapshot. It performs no network I/O.
type Validator struct {
	engine  RuleEngine
	values  ValueSetSource
	store   *revocation.Store
	checker *revocation.Checker

	// NowFunc allows tests to override the validation clock.
	NowFunc func() time.Time

	// Lang selects the language for localized rule descriptions.
	Lang string
}

// NewValidator creates a Validator over the given collaborators.
func NewValidator(engine RuleEngine, values ValueSetSource, store *revocation.Store) *Validator {
	return &Validator{
		engine:  engine,
		values:  values,
		store:   store,
		checker: revocation.NewChecker(store),
		NowFunc: time.Now,
		Lang:    "en",
	}
}

// Validate runs the full validity state machine for the certificate.
func (v *Validator) Validate(ctx context.Context, cert *certificate.Certificate) ValidityState {
	defer metricskey.PerfValidate.MeasureSince(time.Now())

	failures := v.findValidityFailures(cert)
	if len(failures) > 0 {
		// a technical failure short-circuits rule evaluation and
		// revocation: verdicts are final
		metricskey.HealthValidateTechnicalFailed.IncrCounter(1)
		return ValidityState{
			Technical:        Invalid,
			Issuer:           Invalid,
			Destination:      Invalid,
			Traveler:         Invalid,
			AllRules:         Invalid,
			ValidityFailures: failures,
		}
	}

	state := ValidityState{
		Technical:   Valid,
		Issuer:      Valid,
		Destination: Valid,
		Traveler:    Valid,
		AllRules:    Valid,
	}

	// without a rule country there is nothing to evaluate and every
	// rule verdict stays Valid
	if cert.RuleCountry != "" {
		filter, external := v.parameters(cert)

		state.Issuer = v.verdict(ctx, KindIssuer, filter, external, cert.Body)
		state.Destination = v.verdict(ctx, KindDestination, filter, external, cert.Body)
		state.Traveler = v.verdict(ctx, KindTraveler, filter, external, cert.Body)
		state.AllRules, state.Report = v.fullReport(ctx, filter, external, cert)
	}

	state.IsRevoked = v.checkRevocation(ctx, cert)
	if state.IsRevoked {
		metricskey.HealthValidateRevoked.IncrCounter(1)
	}

	return state
}

func (v *Validator) findValidityFailures(cert *certificate.Certificate) []string {
	var failures []string
	now := v.NowFunc()

	if !cert.HasPayload {
		failures = append(failures, failureNoEntries)
		return failures
	}
	if cert.ExpiresAt.Before(now) {
		failures = append(failures, failureExpired)
	}
	if cert.IssuedAt.After(now) {
		failures = append(failures, failureIssuedFuture)
	}
	failures = append(failures, cert.EntryFailures...)
	return failures
}

func (v *Validator) parameters(cert *certificate.Certificate) (FilterParameter, ExternalParameter) {
	now := v.NowFunc()

	var valueSets map[string][]string
	if v.values != nil {
		valueSets = v.values.ExternalValueSets()
	}

	filter := FilterParameter{
		ValidationClock:   now,
		CountryCode:       cert.RuleCountry,
		CertificationType: string(cert.Type),
	}
	external := ExternalParameter{
		ValidationClock:   now,
		ValueSets:         valueSets,
		Expiration:        cert.ExpiresAt,
		IssuedAt:          cert.IssuedAt,
		IssuerCountryCode: cert.IssuerCountry,
		KID:               cert.KID,
	}
	return filter, external
}

// verdict folds rule results: any fail wins, then any open.
func (v *Validator) verdict(ctx context.Context, kind RuleKind, filter FilterParameter, external ExternalParameter, payload string) VerificationResult {
	results := v.engine.Validate(ctx, kind, filter, external, payload)

	verdict := Valid
	for _, r := range results {
		switch r.Outcome {
		case OutcomeFail:
			return Invalid
		case OutcomeOpen:
			verdict = PartlyValid
		}
	}
	return verdict
}

// fullReport evaluates the complete rule set and, when any rule did
// not pass, builds a display report of the findings.
func (v *Validator) fullReport(ctx context.Context, filter FilterParameter, external ExternalParameter, cert *certificate.Certificate) (VerificationResult, *RuleReport) {
	results := v.engine.Validate(ctx, KindAll, filter, external, cert.Body)

	var notPassed []RuleResult
	for _, r := range results {
		if r.Outcome != OutcomePass {
			notPassed = append(notPassed, r)
		}
	}
	if len(notPassed) == 0 {
		return Valid, nil
	}

	report := &RuleReport{
		Header:  reportHeaderLimitation,
		Content: reportRulesFailed,
	}
	for _, r := range notPassed {
		item := RuleReportItem{
			Country: cert.RuleCountry,
			Result:  PartlyValid,
		}
		if r.Outcome == OutcomeFail {
			item.Result = Invalid
		}
		if len(r.Errors) > 0 {
			item.Header = reportCannotValidate
			item.Content = r.Errors[0]
		} else if r.Rule != nil {
			item.Header = r.Rule.LocalizedDescription(v.Lang)
			item.Content = r.Rule.Identifier
		}
		report.Items = append(report.Items, item)
	}
	return PartlyValid, report
}

// checkRevocation tests the certificate's derived hashes against the
// signer's revocation filters. Absent data means not revoked.
func (v *Validator) checkRevocation(ctx context.Context, cert *certificate.Certificate) bool {
	rev, err := v.store.LoadRevocation(ctx, cert.KID)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING, "reason", "load_revocation", "kid", cert.KID, "err", err.Error())
		return false
	}
	if rev == nil {
		return false
	}

	type candidate struct {
		ht   revocation.HashType
		hash string
	}
	candidates := []candidate{
		{revocation.HashTypeSignature, cert.SignatureHash},
		{revocation.HashTypeUCI, cert.UVCIHash},
		{revocation.HashTypeCountryCodeUCI, cert.CountryCodeUVCIHash},
	}

	for _, c := range candidates {
		if c.hash == "" || !rev.HasHashType(c.ht) {
			continue
		}
		hit, err := v.checker.MightContainRevoked(ctx, cert.KID, rev.Mode, c.hash)
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"reason", "revocation_lookup",
				"kid", cert.KID,
				"hash_type", c.ht,
				"err", err.Error())
			continue
		}
		if hit {
			return true
		}
	}
	return false
}
