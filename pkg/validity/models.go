// Package validity implements the certificate validity state machine:
// technical checks, business rule evaluation through an external rule
// engine, and revocation lookup.
package validity

import (
	"context"
	"encoding/json"
	"time"
)

// VerificationResult is the verdict of a single validation dimension.
type VerificationResult string

// Verdicts.
const (
	Valid       VerificationResult = "valid"
	PartlyValid VerificationResult = "partly_valid"
	Invalid     VerificationResult = "invalid"
)

// RuleKind selects which rule set the engine evaluates.
type RuleKind string

// Rule kinds.
const (
	KindIssuer      RuleKind = "issuer"
	KindDestination RuleKind = "destination"
	KindTraveler    RuleKind = "traveler"
	KindAll         RuleKind = "all"
)

// Outcome is the result of a single rule evaluation.
type Outcome string

// Rule outcomes.
const (
	OutcomePass Outcome = "pass"
	OutcomeOpen Outcome = "open"
	OutcomeFail Outcome = "fail"
)

// Rule is a business rule published by a country.
type Rule struct {
	Identifier      string            `json:"identifier"`
	Type            string            `json:"type"`
	Version         string            `json:"version"`
	SchemaVersion   string            `json:"schemaVersion"`
	Engine          string            `json:"engine"`
	EngineVersion   string            `json:"engineVersion"`
	CertificateType string            `json:"certificateType"`
	Description     []RuleDescription `json:"description"`
	ValidFrom       time.Time         `json:"validFrom"`
	ValidTo         time.Time         `json:"validTo"`
	AffectedFields  []string          `json:"affectedString"`
	Logic           json.RawMessage   `json:"logic"`
	CountryCode     string            `json:"countryCode"`
	Region          string            `json:"region,omitempty"`

	// Hash is the content hash announced by the gateway manifest,
	// verified over the raw rule body on download.
	Hash string `json:"hash,omitempty"`
}

// RuleDescription is a localized error description of a rule.
type RuleDescription struct {
	Lang string `json:"lang"`
	Desc string `json:"desc"`
}

// LocalizedDescription returns the description for lang, falling back
// to "en", then to the first available entry.
func (r *Rule) LocalizedDescription(lang string) string {
	var english string
	for _, d := range r.Description {
		if d.Lang == lang {
			return d.Desc
		}
		if d.Lang == "en" {
			english = d.Desc
		}
	}
	if english != "" {
		return english
	}
	if len(r.Description) > 0 {
		return r.Description[0].Desc
	}
	return ""
}

// ValueSet is a named set of coded values referenced by rules.
type ValueSet struct {
	ID     string                     `json:"valueSetId"`
	Date   string                     `json:"valueSetDate"`
	Values map[string]json.RawMessage `json:"valueSetValues"`

	// Hash is the content hash announced by the gateway manifest.
	Hash string `json:"hash,omitempty"`
}

// Codes returns the value codes of the set.
func (v *ValueSet) Codes() []string {
	codes := make([]string, 0, len(v.Values))
	for code := range v.Values {
		codes = append(codes, code)
	}
	return codes
}

// FilterParameter selects the rules applicable to a certificate.
type FilterParameter struct {
	ValidationClock   time.Time
	CountryCode       string
	CertificationType string
	Region            string
}

// ExternalParameter carries the evaluation context handed to the engine.
type ExternalParameter struct {
	ValidationClock   time.Time
	ValueSets         map[string][]string
	Expiration        time.Time
	IssuedAt          time.Time
	IssuerCountryCode string
	KID               string
}

// RuleResult is the outcome of evaluating one rule.
type RuleResult struct {
	Rule    *Rule
	Outcome Outcome
	Errors  []string
}

// RuleEngine evaluates business rules against a certificate payload.
// Implementations wrap an external logic interpreter; the validator
// only interprets outcomes.
type RuleEngine interface {
	Validate(ctx context.Context, kind RuleKind, filter FilterParameter, external ExternalParameter, payload string) []RuleResult
}

// RuleReport describes the non-passed rules of a full evaluation in a
// form suitable for display.
type RuleReport struct {
	Header  string
	Content string
	Items   []RuleReportItem
}

// RuleReportItem is a single non-passed rule of the report.
type RuleReportItem struct {
	Header  string
	Content string
	Country string
	Result  VerificationResult
}

// ValidityState is the aggregate verdict for one certificate.
type ValidityState struct {
	Technical   VerificationResult
	Issuer      VerificationResult
	Destination VerificationResult
	Traveler    VerificationResult
	AllRules    VerificationResult

	// ValidityFailures lists technical failures in display order.
	ValidityFailures []string

	// Report is set when the full rule evaluation found non-passed rules.
	Report *RuleReport

	IsRevoked bool
}

// IsVerificationFailed reports whether the certificate must be
// rejected: any primary verdict not Valid, or a revocation hit.
func (s *ValidityState) IsVerificationFailed() bool {
	return s.Technical != Valid ||
		s.Issuer != Valid ||
		s.Destination != Valid ||
		s.Traveler != Valid ||
		s.IsRevoked
}
