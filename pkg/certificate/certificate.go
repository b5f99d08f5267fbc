// Package certificate defines the decoded health certificate model consumed
// by the validity and revocation engines. Decoding of the signed payload is
// done by an external collaborator; this package only carries the result.
package certificate

import (
	"time"
)

// Type is the certificate statement kind.
type Type string

// Certificate statement kinds.
const (
	TypeTest     Type = "test"
	TypeVaccine  Type = "vaccine"
	TypeRecovery Type = "recovery"
	TypeUnknown  Type = "unknown"
)

// Certificate is a decoded health certificate. All fields except Revoked are
// immutable after construction; Revoked is set by the sync pipeline when the
// wallet lookup reports the certificate as revoked.
type Certificate struct {
	// Payload is the full encoded certificate string.
	Payload string
	// Body is the JSON form of the certificate statement,
	// passed to the external rule engine.
	Body string

	IssuedAt  time.Time
	ExpiresAt time.Time

	// IssuerCountry is the ISO code of the issuing country.
	IssuerCountry string
	// RuleCountry is the country whose business rules apply;
	// empty when no rule context can be derived.
	RuleCountry string

	// KID identifies the key that signed the certificate.
	KID string

	Type Type

	// Derived lookup hashes, hex encoded.
	SignatureHash       string
	UVCIHash            string
	CountryCodeUVCIHash string

	// EntryFailures carries entry-specific technical failures found by the
	// decoder, e.g. a vaccination dose dated in the future.
	EntryFailures []string

	// HasPayload is false when the decoder produced no statement entries.
	HasPayload bool

	Revoked bool
}

// Dated is a stored wallet certificate with its claim metadata.
type Dated struct {
	Date    time.Time `json:"date"`
	Payload string    `json:"payload"`
	// TAN is the optional claim ticket issued when the certificate was added.
	TAN string `json:"tan,omitempty"`

	Revoked bool `json:"revoked"`
}
