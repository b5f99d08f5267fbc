// Package metricskey defines the metrics emitted by the inspection
// engine.
package metricskey

import "github.com/effective-security/metrics"

// Descriptions of emitted metrics keys
var (
	// PerfValidate measures the duration of a full validity evaluation.
	PerfValidate = metrics.Describe{
		Name: "validity_validate_perf",
		Type: "summary",
		Help: "validity_validate_perf provides quantiles for certificate validity evaluation.",
	}
	// HealthValidateTechnicalFailed counts certificates rejected on
	// technical grounds before rule evaluation.
	HealthValidateTechnicalFailed = metrics.Describe{
		Name: "validity_validate_technical_failed",
		Type: "counter",
		Help: "validity_validate_technical_failed provides counts of technically invalid certificates.",
	}
	// HealthValidateRevoked counts revocation hits during validation.
	HealthValidateRevoked = metrics.Describe{
		Name: "validity_validate_revoked",
		Type: "counter",
		Help: "validity_validate_revoked provides counts of revoked certificates.",
	}

	// PerfSync measures the duration of a full data refresh pass.
	PerfSync = metrics.Describe{
		Name: "datasync_refresh_perf",
		Type: "summary",
		Help: "datasync_refresh_perf provides quantiles for full data refresh passes.",
	}
	// HealthSyncFailed counts refresh passes that ended with an
	// aggregate failure.
	HealthSyncFailed = metrics.Describe{
		Name: "datasync_refresh_failed",
		Type: "counter",
		Help: "datasync_refresh_failed provides counts of failed refresh passes.",
	}
	// HealthSyncSuccessful counts refresh passes committed in full.
	HealthSyncSuccessful = metrics.Describe{
		Name: "datasync_refresh_successful",
		Type: "counter",
		Help: "datasync_refresh_successful provides counts of committed refresh passes.",
	}
	// StatsSyncIntegrityMismatch counts manifest items dropped because
	// their content hash did not match the announcement.
	StatsSyncIntegrityMismatch = metrics.Describe{
		Name: "datasync_manifest_integrity_mismatch",
		Type: "counter",
		Help: "datasync_manifest_integrity_mismatch provides counts of manifest items dropped on hash mismatch.",
	}

	// StatsRevocationLookupHit counts revocation filter hits.
	StatsRevocationLookupHit = metrics.Describe{
		Name: "revocation_lookup_hit",
		Type: "counter",
		Help: "revocation_lookup_hit provides counts of revocation filter hits.",
	}
	// StatsRevocationSliceSkipped counts slices skipped because their
	// filter payload could not be decoded.
	StatsRevocationSliceSkipped = metrics.Describe{
		Name: "revocation_lookup_slice_skipped",
		Type: "counter",
		Help: "revocation_lookup_slice_skipped provides counts of undecodable revocation slices.",
	}
)

// Metrics describes the emitted keys for sink registration.
var Metrics = []*metrics.Describe{
	&PerfValidate,
	&HealthValidateTechnicalFailed,
	&HealthValidateRevoked,
	&PerfSync,
	&HealthSyncFailed,
	&HealthSyncSuccessful,
	&StatsSyncIntegrityMismatch,
	&StatsRevocationLookupHit,
	&StatsRevocationSliceSkipped,
}
