// Package header provides names of commonly used HTTP headers
// and content types.
package header

const (
	// Accept HTTP header
	Accept = "Accept"
	// Authorization HTTP header
	Authorization = "Authorization"
	// ContentType HTTP header
	ContentType = "Content-Type"
	// ContentLength HTTP header
	ContentLength = "Content-Length"
	// UserAgent HTTP header
	UserAgent = "User-Agent"

	// XCorrelationID HTTP header to correlate requests across systems
	XCorrelationID = "X-Correlation-ID"
	// XResumeToken HTTP header carries the cursor for incremental
	// signer key updates
	XResumeToken = "x-resume-token"
	// XKID HTTP header carries the key identifier returned with
	// an incremental key update
	XKID = "x-kid"
	// XSliceFilterType HTTP header announces the filter encoding of
	// a revocation slice payload
	XSliceFilterType = "x-slice-filter-type"
)

const (
	// ApplicationJSON content type
	ApplicationJSON = "application/json"
	// ApplicationOctetStream content type for binary payloads
	ApplicationOctetStream = "application/octet-stream"
	// TextPlain content type
	TextPlain = "text/plain"
)
