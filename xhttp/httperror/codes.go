package httperror

const (
	// CodeConnection is returned when the gateway could not be reached.
	CodeConnection = "connection"
	// CodeParsing is returned when a response payload could not be decoded.
	CodeParsing = "parsing"
	// CodeEncoding is returned when a request payload could not be encoded.
	CodeEncoding = "encoding"
	// CodeInsufficientData is returned when the gateway responded without
	// the data required to complete the operation.
	CodeInsufficientData = "insufficient_data"
	// CodeIntegrityMismatch is returned when a downloaded item does not
	// match its announced content hash.
	CodeIntegrityMismatch = "integrity_mismatch"
	// CodeNoInputData is returned when the local data set has never been
	// populated and the operation cannot proceed offline.
	CodeNoInputData = "no_input_data"
	// CodeTokenError is returned when a lookup token could not be issued
	// or verified.
	CodeTokenError = "token_error"
	// CodeInvalidParam is returned where a URL parameter, or other type of generalized parameters value is invalid.
	CodeInvalidParam = "invalid_parameter"
	// CodeInvalidRequest is returned when the request validation failed.
	CodeInvalidRequest = "invalid_request"
	// CodeMalformed is returned when the request was malformed.
	CodeMalformed = "malformed"
	// CodeNotFound is returned when the requested URL doesn't exist.
	CodeNotFound = "not_found"
	// CodeNotReady is returned when the service is not ready to serve
	CodeNotReady = "not_ready"
	// CodeRateLimitExceeded is returned when the client has exceeded their request allotment.
	CodeRateLimitExceeded = "rate_limit_exceeded"
	// CodeRequestFailed is returned when an outbound request failed.
	CodeRequestFailed = "request_failed"
	// CodeUnexpected is returned when something went wrong.
	CodeUnexpected = "unexpected"
)
