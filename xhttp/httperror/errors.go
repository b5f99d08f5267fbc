// Package httperror provides a typed error for API failures, with a
// stable code for programmatic consumers and an HTTP status for the
// transport.
package httperror

import (
	"context"
	goerrors "errors"
	"fmt"
	"net/http"

	"github.com/effective-security/x/slices"
	"github.com/trustpass/inspect/xhttp/correlation"
	"github.com/trustpass/inspect/xhttp/header"
	"github.com/ugorji/go/codec"
)

// Error represents a single error from API.
type Error struct {
	// HTTPStatus contains the HTTP status code that should be used for this error
	HTTPStatus int `json:"-"`

	// Code identifies the particular error condition [for programatic consumers]
	Code string `json:"code"`

	// RequestID identifies the request ID
	RequestID string `json:"request_id,omitempty"`

	// Message is an textual description of the error
	Message string `json:"message"`

	// Cause is the original error
	cause error `json:"-"`
}

// New returns Error instance, building the message string along the way
func New(status int, code string, msgFormat string, vals ...interface{}) *Error {
	return &Error{
		HTTPStatus: status,
		Code:       code,
		Message:    fmt.Sprintf(msgFormat, vals...),
	}
}

// WithCause adds the cause error
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// CorrelationID implements the Correlation interface,
// and returns request ID
func (e *Error) CorrelationID() string {
	return e.RequestID
}

// Error implements the standard error interface
func (e *Error) Error() string {
	if e == nil {
		return "nil"
	}
	if e.RequestID != "" {
		return fmt.Sprintf("request %s: %s: %s", e.RequestID, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Cause returns original error
func (e *Error) Cause() error {
	return e.cause
}

// Unwrap returns original error
func (e *Error) Unwrap() error {
	return e.cause
}

// Connection returns Error instance with Connection code
func Connection(msgFormat string, vals ...interface{}) *Error {
	return New(http.StatusBadGateway, CodeConnection, msgFormat, vals...)
}

// Parsing returns Error instance with Parsing code
func Parsing(msgFormat string, vals ...interface{}) *Error {
	return New(http.StatusBadGateway, CodeParsing, msgFormat, vals...)
}

// Encoding returns Error instance with Encoding code
func Encoding(msgFormat string, vals ...interface{}) *Error {
	return New(http.StatusInternalServerError, CodeEncoding, msgFormat, vals...)
}

// InsufficientData returns Error instance with InsufficientData code
func InsufficientData(msgFormat string, vals ...interface{}) *Error {
	return New(http.StatusBadGateway, CodeInsufficientData, msgFormat, vals...)
}

// IntegrityMismatch returns Error instance with IntegrityMismatch code
func IntegrityMismatch(msgFormat string, vals ...interface{}) *Error {
	return New(http.StatusBadGateway, CodeIntegrityMismatch, msgFormat, vals...)
}

// NoInputData returns Error instance with NoInputData code
func NoInputData(msgFormat string, vals ...interface{}) *Error {
	return New(http.StatusPreconditionRequired, CodeNoInputData, msgFormat, vals...)
}

// TokenError returns Error instance with TokenError code
func TokenError(msgFormat string, vals ...interface{}) *Error {
	return New(http.StatusUnauthorized, CodeTokenError, msgFormat, vals...)
}

// InvalidParam returns Error instance with InvalidParam code
func InvalidParam(msgFormat string, vals ...interface{}) *Error {
	return New(http.StatusBadRequest, CodeInvalidParam, msgFormat, vals...)
}

// InvalidRequest returns Error instance with InvalidRequest code
func InvalidRequest(msgFormat string, vals ...interface{}) *Error {
	return New(http.StatusBadRequest, CodeInvalidRequest, msgFormat, vals...)
}

// Malformed returns Error instance with Malformed code
func Malformed(msgFormat string, vals ...interface{}) *Error {
	return New(http.StatusBadRequest, CodeMalformed, msgFormat, vals...)
}

// NotFound returns Error instance with NotFound code
func NotFound(msgFormat string, vals ...interface{}) *Error {
	return New(http.StatusNotFound, CodeNotFound, msgFormat, vals...)
}

// NotReady returns Error instance with NotReady code
func NotReady(msgFormat string, vals ...interface{}) *Error {
	return New(http.StatusServiceUnavailable, CodeNotReady, msgFormat, vals...)
}

// RateLimitExceeded returns Error instance with RateLimitExceeded code
func RateLimitExceeded(msgFormat string, vals ...interface{}) *Error {
	return New(http.StatusTooManyRequests, CodeRateLimitExceeded, msgFormat, vals...)
}

// RequestFailed returns Error instance with RequestFailed code
func RequestFailed(msgFormat string, vals ...interface{}) *Error {
	return New(http.StatusBadGateway, CodeRequestFailed, msgFormat, vals...)
}

// Unexpected returns Error instance with Unexpected code
func Unexpected(msgFormat string, vals ...interface{}) *Error {
	return New(http.StatusInternalServerError, CodeUnexpected, msgFormat, vals...)
}

// WriteHTTPResponse implements how to serialize this error into a HTTP Response
func (e *Error) WriteHTTPResponse(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(header.ContentType, header.ApplicationJSON)
	w.WriteHeader(e.HTTPStatus)
	if e.RequestID == "" {
		e.RequestID = correlation.ID(r.Context())
	}
	_ = codec.NewEncoder(w, encoderHandle(shouldPrettyPrint(r))).Encode(e)
}

// IsNotFound returns true for errors that carry the NotFound code,
// or for raw 404 responses.
func IsNotFound(err error) bool {
	var he *Error
	if goerrors.As(err, &he) {
		return he.Code == CodeNotFound || he.HTTPStatus == http.StatusNotFound
	}
	var me *ManyError
	if goerrors.As(err, &me) {
		if me.Code == CodeNotFound || me.HTTPStatus == http.StatusNotFound {
			return true
		}
		for _, e := range me.Errors {
			if e.Code == CodeNotFound || e.HTTPStatus == http.StatusNotFound {
				return true
			}
		}
	}
	return false
}

// IsTimeout returns true for timeout error
func IsTimeout(err error) bool {
	str := err.Error()
	return goerrors.Is(err, context.DeadlineExceeded) ||
		goerrors.Is(err, context.Canceled) ||
		slices.StringContainsOneOf(str, timeoutErrors)
}

var timeoutErrors = []string{"timeout", "deadline"}

// Status returns HTTP status from error
func Status(err error) int {
	if err == nil {
		return http.StatusOK
	}

	switch e := err.(type) {
	case *Error:
		return e.HTTPStatus
	case *ManyError:
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}

func shouldPrettyPrint(r *http.Request) bool {
	return r != nil && r.URL != nil && r.URL.Query().Get("pp") != ""
}

func encoderHandle(pretty bool) codec.Handle {
	h := &codec.JsonHandle{}
	if pretty {
		h.Indent = 2
	}
	return h
}
