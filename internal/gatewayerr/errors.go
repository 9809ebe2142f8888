// Package gatewayerr provides the closed set of wire-visible error codes the
// dauth gateway returns to clients, plus an internal-only StoreError kind for
// persistence failures that §7 of the design asks for but does not put on
// the wire.
package gatewayerr

import (
	"fmt"
	"net/http"
)

// Code is one of the wire-visible error codes in the closed set.
type Code string

const (
	// SgxError reports a transport failure at the TEE boundary: the host
	// could not complete the call at all.
	SgxError Code = "SgxError"
	// SGXError reports a logical failure inside the TEE that does not map
	// to a more specific condition (a non-success status other than
	// "invalid attribute"), or a signing failure in the Token Issuer.
	SGXError Code = "SGXError"
	// DataError reports session failures (not found, expired), a Variant A
	// OAuth code the TEE rejected, and certain client input failures
	// (missing/invalid bearer token).
	DataError Code = "DataError"
	// OsError reports the TEE's distinguished "invalid attribute" verdict on
	// the email and seal capabilities, such as a confirmation code that did
	// not match.
	OsError Code = "OsError"
	// ReqError reports malformed client input (bad hex, unknown oauth_type).
	ReqError Code = "ReqError"
	// OauthError reports a Variant-B provider HTTPS exchange failure.
	OauthError Code = "OauthError"

	// storeError is never placed on the wire; persistence failures are
	// mapped to SGXError for the client but keep this distinct internal
	// kind for logs and metrics.
	storeError Code = "StoreError"
)

// Error is a structured gateway error carrying both the wire code/message
// and, optionally, the underlying cause for logging.
type Error struct {
	Code       Code
	Message    string
	HTTPStatus int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsStoreError reports whether the error represents a persistence failure,
// for logging/metrics purposes. On the wire it still renders as SGXError.
func (e *Error) IsStoreError() bool { return e != nil && e.Code == storeError }

// WireCode returns the error code as it should appear on the wire: StoreError
// is never client-visible and collapses to SGXError.
func (e *Error) WireCode() Code {
	if e.Code == storeError {
		return SGXError
	}
	return e.Code
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatusFor(code)}
}

func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatusFor(code), Err: err}
}

func httpStatusFor(code Code) int {
	switch code {
	case DataError, ReqError:
		return http.StatusBadRequest
	case OsError, OauthError:
		return http.StatusUnprocessableEntity
	case SgxError, SGXError, storeError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Transport-failure constructors.

func SgxTransportFailure(capability string, err error) *Error {
	return Wrap(SgxError, fmt.Sprintf("tee transport failure: %s", capability), err)
}

func SgxLogicalFailure(message string, err error) *Error {
	return Wrap(SGXError, message, err)
}

// Session-failure constructors.

func SessionNotFound() *Error {
	return New(DataError, "session not found")
}

func SessionExpired() *Error {
	return New(DataError, "session expired")
}

// Client-input-failure constructors.

func InvalidHex(field string, err error) *Error {
	return Wrap(ReqError, fmt.Sprintf("invalid hex in %s", field), err)
}

func UnknownOAuthType(oauthType string) *Error {
	return New(ReqError, fmt.Sprintf("unknown oauth_type: %s", oauthType))
}

func InvalidToken(err error) *Error {
	return Wrap(DataError, "invalid token", err)
}

// Credential-mismatch constructors (the one distinguished TEE logical failure,
// reported differently depending on which operation hit it).

// InvalidAttribute reports the Email engine's confirm step rejecting a
// confirmation code (register_email_confirm's invalid-attribute status).
func InvalidAttribute() *Error {
	return New(OsError, "OAuth failed")
}

// OAuthCodeMismatch reports Variant A's auth_oauth2 rejecting an OAuth
// authorization code (auth_oauth's invalid-attribute status) — distinct from
// InvalidAttribute because the two operations use different wire codes.
func OAuthCodeMismatch() *Error {
	return New(DataError, "confirm code does not match")
}

// Provider-failure constructor (Variant B only).

func ProviderFailure(provider, message string) *Error {
	return New(OauthError, fmt.Sprintf("%s: %s", provider, message))
}

// Persistence-failure constructor. Never placed on the wire directly; see
// WireCode.
func StoreFailure(operation string, err error) *Error {
	return Wrap(storeError, fmt.Sprintf("persistence failure: %s", operation), err)
}

func SigningFailure(err error) *Error {
	return Wrap(SGXError, "sign auth failed", err)
}
