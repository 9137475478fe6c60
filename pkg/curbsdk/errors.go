package curbsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthentication is returned when no valid token could be obtained
	// or renewed. The session is unusable until the credentials are fixed.
	ErrAuthentication = errors.New("curbsdk: authentication failed")

	// ErrNoExistingToken is returned by a refresh grant without a prior token.
	ErrNoExistingToken = errors.New("curbsdk: no existing token to refresh")

	// ErrMalformedToken matches every *MalformedTokenError.
	ErrMalformedToken = errors.New("curbsdk: malformed token")

	// ErrSessionClosed is returned by any operation after Close.
	ErrSessionClosed = errors.New("curbsdk: session closed")

	// ErrNoEntryPoint is returned when a resource accessor needs a link
	// the entry point did not provide.
	ErrNoEntryPoint = errors.New("curbsdk: entry point unavailable")
)

// ============================================================================
// Token payload errors
// ============================================================================

// MalformedTokenError describes a token payload that could not be decoded.
type MalformedTokenError struct {
	Reason string
	Err    error
}

func (e *MalformedTokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrMalformedToken, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrMalformedToken, e.Reason)
}

func (e *MalformedTokenError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrMalformedToken) match.
func (e *MalformedTokenError) Is(target error) bool {
	return target == ErrMalformedToken
}

// ============================================================================
// OAuth2Error - token endpoint rejections
// ============================================================================

// OAuth2 error codes per RFC 6749 that the token endpoint is known to use.
const (
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeInvalidClient  = "invalid_client"
	ErrorCodeInvalidGrant   = "invalid_grant"
	ErrorCodeServerError    = "server_error"
)

// OAuth2Error is a parsed token endpoint error response. Grant rejections
// are soft failures, so this type is only surfaced in logs.
type OAuth2Error struct {
	// StatusCode is the HTTP status code of the response
	StatusCode int `json:"-"`

	// Code is the OAuth2 error code (e.g., "invalid_grant")
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// parseErrorResponse turns a non-2xx token endpoint response into an
// OAuth2Error, falling back to the status text for bodies that are not
// OAuth2 documents.
func parseErrorResponse(statusCode int, body []byte) *OAuth2Error {
	var errResp OAuth2Error
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Code != "" {
		errResp.StatusCode = statusCode
		return &errResp
	}

	code := ErrorCodeServerError
	switch statusCode {
	case http.StatusBadRequest:
		code = ErrorCodeInvalidRequest
	case http.StatusUnauthorized:
		code = ErrorCodeInvalidClient
	}

	return &OAuth2Error{
		StatusCode:  statusCode,
		Code:        code,
		Description: fmt.Sprintf("HTTP %d: %s", statusCode, http.StatusText(statusCode)),
	}
}

// ============================================================================
// APIError - resource endpoint errors
// ============================================================================

// APIError is returned when a resource endpoint answers with a JSON error
// document. It is never retried.
type APIError struct {
	StatusCode int
	Path       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("curbsdk: GET %s: %d %s: %s", e.Path, e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("curbsdk: GET %s: %d: %s", e.Path, e.StatusCode, msg)
}

// parseAPIError reads the common error shapes the API returns: OAuth2
// style {"error", "error_description"} and {"code", "message"}.
func parseAPIError(statusCode int, path string, body []byte) *APIError {
	var doc struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Code             string `json:"code"`
		Message          string `json:"message"`
	}
	_ = json.Unmarshal(body, &doc)

	apiErr := &APIError{StatusCode: statusCode, Path: path}
	switch {
	case doc.Error != "":
		apiErr.Code = doc.Error
		apiErr.Message = doc.ErrorDescription
	default:
		apiErr.Code = doc.Code
		apiErr.Message = doc.Message
	}
	return apiErr
}
