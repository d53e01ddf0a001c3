// Package kerr defines the error taxonomy shared by every SDK component.
//
// Every expected failure (network, signing, malformed payload, rejected request)
// surfaces as a *Error carrying a Code, the HTTP status when one applies, and a
// human-readable message. Callers branch on the code with errors.Is against the
// package sentinels or with CodeOf.
package kerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Code discriminates SDK failures.
type Code int

const (
	CodeUnknown Code = iota
	CodeNetwork
	CodeAuthentication
	CodeInvalidRequest
	CodeRateLimited
	CodeServer
	CodeParse
	CodeSigning
	CodeInvalidKey
)

func (c Code) String() string {
	switch c {
	case CodeNetwork:
		return "network"
	case CodeAuthentication:
		return "authentication"
	case CodeInvalidRequest:
		return "invalid request"
	case CodeRateLimited:
		return "rate limited"
	case CodeServer:
		return "server"
	case CodeParse:
		return "parse"
	case CodeSigning:
		return "signing"
	case CodeInvalidKey:
		return "invalid key"
	default:
		return "unknown"
	}
}

// Error is the discriminated error returned by SDK operations.
type Error struct {
	Code       Code
	HTTPStatus int    // 0 when no HTTP exchange happened
	Message    string
	Body       []byte // raw response body for HTTP failures
	Err        error  // underlying cause, if any
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("kalshi %s error %d: %s", e.Code, e.HTTPStatus, msg)
	}
	return fmt.Sprintf("kalshi %s error: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error with the same code. This lets callers
// write errors.Is(err, kerr.ErrRateLimited).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is matching. Only the Code is compared.
var (
	ErrNetwork        = &Error{Code: CodeNetwork}
	ErrAuthentication = &Error{Code: CodeAuthentication}
	ErrInvalidRequest = &Error{Code: CodeInvalidRequest}
	ErrRateLimited    = &Error{Code: CodeRateLimited}
	ErrServer         = &Error{Code: CodeServer}
	ErrParse          = &Error{Code: CodeParse}
	ErrSigning        = &Error{Code: CodeSigning}
	ErrInvalidKey     = &Error{Code: CodeInvalidKey}
)

// New creates an error with the given code.
func New(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Err: cause}
}

func Network(msg string, cause error) *Error {
	return New(CodeNetwork, msg, cause)
}

func Authentication(msg string, cause error) *Error {
	return New(CodeAuthentication, msg, cause)
}

func InvalidRequest(msg string) *Error {
	return New(CodeInvalidRequest, msg, nil)
}

func Parse(msg string, cause error) *Error {
	return New(CodeParse, msg, cause)
}

func Signing(msg string, cause error) *Error {
	return New(CodeSigning, msg, cause)
}

// exchangeErrorBody is the error envelope the exchange returns on non-2xx.
type exchangeErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
}

// FromStatus classifies a non-2xx HTTP response.
func FromStatus(status int, body []byte) *Error {
	var code Code
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		code = CodeAuthentication
	case status == http.StatusTooManyRequests:
		code = CodeRateLimited
	case status >= 500:
		code = CodeServer
	case status >= 400:
		code = CodeInvalidRequest
	default:
		code = CodeServer
	}

	msg := http.StatusText(status)
	var envelope exchangeErrorBody
	if len(body) > 0 && json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		msg = envelope.Error.Message
		if envelope.Error.Code != "" {
			msg = envelope.Error.Code + ": " + msg
		}
	}
	if msg == "" {
		msg = "unexpected status"
	}

	return &Error{
		Code:       code,
		HTTPStatus: status,
		Message:    msg,
		Body:       body,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// StatusOf returns the HTTP status of the first *Error in err's chain, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus
	}
	return 0
}
