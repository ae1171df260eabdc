package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/tidwall/gjson"
)

// Kind classifies routing and provider failures. The string value is the
// stable reason code surfaced to clients.
type Kind string

const (
	KindInvalidModel        Kind = "invalid_model"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindNoProviders         Kind = "no_providers"
	KindAuthentication      Kind = "authentication_failed"
	KindRateLimit           Kind = "rate_limited"
	KindTimeout             Kind = "timeout"
	KindCanceled            Kind = "canceled"
	KindAPI                 Kind = "provider_api_error"
	KindHTTP                Kind = "transport_error"
	KindSerialization       Kind = "serialization_error"
)

type Error struct {
	Kind     Kind
	Provider Provider
	Status   int
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels of the same kind; a sentinel with a provider only
// matches errors from that provider.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Provider == "" || t.Provider == e.Provider)
}

func (e *Error) Code() string { return string(e.Kind) }

// HTTPStatus is the status a REST caller should see for this error.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 && e.Kind != KindAPI {
		return e.Status
	}
	switch e.Kind {
	case KindInvalidModel:
		return http.StatusBadRequest
	case KindProviderUnavailable, KindAuthentication:
		return http.StatusUnauthorized
	case KindNoProviders:
		return http.StatusServiceUnavailable
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindCanceled:
		return http.StatusRequestTimeout
	case KindAPI:
		if e.Status >= 400 && e.Status < 500 {
			return e.Status
		}
	}
	return http.StatusBadGateway
}

var (
	ErrInvalidModel        = &Error{Kind: KindInvalidModel}
	ErrProviderUnavailable = &Error{Kind: KindProviderUnavailable}
	ErrNoProviders         = &Error{Kind: KindNoProviders}
	ErrAuthentication      = &Error{Kind: KindAuthentication}
	ErrRateLimit           = &Error{Kind: KindRateLimit}
	ErrTimeout             = &Error{Kind: KindTimeout}
	ErrCanceled            = &Error{Kind: KindCanceled}
	ErrAPI                 = &Error{Kind: KindAPI}
)

func invalidModel(name string) *Error {
	return &Error{Kind: KindInvalidModel, Status: http.StatusBadRequest, Message: "Unknown model: " + name}
}

func providerUnavailable(p Provider) *Error {
	return &Error{
		Kind:     KindProviderUnavailable,
		Provider: p,
		Status:   http.StatusUnauthorized,
		Message:  p.DisplayName() + " API key not configured",
	}
}

func noProviders() *Error {
	return &Error{
		Kind:    KindNoProviders,
		Status:  http.StatusServiceUnavailable,
		Message: "No AI services are available - please configure at least one API key",
	}
}

// statusError maps an upstream HTTP status to an error kind. message is the
// upstream error.message when one could be read.
func statusError(p Provider, status int, message string) *Error {
	switch {
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimit, Provider: p, Status: status, Message: "Rate limit exceeded"}
	case status == http.StatusUnauthorized,
		status == http.StatusForbidden && p == ProviderGoogle:
		return &Error{Kind: KindAuthentication, Provider: p, Status: status, Message: "Authentication failed"}
	case status == http.StatusBadRequest:
		if message == "" {
			message = "Bad request"
		}
		return &Error{Kind: KindAPI, Provider: p, Status: status, Message: message}
	}
	return &Error{Kind: KindAPI, Provider: p, Status: status, Message: fmt.Sprintf("API error: %d", status)}
}

// upstreamMessage reads error.message from a provider error body.
func upstreamMessage(body []byte) string {
	return gjson.GetBytes(body, "error.message").String()
}

// transportError classifies a failed round trip. parent is the caller's
// context, used to tell caller cancellation apart from our own deadline.
func transportError(parent context.Context, p Provider, err error) *Error {
	if errors.Is(parent.Err(), context.Canceled) {
		return &Error{Kind: KindCanceled, Provider: p, Message: "Request canceled", Err: err}
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: KindTimeout, Provider: p, Status: http.StatusGatewayTimeout, Message: "Request timed out", Err: err}
	}
	return &Error{Kind: KindHTTP, Provider: p, Message: "HTTP request failed", Err: err}
}
