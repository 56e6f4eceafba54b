package routing

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrTooManyWaypoints = errors.New("too many waypoints for a single provider request")
	ErrLegFailed        = errors.New("route leg could not be built")
	ErrEmptyCluster     = errors.New("cluster has no members")
	ErrInvalidGeometry  = errors.New("invalid route geometry")
)

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	KindAuth        ErrorKind = "auth"
	KindQuota       ErrorKind = "quota"
	KindRateLimited ErrorKind = "rate_limited"
	KindMalformed   ErrorKind = "malformed_response"
	KindTransport   ErrorKind = "transport"
	KindTimeout     ErrorKind = "timeout"
	// KindRejected is any other error the provider reports about the request.
	KindRejected ErrorKind = "rejected"
)

// Transient reports whether a failure of this kind is worth retrying.
func (k ErrorKind) Transient() bool {
	switch k {
	case KindRateLimited, KindTransport, KindTimeout:
		return true
	}
	return false
}

type ProviderError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider %s error (code %s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("provider %s error: %s", e.Kind, e.Message)
}

func NewProviderError(kind ErrorKind, code, msg string) *ProviderError {
	return &ProviderError{Kind: kind, Code: code, Message: msg}
}

// Classify maps an error returned by a Provider to its kind.
func Classify(err error) ErrorKind {
	var pe *ProviderError
	switch {
	case errors.As(err, &pe):
		return pe.Kind
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrInvalidGeometry):
		return KindMalformed
	default:
		return KindTransport
	}
}
