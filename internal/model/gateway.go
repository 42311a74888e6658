// Package model defines shared types for the gateway.
package model

import (
	"net/http"
	"time"
)

// Session is an established proxy-layer session. It is immutable: a
// re-authentication produces a new Session value with a higher generation
// rather than mutating an existing one.
type Session struct {
	Cookies       []*http.Cookie
	EstablishedAt time.Time
	Generation    uint64
}

// BackendRequest is an outbound call to a BANCIWS operation. It is immutable
// once constructed and owned by the caller until handed to the executor.
type BackendRequest struct {
	Endpoint    string // path relative to the ANAF base URL, e.g. "listaMesaje"
	Method      string
	Body        []byte
	ContentType string
}

// OutcomeKind classifies a backend response.
type OutcomeKind int

const (
	// Success means the backend answered with well-formed XML. This includes
	// backend-level error envelopes delivered with a 4xx status; interpreting
	// those is the caller's business.
	Success OutcomeKind = iota

	// AuthFailure means the F5 access layer intercepted the request: the
	// session is missing or expired, or the client certificate was rejected.
	AuthFailure

	// TransientError covers transport failures and responses that fit neither
	// of the above (timeouts, malformed bodies, unexpected content types).
	TransientError
)

// String returns the outcome kind as a label suitable for logs and metrics.
func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case AuthFailure:
		return "auth_failure"
	case TransientError:
		return "transient_error"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one backend call.
type Outcome struct {
	Kind       OutcomeKind
	Body       []byte // response body on Success
	StatusCode int    // last HTTP status observed; 0 when the transport failed
	Reason     string // human-readable classification reason
	Err        error  // underlying cause for TransientError, nil otherwise
}
