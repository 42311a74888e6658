// Package service implements the session-aware request executor.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"anaf-gateway-go/internal/classify"
	"anaf-gateway-go/internal/metrics"
	"anaf-gateway-go/internal/model"
	"anaf-gateway-go/internal/session"
	"anaf-gateway-go/internal/transport"
)

// Executor is the public entry point for backend calls: it guarantees a valid
// session around each request and recovers a mid-flight session expiry with
// exactly one re-authentication retry.
type Executor struct {
	sender   transport.Sender
	sessions *session.Manager
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewExecutor creates an Executor. The metrics parameter is optional; pass
// nil to disable outcome metrics recording.
func NewExecutor(sender transport.Sender, sessions *session.Manager, logger *slog.Logger, m *metrics.Metrics) *Executor {
	return &Executor{
		sender:   sender,
		sessions: sessions,
		logger:   logger.With("component", "executor"),
		metrics:  m,
	}
}

// Execute sends one backend request under the current session. On an
// AuthFailure outcome it invalidates the session generation it used,
// re-establishes, and retries the request once; a second consecutive
// AuthFailure is returned to the caller rather than retried further, so a
// revoked certificate cannot cause a retry loop.
//
// An error return means no session could be established; every completed
// exchange, including AuthFailure and TransientError, comes back as an
// Outcome.
func (e *Executor) Execute(ctx context.Context, req *model.BackendRequest) (model.Outcome, error) {
	sess, err := e.sessions.Ensure(ctx)
	if err != nil {
		return model.Outcome{}, fmt.Errorf("ensure session: %w", err)
	}

	out := e.send(ctx, req, sess)
	if out.Kind != model.AuthFailure {
		e.record(req, out)
		return out, nil
	}

	// The session expired mid-flight, or a concurrent caller's did. Discard
	// exactly the generation this request used; if someone already
	// re-established, Invalidate is a no-op and Ensure returns their session.
	e.logger.Warn("auth failure, re-establishing session",
		"endpoint", req.Endpoint,
		"reason", out.Reason,
		"generation", sess.Generation,
	)
	e.sessions.Invalidate(sess.Generation)
	if e.metrics != nil {
		e.metrics.AuthRetriesTotal.Inc()
	}

	sess, err = e.sessions.Ensure(ctx)
	if err != nil {
		return model.Outcome{}, fmt.Errorf("re-establish session: %w", err)
	}

	out = e.send(ctx, req, sess)
	e.record(req, out)
	return out, nil
}

func (e *Executor) send(ctx context.Context, req *model.BackendRequest, sess *model.Session) model.Outcome {
	res, err := e.sender.Send(ctx, req.Method, req.Endpoint, req.Body, req.ContentType, sess.Cookies)
	return classify.Classify(res, err)
}

func (e *Executor) record(req *model.BackendRequest, out model.Outcome) {
	if e.metrics != nil {
		e.metrics.BackendOutcomes.WithLabelValues(metrics.NormalizeEndpoint(req.Endpoint), out.Kind.String()).Inc()
	}
}
