// Package session owns the F5 session lifecycle: handshake, expiry detection
// handoff, and single-flight re-establishment under concurrent callers.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"anaf-gateway-go/internal/anafxml"
	"anaf-gateway-go/internal/classify"
	"anaf-gateway-go/internal/config"
	"anaf-gateway-go/internal/metrics"
	"anaf-gateway-go/internal/model"
	"anaf-gateway-go/internal/transport"
)

// ErrAuthFailed is returned when the handshake itself is intercepted by the
// access layer, which usually means the client certificate was rejected.
var ErrAuthFailed = errors.New("session handshake rejected by access layer")

// Snapshot describes the manager state for the status endpoint.
type Snapshot struct {
	State         string    `json:"state"` // "none", "establishing" or "established"
	Generation    uint64    `json:"generation"`
	EstablishedAt time.Time `json:"established_at,omitzero"`
}

// flight is one in-progress handshake. Result fields are written before done
// is closed and read only after it is closed.
type flight struct {
	done    chan struct{}
	session *model.Session
	err     error
}

// Manager tracks the current session and guards re-establishment. There is
// never more than one handshake in flight: callers that find no usable
// session while another caller is already establishing one wait for that
// flight's result instead of starting their own.
type Manager struct {
	sender  transport.Sender
	timeout time.Duration
	payload []byte
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	current    *model.Session // nil when no session is established
	generation uint64
	fl         *flight // nil when no handshake is in flight
}

// NewManager creates a Manager. The metrics parameter is optional; pass nil
// to disable session metrics recording.
func NewManager(sender transport.Sender, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		sender:  sender,
		timeout: time.Duration(cfg.ANAF.HandshakeTimeoutSeconds) * time.Second,
		payload: anafxml.HandshakePayload(),
		logger:  logger.With("component", "session_manager"),
		metrics: m,
	}
}

// Ensure returns the current session, establishing one first if needed.
// Concurrent calls that observe no session share a single handshake. ctx only
// bounds this caller's wait: the handshake itself runs on a detached context
// with its own timeout, so one caller canceling does not fail the others.
func (m *Manager) Ensure(ctx context.Context) (*model.Session, error) {
	m.mu.Lock()
	if m.current != nil {
		s := m.current
		m.mu.Unlock()
		return s, nil
	}
	if m.fl != nil {
		f := m.fl
		m.mu.Unlock()
		select {
		case <-f.done:
			return f.session, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	m.fl = f
	m.mu.Unlock()

	sess, err := m.handshake()

	m.mu.Lock()
	if err == nil {
		m.generation++
		sess.Generation = m.generation
		m.current = sess
		if m.metrics != nil {
			m.metrics.SessionGeneration.Set(float64(m.generation))
		}
	}
	f.session, f.err = sess, err
	m.fl = nil
	m.mu.Unlock()
	close(f.done)

	return sess, err
}

// Invalidate discards the current session if its generation matches the one
// the caller observed. A stale generation is a no-op: the request that saw
// the failure predates a re-establishment that has already happened, and the
// newer session must not be discarded on its account.
func (m *Manager) Invalidate(generation uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.Generation == generation {
		m.logger.Warn("session invalidated", "generation", generation)
		m.current = nil
	}
}

// State returns a snapshot of the session state.
func (m *Manager) State() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.current != nil:
		return Snapshot{
			State:         "established",
			Generation:    m.current.Generation,
			EstablishedAt: m.current.EstablishedAt,
		}
	case m.fl != nil:
		return Snapshot{State: "establishing", Generation: m.generation}
	default:
		return Snapshot{State: "none", Generation: m.generation}
	}
}

// handshake performs the F5 authentication flow: a POST with a dummy-but-valid
// listaMesaje payload, redirects followed so the access layer can issue its
// cookies along the chain.
func (m *Manager) handshake() (*model.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.logger.Info("establishing fresh F5 session")

	res, err := m.sender.Send(ctx, http.MethodPost, anafxml.EndpointListaMesaje, m.payload, anafxml.ContentType, nil)
	out := classify.Classify(res, err)

	switch out.Kind {
	case model.Success:
		if m.metrics != nil {
			m.metrics.HandshakesTotal.WithLabelValues("success").Inc()
		}
		m.logger.Info("F5 session established",
			"status", out.StatusCode,
			"cookies", len(res.Cookies),
		)
		return &model.Session{
			Cookies:       res.Cookies,
			EstablishedAt: time.Now(),
		}, nil

	case model.AuthFailure:
		if m.metrics != nil {
			m.metrics.HandshakesTotal.WithLabelValues("auth_failure").Inc()
		}
		m.logger.Error("handshake blocked by access layer", "reason", out.Reason, "status", out.StatusCode)
		return nil, fmt.Errorf("%w: %s", ErrAuthFailed, out.Reason)

	default:
		if m.metrics != nil {
			m.metrics.HandshakesTotal.WithLabelValues("transient_error").Inc()
		}
		m.logger.Error("handshake failed", "reason", out.Reason, "err", out.Err)
		if out.Err != nil {
			return nil, fmt.Errorf("session handshake: %w", out.Err)
		}
		return nil, fmt.Errorf("session handshake: %s", out.Reason)
	}
}

// Prewarm establishes the session at startup, retrying with jittered backoff
// until it succeeds or ctx is canceled. A failing prewarm does not prevent
// requests from triggering the handshake themselves later.
func (m *Manager) Prewarm(ctx context.Context) error {
	b := &backoff.Backoff{
		Min:    1 * time.Second,
		Max:    1 * time.Minute,
		Factor: 2,
		Jitter: true,
	}
	for {
		_, err := m.Ensure(ctx)
		if err == nil {
			return nil
		}
		d := b.Duration()
		m.logger.Warn("session prewarm failed", "err", err, "retry_in", d)
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
