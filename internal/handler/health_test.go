package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"anaf-gateway-go/internal/config"
	"anaf-gateway-go/internal/session"
)

func newTestSessionManager(sender *fakeSender) *session.Manager {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{ANAF: config.ANAFConfig{HandshakeTimeoutSeconds: 10}}
	return session.NewManager(sender, cfg, logger, nil)
}

func TestHealthz(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	sender := &fakeSender{}
	h := NewHealthHandler(&config.Config{}, newTestSessionManager(sender), "test")
	if err := h.Healthz(c); err != nil {
		t.Fatalf("Healthz() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
}

func TestStatus(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/gateway/status", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	cfg := &config.Config{
		ANAF: config.ANAFConfig{BaseURL: "https://financiart.anaf.ro/BANCIWS/rest/"},
	}
	sender := &fakeSender{}
	h := NewHealthHandler(cfg, newTestSessionManager(sender), "1.2.3")
	if err := h.Status(c); err != nil {
		t.Fatalf("Status() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body struct {
		Status      string           `json:"status"`
		Version     string           `json:"version"`
		UpstreamURL string           `json:"upstream_url"`
		Session     session.Snapshot `json:"session"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("body.status = %q, want %q", body.Status, "ok")
	}
	if body.Version != "1.2.3" {
		t.Errorf("body.version = %q, want %q", body.Version, "1.2.3")
	}
	if body.UpstreamURL != "https://financiart.anaf.ro/BANCIWS/rest/" {
		t.Errorf("body.upstream_url = %q, want ANAF base URL", body.UpstreamURL)
	}
	if body.Session.State != "none" {
		t.Errorf("body.session.state = %q, want %q before any handshake", body.Session.State, "none")
	}
}
