package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"anaf-gateway-go/internal/config"
	"anaf-gateway-go/internal/session"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg      *config.Config
	sessions *session.Manager
	version  Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, sessions *session.Manager, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, sessions: sessions, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns gateway status information, including the session state.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":       "ok",
		"version":      string(h.version),
		"upstream_url": h.cfg.ANAF.BaseURL,
		"session":      h.sessions.State(),
	})
}
