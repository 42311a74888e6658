package handler

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"anaf-gateway-go/internal/anafxml"
	"anaf-gateway-go/internal/model"
	"anaf-gateway-go/internal/service"
	"anaf-gateway-go/internal/session"
)

// Request bodies for the gateway's JSON-in, XML-out endpoints.
type listaMesajeRequest struct {
	Zile string `json:"zile"`
}

type stareMesajRequest struct {
	IndexIncarcare string `json:"index_incarcare"`
}

type descarcareMesajRequest struct {
	IDPortal string `json:"id_portal"`
}

type uploadMesajRequest struct {
	FisierB64 string `json:"fisier_b64"`
}

// MessagesHandler exposes the BANCIWS operations as gateway endpoints.
type MessagesHandler struct {
	executor *service.Executor
	logger   *slog.Logger
}

// NewMessagesHandler creates a MessagesHandler.
func NewMessagesHandler(exec *service.Executor, logger *slog.Logger) *MessagesHandler {
	return &MessagesHandler{
		executor: exec,
		logger:   logger.With("component", "messages_handler"),
	}
}

// ListaMesaje lists messages for the requested window (default "1/24").
func (h *MessagesHandler) ListaMesaje(c echo.Context) error {
	var req listaMesajeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Zile == "" {
		req.Zile = anafxml.DefaultZile
	}
	payload, err := anafxml.ListaMesaje(req.Zile)
	if err != nil {
		return buildError(c, err)
	}
	return h.execute(c, anafxml.EndpointListaMesaje, payload)
}

// StareMesaj queries the processing status of a previous upload.
func (h *MessagesHandler) StareMesaj(c echo.Context) error {
	var req stareMesajRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.IndexIncarcare == "" {
		return badRequest(c, "index_incarcare is required")
	}
	payload, err := anafxml.StareMesaj(req.IndexIncarcare)
	if err != nil {
		return buildError(c, err)
	}
	return h.execute(c, anafxml.EndpointStareMesaj, payload)
}

// DescarcareMesaj downloads a message by portal id.
func (h *MessagesHandler) DescarcareMesaj(c echo.Context) error {
	var req descarcareMesajRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.IDPortal == "" {
		return badRequest(c, "id_portal is required")
	}
	payload, err := anafxml.DescarcareMesaj(req.IDPortal)
	if err != nil {
		return buildError(c, err)
	}
	return h.execute(c, anafxml.EndpointDescarcare, payload)
}

// UploadMesaj uploads a base64-encoded file.
func (h *MessagesHandler) UploadMesaj(c echo.Context) error {
	var req uploadMesajRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.FisierB64 == "" {
		return badRequest(c, "fisier_b64 is required")
	}
	payload, err := anafxml.UploadMesaj(req.FisierB64)
	if err != nil {
		return buildError(c, err)
	}
	return h.execute(c, anafxml.EndpointUploadMesaj, payload)
}

// execute runs one backend call and maps its outcome to an HTTP response.
// Success passes the backend's XML and status through untouched, including
// backend-level error envelopes; the caller interprets those itself.
func (h *MessagesHandler) execute(c echo.Context, endpoint string, payload []byte) error {
	req := &model.BackendRequest{
		Endpoint:    endpoint,
		Method:      http.MethodPost,
		Body:        payload,
		ContentType: anafxml.ContentType,
	}

	out, err := h.executor.Execute(c.Request().Context(), req)
	if err != nil {
		return h.mapError(c, err)
	}

	switch out.Kind {
	case model.Success:
		return c.Blob(out.StatusCode, anafxml.ContentType, out.Body)

	case model.AuthFailure:
		h.logger.Error("request blocked by access layer",
			"endpoint", endpoint,
			"reason", out.Reason,
			"status", out.StatusCode,
		)
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "gateway blocked by ANAF access layer",
		})

	default: // TransientError
		h.logger.Error("upstream error",
			"endpoint", endpoint,
			"reason", out.Reason,
			"err", out.Err,
		)
		if errors.Is(out.Err, context.DeadlineExceeded) {
			return c.JSON(http.StatusGatewayTimeout, map[string]string{
				"error": "upstream request timed out",
			})
		}
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream request failed",
		})
	}
}

// mapError translates session-establishment failures to HTTP responses.
func (h *MessagesHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("session error",
		"err", err,
		"path", c.Request().URL.Path,
	)

	if errors.Is(err, session.ErrAuthFailed) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "ANAF authentication failed; check client certificate",
		})
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "session handshake timed out",
		})
	}

	if errors.Is(err, context.Canceled) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "client disconnected",
		})
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "ANAF host unreachable",
		})
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "ANAF connection failed",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "session establishment failed",
	})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}

func buildError(c echo.Context, err error) error {
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error": "build request payload: " + err.Error(),
	})
}
