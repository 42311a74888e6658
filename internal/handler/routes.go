package handler

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, msgs *MessagesHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/gateway/status", health.Status)

	e.POST("/lista-mesaje", msgs.ListaMesaje)
	e.POST("/stare-mesaj", msgs.StareMesaj)
	e.POST("/descarcare-mesaj", msgs.DescarcareMesaj)
	e.POST("/upload-mesaj", msgs.UploadMesaj)
}
