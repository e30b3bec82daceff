package handler

import (
	"github.com/labstack/echo/v4"

	"chat-dev-proxy/internal/config"
)

// RegisterRoutes wires all route handlers onto the Echo instance. The proxy
// prefixes come from config; everything they don't claim falls through to the
// frontend catch-all.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, api *ProxyHandler, ws *WSProxyHandler, frontend *FrontendHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/devserver/status", health.Status)

	e.Any(cfg.Backend.APIPrefix, api.Handle)
	e.Any(cfg.Backend.APIPrefix+"/*", api.Handle)
	e.Any(cfg.Backend.WSPrefix, ws.Handle)
	e.Any(cfg.Backend.WSPrefix+"/*", ws.Handle)

	e.GET("/*", frontend.Handle)
	e.HEAD("/*", frontend.Handle)
}
