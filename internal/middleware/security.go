package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// hopByHopHeaders are headers that should not be forwarded by proxies.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// IsUpgradeRequest reports whether the request asks for a WebSocket upgrade:
// a Connection header carrying the upgrade token plus Upgrade: websocket,
// both case-insensitive.
func IsUpgradeRequest(r *http.Request) bool {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return false
	}
	for _, v := range r.Header.Values("Connection") {
		for _, token := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(token), "upgrade") {
				return true
			}
		}
	}
	return false
}

// SecurityHeaders returns an Echo middleware that strips hop-by-hop headers
// from inbound requests and sets baseline security headers on responses.
// WebSocket upgrade requests keep Connection and Upgrade; the tunnel handler
// needs them intact. The response headers are set before the handler runs so
// they survive streamed responses; handlers copying backend headers may
// overwrite them.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !IsUpgradeRequest(c.Request()) {
				for _, h := range hopByHopHeaders {
					c.Request().Header.Del(h)
				}
			}

			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")

			return next(c)
		}
	}
}
