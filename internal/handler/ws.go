package handler

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"chat-dev-proxy/internal/config"
	"chat-dev-proxy/internal/metrics"
	"chat-dev-proxy/internal/middleware"
	"chat-dev-proxy/internal/model"
	"chat-dev-proxy/internal/service"
)

// WSProxyHandler tunnels WebSocket connections to the chat backend. Requests
// without an upgrade are rejected; upgraded connections are relayed in both
// directions until either side closes.
type WSProxyHandler struct {
	rule    model.ForwardRule
	proxy   *httputil.ReverseProxy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewWSProxyHandler creates the tunnel handler for the upgrade rule.
// The metrics parameter is optional; pass nil to disable session metrics.
func NewWSProxyHandler(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*WSProxyHandler, error) {
	_, rule, err := service.BuildRules(cfg)
	if err != nil {
		return nil, err
	}

	// The tunnel dials the backend as HTTP; the ws scheme only describes the
	// protocol spoken after the 101 response.
	target := *rule.Target
	switch target.Scheme {
	case "ws":
		target.Scheme = "http"
	case "wss":
		target.Scheme = "https"
	}

	h := &WSProxyHandler{
		rule:    rule,
		logger:  logger.With("component", "ws_proxy"),
		metrics: m,
	}

	rp := httputil.NewSingleHostReverseProxy(&target)
	director := rp.Director
	rp.Director = func(req *http.Request) {
		origHost := req.Host
		director(req)
		if req.Header.Get("X-Forwarded-Host") == "" {
			req.Header.Set("X-Forwarded-Host", origHost)
		}
		if req.Header.Get("X-Forwarded-Proto") == "" {
			if req.TLS != nil {
				req.Header.Set("X-Forwarded-Proto", "https")
			} else {
				req.Header.Set("X-Forwarded-Proto", "http")
			}
		}
		if rule.RewriteOrigin {
			req.Host = target.Host
		}
	}
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		h.logger.Error("websocket tunnel failed",
			"err", err,
			"path", r.URL.Path,
		)
		w.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"backend connection failed"}`))
	}
	h.proxy = rp

	return h, nil
}

// Rule returns the forwarding rule the handler was built with.
func (h *WSProxyHandler) Rule() model.ForwardRule {
	return h.rule
}

// Handle enforces the upgrade contract and tunnels the connection. After the
// backend answers 101 the exchange leaves HTTP; errors past that point end the
// relay silently.
func (h *WSProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	if !middleware.IsUpgradeRequest(req) {
		return c.JSON(http.StatusUpgradeRequired, map[string]string{
			"error": "websocket upgrade required",
		})
	}

	connID := uuid.NewString()
	logger := h.logger.With("conn_id", connID, "path", req.URL.Path)
	logger.Info("websocket tunnel opening", "remote_ip", c.RealIP())

	if h.metrics != nil {
		h.metrics.WSSessionsActive.Inc()
		h.metrics.WSSessionsTotal.Inc()
	}
	start := time.Now()
	defer func() {
		duration := time.Since(start)
		if h.metrics != nil {
			h.metrics.WSSessionsActive.Dec()
			h.metrics.WSSessionDuration.Observe(duration.Seconds())
		}
		logger.Info("websocket tunnel closed", "duration_ms", duration.Milliseconds())
	}()

	h.proxy.ServeHTTP(c.Response(), req)
	return nil
}
