package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"chat-dev-proxy/internal/model"
	"chat-dev-proxy/internal/service"
)

// ProxyHandler forwards API requests to the chat backend.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle proxies the request to the chat backend and streams the response back.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	pr := &model.ProxyRequest{
		Ctx:        req.Context(),
		Method:     req.Method,
		Path:       req.URL.Path,
		Query:      req.URL.Query(),
		Header:     req.Header,
		Body:       req.Body,
		RemoteAddr: req.RemoteAddr,
		Host:       req.Host,
		TLS:        req.TLS != nil,
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Stream the backend body directly to the client. If the copy fails
	// mid-stream (e.g. client disconnect, network error), the HTTP status
	// code has already been sent, so the client receives a truncated
	// response with the original status. We log the error for visibility.
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		err = streamEvents(c.Response(), resp.Body)
	} else {
		_, err = io.Copy(c.Response(), resp.Body)
	}
	if err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"path", req.URL.Path,
		)
	}

	return nil
}

// streamEvents copies an event stream to the client, flushing after each read
// so assistant output renders as the backend emits it.
func streamEvents(res *echo.Response, body io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := res.Write(buf[:n]); werr != nil {
				return werr
			}
			res.Flush()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("proxy error",
		"err", err,
		"path", c.Request().URL.Path,
	)

	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "backend request timed out",
		})
	}

	if errors.Is(err, context.Canceled) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "client disconnected",
		})
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "backend request timed out",
		})
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "backend host unreachable",
		})
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "backend connection failed",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "backend request failed",
	})
}
