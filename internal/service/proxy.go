// Package service implements the forwarding logic between the dev server and
// the chat backend.
package service

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"chat-dev-proxy/internal/client"
	"chat-dev-proxy/internal/config"
	"chat-dev-proxy/internal/model"
)

// hopByHopHeaders describe a single transport link, not the end-to-end
// exchange, and must not cross the proxy in either direction.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// BuildRules derives the two forwarding rules from the backend configuration.
// Both rules point at the same host and port; they differ only in scheme and
// in the upgrade flag.
func BuildRules(cfg *config.Config) (api model.ForwardRule, ws model.ForwardRule, err error) {
	apiTarget, err := url.Parse(cfg.Backend.APITarget())
	if err != nil {
		return model.ForwardRule{}, model.ForwardRule{}, fmt.Errorf("parse api target: %w", err)
	}
	wsTarget, err := url.Parse(cfg.Backend.WSTarget())
	if err != nil {
		return model.ForwardRule{}, model.ForwardRule{}, fmt.Errorf("parse ws target: %w", err)
	}

	api = model.ForwardRule{
		Prefix:        cfg.Backend.APIPrefix,
		Target:        apiTarget,
		RewriteOrigin: true,
	}
	ws = model.ForwardRule{
		Prefix:        cfg.Backend.WSPrefix,
		Target:        wsTarget,
		RewriteOrigin: true,
		Upgrade:       true,
	}
	return api, ws, nil
}

// ProxyService forwards API requests to the chat backend.
type ProxyService struct {
	client *client.BackendClient
	cfg    *config.Config
	logger *slog.Logger
	rule   model.ForwardRule
}

// NewProxyService creates the ProxyService for the request/response rule.
func NewProxyService(c *client.BackendClient, cfg *config.Config, logger *slog.Logger) (*ProxyService, error) {
	apiRule, _, err := BuildRules(cfg)
	if err != nil {
		return nil, err
	}

	return &ProxyService{
		client: c,
		cfg:    cfg,
		logger: logger.With("component", "proxy_service"),
		rule:   apiRule,
	}, nil
}

// Rule returns the forwarding rule the service was built with.
func (s *ProxyService) Rule() model.ForwardRule {
	return s.rule
}

// Forward sends a ProxyRequest to the backend and returns the streaming
// response. The caller is responsible for closing the response body.
//
// The request path and query reach the backend unchanged; only the origin is
// rewritten, so the backend sees itself as the host being addressed.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	backendURL := s.buildBackendURL(pr.Path, pr.Query)
	header := s.forwardRequestHeaders(pr)

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"path", pr.Path,
	)

	resp, err := s.client.DoStream(pr.Ctx, pr.Method, backendURL, header, pr.Body)
	if err != nil {
		return nil, fmt.Errorf("forward to backend: %w", err)
	}

	resp.Header = stripHopByHop(resp.Header)
	return resp, nil
}

func (s *ProxyService) buildBackendURL(path string, query url.Values) string {
	u := *s.rule.Target
	u.Path = path
	u.RawQuery = query.Encode()
	return u.String()
}

// forwardRequestHeaders applies the pass-through policy: every header crosses
// the proxy except hop-by-hop ones, and the standard forwarding headers record
// the original client.
func (s *ProxyService) forwardRequestHeaders(pr *model.ProxyRequest) http.Header {
	dst := stripHopByHop(pr.Header)

	if clientIP, _, err := net.SplitHostPort(pr.RemoteAddr); err == nil {
		if prior := dst.Get("X-Forwarded-For"); prior != "" {
			dst.Set("X-Forwarded-For", prior+", "+clientIP)
		} else {
			dst.Set("X-Forwarded-For", clientIP)
		}
	}
	if dst.Get("X-Forwarded-Proto") == "" {
		if pr.TLS {
			dst.Set("X-Forwarded-Proto", "https")
		} else {
			dst.Set("X-Forwarded-Proto", "http")
		}
	}
	if dst.Get("X-Forwarded-Host") == "" && pr.Host != "" {
		dst.Set("X-Forwarded-Host", pr.Host)
	}

	return dst
}

// stripHopByHop returns a copy of src without hop-by-hop headers, including
// any additional ones named by the Connection header.
func stripHopByHop(src http.Header) http.Header {
	drop := make(map[string]bool, len(hopByHopHeaders))
	for _, h := range hopByHopHeaders {
		drop[h] = true
	}
	for _, v := range src.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				drop[http.CanonicalHeaderKey(name)] = true
			}
		}
	}

	dst := make(http.Header, len(src))
	for key, vals := range src {
		if drop[http.CanonicalHeaderKey(key)] {
			continue
		}
		dst[key] = append([]string(nil), vals...)
	}
	return dst
}
