// Package model defines shared types for the dev proxy.
package model

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// ForwardRule describes how requests under one path prefix reach the backend.
// Both rules are built from the same resolved backend host and stay fixed for
// the process lifetime.
type ForwardRule struct {
	// Prefix is the inbound path prefix the rule matches (e.g. "/api").
	Prefix string
	// Target is the backend origin, e.g. "http://localhost:8000" or
	// "ws://localhost:8000".
	Target *url.URL
	// RewriteOrigin sets the outgoing Host header to the target's host so the
	// backend sees itself as the request origin.
	RewriteOrigin bool
	// Upgrade marks the rule as a connection-upgrade tunnel rather than a
	// request/response forward.
	Upgrade bool
}

// ProxyRequest represents a client request to be forwarded to the backend.
type ProxyRequest struct {
	Ctx        context.Context
	Method     string
	Path       string
	Query      url.Values
	Header     http.Header
	Body       io.ReadCloser
	RemoteAddr string
	// Host is the Host header the client sent, recorded as X-Forwarded-Host.
	Host string
	// TLS records whether the inbound request arrived over TLS, for the
	// X-Forwarded-Proto header.
	TLS bool
}

// ProxyResponse represents the backend response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
