package handler

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"chat-dev-proxy/internal/config"
)

//go:embed placeholder.html
var placeholderPage []byte

// FrontendHandler serves the chat frontend: files from a configured directory
// with an index.html fallback for client-side routes, or a built-in
// placeholder page when no directory is configured.
type FrontendHandler struct {
	dir    string
	logger *slog.Logger
}

// NewFrontendHandler creates the frontend handler from config.
func NewFrontendHandler(cfg *config.Config, logger *slog.Logger) *FrontendHandler {
	return &FrontendHandler{
		dir:    cfg.Frontend.Dir,
		logger: logger.With("component", "frontend"),
	}
}

// Dir returns the configured asset directory, or empty in placeholder mode.
func (h *FrontendHandler) Dir() string {
	return h.dir
}

// Handle serves requests no other route claimed. Responses are never cached:
// a dev server handing out stale assets is worse than a slow one.
func (h *FrontendHandler) Handle(c echo.Context) error {
	c.Response().Header().Set("Cache-Control", "no-store")

	if h.dir == "" {
		return h.servePlaceholder(c)
	}

	// Clean with a leading slash so .. segments collapse inside the root.
	reqPath := path.Clean("/" + c.Request().URL.Path)
	file := filepath.Join(h.dir, filepath.FromSlash(reqPath))

	if info, err := os.Stat(file); err != nil || info.IsDir() {
		// Unresolved paths are client-side routes; serve the app shell.
		file = filepath.Join(h.dir, "index.html")
	}

	return c.File(file)
}

// servePlaceholder answers navigations with the built-in page and asset
// requests with 404, so a missing bundle fails loudly instead of returning
// HTML where JavaScript was expected.
func (h *FrontendHandler) servePlaceholder(c echo.Context) error {
	req := c.Request()
	if req.URL.Path == "/" || strings.Contains(req.Header.Get("Accept"), "text/html") {
		return c.HTMLBlob(http.StatusOK, placeholderPage)
	}
	return echo.NewHTTPError(http.StatusNotFound)
}
