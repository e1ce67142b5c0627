package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ca-hub/ca-hub/internal/credential"
)

// Route 描述一次代理请求解析出的仓库坐标与仓库内相对路径。
type Route struct {
	Identity credential.Identity
	RelPath  string
}

// ProxyHandler describes the component responsible for proxying requests to
// the private repository. It allows injecting fake handlers during tests.
type ProxyHandler interface {
	Handle(fiber.Ctx, *Route) error
}

// ProxyHandlerFunc adapts a function to the ProxyHandler interface.
type ProxyHandlerFunc func(fiber.Ctx, *Route) error

// Handle makes ProxyHandlerFunc satisfy ProxyHandler.
func (f ProxyHandlerFunc) Handle(c fiber.Ctx, route *Route) error {
	return f(c, route)
}

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Proxy      ProxyHandler
	ListenPort int
}

const (
	contextKeyRoute     = "_cahub_route"
	contextKeyRequestID = "_cahub_request_id"
)

// NewApp builds a Fiber application with path-based repository routing and
// structured error handling. Request bodies stream instead of buffering so
// large uploads never sit in memory.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Proxy == nil {
		return nil, errors.New("proxy handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive:     true,
		StreamRequestBody: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts))

	app.All("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		route, _ := getRouteFromContext(c)
		if route == nil {
			return renderPathUnmapped(c, opts.Logger, string(c.Request().URI().Path()))
		}
		return opts.Proxy.Handle(c, route)
	})

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID，并将请求路径解析为仓库坐标。
func requestContextMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		path := string(c.Request().URI().Path())
		if isDiagnosticsPath(path) {
			return c.Next()
		}

		route, ok := parseRoute(path)
		if !ok {
			return renderPathUnmapped(c, opts.Logger, path)
		}

		c.Locals(contextKeyRoute, route)
		return c.Next()
	}
}

// parseRoute 将 /{owner}/{region}/{domain}/{repo}/{path...} 拆成仓库坐标，
// 前四段都不能为空；余下部分原样保留，尾部斜杠区分索引页与制品。
func parseRoute(path string) (*Route, bool) {
	trimmed := strings.TrimPrefix(path, "/")
	parts := strings.SplitN(trimmed, "/", 5)
	if len(parts) < 4 {
		return nil, false
	}
	for _, part := range parts[:4] {
		if part == "" {
			return nil, false
		}
	}

	rel := ""
	if len(parts) == 5 {
		rel = parts[4]
	}
	return &Route{
		Identity: credential.Identity{
			Owner:      parts[0],
			Region:     parts[1],
			Domain:     parts[2],
			Repository: parts[3],
		},
		RelPath: rel,
	}, true
}

func renderPathUnmapped(c fiber.Ctx, logger *logrus.Logger, path string) error {
	logger.WithFields(logrus.Fields{
		"action": "route_lookup",
		"path":   path,
	}).Warn("path unmapped")

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "unknown_route",
	})
}

func getRouteFromContext(c fiber.Ctx) (*Route, bool) {
	if value := c.Locals(contextKeyRoute); value != nil {
		if route, ok := value.(*Route); ok {
			return route, true
		}
	}
	return nil, false
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/") || path == "/healthz"
}
