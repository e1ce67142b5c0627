package proxy

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/ca-hub/ca-hub/internal/credential"
	"github.com/ca-hub/ca-hub/internal/logging"
	"github.com/ca-hub/ca-hub/internal/metrics"
	"github.com/ca-hub/ca-hub/internal/mirror"
	"github.com/ca-hub/ca-hub/internal/server"
)

// 请求最终去向，同时作为日志 outcome 字段和指标 label。
const (
	outcomeProxied    = "proxied"
	outcomeRedirected = "redirected"
	outcomeFailed     = "failed"
	outcomeRejected   = "rejected"
	outcomeCanceled   = "canceled"
)

// Handler 负责 orchestrate “凭证获取 → 镜像判定 → 上游流式转发” 的全流程，
// 对外实现 server.ProxyHandler，内部复用共享 http.Client 与凭证缓存。
type Handler struct {
	client           *http.Client
	credentials      *credential.Cache
	mirror           *mirror.Resolver
	logger           *logrus.Logger
	collector        *metrics.Collector
	upstreamEndpoint string
}

// HandlerOptions 汇集构建 Handler 所需的依赖，Collector 可以为空。
type HandlerOptions struct {
	Client           *http.Client
	Credentials      *credential.Cache
	Mirror           *mirror.Resolver
	Logger           *logrus.Logger
	Collector        *metrics.Collector
	UpstreamEndpoint string
}

// NewHandler validates its dependencies and builds the proxy handler.
func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.Client == nil {
		return nil, errors.New("http client is required")
	}
	if opts.Credentials == nil {
		return nil, errors.New("credential cache is required")
	}
	if opts.Mirror == nil {
		return nil, errors.New("mirror resolver is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if strings.TrimSpace(opts.UpstreamEndpoint) == "" {
		return nil, errors.New("upstream endpoint is required")
	}

	return &Handler{
		client:           opts.Client,
		credentials:      opts.Credentials,
		mirror:           opts.Mirror,
		logger:           opts.Logger,
		collector:        opts.Collector,
		upstreamEndpoint: opts.UpstreamEndpoint,
	}, nil
}

// Handle 实现 server.ProxyHandler。凭证获取先于镜像判定，
// 保证每个仓库的凭证在首个请求就进入缓存，后续请求不再付出获取延迟。
func (h *Handler) Handle(c fiber.Ctx, route *server.Route) error {
	started := time.Now()
	requestID := server.RequestID(c)
	method := c.Method()

	switch method {
	case fiber.MethodGet, fiber.MethodHead, fiber.MethodPost:
	default:
		h.logResult(route, "", requestID, fiber.StatusMethodNotAllowed, outcomeRejected, started, nil)
		return h.writeError(c, fiber.StatusMethodNotAllowed, "method_not_allowed")
	}

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	token, err := h.credentials.Token(ctx, route.Identity)
	if err != nil {
		h.logResult(route, "", requestID, fiber.StatusBadGateway, outcomeFailed, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "credential_fetch_failed")
	}

	if target, ok := h.mirror.Redirect(ctx, method, route.RelPath, clientHeaders(c)); ok {
		h.logResult(route, target, requestID, fiber.StatusFound, outcomeRedirected, started, nil)
		c.Set(fiber.HeaderLocation, target)
		return c.SendStatus(fiber.StatusFound)
	}

	return h.forward(c, route, token, requestID, started)
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(
	route *server.Route,
	upstream string,
	requestID string,
	status int,
	outcome string,
	started time.Time,
	err error,
) {
	elapsed := time.Since(started)
	h.collector.ObserveRequest(outcome, elapsed)

	fields := logging.RequestFields(
		route.Identity.Owner,
		route.Identity.Region,
		route.Identity.Domain,
		route.Identity.Repository,
	)
	fields["action"] = "proxy"
	fields["outcome"] = outcome
	fields["upstream_status"] = status
	fields["elapsed_ms"] = elapsed.Milliseconds()
	if upstream != "" {
		fields["upstream"] = upstream
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}

	switch {
	case outcome == outcomeCanceled:
		if err != nil {
			fields["error"] = err.Error()
		}
		h.logger.WithFields(fields).Info("proxy_canceled")
	case err != nil:
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("proxy_failed")
	case outcome == outcomeRedirected:
		h.logger.WithFields(fields).Info("mirror_redirect")
	case outcome == outcomeRejected:
		h.logger.WithFields(fields).Warn("proxy_rejected")
	default:
		h.logger.WithFields(fields).Info("proxy_complete")
	}
}
