package proxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/ca-hub/ca-hub/internal/config"
	"github.com/ca-hub/ca-hub/internal/server"
)

// chunkSize 是上下行两个方向单次搬运的最大字节数。
const chunkSize = 64 * 1024

// forward 把请求转发到私有仓库并把响应流式回传，两个方向都按固定分块搬运，
// 任何时刻内存里最多持有一个分块，不整体缓冲。
func (h *Handler) forward(c fiber.Ctx, route *server.Route, token, requestID string, started time.Time) error {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	upstream := h.upstreamURL(route, c)
	req, err := h.buildUpstreamRequest(ctx, c, upstream, token)
	if err != nil {
		h.logResult(route, upstream, requestID, 0, outcomeFailed, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "upstream_unreachable")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		outcome := outcomeFailed
		if errors.Is(err, context.Canceled) {
			outcome = outcomeCanceled
		}
		h.logResult(route, upstream, requestID, 0, outcome, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "upstream_unreachable")
	}

	isHead := c.Method() == fiber.MethodHead
	copyResponseHeaders(c, resp.Header, isHead)
	c.Status(resp.StatusCode)

	if isHead {
		resp.Body.Close()
		h.logResult(route, upstream, requestID, resp.StatusCode, outcomeProxied, started, nil)
		return nil
	}

	// 状态行与响应头在首个分块前发出，此后出错只能截断，不能再改写状态码。
	status := resp.StatusCode
	c.Response().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer resp.Body.Close()

		relayErr := relayChunked(ctx, w, resp.Body)
		switch {
		case relayErr == nil:
			h.logResult(route, upstream, requestID, status, outcomeProxied, started, nil)
		case errors.Is(relayErr, context.Canceled):
			h.logResult(route, upstream, requestID, status, outcomeCanceled, started, relayErr)
		default:
			h.logResult(route, upstream, requestID, status, outcomeFailed, started, relayErr)
		}
	})

	return nil
}

// upstreamURL 先按仓库坐标展开端点模板，再拼出 simple API 的完整路径。
func (h *Handler) upstreamURL(route *server.Route, c fiber.Ctx) string {
	base := config.ExpandEndpoint(h.upstreamEndpoint, config.EndpointVars{
		Owner:      route.Identity.Owner,
		Region:     route.Identity.Region,
		Domain:     route.Identity.Domain,
		Repository: route.Identity.Repository,
	})

	target := base + "/pypi/" + route.Identity.Repository + "/simple/" + route.RelPath
	if query := c.Request().URI().QueryString(); len(query) > 0 {
		target += "?" + string(query)
	}
	return target
}

// buildUpstreamRequest 构造上游请求：白名单透传客户端头，凭证以 Basic 方式注入，
// POST 请求体挂流式 reader 逐块读取。
func (h *Handler) buildUpstreamRequest(ctx context.Context, c fiber.Ctx, upstream, token string) (*http.Request, error) {
	var body io.Reader = http.NoBody
	var contentLength int64
	if c.Method() == fiber.MethodPost {
		if c.Request().IsBodyStream() {
			body = &chunkReader{ctx: ctx, src: c.Request().BodyStream()}
		} else if raw := c.Request().Body(); len(raw) > 0 {
			body = bytes.NewReader(raw)
		}
		if length := c.Request().Header.ContentLength(); length > 0 {
			contentLength = int64(length)
		}
	}

	req, err := http.NewRequestWithContext(ctx, c.Method(), upstream, body)
	if err != nil {
		return nil, err
	}
	if contentLength > 0 {
		req.ContentLength = contentLength
	}

	server.CopyAllowedHeaders(req.Header, clientHeaders(c), server.RequestHeaderAllowList)
	if authHeader := buildCredentialHeader("aws", token); authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	return req, nil
}

// copyResponseHeaders 按白名单回传上游响应头。流式响应交给 chunked 编码，
// 不透传 Content-Length；HEAD 响应无 body，保留上游声明的长度。
func copyResponseHeaders(c fiber.Ctx, headers http.Header, includeLength bool) {
	for _, key := range server.ResponseHeaderAllowList {
		if key == "Content-Length" && !includeLength {
			continue
		}
		for _, value := range headers.Values(key) {
			c.Set(key, value)
		}
	}
}

// relayChunked 以 chunkSize 为单位搬运字节并逐块 Flush，客户端边传边收。
// 每轮先查 ctx，调用方断开后立即停止读上游。
func relayChunked(ctx context.Context, w *bufio.Writer, src io.Reader) error {
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			written, writeErr := w.Write(buf[:n])
			if writeErr != nil {
				return writeErr
			}
			if written < n {
				return io.ErrShortWrite
			}
			if flushErr := w.Flush(); flushErr != nil {
				return flushErr
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return readErr
		}
	}
}

// chunkReader 把上传流的单次读限制在 chunkSize 之内，同时响应取消。
type chunkReader struct {
	ctx context.Context
	src io.Reader
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	if len(p) > chunkSize {
		p = p[:chunkSize]
	}
	return r.src.Read(p)
}

// clientHeaders 把 fasthttp 请求头转成 http.Header，方便做白名单复制。
func clientHeaders(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func buildCredentialHeader(username, password string) string {
	if username == "" || password == "" {
		return ""
	}
	token := username + ":" + password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(token))
}
