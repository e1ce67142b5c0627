package server

import (
	"net"
	"net/http"
	"net/textproto"
	"time"

	"github.com/ca-hub/ca-hub/internal/config"
)

// Shared HTTP transport tunings，复用长连接并集中配置超时。
// DisableCompression 保证上游响应字节原样转发，不做透明解压。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DisableCompression:    true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewUpstreamClient 返回共享 http.Client，用于私有仓库的流式转发。
func NewUpstreamClient(cfg *config.Config) *http.Client {
	timeout := 5 * time.Minute
	if cfg != nil && cfg.UpstreamTimeout.DurationValue() > 0 {
		timeout = cfg.UpstreamTimeout.DurationValue()
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: defaultTransport.Clone(),
	}
}

// NewProbeClient 返回镜像探测客户端。探测只看首个响应的状态码，
// 不跟随重定向，超时需远小于上游超时。
func NewProbeClient(cfg *config.Config) *http.Client {
	timeout := 2 * time.Second
	if cfg != nil && cfg.ProbeTimeout.DurationValue() > 0 {
		timeout = cfg.ProbeTimeout.DurationValue()
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: defaultTransport.Clone(),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// NewCredentialClient 返回凭证接口客户端。
func NewCredentialClient(cfg *config.Config) *http.Client {
	timeout := 10 * time.Second
	if cfg != nil && cfg.CredentialTimeout.DurationValue() > 0 {
		timeout = cfg.CredentialTimeout.DurationValue()
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: defaultTransport.Clone(),
	}
}

// hopByHopHeaders 定义 RFC 7230 中禁止代理转发的头部。
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Proxy-Connection":    {}, // 非标准字段，但部分代理仍使用
}

// RequestHeaderAllowList 定义允许转发到上游的客户端请求头。
var RequestHeaderAllowList = []string{
	"Accept",
	"Content-Type",
	"Content-Length",
	"User-Agent",
	"Cache-Control",
}

// ResponseHeaderAllowList 定义允许回传给客户端的上游响应头。
// 不含 Content-Encoding：上游请求不带 Accept-Encoding，响应恒为原始字节。
var ResponseHeaderAllowList = []string{
	"Content-Type",
	"Content-Length",
	"Cache-Control",
	"ETag",
	"Last-Modified",
}

// CopyAllowedHeaders 按白名单从 src 复制到 dst，hop-by-hop 字段一律忽略。
func CopyAllowedHeaders(dst, src http.Header, allowed []string) {
	for _, key := range allowed {
		if isHopByHopHeader(key) {
			continue
		}
		for _, value := range src.Values(key) {
			dst.Add(key, value)
		}
	}
}

func isHopByHopHeader(key string) bool {
	canonical := textproto.CanonicalMIMEHeaderKey(key)
	if _, ok := hopByHopHeaders[canonical]; ok {
		return true
	}

	return false
}
