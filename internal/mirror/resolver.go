package mirror

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ca-hub/ca-hub/internal/metrics"
)

// probeHeaderAllowList 是镜像探测请求允许透传的客户端头。
var probeHeaderAllowList = []string{"User-Agent", "Cache-Control"}

// Resolver 判断包索引页能否改由公共镜像直接提供。
type Resolver struct {
	client    *http.Client
	base      string
	enabled   bool
	logger    *logrus.Logger
	collector *metrics.Collector
}

// NewResolver 构建镜像判定器，base 为公共索引根地址。
func NewResolver(client *http.Client, base string, enabled bool, logger *logrus.Logger, collector *metrics.Collector) *Resolver {
	return &Resolver{
		client:    client,
		base:      strings.TrimRight(base, "/"),
		enabled:   enabled,
		logger:    logger,
		collector: collector,
	}
}

// Redirect 判定请求能否 302 到公共镜像，返回目标地址与判定结果。
// 只有 GET 索引页参与判定；探测失败一律回退私有代理，不向客户端放大错误。
func (r *Resolver) Redirect(ctx context.Context, method, relPath string, headers http.Header) (string, bool) {
	if !r.enabled || method != http.MethodGet {
		return "", false
	}
	name, ok := packageName(relPath)
	if !ok {
		return "", false
	}

	probeURL := r.base + "/" + name + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, probeURL, http.NoBody)
	if err != nil {
		return "", false
	}
	for _, key := range probeHeaderAllowList {
		if value := headers.Get(key); value != "" {
			req.Header.Set(key, value)
		}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.collector.RecordMirrorProbe("error")
		r.logger.WithFields(logrus.Fields{
			"action":  "mirror_probe",
			"package": name,
			"error":   err.Error(),
		}).Debug("mirror_probe_failed")
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.collector.RecordMirrorProbe("miss")
		return "", false
	}

	r.collector.RecordMirrorProbe("hit")
	return r.base + "/" + relPath, true
}

// packageName 提取索引页对应的包名；不以 / 结尾的路径视为制品下载，不参与判定。
func packageName(relPath string) (string, bool) {
	if relPath == "" || !strings.HasSuffix(relPath, "/") {
		return "", false
	}
	trimmed := strings.Trim(relPath, "/")
	if trimmed == "" {
		return "", false
	}
	segments := strings.Split(trimmed, "/")
	return segments[len(segments)-1], true
}
