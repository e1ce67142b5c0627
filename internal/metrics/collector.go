package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cahub"

// Collector 聚合代理侧的 Prometheus 指标；nil 接收者时所有记录方法均为空操作，
// 便于测试环境直接传 nil。
type Collector struct {
	registry *prometheus.Registry

	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	credentialFetches *prometheus.CounterVec
	cacheEntries      prometheus.Gauge
	mirrorProbes      *prometheus.CounterVec
}

// NewCollector 创建并注册全部指标；registry 为 nil 时自动新建独立注册表。
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total proxy requests by outcome",
			},
			[]string{"outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Proxy request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		credentialFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credential_fetches_total",
				Help:      "Credential endpoint calls by result",
			},
			[]string{"result"},
		),
		cacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "credential_cache_entries",
				Help:      "Current number of cached credential entries",
			},
		),
		mirrorProbes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mirror_probes_total",
				Help:      "Public mirror probe attempts by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.credentialFetches,
		c.cacheEntries,
		c.mirrorProbes,
	)

	return c
}

// ObserveRequest 记录一次代理请求的结局与耗时。
func (c *Collector) ObserveRequest(outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(outcome).Inc()
	c.requestDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// RecordCredentialFetch 记录凭证请求结果，result 取 success/failure。
func (c *Collector) RecordCredentialFetch(result string) {
	if c == nil {
		return
	}
	c.credentialFetches.WithLabelValues(result).Inc()
}

// SetCacheEntries 更新凭证缓存条目数。
func (c *Collector) SetCacheEntries(n int) {
	if c == nil {
		return
	}
	c.cacheEntries.Set(float64(n))
}

// RecordMirrorProbe 记录镜像探测结果，result 取 hit/miss/error。
func (c *Collector) RecordMirrorProbe(result string) {
	if c == nil {
		return
	}
	c.mirrorProbes.WithLabelValues(result).Inc()
}

// Handler 暴露 Prometheus 抓取端点。
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
