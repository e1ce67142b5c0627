package credential

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/ca-hub/ca-hub/internal/metrics"
)

// entry 保存单个仓库坐标的令牌与过期时刻。
type entry struct {
	token     string
	expiresAt time.Time
}

// Outcome 描述最近一次凭证请求的结果，健康检查据此汇报整体状态。
type Outcome struct {
	OK       bool
	Identity Identity
	Message  string
	At       time.Time
}

// Cache 按仓库坐标缓存访问令牌。同一坐标的并发未命中共享一次上游请求，
// 不同坐标互不阻塞；请求失败不缓存，过期条目惰性清除。
type Cache struct {
	issuer    Issuer
	validity  time.Duration
	logger    *logrus.Logger
	collector *metrics.Collector
	now       func() time.Time

	mu      sync.RWMutex
	entries map[Identity]entry
	outcome *Outcome

	group singleflight.Group
}

// NewCache 构建凭证缓存，validity 决定每个令牌的生存窗口。
func NewCache(issuer Issuer, validity time.Duration, logger *logrus.Logger, collector *metrics.Collector) *Cache {
	return &Cache{
		issuer:    issuer,
		validity:  validity,
		logger:    logger,
		collector: collector,
		now:       time.Now,
		entries:   make(map[Identity]entry),
	}
}

// Token 返回给定坐标的有效令牌，必要时向凭证服务请求一次并缓存。
// ctx 取消只影响当前调用方的等待，不会中断共享的后台请求。
func (c *Cache) Token(ctx context.Context, id Identity) (string, error) {
	if token, ok := c.lookup(id); ok {
		return token, nil
	}

	ch := c.group.DoChan(id.String(), func() (interface{}, error) {
		return c.fetch(id)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Len 返回当前缓存条目数，包含尚未被惰性清除的过期条目。
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// LastOutcome 返回最近一次凭证请求的结果；尚未发生过请求时 ok 为 false。
func (c *Cache) LastOutcome() (Outcome, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.outcome == nil {
		return Outcome{}, false
	}
	return *c.outcome, true
}

// Sweep 清除全部过期条目并返回清除数量，供后台定时任务调用。
func (c *Cache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	removed := 0
	for id, ent := range c.entries {
		if !now.Before(ent.expiresAt) {
			delete(c.entries, id)
			removed++
		}
	}
	count := len(c.entries)
	c.mu.Unlock()

	c.collector.SetCacheEntries(count)
	return removed
}

// lookup 只读查找；命中过期条目时顺手清除并报告未命中。
func (c *Cache) lookup(id Identity) (string, bool) {
	c.mu.RLock()
	ent, ok := c.entries[id]
	c.mu.RUnlock()

	if !ok {
		return "", false
	}
	if c.now().Before(ent.expiresAt) {
		return ent.token, true
	}

	c.evictExpired(id, ent.expiresAt)
	return "", false
}

// evictExpired 删除指定坐标的过期条目；条目已被并发刷新时保留新值。
func (c *Cache) evictExpired(id Identity, seenExpiry time.Time) {
	c.mu.Lock()
	if ent, ok := c.entries[id]; ok && ent.expiresAt.Equal(seenExpiry) {
		delete(c.entries, id)
	}
	count := len(c.entries)
	c.mu.Unlock()

	c.collector.SetCacheEntries(count)
}

// fetch 执行真正的凭证请求并更新缓存与结果记录。请求挂在独立 context 上，
// 由 HTTP 客户端超时约束，调用方取消不会让共享同一次请求的其他等待者失败。
func (c *Cache) fetch(id Identity) (string, error) {
	token, err := c.issuer.Issue(context.Background(), id)
	if err != nil {
		c.recordOutcome(Outcome{OK: false, Identity: id, Message: err.Error(), At: c.now()})
		c.collector.RecordCredentialFetch("failure")
		c.logger.WithFields(logrus.Fields{
			"action":   "credential",
			"identity": id.String(),
			"error":    err.Error(),
		}).Error("credential_fetch_failed")
		return "", err
	}

	expiresAt := c.now().Add(c.validity)

	c.mu.Lock()
	c.entries[id] = entry{token: token, expiresAt: expiresAt}
	count := len(c.entries)
	c.mu.Unlock()

	c.recordOutcome(Outcome{OK: true, Identity: id, At: c.now()})
	c.collector.RecordCredentialFetch("success")
	c.collector.SetCacheEntries(count)
	c.logger.WithFields(logrus.Fields{
		"action":     "credential",
		"identity":   id.String(),
		"expires_at": expiresAt.Format(time.RFC3339),
	}).Info("credential_fetched")

	return token, nil
}

func (c *Cache) recordOutcome(outcome Outcome) {
	c.mu.Lock()
	c.outcome = &outcome
	c.mu.Unlock()
}
