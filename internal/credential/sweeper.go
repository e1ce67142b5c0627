package credential

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Sweeper 按 cron 计划周期性清除过期凭证，作为请求路径上惰性清除的补充。
type Sweeper struct {
	cache    *Cache
	schedule string
	logger   *logrus.Logger
	cron     *cron.Cron
}

// NewSweeper 校验 cron 表达式并构建后台清扫器。
func NewSweeper(cache *Cache, schedule string, logger *logrus.Logger) (*Sweeper, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return &Sweeper{
		cache:    cache,
		schedule: schedule,
		logger:   logger,
		cron:     cron.New(),
	}, nil
}

// Start 注册清扫任务并启动调度循环。
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop 停止调度并等待进行中的清扫完成。
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) run() {
	removed := s.cache.Sweep()
	entry := s.logger.WithFields(logrus.Fields{
		"action":  "credential_sweep",
		"removed": removed,
	})
	if removed > 0 {
		entry.Info("credential_sweep")
		return
	}
	entry.Debug("credential_sweep")
}
