package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/robfig/cron/v3"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return newFieldError("ListenPort", "必须在 1-65535")
	}
	if err := validateEndpoint(c.PublicIndex); err != nil {
		return fmt.Errorf("PublicIndex: %w", err)
	}
	if err := validateEndpoint(c.CredentialEndpoint); err != nil {
		return fmt.Errorf("CredentialEndpoint: %w", err)
	}
	if err := validateEndpoint(c.UpstreamEndpoint); err != nil {
		return fmt.Errorf("UpstreamEndpoint: %w", err)
	}
	if c.TokenValidity.DurationValue() <= 0 {
		return newFieldError("TokenValidity", "必须大于 0")
	}
	if c.CredentialTimeout.DurationValue() <= 0 {
		return newFieldError("CredentialTimeout", "必须大于 0")
	}
	if c.ProbeTimeout.DurationValue() <= 0 {
		return newFieldError("ProbeTimeout", "必须大于 0")
	}
	if c.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("UpstreamTimeout", "必须大于 0")
	}
	if c.TokenSweepSchedule != "" {
		if _, err := cron.ParseStandard(c.TokenSweepSchedule); err != nil {
			return newFieldError("TokenSweepSchedule", fmt.Sprintf("无效的 cron 表达式: %v", err))
		}
	}

	return nil
}

// validateEndpoint 校验端点模板，占位符先代入哑值再解析 URL。
func validateEndpoint(raw string) error {
	if raw == "" {
		return errors.New("缺少端点地址")
	}
	expanded := ExpandEndpoint(raw, EndpointVars{
		Owner:      "000000000000",
		Region:     "us-east-1",
		Domain:     "domain",
		Repository: "repo",
	})
	parsed, err := url.Parse(expanded)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}
