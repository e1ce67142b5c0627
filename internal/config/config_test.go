package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfgPath := testConfigPath(t, "valid.toml")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.ListenPort != 5000 {
		t.Fatalf("ListenPort 应当被解析")
	}
	if cfg.TokenValidity.DurationValue() != 12*time.Hour {
		t.Fatalf("TokenValidity 应当等于 12h, 实际 %s", cfg.TokenValidity.DurationValue())
	}
	if strings.HasSuffix(cfg.PublicIndex, "/") {
		t.Fatalf("PublicIndex 尾部斜杠应被去除: %s", cfg.PublicIndex)
	}
	if !cfg.MirrorEnabled {
		t.Fatalf("MirrorEnabled 应当为 true")
	}
}

func TestLoadFillsAbsentKeys(t *testing.T) {
	path := writeTempConfig(t, "ListenPort = 8080\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel 应该自动填充默认值")
	}
	if cfg.PublicIndex != "https://pypi.org/simple" {
		t.Fatalf("PublicIndex 应该自动填充默认值, 实际 %s", cfg.PublicIndex)
	}
	if cfg.ProbeTimeout.DurationValue() != 2*time.Second {
		t.Fatalf("ProbeTimeout 默认值错误: %s", cfg.ProbeTimeout.DurationValue())
	}
	if cfg.UpstreamTimeout.DurationValue() != 5*time.Minute {
		t.Fatalf("UpstreamTimeout 默认值错误: %s", cfg.UpstreamTimeout.DurationValue())
	}
	if !cfg.MirrorEnabled {
		t.Fatalf("MirrorEnabled 默认应当开启")
	}
}

func TestLoadHonorsMirrorKillSwitch(t *testing.T) {
	path := writeTempConfig(t, "MirrorEnabled = false\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.MirrorEnabled {
		t.Fatalf("MirrorEnabled = false 应当关闭镜像回退")
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestValidateRejectsBadEndpoints(t *testing.T) {
	testCases := []struct {
		name      string
		mutate    func(*Config)
		shouldErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"empty public index", func(c *Config) { c.PublicIndex = "" }, true},
		{"ftp credential endpoint", func(c *Config) { c.CredentialEndpoint = "ftp://example.com" }, true},
		{"hostless upstream", func(c *Config) { c.UpstreamEndpoint = "https:///simple" }, true},
		{"placeholder-only host ok", func(c *Config) { c.UpstreamEndpoint = "https://{domain}-{owner}.d.codeartifact.{region}.amazonaws.com" }, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateRejectsBadSweepSchedule(t *testing.T) {
	cfg := validConfig()
	cfg.TokenSweepSchedule = "not-a-cron"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("非法 cron 表达式应当报错")
	}

	cfg.TokenSweepSchedule = "@every 10m"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("合法 cron 表达式不应报错: %v", err)
	}
}

func TestValidateRequiresPositiveDurations(t *testing.T) {
	cfg := validConfig()
	cfg.TokenValidity = Duration(0)
	if err := cfg.Validate(); err == nil {
		t.Fatalf("TokenValidity 为 0 应当报错")
	}
}

func TestTokenValiditySeconds(t *testing.T) {
	cfg := validConfig()
	cfg.TokenValidity = Duration(12 * time.Hour)
	if got := cfg.TokenValiditySeconds(); got != 43200 {
		t.Fatalf("expected 43200 seconds, got %d", got)
	}
}

func validConfig() *Config {
	return &Config{
		ListenPort:         5000,
		LogLevel:           "info",
		PublicIndex:        "https://pypi.org/simple",
		CredentialEndpoint: "https://codeartifact.{region}.amazonaws.com",
		UpstreamEndpoint:   "https://{domain}-{owner}.d.codeartifact.{region}.amazonaws.com",
		TokenValidity:      Duration(12 * time.Hour),
		CredentialTimeout:  Duration(10 * time.Second),
		ProbeTimeout:       Duration(2 * time.Second),
		UpstreamTimeout:    Duration(5 * time.Minute),
		MirrorEnabled:      true,
	}
}
