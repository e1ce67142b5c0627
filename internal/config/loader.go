package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("PublicIndex", "https://pypi.org/simple")
	v.SetDefault("CredentialEndpoint", "https://codeartifact.{region}.amazonaws.com")
	v.SetDefault("UpstreamEndpoint", "https://{domain}-{owner}.d.codeartifact.{region}.amazonaws.com")
	v.SetDefault("TokenValidity", "12h")
	v.SetDefault("TokenSweepSchedule", "")
	v.SetDefault("CredentialTimeout", "10s")
	v.SetDefault("ProbeTimeout", "2s")
	v.SetDefault("UpstreamTimeout", "5m")
	v.SetDefault("MirrorEnabled", true)
}

// applyDefaults 为直接构造的 Config 补齐零值字段，并规范化端点写法。
func applyDefaults(cfg *Config) {
	if cfg.ListenPort == 0 {
		cfg.ListenPort = 5000
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.PublicIndex == "" {
		cfg.PublicIndex = "https://pypi.org/simple"
	}
	if cfg.CredentialEndpoint == "" {
		cfg.CredentialEndpoint = "https://codeartifact.{region}.amazonaws.com"
	}
	if cfg.UpstreamEndpoint == "" {
		cfg.UpstreamEndpoint = "https://{domain}-{owner}.d.codeartifact.{region}.amazonaws.com"
	}
	if cfg.TokenValidity.DurationValue() == 0 {
		cfg.TokenValidity = Duration(12 * time.Hour)
	}
	if cfg.CredentialTimeout.DurationValue() == 0 {
		cfg.CredentialTimeout = Duration(10 * time.Second)
	}
	if cfg.ProbeTimeout.DurationValue() == 0 {
		cfg.ProbeTimeout = Duration(2 * time.Second)
	}
	if cfg.UpstreamTimeout.DurationValue() == 0 {
		cfg.UpstreamTimeout = Duration(5 * time.Minute)
	}

	cfg.PublicIndex = strings.TrimRight(strings.TrimSpace(cfg.PublicIndex), "/")
	cfg.TokenSweepSchedule = strings.TrimSpace(cfg.TokenSweepSchedule)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
