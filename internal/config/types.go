package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// Config 是 TOML 文件映射的整体结构，仓库坐标来自请求路径而非配置。
type Config struct {
	ListenPort         int      `mapstructure:"ListenPort"`
	LogLevel           string   `mapstructure:"LogLevel"`
	LogFilePath        string   `mapstructure:"LogFilePath"`
	LogMaxSize         int      `mapstructure:"LogMaxSize"`
	LogMaxBackups      int      `mapstructure:"LogMaxBackups"`
	LogCompress        bool     `mapstructure:"LogCompress"`
	PublicIndex        string   `mapstructure:"PublicIndex"`
	CredentialEndpoint string   `mapstructure:"CredentialEndpoint"`
	UpstreamEndpoint   string   `mapstructure:"UpstreamEndpoint"`
	TokenValidity      Duration `mapstructure:"TokenValidity"`
	TokenSweepSchedule string   `mapstructure:"TokenSweepSchedule"`
	CredentialTimeout  Duration `mapstructure:"CredentialTimeout"`
	ProbeTimeout       Duration `mapstructure:"ProbeTimeout"`
	UpstreamTimeout    Duration `mapstructure:"UpstreamTimeout"`
	MirrorEnabled      bool     `mapstructure:"MirrorEnabled"`
}

// TokenValiditySeconds 返回凭证接口 duration 参数所需的整秒值。
func (c *Config) TokenValiditySeconds() int64 {
	return int64(c.TokenValidity.DurationValue() / time.Second)
}
