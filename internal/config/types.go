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

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
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

// DefaultChannelName 是宿主侧约定的方法通道名称。
const DefaultChannelName = "flutter_play_asset_delivery"

// GlobalConfig 描述进程级运行参数：监听端口、日志输出以及资源/缓存目录。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	ReadTimeout     Duration `mapstructure:"ReadTimeout"`
	ShutdownTimeout Duration `mapstructure:"ShutdownTimeout"`
}

// AssetConfig 决定资源包位置、缓存目录以及记录文件的解析方式。
type AssetConfig struct {
	BundlePath    string `mapstructure:"BundlePath"`
	CacheDir      string `mapstructure:"CacheDir"`
	ChannelName   string `mapstructure:"ChannelName"`
	StrictRecords bool   `mapstructure:"StrictRecords"`
}

// Config 是 TOML 文件映射的整体结构，全局字段平铺在顶层。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Assets AssetConfig  `mapstructure:",squash"`
}

// RecordMode 输出 `strict` 或 `lenient`，供日志字段使用。
func (a AssetConfig) RecordMode() string {
	if a.StrictRecords {
		return "strict"
	}
	return "lenient"
}
