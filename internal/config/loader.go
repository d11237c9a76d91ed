package config

import (
	"fmt"
	"path/filepath"
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

	applyGlobalDefaults(&cfg.Global)
	applyAssetDefaults(&cfg.Assets)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := absolutizePaths(&cfg.Assets); err != nil {
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
	v.SetDefault("ReadTimeout", "30s")
	v.SetDefault("ShutdownTimeout", "10s")
	v.SetDefault("BundlePath", "")
	v.SetDefault("CacheDir", "./cache")
	v.SetDefault("ChannelName", DefaultChannelName)
	v.SetDefault("StrictRecords", false)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if strings.TrimSpace(g.LogLevel) == "" {
		g.LogLevel = "info"
	}
	if g.ReadTimeout.DurationValue() == 0 {
		g.ReadTimeout = Duration(30 * time.Second)
	}
	if g.ShutdownTimeout.DurationValue() == 0 {
		g.ShutdownTimeout = Duration(10 * time.Second)
	}
}

func applyAssetDefaults(a *AssetConfig) {
	a.BundlePath = strings.TrimSpace(a.BundlePath)
	a.CacheDir = strings.TrimSpace(a.CacheDir)
	if a.CacheDir == "" {
		a.CacheDir = "./cache"
	}
	a.ChannelName = strings.TrimSpace(a.ChannelName)
	if a.ChannelName == "" {
		a.ChannelName = DefaultChannelName
	}
}

// absolutizePaths 将资源包与缓存目录转换为绝对路径，并拒绝两者重叠。
func absolutizePaths(a *AssetConfig) error {
	bundle, err := filepath.Abs(a.BundlePath)
	if err != nil {
		return fmt.Errorf("无法解析资源包目录: %w", err)
	}
	cacheDir, err := filepath.Abs(a.CacheDir)
	if err != nil {
		return fmt.Errorf("无法解析缓存目录: %w", err)
	}
	if bundle == cacheDir {
		return newFieldError("Assets.CacheDir", "不能与 BundlePath 相同")
	}
	a.BundlePath = bundle
	a.CacheDir = cacheDir
	return nil
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
