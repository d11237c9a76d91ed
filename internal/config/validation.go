package config

import (
	"errors"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.LogMaxSize < 0 {
		return newFieldError("Global.LogMaxSize", "不能为负数")
	}
	if g.LogMaxBackups < 0 {
		return newFieldError("Global.LogMaxBackups", "不能为负数")
	}
	if g.ReadTimeout.DurationValue() <= 0 {
		return newFieldError("Global.ReadTimeout", "必须大于 0")
	}
	if g.ShutdownTimeout.DurationValue() <= 0 {
		return newFieldError("Global.ShutdownTimeout", "必须大于 0")
	}

	a := c.Assets
	if strings.TrimSpace(a.BundlePath) == "" {
		return newFieldError("Assets.BundlePath", "不能为空")
	}
	if strings.TrimSpace(a.CacheDir) == "" {
		return newFieldError("Assets.CacheDir", "不能为空")
	}
	if err := validateChannelName(a.ChannelName); err != nil {
		return newFieldError("Assets.ChannelName", err.Error())
	}
	return nil
}

func validateChannelName(name string) error {
	if name == "" {
		return errors.New("不能为空")
	}
	if strings.ContainsAny(name, "/ ") {
		return errors.New("不允许包含斜杠或空格")
	}
	return nil
}
