package config

import "testing"

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
BundlePath = "./bundle"
ShutdownTimeout = "boom"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadAcceptsSecondsDuration(t *testing.T) {
	cfg := `
BundlePath = "./bundle"
ReadTimeout = 15
`
	path := writeTempConfig(t, cfg)
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if got := loaded.Global.ReadTimeout.DurationValue().Seconds(); got != 15 {
		t.Fatalf("纯秒值应被解析为 15s，得到 %v", got)
	}
}

func TestLoadRejectsOverlappingDirs(t *testing.T) {
	cfg := `
BundlePath = "./same"
CacheDir = "./same"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("缓存目录与资源包目录相同时应失败")
	}
}

func TestLoadStrictRecords(t *testing.T) {
	cfg := `
BundlePath = "./bundle"
StrictRecords = true
ChannelName = "assets"
`
	path := writeTempConfig(t, cfg)
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.Assets.RecordMode() != "strict" {
		t.Fatalf("StrictRecords 应生效")
	}
	if loaded.Assets.ChannelName != "assets" {
		t.Fatalf("ChannelName 应读取配置值，得到 %s", loaded.Assets.ChannelName)
	}
}
