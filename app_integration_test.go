package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/asset-delivery/internal/cache"
	"github.com/any-hub/asset-delivery/internal/config"
	"github.com/any-hub/asset-delivery/internal/logging"
)

func TestGetAssetFileEndToEnd(t *testing.T) {
	cfg := newAppConfig(t, map[string]string{
		"logo.png":          "png-bytes",
		"fonts/Roboto.ttf":  "font-bytes",
		"fonts/nested/a.js": "console.log(1)",
	})
	stale := filepath.Join(cfg.Assets.CacheDir, cache.CacheFilePrefix+"leftover")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatalf("写入遗留缓存失败: %v", err)
	}

	app, p, err := buildApp(context.Background(), cfg, logging.NewDiscardLogger())
	if err != nil {
		t.Fatalf("组装应用失败: %v", err)
	}
	t.Cleanup(func() { _ = p.Detach() })

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("缺少记录文件时应清空遗留缓存，stat err=%v", err)
	}

	first := callGetAssetFile(t, app, "fonts/Roboto.ttf", fiber.StatusOK)
	second := callGetAssetFile(t, app, "fonts/Roboto.ttf", fiber.StatusOK)
	if first != second {
		t.Fatalf("重复解析应返回相同路径: %s vs %s", first, second)
	}
	if filepath.Base(first) != "shared_fonts_Roboto.ttf" {
		t.Fatalf("缓存文件名不符合预期: %s", first)
	}
	data, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("读取缓存文件失败: %v", err)
	}
	if string(data) != "font-bytes" {
		t.Fatalf("缓存内容与资源包不一致: %q", data)
	}

	records, err := os.ReadFile(filepath.Join(cfg.Assets.CacheDir, cache.ControlFileName))
	if err != nil {
		t.Fatalf("读取记录文件失败: %v", err)
	}
	if !bytes.HasPrefix(records, []byte("fonts/Roboto.ttf=")) {
		t.Fatalf("记录文件缺少条目: %q", records)
	}

	callGetAssetFile(t, app, "fonts/missing.ttf", fiber.StatusNotFound)
	callGetAssetFile(t, app, "missing.png", fiber.StatusNotFound)

	resp, err := app.Test(httptest.NewRequest("GET", "/-/cache", nil))
	if err != nil {
		t.Fatalf("诊断请求失败: %v", err)
	}
	var listing struct {
		Entries []struct {
			AssetName string `json:"asset_name"`
			Present   bool   `json:"present"`
		} `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("解析诊断输出失败: %v", err)
	}
	if len(listing.Entries) != 1 || listing.Entries[0].AssetName != "fonts/Roboto.ttf" || !listing.Entries[0].Present {
		t.Fatalf("诊断输出不符合预期: %+v", listing.Entries)
	}
}

func TestDetachedPluginRejectsCalls(t *testing.T) {
	cfg := newAppConfig(t, map[string]string{"logo.png": "png-bytes"})
	app, p, err := buildApp(context.Background(), cfg, logging.NewDiscardLogger())
	if err != nil {
		t.Fatalf("组装应用失败: %v", err)
	}
	if err := p.Detach(); err != nil {
		t.Fatalf("解除挂载失败: %v", err)
	}
	callGetAssetFile(t, app, "logo.png", fiber.StatusServiceUnavailable)
}

func TestBuildAppRequiresBundleDir(t *testing.T) {
	cfg := newAppConfig(t, nil)
	cfg.Assets.BundlePath = filepath.Join(t.TempDir(), "absent")
	if _, _, err := buildApp(context.Background(), cfg, logging.NewDiscardLogger()); err == nil {
		t.Fatalf("资源包目录不存在时应失败")
	}
}

func newAppConfig(t *testing.T, assets map[string]string) *config.Config {
	t.Helper()
	root := t.TempDir()
	bundleDir := filepath.Join(root, "bundle")
	cacheDir := filepath.Join(root, "cache")
	for _, dir := range []string{bundleDir, cacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("创建目录失败: %v", err)
		}
	}
	for name, content := range assets {
		path := filepath.Join(bundleDir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("创建资源目录失败: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("写入资源失败: %v", err)
		}
	}
	return &config.Config{
		Global: config.GlobalConfig{ListenPort: 5000, LogLevel: "info"},
		Assets: config.AssetConfig{
			BundlePath:  bundleDir,
			CacheDir:    cacheDir,
			ChannelName: config.DefaultChannelName,
		},
	}
}

func callGetAssetFile(t *testing.T, app *fiber.App, name string, wantStatus int) string {
	t.Helper()
	body := `{"method":"getAssetFile","arguments":{"assetName":"` + name + `"}}`
	req := httptest.NewRequest("POST", "/channels/"+config.DefaultChannelName, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s: 期望状态 %d，得到 %d", name, wantStatus, resp.StatusCode)
	}
	if wantStatus != fiber.StatusOK {
		return ""
	}
	var payload struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	return payload.Result
}
