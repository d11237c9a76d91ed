package routes

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/asset-delivery/internal/cache"
	"github.com/any-hub/asset-delivery/internal/plugin"
	"github.com/any-hub/asset-delivery/internal/version"
)

// DiagnosticsSource 提供诊断接口所需的插件状态，*plugin.Plugin 满足该接口。
type DiagnosticsSource interface {
	Status() plugin.Status
	Entries() ([]cache.Entry, error)
}

// RegisterDiagnosticsRoutes 暴露 /-/status 与 /-/cache 诊断接口，供 SRE 查询挂载状态与缓存内容。
func RegisterDiagnosticsRoutes(app *fiber.App, source DiagnosticsSource) {
	if app == nil || source == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		return c.JSON(encodeStatus(source.Status(), time.Now()))
	})

	app.Get("/-/cache", func(c fiber.Ctx) error {
		entries, err := source.Entries()
		if err != nil {
			status := fiber.StatusInternalServerError
			code := "cache_unavailable"
			if errors.Is(err, plugin.ErrDetached) || errors.Is(err, cache.ErrClosed) {
				status = fiber.StatusServiceUnavailable
				code = plugin.CodeDetached
			}
			return c.Status(status).JSON(fiber.Map{"error": code})
		}
		payload := encodeEntries(entries, time.Now())
		return c.JSON(fiber.Map{
			"retention":   RetentionLabel(),
			"total_bytes": totalBytes(payload),
			"total_human": humanize.Bytes(uint64(totalBytes(payload))),
			"entries":     payload,
		})
	})
}

type statusPayload struct {
	Version        string            `json:"version"`
	Channel        string            `json:"channel"`
	Attached       bool              `json:"attached"`
	CacheDir       string            `json:"cache_dir"`
	TopLevelAssets int               `json:"top_level_assets"`
	AttachedAt     time.Time         `json:"attached_at"`
	Uptime         string            `json:"uptime"`
	LastSweep      cache.SweepReport `json:"last_sweep"`
}

type entryPayload struct {
	AssetName  string    `json:"asset_name"`
	CacheFile  string    `json:"cache_file"`
	Path       string    `json:"path"`
	SizeBytes  int64     `json:"size_bytes"`
	Size       string    `json:"size"`
	LastAccess time.Time `json:"last_access"`
	Age        string    `json:"age"`
	ExpiresIn  string    `json:"expires_in"`
	Present    bool      `json:"present"`
	Expired    bool      `json:"expired"`
}

func encodeStatus(status plugin.Status, now time.Time) statusPayload {
	payload := statusPayload{
		Version:        version.Full(),
		Channel:        status.Channel,
		Attached:       status.Attached,
		CacheDir:       status.CacheDir,
		TopLevelAssets: status.TopLevelAssets,
		AttachedAt:     status.AttachedAt,
		LastSweep:      status.LastSweep,
	}
	if !status.AttachedAt.IsZero() {
		payload.Uptime = span(status.AttachedAt, now)
	}
	return payload
}

func encodeEntries(entries []cache.Entry, now time.Time) []entryPayload {
	if len(entries) == 0 {
		return []entryPayload{}
	}
	sorted := append([]cache.Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].AssetName < sorted[j].AssetName
	})

	result := make([]entryPayload, 0, len(sorted))
	for _, entry := range sorted {
		item := entryPayload{
			AssetName:  entry.AssetName,
			CacheFile:  entry.CacheFile,
			Path:       entry.FilePath,
			SizeBytes:  entry.SizeBytes,
			LastAccess: entry.LastAccess,
			Age:        humanize.RelTime(entry.LastAccess, now, "ago", "from now"),
			Present:    entry.Present,
			Expired:    entry.Expired,
		}
		if entry.Present {
			item.Size = humanize.Bytes(uint64(entry.SizeBytes))
		}
		if !entry.Expired {
			item.ExpiresIn = span(now, entry.LastAccess.Add(cache.RetentionWindow))
		}
		result = append(result, item)
	}
	return result
}

func totalBytes(entries []entryPayload) int64 {
	var total int64
	for _, entry := range entries {
		total += entry.SizeBytes
	}
	return total
}

// RetentionLabel 以可读形式描述固定的缓存保留时长。
func RetentionLabel() string {
	return span(time.Time{}, time.Time{}.Add(cache.RetentionWindow))
}

// span 返回两个时间点之间不带方向标签的可读时长。
func span(from, to time.Time) string {
	return strings.TrimSpace(humanize.RelTime(from, to, "", ""))
}
