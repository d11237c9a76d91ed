package routes

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/asset-delivery/internal/cache"
	"github.com/any-hub/asset-delivery/internal/plugin"
)

func TestEncodeEntriesSortsAndHumanizes(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []cache.Entry{
		{
			AssetName:  "images/logo.png",
			CacheFile:  "shared_images_logo.png",
			SizeBytes:  2048,
			LastAccess: now.Add(-3 * time.Hour),
			Present:    true,
		},
		{
			AssetName:  "data.json",
			CacheFile:  "shared_data.json",
			LastAccess: now.Add(-72 * time.Hour),
			Expired:    true,
		},
	}

	encoded := encodeEntries(entries, now)
	if len(encoded) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(encoded))
	}
	if encoded[0].AssetName != "data.json" {
		t.Fatalf("expected sorted entries, got %s first", encoded[0].AssetName)
	}
	if encoded[0].Size != "" || encoded[0].ExpiresIn != "" {
		t.Fatalf("missing expired entry should not report size or expiry: %+v", encoded[0])
	}
	logo := encoded[1]
	if logo.Size != "2.0 kB" {
		t.Fatalf("unexpected humanized size %q", logo.Size)
	}
	if logo.Age != "3 hours ago" {
		t.Fatalf("unexpected age %q", logo.Age)
	}
	if logo.ExpiresIn != "1 day" {
		t.Fatalf("unexpected expiry %q", logo.ExpiresIn)
	}
	if entries[0].AssetName != "images/logo.png" {
		t.Fatalf("encodeEntries must not reorder the input slice")
	}
}

func TestEncodeEntriesEmpty(t *testing.T) {
	encoded := encodeEntries(nil, time.Now())
	if encoded == nil || len(encoded) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", encoded)
	}
}

func TestRetentionLabel(t *testing.T) {
	if got := RetentionLabel(); got != "2 days" {
		t.Fatalf("unexpected retention label %q", got)
	}
}

func TestStatusRoute(t *testing.T) {
	app := fiber.New()
	RegisterDiagnosticsRoutes(app, &fakeSource{
		status: plugin.Status{
			Channel:        "flutter_play_asset_delivery",
			Attached:       true,
			CacheDir:       "/cache",
			TopLevelAssets: 4,
			AttachedAt:     time.Now().Add(-time.Minute),
		},
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/-/status", nil))
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload statusPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if payload.Channel != "flutter_play_asset_delivery" || !payload.Attached || payload.TopLevelAssets != 4 {
		t.Fatalf("unexpected status payload %+v", payload)
	}
	if payload.Version == "" || payload.Uptime == "" {
		t.Fatalf("expected version and uptime to be populated: %+v", payload)
	}
}

func TestCacheRoute(t *testing.T) {
	app := fiber.New()
	RegisterDiagnosticsRoutes(app, &fakeSource{
		entries: []cache.Entry{
			{AssetName: "a.txt", CacheFile: "shared_a.txt", SizeBytes: 10, LastAccess: time.Now(), Present: true},
			{AssetName: "b.txt", CacheFile: "shared_b.txt", SizeBytes: 5, LastAccess: time.Now(), Present: true},
		},
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/-/cache", nil))
	if err != nil {
		t.Fatalf("cache request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload struct {
		Retention  string         `json:"retention"`
		TotalBytes int64          `json:"total_bytes"`
		Entries    []entryPayload `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode cache listing: %v", err)
	}
	if payload.TotalBytes != 15 || len(payload.Entries) != 2 {
		t.Fatalf("unexpected cache payload %+v", payload)
	}
	if payload.Retention != "2 days" {
		t.Fatalf("unexpected retention %q", payload.Retention)
	}
}

func TestCacheRouteDetached(t *testing.T) {
	app := fiber.New()
	RegisterDiagnosticsRoutes(app, &fakeSource{err: plugin.ErrDetached})

	resp, err := app.Test(httptest.NewRequest("GET", "/-/cache", nil))
	if err != nil {
		t.Fatalf("cache request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503 after detach, got %d", resp.StatusCode)
	}
}

type fakeSource struct {
	status  plugin.Status
	entries []cache.Entry
	err     error
}

func (f *fakeSource) Status() plugin.Status {
	return f.status
}

func (f *fakeSource) Entries() ([]cache.Entry, error) {
	return f.entries, f.err
}
