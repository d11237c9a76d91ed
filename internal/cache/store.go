package cache

import (
	"errors"
	"io"
	"strings"
	"time"
)

const (
	// ControlFileName 是记录文件名，与提取出的缓存文件位于同一目录。
	ControlFileName = ".cache-data.file"
	// CacheFilePrefix 标记由本包生成的缓存文件。
	CacheFilePrefix = "shared_"
	// RetentionWindow 是缓存文件自最近一次访问起的保留时长，固定为两天。
	RetentionWindow = 2 * 24 * time.Hour

	extractTempPrefix = ".extract-"
	recordTempPrefix  = ".records-"
)

// Source 提供资源原始字节流，通常由 bundle.Bundle 实现。
type Source interface {
	Open(name string) (io.ReadCloser, error)
}

// Entry 描述记录文件中的一条缓存记录及其磁盘状态，主要用于诊断输出。
type Entry struct {
	AssetName  string    `json:"asset_name"`
	CacheFile  string    `json:"cache_file"`
	FilePath   string    `json:"file_path"`
	SizeBytes  int64     `json:"size_bytes"`
	LastAccess time.Time `json:"last_access"`
	Present    bool      `json:"present"`
	Expired    bool      `json:"expired"`
}

// SweepReport 汇总一次启动清理的结果。
type SweepReport struct {
	// Reset 为 true 表示记录文件不存在，按首次运行处理并清空全部缓存文件。
	Reset        bool     `json:"reset"`
	Evicted      []string `json:"evicted"`
	FilesRemoved int      `json:"files_removed"`
	Kept         int      `json:"kept"`
}

var (
	// ErrClosed 表示 Manager 已释放，不再接受请求。
	ErrClosed = errors.New("cache manager closed")
	// ErrInvalidName 表示资源名无法写入记录文件（为空或包含换行）。
	ErrInvalidName = errors.New("invalid asset name")
)

// CacheFileName 将逻辑资源名映射为缓存目录中的文件名：`/` 替换为 `_` 并加上前缀。
func CacheFileName(assetName string) string {
	return CacheFilePrefix + strings.ReplaceAll(assetName, "/", "_")
}

func validName(assetName string) bool {
	return assetName != "" && !strings.ContainsAny(assetName, "\r\n")
}
