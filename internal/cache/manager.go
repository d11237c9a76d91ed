package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	"github.com/any-hub/asset-delivery/internal/logging"
)

// Options 控制 Manager 的构造参数。Fs/Logger/Now 为空时使用默认实现。
type Options struct {
	Fs            afero.Fs
	Dir           string
	Source        Source
	Logger        *logrus.Logger
	StrictRecords bool
	Now           func() time.Time
}

// Manager 负责资源提取、记录文件维护与启动清理。记录文件的读-改-写由 mu 串行化，
// 同一缓存文件的并发提取通过 singleflight 合并为一次拷贝。
type Manager struct {
	fs     afero.Fs
	dir    string
	source Source
	logger *logrus.Logger
	strict bool
	now    func() time.Time

	extract singleflight.Group

	mu     sync.Mutex
	closed bool
}

// NewManager 以 opts.Dir 为缓存目录构建 Manager，目录不存在时自动创建。
func NewManager(opts Options) (*Manager, error) {
	if opts.Dir == "" {
		return nil, errors.New("cache dir required")
	}
	if opts.Source == nil {
		return nil, errors.New("asset source required")
	}

	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve cache dir: %w", err)
	}

	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{
		fs:     fsys,
		dir:    dir,
		source: opts.Source,
		logger: logger,
		strict: opts.StrictRecords,
		now:    now,
	}, nil
}

// Dir 返回缓存目录的绝对路径。
func (m *Manager) Dir() string {
	return m.dir
}

// Materialize 返回 assetName 对应缓存文件的绝对路径：文件不存在时从 Source 拷贝，
// 无论是否命中都会刷新记录文件中的访问时间。
func (m *Manager) Materialize(ctx context.Context, assetName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !validName(assetName) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, assetName)
	}
	if m.isClosed() {
		return "", ErrClosed
	}

	cacheFile := CacheFileName(assetName)
	target := filepath.Join(m.dir, cacheFile)

	hit, err := m.ensureExtracted(ctx, assetName, target)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", assetName, err)
	}

	if err := m.touch(assetName); err != nil {
		return "", fmt.Errorf("update cache records: %w", err)
	}

	m.logger.WithFields(logging.AssetFields(assetName, cacheFile, hit)).Debug("asset_materialized")
	return target, nil
}

// Optimize 执行启动清理。记录文件缺失时删除全部带前缀的缓存文件；否则淘汰超过
// RetentionWindow 未访问的条目并回写记录文件，同时清理没有记录对应的孤儿文件。
func (m *Manager) Optimize(ctx context.Context) (SweepReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var report SweepReport
	if m.closed {
		return report, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	if _, err := m.removeStaleTemps(); err != nil {
		return report, err
	}

	records, exists, err := m.loadRecords()
	if err != nil {
		return report, err
	}

	if !exists {
		removed, err := m.removeCacheFiles(func(string) bool { return true })
		if err != nil {
			return report, err
		}
		report.Reset = true
		report.FilesRemoved = removed
		m.logSweep(report)
		return report, nil
	}

	for name, millis := range records {
		if !m.expired(millis) {
			continue
		}
		delete(records, name)
		if err := m.removeFile(CacheFileName(name)); err != nil {
			return report, err
		}
		report.Evicted = append(report.Evicted, name)
		report.FilesRemoved++
	}
	sort.Strings(report.Evicted)

	if len(report.Evicted) > 0 {
		if err := m.writeRecords(records); err != nil {
			return report, err
		}
	}

	live := make(map[string]struct{}, len(records))
	for name := range records {
		live[CacheFileName(name)] = struct{}{}
	}
	orphans, err := m.removeCacheFiles(func(fileName string) bool {
		_, ok := live[fileName]
		return !ok
	})
	if err != nil {
		return report, err
	}
	report.FilesRemoved += orphans
	report.Kept = len(records)

	m.logSweep(report)
	return report, nil
}

// Entries 返回当前记录文件中的全部条目（按资源名排序），附带磁盘上的文件状态。
func (m *Manager) Entries() ([]Entry, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	records, _, err := m.loadRecords()
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		cacheFile := CacheFileName(name)
		entry := Entry{
			AssetName:  name,
			CacheFile:  cacheFile,
			FilePath:   filepath.Join(m.dir, cacheFile),
			LastAccess: time.UnixMilli(records[name]),
			Expired:    m.expired(records[name]),
		}
		if info, err := m.fs.Stat(entry.FilePath); err == nil && !info.IsDir() {
			entry.Present = true
			entry.SizeBytes = info.Size()
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Close 释放 Manager，之后的调用均返回 ErrClosed。
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// expired 判断毫秒时间戳是否早于 now - RetentionWindow；恰好处于边界的条目保留。
func (m *Manager) expired(millis int64) bool {
	cutoff := m.now().Add(-RetentionWindow).UnixMilli()
	return millis < cutoff
}

// ensureExtracted 在目标文件缺失时执行拷贝，返回值 hit 表示文件已存在。
func (m *Manager) ensureExtracted(ctx context.Context, assetName, target string) (bool, error) {
	v, err, _ := m.extract.Do(target, func() (interface{}, error) {
		info, err := m.fs.Stat(target)
		switch {
		case err == nil && !info.IsDir():
			return true, nil
		case err == nil:
			return false, fmt.Errorf("cache path %s is a directory", target)
		case !errors.Is(err, fs.ErrNotExist):
			return false, err
		}
		return false, m.copyAsset(ctx, assetName, target)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// copyAsset 通过临时文件 + rename 写入缓存文件，失败时清理临时文件。
func (m *Manager) copyAsset(ctx context.Context, assetName, target string) error {
	src, err := m.source.Open(assetName)
	if err != nil {
		return err
	}
	defer src.Close()

	tempFile, err := afero.TempFile(m.fs, m.dir, extractTempPrefix+"*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = copyWithContext(ctx, tempFile, src)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = m.fs.Remove(tempName)
		return err
	}

	if err := m.fs.Rename(tempName, target); err != nil {
		_ = m.fs.Remove(tempName)
		return err
	}
	return m.fs.Chmod(target, 0o644)
}

// touch 将 assetName 的访问时间更新为当前时间并整体回写记录文件。
func (m *Manager) touch(assetName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	records, _, err := m.loadRecords()
	if err != nil {
		return err
	}
	records[assetName] = m.now().UnixMilli()
	return m.writeRecords(records)
}

// loadRecords 读取记录文件；文件不存在时返回空记录且 exists=false。调用方需持有 mu。
func (m *Manager) loadRecords() (Records, bool, error) {
	data, err := afero.ReadFile(m.fs, m.controlPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(Records), false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", ControlFileName, err)
	}

	if m.strict {
		records, err := DecodeStrict(data)
		if err != nil {
			return nil, true, err
		}
		return records, true, nil
	}

	records, lineErrs := Decode(data)
	for _, lineErr := range lineErrs {
		m.logger.WithFields(logrus.Fields{
			"action": "cache_record_malformed",
			"line":   lineErr.Line,
			"reason": lineErr.Reason,
		}).Warn("skip malformed cache record")
	}
	return records, true, nil
}

// writeRecords 通过临时文件 + rename 原子替换记录文件。调用方需持有 mu。
func (m *Manager) writeRecords(records Records) error {
	tempFile, err := afero.TempFile(m.fs, m.dir, recordTempPrefix+"*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(records.Encode())
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = m.fs.Remove(tempName)
		return err
	}

	if err := m.fs.Rename(tempName, m.controlPath()); err != nil {
		_ = m.fs.Remove(tempName)
		return err
	}
	return nil
}

// removeCacheFiles 删除缓存目录中带前缀且满足 match 的文件，返回删除数量。
func (m *Manager) removeCacheFiles(match func(fileName string) bool) (int, error) {
	infos, err := afero.ReadDir(m.fs, m.dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || !strings.HasPrefix(name, CacheFilePrefix) || !match(name) {
			continue
		}
		if err := m.removeFile(name); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// removeStaleTemps 清理上次异常退出遗留的临时文件。
func (m *Manager) removeStaleTemps() (int, error) {
	infos, err := afero.ReadDir(m.fs, m.dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || !(strings.HasPrefix(name, extractTempPrefix) || strings.HasPrefix(name, recordTempPrefix)) {
			continue
		}
		if err := m.removeFile(name); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (m *Manager) removeFile(fileName string) error {
	err := m.fs.Remove(filepath.Join(m.dir, fileName))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (m *Manager) controlPath() string {
	return filepath.Join(m.dir, ControlFileName)
}

func (m *Manager) logSweep(report SweepReport) {
	m.logger.WithFields(logrus.Fields{
		"action":        "cache_sweep",
		"cache_dir":     m.dir,
		"reset":         report.Reset,
		"evicted":       len(report.Evicted),
		"files_removed": report.FilesRemoved,
		"kept":          report.Kept,
	}).Info("缓存清理完成")
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
