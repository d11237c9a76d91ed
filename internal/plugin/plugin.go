package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/any-hub/asset-delivery/internal/bundle"
	"github.com/any-hub/asset-delivery/internal/cache"
	"github.com/any-hub/asset-delivery/internal/config"
	"github.com/any-hub/asset-delivery/internal/logging"
	"github.com/any-hub/asset-delivery/internal/resolver"
)

// ErrDetached 表示插件已经解除挂载。
var ErrDetached = errors.New("plugin detached")

// Options 描述挂载插件所需的协作方与参数。
type Options struct {
	Bundle        bundle.Bundle
	CacheDir      string
	Fs            afero.Fs
	Logger        *logrus.Logger
	ChannelName   string
	StrictRecords bool
	Now           func() time.Time
}

// Status 是插件运行状态的快照，供诊断接口输出。
type Status struct {
	Channel        string            `json:"channel"`
	Attached       bool              `json:"attached"`
	CacheDir       string            `json:"cache_dir"`
	TopLevelAssets int               `json:"top_level_assets"`
	AttachedAt     time.Time         `json:"attached_at"`
	LastSweep      cache.SweepReport `json:"last_sweep"`
}

// Plugin 聚合挂载期间的全部状态，替代全局变量。
type Plugin struct {
	channel string
	logger  *logrus.Logger

	mu         sync.RWMutex
	cache      *cache.Manager
	resolver   *resolver.Resolver
	cacheDir   string
	attachedAt time.Time
	sweep      cache.SweepReport
}

// Attach 捕获顶层资源列表、执行启动清理并构建 Resolver。清理完成前不会返回。
func Attach(ctx context.Context, opts Options) (*Plugin, error) {
	if opts.Bundle == nil {
		return nil, errors.New("bundle is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	channel := opts.ChannelName
	if channel == "" {
		channel = config.DefaultChannelName
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	manager, err := cache.NewManager(cache.Options{
		Fs:            opts.Fs,
		Dir:           opts.CacheDir,
		Source:        opts.Bundle,
		Logger:        logger,
		StrictRecords: opts.StrictRecords,
		Now:           now,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化缓存目录失败: %w", err)
	}

	topLevel := opts.Bundle.ListTopLevel()
	report, err := manager.Optimize(ctx)
	if err != nil {
		_ = manager.Close()
		return nil, fmt.Errorf("缓存清理失败: %w", err)
	}

	p := &Plugin{
		channel:    channel,
		logger:     logger,
		cache:      manager,
		resolver:   resolver.New(topLevel, opts.Bundle, manager),
		cacheDir:   manager.Dir(),
		attachedAt: now(),
		sweep:      report,
	}

	logger.WithFields(logrus.Fields{
		"action":           "attach",
		"channel":          channel,
		"cache_dir":        p.cacheDir,
		"top_level_assets": len(topLevel),
		"record_mode":      recordMode(opts.StrictRecords),
	}).Info("插件挂载完成")
	return p, nil
}

// Channel 返回插件监听的方法通道名称。
func (p *Plugin) Channel() string {
	return p.channel
}

// Status 返回当前运行状态快照。
func (p *Plugin) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := Status{
		Channel:    p.channel,
		Attached:   p.resolver != nil,
		CacheDir:   p.cacheDir,
		AttachedAt: p.attachedAt,
		LastSweep:  p.sweep,
	}
	if p.resolver != nil {
		status.TopLevelAssets = p.resolver.TopLevelCount()
	}
	return status
}

// Entries 返回缓存记录快照；插件解除挂载后返回 ErrDetached。
func (p *Plugin) Entries() ([]cache.Entry, error) {
	p.mu.RLock()
	manager := p.cache
	p.mu.RUnlock()
	if manager == nil {
		return nil, ErrDetached
	}
	return manager.Entries()
}

// GetAssetFile 解析资源并返回缓存文件的绝对路径。
func (p *Plugin) GetAssetFile(ctx context.Context, assetName string) (string, error) {
	p.mu.RLock()
	r := p.resolver
	p.mu.RUnlock()
	if r == nil {
		return "", ErrDetached
	}
	return r.Resolve(ctx, assetName)
}

// HandleMethodCall 分发一次方法通道调用，所有错误都折叠为 Result。
func (p *Plugin) HandleMethodCall(ctx context.Context, call MethodCall) Result {
	if call.Method != MethodGetAssetFile {
		return Result{NotImplemented: true}
	}

	args, err := decodeGetAssetFileArgs(call.Arguments)
	if err != nil {
		return Failure(CodeInvalidArgument, err.Error())
	}

	path, err := p.GetAssetFile(ctx, args.AssetName)
	switch {
	case err == nil:
		return Success(path)
	case errors.Is(err, resolver.ErrNotFound):
		p.logger.WithFields(logrus.Fields{
			"action": "asset_not_found",
			"asset":  args.AssetName,
		}).Info("资源不存在")
		return Failure(CodeAssetNotFound, fmt.Sprintf("%s could not be found. ", args.AssetName))
	case errors.Is(err, ErrDetached), errors.Is(err, cache.ErrClosed):
		return Failure(CodeDetached, err.Error())
	default:
		p.logger.WithError(err).WithField("asset", args.AssetName).Error("asset_materialize_failed")
		return Failure(CodeIOFailure, err.Error())
	}
}

// Detach 释放 Resolver 与缓存引用，可重复调用。
func (p *Plugin) Detach() error {
	p.mu.Lock()
	manager := p.cache
	p.cache = nil
	p.resolver = nil
	p.mu.Unlock()

	if manager == nil {
		return nil
	}
	p.logger.WithFields(logrus.Fields{
		"action":  "detach",
		"channel": p.channel,
	}).Info("插件已解除挂载")
	return manager.Close()
}

func recordMode(strict bool) string {
	return config.AssetConfig{StrictRecords: strict}.RecordMode()
}
