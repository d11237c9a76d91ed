package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound 表示资源包中不存在请求的资源。
var ErrNotFound = errors.New("asset not found")

// NotFoundError 携带未找到的资源名，errors.Is(err, ErrNotFound) 为 true。
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s could not be found", e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// Lister 是 Resolver 依赖的目录列举能力，bundle.Bundle 满足该接口。
type Lister interface {
	ListDirectory(dir string) []string
}

// Materializer 将已校验的资源转换为磁盘文件，cache.Manager 满足该接口。
type Materializer interface {
	Materialize(ctx context.Context, assetName string) (string, error)
}

// Resolver 持有启动时捕获的顶层资源列表，多级路径则按需列举父目录。
type Resolver struct {
	topLevel map[string]struct{}
	lister   Lister
	cache    Materializer
}

// New 构造 Resolver。topLevel 只在构造时读取一次，之后不再刷新。
func New(topLevel []string, lister Lister, cache Materializer) *Resolver {
	set := make(map[string]struct{}, len(topLevel))
	for _, name := range topLevel {
		set[name] = struct{}{}
	}
	return &Resolver{
		topLevel: set,
		lister:   lister,
		cache:    cache,
	}
}

// Exists 判断 assetName 是否出现在资源包中。含空段、`.` 或 `..` 的非规范名称一律视为不存在，
// 保证同一资源只对应一个缓存文件。
func (r *Resolver) Exists(assetName string) bool {
	if assetName == "" {
		return false
	}
	segments := strings.Split(assetName, "/")
	for _, segment := range segments {
		if segment == "" || segment == "." || segment == ".." {
			return false
		}
	}
	if len(segments) == 1 {
		_, ok := r.topLevel[assetName]
		return ok
	}

	dir := strings.Join(segments[:len(segments)-1], "/")
	file := segments[len(segments)-1]
	if r.lister == nil {
		return false
	}
	for _, name := range r.lister.ListDirectory(dir) {
		if name == file {
			return true
		}
	}
	return false
}

// Resolve 校验资源存在后委托缓存层提取，返回缓存文件的绝对路径。
func (r *Resolver) Resolve(ctx context.Context, assetName string) (string, error) {
	if !r.Exists(assetName) {
		return "", &NotFoundError{Name: assetName}
	}
	return r.cache.Materialize(ctx, assetName)
}

// TopLevelCount 返回启动时捕获的顶层条目数量，用于日志与诊断。
func (r *Resolver) TopLevelCount() int {
	return len(r.topLevel)
}
