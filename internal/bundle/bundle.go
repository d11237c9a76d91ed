package bundle

import (
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// ErrNotAFile 表示请求打开的资源是目录。
var ErrNotAFile = errors.New("bundle entry is not a regular file")

// Bundle 描述资源包的只读能力集合。
type Bundle interface {
	// ListTopLevel 返回资源包根目录下的条目名称（文件与目录）。
	ListTopLevel() []string
	// ListDirectory 返回 dir 目录下的条目名称，目录不存在或读取失败时返回空切片。
	ListDirectory(dir string) []string
	// Open 打开 name 对应的资源文件，调用方负责关闭。
	Open(name string) (io.ReadCloser, error)
}

// FSBundle 基于 afero.Fs 实现 Bundle，所有访问均经过只读包装。
type FSBundle struct {
	fs afero.Fs
}

// NewDirBundle 以磁盘目录 root 作为资源包根目录。
func NewDirBundle(root string) (*FSBundle, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("bundle path required")
	}
	osFs := afero.NewOsFs()
	ok, err := afero.DirExists(osFs, root)
	if err != nil {
		return nil, fmt.Errorf("stat bundle path: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("bundle path %s is not a directory", root)
	}
	return NewFSBundle(afero.NewBasePathFs(osFs, root)), nil
}

// NewFSBundle 将任意 afero.Fs 包装为只读资源包，测试中通常传入 MemMapFs。
func NewFSBundle(fs afero.Fs) *FSBundle {
	return &FSBundle{fs: afero.NewReadOnlyFs(fs)}
}

func (b *FSBundle) ListTopLevel() []string {
	return b.list("")
}

func (b *FSBundle) ListDirectory(dir string) []string {
	return b.list(dir)
}

func (b *FSBundle) Open(name string) (io.ReadCloser, error) {
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	info, err := b.fs.Stat(clean)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s: %w", name, ErrNotAFile)
	}
	return b.fs.Open(clean)
}

func (b *FSBundle) list(dir string) []string {
	clean := ""
	if dir != "" {
		var err error
		if clean, err = cleanName(dir); err != nil {
			return nil
		}
	}
	infos, err := afero.ReadDir(b.fs, clean)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	sort.Strings(names)
	return names
}

// cleanName 将逻辑资源名规整为相对路径，拒绝越出资源包根目录的写法。
func cleanName(name string) (string, error) {
	cleaned := path.Clean("/" + name)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned != strings.Trim(name, "/") {
		return "", fmt.Errorf("invalid bundle path: %q", name)
	}
	return cleaned, nil
}
