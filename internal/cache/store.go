package cache

import (
	"context"
	"errors"
	"io"
	"time"
)

// Store 负责管理磁盘缓存集合的读写。磁盘布局遵循：
//
//	<basePath>/<Set>/<path>.body    # 响应正文
//	<basePath>/<Set>/<path>.meta    # 内容类型等元数据（JSON）
//
// 集合是整体淘汰的最小单位，条目之间没有 TTL/LRU 关系。
type Store interface {
	// Get 返回一个可流式读取的缓存条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, locator Locator) (*ReadResult, error)

	// Put 将响应正文写入指定集合，并产出新的 Entry 描述。实现需通过临时文件 + rename
	// 保证写入原子性，并在失败时清理临时文件。
	Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error)

	// Remove 删除单个条目，不存在时视为成功。
	Remove(ctx context.Context, locator Locator) error

	// Sets 列出当前磁盘上存在的全部集合名称（按名称排序）。
	Sets(ctx context.Context) ([]string, error)

	// RemoveSet 删除整个集合，不存在时视为成功。
	RemoveSet(ctx context.Context, set string) error

	// RenameSet 用 from 整体替换 to，替换前会先删除已存在的 to。
	RenameSet(ctx context.Context, from, to string) error
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ContentType string
	ModTime     time.Time
}

// Locator 唯一定位一个缓存条目（集合 + 相对路径），路径均为 URL 路径风格。
type Locator struct {
	Set  string
	Path string
}

// Entry 表示一次缓存命中结果，包含绝对文件路径及文件信息。
type Entry struct {
	Locator     Locator `json:"locator"`
	FilePath    string  `json:"file_path"`
	SizeBytes   int64   `json:"size_bytes"`
	ContentType string  `json:"content_type"`
	ModTime     time.Time
}

// ReadResult 组合 Entry 与正文 Reader，便于拦截层直接将 Body 流式返回。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrInvalidSet 表示集合名称为空或包含路径分隔符。
	ErrInvalidSet = errors.New("invalid cache set name")
)
