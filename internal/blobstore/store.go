package blobstore

import (
	"context"
	"errors"
	"time"
)

// Store 持久化离线曲目：以曲目 id 为主键，原始 URL 为唯一自然键。
// 实现不会串行化调用方，同一首曲目的并发下载/删除需要由上层保证互斥。
type Store interface {
	// Put 以 track.ID 插入新记录。id 或 OriginalURL 已存在时返回 ErrConflict。
	Put(ctx context.Context, track StoredTrack) error

	// PutIfAbsent 在单个事务内按 OriginalURL 查重：已存在则返回已有记录且 created=false，
	// 否则插入并返回 created=true。
	PutIfAbsent(ctx context.Context, track StoredTrack) (StoredTrack, bool, error)

	// Delete 按 id 删除，id 不存在视为成功。
	Delete(ctx context.Context, id string) error

	// Get 按 id 读取完整记录（含 Payload）。
	Get(ctx context.Context, id string) (StoredTrack, bool, error)

	// FindByOriginalURL 返回第一条 OriginalURL 匹配的完整记录（含 Payload）。
	FindByOriginalURL(ctx context.Context, url string) (StoredTrack, bool, error)

	// Lookup 按 OriginalURL 读取元数据（不含 Payload），不存在时返回 ErrNotFound。
	Lookup(ctx context.Context, url string) (StoredTrack, error)

	// List 返回全部记录的元数据，不含 Payload。
	List(ctx context.Context) ([]StoredTrack, error)

	Close() error
}

// StoredTrack 是 Blob Store 独占的离线曲目记录。
type StoredTrack struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	OriginalURL string    `json:"original_url"`
	Payload     []byte    `json:"-"`
	ContentType string    `json:"content_type"`
	CoverRef    string    `json:"cover_ref"`
	Size        int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

var (
	// ErrConflict 表示主键或原始 URL 已存在。
	ErrConflict = errors.New("stored track already exists")
	// ErrNotFound 表示记录不存在。
	ErrNotFound = errors.New("stored track not found")
	// ErrIOFailure 包装底层存储错误。
	ErrIOFailure = errors.New("blob store io failure")
)
