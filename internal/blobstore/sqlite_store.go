package blobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
)

const createTracksTableSQL = `
	CREATE TABLE IF NOT EXISTS tracks (
		id           TEXT PRIMARY KEY,
		title        TEXT NOT NULL DEFAULT '',
		artist       TEXT NOT NULL DEFAULT '',
		original_url TEXT NOT NULL,
		payload      BLOB NOT NULL,
		content_type TEXT NOT NULL,
		cover_ref    TEXT NOT NULL DEFAULT '',
		size_bytes   INTEGER NOT NULL,
		created_at   DATETIME NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_tracks_original_url ON tracks (original_url);
	`

const (
	metadataColumns = `id, title, artist, original_url, content_type, cover_ref, size_bytes, created_at`
	fullColumns     = metadataColumns + `, payload`
)

// sqliteStore 是 Store 的 SQLite 实现，payload 以 BLOB 形式内联存放。
type sqliteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore 打开（必要时创建）dbPath 指向的数据库并建表。
func NewSQLiteStore(dbPath string) (Store, error) {
	if dbPath == "" {
		return nil, errors.New("database path required")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// 单连接让 PutIfAbsent 的“查询 + 插入”事务天然串行，避免锁升级冲突。
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTracksTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tracks table: %w", err)
	}
	return &sqliteStore{db: db, now: time.Now}, nil
}

func (s *sqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Put(ctx context.Context, track StoredTrack) error {
	if track.ID == "" {
		return errors.New("track id required")
	}
	_, err := s.insert(ctx, s.db, s.normalize(track))
	return err
}

func (s *sqliteStore) PutIfAbsent(ctx context.Context, track StoredTrack) (StoredTrack, bool, error) {
	if track.ID == "" {
		return StoredTrack{}, false, errors.New("track id required")
	}
	track = s.normalize(track)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return StoredTrack{}, false, wrapIO(err)
	}
	defer tx.Rollback()

	existing, found, err := s.queryOne(ctx, tx, `SELECT `+metadataColumns+` FROM tracks WHERE original_url = ? LIMIT 1`, false, track.OriginalURL)
	if err != nil {
		return StoredTrack{}, false, err
	}
	if found {
		return existing, false, nil
	}

	if _, err := s.insert(ctx, tx, track); err != nil {
		return StoredTrack{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return StoredTrack{}, false, wrapIO(err)
	}
	track.Payload = nil
	return track, true, nil
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tracks WHERE id = ?`, id); err != nil {
		return wrapIO(err)
	}
	return nil
}

func (s *sqliteStore) Get(ctx context.Context, id string) (StoredTrack, bool, error) {
	return s.queryOne(ctx, s.db, `SELECT `+fullColumns+` FROM tracks WHERE id = ?`, true, id)
}

func (s *sqliteStore) FindByOriginalURL(ctx context.Context, url string) (StoredTrack, bool, error) {
	return s.queryOne(ctx, s.db, `SELECT `+fullColumns+` FROM tracks WHERE original_url = ? ORDER BY created_at LIMIT 1`, true, url)
}

func (s *sqliteStore) Lookup(ctx context.Context, url string) (StoredTrack, error) {
	track, found, err := s.queryOne(ctx, s.db, `SELECT `+metadataColumns+` FROM tracks WHERE original_url = ? ORDER BY created_at LIMIT 1`, false, url)
	if err != nil {
		return StoredTrack{}, err
	}
	if !found {
		return StoredTrack{}, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	return track, nil
}

func (s *sqliteStore) List(ctx context.Context) ([]StoredTrack, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+metadataColumns+` FROM tracks ORDER BY created_at, id`)
	if err != nil {
		return nil, wrapIO(err)
	}
	defer rows.Close()

	var result []StoredTrack
	for rows.Next() {
		track, err := scanTrack(rows, false)
		if err != nil {
			return nil, wrapIO(err)
		}
		result = append(result, track)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapIO(err)
	}
	return result, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *sqliteStore) insert(ctx context.Context, db execer, track StoredTrack) (sql.Result, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO tracks (`+fullColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		track.ID, track.Title, track.Artist, track.OriginalURL, track.ContentType,
		track.CoverRef, track.Size, track.CreatedAt, track.Payload,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, fmt.Errorf("%w: id=%s url=%s", ErrConflict, track.ID, track.OriginalURL)
		}
		return nil, wrapIO(err)
	}
	return result, nil
}

func (s *sqliteStore) queryOne(ctx context.Context, db querier, query string, withPayload bool, arg string) (StoredTrack, bool, error) {
	track, err := scanTrack(db.QueryRowContext(ctx, query, arg), withPayload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StoredTrack{}, false, nil
		}
		return StoredTrack{}, false, wrapIO(err)
	}
	return track, true, nil
}

func scanTrack(row rowScanner, withPayload bool) (StoredTrack, error) {
	var track StoredTrack
	dest := []any{
		&track.ID, &track.Title, &track.Artist, &track.OriginalURL,
		&track.ContentType, &track.CoverRef, &track.Size, &track.CreatedAt,
	}
	if withPayload {
		dest = append(dest, &track.Payload)
	}
	if err := row.Scan(dest...); err != nil {
		return StoredTrack{}, err
	}
	return track, nil
}

func (s *sqliteStore) normalize(track StoredTrack) StoredTrack {
	if track.Payload == nil {
		track.Payload = []byte{}
	}
	track.Size = int64(len(track.Payload))
	if track.CreatedAt.IsZero() {
		track.CreatedAt = s.now().UTC()
	}
	return track
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

func wrapIO(err error) error {
	return fmt.Errorf("%w: %v", ErrIOFailure, err)
}
