package blobstore

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

func TestStorePutAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	payload := []byte("ID3-fake-audio-payload")
	track := StoredTrack{
		ID:          "track_1",
		Title:       "A",
		Artist:      "Tape Loop",
		OriginalURL: "https://x.example.com/a.mp3",
		Payload:     payload,
		ContentType: "audio/mpeg",
		CoverRef:    "https://x.example.com/a.jpg",
	}
	if err := store.Put(ctx, track); err != nil {
		t.Fatalf("put error: %v", err)
	}

	got, ok, err := store.Get(ctx, "track_1")
	if err != nil || !ok {
		t.Fatalf("get failed: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Fatalf("payload mismatch: %q", got.Payload)
	}
	if got.Size != int64(len(payload)) {
		t.Fatalf("size mismatch: %d", got.Size)
	}
	if got.Title != "A" || got.ContentType != "audio/mpeg" || got.CoverRef != track.CoverRef {
		t.Fatalf("metadata mismatch: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("created_at should be populated")
	}
}

func TestStorePutConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := StoredTrack{ID: "track_1", OriginalURL: "https://x.example.com/a.mp3", Payload: []byte("a")}
	if err := store.Put(ctx, first); err != nil {
		t.Fatalf("put error: %v", err)
	}

	sameID := StoredTrack{ID: "track_1", OriginalURL: "https://x.example.com/b.mp3", Payload: []byte("b")}
	if err := store.Put(ctx, sameID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate id, got %v", err)
	}

	sameURL := StoredTrack{ID: "track_2", OriginalURL: first.OriginalURL, Payload: []byte("c")}
	if err := store.Put(ctx, sameURL); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate original url, got %v", err)
	}
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, StoredTrack{ID: "track_1", OriginalURL: "https://x.example.com/a.mp3", Payload: []byte("a")}); err != nil {
		t.Fatalf("put error: %v", err)
	}
	if err := store.Delete(ctx, "track_1"); err != nil {
		t.Fatalf("first delete error: %v", err)
	}
	if err := store.Delete(ctx, "track_1"); err != nil {
		t.Fatalf("second delete should succeed, got %v", err)
	}
	if _, ok, err := store.Get(ctx, "track_1"); err != nil || ok {
		t.Fatalf("expected missing after delete, ok=%v err=%v", ok, err)
	}
}

func TestStoreFindByOriginalURL(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.FindByOriginalURL(ctx, "https://x.example.com/a.mp3"); err != nil || ok {
		t.Fatalf("expected miss on empty store, ok=%v err=%v", ok, err)
	}
	for _, track := range []StoredTrack{
		{ID: "track_a", OriginalURL: "https://x.example.com/a.mp3", Payload: []byte("aaa")},
		{ID: "track_b", OriginalURL: "https://x.example.com/b.mp3", Payload: []byte("bb")},
	} {
		if err := store.Put(ctx, track); err != nil {
			t.Fatalf("put error: %v", err)
		}
	}

	got, ok, err := store.FindByOriginalURL(ctx, "https://x.example.com/b.mp3")
	if err != nil || !ok {
		t.Fatalf("find failed: ok=%v err=%v", ok, err)
	}
	if got.ID != "track_b" || string(got.Payload) != "bb" {
		t.Fatalf("unexpected match: %+v", got)
	}
}

func TestStoreLookupSkipsPayload(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const url = "https://x.example.com/a.mp3"
	if _, err := store.Lookup(ctx, url); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}
	if err := store.Put(ctx, StoredTrack{ID: "track_a", OriginalURL: url, Payload: []byte("audio"), ContentType: "audio/mpeg"}); err != nil {
		t.Fatalf("put error: %v", err)
	}

	got, err := store.Lookup(ctx, url)
	if err != nil {
		t.Fatalf("lookup error: %v", err)
	}
	if got.ID != "track_a" || got.Size != 5 || got.ContentType != "audio/mpeg" {
		t.Fatalf("unexpected metadata: %+v", got)
	}
	if got.Payload != nil {
		t.Fatalf("lookup must not load the payload, got %d bytes", len(got.Payload))
	}
}

func TestStorePutIfAbsentKeepsSingleRecordPerURL(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const url = "https://x.example.com/a.mp3"
	var wg sync.WaitGroup
	created := make(chan string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			track := StoredTrack{
				ID:          "track_" + string(rune('a'+i)),
				OriginalURL: url,
				Payload:     []byte("payload"),
			}
			stored, ok, err := store.PutIfAbsent(ctx, track)
			if err != nil {
				t.Errorf("put if absent error: %v", err)
				return
			}
			if ok {
				created <- stored.ID
			}
		}(i)
	}
	wg.Wait()
	close(created)

	var ids []string
	for id := range created {
		ids = append(ids, id)
	}
	if len(ids) != 1 {
		t.Fatalf("expected exactly one insert, got %v", ids)
	}

	listed, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != ids[0] {
		t.Fatalf("expected single stored record %s, got %+v", ids[0], listed)
	}
	if listed[0].Payload != nil {
		t.Fatalf("list should omit payload")
	}
}

func TestStorePutIfAbsentReturnsExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := StoredTrack{ID: "track_1", OriginalURL: "https://x.example.com/a.mp3", Payload: []byte("a")}
	if _, created, err := store.PutIfAbsent(ctx, first); err != nil || !created {
		t.Fatalf("first insert failed: created=%v err=%v", created, err)
	}
	second := StoredTrack{ID: "track_2", OriginalURL: first.OriginalURL, Payload: []byte("b")}
	existing, created, err := store.PutIfAbsent(ctx, second)
	if err != nil {
		t.Fatalf("second insert error: %v", err)
	}
	if created || existing.ID != "track_1" {
		t.Fatalf("expected existing track_1, got created=%v id=%s", created, existing.ID)
	}
}

// newTestStore returns a Store backed by a temporary SQLite file.
func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tracks.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
