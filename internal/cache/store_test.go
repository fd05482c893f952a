package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestStorePutAndGet(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Set: "shell-v1", Path: "media.example.com/index.html"}

	modTime := time.Now().Add(-time.Hour).UTC()
	payload := []byte("<html>player</html>")
	if _, err := store.Put(context.Background(), locator, bytes.NewReader(payload), PutOptions{ContentType: "text/html", ModTime: modTime}); err != nil {
		t.Fatalf("put error: %v", err)
	}

	result, err := store.Get(context.Background(), locator)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	defer result.Reader.Close()

	body, err := io.ReadAll(result.Reader)
	if err != nil {
		t.Fatalf("read cached body error: %v", err)
	}
	if string(body) != string(payload) {
		t.Fatalf("cached payload mismatch: %s", string(body))
	}
	if result.Entry.SizeBytes != int64(len(payload)) {
		t.Fatalf("size mismatch: %d", result.Entry.SizeBytes)
	}
	if result.Entry.ContentType != "text/html" {
		t.Fatalf("content type mismatch: %s", result.Entry.ContentType)
	}
	if !result.Entry.ModTime.Equal(modTime) {
		t.Fatalf("modtime mismatch: expected %v got %v", modTime, result.Entry.ModTime)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), Locator{Set: "shell-v1", Path: "/missing"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreRemove(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Set: "shell-v1", Path: "/cache/remove"}
	if _, err := store.Put(context.Background(), locator, bytes.NewReader([]byte("data")), PutOptions{}); err != nil {
		t.Fatalf("put error: %v", err)
	}
	if err := store.Remove(context.Background(), locator); err != nil {
		t.Fatalf("remove error: %v", err)
	}
	if _, err := store.Get(context.Background(), locator); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after remove, got %v", err)
	}
	if err := store.Remove(context.Background(), locator); err != nil {
		t.Fatalf("second remove should succeed, got %v", err)
	}
}

func TestStoreParentAndChildPathsCoexist(t *testing.T) {
	store := newTestStore(t)
	parent := Locator{Set: "shell-v1", Path: "/assets"}
	child := Locator{Set: "shell-v1", Path: "/assets/app.js"}

	for _, loc := range []Locator{parent, child} {
		if _, err := store.Put(context.Background(), loc, strings.NewReader(loc.Path), PutOptions{}); err != nil {
			t.Fatalf("put %s error: %v", loc.Path, err)
		}
	}
	for _, loc := range []Locator{parent, child} {
		result, err := store.Get(context.Background(), loc)
		if err != nil {
			t.Fatalf("get %s error: %v", loc.Path, err)
		}
		body, _ := io.ReadAll(result.Reader)
		result.Reader.Close()
		if string(body) != loc.Path {
			t.Fatalf("unexpected body for %s: %s", loc.Path, body)
		}
	}
}

func TestStoreIgnoresDirectories(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Set: "shell-v1", Path: "/v2"}

	fs, ok := store.(*fileStore)
	if !ok {
		t.Fatalf("unexpected store type %T", store)
	}

	filePath, err := fs.entryPath(locator)
	if err != nil {
		t.Fatalf("path error: %v", err)
	}
	if err := os.MkdirAll(filePath, 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}

	if _, err := store.Get(context.Background(), locator); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for directory, got %v", err)
	}
}

func TestStoreSetLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, set := range []string{"shell-v1", "shell-v2", ".staging"} {
		loc := Locator{Set: set, Path: "/index.html"}
		if _, err := store.Put(ctx, loc, strings.NewReader(set), PutOptions{}); err != nil {
			t.Fatalf("put into %s error: %v", set, err)
		}
	}

	sets, err := store.Sets(ctx)
	if err != nil {
		t.Fatalf("sets error: %v", err)
	}
	if want := []string{".staging", "shell-v1", "shell-v2"}; !reflect.DeepEqual(sets, want) {
		t.Fatalf("expected sets %v, got %v", want, sets)
	}

	if err := store.RenameSet(ctx, ".staging", "shell-v2"); err != nil {
		t.Fatalf("rename error: %v", err)
	}
	result, err := store.Get(ctx, Locator{Set: "shell-v2", Path: "/index.html"})
	if err != nil {
		t.Fatalf("get after rename error: %v", err)
	}
	body, _ := io.ReadAll(result.Reader)
	result.Reader.Close()
	if string(body) != ".staging" {
		t.Fatalf("renamed set should replace target, got %s", body)
	}

	if err := store.RemoveSet(ctx, "shell-v1"); err != nil {
		t.Fatalf("remove set error: %v", err)
	}
	sets, _ = store.Sets(ctx)
	if want := []string{"shell-v2"}; !reflect.DeepEqual(sets, want) {
		t.Fatalf("expected sets %v after removal, got %v", want, sets)
	}

	if err := store.RenameSet(ctx, "missing", "shell-v3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound renaming missing set, got %v", err)
	}
}

func TestStoreRejectsInvalidSetNames(t *testing.T) {
	store := newTestStore(t)
	for _, set := range []string{"", "..", "a/b"} {
		if _, err := store.Put(context.Background(), Locator{Set: set, Path: "/x"}, strings.NewReader("x"), PutOptions{}); !errors.Is(err, ErrInvalidSet) {
			t.Fatalf("expected ErrInvalidSet for %q, got %v", set, err)
		}
	}
}

// newTestStore returns a Store backed by a temporary directory.
func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}
