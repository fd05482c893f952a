package playlist

import (
	"errors"
	"sync"
	"testing"

	"github.com/any-hub/music-hub/internal/config"
)

func TestNewPreservesOrderAndIndex(t *testing.T) {
	p := New([]config.TrackConfig{
		{Title: "One", URL: " https://cdn.example.com/1.mp3 "},
		{Title: "Two", URL: "https://cdn.example.com/2.mp3"},
	})

	entries := p.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Index != 0 || entries[1].Index != 1 {
		t.Fatalf("unexpected indices: %+v", entries)
	}
	if entries[0].URL != "https://cdn.example.com/1.mp3" {
		t.Fatalf("expected trimmed url, got %q", entries[0].URL)
	}
	if entries[0].IsDownloaded {
		t.Fatalf("new entries must not be downloaded")
	}
}

func TestMarkAndClearOffline(t *testing.T) {
	p := FromEntries([]Entry{
		{URL: "https://cdn.example.com/1.mp3"},
		{URL: "https://cdn.example.com/2.mp3"},
	})

	if !p.MarkOffline("https://cdn.example.com/1.mp3", "offline://track_1") {
		t.Fatalf("expected mark to match")
	}
	entry, _ := p.Entry(0)
	if !entry.IsDownloaded || entry.OfflineRef != "offline://track_1" {
		t.Fatalf("unexpected entry after mark: %+v", entry)
	}
	if entry.PlaybackURL() != "offline://track_1" {
		t.Fatalf("expected offline playback url, got %s", entry.PlaybackURL())
	}
	if p.MarkOffline("https://cdn.example.com/missing.mp3", "offline://x") {
		t.Fatalf("expected no match for unknown url")
	}

	if !p.ClearOffline("offline://track_1") {
		t.Fatalf("expected clear to match")
	}
	entry, _ = p.Entry(0)
	if entry.IsDownloaded || entry.OfflineRef != "" {
		t.Fatalf("unexpected entry after clear: %+v", entry)
	}
	if entry.PlaybackURL() != "https://cdn.example.com/1.mp3" {
		t.Fatalf("expected source playback url, got %s", entry.PlaybackURL())
	}
}

func TestEntryOutOfRange(t *testing.T) {
	p := FromEntries(nil)
	if _, err := p.Entry(0); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	if _, err := p.Entry(-1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestRenderBumpsRevisionConcurrently(t *testing.T) {
	p := FromEntries([]Entry{{URL: "https://cdn.example.com/1.mp3"}})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Render()
			_ = p.Entries()
		}()
	}
	wg.Wait()

	if p.Revision() != 20 {
		t.Fatalf("expected revision 20, got %d", p.Revision())
	}
}
