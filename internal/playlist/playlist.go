// Package playlist holds the in-memory playlist the player renders. Entries
// come from [[Track]] configuration; the orchestrator records offline
// references on them and bumps the revision so polling clients re-render.
package playlist

import (
	"errors"
	"strings"
	"sync"

	"github.com/any-hub/music-hub/internal/config"
)

// ErrIndexOutOfRange 表示请求的播放列表下标不存在。
var ErrIndexOutOfRange = errors.New("playlist index out of range")

// Entry 是播放列表中的一条曲目。OfflineRef 非空时 IsDownloaded 为 true。
type Entry struct {
	Index        int    `json:"index"`
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	URL          string `json:"url"`
	Cover        string `json:"cover,omitempty"`
	OfflineRef   string `json:"offline_ref,omitempty"`
	IsDownloaded bool   `json:"is_downloaded"`
}

// PlaybackURL 返回播放时应使用的地址：已下载时为离线地址，否则为原始 URL。
func (e Entry) PlaybackURL() string {
	if e.IsDownloaded && e.OfflineRef != "" {
		return e.OfflineRef
	}
	return e.URL
}

// Playlist 以读写锁保护条目列表，并维护单调递增的渲染版本号。
type Playlist struct {
	mu       sync.RWMutex
	entries  []Entry
	revision uint64
}

// New builds a playlist from configured tracks, preserving their order.
func New(tracks []config.TrackConfig) *Playlist {
	entries := make([]Entry, 0, len(tracks))
	for _, track := range tracks {
		entries = append(entries, Entry{
			Title:  track.Title,
			Artist: track.Artist,
			URL:    strings.TrimSpace(track.URL),
			Cover:  track.Cover,
		})
	}
	return FromEntries(entries)
}

// FromEntries builds a playlist from prepared entries; indices are reassigned.
func FromEntries(entries []Entry) *Playlist {
	cloned := make([]Entry, len(entries))
	for i, entry := range entries {
		entry.Index = i
		entry.IsDownloaded = entry.OfflineRef != ""
		cloned[i] = entry
	}
	return &Playlist{entries: cloned}
}

// Entries 返回当前条目的快照。
func (p *Playlist) Entries() []Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Entry(nil), p.entries...)
}

// Len returns the number of entries.
func (p *Playlist) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Entry 按下标读取条目。
func (p *Playlist) Entry(index int) (Entry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if index < 0 || index >= len(p.entries) {
		return Entry{}, ErrIndexOutOfRange
	}
	return p.entries[index], nil
}

// MarkOffline 为所有原始 URL 匹配的条目记录离线地址，返回是否有条目被修改。
func (p *Playlist) MarkOffline(url, ref string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	matched := false
	for i := range p.entries {
		if p.entries[i].URL != url {
			continue
		}
		p.entries[i].OfflineRef = ref
		p.entries[i].IsDownloaded = true
		matched = true
	}
	return matched
}

// ClearOffline 清除离线地址等于 ref 的条目，返回是否有条目被修改。
func (p *Playlist) ClearOffline(ref string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	matched := false
	for i := range p.entries {
		if p.entries[i].OfflineRef != ref {
			continue
		}
		p.entries[i].OfflineRef = ""
		p.entries[i].IsDownloaded = false
		matched = true
	}
	return matched
}

// ClearOfflineByURL 清除原始 URL 匹配条目的离线状态，对账时使用。
func (p *Playlist) ClearOfflineByURL(url string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	matched := false
	for i := range p.entries {
		if p.entries[i].URL != url || !p.entries[i].IsDownloaded {
			continue
		}
		p.entries[i].OfflineRef = ""
		p.entries[i].IsDownloaded = false
		matched = true
	}
	return matched
}

// Render bumps the revision; clients polling /-/playlist re-render on change.
func (p *Playlist) Render() {
	p.mu.Lock()
	p.revision++
	p.mu.Unlock()
}

// Revision returns the current render revision.
func (p *Playlist) Revision() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.revision
}

// Snapshot 同时返回条目与版本号，保证二者来自同一时刻。
func (p *Playlist) Snapshot() ([]Entry, uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Entry(nil), p.entries...), p.revision
}
