// Package library implements the download and removal orchestration that
// moves tracks between the network and the blob store, keeping the playlist's
// offline references in step with what is durably stored.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/music-hub/internal/blobstore"
	"github.com/any-hub/music-hub/internal/logging"
	"github.com/any-hub/music-hub/internal/offline"
	"github.com/any-hub/music-hub/internal/playlist"
)

// Playlist 是编排器对播放列表的窄依赖，由 playlist.Playlist 实现。
type Playlist interface {
	Entries() []playlist.Entry
	MarkOffline(url, ref string) bool
	ClearOffline(ref string) bool
	ClearOfflineByURL(url string) bool
}

// Renderer is invoked after every mutation of playlist offline state.
type Renderer func()

// Options 汇总 Orchestrator 的依赖。
type Options struct {
	Store              blobstore.Store
	Client             *http.Client
	Playlist           Playlist
	Render             Renderer
	Notifier           Notifier
	Logger             *logrus.Logger
	Scheme             offline.Scheme
	DefaultContentType string
	DefaultCover       string
}

// Orchestrator 负责下载、删除与启动对账。同一源地址上的操作通过 inflight 互斥，
// 重叠调用返回 ErrBusy。
type Orchestrator struct {
	store              blobstore.Store
	client             *http.Client
	playlist           Playlist
	render             Renderer
	notifier           Notifier
	logger             *logrus.Logger
	scheme             offline.Scheme
	defaultContentType string
	defaultCover       string

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New 校验依赖并构造 Orchestrator。
func New(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, errors.New("blob store is required")
	}
	if opts.Playlist == nil {
		return nil, errors.New("playlist is required")
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	render := opts.Render
	if render == nil {
		render = func() {}
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = NotifierFunc(func(Notice) {})
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	scheme := opts.Scheme
	if scheme == "" {
		scheme = offline.DefaultScheme
	}
	contentType := opts.DefaultContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return &Orchestrator{
		store:              opts.Store,
		client:             client,
		playlist:           opts.Playlist,
		render:             render,
		notifier:           notifier,
		logger:             logger,
		scheme:             scheme,
		defaultContentType: contentType,
		defaultCover:       opts.DefaultCover,
		inflight:           make(map[string]struct{}),
	}, nil
}

// Download fetches track.URL and stores it. It reports whether a playlist
// entry now points at the stored copy; false with a nil error means the
// record was stored but no entry matched.
func (o *Orchestrator) Download(ctx context.Context, track playlist.Entry) (bool, error) {
	source := strings.TrimSpace(track.URL)
	if !isSourceURL(source) {
		return o.fail("download", track, fmt.Errorf("%w: source url %q", ErrInvalidTrack, track.URL))
	}

	release, ok := o.acquire(source)
	if !ok {
		return o.fail("download", track, fmt.Errorf("%w: %s", ErrBusy, source))
	}
	defer release()

	existing, err := o.store.Lookup(ctx, source)
	switch {
	case err == nil:
		o.logger.WithFields(logging.TrackFields("download", source, existing.ID)).Info("track_already_stored")
		return o.attach(track, source, existing.ID)
	case !errors.Is(err, blobstore.ErrNotFound):
		return o.fail("download", track, fmt.Errorf("%w: %v", ErrStoreWrite, err))
	}

	payload, contentType, err := o.fetch(ctx, source)
	if err != nil {
		return o.fail("download", track, err)
	}

	cover := track.Cover
	if cover == "" {
		cover = o.defaultCover
	}
	stored, created, err := o.store.PutIfAbsent(ctx, blobstore.StoredTrack{
		ID:          newTrackID(),
		Title:       track.Title,
		Artist:      track.Artist,
		OriginalURL: source,
		Payload:     payload,
		ContentType: contentType,
		CoverRef:    cover,
	})
	if err != nil {
		return o.fail("download", track, fmt.Errorf("%w: %v", ErrStoreWrite, err))
	}

	fields := logging.TrackFields("download", source, stored.ID)
	fields["size_bytes"] = len(payload)
	fields["content_type"] = contentType
	fields["created"] = created
	o.logger.WithFields(fields).Info("track_stored")

	return o.attach(track, source, stored.ID)
}

// Remove deletes the stored copy referenced by track.OfflineRef. A reference
// outside the reserved scheme fails with ErrInvalidTrack before the store is
// touched.
func (o *Orchestrator) Remove(ctx context.Context, track playlist.Entry) (bool, error) {
	ref := strings.TrimSpace(track.OfflineRef)
	id, err := o.scheme.Parse(ref)
	if err != nil {
		return o.fail("remove", track, fmt.Errorf("%w: offline ref %q", ErrInvalidTrack, track.OfflineRef))
	}

	key := strings.TrimSpace(track.URL)
	if key == "" {
		key = ref
	}
	release, ok := o.acquire(key)
	if !ok {
		return o.fail("remove", track, fmt.Errorf("%w: %s", ErrBusy, key))
	}
	defer release()

	if err := o.store.Delete(ctx, id); err != nil {
		return o.fail("remove", track, fmt.Errorf("%w: %v", ErrStoreWrite, err))
	}
	o.logger.WithFields(logging.TrackFields("remove", track.URL, id)).Info("track_removed")

	matched := o.playlist.ClearOffline(ref)
	o.render()
	if !matched {
		o.logger.WithFields(logging.TrackFields("remove", track.URL, id)).Warn("playlist_entry_missing")
		return false, nil
	}
	o.notifier.Notify(Notice{
		Level:   LevelInfo,
		Action:  "remove",
		Title:   track.Title,
		Message: fmt.Sprintf("%q deleted from downloads.", displayTitle(track)),
	})
	return true, nil
}

// Reconcile re-derives every entry's offline state from the blob store and
// renders once. Lookup failures leave the affected entry untouched and are
// returned joined.
func (o *Orchestrator) Reconcile(ctx context.Context, pl Playlist) error {
	if pl == nil {
		pl = o.playlist
	}
	var errs []error
	downloaded := 0
	for _, entry := range pl.Entries() {
		if entry.URL == "" {
			continue
		}
		stored, err := o.store.Lookup(ctx, entry.URL)
		switch {
		case err == nil:
			pl.MarkOffline(entry.URL, o.scheme.Address(stored.ID))
			downloaded++
		case errors.Is(err, blobstore.ErrNotFound):
			pl.ClearOfflineByURL(entry.URL)
		default:
			errs = append(errs, fmt.Errorf("reconcile %s: %w", entry.URL, err))
		}
	}
	o.render()

	o.logger.WithFields(logrus.Fields{
		"action":     "reconcile",
		"entries":    len(pl.Entries()),
		"downloaded": downloaded,
		"failed":     len(errs),
	}).Info("reconcile_complete")
	return errors.Join(errs...)
}

// IsDownloaded reports whether a stored copy exists for track.URL and
// refreshes the matching playlist entry accordingly.
func (o *Orchestrator) IsDownloaded(ctx context.Context, track playlist.Entry) (bool, error) {
	source := strings.TrimSpace(track.URL)
	if source == "" {
		return false, nil
	}
	stored, err := o.store.Lookup(ctx, source)
	if errors.Is(err, blobstore.ErrNotFound) {
		o.playlist.ClearOfflineByURL(source)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	o.playlist.MarkOffline(source, o.scheme.Address(stored.ID))
	return true, nil
}

func (o *Orchestrator) attach(track playlist.Entry, source, id string) (bool, error) {
	matched := o.playlist.MarkOffline(source, o.scheme.Address(id))
	o.render()
	if !matched {
		o.logger.WithFields(logging.TrackFields("download", source, id)).Warn("playlist_entry_missing")
		return false, nil
	}
	o.notifier.Notify(Notice{
		Level:   LevelInfo,
		Action:  "download",
		Title:   track.Title,
		Message: fmt.Sprintf("%q downloaded!", displayTitle(track)),
	})
	return true, nil
}

func (o *Orchestrator) fetch(ctx context.Context, source string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("%w: unexpected status %d", ErrNetwork, resp.StatusCode)
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}
	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = o.defaultContentType
	}
	return payload, contentType, nil
}

func (o *Orchestrator) fail(action string, track playlist.Entry, err error) (bool, error) {
	o.logger.WithError(err).WithFields(logging.TrackFields(action, track.URL, "")).Error(action + "_failed")
	verb := "download"
	if action == "remove" {
		verb = "delete"
	}
	o.notifier.Notify(Notice{
		Level:   LevelError,
		Action:  action,
		Title:   track.Title,
		Message: fmt.Sprintf("Failed to %s music: %v", verb, err),
	})
	return false, err
}

// acquire 登记 key 的在途操作，返回释放函数；已在途时 ok=false。
func (o *Orchestrator) acquire(key string) (func(), bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[key]; busy {
		return nil, false
	}
	o.inflight[key] = struct{}{}
	return func() {
		o.mu.Lock()
		delete(o.inflight, key)
		o.mu.Unlock()
	}, true
}

func isSourceURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// newTrackID 生成 track_<uuidv7>，前缀按时间有序，后缀随机。
func newTrackID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "track_" + uuid.NewString()
	}
	return "track_" + id.String()
}

func displayTitle(track playlist.Entry) string {
	if track.Title != "" {
		return track.Title
	}
	return track.URL
}
