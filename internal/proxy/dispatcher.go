package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/music-hub/internal/blobstore"
	"github.com/any-hub/music-hub/internal/logging"
	"github.com/any-hub/music-hub/internal/offline"
)

// Route 是拦截层对单个请求的分类结果，三者互斥且覆盖全部请求。
type Route string

const (
	// RouteOffline 使用离线地址协议，只在 Blob Store 中解析。
	RouteOffline Route = "offline"
	// RouteCacheFirst 先查当前缓存集合，未命中再回源并尝试写缓存。
	RouteCacheFirst Route = "cache_first"
	// RouteNetwork 直连网络：非 GET/HEAD 请求或原始音频后缀。
	RouteNetwork Route = "network"
)

const (
	HeaderRoute    = "X-Music-Hub-Route"
	HeaderCacheHit = "X-Music-Hub-Cache-Hit"
)

// ErrUnresolvedOfflineID 表示离线地址中的曲目 id 在 Blob Store 中不存在。
// 离线地址不携带原始 URL，因此这类请求不会回退到网络。
var ErrUnresolvedOfflineID = errors.New("offline track id not found")

// ShellCache 是拦截层依赖的缓存集合能力，由 cacheset.Manager 实现。
type ShellCache interface {
	Match(req *http.Request) (*http.Response, bool, error)
	Populate(req *http.Request, resp *http.Response) (*http.Response, error)
	IsExcluded(u *url.URL) bool
}

// TrackReader 是拦截层对 Blob Store 的只读依赖。
type TrackReader interface {
	Get(ctx context.Context, id string) (blobstore.StoredTrack, bool, error)
}

// DispatcherOptions 汇总 Dispatcher 的依赖。
type DispatcherOptions struct {
	Scheme             offline.Scheme
	Tracks             TrackReader
	Cache              ShellCache
	Next               http.RoundTripper
	Logger             *logrus.Logger
	DefaultContentType string
}

// Dispatcher 位于应用与网络之间，实现 http.RoundTripper：
// 离线地址 → Blob Store；普通资源 → 缓存优先再回源；其余 → 直连网络。
type Dispatcher struct {
	scheme             offline.Scheme
	tracks             TrackReader
	cache              ShellCache
	next               http.RoundTripper
	logger             *logrus.Logger
	defaultContentType string
}

// NewDispatcher 构造拦截器，Tracks/Cache 不能为空，Next 缺省为 http.DefaultTransport。
func NewDispatcher(opts DispatcherOptions) (*Dispatcher, error) {
	if opts.Tracks == nil {
		return nil, errors.New("track store is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("shell cache is required")
	}
	next := opts.Next
	if next == nil {
		next = http.DefaultTransport
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
	return &Dispatcher{
		scheme:             scheme,
		tracks:             opts.Tracks,
		cache:              opts.Cache,
		next:               next,
		logger:             logger,
		defaultContentType: contentType,
	}, nil
}

// Scheme 返回当前离线地址协议。
func (d *Dispatcher) Scheme() offline.Scheme {
	return d.scheme
}

// Classify 对请求做全量、互斥的路由分类。
func (d *Dispatcher) Classify(req *http.Request) Route {
	if d.scheme.Matches(req.URL) {
		return RouteOffline
	}
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return RouteNetwork
	}
	if d.cache.IsExcluded(req.URL) {
		return RouteNetwork
	}
	return RouteCacheFirst
}

// RoundTrip 实现 http.RoundTripper。离线分支处理完毕后立即返回，绝不进入缓存或网络。
func (d *Dispatcher) RoundTrip(req *http.Request) (*http.Response, error) {
	route := d.Classify(req)
	switch route {
	case RouteOffline:
		return d.serveOffline(req)
	case RouteNetwork:
		resp, err := d.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		return stamp(resp, route, false), nil
	default:
		return d.serveCacheFirst(req)
	}
}

// ResolveOffline 解析离线地址并读取曲目，未找到时返回 ErrUnresolvedOfflineID。
func (d *Dispatcher) ResolveOffline(ctx context.Context, u *url.URL) (blobstore.StoredTrack, error) {
	id, err := d.scheme.TrackID(u)
	if err != nil {
		return blobstore.StoredTrack{}, fmt.Errorf("%w: %v", ErrUnresolvedOfflineID, err)
	}
	track, ok, err := d.tracks.Get(ctx, id)
	if err != nil {
		return blobstore.StoredTrack{}, err
	}
	if !ok {
		return blobstore.StoredTrack{}, fmt.Errorf("%w: %s", ErrUnresolvedOfflineID, id)
	}
	return track, nil
}

func (d *Dispatcher) serveOffline(req *http.Request) (*http.Response, error) {
	track, err := d.ResolveOffline(req.Context(), req.URL)
	if err != nil {
		if errors.Is(err, ErrUnresolvedOfflineID) {
			d.logger.WithError(err).
				WithFields(logging.RequestFields(string(RouteOffline), req.Method, req.URL.String(), false)).
				Warn("offline_track_not_found")
			return stamp(notFoundResponse(req), RouteOffline, false), nil
		}
		return nil, err
	}

	contentType := track.ContentType
	if contentType == "" {
		contentType = d.defaultContentType
	}
	header := make(http.Header)
	header.Set("Content-Type", contentType)
	header.Set("Content-Length", strconv.Itoa(len(track.Payload)))
	if !track.CreatedAt.IsZero() {
		header.Set("Last-Modified", track.CreatedAt.UTC().Format(http.TimeFormat))
	}

	var body io.ReadCloser = io.NopCloser(bytes.NewReader(track.Payload))
	if req.Method == http.MethodHead {
		body = http.NoBody
	}
	resp := &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          body,
		ContentLength: int64(len(track.Payload)),
		Request:       req,
	}
	return stamp(resp, RouteOffline, true), nil
}

func (d *Dispatcher) serveCacheFirst(req *http.Request) (*http.Response, error) {
	cached, ok, err := d.cache.Match(req)
	switch {
	case err != nil:
		d.logger.WithError(err).
			WithFields(logging.RequestFields(string(RouteCacheFirst), req.Method, req.URL.String(), false)).
			Warn("cache_get_failed")
	case ok:
		return stamp(cached, RouteCacheFirst, true), nil
	}

	resp, err := d.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	resp, err = d.cache.Populate(req, resp)
	if err != nil {
		return nil, err
	}
	return stamp(resp, RouteCacheFirst, false), nil
}

func notFoundResponse(req *http.Request) *http.Response {
	body := []byte(`{"error":"offline_track_not_found"}`)
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("Content-Length", strconv.Itoa(len(body)))
	return &http.Response{
		Status:        "404 Not Found",
		StatusCode:    http.StatusNotFound,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

func stamp(resp *http.Response, route Route, hit bool) *http.Response {
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	resp.Header.Set(HeaderRoute, string(route))
	resp.Header.Set(HeaderCacheHit, strconv.FormatBool(hit))
	return resp
}
