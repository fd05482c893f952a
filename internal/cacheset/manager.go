package cacheset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/music-hub/internal/cache"
)

// Options 描述 Manager 的依赖与静态配置。
type Options struct {
	Store            cache.Store
	Client           *http.Client
	Logger           *logrus.Logger
	Upstream         *url.URL
	Version          Version
	Manifest         []string
	ExcludedSuffixes []string
}

// Manager 管理版本化的外壳资源缓存：安装、激活（淘汰旧代际）、命中读取与回源写入。
// Install 与 Activate 互斥执行，Activate 不会删除进行中安装的临时集合。
type Manager struct {
	// lifecycle 串行化 Install/Activate。
	lifecycle sync.Mutex

	store    cache.Store
	client   *http.Client
	logger   *logrus.Logger
	upstream *url.URL
	version  Version
	manifest []string
	excluded []string
}

// NewManager 校验依赖并构造 Manager。
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("cache store is required")
	}
	if opts.Upstream == nil || opts.Upstream.Host == "" {
		return nil, errors.New("shell upstream is required")
	}
	if strings.TrimSpace(string(opts.Version)) == "" {
		return nil, errors.New("cache version is required")
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	excluded := make([]string, 0, len(opts.ExcludedSuffixes))
	for _, suffix := range opts.ExcludedSuffixes {
		if suffix = strings.ToLower(strings.TrimSpace(suffix)); suffix != "" {
			excluded = append(excluded, suffix)
		}
	}
	return &Manager{
		store:    opts.Store,
		client:   client,
		logger:   logger,
		upstream: opts.Upstream,
		version:  opts.Version,
		manifest: append([]string(nil), opts.Manifest...),
		excluded: excluded,
	}, nil
}

// Version 返回当前代际标签。
func (m *Manager) Version() Version {
	return m.version
}

// Current 返回当前唯一有效的集合名称。
func (m *Manager) Current() string {
	return m.version.SetName()
}

// Upstream 返回外壳资源的同源地址。
func (m *Manager) Upstream() *url.URL {
	return m.upstream
}

// Sets 列出磁盘上所有集合，供诊断接口使用。
func (m *Manager) Sets(ctx context.Context) ([]string, error) {
	return m.store.Sets(ctx)
}

// Install 拉取清单内的全部资源写入临时集合，全部成功后整体替换当前集合。
// 任意条目失败都会丢弃临时集合并返回错误，由调用方在下次启动时重试。
func (m *Manager) Install(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	started := time.Now()
	if len(m.manifest) == 0 {
		m.logger.WithFields(logrus.Fields{
			"action":    "cache_install",
			"cache_set": m.Current(),
			"assets":    0,
		}).Info("cache_install_skipped")
		return nil
	}

	staging := "." + m.Current() + "-staging-" + uuid.NewString()
	for _, entry := range m.manifest {
		target, err := m.resolveManifestEntry(entry)
		if err != nil {
			m.discard(ctx, staging)
			return fmt.Errorf("manifest entry %q: %w", entry, err)
		}
		if err := m.installAsset(ctx, staging, target); err != nil {
			m.discard(ctx, staging)
			m.logger.WithError(err).WithFields(logrus.Fields{
				"action":    "cache_install",
				"cache_set": m.Current(),
				"asset":     target.String(),
			}).Error("cache_install_failed")
			return fmt.Errorf("install %s: %w", target.String(), err)
		}
	}

	if err := m.store.RenameSet(ctx, staging, m.Current()); err != nil {
		m.discard(ctx, staging)
		return fmt.Errorf("promote cache set: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"action":     "cache_install",
		"cache_set":  m.Current(),
		"assets":     len(m.manifest),
		"elapsed_ms": time.Since(started).Milliseconds(),
	}).Info("cache_install_complete")
	return nil
}

// Activate 删除所有不属于当前版本的集合，返回被删除的集合名称。
func (m *Manager) Activate(ctx context.Context) ([]string, error) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	sets, err := m.store.Sets(ctx)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, set := range sets {
		if m.version.Owns(set) {
			continue
		}
		if err := m.store.RemoveSet(ctx, set); err != nil {
			return removed, fmt.Errorf("remove cache set %s: %w", set, err)
		}
		removed = append(removed, set)
	}
	m.logger.WithFields(logrus.Fields{
		"action":    "cache_activate",
		"cache_set": m.Current(),
		"removed":   removed,
	}).Info("cache_activate_complete")
	return removed, nil
}

// Match 在当前集合中查找请求，命中时原样返回缓存正文，不做任何再验证。
func (m *Manager) Match(req *http.Request) (*http.Response, bool, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return nil, false, nil
	}
	result, err := m.store.Get(req.Context(), buildLocator(m.Current(), req.URL))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	header := make(http.Header)
	if result.Entry.ContentType != "" {
		header.Set("Content-Type", result.Entry.ContentType)
	}
	header.Set("Content-Length", strconv.FormatInt(result.Entry.SizeBytes, 10))
	header.Set("Last-Modified", result.Entry.ModTime.UTC().Format(http.TimeFormat))

	resp := &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          result.Reader,
		ContentLength: result.Entry.SizeBytes,
		Request:       req,
	}
	if req.Method == http.MethodHead {
		result.Reader.Close()
		resp.Body = http.NoBody
	}
	return resp, true, nil
}

// IsExcluded 判断 URL 是否命中排除后缀（原始音频），这类请求既不读也不写缓存。
func (m *Manager) IsExcluded(u *url.URL) bool {
	if u == nil {
		return false
	}
	p := strings.ToLower(u.Path)
	for _, suffix := range m.excluded {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

// ShouldStore 判断一次网络响应是否可以写入当前集合：仅 GET、非排除后缀、
// 状态 200 且同源。重定向由 http.Client 逐跳发起，3xx 本身不入缓存，
// 最终的 200 记在它自己的 URL 下。
func (m *Manager) ShouldStore(req *http.Request, resp *http.Response) bool {
	if req == nil || resp == nil {
		return false
	}
	if req.Method != http.MethodGet || m.IsExcluded(req.URL) {
		return false
	}
	if resp.StatusCode != http.StatusOK {
		return false
	}
	return m.sameOrigin(req.URL)
}

// Populate 在返回给调用方之前把响应副本写入当前集合。写缓存失败只记录日志，
// 响应本身仍然返回。
func (m *Manager) Populate(req *http.Request, resp *http.Response) (*http.Response, error) {
	if !m.ShouldStore(req, resp) {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))

	opts := cache.PutOptions{
		ContentType: resp.Header.Get("Content-Type"),
		ModTime:     extractModTime(resp.Header),
	}
	if _, err := m.store.Put(req.Context(), buildLocator(m.Current(), req.URL), bytes.NewReader(body), opts); err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"action":    "cache_populate",
			"cache_set": m.Current(),
			"target":    req.URL.String(),
		}).Warn("cache_write_failed")
	}
	return resp, nil
}

func (m *Manager) sameOrigin(u *url.URL) bool {
	return u != nil &&
		strings.EqualFold(u.Scheme, m.upstream.Scheme) &&
		strings.EqualFold(u.Host, m.upstream.Host)
}

func (m *Manager) resolveManifestEntry(entry string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(entry))
	if err != nil {
		return nil, err
	}
	target := m.upstream.ResolveReference(ref)
	if !m.sameOrigin(target) {
		return nil, fmt.Errorf("manifest entry must be same-origin: %s", target.String())
	}
	return target, nil
}

func (m *Manager) installAsset(ctx context.Context, set string, target *url.URL) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	opts := cache.PutOptions{
		ContentType: resp.Header.Get("Content-Type"),
		ModTime:     extractModTime(resp.Header),
	}
	_, err = m.store.Put(ctx, buildLocator(set, target), resp.Body, opts)
	return err
}

func (m *Manager) discard(ctx context.Context, set string) {
	if err := m.store.RemoveSet(context.WithoutCancel(ctx), set); err != nil {
		m.logger.WithError(err).WithField("cache_set", set).Warn("cache_staging_cleanup_failed")
	}
}

func extractModTime(header http.Header) time.Time {
	if last := header.Get("Last-Modified"); last != "" {
		if parsed, err := http.ParseTime(last); err == nil {
			return parsed.UTC()
		}
	}
	return time.Now().UTC()
}
