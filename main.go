package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"

	"github.com/gofiber/fiber/v3"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/music-hub/internal/blobstore"
	"github.com/any-hub/music-hub/internal/cache"
	"github.com/any-hub/music-hub/internal/cacheset"
	"github.com/any-hub/music-hub/internal/config"
	"github.com/any-hub/music-hub/internal/library"
	"github.com/any-hub/music-hub/internal/logging"
	"github.com/any-hub/music-hub/internal/offline"
	"github.com/any-hub/music-hub/internal/playlist"
	"github.com/any-hub/music-hub/internal/proxy"
	"github.com/any-hub/music-hub/internal/server"
	"github.com/any-hub/music-hub/internal/server/routes"
	"github.com/any-hub/music-hub/internal/version"
)

const configEnvVar = "MUSIC_HUB_CONFIG"

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stdErr, "读取 .env 失败: %v\n", err)
	}
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["tracks"] = len(cfg.Tracks)
		fields["shell_upstream"] = cfg.Shell.Upstream
		fields["shell_version"] = cfg.Shell.Version
		fields["manifest"] = len(cfg.Shell.Manifest)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	svc, err := newServices(context.Background(), cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}
	defer svc.Close()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["tracks"] = len(cfg.Tracks)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["cache_set"] = svc.cache.Current()
	fields["offline_scheme"] = svc.scheme.String()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, svc.app, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// services 持有一次进程生命周期内共享的组件。
type services struct {
	app      *fiber.App
	store    blobstore.Store
	cache    *cacheset.Manager
	playlist *playlist.Playlist
	scheme   offline.Scheme
}

func (r *services) Close() error {
	if r == nil || r.store == nil {
		return nil
	}
	return r.store.Close()
}

// newServices 按“Blob Store → 缓存集合安装/激活 → 拦截层 → 播放列表对账 → Fiber”
// 的顺序组装服务，对账在首次渲染前完成。
func newServices(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*services, error) {
	store, err := blobstore.NewSQLiteStore(cfg.EffectiveDatabasePath())
	if err != nil {
		return nil, fmt.Errorf("初始化曲目库失败: %w", err)
	}

	svc, err := assemble(ctx, cfg, logger, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	return svc, nil
}

func assemble(ctx context.Context, cfg *config.Config, logger *logrus.Logger, store blobstore.Store) (*services, error) {
	cacheStore, err := cache.NewStore(cfg.CacheStoragePath())
	if err != nil {
		return nil, fmt.Errorf("初始化缓存目录失败: %w", err)
	}

	upstream, err := url.Parse(cfg.Shell.Upstream)
	if err != nil {
		return nil, fmt.Errorf("解析 Shell.Upstream 失败: %w", err)
	}

	manager, err := cacheset.NewManager(cacheset.Options{
		Store:            cacheStore,
		Client:           server.NewUpstreamClient(cfg),
		Logger:           logger,
		Upstream:         upstream,
		Version:          cacheset.Version(cfg.Shell.Version),
		Manifest:         cfg.Shell.Manifest,
		ExcludedSuffixes: cfg.Shell.ExcludedSuffixes,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化缓存集合失败: %w", err)
	}

	// 安装失败不阻塞启动：旧集合保持有效，下次启动再重试。
	if err := manager.Install(ctx); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"action":    "cache_install",
			"cache_set": manager.Current(),
		}).Warn("cache_install_deferred")
	} else if _, err := manager.Activate(ctx); err != nil {
		logger.WithError(err).WithField("action", "cache_activate").Warn("cache_activate_failed")
	}

	scheme := offline.NewScheme(cfg.Global.OfflineScheme)
	dispatcher, err := proxy.NewDispatcher(proxy.DispatcherOptions{
		Scheme:             scheme,
		Tracks:             store,
		Cache:              manager,
		Next:               server.NewTransport(),
		Logger:             logger,
		DefaultContentType: cfg.Global.DefaultContentType,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化拦截层失败: %w", err)
	}
	handler := proxy.NewHandler(
		dispatcher,
		upstream,
		cfg.Global.UpstreamTimeout.DurationValue(),
		cfg.Global.DownloadTimeout.DurationValue(),
		logger,
	)

	pl := playlist.New(cfg.Tracks)
	inbox := library.NewInbox(0, logger)
	orch, err := library.New(library.Options{
		Store:              store,
		Client:             server.NewDownloadClient(cfg, dispatcher),
		Playlist:           pl,
		Render:             pl.Render,
		Notifier:           inbox,
		Logger:             logger,
		Scheme:             scheme,
		DefaultContentType: cfg.Global.DefaultContentType,
		DefaultCover:       cfg.Global.DefaultCover,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化下载编排失败: %w", err)
	}
	if err := orch.Reconcile(ctx, pl); err != nil {
		logger.WithError(err).WithField("action", "reconcile").Warn("reconcile_incomplete")
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Proxy:      handler,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		return nil, err
	}
	routes.Register(app, routes.Deps{
		Playlist: pl,
		Library:  orch,
		Tracks:   store,
		Cache:    manager,
		Proxy:    handler,
		Inbox:    inbox,
		Logger:   logger,
	})

	return &services{
		app:      app,
		store:    store,
		cache:    manager,
		playlist: pl,
		scheme:   scheme,
	}, nil
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("music-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 MUSIC_HUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv(configEnvVar)
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(cfg *config.Config, app *fiber.App, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
