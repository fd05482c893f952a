package routes

import (
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/music-hub/internal/blobstore"
	"github.com/any-hub/music-hub/internal/cacheset"
	"github.com/any-hub/music-hub/internal/library"
	"github.com/any-hub/music-hub/internal/playlist"
	"github.com/any-hub/music-hub/internal/proxy"
)

// Deps 汇总 /-/ 路由依赖的组件，由 main 在启动时注入。
type Deps struct {
	Playlist *playlist.Playlist
	Library  *library.Orchestrator
	Tracks   blobstore.Store
	Cache    *cacheset.Manager
	Proxy    *proxy.Handler
	Inbox    *library.Inbox
	Logger   *logrus.Logger
}

// Register 挂载播放器 API 与诊断接口，需在 server.NewApp 之后调用。
func Register(app *fiber.App, deps Deps) {
	if app == nil {
		return
	}
	if deps.Playlist != nil && deps.Library != nil {
		RegisterPlaylistRoutes(app, deps)
	}
	if deps.Tracks != nil {
		RegisterTrackRoutes(app, deps)
	}
	if deps.Cache != nil {
		RegisterCacheRoutes(app, deps)
	}
	if deps.Inbox != nil {
		app.Get("/-/notifications", func(c fiber.Ctx) error {
			return c.JSON(fiber.Map{"notifications": deps.Inbox.Recent()})
		})
	}
}

func writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}
