package routes

import (
	"github.com/gofiber/fiber/v3"
)

type cachePayload struct {
	Version  string   `json:"version"`
	Current  string   `json:"current"`
	Upstream string   `json:"upstream"`
	Sets     []string `json:"sets"`
	Removed  []string `json:"removed,omitempty"`
}

// RegisterCacheRoutes 暴露缓存集合诊断与手动安装接口。
func RegisterCacheRoutes(app *fiber.App, deps Deps) {
	manager := deps.Cache

	app.Get("/-/cache", func(c fiber.Ctx) error {
		sets, err := manager.Sets(c.Context())
		if err != nil {
			logError(deps.Logger, "cache_sets", err)
			return writeError(c, fiber.StatusInternalServerError, "cache_read_failed")
		}
		return c.JSON(cachePayload{
			Version:  string(manager.Version()),
			Current:  manager.Current(),
			Upstream: manager.Upstream().String(),
			Sets:     nonNil(sets),
		})
	})

	app.Post("/-/cache/install", func(c fiber.Ctx) error {
		if err := manager.Install(c.Context()); err != nil {
			logError(deps.Logger, "cache_install", err)
			return writeError(c, fiber.StatusBadGateway, "cache_install_failed")
		}
		removed, err := manager.Activate(c.Context())
		if err != nil {
			logError(deps.Logger, "cache_activate", err)
			return writeError(c, fiber.StatusInternalServerError, "cache_activate_failed")
		}
		sets, err := manager.Sets(c.Context())
		if err != nil {
			logError(deps.Logger, "cache_sets", err)
			return writeError(c, fiber.StatusInternalServerError, "cache_read_failed")
		}
		return c.JSON(cachePayload{
			Version:  string(manager.Version()),
			Current:  manager.Current(),
			Upstream: manager.Upstream().String(),
			Sets:     nonNil(sets),
			Removed:  removed,
		})
	})
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
