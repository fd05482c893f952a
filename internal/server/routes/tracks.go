package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/music-hub/internal/blobstore"
)

// RegisterTrackRoutes 暴露 Blob Store 清单与离线地址访问。
func RegisterTrackRoutes(app *fiber.App, deps Deps) {
	app.Get("/-/tracks", func(c fiber.Ctx) error {
		tracks, err := deps.Tracks.List(c.Context())
		if err != nil {
			logError(deps.Logger, "list_tracks", err)
			return writeError(c, fiber.StatusInternalServerError, "store_read_failed")
		}
		if tracks == nil {
			tracks = []blobstore.StoredTrack{}
		}
		var total int64
		for _, track := range tracks {
			total += track.Size
		}
		return c.JSON(fiber.Map{
			"tracks":      tracks,
			"count":       len(tracks),
			"total_bytes": total,
		})
	})

	if deps.Proxy != nil {
		app.Get("/-/offline/:id", deps.Proxy.HandleOffline)
	}
}
