package routes

import (
	"errors"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/music-hub/internal/library"
	"github.com/any-hub/music-hub/internal/playlist"
)

type playlistPayload struct {
	Revision uint64           `json:"revision"`
	Entries  []playlist.Entry `json:"entries"`
}

type operationPayload struct {
	OK    bool           `json:"ok"`
	Entry playlist.Entry `json:"entry"`
}

// RegisterPlaylistRoutes 暴露播放列表读取、下载/删除、播放与对账接口。
func RegisterPlaylistRoutes(app *fiber.App, deps Deps) {
	pl := deps.Playlist
	lib := deps.Library

	app.Get("/-/playlist", func(c fiber.Ctx) error {
		entries, revision := pl.Snapshot()
		return c.JSON(playlistPayload{Revision: revision, Entries: entries})
	})

	app.Post("/-/playlist/reconcile", func(c fiber.Ctx) error {
		if err := lib.Reconcile(c.Context(), pl); err != nil {
			logError(deps.Logger, "reconcile", err)
			return writeError(c, fiber.StatusInternalServerError, "reconcile_failed")
		}
		entries, revision := pl.Snapshot()
		return c.JSON(playlistPayload{Revision: revision, Entries: entries})
	})

	app.Get("/-/playlist/:index", func(c fiber.Ctx) error {
		entry, found, err := lookupEntry(c, pl)
		if !found {
			return err
		}
		if _, err := lib.IsDownloaded(c.Context(), entry); err != nil {
			logError(deps.Logger, "is_downloaded", err)
			return writeError(c, statusFor(err), library.Code(err))
		}
		refreshed, _ := pl.Entry(entry.Index)
		return c.JSON(refreshed)
	})

	app.Post("/-/playlist/:index/download", func(c fiber.Ctx) error {
		entry, found, err := lookupEntry(c, pl)
		if !found {
			return err
		}
		ok, err := lib.Download(c.Context(), entry)
		if err != nil {
			return writeError(c, statusFor(err), library.Code(err))
		}
		updated, _ := pl.Entry(entry.Index)
		return c.JSON(operationPayload{OK: ok, Entry: updated})
	})

	app.Delete("/-/playlist/:index/download", func(c fiber.Ctx) error {
		entry, found, err := lookupEntry(c, pl)
		if !found {
			return err
		}
		ok, err := lib.Remove(c.Context(), entry)
		if err != nil {
			return writeError(c, statusFor(err), library.Code(err))
		}
		updated, _ := pl.Entry(entry.Index)
		return c.JSON(operationPayload{OK: ok, Entry: updated})
	})

	if deps.Proxy == nil {
		return
	}
	app.Get("/-/playlist/:index/stream", func(c fiber.Ctx) error {
		entry, found, err := lookupEntry(c, pl)
		if !found {
			return err
		}
		target, err := url.Parse(entry.PlaybackURL())
		if err != nil || target.Scheme == "" {
			return writeError(c, fiber.StatusBadRequest, "invalid_track")
		}
		return deps.Proxy.Serve(c, target)
	})
}

// lookupEntry 解析 :index 并返回条目；found=false 时错误响应已写入，调用方直接返回 err。
func lookupEntry(c fiber.Ctx, pl *playlist.Playlist) (playlist.Entry, bool, error) {
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return playlist.Entry{}, false, writeError(c, fiber.StatusBadRequest, "invalid_index")
	}
	entry, err := pl.Entry(index)
	if err != nil {
		return playlist.Entry{}, false, writeError(c, fiber.StatusNotFound, "track_not_found")
	}
	return entry, true, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, library.ErrInvalidTrack):
		return fiber.StatusBadRequest
	case errors.Is(err, library.ErrBusy):
		return fiber.StatusConflict
	case errors.Is(err, library.ErrNetwork):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func logError(logger *logrus.Logger, action string, err error) {
	if logger == nil {
		return
	}
	logger.WithError(err).WithField("action", action).Error(action + "_failed")
}
