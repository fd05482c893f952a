package library

import "errors"

var (
	// ErrInvalidTrack 表示曲目缺少可用的源地址，或离线地址不属于保留协议。
	ErrInvalidTrack = errors.New("invalid track")
	// ErrNetwork 表示拉取源地址失败（传输错误或非 2xx 状态）。
	ErrNetwork = errors.New("track download failed")
	// ErrStoreWrite 表示 Blob Store 读写失败。
	ErrStoreWrite = errors.New("track store write failed")
	// ErrBusy 表示同一源地址已有下载或删除在进行中。
	ErrBusy = errors.New("track operation already in flight")
)

// Code 把错误映射为 HTTP JSON 错误码。
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTrack):
		return "invalid_track"
	case errors.Is(err, ErrBusy):
		return "track_busy"
	case errors.Is(err, ErrNetwork):
		return "network_error"
	case errors.Is(err, ErrStoreWrite):
		return "store_write_failed"
	default:
		return "internal_error"
	}
}
