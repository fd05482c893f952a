// Package cache defines the disk-backed store that holds versioned cache sets
// of shell-asset responses under StoragePath/cache/<set>/<path>.body. Writes go
// through a temp file + rename so a reader never observes a partial body, and
// each body carries a small JSON sidecar with the response content type. Whole
// sets can be enumerated, renamed and removed, which is what generation-based
// eviction in package cacheset builds on.
package cache
