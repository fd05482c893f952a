// Package blobstore keeps downloaded audio payloads together with the display
// metadata copied at download time. Records are keyed by an opaque track id and
// carry the source URL as a unique natural key, so "is this track stored" is a
// single indexed lookup. The SQLite backend stores payloads inline as BLOBs;
// this is a personal-library-scale store, not a general object store.
package blobstore
