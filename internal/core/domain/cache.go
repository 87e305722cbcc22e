package domain

// WorkspaceCacheEntry holds a loaded workspace with the config file mtimes it was
// loaded from.
type WorkspaceCacheEntry struct {
	Workspace *Workspace
	Mtimes    map[string]int64 // path -> mtime in UnixNano
}
