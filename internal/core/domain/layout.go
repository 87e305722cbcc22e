package domain

import (
	"path/filepath"
	"strings"
)

const (
	// RigDirName is the name of the internal workspace directory.
	RigDirName = ".rig"

	// CacheDirName is the name of the cache directory.
	CacheDirName = "cache"

	// ArtifactsDirName is the name of the directory artifact cache.
	ArtifactsDirName = "artifacts"

	// PebbleDirName is the name of the pebble artifact cache.
	PebbleDirName = "pebble"

	// OutDirName is the name of the directory holding rule outputs.
	OutDirName = "out"

	// DaemonDirName is the name of the daemon runtime directory.
	DaemonDirName = "daemon"

	// RigFileName is the name of the package configuration file.
	RigFileName = "rig.yaml"

	// WorkFileName is the name of the workspace configuration file.
	WorkFileName = "rig.work.yaml"

	// DaemonSocketName is the name of the daemon Unix socket.
	DaemonSocketName = "rigd.sock"

	// DaemonPIDName is the name of the daemon PID file.
	DaemonPIDName = "rigd.pid"

	// DaemonLogName is the name of the daemon log file.
	DaemonLogName = "rigd.log"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644

	// PrivateFilePerm is the default permission for private files (rw-------).
	PrivateFilePerm = 0o600

	// SocketPerm is the permission of the daemon socket (rw-------).
	SocketPerm = 0o600
)

// DefaultRigPath returns the default root directory for rig metadata.
func DefaultRigPath() string {
	return RigDirName
}

// DefaultArtifactCachePath returns the path of the directory artifact cache.
// It joins .rig, cache and artifacts.
func DefaultArtifactCachePath() string {
	return filepath.Join(RigDirName, CacheDirName, ArtifactsDirName)
}

// DefaultPebbleCachePath returns the path of the pebble artifact cache.
// It joins .rig, cache and pebble.
func DefaultPebbleCachePath() string {
	return filepath.Join(RigDirName, CacheDirName, PebbleDirName)
}

// DefaultOutPath returns the directory rule outputs are written under.
func DefaultOutPath() string {
	return filepath.Join(RigDirName, OutDirName)
}

// RuleOutputPath returns the root relative output directory of a target:
// .rig/out/<base path>/<name>[#flavors].
func RuleOutputPath(t BuildTarget) string {
	name := t.ShortName()
	if t.HasFlavors() {
		name += "#" + strings.Join(t.Flavors(), ",")
	}
	if t.Cell() != "" {
		return filepath.Join(DefaultOutPath(), "cells", t.Cell(), filepath.FromSlash(t.BasePath()), name)
	}
	return filepath.Join(DefaultOutPath(), filepath.FromSlash(t.BasePath()), name)
}

// DaemonSocketPath returns the daemon socket path for a workspace root.
func DaemonSocketPath(root string) string {
	return filepath.Join(root, RigDirName, DaemonDirName, DaemonSocketName)
}

// DaemonPIDPath returns the daemon PID file path for a workspace root.
func DaemonPIDPath(root string) string {
	return filepath.Join(root, RigDirName, DaemonDirName, DaemonPIDName)
}

// DaemonLogPath returns the daemon log path for a workspace root.
func DaemonLogPath(root string) string {
	return filepath.Join(root, RigDirName, DaemonDirName, DaemonLogName)
}
