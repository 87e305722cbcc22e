package domain

import (
	"path/filepath"
	"strings"
)

// SourcePathKind distinguishes plain files from outputs of other rules.
type SourcePathKind uint8

const (
	// PathSource is a file or directory relative to the workspace root.
	PathSource SourcePathKind = iota
	// BuildTargetSource is a path inside the output directory of another rule.
	BuildTargetSource
)

// SourcePath is an input reference of a rule.
type SourcePath struct {
	kind   SourcePathKind
	path   string
	target BuildTarget
}

// NewPathSourcePath references a file or directory relative to the workspace root.
func NewPathSourcePath(path string) SourcePath {
	return SourcePath{kind: PathSource, path: filepath.ToSlash(filepath.Clean(path))}
}

// NewBuildTargetSourcePath references rel inside the output of target. An empty rel
// references the whole output directory.
func NewBuildTargetSourcePath(target BuildTarget, rel string) SourcePath {
	if rel != "" {
		rel = filepath.ToSlash(filepath.Clean(rel))
	}
	return SourcePath{kind: BuildTargetSource, path: rel, target: target}
}

// Kind returns the kind of the source path.
func (s SourcePath) Kind() SourcePathKind { return s.kind }

// IsBuildTarget reports whether the path is produced by another rule.
func (s SourcePath) IsBuildTarget() bool { return s.kind == BuildTargetSource }

// Target returns the producing target of a BuildTargetSource.
func (s SourcePath) Target() BuildTarget { return s.target }

// RelativePath returns the root-relative path for a PathSource and the output-relative
// path for a BuildTargetSource.
func (s SourcePath) RelativePath() string { return s.path }

// RootRelative returns the path relative to the workspace root.
func (s SourcePath) RootRelative() string {
	if s.kind == PathSource {
		return s.path
	}
	if s.path == "" {
		return RuleOutputPath(s.target)
	}
	return filepath.Join(RuleOutputPath(s.target), s.path)
}

// Resolve returns the absolute path of the source under root.
func (s SourcePath) Resolve(root string) string {
	return filepath.Join(root, s.RootRelative())
}

func (s SourcePath) String() string {
	if s.kind == PathSource {
		return s.path
	}
	if s.path == "" {
		return s.target.String()
	}
	return s.target.String() + "[" + s.path + "]"
}

// ParseSourcePath interprets a rule attribute value. Values that look like build targets
// become BuildTargetSource references, everything else is a path relative to basePath.
func ParseSourcePath(value, basePath string) (SourcePath, error) {
	if strings.HasPrefix(value, nameSeparator) || strings.Contains(value, cellSeparator) {
		t, err := ParseRelativeBuildTarget(value, basePath)
		if err != nil {
			return SourcePath{}, err
		}
		return NewBuildTargetSourcePath(t, ""), nil
	}
	return NewPathSourcePath(filepath.Join(basePath, value)), nil
}
