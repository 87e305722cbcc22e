// Package config loads rig workspaces: the target graph and the engine configuration.
package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/rig/internal/rules"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Loader implements ports.ConfigLoader using YAML files.
type Loader struct {
	Logger   ports.Logger
	FS       FileSystem
	Registry *rules.Registry
	// Resolver expands glob patterns of source attributes. Nil keeps them as written.
	Resolver ports.InputResolver
}

// sourceAttrs are the list attributes whose path entries may be glob patterns.
var sourceAttrs = []string{"srcs"}

var _ ports.ConfigLoader = (*Loader)(nil)

// NewLoader creates a Loader over the real filesystem with the built-in rule types.
func NewLoader(logger ports.Logger, resolver ports.InputResolver) *Loader {
	return &Loader{Logger: logger, FS: NewOSFS(), Registry: rules.DefaultRegistry(), Resolver: resolver}
}

// Mode represents the configuration mode of a workspace.
type Mode string

const (
	// ModeWorkspace indicates a rig.work.yaml with package rig.yaml files.
	ModeWorkspace Mode = "workspace"
	// ModeStandalone indicates a single rig.yaml.
	ModeStandalone Mode = "standalone"
)

// Load finds the configuration above cwd and returns the workspace it describes.
// Implicit dependencies are annotated from the rule descriptions.
func (l *Loader) Load(cwd string) (*domain.Workspace, error) {
	configPath, mode, err := l.findConfiguration(cwd)
	if err != nil {
		return nil, err
	}

	var ws *domain.Workspace
	switch mode {
	case ModeStandalone:
		ws, err = l.loadRigfile(configPath)
	case ModeWorkspace:
		ws, err = l.loadWorkfile(configPath)
	default:
		return nil, zerr.With(domain.ErrConfigNotFound, "mode", mode)
	}
	if err != nil {
		return nil, err
	}

	if err := l.Registry.AnnotateImplicitDeps(ws.Graph); err != nil {
		return nil, err
	}
	return ws, nil
}

// DiscoverRoot walks up from cwd to the directory holding the workspace configuration.
func (l *Loader) DiscoverRoot(cwd string) (string, error) {
	configPath, mode, err := l.findConfiguration(cwd)
	if err != nil {
		return "", err
	}
	root := filepath.Dir(configPath)
	if mode == ModeWorkspace {
		var workfile Workfile
		if err := l.readAndUnmarshalYAML(configPath, &workfile); err != nil {
			return "", err
		}
		root = resolveRoot(configPath, workfile.Root)
	}
	return root, nil
}

// DiscoverConfigPaths returns every configuration file Load would read, with its
// modification time in UnixNano.
func (l *Loader) DiscoverConfigPaths(cwd string) (map[string]int64, error) {
	configPath, mode, err := l.findConfiguration(cwd)
	if err != nil {
		return nil, err
	}

	paths := []string{configPath}
	if mode == ModeWorkspace {
		var workfile Workfile
		if err := l.readAndUnmarshalYAML(configPath, &workfile); err != nil {
			return nil, err
		}
		root := resolveRoot(configPath, workfile.Root)
		pkgPaths, err := l.resolvePackagePaths(root, workfile.Packages)
		if err != nil {
			return nil, err
		}
		for _, p := range pkgPaths {
			rigfile := filepath.Join(p, domain.RigFileName)
			if _, err := l.FS.Stat(rigfile); err == nil {
				paths = append(paths, rigfile)
			}
		}
	}

	mtimes := make(map[string]int64, len(paths))
	for _, p := range paths {
		info, err := l.FS.Stat(p)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrConfigReadFailed.Error()), "path", p)
		}
		mtimes[p] = info.ModTime().UnixNano()
	}
	return mtimes, nil
}

func (l *Loader) findConfiguration(cwd string) (string, Mode, error) {
	currentDir := cwd
	var standaloneCandidate string

	for {
		workfilePath := filepath.Join(currentDir, domain.WorkFileName)
		if _, err := l.FS.Stat(workfilePath); err == nil {
			return workfilePath, ModeWorkspace, nil
		}

		if standaloneCandidate == "" {
			rigfilePath := filepath.Join(currentDir, domain.RigFileName)
			if _, err := l.FS.Stat(rigfilePath); err == nil {
				standaloneCandidate = rigfilePath
			}
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			break
		}
		currentDir = parentDir
	}

	if standaloneCandidate != "" {
		return standaloneCandidate, ModeStandalone, nil
	}

	return "", "", zerr.With(domain.ErrConfigNotFound, "cwd", cwd)
}

func (l *Loader) loadRigfile(configPath string) (*domain.Workspace, error) {
	var rigfile Rigfile
	if err := l.readAndUnmarshalYAML(configPath, &rigfile); err != nil {
		return nil, err
	}

	root := resolveRoot(configPath, rigfile.Root)
	g := domain.NewTargetGraph()
	g.SetRoot(root)

	basePath, err := packageBasePath(root, filepath.Dir(configPath))
	if err != nil {
		return nil, err
	}
	if err := l.addPackageTargets(g, &rigfile, basePath); err != nil {
		return nil, err
	}

	cfg, err := buildConfig(rigfile.Config)
	if err != nil {
		return nil, err
	}
	return &domain.Workspace{Root: root, Graph: g, Config: cfg}, nil
}

func (l *Loader) loadWorkfile(configPath string) (*domain.Workspace, error) {
	var workfile Workfile
	if err := l.readAndUnmarshalYAML(configPath, &workfile); err != nil {
		return nil, err
	}

	root := resolveRoot(configPath, workfile.Root)
	g := domain.NewTargetGraph()
	g.SetRoot(root)

	pkgPaths, err := l.resolvePackagePaths(root, workfile.Packages)
	if err != nil {
		return nil, err
	}

	for _, pkgPath := range pkgPaths {
		if err := l.processPackage(g, root, pkgPath); err != nil {
			return nil, err
		}
	}

	cfg, err := buildConfig(workfile.Config)
	if err != nil {
		return nil, err
	}
	return &domain.Workspace{Root: root, Graph: g, Config: cfg}, nil
}

func (l *Loader) resolvePackagePaths(root string, patterns []string) ([]string, error) {
	pkgPaths := make(map[string]struct{})

	for _, pattern := range patterns {
		matches, err := l.FS.Glob(filepath.Join(root, pattern))
		if err != nil {
			return nil, zerr.Wrap(err, "glob pattern failed: "+pattern)
		}
		for _, match := range matches {
			pkgPaths[filepath.Clean(match)] = struct{}{}
		}
	}

	sorted := make([]string, 0, len(pkgPaths))
	for p := range pkgPaths {
		sorted = append(sorted, p)
	}
	slices.Sort(sorted)
	return sorted, nil
}

func (l *Loader) processPackage(g *domain.TargetGraph, root, pkgPath string) error {
	isDir, err := l.FS.IsDir(pkgPath)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrConfigReadFailed.Error()), "path", pkgPath)
	}
	if !isDir {
		return nil
	}

	basePath, err := packageBasePath(root, pkgPath)
	if err != nil {
		return err
	}

	rigfilePath := filepath.Join(pkgPath, domain.RigFileName)
	if _, statErr := l.FS.Stat(rigfilePath); statErr != nil {
		l.Logger.Warn(fmt.Sprintf("%s missing in package %s, skipping", domain.RigFileName, basePath))
		return nil
	}

	var rigfile Rigfile
	if err := l.readAndUnmarshalYAML(rigfilePath, &rigfile); err != nil {
		return zerr.With(err, "package", basePath)
	}
	if rigfile.Root != "" {
		l.Logger.Warn(fmt.Sprintf("'root' defined in %s is ignored in workspace mode", basePath))
	}
	if len(rigfile.Config) > 0 {
		l.Logger.Warn(fmt.Sprintf("'config' defined in %s is ignored in workspace mode", basePath))
	}

	return l.addPackageTargets(g, &rigfile, basePath)
}

func (l *Loader) addPackageTargets(g *domain.TargetGraph, rigfile *Rigfile, basePath string) error {
	names := make([]string, 0, len(rigfile.Targets))
	for name := range rigfile.Targets {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		node, err := buildNode(name, rigfile.Targets[name], basePath)
		if err != nil {
			return err
		}
		if err := l.expandSources(node, g.Root()); err != nil {
			return zerr.With(err, "target", node.Target.String())
		}
		if err := g.AddNode(node); err != nil {
			return err
		}
	}
	return nil
}

// expandSources replaces glob patterns of the source attributes of node by the
// package relative files they match. Build target references are kept.
func (l *Loader) expandSources(node *domain.TargetNode, root string) error {
	if l.Resolver == nil {
		return nil
	}
	pkgDir := filepath.Join(root, filepath.FromSlash(node.Target.BasePath()))
	for _, attr := range sourceAttrs {
		if !node.Attrs.Has(attr) {
			continue
		}
		values, err := node.Attrs.Strings(attr)
		if err != nil {
			return err
		}
		var targets, paths []string
		for _, v := range values {
			if strings.HasPrefix(v, "//") || strings.HasPrefix(v, ":") {
				targets = append(targets, v)
			} else {
				paths = append(paths, v)
			}
		}
		resolved, err := l.Resolver.ResolveInputs(paths, pkgDir)
		if err != nil {
			return zerr.With(err, "attribute", attr)
		}
		expanded := make([]any, 0, len(targets)+len(resolved))
		for _, v := range append(targets, resolved...) {
			expanded = append(expanded, v)
		}
		node.Attrs[attr] = expanded
	}
	return nil
}

func buildNode(name string, dto *TargetDTO, basePath string) (*domain.TargetNode, error) {
	if strings.ContainsAny(name, ":#/") {
		return nil, zerr.With(domain.ErrInvalidBuildTarget, "target_name", name)
	}
	target, err := domain.ParseRelativeBuildTarget(":"+name, basePath)
	if err != nil {
		return nil, err
	}
	if dto == nil || dto.Rule == "" {
		return nil, zerr.With(zerr.With(domain.ErrMissingAttribute, "attribute", "rule"), "target", target.String())
	}

	deps, err := parseTargets(dto.Deps, basePath)
	if err != nil {
		return nil, zerr.With(err, "target", target.String())
	}
	implicit, err := parseTargets(dto.ImplicitDeps, basePath)
	if err != nil {
		return nil, zerr.With(err, "target", target.String())
	}

	return &domain.TargetNode{
		Target:       target,
		RuleType:     dto.Rule,
		Deps:         deps,
		ImplicitDeps: implicit,
		Attrs:        domain.Attributes(dto.Attrs),
	}, nil
}

func parseTargets(values []string, basePath string) ([]domain.BuildTarget, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]domain.BuildTarget, 0, len(values))
	for _, v := range values {
		t, err := domain.ParseRelativeBuildTarget(v, basePath)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// buildConfig flattens the YAML config block into string sections. Lists become
// space separated values.
func buildConfig(raw map[string]map[string]any) (domain.Config, error) {
	sections := make(map[string]map[string]string, len(raw))
	for section, values := range raw {
		out := make(map[string]string, len(values))
		for key, v := range values {
			s, err := configValue(v)
			if err != nil {
				return domain.Config{}, zerr.With(zerr.With(err, "section", section), "key", key)
			}
			out[key] = s
		}
		sections[section] = out
	}
	return domain.NewConfig(sections), nil
}

func configValue(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case bool, int, int64, float64:
		return fmt.Sprint(val), nil
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			s, err := configValue(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, " "), nil
	default:
		return "", domain.ErrInvalidConfigValue
	}
}

func packageBasePath(root, dir string) (string, error) {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", zerr.With(zerr.With(domain.ErrConfigNotFound, "package", dir), "root", root)
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel), nil
}

func resolveRoot(configPath, configuredRoot string) string {
	configDir := filepath.Dir(configPath)
	if configuredRoot == "" {
		return filepath.Clean(configDir)
	}
	if filepath.IsAbs(configuredRoot) {
		return filepath.Clean(configuredRoot)
	}
	return filepath.Clean(filepath.Join(configDir, configuredRoot))
}

// readAndUnmarshalYAML reads a YAML file and unmarshals it into the target struct.
func (l *Loader) readAndUnmarshalYAML(configPath string, target any) error {
	configFile, err := l.FS.ReadFile(configPath)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrConfigReadFailed.Error()), "path", configPath)
	}

	if parseErr := yaml.Unmarshal(configFile, target); parseErr != nil {
		return zerr.With(zerr.Wrap(parseErr, domain.ErrConfigParseFailed.Error()), "path", configPath)
	}

	return nil
}
