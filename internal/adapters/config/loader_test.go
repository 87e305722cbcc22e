package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/rig/internal/adapters/config"
	"go.trai.ch/rig/internal/adapters/fs"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports/mocks"
	"go.trai.ch/rig/internal/rules"
	"go.uber.org/mock/gomock"
)

func createFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), domain.DirPerm))
	require.NoError(t, os.WriteFile(path, []byte(content), domain.FilePerm))
	return path
}

func newLoader(t *testing.T) (*config.Loader, *mocks.MockLogger) {
	t.Helper()
	ctrl := gomock.NewController(t)
	logger := mocks.NewMockLogger(ctrl)
	return config.NewLoader(logger, fs.NewResolver()), logger
}

func TestLoader_Standalone(t *testing.T) {
	loader, _ := newLoader(t)
	root := t.TempDir()
	createFile(t, root, domain.RigFileName, `
version: "1"
config:
  build:
    threads: 4
    no_cache: true
  cache:
    mode: dir+redis
    timeout: 250ms
  tools:
    flags: ["-O2", "-g"]
targets:
  gen:
    rule: genrule
    cmd: "$(exe //:tool) > $OUT"
    out: gen.txt
    srcs: [in.txt]
  tool:
    rule: export_file
    src: tool.sh
  copy:
    rule: genrule
    deps: [":gen"]
    cmd: "cp $(location :gen) $OUT"
    out: copy.txt
`)

	ws, err := loader.Load(filepath.Join(root))
	require.NoError(t, err)

	assert.Equal(t, root, ws.Root)
	assert.Equal(t, root, ws.Graph.Root())
	assert.Equal(t, 3, ws.Graph.NodeCount())

	copyNode, ok := ws.Graph.Node(domain.MustParseBuildTarget("//:copy"))
	require.True(t, ok)
	assert.Equal(t, "genrule", copyNode.RuleType)
	assert.Equal(t, []domain.BuildTarget{domain.MustParseBuildTarget("//:gen")}, copyNode.Deps)
	assert.Equal(t, "copy.txt", copyNode.Attrs["out"])
	assert.NotContains(t, copyNode.Attrs, "rule")
	assert.NotContains(t, copyNode.Attrs, "deps")

	gen, ok := ws.Graph.Node(domain.MustParseBuildTarget("//:gen"))
	require.True(t, ok)
	assert.Equal(t, []domain.BuildTarget{domain.MustParseBuildTarget("//:tool")}, gen.ImplicitDeps,
		"$(exe) macros become implicit deps")

	threads, err := ws.Config.Int("build", "threads", 1)
	require.NoError(t, err)
	assert.Equal(t, 4, threads)
	noCache, err := ws.Config.Bool("build", "no_cache", false)
	require.NoError(t, err)
	assert.True(t, noCache)
	timeout, err := ws.Config.Duration("cache", "timeout", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, timeout)
	assert.Equal(t, "dir+redis", ws.Config.String("cache", "mode", ""))
	assert.Equal(t, []string{"-O2", "-g"}, ws.Config.List("tools", "flags"))
}

func TestLoader_Workspace(t *testing.T) {
	loader, logger := newLoader(t)
	logger.EXPECT().Warn("rig.yaml missing in package pkg/empty, skipping").Times(1)
	logger.EXPECT().Warn("'config' defined in pkg/lib is ignored in workspace mode").Times(1)

	root := t.TempDir()
	createFile(t, root, domain.WorkFileName, `
version: "1"
config:
  worker_pools:
    javac: 2
packages:
  - "pkg/*"
  - "tools"
`)
	createFile(t, root, "pkg/lib/rig.yaml", `
config:
  build:
    threads: 99
targets:
  lib:
    rule: prebuilt_library
    lib: libz.a
    linker_flags: ["-lz"]
`)
	createFile(t, root, "pkg/app/rig.yaml", `
targets:
  app:
    rule: genrule
    deps: ["//pkg/lib:lib"]
    cmd: "cc $(ldflags //pkg/lib:lib) -o $OUT"
    out: app
    pool: javac
`)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg", "empty"), domain.DirPerm))
	createFile(t, root, "pkg/README", "not a package")
	createFile(t, root, "tools/rig.yaml", `
targets:
  fmt:
    rule: export_file
`)

	ws, err := loader.Load(filepath.Join(root, "pkg", "app"))
	require.NoError(t, err)

	assert.Equal(t, root, ws.Root)
	assert.ElementsMatch(t, []string{"//pkg/app:app", "//pkg/lib:lib", "//tools:fmt"}, targetNames(ws.Graph))
	require.NoError(t, ws.Graph.Validate())

	app, ok := ws.Graph.Node(domain.MustParseBuildTarget("//pkg/app:app"))
	require.True(t, ok)
	assert.Equal(t, "javac", app.Attrs["pool"])

	assert.Equal(t, "2", ws.Config.String("worker_pools", "javac", ""))
	_, set := ws.Config.Value("build", "threads")
	assert.False(t, set, "package config is ignored")
}

func TestLoader_DiscoverRoot(t *testing.T) {
	loader, _ := newLoader(t)
	root := t.TempDir()
	createFile(t, root, domain.WorkFileName, "packages: [\"a\"]\n")
	createFile(t, root, "a/rig.yaml", "targets: {}\n")
	nested := filepath.Join(root, "a", "deep", "er")
	require.NoError(t, os.MkdirAll(nested, domain.DirPerm))

	got, err := loader.DiscoverRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, root, got, "work file wins over a closer rig.yaml")

	_, err = loader.DiscoverRoot(t.TempDir())
	assert.ErrorContains(t, err, domain.ErrConfigNotFound.Error())
}

func TestLoader_DiscoverConfigPaths(t *testing.T) {
	loader, _ := newLoader(t)
	root := t.TempDir()
	work := createFile(t, root, domain.WorkFileName, "packages: [\"pkg/*\"]\n")
	a := createFile(t, root, "pkg/a/rig.yaml", "targets: {}\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg", "b"), domain.DirPerm))

	stamp := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	require.NoError(t, os.Chtimes(a, stamp, stamp))

	paths, err := loader.DiscoverConfigPaths(root)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Contains(t, paths, work)
	assert.Equal(t, stamp.UnixNano(), paths[a])
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "parse error", content: "targets: [", wantErr: domain.ErrConfigParseFailed.Error()},
		{name: "missing rule", content: "targets:\n  a:\n    out: x\n", wantErr: "missing required rule attribute"},
		{name: "bad target name", content: "targets:\n  \"a:b\":\n    rule: genrule\n", wantErr: "invalid build target"},
		{name: "bad dep", content: "targets:\n  a:\n    rule: genrule\n    deps: [\"nope\"]\n", wantErr: "invalid build target"},
		{name: "unknown rule type", content: "targets:\n  a:\n    rule: cxx_binary\n", wantErr: "unknown rule type"},
		{
			name:    "nested config value",
			content: "config:\n  build:\n    threads: {a: 1}\n",
			wantErr: domain.ErrInvalidConfigValue.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader, _ := newLoader(t)
			root := t.TempDir()
			createFile(t, root, domain.RigFileName, tt.content)
			_, err := loader.Load(root)
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoader_MapFS(t *testing.T) {
	ctrl := gomock.NewController(t)
	loader := &config.Loader{
		Logger: mocks.NewMockLogger(ctrl),
		FS: config.NewMapFSAdapter("/repo", fstest.MapFS{
			"rig.work.yaml":   {Data: []byte("packages: [\"libs/*\"]\n")},
			"libs/a/rig.yaml": {Data: []byte("targets:\n  a:\n    rule: export_file\n")},
			"libs/b/rig.yaml": {Data: []byte("targets:\n  b:\n    rule: export_file\n    deps: [\"//libs/a:a\"]\n")},
		}),
		Registry: rules.DefaultRegistry(),
	}

	ws, err := loader.Load("/repo/libs/b")
	require.NoError(t, err)
	assert.Equal(t, "/repo", ws.Root)
	assert.ElementsMatch(t, []string{"//libs/a:a", "//libs/b:b"}, targetNames(ws.Graph))
}

func targetNames(g *domain.TargetGraph) []string {
	var out []string
	for _, t := range g.Targets() {
		out = append(out, t.String())
	}
	return out
}

func TestLoader_ExpandsSourceGlobs(t *testing.T) {
	loader, _ := newLoader(t)
	root := t.TempDir()
	createFile(t, root, "pkg/b.txt", "b")
	createFile(t, root, "pkg/a.txt", "a")
	createFile(t, root, "pkg/skip.md", "")
	createFile(t, root, "pkg/"+domain.RigFileName, `
targets:
  gen:
    rule: genrule
    cmd: "cat $SRCS > $OUT"
    out: all.txt
    srcs: ["*.txt", "missing.c", ":dep"]
  dep:
    rule: export_file
    src: a.txt
`)
	createFile(t, root, domain.WorkFileName, "packages: [pkg]\n")

	ws, err := loader.Load(root)
	require.NoError(t, err)
	node, ok := ws.Graph.Node(domain.MustParseBuildTarget("//pkg:gen"))
	require.True(t, ok)
	srcs, err := node.Attrs.Strings("srcs")
	require.NoError(t, err)
	assert.Equal(t, []string{":dep", "a.txt", "b.txt", "missing.c"}, srcs)
}
