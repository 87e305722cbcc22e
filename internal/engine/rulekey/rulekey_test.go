package rulekey_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/rig/internal/adapters/fs"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports/mocks"
	"go.trai.ch/rig/internal/engine/rulekey"
	"go.uber.org/mock/gomock"
)

type genBuildable struct {
	cmd        string
	srcs       []domain.SourcePath
	executable bool
	timeout    int64
}

func (g genBuildable) AppendToRuleKey(sink domain.RuleKeySink) {
	sink.SetString("cmd", g.cmd)
	sink.SetPaths("srcs", g.srcs)
	sink.SetBool("executable", g.executable)
	sink.SetInt("timeout", g.timeout)
}

func (genBuildable) BuildSteps(context.Context, domain.BuildContext) ([]domain.Step, error) {
	return nil, nil
}

type toolBuildable struct {
	tool domain.Tool
}

func (t toolBuildable) AppendToRuleKey(sink domain.RuleKeySink) {
	sink.SetTool("tool", t.tool)
}

func (toolBuildable) BuildSteps(context.Context, domain.BuildContext) ([]domain.Step, error) {
	return nil, nil
}

func newRule(target string, b domain.Buildable) *domain.BuildRule {
	return domain.NewBuildRule(domain.BuildRuleParams{
		Target:    domain.MustParseBuildTarget(target),
		RuleType:  "genrule",
		Buildable: b,
		Output:    "out.txt",
	})
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func depKeys(target string, b byte) domain.DepKeys {
	var k domain.RuleKey
	for i := range k {
		k[i] = b
	}
	return domain.DepKeys{Declared: []domain.TargetKey{{Target: domain.MustParseBuildTarget(target), Key: k}}}
}

func TestFactory_GoldenKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	hasher := mocks.NewMockFileHasher(ctrl)
	hasher.EXPECT().HashPath("/repo/pkg/in.txt").Return([]domain.PathHash{{Hash: 0x1234}}, nil)

	rule := newRule("//pkg:gen", genBuildable{
		cmd:        "cat $SRCS > $OUT",
		srcs:       []domain.SourcePath{domain.NewPathSourcePath("pkg/in.txt")},
		executable: true,
		timeout:    30,
	})

	key, err := rulekey.NewFactory("/repo", hasher, nil).Build(t.Context(), rule, depKeys("//pkg:dep", 0x11))
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "genrule_key", []byte(key.String()+"\n"))
}

func TestFactory_Determinism(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pkg", "in.txt"), "hello")
	factory := rulekey.NewFactory(root, fs.NewFileHashCache(fs.NewWalker()), nil)

	build := func() domain.RuleKey {
		rule := newRule("//pkg:gen", genBuildable{
			cmd:  "cat",
			srcs: []domain.SourcePath{domain.NewPathSourcePath("pkg/in.txt")},
		})
		k, err := factory.Build(t.Context(), rule, domain.DepKeys{})
		require.NoError(t, err)
		return k
	}

	assert.Equal(t, build(), build())
}

func TestFactory_MovedFileKeepsKey(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	writeFile(t, filepath.Join(rootA, "pkg", "in.txt"), "same content")
	writeFile(t, filepath.Join(rootB, "pkg", "in.txt"), "same content")

	rule := newRule("//pkg:gen", genBuildable{
		cmd:  "cat",
		srcs: []domain.SourcePath{domain.NewPathSourcePath("pkg/in.txt")},
	})
	hasher := fs.NewFileHashCache(fs.NewWalker())

	keyA, err := rulekey.NewFactory(rootA, hasher, nil).Build(t.Context(), rule, domain.DepKeys{})
	require.NoError(t, err)
	keyB, err := rulekey.NewFactory(rootB, hasher, nil).Build(t.Context(), rule, domain.DepKeys{})
	require.NoError(t, err)

	assert.Equal(t, keyA, keyB, "the workspace location must not affect the key")
}

func TestFactory_DirectoryFoldsRelativePaths(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	writeFile(t, filepath.Join(rootA, "assets", "a.txt"), "x")
	writeFile(t, filepath.Join(rootB, "assets", "b.txt"), "x")

	rule := newRule("//pkg:gen", genBuildable{
		srcs: []domain.SourcePath{domain.NewPathSourcePath("assets")},
	})
	hasher := fs.NewFileHashCache(fs.NewWalker())

	keyA, err := rulekey.NewFactory(rootA, hasher, nil).Build(t.Context(), rule, domain.DepKeys{})
	require.NoError(t, err)
	keyB, err := rulekey.NewFactory(rootB, hasher, nil).Build(t.Context(), rule, domain.DepKeys{})
	require.NoError(t, err)

	assert.NotEqual(t, keyA, keyB, "renaming a file inside a directory changes the key")
}

func TestFactory_ContentChangeChangesKey(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "pkg", "in.txt")
	writeFile(t, src, "v1")
	hasher := fs.NewFileHashCache(fs.NewWalker())
	factory := rulekey.NewFactory(root, hasher, nil)
	rule := newRule("//pkg:gen", genBuildable{srcs: []domain.SourcePath{domain.NewPathSourcePath("pkg/in.txt")}})

	before, err := factory.Build(t.Context(), rule, domain.DepKeys{})
	require.NoError(t, err)

	writeFile(t, src, "version two")
	hasher.Invalidate([]string{src})

	after, err := factory.Build(t.Context(), rule, domain.DepKeys{})
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestFactory_FieldChanges(t *testing.T) {
	ctrl := gomock.NewController(t)
	hasher := mocks.NewMockFileHasher(ctrl)
	factory := rulekey.NewFactory("/repo", hasher, nil)

	base := genBuildable{cmd: "echo", timeout: 1}
	baseKey, err := factory.Build(t.Context(), newRule("//a:a", base), domain.DepKeys{})
	require.NoError(t, err)

	tests := []struct {
		name string
		rule *domain.BuildRule
		deps domain.DepKeys
	}{
		{name: "string field", rule: newRule("//a:a", genBuildable{cmd: "echo hi", timeout: 1})},
		{name: "bool field", rule: newRule("//a:a", genBuildable{cmd: "echo", timeout: 1, executable: true})},
		{name: "int field", rule: newRule("//a:a", genBuildable{cmd: "echo", timeout: 2})},
		{name: "declared dep key", rule: newRule("//a:a", base), deps: depKeys("//b:b", 0x01)},
		{
			name: "late-bound dep key",
			rule: newRule("//a:a", base),
			deps: domain.DepKeys{LateBound: depKeys("//b:b", 0x01).Declared},
		},
		{
			name: "output",
			rule: domain.NewBuildRule(domain.BuildRuleParams{
				Target: domain.MustParseBuildTarget("//a:a"), RuleType: "genrule", Buildable: base, Output: "other.txt",
			}),
		},
		{
			name: "rule type",
			rule: domain.NewBuildRule(domain.BuildRuleParams{
				Target: domain.MustParseBuildTarget("//a:a"), RuleType: "export_file", Buildable: base, Output: "out.txt",
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := factory.Build(t.Context(), tt.rule, tt.deps)
			require.NoError(t, err)
			assert.NotEqual(t, baseKey, k)
		})
	}

	t.Run("target name is not folded", func(t *testing.T) {
		k, err := factory.Build(t.Context(), newRule("//elsewhere:renamed", base), domain.DepKeys{})
		require.NoError(t, err)
		assert.Equal(t, baseKey, k)
	})
}

func TestFactory_DepKeyOrderIsIrrelevant(t *testing.T) {
	factory := rulekey.NewFactory("/repo", mocks.NewMockFileHasher(gomock.NewController(t)), nil)
	rule := newRule("//a:a", genBuildable{cmd: "x"})
	b := depKeys("//b:b", 1).Declared[0]
	c := depKeys("//c:c", 2).Declared[0]

	k1, err := factory.Build(t.Context(), rule, domain.DepKeys{Declared: []domain.TargetKey{b, c}})
	require.NoError(t, err)
	k2, err := factory.Build(t.Context(), rule, domain.DepKeys{Declared: []domain.TargetKey{c, b}})
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestFactory_ToolIsFolded(t *testing.T) {
	factory := rulekey.NewFactory("/repo", mocks.NewMockFileHasher(gomock.NewController(t)), nil)
	tool := domain.Tool{Name: "cc", Command: []string{"cc", "-O2"}, Env: map[string]string{"LANG": "C"}}

	k1, err := factory.Build(t.Context(), newRule("//a:a", toolBuildable{tool: tool}), domain.DepKeys{})
	require.NoError(t, err)

	tool.Env = map[string]string{"LANG": "en_US"}
	k2, err := factory.Build(t.Context(), newRule("//a:a", toolBuildable{tool: tool}), domain.DepKeys{})
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}

func TestFactory_TargetSourcePathDoesNotHash(t *testing.T) {
	ctrl := gomock.NewController(t)
	hasher := mocks.NewMockFileHasher(ctrl)
	factory := rulekey.NewFactory("/repo", hasher, nil)

	rule := newRule("//a:a", genBuildable{srcs: []domain.SourcePath{
		domain.NewBuildTargetSourcePath(domain.MustParseBuildTarget("//gen:gen"), "out.txt"),
	}})
	_, err := factory.Build(t.Context(), rule, domain.DepKeys{})
	require.NoError(t, err)
}

func TestFactory_MissingInput(t *testing.T) {
	root := t.TempDir()
	factory := rulekey.NewFactory(root, fs.NewFileHashCache(fs.NewWalker()), nil)
	broken := newRule("//pkg:broken", genBuildable{srcs: []domain.SourcePath{domain.NewPathSourcePath("pkg/missing.txt")}})
	healthy := newRule("//pkg:ok", genBuildable{cmd: "true"})

	_, err := factory.Build(t.Context(), broken, domain.DepKeys{})
	require.Error(t, err)

	var missing *domain.MissingInputError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "pkg/missing.txt", missing.Path)
	assert.Equal(t, broken.Target(), missing.Target)
	assert.True(t, errors.Is(err, domain.ErrMissingInput))

	_, err = factory.Build(t.Context(), healthy, domain.DepKeys{})
	assert.NoError(t, err, "other rules are unaffected")
}

func TestFactory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	factory := rulekey.NewFactory("/repo", mocks.NewMockFileHasher(gomock.NewController(t)), nil)

	_, err := factory.Build(ctx, newRule("//a:a", genBuildable{}), domain.DepKeys{})
	assert.ErrorIs(t, err, context.Canceled)
}
