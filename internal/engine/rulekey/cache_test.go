package rulekey_test

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/rig/internal/adapters/fs"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/engine/rulekey"
)

type countingBuildable struct {
	src   domain.SourcePath
	folds atomic.Int32
}

func (c *countingBuildable) AppendToRuleKey(sink domain.RuleKeySink) {
	c.folds.Add(1)
	sink.SetPath("src", c.src)
}

func (*countingBuildable) BuildSteps(context.Context, domain.BuildContext) ([]domain.Step, error) {
	return nil, nil
}

func newCachedFixture(t *testing.T) (root string, factory *rulekey.Factory, cache *rulekey.Cache, hasher *fs.FileHashCache) {
	t.Helper()
	root = t.TempDir()
	writeFile(t, filepath.Join(root, "pkg", "in.txt"), "one")

	cache, err := rulekey.NewCache(16)
	require.NoError(t, err)
	hasher = fs.NewFileHashCache(fs.NewWalker())
	return root, rulekey.NewFactory(root, hasher, cache), cache, hasher
}

func TestCache_HitSkipsFolding(t *testing.T) {
	_, factory, cache, _ := newCachedFixture(t)
	b := &countingBuildable{src: domain.NewPathSourcePath("pkg/in.txt")}
	rule := newRule("//pkg:gen", b)

	k1, err := factory.Build(t.Context(), rule, domain.DepKeys{})
	require.NoError(t, err)
	k2, err := factory.Build(t.Context(), rule, domain.DepKeys{})
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Equal(t, int32(1), b.folds.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestCache_DepKeysArePartOfTheEntry(t *testing.T) {
	_, factory, cache, _ := newCachedFixture(t)
	b := &countingBuildable{src: domain.NewPathSourcePath("pkg/in.txt")}
	rule := newRule("//pkg:gen", b)

	k1, err := factory.Build(t.Context(), rule, depKeys("//dep:dep", 1))
	require.NoError(t, err)
	k2, err := factory.Build(t.Context(), rule, depKeys("//dep:dep", 2))
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2, "a dependency key change propagates")
	assert.Equal(t, int32(2), b.folds.Load())
	assert.Equal(t, 2, cache.Len())
}

func TestCache_RevalidatesContent(t *testing.T) {
	root, factory, _, hasher := newCachedFixture(t)
	b := &countingBuildable{src: domain.NewPathSourcePath("pkg/in.txt")}
	rule := newRule("//pkg:gen", b)

	before, err := factory.Build(t.Context(), rule, domain.DepKeys{})
	require.NoError(t, err)

	src := filepath.Join(root, "pkg", "in.txt")
	writeFile(t, src, "changed content")
	hasher.Invalidate([]string{src})

	after, err := factory.Build(t.Context(), rule, domain.DepKeys{})
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
	assert.Equal(t, int32(2), b.folds.Load(), "a stale entry is recomputed")
}

func TestCache_Invalidate(t *testing.T) {
	root, factory, cache, _ := newCachedFixture(t)
	writeFile(t, filepath.Join(root, "other", "x.txt"), "x")

	_, err := factory.Build(t.Context(), newRule("//pkg:gen", &countingBuildable{src: domain.NewPathSourcePath("pkg/in.txt")}), domain.DepKeys{})
	require.NoError(t, err)
	_, err = factory.Build(t.Context(), newRule("//other:x", &countingBuildable{src: domain.NewPathSourcePath("other")}), domain.DepKeys{})
	require.NoError(t, err)
	require.Equal(t, 2, cache.Len())

	assert.Equal(t, 0, cache.Invalidate([]string{filepath.Join(root, "unrelated.txt")}))
	assert.Equal(t, 1, cache.Invalidate([]string{filepath.Join(root, "pkg", "in.txt")}))
	assert.Equal(t, 1, cache.Len())

	assert.Equal(t, 1, cache.Invalidate([]string{filepath.Join(root, "other", "x.txt")}), "a file below a directory input")
	assert.Equal(t, 0, cache.Len())
}

func TestCache_Purge(t *testing.T) {
	_, factory, cache, _ := newCachedFixture(t)
	_, err := factory.Build(t.Context(), newRule("//pkg:gen", &countingBuildable{src: domain.NewPathSourcePath("pkg/in.txt")}), domain.DepKeys{})
	require.NoError(t, err)

	cache.Purge()
	assert.Equal(t, 0, cache.Len())
}

func TestNewCache_DefaultSize(t *testing.T) {
	cache, err := rulekey.NewCache(0)
	require.NoError(t, err)
	assert.Equal(t, 0, cache.Len())
}
