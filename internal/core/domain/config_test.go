package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/rig/internal/core/domain"
)

func TestConfig_Getters(t *testing.T) {
	cfg := domain.NewConfig(map[string]map[string]string{
		"build": {"threads": "4", "no_cache": "true"},
		"cache": {"timeout": "250ms", "mode": "dir+redis"},
		"tools": {"flags": "-O2  -g"},
		"bad":   {"n": "four", "b": "maybe", "d": "soon"},
	})

	n, err := cfg.Int("build", "threads", 1)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = cfg.Int("build", "absent", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	b, err := cfg.Bool("build", "no_cache", false)
	require.NoError(t, err)
	assert.True(t, b)

	d, err := cfg.Duration("cache", "timeout", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	assert.Equal(t, "dir+redis", cfg.String("cache", "mode", "dir"))
	assert.Equal(t, "dir", cfg.String("cache", "other", "dir"))
	assert.Equal(t, []string{"-O2", "-g"}, cfg.List("tools", "flags"))
	assert.Nil(t, cfg.List("tools", "absent"))
	assert.Equal(t, []string{"bad", "build", "cache", "tools"}, cfg.Sections())

	_, err = cfg.Int("bad", "n", 0)
	assert.ErrorContains(t, err, "invalid config value")
	_, err = cfg.Bool("bad", "b", false)
	assert.ErrorContains(t, err, "invalid config value")
	_, err = cfg.Duration("bad", "d", 0)
	assert.ErrorContains(t, err, "invalid config value")
}

func TestConfig_WithDoesNotMutate(t *testing.T) {
	base := domain.NewConfig(map[string]map[string]string{"build": {"threads": "2"}})
	over := base.With("build", "threads", "8")

	assert.Equal(t, "2", base.String("build", "threads", ""))
	assert.Equal(t, "8", over.String("build", "threads", ""))
}

func TestAttributes(t *testing.T) {
	attrs := domain.Attributes{
		"cmd":  "echo",
		"srcs": []any{"a", "b"},
		"one":  "x",
		"flag": true,
		"env":  map[string]any{"A": "1", "N": 2},
		"bad":  []any{1},
	}

	s, err := attrs.String("cmd")
	require.NoError(t, err)
	assert.Equal(t, "echo", s)

	_, err = attrs.String("absent")
	assert.ErrorContains(t, err, "missing required rule attribute")

	_, err = attrs.String("flag")
	assert.ErrorContains(t, err, "invalid rule attribute")

	l, err := attrs.Strings("srcs")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, l)

	l, err = attrs.Strings("one")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, l)

	_, err = attrs.Strings("bad")
	assert.ErrorContains(t, err, "invalid rule attribute")

	m, err := attrs.StringMap("env")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "N": "2"}, m)

	b, err := attrs.Bool("flag", false)
	require.NoError(t, err)
	assert.True(t, b)

	opt, err := attrs.OptionalString("out", "default")
	require.NoError(t, err)
	assert.Equal(t, "default", opt)
}

func TestParseRuleKey(t *testing.T) {
	var k domain.RuleKey
	k[0] = 0xab
	parsed, err := domain.ParseRuleKey(k.String())
	require.NoError(t, err)
	assert.Equal(t, k, parsed)
	assert.Equal(t, "ab0000000000", k.Short())

	_, err = domain.ParseRuleKey("xyz")
	assert.ErrorContains(t, err, "invalid rule key")
}
