package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/rig/internal/core/domain"
)

func TestParseBuildTarget(t *testing.T) {
	tests := []struct {
		input    string
		cell     string
		base     string
		name     string
		flavors  []string
		canon    string
		wantErr  bool
		relative string
	}{
		{input: "//pkg/lib:lib", base: "pkg/lib", name: "lib", canon: "//pkg/lib:lib"},
		{input: "//:root", base: "", name: "root", canon: "//:root"},
		{input: "tools//bin:fmt", cell: "tools", base: "bin", name: "fmt", canon: "tools//bin:fmt"},
		{
			input: "//pkg:lib#shared,debug", base: "pkg", name: "lib",
			flavors: []string{"debug", "shared"}, canon: "//pkg:lib#debug,shared",
		},
		{input: "//pkg:lib#b,a,b", base: "pkg", name: "lib", flavors: []string{"a", "b"}, canon: "//pkg:lib#a,b"},
		{input: ":lib", relative: "pkg/sub", base: "pkg/sub", name: "lib", canon: "//pkg/sub:lib"},
		{input: "pkg:lib", wantErr: true},
		{input: "//pkg", wantErr: true},
		{input: "//pkg:", wantErr: true},
		{input: "//pkg:a:b", wantErr: true},
		{input: "//pkg:lib#", wantErr: true},
		{input: "//pkg:lib#a,,b", wantErr: true},
		{input: "///pkg:lib", wantErr: true},
		{input: ":", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var (
				got domain.BuildTarget
				err error
			)
			if tt.relative != "" {
				got, err = domain.ParseRelativeBuildTarget(tt.input, tt.relative)
			} else {
				got, err = domain.ParseBuildTarget(tt.input)
			}
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorContains(t, err, "invalid build target")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cell, got.Cell())
			assert.Equal(t, tt.base, got.BasePath())
			assert.Equal(t, tt.name, got.ShortName())
			assert.Equal(t, tt.flavors, got.Flavors())
			assert.Equal(t, tt.canon, got.String())
		})
	}
}

func TestBuildTarget_Equality(t *testing.T) {
	a := domain.MustParseBuildTarget("//pkg:lib#b,a")
	b := domain.MustParseBuildTarget("//pkg:lib#a,b")
	assert.Equal(t, a, b)
	assert.True(t, a == b, "flavor order must not matter")

	m := map[domain.BuildTarget]int{a: 1}
	assert.Equal(t, 1, m[b])

	assert.Equal(t, domain.MustParseBuildTarget("//pkg:lib"), a.WithoutFlavors())
	assert.Equal(t, a, domain.MustParseBuildTarget("//pkg:lib").WithFlavors("b", "a"))
}

func TestBuildTarget_TextRoundTrip(t *testing.T) {
	orig := domain.MustParseBuildTarget("cell//a/b:c#x")
	text, err := orig.MarshalText()
	require.NoError(t, err)

	var decoded domain.BuildTarget
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, orig, decoded)
}

func TestBuildTarget_Zero(t *testing.T) {
	var zero domain.BuildTarget
	assert.True(t, zero.IsZero())
	assert.Empty(t, zero.String())
}

func TestSortTargets(t *testing.T) {
	got := domain.SortTargets([]domain.BuildTarget{
		domain.MustParseBuildTarget("//b:b"),
		domain.MustParseBuildTarget("//a:a"),
		domain.MustParseBuildTarget("//b:b"),
	})
	require.Len(t, got, 2)
	assert.Equal(t, "//a:a", got[0].String())
	assert.Equal(t, "//b:b", got[1].String())
}

func TestParseSourcePath(t *testing.T) {
	p, err := domain.ParseSourcePath("src/main.c", "pkg")
	require.NoError(t, err)
	assert.False(t, p.IsBuildTarget())
	assert.Equal(t, "pkg/src/main.c", p.RootRelative())

	p, err = domain.ParseSourcePath(":gen", "pkg")
	require.NoError(t, err)
	assert.True(t, p.IsBuildTarget())
	assert.Equal(t, "//pkg:gen", p.Target().String())
	assert.Equal(t, ".rig/out/pkg/gen", p.RootRelative())
}
