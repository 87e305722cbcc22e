package fs

import (
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.InputResolver = (*Resolver)(nil)

// Resolver implements the InputResolver interface using filepath.Glob.
type Resolver struct{}

// NewResolver creates a new Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// ResolveInputs expands glob patterns relative to root. Literal paths are kept as they
// are so that a missing file is reported when the rule key is computed. A glob without
// matches contributes nothing.
func (r *Resolver) ResolveInputs(inputs []string, root string) ([]string, error) {
	result := make([]string, 0, len(inputs))

	for _, input := range inputs {
		if !hasMeta(input) {
			result = append(result, filepath.ToSlash(filepath.Clean(input)))
			continue
		}

		matches, err := filepath.Glob(filepath.Join(root, input))
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to glob path"), "pattern", input)
		}

		for _, match := range matches {
			rel, err := filepath.Rel(root, match)
			if err != nil {
				return nil, zerr.With(zerr.Wrap(err, "failed to relativize path"), "path", match)
			}
			result = append(result, filepath.ToSlash(rel))
		}
	}

	slices.Sort(result)
	return slices.Compact(result), nil
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, `*?[\`)
}
