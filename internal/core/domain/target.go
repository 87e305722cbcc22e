package domain

import (
	"cmp"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

const (
	cellSeparator   = "//"
	nameSeparator   = ":"
	flavorSeparator = "#"
	flavorJoin      = ","
)

// BuildTarget identifies a buildable unit: an optional cell, a package path, a short
// name and a set of flavors. It is comparable and safe to use as a map key.
type BuildTarget struct {
	cell     InternedString
	basePath InternedString
	name     InternedString
	flavors  InternedString // canonical, comma-joined
}

// NewBuildTarget creates a BuildTarget. Flavors are sorted and de-duplicated.
func NewBuildTarget(cell, basePath, name string, flavors ...string) BuildTarget {
	return BuildTarget{
		cell:     NewInternedString(cell),
		basePath: NewInternedString(strings.Trim(basePath, "/")),
		name:     NewInternedString(name),
		flavors:  NewInternedString(canonicalFlavors(flavors)),
	}
}

// ParseBuildTarget parses the fully qualified form cell//base/path:name#flavor1,flavor2.
// The cell is optional.
func ParseBuildTarget(s string) (BuildTarget, error) {
	return parseBuildTarget(s, "")
}

// ParseRelativeBuildTarget parses s, resolving the short form ":name" against basePath.
func ParseRelativeBuildTarget(s, basePath string) (BuildTarget, error) {
	return parseBuildTarget(s, basePath)
}

func parseBuildTarget(s, basePath string) (BuildTarget, error) {
	raw := s
	var flavors []string
	if i := strings.Index(s, flavorSeparator); i >= 0 {
		flavorPart := s[i+1:]
		s = s[:i]
		if flavorPart == "" {
			return BuildTarget{}, zerr.With(ErrInvalidBuildTarget, "target", raw)
		}
		flavors = strings.Split(flavorPart, flavorJoin)
		if slices.Contains(flavors, "") {
			return BuildTarget{}, zerr.With(ErrInvalidBuildTarget, "target", raw)
		}
	}

	if strings.HasPrefix(s, nameSeparator) {
		name := s[1:]
		if name == "" || strings.Contains(name, nameSeparator) {
			return BuildTarget{}, zerr.With(ErrInvalidBuildTarget, "target", raw)
		}
		return NewBuildTarget("", basePath, name, flavors...), nil
	}

	cellIdx := strings.Index(s, cellSeparator)
	if cellIdx < 0 {
		return BuildTarget{}, zerr.With(ErrInvalidBuildTarget, "target", raw)
	}
	cell := s[:cellIdx]
	rest := s[cellIdx+len(cellSeparator):]

	pkg, name, ok := strings.Cut(rest, nameSeparator)
	if !ok || name == "" || strings.Contains(name, nameSeparator) || strings.Contains(name, "/") {
		return BuildTarget{}, zerr.With(ErrInvalidBuildTarget, "target", raw)
	}
	if strings.HasPrefix(pkg, "/") || strings.HasSuffix(pkg, "/") || strings.Contains(pkg, "//") {
		return BuildTarget{}, zerr.With(ErrInvalidBuildTarget, "target", raw)
	}

	return NewBuildTarget(cell, pkg, name, flavors...), nil
}

// MustParseBuildTarget is like ParseBuildTarget but panics on error. Intended for tests
// and static tables.
func MustParseBuildTarget(s string) BuildTarget {
	t, err := ParseBuildTarget(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Cell returns the cell name, empty for the root cell.
func (t BuildTarget) Cell() string { return t.cell.String() }

// BasePath returns the package path of the target.
func (t BuildTarget) BasePath() string { return t.basePath.String() }

// ShortName returns the name after the colon.
func (t BuildTarget) ShortName() string { return t.name.String() }

// Flavors returns the sorted flavor set.
func (t BuildTarget) Flavors() []string {
	f := t.flavors.String()
	if f == "" {
		return nil
	}
	return strings.Split(f, flavorJoin)
}

// HasFlavors reports whether the target carries any flavor.
func (t BuildTarget) HasFlavors() bool {
	return !t.flavors.IsEmpty()
}

// WithFlavors returns a copy of the target with the given flavors added.
func (t BuildTarget) WithFlavors(flavors ...string) BuildTarget {
	all := append(t.Flavors(), flavors...)
	t.flavors = NewInternedString(canonicalFlavors(all))
	return t
}

// WithoutFlavors returns the unflavored target.
func (t BuildTarget) WithoutFlavors() BuildTarget {
	t.flavors = NewInternedString("")
	return t
}

// IsZero reports whether t is the zero BuildTarget.
func (t BuildTarget) IsZero() bool {
	return t.name.IsEmpty()
}

// UnflavoredName returns cell//base:name.
func (t BuildTarget) UnflavoredName() string {
	var b strings.Builder
	b.WriteString(t.cell.String())
	b.WriteString(cellSeparator)
	b.WriteString(t.basePath.String())
	b.WriteString(nameSeparator)
	b.WriteString(t.name.String())
	return b.String()
}

// String returns the fully qualified name.
func (t BuildTarget) String() string {
	if t.IsZero() {
		return ""
	}
	if f := t.flavors.String(); f != "" {
		return t.UnflavoredName() + flavorSeparator + f
	}
	return t.UnflavoredName()
}

// Compare orders targets by their fully qualified name.
func (t BuildTarget) Compare(other BuildTarget) int {
	return cmp.Compare(t.String(), other.String())
}

// MarshalText implements encoding.TextMarshaler.
func (t BuildTarget) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *BuildTarget) UnmarshalText(text []byte) error {
	parsed, err := ParseBuildTarget(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// SortTargets sorts targets in place and removes duplicates.
func SortTargets(targets []BuildTarget) []BuildTarget {
	slices.SortFunc(targets, BuildTarget.Compare)
	return slices.Compact(targets)
}

func canonicalFlavors(flavors []string) string {
	if len(flavors) == 0 {
		return ""
	}
	sorted := slices.Clone(flavors)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	return strings.Join(sorted, flavorJoin)
}
