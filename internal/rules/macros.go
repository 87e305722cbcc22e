package rules

import (
	"regexp"
	"strings"

	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/zerr"
)

// MacroKind names a command macro.
type MacroKind string

const (
	// MacroLocation expands to the output path of a declared dependency.
	MacroLocation MacroKind = "location"
	// MacroExe expands to the output path of a tool. The tool is an implicit dependency.
	MacroExe MacroKind = "exe"
	// MacroLdflags expands to the linker flags of a NativeLinkable dependency.
	MacroLdflags MacroKind = "ldflags"
)

// Other $(...) forms are left to the shell.
var macroPattern = regexp.MustCompile(`\$\((location|exe|ldflags)(?:\s+([^)]*))?\)`)

// Macro is one macro occurrence in a command.
type Macro struct {
	Kind   MacroKind
	Target domain.BuildTarget
}

// ParseMacros returns the macros of cmd in order of appearance. Relative targets are
// resolved against basePath.
func ParseMacros(cmd, basePath string) ([]Macro, error) {
	var macros []Macro
	for _, m := range macroPattern.FindAllStringSubmatch(cmd, -1) {
		macro, err := parseMacro(m[1], m[2], basePath)
		if err != nil {
			return nil, err
		}
		macros = append(macros, macro)
	}
	return macros, nil
}

func parseMacro(kind, arg, basePath string) (Macro, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" || strings.ContainsAny(arg, " \t") {
		return Macro{}, zerr.With(domain.ErrInvalidMacro, "macro", "$("+kind+" "+arg+")")
	}
	t, err := domain.ParseRelativeBuildTarget(arg, basePath)
	if err != nil {
		return Macro{}, zerr.With(zerr.Wrap(err, domain.ErrInvalidMacro.Error()), "macro", "$("+kind+" "+arg+")")
	}
	return Macro{Kind: MacroKind(kind), Target: t}, nil
}

// ExpandMacros replaces every macro of cmd with the result of expand.
func ExpandMacros(cmd, basePath string, expand func(Macro) (string, error)) (string, error) {
	var firstErr error
	out := macroPattern.ReplaceAllStringFunc(cmd, func(raw string) string {
		if firstErr != nil {
			return raw
		}
		m := macroPattern.FindStringSubmatch(raw)
		macro, err := parseMacro(m[1], m[2], basePath)
		if err != nil {
			firstErr = err
			return raw
		}
		value, err := expand(macro)
		if err != nil {
			firstErr = err
			return raw
		}
		return value
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// MacroTargets returns the targets referenced by macros of the given kind, sorted.
func MacroTargets(macros []Macro, kind MacroKind) []domain.BuildTarget {
	var out []domain.BuildTarget
	for _, m := range macros {
		if m.Kind == kind {
			out = append(out, m.Target)
		}
	}
	return domain.SortTargets(out)
}
