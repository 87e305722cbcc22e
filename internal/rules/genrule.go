package rules

import (
	"context"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/zerr"
)

// Genrule runs a shell command that produces a single output file.
//
// Attributes: cmd (required), out (required), srcs, env, pool.
type Genrule struct{}

// Type implements Description.
func (Genrule) Type() string { return "genrule" }

// ImplicitDeps implements Description. Tools referenced with $(exe) are implicit.
func (Genrule) ImplicitDeps(node *domain.TargetNode) ([]domain.BuildTarget, error) {
	cmd, err := node.Attrs.String("cmd")
	if err != nil {
		return nil, err
	}
	macros, err := ParseMacros(cmd, node.Target.BasePath())
	if err != nil {
		return nil, err
	}
	return MacroTargets(macros, MacroExe), nil
}

// CreateBuildRule implements Description.
func (g Genrule) CreateBuildRule(_ context.Context, p Params) (*domain.BuildRule, error) {
	node := p.Node
	base := node.Target.BasePath()

	cmd, err := node.Attrs.String("cmd")
	if err != nil {
		return nil, err
	}
	out, err := node.Attrs.String("out")
	if err != nil {
		return nil, err
	}
	pool, err := node.Attrs.OptionalString("pool", "")
	if err != nil {
		return nil, err
	}
	env, err := node.Attrs.StringMap("env")
	if err != nil {
		return nil, err
	}
	srcs, err := sourcePaths(node, "srcs", p)
	if err != nil {
		return nil, err
	}

	macros, err := ParseMacros(cmd, base)
	if err != nil {
		return nil, err
	}
	ldflags := make(map[domain.BuildTarget][]string)
	for _, m := range macros {
		switch m.Kind {
		case MacroLocation:
			if _, ok := p.Dep(m.Target); !ok {
				return nil, macroError(m, "target is not a declared dependency")
			}
		case MacroLdflags:
			dep, ok := p.Dep(m.Target)
			if !ok {
				return nil, macroError(m, "target is not a declared dependency")
			}
			linkable, ok := domain.CapabilityOf[domain.NativeLinkable](dep)
			if !ok {
				return nil, macroError(m, "target is not native linkable")
			}
			ldflags[m.Target] = linkable.LinkerFlags
		case MacroExe:
		}
	}

	return domain.NewBuildRule(domain.BuildRuleParams{
		Target:   node.Target,
		RuleType: g.Type(),
		Deps:     p.Deps,
		Output:   out,
		Buildable: &genrule{
			basePath: base,
			cmd:      cmd,
			srcs:     srcs,
			out:      out,
			env:      env,
			pool:     pool,
			ldflags:  ldflags,
			tools:    MacroTargets(macros, MacroExe),
		},
	}), nil
}

func macroError(m Macro, reason string) error {
	err := zerr.With(domain.ErrInvalidMacro, "macro", "$("+string(m.Kind)+" "+m.Target.String()+")")
	return zerr.With(err, "reason", reason)
}

// sourcePaths parses a list attribute of sources. Outputs of other rules must be
// declared dependencies.
func sourcePaths(node *domain.TargetNode, key string, p Params) ([]domain.SourcePath, error) {
	values, err := node.Attrs.Strings(key)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SourcePath, 0, len(values))
	for _, v := range values {
		sp, err := sourcePath(v, node, key, p)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, nil
}

func sourcePath(value string, node *domain.TargetNode, key string, p Params) (domain.SourcePath, error) {
	sp, err := domain.ParseSourcePath(value, node.Target.BasePath())
	if err != nil {
		return domain.SourcePath{}, zerr.With(err, "attribute", key)
	}
	if sp.IsBuildTarget() {
		dep, ok := p.Dep(sp.Target())
		if !ok {
			err := zerr.With(domain.ErrMissingDependency, "dependency", sp.Target().String())
			return domain.SourcePath{}, zerr.With(err, "attribute", key)
		}
		sp = dep.OutputSourcePath()
	}
	return sp, nil
}

type genrule struct {
	basePath string
	cmd      string
	srcs     []domain.SourcePath
	out      string
	env      map[string]string
	pool     string
	ldflags  map[domain.BuildTarget][]string
	tools    []domain.BuildTarget
}

func (g *genrule) AppendToRuleKey(sink domain.RuleKeySink) {
	sink.SetString("cmd", g.cmd)
	sink.SetPaths("srcs", g.srcs)
	sink.SetString("out", g.out)
	sink.SetStrings("env", domain.Tool{Env: g.env}.EnvPairs())
	for _, t := range domain.SortTargets(slices.Collect(maps.Keys(g.ldflags))) {
		sink.SetStrings("ldflags "+t.String(), g.ldflags[t])
	}
	tools := make([]string, len(g.tools))
	for i, t := range g.tools {
		tools[i] = t.String()
	}
	sink.SetStrings("tools", tools)
}

func (g *genrule) BuildSteps(_ context.Context, bctx domain.BuildContext) ([]domain.Step, error) {
	expanded, err := ExpandMacros(g.cmd, g.basePath, func(m Macro) (string, error) {
		return expandMacro(bctx, m)
	})
	if err != nil {
		return nil, err
	}

	srcs := make([]string, len(g.srcs))
	for i, s := range g.srcs {
		srcs[i] = bctx.Resolve(s)
	}
	outPath := filepath.Join(bctx.OutputDir(), g.out)

	env := maps.Clone(g.env)
	if env == nil {
		env = make(map[string]string, 3)
	}
	env["OUT"] = outPath
	env["SRCS"] = strings.Join(srcs, " ")
	env["SRCDIR"] = filepath.Join(bctx.Root(), g.basePath)

	var steps []domain.Step
	if dir := filepath.Dir(outPath); dir != bctx.OutputDir() {
		steps = append(steps, domain.MkdirStep{Path: dir})
	}
	steps = append(steps, domain.CommandStep{
		Args: []string{"/bin/sh", "-c", expanded},
		Env:  env,
		Dir:  bctx.Root(),
		Pool: g.pool,
	})
	bctx.RecordArtifact(g.out)
	return steps, nil
}

func expandMacro(bctx domain.BuildContext, m Macro) (string, error) {
	r, ok := bctx.Rule(m.Target)
	if !ok {
		return "", macroError(m, "target is not part of the action graph")
	}
	switch m.Kind {
	case MacroLdflags:
		linkable, ok := domain.CapabilityOf[domain.NativeLinkable](r)
		if !ok {
			return "", macroError(m, "target is not native linkable")
		}
		parts := slices.Clone(linkable.LinkerFlags)
		for _, lib := range linkable.Libraries {
			parts = append(parts, bctx.Resolve(lib))
		}
		return strings.Join(parts, " "), nil
	default:
		return bctx.Resolve(r.OutputSourcePath()), nil
	}
}
