package rules

import (
	"context"
	"path/filepath"

	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/zerr"
)

// PrebuiltLibrary exposes a checked-in native library. Rules link against it through
// its NativeLinkable capability.
//
// Attributes: lib (required), linker_flags, runtime_deps.
type PrebuiltLibrary struct{}

// Type implements Description.
func (PrebuiltLibrary) Type() string { return "prebuilt_library" }

// ImplicitDeps implements Description.
func (PrebuiltLibrary) ImplicitDeps(*domain.TargetNode) ([]domain.BuildTarget, error) {
	return nil, nil
}

// CreateBuildRule implements Description.
func (pl PrebuiltLibrary) CreateBuildRule(_ context.Context, p Params) (*domain.BuildRule, error) {
	node := p.Node
	libValue, err := node.Attrs.String("lib")
	if err != nil {
		return nil, err
	}
	lib, err := sourcePath(libValue, node, "lib", p)
	if err != nil {
		return nil, err
	}
	flags, err := node.Attrs.Strings("linker_flags")
	if err != nil {
		return nil, err
	}
	runtimeNames, err := node.Attrs.Strings("runtime_deps")
	if err != nil {
		return nil, err
	}
	runtime := make([]domain.BuildTarget, 0, len(runtimeNames))
	for _, name := range runtimeNames {
		t, err := domain.ParseRelativeBuildTarget(name, node.Target.BasePath())
		if err != nil {
			return nil, zerr.With(err, "attribute", "runtime_deps")
		}
		runtime = append(runtime, t)
	}

	out := filepath.Base(lib.RootRelative())
	capabilities := []any{
		domain.NativeLinkable{
			LinkerFlags: flags,
			Libraries:   []domain.SourcePath{domain.NewBuildTargetSourcePath(node.Target, out)},
		},
	}
	if len(runtime) > 0 {
		capabilities = append(capabilities, domain.HasRuntimeDeps{Targets: domain.SortTargets(runtime)})
	}

	return domain.NewBuildRule(domain.BuildRuleParams{
		Target:       node.Target,
		RuleType:     pl.Type(),
		Deps:         p.Deps,
		Output:       out,
		Buildable:    &prebuiltLibrary{lib: lib, flags: flags, out: out},
		Capabilities: capabilities,
	}), nil
}

type prebuiltLibrary struct {
	lib   domain.SourcePath
	flags []string
	out   string
}

func (l *prebuiltLibrary) AppendToRuleKey(sink domain.RuleKeySink) {
	sink.SetPath("lib", l.lib)
	sink.SetStrings("linker_flags", l.flags)
}

func (l *prebuiltLibrary) BuildSteps(_ context.Context, bctx domain.BuildContext) ([]domain.Step, error) {
	bctx.RecordArtifact(l.out)
	return []domain.Step{
		domain.CopyStep{Src: bctx.Resolve(l.lib), Dst: filepath.Join(bctx.OutputDir(), l.out)},
	}, nil
}
