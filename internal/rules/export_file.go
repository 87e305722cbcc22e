package rules

import (
	"context"
	"path"
	"path/filepath"

	"go.trai.ch/rig/internal/core/domain"
)

// ExportFile copies a source file into the output tree so other rules can reference
// it as a rule output.
//
// Attributes: src (defaults to the short name), out (defaults to the base name of src).
type ExportFile struct{}

// Type implements Description.
func (ExportFile) Type() string { return "export_file" }

// ImplicitDeps implements Description.
func (ExportFile) ImplicitDeps(*domain.TargetNode) ([]domain.BuildTarget, error) {
	return nil, nil
}

// CreateBuildRule implements Description.
func (e ExportFile) CreateBuildRule(_ context.Context, p Params) (*domain.BuildRule, error) {
	node := p.Node
	srcValue, err := node.Attrs.OptionalString("src", node.Target.ShortName())
	if err != nil {
		return nil, err
	}
	src, err := sourcePath(srcValue, node, "src", p)
	if err != nil {
		return nil, err
	}
	out, err := node.Attrs.OptionalString("out", path.Base(srcValue))
	if err != nil {
		return nil, err
	}

	return domain.NewBuildRule(domain.BuildRuleParams{
		Target:    node.Target,
		RuleType:  e.Type(),
		Deps:      p.Deps,
		Output:    out,
		Buildable: &exportFile{src: src, out: out},
	}), nil
}

type exportFile struct {
	src domain.SourcePath
	out string
}

func (e *exportFile) AppendToRuleKey(sink domain.RuleKeySink) {
	sink.SetPath("src", e.src)
}

func (e *exportFile) BuildSteps(_ context.Context, bctx domain.BuildContext) ([]domain.Step, error) {
	bctx.RecordArtifact(e.out)
	return []domain.Step{
		domain.CopyStep{Src: bctx.Resolve(e.src), Dst: filepath.Join(bctx.OutputDir(), e.out)},
	}, nil
}
