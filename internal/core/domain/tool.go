package domain

import (
	"maps"
	"slices"
)

// Tool is a command prefix with its environment. Tools are folded into the keys of the
// rules that invoke them.
type Tool struct {
	Name    string
	Command []string
	Env     map[string]string
	// Inputs are files the tool reads beyond its command, e.g. a script.
	Inputs []SourcePath
}

// AppendToRuleKey implements Appendable.
func (t Tool) AppendToRuleKey(sink RuleKeySink) {
	sink.SetString("name", t.Name)
	sink.SetStrings("command", t.Command)
	sink.SetStrings("env", t.EnvPairs())
	sink.SetPaths("inputs", t.Inputs)
}

// EnvPairs returns the environment as sorted KEY=VALUE pairs.
func (t Tool) EnvPairs() []string {
	keys := slices.Sorted(maps.Keys(t.Env))
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+t.Env[k])
	}
	return pairs
}

// IsZero reports whether the tool is unset.
func (t Tool) IsZero() bool {
	return t.Name == "" && len(t.Command) == 0
}
