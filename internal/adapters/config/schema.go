package config

// Workfile represents the structure of the rig.work.yaml configuration file.
type Workfile struct {
	Version  string                    `yaml:"version"`
	Root     string                    `yaml:"root"`
	Config   map[string]map[string]any `yaml:"config"`
	Packages []string                  `yaml:"packages"`
}

// Rigfile represents the structure of a rig.yaml configuration file.
type Rigfile struct {
	Version string                    `yaml:"version"`
	Root    string                    `yaml:"root"`
	Config  map[string]map[string]any `yaml:"config"`
	Targets map[string]*TargetDTO     `yaml:"targets"`
}

// TargetDTO represents a target definition in the configuration. Every key other
// than rule, deps and implicit_deps is a rule attribute.
type TargetDTO struct {
	Rule         string         `yaml:"rule"`
	Deps         []string       `yaml:"deps"`
	ImplicitDeps []string       `yaml:"implicit_deps"`
	Attrs        map[string]any `yaml:",inline"`
}
