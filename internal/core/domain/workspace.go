package domain

// Workspace is a loaded project: its root, its target graph and its engine configuration.
type Workspace struct {
	Root   string
	Graph  *TargetGraph
	Config Config
}
