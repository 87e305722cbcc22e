package domain

import (
	"fmt"
	"strings"
	"time"
)

// Step is a unit of work produced by a rule. Paths are relative to the batch working
// directory unless absolute.
type Step interface {
	// Kind returns a short identifier of the step type.
	Kind() string
	// Description returns a human readable summary.
	Description() string
}

// CommandStep runs an external command.
type CommandStep struct {
	Args []string
	Env  map[string]string
	// Dir is the working directory. Empty means the batch working directory.
	Dir string
	// Pool names a worker pool that bounds concurrent invocations.
	Pool string
}

// Kind implements Step.
func (CommandStep) Kind() string { return "command" }

// Description implements Step.
func (s CommandStep) Description() string { return strings.Join(s.Args, " ") }

// MakeCleanDirectoryStep removes a directory if it exists and recreates it empty.
type MakeCleanDirectoryStep struct {
	Path string
}

// Kind implements Step.
func (MakeCleanDirectoryStep) Kind() string { return "make_clean_dir" }

// Description implements Step.
func (s MakeCleanDirectoryStep) Description() string { return "rm -rf " + s.Path + " && mkdir -p " + s.Path }

// MkdirStep creates a directory and its parents.
type MkdirStep struct {
	Path string
}

// Kind implements Step.
func (MkdirStep) Kind() string { return "mkdir" }

// Description implements Step.
func (s MkdirStep) Description() string { return "mkdir -p " + s.Path }

// WriteFileStep writes fixed content to a file.
type WriteFileStep struct {
	Path       string
	Content    []byte
	Executable bool
}

// Kind implements Step.
func (WriteFileStep) Kind() string { return "write_file" }

// Description implements Step.
func (s WriteFileStep) Description() string { return fmt.Sprintf("write %d bytes to %s", len(s.Content), s.Path) }

// CopyStep copies a file or a directory tree.
type CopyStep struct {
	Src string
	Dst string
}

// Kind implements Step.
func (CopyStep) Kind() string { return "copy" }

// Description implements Step.
func (s CopyStep) Description() string { return "cp -r " + s.Src + " " + s.Dst }

// StepBatch is the ordered list of steps of one rule.
type StepBatch struct {
	Target     BuildTarget
	Steps      []Step
	WorkingDir string
	Env        map[string]string
}

// StepResult reports the outcome of a single step.
type StepResult struct {
	Step     Step
	ExitCode int
	Duration time.Duration
	Err      error
}
