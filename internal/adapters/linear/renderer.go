// Package linear provides a synchronous, line-buffered renderer for CI environments.
package linear

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/muesli/termenv"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/rig/internal/ui/output"
	"go.trai.ch/rig/internal/ui/style"
)

// prefixColors are assigned to rule prefixes by hashing the rule name.
var prefixColors = []termenv.ANSIColor{
	termenv.ANSICyan,
	termenv.ANSIMagenta,
	termenv.ANSIBlue,
	termenv.ANSIYellow,
	termenv.ANSIBrightCyan,
	termenv.ANSIBrightMagenta,
	termenv.ANSIBrightBlue,
}

// Renderer implements ports.Renderer for CI and other non-interactive output.
// Rule output goes to stdout prefixed with the rule name, progress and the summary to
// stderr.
type Renderer struct {
	stdout  io.Writer
	stderr  io.Writer
	output  *termenv.Output
	palette style.Palette

	mu      sync.Mutex
	rules   map[string]*ruleState // spanID -> rule state
	buffers map[string]*bytes.Buffer
}

var _ ports.Renderer = (*Renderer)(nil)

type ruleState struct {
	name      string
	startTime time.Time
}

// NewRenderer creates a new Renderer. Nil writers select stdout and stderr.
func NewRenderer(stdout, stderr io.Writer) *Renderer {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	return &Renderer{
		stdout:  stdout,
		stderr:  stderr,
		output:  output.New(stderr, output.ANSI),
		palette: style.NewPalette(output.Lipgloss(stderr, output.ANSI)),
		rules:   make(map[string]*ruleState),
		buffers: make(map[string]*bytes.Buffer),
	}
}

// Start is a no-op for linear renderer (synchronous).
func (r *Renderer) Start(_ context.Context) error {
	return nil
}

// Stop flushes all remaining buffers.
func (r *Renderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for spanID := range r.buffers {
		r.flushBufferLocked(spanID)
	}
	return nil
}

// Wait is a no-op for linear renderer (synchronous).
func (r *Renderer) Wait() error {
	return nil
}

// OnPlanEmit prints the planned rules.
func (r *Renderer) OnPlanEmit(rules []string, _ map[string][]string, targets []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	what := "all targets"
	if len(targets) > 0 {
		what = strings.Join(targets, " ")
	}
	_, _ = fmt.Fprintf(r.stderr, "Planning to build %d rule(s) for %s\n", len(rules), what)
}

// OnRuleStart prints a rule start message.
func (r *Renderer) OnRuleStart(spanID, _ /* parentID */, name string, startTime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rules[spanID] = &ruleState{name: name, startTime: startTime}
	r.buffers[spanID] = new(bytes.Buffer)

	_, _ = fmt.Fprintf(r.stderr, "%s Starting...\n", r.prefix(name))
}

// prefix renders the bracketed rule name in the colour assigned to it.
func (r *Renderer) prefix(name string) string {
	c := prefixColors[xxhash.Sum64String(name)%uint64(len(prefixColors))]
	return r.output.String("[" + name + "]").Foreground(c).String()
}

// OnRuleLog buffers log data and prints complete lines with rule prefix.
func (r *Renderer) OnRuleLog(spanID string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, ok := r.rules[spanID]
	if !ok {
		return
	}

	buf := r.buffers[spanID]
	buf.Write(data)
	for {
		line, err := buf.ReadBytes('\n')
		if err != nil {
			// Keep the partial line for the next chunk.
			buf.Reset()
			buf.Write(line)
			break
		}
		r.printLineLocked(rule.name, line)
	}
}

// OnRuleComplete flushes remaining buffer and prints completion status.
func (r *Renderer) OnRuleComplete(spanID string, endTime time.Time, cached bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, ok := r.rules[spanID]
	if !ok {
		return
	}
	r.flushBufferLocked(spanID)

	duration := endTime.Sub(rule.startTime).Round(time.Millisecond)
	prefix := r.prefix(rule.name)
	switch {
	case err != nil:
		_, _ = fmt.Fprintf(r.stderr, "%s %s Failed after %v: %v\n",
			prefix, r.palette.Failure.Render(style.Cross), duration, err)
	case cached:
		_, _ = fmt.Fprintf(r.stderr, "%s %s Restored from cache in %v\n",
			prefix, r.palette.Cached.Render(style.Tilde), duration)
	default:
		_, _ = fmt.Fprintf(r.stderr, "%s %s Completed in %v\n",
			prefix, r.palette.Success.Render(style.Check), duration)
	}

	delete(r.rules, spanID)
	delete(r.buffers, spanID)
}

// OnBuildSummary prints the totals of the build, its failures and skipped rules.
func (r *Renderer) OnBuildSummary(result *domain.BuildResult) {
	if result == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := fmt.Sprintf("%d built, %d cached, %d failed, %d skipped",
		result.Built, result.Hits, len(result.Failed), len(result.Skipped))
	if result.Succeeded() {
		_, _ = fmt.Fprintf(r.stderr, "%s %s (%s)\n",
			r.palette.Success.Render(style.Check), r.palette.Title.Render("Build succeeded"), counts)
		return
	}

	_, _ = fmt.Fprintf(r.stderr, "%s %s (%s)\n",
		r.palette.Failure.Render(style.Cross), r.palette.Title.Render("Build failed"), counts)
	for _, t := range result.Failed {
		msg := "failed"
		if rr, ok := result.Result(t); ok && rr.Err != nil {
			msg = rr.Err.Error()
		}
		_, _ = fmt.Fprintf(r.stderr, "  %s %s: %s\n", r.palette.Failure.Render(style.Cross), t, msg)
	}
	for _, t := range result.Skipped {
		_, _ = fmt.Fprintf(r.stderr, "  %s %s %s\n",
			r.palette.Skipped.Render(style.Circle), t, r.palette.Faint.Render("(skipped)"))
	}
}

// flushBufferLocked flushes any remaining data in the buffer for a rule.
// Must be called with r.mu held.
func (r *Renderer) flushBufferLocked(spanID string) {
	rule, ok := r.rules[spanID]
	if !ok {
		return
	}
	buf := r.buffers[spanID]
	if buf.Len() > 0 {
		r.printLineLocked(rule.name, buf.Bytes())
		buf.Reset()
	}
}

// printLineLocked prints a line with the rule name prefix.
// Must be called with r.mu held.
func (r *Renderer) printLineLocked(name string, line []byte) {
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(line) == 0 {
		return
	}
	_, _ = fmt.Fprintf(r.stdout, "[%s] %s\n", name, line)
}
