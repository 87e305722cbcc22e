// Package shell provides the step executor that runs build steps on the local host.
package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/creack/pty"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/zerr"
)

// commandWinsize is the terminal size commands see. A fixed size keeps line
// wrapping in captured output independent of the invoking terminal.
var commandWinsize = &pty.Winsize{Rows: 50, Cols: 160}

type ptyProcess struct {
	cmd    *exec.Cmd
	ioDone <-chan struct{}
}

func (p *ptyProcess) Wait() error {
	err := p.cmd.Wait()
	// Wait for the copy loop to drain the pty.
	<-p.ioDone
	return err
}

// Executor implements ports.StepExecutor. Commands run in a pty.
type Executor struct {
	logger ports.Logger
	pools  ports.WorkerPools
}

var _ ports.StepExecutor = (*Executor)(nil)

// NewExecutor creates an Executor. pools may be nil when no worker pools are configured.
func NewExecutor(logger ports.Logger, pools ports.WorkerPools) *Executor {
	return &Executor{
		logger: logger,
		pools:  pools,
	}
}

// Execute runs the steps of batch in order and stops at the first failure. Command
// output goes to stdout since the pty merges both streams.
func (e *Executor) Execute(
	ctx context.Context,
	batch domain.StepBatch,
	stdout, _ io.Writer,
) ([]domain.StepResult, error) {
	results := make([]domain.StepResult, 0, len(batch.Steps))
	for _, step := range batch.Steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		start := time.Now()
		exitCode, err := e.runStep(ctx, batch, step, stdout)
		results = append(results, domain.StepResult{
			Step:     step,
			ExitCode: exitCode,
			Duration: time.Since(start),
			Err:      err,
		})
		if err != nil {
			err = zerr.With(zerr.Wrap(err, domain.ErrStepFailed.Error()), "step", step.Description())
			return results, zerr.With(err, "exit_code", exitCode)
		}
	}
	return results, nil
}

func (e *Executor) runStep(
	ctx context.Context,
	batch domain.StepBatch,
	step domain.Step,
	stdout io.Writer,
) (int, error) {
	switch s := step.(type) {
	case domain.CommandStep:
		if s.Pool == "" {
			return e.runCommand(ctx, batch, s, stdout)
		}
		return e.runPooled(ctx, batch, s, stdout)
	case domain.MakeCleanDirectoryStep:
		dir := resolve(batch.WorkingDir, s.Path)
		if err := os.RemoveAll(dir); err != nil {
			return -1, err
		}
		return exitCodeOf(os.MkdirAll(dir, domain.DirPerm))
	case domain.MkdirStep:
		return exitCodeOf(os.MkdirAll(resolve(batch.WorkingDir, s.Path), domain.DirPerm))
	case domain.WriteFileStep:
		return exitCodeOf(writeFile(resolve(batch.WorkingDir, s.Path), s.Content, s.Executable))
	case domain.CopyStep:
		return exitCodeOf(copyPath(resolve(batch.WorkingDir, s.Src), resolve(batch.WorkingDir, s.Dst)))
	default:
		return -1, zerr.With(domain.ErrUnknownStep, "kind", step.Kind())
	}
}

// exitCodeOf maps the outcome of a filesystem step to an exit code.
func exitCodeOf(err error) (int, error) {
	if err != nil {
		return -1, err
	}
	return 0, nil
}

func (e *Executor) runPooled(
	ctx context.Context,
	batch domain.StepBatch,
	s domain.CommandStep,
	stdout io.Writer,
) (int, error) {
	if e.pools == nil {
		return -1, zerr.With(domain.ErrUnknownWorkerPool, "pool", s.Pool)
	}
	pool, err := e.pools.Pool(s.Pool)
	if err != nil {
		return -1, err
	}
	exitCode := -1
	err = pool.Run(ctx, func(ctx context.Context) error {
		var runErr error
		exitCode, runErr = e.runCommand(ctx, batch, s, stdout)
		return runErr
	})
	return exitCode, err
}

func (e *Executor) runCommand(
	ctx context.Context,
	batch domain.StepBatch,
	s domain.CommandStep,
	stdout io.Writer,
) (int, error) {
	outLog := &logWriter{logger: e.logger}
	proc, err := start(ctx, batch, s, io.MultiWriter(outLog, stdout), outLog)
	if err != nil {
		return -1, err
	}
	if proc == nil {
		return 0, nil // Empty command
	}

	if err := proc.Wait(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return exitCode, zerr.With(zerr.Wrap(err, "command failed"), "exit_code", exitCode)
	}
	return 0, nil
}

func start(ctx context.Context, batch domain.StepBatch, s domain.CommandStep, out io.Writer, outLog *logWriter) (*ptyProcess, error) {
	if len(s.Args) == 0 {
		return nil, nil
	}

	name := s.Args[0]
	args := s.Args[1:]

	cmdEnv := resolveEnvironment(os.Environ(), batch.Env, s.Env)

	executable := name
	if !filepath.IsAbs(name) {
		if lp, err := lookPath(name, cmdEnv); err == nil {
			executable = lp
		}
	}

	cmd := exec.CommandContext(ctx, executable, args...) //nolint:gosec // user provided command
	if len(cmd.Args) > 0 {
		cmd.Args[0] = name
	}
	cmd.Dir = batch.WorkingDir
	if s.Dir != "" {
		cmd.Dir = resolve(batch.WorkingDir, s.Dir)
	}
	cmd.Env = cmdEnv

	ptmx, err := pty.StartWithSize(cmd, commandWinsize)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to start pty")
	}

	ioDone := make(chan struct{})
	go func() {
		defer close(ioDone)
		defer func() { _ = ptmx.Close() }()
		// Flush a trailing partial line once IO is done.
		defer func() { _ = outLog.Close() }()
		// The pty merges stdout and stderr.
		_, _ = io.Copy(out, ptmx)
	}()

	return &ptyProcess{cmd: cmd, ioDone: ioDone}, nil
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}

func writeFile(path string, content []byte, executable bool) error {
	if err := os.MkdirAll(filepath.Dir(path), domain.DirPerm); err != nil {
		return err
	}
	perm := os.FileMode(domain.FilePerm)
	if executable {
		perm = 0o755
	}
	if err := os.WriteFile(path, content, perm); err != nil {
		return err
	}
	return os.Chmod(path, perm)
}

// copyPath copies a file, or a directory tree into dst.
func copyPath(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		if err := os.MkdirAll(dst, domain.DirPerm); err != nil {
			return err
		}
		return os.CopyFS(dst, os.DirFS(src))
	}
	if err := os.MkdirAll(filepath.Dir(dst), domain.DirPerm); err != nil {
		return err
	}
	in, err := os.Open(src) //nolint:gosec // rule source path
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm()) //nolint:gosec // rule output path
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// logWriter forwards complete lines of command output to the debug log.
type logWriter struct {
	logger ports.Logger
	buf    []byte
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.logLine(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *logWriter) Close() error {
	if len(w.buf) > 0 {
		w.logLine(w.buf)
		w.buf = nil
	}
	return nil
}

func (w *logWriter) logLine(line []byte) {
	// PTYs may introduce \r. Remove it.
	w.logger.Debug(strings.TrimSuffix(string(line), "\r"))
}

// allowListedEnvVars are the system environment variables inherited by commands.
var allowListedEnvVars = map[string]struct{}{
	"HOME":   {},
	"TERM":   {},
	"USER":   {},
	"PATH":   {},
	"TMPDIR": {},
}

// resolveEnvironment merges the allow-listed system environment, the batch
// environment and the step environment, later ones winning. A PATH set by the
// batch is prepended to the system PATH.
func resolveEnvironment(sysEnv []string, batchEnv, stepEnv map[string]string) []string {
	envMap := filterSystemEnv(sysEnv)

	for k, v := range batchEnv {
		if k == "PATH" {
			if sysPath, exists := envMap["PATH"]; exists && sysPath != "" {
				v = v + string(os.PathListSeparator) + sysPath
			}
		}
		envMap[k] = v
	}
	for k, v := range stepEnv {
		envMap[k] = v
	}

	result := make([]string, 0, len(envMap))
	for k, v := range envMap {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

func filterSystemEnv(sysEnv []string) map[string]string {
	envMap := make(map[string]string)
	for _, entry := range sysEnv {
		k, v, ok := strings.Cut(entry, "=")
		if ok {
			if _, allowed := allowListedEnvVars[k]; allowed {
				envMap[k] = v
			}
		}
	}
	return envMap
}

// lookPath searches for an executable in the directories named by the PATH environment variable.
func lookPath(file string, env []string) (string, error) {
	var path string
	for _, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			path = strings.TrimPrefix(e, "PATH=")
			break
		}
	}

	if path == "" {
		return "", exec.ErrNotFound
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		path := filepath.Join(dir, file)
		if err := findExecutable(path); err == nil {
			return path, nil
		}
	}
	return "", exec.ErrNotFound
}

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0o111 != 0 {
		return nil
	}
	return os.ErrPermission
}
