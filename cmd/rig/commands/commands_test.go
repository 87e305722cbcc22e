package commands_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/rig/cmd/rig/commands"
	"go.trai.ch/rig/internal/app"
	"go.trai.ch/rig/internal/build"
)

type call struct {
	name    string
	targets []string
	build   app.BuildOptions
	clean   app.CleanOptions
	events  app.EventsOptions
	addr    string
	store   string
}

type mockApp struct {
	calls []call
	err   error
}

func (m *mockApp) record(c call) error {
	m.calls = append(m.calls, c)
	return m.err
}

func (m *mockApp) Build(_ context.Context, targets []string, opts app.BuildOptions) error {
	return m.record(call{name: "build", targets: targets, build: opts})
}

func (m *mockApp) RuleKeys(_ context.Context, targets []string) error {
	return m.record(call{name: "rulekey", targets: targets})
}

func (m *mockApp) Clean(_ context.Context, opts app.CleanOptions) error {
	return m.record(call{name: "clean", clean: opts})
}

func (m *mockApp) ServeDaemon(context.Context) error  { return m.record(call{name: "daemon serve"}) }
func (m *mockApp) DaemonStatus(context.Context) error { return m.record(call{name: "daemon status"}) }
func (m *mockApp) StopDaemon(context.Context) error   { return m.record(call{name: "daemon stop"}) }

func (m *mockApp) EventsQuery(_ context.Context, opts app.EventsOptions) error {
	return m.record(call{name: "events query", events: opts})
}

func (m *mockApp) EventsTail(_ context.Context, opts app.EventsOptions) error {
	return m.record(call{name: "events tail", events: opts})
}

func (m *mockApp) ServeEvents(_ context.Context, addr, store string) error {
	return m.record(call{name: "events serve", addr: addr, store: store})
}

type switchLogger struct {
	json    bool
	verbose bool
}

func (*switchLogger) Debug(string, ...any) {}
func (*switchLogger) Info(string, ...any)  {}
func (*switchLogger) Warn(string, ...any)  {}
func (*switchLogger) Error(error)          {}
func (l *switchLogger) SetJSON(enable bool)    { l.json = enable }
func (l *switchLogger) SetVerbose(enable bool) { l.verbose = enable }

func execute(t *testing.T, m *mockApp, args ...string) (string, error) {
	t.Helper()
	cli := commands.New(m, nil)
	cli.SetArgs(args)
	buf := new(bytes.Buffer)
	cli.SetOutput(buf, buf)
	err := cli.Execute(context.Background())
	return buf.String(), err
}

func TestCommands_Build(t *testing.T) {
	t.Run("wires flags correctly", func(t *testing.T) {
		m := &mockApp{}
		_, err := execute(t, m, "build", "//pkg:a", ":b", "--no-cache", "-j", "4",
			"--run-id", "run-1", "--events-addr", "localhost:7420", "--daemon")
		require.NoError(t, err)
		require.Len(t, m.calls, 1)
		assert.Equal(t, []string{"//pkg:a", ":b"}, m.calls[0].targets)
		assert.Equal(t, app.BuildOptions{
			NoCache: true, Threads: 4, RunID: "run-1", EventsAddr: "localhost:7420", Daemon: true,
		}, m.calls[0].build)
	})

	t.Run("returns error on build failure", func(t *testing.T) {
		m := &mockApp{err: errors.New("simulated error")}
		_, err := execute(t, m, "build")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "simulated error")
	})
}

func TestCommands_RuleKey(t *testing.T) {
	m := &mockApp{}
	_, err := execute(t, m, "rulekey", "//pkg:a")
	require.NoError(t, err)
	assert.Equal(t, []call{{name: "rulekey", targets: []string{"//pkg:a"}}}, m.calls)
}

func TestCommands_Clean(t *testing.T) {
	tests := []struct {
		args []string
		want app.CleanOptions
	}{
		{args: nil, want: app.CleanOptions{Cache: true, Output: true}},
		{args: []string{"--cache"}, want: app.CleanOptions{Cache: true}},
		{args: []string{"--out"}, want: app.CleanOptions{Output: true}},
	}
	for _, tt := range tests {
		m := &mockApp{}
		_, err := execute(t, m, append([]string{"clean"}, tt.args...)...)
		require.NoError(t, err)
		require.Len(t, m.calls, 1)
		assert.Equal(t, tt.want, m.calls[0].clean, "args %v", tt.args)
	}
}

func TestCommands_Daemon(t *testing.T) {
	for _, sub := range []string{"serve", "status", "stop"} {
		m := &mockApp{}
		_, err := execute(t, m, "daemon", sub)
		require.NoError(t, err)
		require.Len(t, m.calls, 1)
		assert.Equal(t, "daemon "+sub, m.calls[0].name)
	}
}

func TestCommands_Events(t *testing.T) {
	t.Run("query with range", func(t *testing.T) {
		m := &mockApp{}
		_, err := execute(t, m, "events", "query", "run-1", "--addr", "host:1", "--first", "2", "--last", "4")
		require.NoError(t, err)
		require.Len(t, m.calls, 1)
		opts := m.calls[0].events
		assert.Equal(t, "run-1", opts.RunID)
		assert.Equal(t, "host:1", opts.Addr)
		require.NotNil(t, opts.First)
		require.NotNil(t, opts.Last)
		assert.Equal(t, int64(2), *opts.First)
		assert.Equal(t, int64(4), *opts.Last)
	})

	t.Run("query open ended", func(t *testing.T) {
		m := &mockApp{}
		_, err := execute(t, m, "events", "query", "run-1")
		require.NoError(t, err)
		assert.Nil(t, m.calls[0].events.First)
		assert.Nil(t, m.calls[0].events.Last)
	})

	t.Run("query needs a run", func(t *testing.T) {
		_, err := execute(t, &mockApp{}, "events", "query")
		assert.Error(t, err)
	})

	t.Run("tail", func(t *testing.T) {
		m := &mockApp{}
		_, err := execute(t, m, "events", "tail", "run-1", "--first", "3")
		require.NoError(t, err)
		assert.Equal(t, "events tail", m.calls[0].name)
		assert.Equal(t, int64(3), *m.calls[0].events.First)
	})

	t.Run("serve", func(t *testing.T) {
		m := &mockApp{}
		_, err := execute(t, m, "events", "serve", "--addr", ":9000", "--store", "redis")
		require.NoError(t, err)
		assert.Equal(t, call{name: "events serve", addr: ":9000", store: "redis"}, m.calls[0])
	})
}

func TestCommands_LogFlags(t *testing.T) {
	log := &switchLogger{}
	cli := commands.New(&mockApp{}, log)
	cli.SetArgs([]string{"--json-logs", "--verbose", "daemon", "status"})
	cli.SetOutput(new(bytes.Buffer), new(bytes.Buffer))
	require.NoError(t, cli.Execute(context.Background()))
	assert.True(t, log.json)
	assert.True(t, log.verbose)

	log = &switchLogger{json: true}
	cli = commands.New(&mockApp{}, log)
	cli.SetArgs([]string{"daemon", "status"})
	cli.SetOutput(new(bytes.Buffer), new(bytes.Buffer))
	require.NoError(t, cli.Execute(context.Background()))
	assert.True(t, log.json, "unset flags leave the logger alone")
}

func TestCommands_Version(t *testing.T) {
	out, err := execute(t, &mockApp{}, "version")
	require.NoError(t, err)
	assert.Equal(t, "rig version "+build.Version+" (commit: "+build.Commit+", date: "+build.Date+")\n", out)
}

func TestCommands_VersionFlag(t *testing.T) {
	for _, flag := range []string{"--version", "-v"} {
		t.Run(flag, func(t *testing.T) {
			var out string
			var err error
			require.NotPanics(t, func() {
				out, err = execute(t, &mockApp{}, flag)
			})
			require.NoError(t, err)
			assert.Equal(t, "rig version "+build.Version+" (commit: "+build.Commit+", date: "+build.Date+")\n", out)
		})
	}
}
