package app_test

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/rig/internal/adapters/artifactcache"
	"go.trai.ch/rig/internal/adapters/distributed"
	"go.trai.ch/rig/internal/adapters/eventstore"
	"go.trai.ch/rig/internal/adapters/fs"
	"go.trai.ch/rig/internal/adapters/metrics"
	"go.trai.ch/rig/internal/adapters/shell"
	"go.trai.ch/rig/internal/adapters/workers"
	"go.trai.ch/rig/internal/app"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/rig/internal/core/ports/mocks"
	"go.trai.ch/rig/internal/engine/eventlog"
	"go.uber.org/mock/gomock"
	"golang.org/x/sync/errgroup"
)

type fixture struct {
	app       *app.App
	loader    *mocks.MockConfigLoader
	renderer  *mocks.MockRenderer
	connector *mocks.MockDaemonConnector
	logger    *mocks.MockLogger
	stdout    *bytes.Buffer
	summaries []*domain.BuildResult
	root      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		loader:    mocks.NewMockConfigLoader(ctrl),
		renderer:  mocks.NewMockRenderer(ctrl),
		connector: mocks.NewMockDaemonConnector(ctrl),
		logger:    mocks.NewMockLogger(ctrl),
		stdout:    &bytes.Buffer{},
		root:      t.TempDir(),
	}
	t.Chdir(f.root)

	f.logger.EXPECT().Debug(gomock.Any(), gomock.Any()).AnyTimes()
	f.logger.EXPECT().Info(gomock.Any(), gomock.Any()).AnyTimes()
	f.logger.EXPECT().Warn(gomock.Any(), gomock.Any()).AnyTimes()
	f.logger.EXPECT().Error(gomock.Any()).AnyTimes()

	f.renderer.EXPECT().Start(gomock.Any()).Return(nil).AnyTimes()
	f.renderer.EXPECT().Stop().Return(nil).AnyTimes()
	f.renderer.EXPECT().Wait().Return(nil).AnyTimes()
	f.renderer.EXPECT().OnPlanEmit(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	f.renderer.EXPECT().OnRuleStart(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	f.renderer.EXPECT().OnRuleLog(gomock.Any(), gomock.Any()).AnyTimes()
	f.renderer.EXPECT().OnRuleComplete(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	f.renderer.EXPECT().OnBuildSummary(gomock.Any()).Do(func(r *domain.BuildResult) {
		f.summaries = append(f.summaries, r)
	}).AnyTimes()

	m, err := metrics.New()
	require.NoError(t, err)
	pools := workers.NewRegistry()
	f.app = app.New(app.Deps{
		Loader:    f.loader,
		Executor:  shell.NewExecutor(f.logger, pools),
		Logger:    f.logger,
		Hasher:    fs.NewFileHashCache(fs.NewWalker()),
		Pools:     pools,
		Opener:    artifactcache.NewOpener(f.logger),
		Metrics:   m,
		Renderer:  f.renderer,
		Connector: f.connector,
		Events:    eventstore.NewMemoryStore(),
	}).WithStdout(f.stdout)
	return f
}

func (f *fixture) workspace(t *testing.T, nodes ...*domain.TargetNode) *domain.Workspace {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "pkg", "data.txt"), []byte("data"), 0o644))

	g := domain.NewTargetGraph()
	g.SetRoot(f.root)
	for _, n := range nodes {
		require.NoError(t, g.AddNode(n))
	}
	return &domain.Workspace{
		Root:   f.root,
		Graph:  g,
		Config: domain.NewConfig(map[string]map[string]string{"cache": {"mode": "dir"}}),
	}
}

func exportFile() *domain.TargetNode {
	return &domain.TargetNode{
		Target:   domain.MustParseBuildTarget("//pkg:data"),
		RuleType: "export_file",
		Attrs:    domain.Attributes{"src": "data.txt"},
	}
}

func TestApp_BuildRestoresFromCache(t *testing.T) {
	f := newFixture(t)
	ws := f.workspace(t, exportFile())
	f.loader.EXPECT().Load(gomock.Any()).Return(ws, nil).Times(2)

	require.NoError(t, f.app.Build(context.Background(), []string{"//pkg:data"}, app.BuildOptions{}))
	require.NoError(t, f.app.Build(context.Background(), []string{"//pkg:data"}, app.BuildOptions{}))

	require.Len(t, f.summaries, 2)
	assert.Equal(t, 1, f.summaries[0].Built)
	assert.Equal(t, 0, f.summaries[0].Hits)
	assert.Equal(t, 1, f.summaries[1].Hits)

	out := filepath.Join(f.root, domain.RuleOutputPath(domain.MustParseBuildTarget("//pkg:data")), "data.txt")
	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "data", string(content))
}

func TestApp_BuildRelativeTarget(t *testing.T) {
	f := newFixture(t)
	ws := f.workspace(t, exportFile())
	t.Chdir(filepath.Join(f.root, "pkg"))
	f.loader.EXPECT().Load(gomock.Any()).Return(ws, nil)

	require.NoError(t, f.app.Build(context.Background(), []string{":data"}, app.BuildOptions{NoCache: true}))
	require.Len(t, f.summaries, 1)
	assert.Equal(t, 1, f.summaries[0].Built)
}

func TestApp_BuildFailure(t *testing.T) {
	f := newFixture(t)
	broken := &domain.TargetNode{
		Target:   domain.MustParseBuildTarget("//pkg:broken"),
		RuleType: "genrule",
		Attrs:    domain.Attributes{"cmd": "exit 3", "out": "never.txt"},
	}
	dependent := &domain.TargetNode{
		Target:   domain.MustParseBuildTarget("//pkg:dependent"),
		RuleType: "genrule",
		Deps:     []domain.BuildTarget{broken.Target},
		Attrs:    domain.Attributes{"cmd": "touch $OUT", "out": "dep.txt"},
	}
	ws := f.workspace(t, broken, dependent)
	f.loader.EXPECT().Load(gomock.Any()).Return(ws, nil)

	err := f.app.Build(context.Background(), []string{"//pkg:dependent"}, app.BuildOptions{})
	require.ErrorIs(t, err, domain.ErrBuildExecutionFailed)

	require.Len(t, f.summaries, 1)
	assert.Equal(t, []domain.BuildTarget{broken.Target}, f.summaries[0].Failed)
	assert.Equal(t, []domain.BuildTarget{dependent.Target}, f.summaries[0].Skipped)
}

func TestApp_BuildConfigError(t *testing.T) {
	f := newFixture(t)
	f.loader.EXPECT().Load(gomock.Any()).Return(nil, domain.ErrConfigNotFound)

	err := f.app.Build(context.Background(), nil, app.BuildOptions{})
	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrConfigNotFound.Error())
	assert.Empty(t, f.summaries)
}

func TestApp_BuildInDaemon(t *testing.T) {
	f := newFixture(t)
	ctrl := gomock.NewController(t)
	client := mocks.NewMockDaemonClient(ctrl)
	result := &domain.BuildResult{Built: 2}

	f.connector.EXPECT().Connect(gomock.Any()).Return(client, nil)
	client.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.BuildRequest) (*domain.BuildResult, error) {
			assert.Equal(t, []string{"//pkg:data"}, req.Targets)
			assert.True(t, req.NoCache)
			return result, nil
		})
	client.EXPECT().Close().Return(nil)

	err := f.app.Build(context.Background(), []string{"//pkg:data"}, app.BuildOptions{Daemon: true, NoCache: true})
	require.NoError(t, err)
	require.Len(t, f.summaries, 1)
	assert.Same(t, result, f.summaries[0])
}

func TestApp_DaemonBuildsDoNotOverlap(t *testing.T) {
	f := newFixture(t)
	lock := filepath.Join(f.root, "build.lock")
	slow := &domain.TargetNode{
		Target:   domain.MustParseBuildTarget("//pkg:slow"),
		RuleType: "genrule",
		Attrs: domain.Attributes{
			"cmd": "mkdir " + lock + " && sleep 0.2 && rmdir " + lock + " && touch $OUT",
			"out": "slow.txt",
		},
	}
	ws := f.workspace(t, slow)
	f.loader.EXPECT().Load(gomock.Any()).Return(ws, nil).Times(2)

	handler, closeSession, err := app.NewDaemonHandler(f.app, ws, f.loader)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeSession() })

	req := ports.BuildRequest{Cwd: f.root, Targets: []string{"//pkg:slow"}, NoCache: true}
	var g errgroup.Group
	results := make([]*domain.BuildResult, 2)
	for i := range results {
		g.Go(func() error {
			var err error
			results[i], err = handler.Build(context.Background(), req)
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, 1, res.Built)
		assert.Empty(t, res.Failed)
	}
	assert.NoDirExists(t, lock)
}

func TestApp_RuleKeys(t *testing.T) {
	f := newFixture(t)
	ws := f.workspace(t, exportFile())
	f.loader.EXPECT().Load(gomock.Any()).Return(ws, nil).Times(2)

	require.NoError(t, f.app.RuleKeys(context.Background(), []string{"//pkg:data"}))
	first := f.stdout.String()
	fields := strings.Fields(first)
	require.Len(t, fields, 2)
	assert.Len(t, fields[0], 2*domain.RuleKeySize)
	assert.Equal(t, "//pkg:data", fields[1])

	f.stdout.Reset()
	require.NoError(t, f.app.RuleKeys(context.Background(), []string{"//pkg:data"}))
	assert.Equal(t, first, f.stdout.String())

	_, err := os.Stat(filepath.Join(f.root, domain.DefaultOutPath()))
	assert.True(t, os.IsNotExist(err), "computing keys must not build")
}

func TestApp_Clean(t *testing.T) {
	f := newFixture(t)
	cache := filepath.Join(f.root, domain.DefaultArtifactCachePath())
	out := filepath.Join(f.root, domain.DefaultOutPath())
	require.NoError(t, os.MkdirAll(cache, 0o755))
	require.NoError(t, os.MkdirAll(out, 0o755))
	f.loader.EXPECT().DiscoverRoot(gomock.Any()).Return(f.root, nil).Times(2)

	require.NoError(t, f.app.Clean(context.Background(), app.CleanOptions{Cache: true}))
	assert.NoDirExists(t, cache)
	assert.DirExists(t, out)

	require.NoError(t, f.app.Clean(context.Background(), app.CleanOptions{Output: true}))
	assert.NoDirExists(t, out)
}

func TestApp_DaemonStatus(t *testing.T) {
	t.Run("not running", func(t *testing.T) {
		f := newFixture(t)
		f.connector.EXPECT().Dial(gomock.Any()).Return(nil, domain.ErrDaemonUnavailable)

		require.NoError(t, f.app.DaemonStatus(context.Background()))
		assert.Equal(t, "daemon is not running\n", f.stdout.String())
	})

	t.Run("running", func(t *testing.T) {
		f := newFixture(t)
		client := mocks.NewMockDaemonClient(gomock.NewController(t))
		f.connector.EXPECT().Dial(gomock.Any()).Return(client, nil)
		client.EXPECT().Status(gomock.Any()).Return(&ports.DaemonStatus{
			Running: true, PID: 42, GraphCacheHits: 5, GraphCacheMisses: 2,
		}, nil)
		client.EXPECT().Close().Return(nil)

		require.NoError(t, f.app.DaemonStatus(context.Background()))
		assert.Contains(t, f.stdout.String(), "pid 42")
		assert.Contains(t, f.stdout.String(), "5 hits, 2 misses")
	})
}

func TestApp_StopDaemon(t *testing.T) {
	f := newFixture(t)
	client := mocks.NewMockDaemonClient(gomock.NewController(t))
	f.connector.EXPECT().Dial(gomock.Any()).Return(client, nil)
	client.EXPECT().Shutdown(gomock.Any()).Return(errors.New("boom"))
	client.EXPECT().Close().Return(nil)

	err := f.app.StopDaemon(context.Background())
	assert.ErrorContains(t, err, "boom")
}

func startEventService(t *testing.T, logger ports.Logger) (string, *eventlog.Log) {
	t.Helper()
	log := eventlog.NewLog(eventstore.NewMemoryStore(), logger, nil, eventlog.Options{})
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- distributed.NewServer(log, logger).Serve(ctx, lis)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return lis.Addr().String(), log
}

func TestApp_EventsQueryAndTail(t *testing.T) {
	f := newFixture(t)
	f.loader.EXPECT().Load(gomock.Any()).Return(nil, domain.ErrConfigNotFound).AnyTimes()
	addr, log := startEventService(t, f.logger)

	ctx := context.Background()
	runID, err := log.OpenRun(ctx)
	require.NoError(t, err)
	_, err = log.Publish(ctx, runID, []domain.BuildSlaveEvent{
		{SlaveID: "s1", Type: domain.EventRuleStarted, Payload: map[string]string{"target": "//pkg:data"}},
		{SlaveID: "s1", Type: domain.EventRuleFinished, Payload: map[string]string{"target": "//pkg:data", "status": "built"}},
		{SlaveID: "s1", Type: domain.EventBuildFinished},
	})
	require.NoError(t, err)

	err = f.app.EventsQuery(ctx, app.EventsOptions{Addr: addr, RunID: runID.String(), First: domain.Seq(2), Last: domain.Seq(2)})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(f.stdout.String()), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "2\t"))
	assert.True(t, strings.HasSuffix(lines[0], "\ts1\trule_finished\tstatus=built target=//pkg:data"))

	f.stdout.Reset()
	require.NoError(t, f.app.EventsTail(ctx, app.EventsOptions{Addr: addr, RunID: runID.String()}))
	assert.Len(t, strings.Split(strings.TrimSpace(f.stdout.String()), "\n"), 3)

	err = f.app.EventsQuery(ctx, app.EventsOptions{Addr: addr, RunID: "unknown"})
	assert.ErrorContains(t, err, domain.ErrEventsQueryFailed.Error())
}

func TestApp_EventsRequireAddressOutsideWorkspace(t *testing.T) {
	f := newFixture(t)
	f.loader.EXPECT().Load(gomock.Any()).Return(nil, domain.ErrConfigNotFound)

	err := f.app.EventsQuery(context.Background(), app.EventsOptions{RunID: "run"})
	assert.ErrorContains(t, err, domain.ErrConfigNotFound.Error())
}
