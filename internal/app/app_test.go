package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailhub/trailsuggest/internal/config"
	"github.com/trailhub/trailsuggest/internal/controller"
	"github.com/trailhub/trailsuggest/internal/session"
	"github.com/trailhub/trailsuggest/policy"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func writeTrails(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestBuildWithoutCorpus(t *testing.T) {
	cfg := config.DefaultConfig()

	a, err := Build(context.Background(), cfg, nil, quietLogger())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Corpus)
	assert.False(t, a.Geocoder.Enabled())
	assert.Equal(t, 0, a.Controller.Index().Len())

	n, err := a.Reload(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBuildLoadsFileCorpus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trails.json")
	writeTrails(t, path, `[{"name":"Lion's Head"},{"name":"Pipe Track"}]`)

	cfg := config.DefaultConfig()
	cfg.Trails.File = path

	a, err := Build(context.Background(), cfg, nil, quietLogger())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "file:"+path, a.Corpus.String())
	assert.Equal(t, 2, a.Controller.Index().Len())
	require.Len(t, a.Controller.Local("lion"), 1)
}

func TestBuildFailsOnUnreadableCorpus(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Trails.File = filepath.Join(t.TempDir(), "missing.json")

	_, err := Build(context.Background(), cfg, nil, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load corpus")
}

func TestBuildOpensSQLiteCorpus(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Trails.SQLite = filepath.Join(t.TempDir(), "db", "trails.db")

	a, err := Build(context.Background(), cfg, nil, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "sqlite:trails.db", a.Corpus.String())
	assert.Equal(t, 0, a.Controller.Index().Len())
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestRunRefreshBroadcasts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trails.json")
	writeTrails(t, path, `[{"name":"Pipe Track"}]`)

	cfg := config.DefaultConfig()
	cfg.Trails.File = path
	a, err := Build(context.Background(), cfg, nil, quietLogger())
	require.NoError(t, err)
	defer a.Close()

	registry := session.NewRegistry(nil, nil, a.Controller.Index, session.RegistryConfig{
		Options: a.SessionOptions(quietLogger()),
	})
	defer registry.Close()
	_, sess, err := registry.Create()
	require.NoError(t, err)
	before := sess.CorpusVersion()

	writeTrails(t, path, `[{"name":"Pipe Track"},{"name":"Kasteelspoort"}]`)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.RunRefresh(ctx, 10*time.Millisecond, registry)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return a.Controller.Index().Len() == 2 && sess.CorpusVersion() != before
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestPolicyConfigCoversBothEndpoints(t *testing.T) {
	cfg := config.DefaultConfig()
	pc := PolicyConfig(cfg)

	require.Len(t, pc.Sources, 2)
	assert.Equal(t, controller.SourceForward, pc.Sources[0].Name)
	assert.Equal(t, controller.SourceReverse, pc.Sources[1].Name)
	assert.Equal(t, 5*time.Second, pc.Sources[0].Timeout)
	assert.Equal(t, cfg.Search.BudgetMs, pc.BudgetMs)

	_, err := policy.NewController(pc, nil, nil)
	require.NoError(t, err)
}

func TestFuseAndSessionOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	fc := FuseConfig(cfg)
	assert.Equal(t, 8, fc.MaxTotal)
	assert.Equal(t, 5, fc.GeocodedMax)
	assert.Equal(t, 3, fc.GeocodedReduced)

	a := &App{Config: cfg}
	opts := a.SessionOptions(nil)
	assert.Equal(t, 300*time.Millisecond, opts.Debounce)
	assert.Equal(t, 6, opts.PreviewLimit)
}
