package engine

import (
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spaghettifunk/assetloader/engine/assets/loaders"
	"github.com/spaghettifunk/assetloader/engine/config"
	"github.com/spaghettifunk/assetloader/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "models"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "models", "room.glb"), []byte("room"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "98.css"), []byte("body{}"), 0o644))

	cfg := config.Default()
	cfg.App.BaseURL = "/Louis_Portfoli0/"
	cfg.Loader.Root = root
	cfg.Loader.Workers = 2

	e, err := New(cfg, prometheus.NewRegistry())
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	t.Cleanup(func() { _ = e.Shutdown() })
	return e, root
}

func TestEngineRequiresInitialize(t *testing.T) {
	e, err := New(config.Default(), nil)
	require.NoError(t, err)
	assert.Equal(t, EngineStageUninitialized, e.Stage())

	_, err = e.Load("room.glb")
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = e.LoadAll([]string{"room.glb"})
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = e.LoadAsync("room.glb")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestEngineRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.App.BuildAssetsDir = "_nuxt"
	_, err := New(cfg, nil)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestEngineInitializeFailureCanRetry(t *testing.T) {
	root := filepath.Join(t.TempDir(), "missing")
	cfg := config.Default()
	cfg.Loader.Root = root
	reg := prometheus.NewRegistry()

	e, err := New(cfg, reg)
	require.NoError(t, err)
	require.Error(t, e.Initialize())
	assert.Equal(t, EngineStageUninitialized, e.Stage())

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families, "failed Initialize must not leave collectors behind")

	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "fox.glb"), []byte("fox"), 0o644))
	require.NoError(t, e.Initialize())
	defer e.Shutdown()

	res, err := e.Load("fox.glb")
	require.NoError(t, err)
	assert.Equal(t, []byte("fox"), res.Data)
	assert.Equal(t, int64(1), e.Metrics().Count(core.OutcomeSuccess))
}

func TestEngineSite(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "98.css"), []byte("body{}"), 0o644))

	cfg := config.Default()
	cfg.App.BaseURL = "/Louis_Portfoli0/"
	cfg.CSS = []string{"98.css", "/Louis_Portfoli0/theme.css", "https://unpkg.com/98.css"}
	cfg.Loader.Root = root

	e, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer e.Shutdown()

	site := e.Site()
	assert.True(t, site.SPA)
	assert.Equal(t, "/Louis_Portfoli0/", site.BaseURL)
	assert.Equal(t, "/Louis_Portfoli0/assets/", site.AssetsPrefix)
	assert.Equal(t, cfg.CSS, site.Stylesheets)
	assert.Equal(t, []string{"/Louis_Portfoli0/theme.css"}, site.MissingStylesheets)
}

func TestEngineFileSource(t *testing.T) {
	e, _ := fileEngine(t)
	assert.Equal(t, EngineStageInitialized, e.Stage())

	res, err := e.Load("/Louis_Portfoli0/models/room.glb")
	require.NoError(t, err)
	assert.Equal(t, []byte("room"), res.Data)

	f, err := e.LoadAsync("98.css")
	require.NoError(t, err)
	css, err := f.Await()
	require.NoError(t, err)
	assert.Equal(t, "98.css", css.Name)

	_, err = e.Load("bad.glb")
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	list := e.Assets()
	require.Len(t, list, 2)
	assert.Equal(t, "98.css", list[0].Path)
	assert.Equal(t, "models/room.glb", list[1].Path)

	assert.Equal(t, int64(2), e.Metrics().Count(core.OutcomeSuccess))
	assert.Equal(t, int64(1), e.Metrics().Count(core.OutcomeFailure))
}

func TestEngineLoadAllKeepsOrder(t *testing.T) {
	e, _ := fileEngine(t)

	refs := []string{"models/room.glb", "missing.glb", "98.css", "models/room.glb"}
	results, err := e.LoadAll(refs)
	require.NoError(t, err)
	require.Len(t, results, len(refs))

	for i, r := range results {
		assert.Equal(t, refs[i], r.Reference)
	}
	require.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.Nil(t, results[1].Resource)
	require.NoError(t, results[2].Err)
	require.NoError(t, results[3].Err)
	// no memoization: the same reference yields two separate resources
	assert.NotSame(t, results[0].Resource, results[3].Resource)
}

func TestEngineHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/site/model.glb" {
			_, _ = w.Write([]byte("glTF"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.App.BaseURL = "/site/"
	cfg.Loader.Source = config.SourceHTTP
	cfg.Loader.Origin = srv.URL

	e, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer e.Shutdown()

	res, err := e.Load("model.glb")
	require.NoError(t, err)
	assert.Equal(t, []byte("glTF"), res.Data)

	_, err = e.Load("bad.glb")
	var statusErr *loaders.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.EqualError(t, err, "404")

	assert.Empty(t, e.Assets())
}

func TestEngineShutdown(t *testing.T) {
	e, _ := fileEngine(t)
	require.NoError(t, e.Shutdown())
	assert.Equal(t, EngineStageShutdown, e.Stage())

	_, err := e.Load("models/room.glb")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.NoError(t, e.Shutdown())
}
