// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package builtin

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyeo-hub/worktools/internal/plugin"
	"github.com/kyeo-hub/worktools/internal/repository"
)

type catalogServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newCatalogServer(t *testing.T) *catalogServer {
	t.Helper()
	cs := &catalogServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/plugins.json":
			cs.hits.Add(1)
			io.WriteString(w, `{"plugins": [
				{"id": "notes", "name": "Notes", "description": "Scratch notes", "category": "text", "url": "`+cs.URL+`/notes.lua"},
				{"id": "hasher", "name": "Hasher", "description": "File hashes", "url": "`+cs.URL+`/hasher.lua"}
			]}`)
		case "/notes.lua", "/hasher.lua":
			io.WriteString(w, "return {}")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(cs.Close)
	return cs
}

func newTestCatalog(t *testing.T, cs *catalogServer, url string) (*Catalog, string) {
	t.Helper()
	dir := t.TempDir()
	c := NewCatalog(Deps{
		Client:        repository.NewClient(repository.WithHTTPClient(cs.Client())),
		Installer:     repository.NewInstaller(dir, repository.WithDownloadClient(cs.Client())),
		RepositoryURL: url,
	})
	return c, dir
}

func TestRegister(t *testing.T) {
	reg := plugin.NewRegistry()
	require.NoError(t, Register(reg, Deps{RepositoryURL: "file:///tmp/plugins.json"}))
	assert.Equal(t, []string{CatalogFactory}, reg.Names())

	p, err := reg.New(CatalogFactory)
	require.NoError(t, err)
	assert.Equal(t, CatalogFactory, p.Name())
	assert.Equal(t, "system", p.Category())
	assert.Equal(t, plugin.DefaultVersion, p.Version())
}

func TestCatalog_RefreshOnlyOnFirstActivation(t *testing.T) {
	cs := newCatalogServer(t)
	c, _ := newTestCatalog(t, cs, cs.URL+"/plugins.json")
	ctx := context.Background()

	require.NoError(t, c.OnActivate(ctx))
	require.NoError(t, c.OnDeactivate(ctx))
	require.NoError(t, c.OnActivate(ctx))

	assert.Equal(t, int32(1), cs.hits.Load())
	assert.NoError(t, c.Err())
	assert.False(t, c.LastRefresh().IsZero())
	assert.Len(t, c.Entries("", ""), 2)
	assert.Equal(t, []string{"other", "text"}, c.Categories())
	assert.Contains(t, c.View(), "Found 2 plugins, 0 installed")

	c.SetRepositoryURL(cs.URL + "/plugins.json?v=2")
	require.NoError(t, c.OnActivate(ctx))
	assert.Equal(t, int32(2), cs.hits.Load())
}

func TestCatalog_RefreshFailureKeepsActivation(t *testing.T) {
	cs := newCatalogServer(t)
	c, _ := newTestCatalog(t, cs, cs.URL+"/missing.json")

	require.NoError(t, c.OnActivate(context.Background()))
	assert.Error(t, c.Err())
	assert.Nil(t, c.Entries("", ""))
	assert.Contains(t, c.View(), "Failed to fetch plugin list")
}

func TestCatalog_InstallUninstall(t *testing.T) {
	cs := newCatalogServer(t)
	c, dir := newTestCatalog(t, cs, cs.URL+"/plugins.json")
	ctx := context.Background()

	ids, err := c.Install(ctx, "notes", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"notes"}, ids)
	assert.FileExists(t, filepath.Join(dir, "notes.lua"))

	entries := c.Entries("notes", "all")
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Installed)

	require.NoError(t, c.Uninstall("notes"))
	_, err = os.Stat(filepath.Join(dir, "notes.lua"))
	assert.True(t, os.IsNotExist(err))
	assert.ErrorIs(t, c.Uninstall("notes"), repository.ErrNotInstalled)
}

func TestCatalog_State(t *testing.T) {
	cs := newCatalogServer(t)
	c, _ := newTestCatalog(t, cs, cs.URL+"/plugins.json")
	c.now = func() time.Time { return time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC) }
	ctx := context.Background()

	state, err := c.SaveState(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"repository_url": cs.URL + "/plugins.json"}, state)

	require.NoError(t, c.Refresh(ctx))
	state, err = c.SaveState(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-05-04T03:02:01Z", state["last_refresh"])

	restored, _ := newTestCatalog(t, cs, "https://example.com/default.json")
	require.NoError(t, restored.RestoreState(ctx, map[string]any{
		"repository_url": "file:///srv/plugins.json",
		"last_refresh":   "2026-05-04T03:02:01Z",
	}))
	assert.Equal(t, "file:///srv/plugins.json", restored.RepositoryURL())
	assert.True(t, restored.LastRefresh().Equal(time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)))

	require.NoError(t, restored.RestoreState(ctx, map[string]any{"repository_url": 42}))
	assert.Equal(t, "file:///srv/plugins.json", restored.RepositoryURL())
}
