// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyeo-hub/worktools/internal/update"
)

func static(s Status) CheckFunc {
	return func(context.Context) *Check {
		return &Check{Status: s}
	}
}

func TestChecker_OverallStatus(t *testing.T) {
	uu := map[string]struct {
		checks []Status
		e      Status
	}{
		"empty":     {e: StatusHealthy},
		"healthy":   {checks: []Status{StatusHealthy, StatusHealthy}, e: StatusHealthy},
		"degraded":  {checks: []Status{StatusHealthy, StatusDegraded}, e: StatusDegraded},
		"unhealthy": {checks: []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, e: StatusUnhealthy},
	}

	for k := range uu {
		u := uu[k]
		t.Run(k, func(t *testing.T) {
			c := NewChecker("1.0.0")
			for i, s := range u.checks {
				c.RegisterCheck(string(rune('a'+i)), static(s))
			}
			res := c.CheckHealth(context.Background())
			assert.Equal(t, u.e, res.Status)
			assert.Len(t, res.Checks, len(u.checks))
		})
	}
}

func TestChecker_OrderPanicAndTimeout(t *testing.T) {
	c := NewChecker("1.0.0")
	c.timeout = 100 * time.Millisecond
	c.RegisterCheck("first", static(StatusHealthy))
	c.RegisterCheck("boom", func(context.Context) *Check { panic("kaboom") })
	c.RegisterCheck("slow", func(ctx context.Context) *Check {
		time.Sleep(time.Second)
		return &Check{Status: StatusHealthy}
	})
	c.RegisterCheck("first", static(StatusDegraded))

	res := c.CheckHealth(context.Background())
	require.Len(t, res.Checks, 3)
	assert.Equal(t, "first", res.Checks[0].Name)
	assert.Equal(t, StatusDegraded, res.Checks[0].Status)
	assert.Equal(t, "boom", res.Checks[1].Name)
	assert.Equal(t, "kaboom", res.Checks[1].Error)
	assert.Equal(t, "Check timed out", res.Checks[2].Message)
	assert.Equal(t, StatusUnhealthy, res.Status)
}

func TestDatabaseCheck(t *testing.T) {
	db, err := sqlx.Open("sqlite3", filepath.Join(t.TempDir(), "t.db"))
	require.NoError(t, err)

	check := DatabaseCheck(db)(context.Background())
	assert.Equal(t, StatusHealthy, check.Status)

	require.NoError(t, db.Close())
	check = DatabaseCheck(db)(context.Background())
	assert.Equal(t, StatusUnhealthy, check.Status)

	check = DatabaseCheck(nil)(context.Background())
	assert.Equal(t, StatusUnhealthy, check.Status)
}

func TestStoreCheck(t *testing.T) {
	uu := map[string]struct {
		stats StatsFunc
		e     Status
	}{
		"closed": {e: StatusUnhealthy},
		"failing": {
			stats: func(context.Context) (map[string]any, error) { return nil, errors.New("disk gone") },
			e:     StatusUnhealthy,
		},
		"current": {
			stats: func(context.Context) (map[string]any, error) {
				return map[string]any{"schema_version": 2, "migrations": 2, "plugin_states": 3}, nil
			},
			e: StatusHealthy,
		},
		"behind": {
			stats: func(context.Context) (map[string]any, error) {
				return map[string]any{"schema_version": 1, "migrations": 2}, nil
			},
			e: StatusDegraded,
		},
	}

	for k := range uu {
		u := uu[k]
		t.Run(k, func(t *testing.T) {
			check := StoreCheck("state_store", u.stats)(context.Background())
			assert.Equal(t, "state_store", check.Name)
			assert.Equal(t, u.e, check.Status)
		})
	}
}

func TestWritableDirCheck(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plugins")
	check := WritableDirCheck("plugin_dir", dir)(context.Background())
	assert.Equal(t, StatusHealthy, check.Status)
	assert.DirExists(t, dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestVersionDocumentCheck(t *testing.T) {
	uu := map[string]struct {
		body string
		e    Status
	}{
		"missing":     {e: StatusDegraded},
		"valid":       {body: `{"version": "1.2.3"}`, e: StatusHealthy},
		"bad_json":    {body: `{"version": `, e: StatusUnhealthy},
		"bad_version": {body: `{"version": "one"}`, e: StatusUnhealthy},
	}

	for k := range uu {
		u := uu[k]
		t.Run(k, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "version.json")
			if u.body != "" {
				require.NoError(t, os.WriteFile(path, []byte(u.body), 0o644))
			}
			check := VersionDocumentCheck(update.NewLocalVersion(path))(context.Background())
			assert.Equal(t, u.e, check.Status)
		})
	}
}

func TestEndpointCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/nohead":
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.WriteHeader(http.StatusOK)
		case "/down":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	local := filepath.Join(t.TempDir(), "plugins.json")
	require.NoError(t, os.WriteFile(local, []byte("{}"), 0o644))

	uu := map[string]struct {
		url string
		e   Status
	}{
		"ok":           {url: srv.URL + "/ok", e: StatusHealthy},
		"head_refused": {url: srv.URL + "/nohead", e: StatusHealthy},
		"server_error": {url: srv.URL + "/down", e: StatusUnhealthy},
		"not_found":    {url: srv.URL + "/missing", e: StatusDegraded},
		"empty":        {url: "", e: StatusDegraded},
		"local":        {url: "file://" + filepath.ToSlash(local), e: StatusHealthy},
		"local_gone":   {url: local + ".gone", e: StatusUnhealthy},
	}

	for k := range uu {
		u := uu[k]
		t.Run(k, func(t *testing.T) {
			check := EndpointCheck("endpoint", u.url, srv.Client())(context.Background())
			assert.Equal(t, u.e, check.Status)
		})
	}
}

func TestFileCheck(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o644))

	assert.Equal(t, StatusHealthy, FileCheck("config", path)(context.Background()).Status)
	assert.Equal(t, StatusDegraded, FileCheck("config", path+".x")(context.Background()).Status)
	assert.Equal(t, StatusUnhealthy, FileCheck("config", dir)(context.Background()).Status)
}
