// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

// Package health provides the checks behind the doctor command.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kyeo-hub/worktools/internal/fetch"
	"github.com/kyeo-hub/worktools/internal/update"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
	StatusUnknown   Status = "unknown"
)

// DefaultTimeout bounds a whole CheckHealth run.
const DefaultTimeout = 30 * time.Second

// Check represents a health check
type Check struct {
	Name     string         `json:"name" yaml:"name"`
	Status   Status         `json:"status" yaml:"status"`
	Message  string         `json:"message" yaml:"message"`
	Details  map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
	Duration time.Duration  `json:"duration" yaml:"duration"`
	Error    string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// Result is the outcome of every registered check.
type Result struct {
	Status    Status    `json:"status" yaml:"status"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Version   string    `json:"version" yaml:"version"`
	Checks    []*Check  `json:"checks" yaml:"checks"`
}

// CheckFunc represents a health check function
type CheckFunc func(ctx context.Context) *Check

type namedCheck struct {
	name string
	fn   CheckFunc
}

// Checker runs health checks.
type Checker struct {
	mutex   sync.RWMutex
	checks  []namedCheck
	version string
	timeout time.Duration
}

// NewChecker creates a checker reporting version.
func NewChecker(version string) *Checker {
	return &Checker{version: version, timeout: DefaultTimeout}
}

// RegisterCheck adds a check. Registering a name again replaces it.
func (c *Checker) RegisterCheck(name string, fn CheckFunc) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for i := range c.checks {
		if c.checks[i].name == name {
			c.checks[i].fn = fn
			return
		}
	}
	c.checks = append(c.checks, namedCheck{name: name, fn: fn})
}

// CheckHealth runs every check concurrently. Results keep registration
// order; a check that does not finish in time is reported unhealthy.
func (c *Checker) CheckHealth(ctx context.Context) *Result {
	c.mutex.RLock()
	checks := append([]namedCheck(nil), c.checks...)
	c.mutex.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type indexed struct {
		i     int
		check *Check
	}
	ch := make(chan indexed, len(checks))
	for i, nc := range checks {
		go func(i int, nc namedCheck) {
			ch <- indexed{i: i, check: run(ctx, nc)}
		}(i, nc)
	}

	results := make([]*Check, len(checks))
collect:
	for range checks {
		select {
		case r := <-ch:
			results[r.i] = r.check
		case <-ctx.Done():
			break collect
		}
	}

	res := &Result{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Version:   c.version,
		Checks:    make([]*Check, len(checks)),
	}
	for i, nc := range checks {
		check := results[i]
		if check == nil {
			check = &Check{Name: nc.name, Status: StatusUnhealthy, Message: "Check timed out"}
		}
		res.Checks[i] = check
		res.Status = worst(res.Status, check.Status)
	}
	return res
}

func run(ctx context.Context, nc namedCheck) (check *Check) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			check = &Check{Name: nc.name, Status: StatusUnhealthy, Message: "Check panicked", Error: fmt.Sprint(r)}
		}
		check.Duration = time.Since(start)
	}()

	check = nc.fn(ctx)
	if check == nil {
		check = &Check{Status: StatusUnknown}
	}
	if check.Name == "" {
		check.Name = nc.name
	}
	return check
}

func worst(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusUnknown: 1, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// StatsFunc reports details about a store.
type StatsFunc func(ctx context.Context) (map[string]any, error)

// StoreCheck reports the figures stats returns. The store is degraded when
// its schema is behind the migrations this build knows.
func StoreCheck(name string, stats StatsFunc) CheckFunc {
	return func(ctx context.Context) *Check {
		check := &Check{Name: name}

		if stats == nil {
			check.Status = StatusUnhealthy
			check.Message = "Store is not open"
			return check
		}
		details, err := stats(ctx)
		if err != nil {
			check.Status = StatusUnhealthy
			check.Message = "Failed to read store stats"
			check.Error = err.Error()
			return check
		}

		check.Details = details
		check.Status = StatusHealthy
		check.Message = "Store is up to date"
		if have, want := details["schema_version"], details["migrations"]; have != want {
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("Schema version %v, expected %v", have, want)
		}
		return check
	}
}

// DatabaseCheck pings the state database.
func DatabaseCheck(db *sqlx.DB) CheckFunc {
	return func(ctx context.Context) *Check {
		check := &Check{Name: "database"}

		if db == nil {
			check.Status = StatusUnhealthy
			check.Message = "Database is not open"
			return check
		}
		if err := db.PingContext(ctx); err != nil {
			check.Status = StatusUnhealthy
			check.Message = "Database ping failed"
			check.Error = err.Error()
			return check
		}

		var result int
		if err := db.GetContext(ctx, &result, "SELECT 1"); err != nil {
			check.Status = StatusUnhealthy
			check.Message = "Database query failed"
			check.Error = err.Error()
			return check
		}

		stats := db.Stats()
		check.Status = StatusHealthy
		check.Message = "Database is reachable"
		check.Details = map[string]any{
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
			"idle":             stats.Idle,
		}
		return check
	}
}

// WritableDirCheck creates dir when missing and probes it with a temporary
// file.
func WritableDirCheck(name, dir string) CheckFunc {
	return func(context.Context) *Check {
		check := &Check{Name: name, Details: map[string]any{"path": dir}}

		if err := os.MkdirAll(dir, 0o755); err != nil {
			check.Status = StatusUnhealthy
			check.Message = "Directory cannot be created"
			check.Error = err.Error()
			return check
		}
		f, err := os.CreateTemp(dir, ".doctor-*")
		if err != nil {
			check.Status = StatusUnhealthy
			check.Message = "Directory is not writable"
			check.Error = err.Error()
			return check
		}
		f.Close()
		os.Remove(f.Name())

		entries, err := os.ReadDir(dir)
		if err == nil {
			check.Details["entries"] = len(entries)
		}
		check.Status = StatusHealthy
		check.Message = "Directory is writable"
		return check
	}
}

// VersionDocumentCheck inspects the local version document. A missing
// document is degraded since the built-in default version applies.
func VersionDocumentCheck(local *update.LocalVersion) CheckFunc {
	return func(context.Context) *Check {
		check := &Check{Name: "version_document", Details: map[string]any{"path": local.Path()}}

		err := local.Validate()
		switch {
		case err == nil:
			check.Status = StatusHealthy
			check.Message = fmt.Sprintf("Running version %s", local.Version())
		case errors.Is(err, fs.ErrNotExist):
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("No version document, assuming %s", update.DefaultLocalVersion)
		default:
			check.Status = StatusUnhealthy
			check.Message = "Version document is unreadable"
			check.Error = err.Error()
		}
		return check
	}
}

// EndpointCheck verifies that rawURL answers. file URLs must exist; http
// URLs get a HEAD request, retried as GET when HEAD is refused.
func EndpointCheck(name, rawURL string, client fetch.HTTPClient) CheckFunc {
	return func(ctx context.Context) *Check {
		check := &Check{Name: name, Details: map[string]any{"url": rawURL}}

		if rawURL == "" {
			check.Status = StatusDegraded
			check.Message = "No URL configured"
			return check
		}

		if fetch.IsLocal(rawURL) {
			body, _, err := fetch.Open(ctx, nil, rawURL, "")
			if err != nil {
				check.Status = StatusUnhealthy
				check.Message = "Local file is not readable"
				check.Error = err.Error()
				return check
			}
			body.Close()
			check.Status = StatusHealthy
			check.Message = "Local file is readable"
			return check
		}

		if client == nil {
			client = http.DefaultClient
		}
		code, err := probe(ctx, client, http.MethodHead, rawURL)
		if err == nil && (code == http.StatusMethodNotAllowed || code == http.StatusNotImplemented) {
			code, err = probe(ctx, client, http.MethodGet, rawURL)
		}
		if err != nil {
			check.Status = StatusUnhealthy
			check.Message = "Request failed"
			check.Error = err.Error()
			return check
		}

		check.Details["status_code"] = code
		switch {
		case code >= 200 && code < 300:
			check.Status = StatusHealthy
			check.Message = "Endpoint is reachable"
		case code >= 500:
			check.Status = StatusUnhealthy
			check.Message = "Endpoint returned server error"
		default:
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("Endpoint returned status %d", code)
		}
		return check
	}
}

func probe(ctx context.Context, client fetch.HTTPClient, method, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", fetch.DefaultUserAgent)
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
	return resp.StatusCode, nil
}

// FileCheck reports whether path exists. Missing files are degraded.
func FileCheck(name, path string) CheckFunc {
	return func(context.Context) *Check {
		check := &Check{Name: name, Details: map[string]any{"path": filepath.Clean(path)}}

		info, err := os.Stat(path)
		switch {
		case err == nil && !info.IsDir():
			check.Status = StatusHealthy
			check.Message = "File exists"
			check.Details["size"] = info.Size()
		case err == nil:
			check.Status = StatusUnhealthy
			check.Message = "Path is a directory"
		case errors.Is(err, fs.ErrNotExist):
			check.Status = StatusDegraded
			check.Message = "File does not exist"
		default:
			check.Status = StatusUnhealthy
			check.Message = "File is not accessible"
			check.Error = err.Error()
		}
		return check
	}
}
