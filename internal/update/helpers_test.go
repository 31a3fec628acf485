// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package update

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func writeTarGz(t *testing.T, path string, files map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func writeVersionDoc(t *testing.T, body string) *LocalVersion {
	t.Helper()
	path := filepath.Join(t.TempDir(), "version.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return NewLocalVersion(path)
}

// recordingNotifier captures everything shown to the user.
type recordingNotifier struct {
	mu       sync.Mutex
	infos    []string
	warns    []string
	confirm  bool
	prompted int
	progress [][2]int64
}

func (n *recordingNotifier) Info(title, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, title)
}

func (n *recordingNotifier) Warn(title, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warns = append(n.warns, title)
}

func (n *recordingNotifier) Confirm(*Result) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.prompted++
	return n.confirm, nil
}

func (n *recordingNotifier) Progress(downloaded, total int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress = append(n.progress, [2]int64{downloaded, total})
}

type memoryHistory struct {
	mu      sync.Mutex
	entries []HistoryEntry
}

func (h *memoryHistory) Record(_ context.Context, e HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
	return nil
}

func (h *memoryHistory) outcomes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.entries))
	for _, e := range h.entries {
		out = append(out, string(e.Kind)+":"+e.Outcome)
	}
	return out
}
