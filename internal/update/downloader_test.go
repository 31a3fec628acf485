// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package update

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveBytes(t *testing.T, files map[string][]byte, withLength bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if withLength {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		} else if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func sha(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestDownloader_Progress(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 3*ChunkSize+100)
	srv := serveBytes(t, map[string][]byte{"/u.zip": payload}, true)
	dst := filepath.Join(t.TempDir(), "u.zip")

	var calls [][2]int64
	err := NewDownloader(WithHTTPClient(srv.Client())).Download(context.Background(),
		Descriptor{DownloadURL: srv.URL + "/u.zip", SHA256: sha(payload)},
		dst,
		func(done, total int64) { calls = append(calls, [2]int64{done, total}) })
	require.NoError(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	require.NotEmpty(t, calls)
	last := calls[len(calls)-1]
	assert.Equal(t, int64(len(payload)), last[0])
	assert.Equal(t, int64(len(payload)), last[1])
	for i := 1; i < len(calls); i++ {
		assert.Greater(t, calls[i][0], calls[i-1][0])
	}
}

func TestDownloader_NoProgressWithoutLength(t *testing.T) {
	payload := []byte("streamed body")
	srv := serveBytes(t, map[string][]byte{"/u.zip": payload}, false)
	dst := filepath.Join(t.TempDir(), "u.zip")

	called := false
	err := NewDownloader(WithHTTPClient(srv.Client())).Download(context.Background(),
		Descriptor{DownloadURL: srv.URL + "/u.zip"}, dst,
		func(int64, int64) { called = true })
	require.NoError(t, err)
	assert.False(t, called)
}

func TestDownloader_Failures(t *testing.T) {
	payload := []byte("bundle")
	srv := serveBytes(t, map[string][]byte{"/u.zip": payload}, true)

	uu := map[string]struct {
		desc Descriptor
		err  error
	}{
		"checksum": {
			desc: Descriptor{DownloadURL: srv.URL + "/u.zip", SHA256: strings.Repeat("0", 64)},
			err:  ErrChecksumMismatch,
		},
		"not_found": {
			desc: Descriptor{DownloadURL: srv.URL + "/nope.zip"},
		},
		"no_url": {
			desc: Descriptor{},
		},
	}

	for k := range uu {
		u := uu[k]
		t.Run(k, func(t *testing.T) {
			dir := t.TempDir()
			dst := filepath.Join(dir, "u.zip")
			require.NoError(t, os.WriteFile(dst, []byte("previous"), 0o644))

			err := NewDownloader(WithHTTPClient(srv.Client())).Download(context.Background(), u.desc, dst, nil)
			require.Error(t, err)
			if u.err != nil {
				assert.ErrorIs(t, err, u.err)
			}

			data, err := os.ReadFile(dst)
			require.NoError(t, err)
			assert.Equal(t, "previous", string(data))

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Len(t, entries, 1)
		})
	}
}

func newSigner(t *testing.T) (*openpgp.Entity, *Verifier) {
	t.Helper()
	entity, err := openpgp.NewEntity("WorkTools Release", "test", "release@example.com", nil)
	require.NoError(t, err)

	var pub bytes.Buffer
	w, err := armor.Encode(&pub, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.Serialize(w))
	require.NoError(t, w.Close())

	v, err := NewVerifier(&pub)
	require.NoError(t, err)
	return entity, v
}

func TestDownloader_Signature(t *testing.T) {
	signer, verifier := newSigner(t)
	payload := []byte("signed bundle")

	var sig bytes.Buffer
	require.NoError(t, openpgp.ArmoredDetachSign(&sig, signer, bytes.NewReader(payload), nil))

	srv := serveBytes(t, map[string][]byte{
		"/u.zip":     payload,
		"/u.zip.asc": sig.Bytes(),
		"/bad.asc":   []byte("-----BEGIN PGP SIGNATURE-----\n\nnope\n-----END PGP SIGNATURE-----\n"),
	}, true)
	dl := NewDownloader(WithHTTPClient(srv.Client()), WithVerifier(verifier))
	dir := t.TempDir()

	err := dl.Download(context.Background(), Descriptor{
		DownloadURL:  srv.URL + "/u.zip",
		SignatureURL: srv.URL + "/u.zip.asc",
	}, filepath.Join(dir, "good.zip"), nil)
	require.NoError(t, err)

	err = dl.Download(context.Background(), Descriptor{
		DownloadURL:  srv.URL + "/u.zip",
		SignatureURL: srv.URL + "/bad.asc",
	}, filepath.Join(dir, "bad.zip"), nil)
	assert.ErrorIs(t, err, ErrBadSignature)
	assert.NoFileExists(t, filepath.Join(dir, "bad.zip"))

	err = dl.Download(context.Background(), Descriptor{DownloadURL: srv.URL + "/u.zip"}, filepath.Join(dir, "unsigned.zip"), nil)
	assert.ErrorIs(t, err, ErrMissingSignature)
}
