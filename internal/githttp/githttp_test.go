package githttp

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParse(t *testing.T) {
	t.Run("protocol requests", func(t *testing.T) {
		for _, tc := range []struct {
			method, rest, service string
			want                  Request
		}{
			{"GET", "demo.git/info/refs", "git-upload-pack", Request{Repo: "demo", Path: "/info/refs", Service: UploadPack, Op: Fetch}},
			{"GET", "demo/info/refs", "git-receive-pack", Request{Repo: "demo", Path: "/info/refs", Service: ReceivePack, Op: Push}},
			{"POST", "demo.git/git-upload-pack", "", Request{Repo: "demo", Path: "/git-upload-pack", Service: UploadPack, Op: Fetch, RPC: true}},
			{"POST", "/my.repo_1/git-receive-pack", "", Request{Repo: "my.repo_1", Path: "/git-receive-pack", Service: ReceivePack, Op: Push, RPC: true}},
			{"GET", "demo/info/refs", "", Request{Repo: "demo", Path: "/info/refs", Op: Fetch}},
			{"GET", "demo.git/HEAD", "", Request{Repo: "demo", Path: "/HEAD", Op: Fetch}},
			{"GET", "demo.git/objects/info/packs", "", Request{Repo: "demo", Path: "/objects/info/packs", Op: Fetch}},
		} {
			t.Run(tc.method+" "+tc.rest, func(t *testing.T) {
				got, err := Parse(tc.method, tc.rest, tc.service)
				require.NoError(t, err)
				require.Equal(t, tc.want, got)
			})
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		for _, tc := range []struct{ method, rest, service string }{
			{"GET", "demo.git/info/refs", "git-upload-archive"},
			{"POST", "demo.git/info/refs", ""},
			{"GET", "demo.git/git-upload-pack", ""},
			{"GET", "demo.git", ""},
			{"GET", "demo.git/config", ""},
			{"GET", "demo.git/objects/../config", ""},
			{"GET", ".hidden/info/refs", "git-upload-pack"},
			{"GET", "../etc/info/refs", "git-upload-pack"},
			{"GET", "a b/info/refs", "git-upload-pack"},
			{"GET", strings.Repeat("x", MaxRepoLength+1) + "/info/refs", "git-upload-pack"},
		} {
			t.Run(tc.method+" "+tc.rest, func(t *testing.T) {
				_, err := Parse(tc.method, tc.rest, tc.service)
				require.ErrorIs(t, err, ErrUnsupported)
			})
		}
	})

	t.Run("path info", func(t *testing.T) {
		req, err := Parse("GET", "demo/info/refs", "git-upload-pack")
		require.NoError(t, err)
		require.Equal(t, "/demo.git/info/refs", req.PathInfo())
	})
}

func TestResponseWriters(t *testing.T) {
	t.Run("buffer holds response until commit", func(t *testing.T) {
		b := NewBuffer()
		b.Header().Set("Content-Type", "application/x-git-receive-pack-result")
		_, err := b.Write([]byte("report"))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, b.Status)
		require.Equal(t, 6, b.Len())

		rec := httptest.NewRecorder()
		require.NoError(t, b.Commit(rec))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "application/x-git-receive-pack-result", rec.Header().Get("Content-Type"))
		require.Equal(t, "report", rec.Body.String())
	})

	t.Run("recorder keeps first status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r := NewRecorder(rec)
		r.WriteHeader(http.StatusForbidden)
		r.WriteHeader(http.StatusOK)
		_, _ = r.Write([]byte("x"))
		require.Equal(t, http.StatusForbidden, r.Status)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestSpool(t *testing.T) {
	t.Run("known length passes through", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("body"))
		got, cleanup, err := spool(r)
		require.NoError(t, err)
		defer cleanup()
		require.Same(t, r, got)
	})

	t.Run("chunked body gets a length", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/x", io.NopCloser(strings.NewReader("chunked body")))
		r.ContentLength = -1
		r.TransferEncoding = []string{"chunked"}

		got, cleanup, err := spool(r)
		require.NoError(t, err)
		defer cleanup()
		require.EqualValues(t, len("chunked body"), got.ContentLength)
		require.Empty(t, got.TransferEncoding)
		data, err := io.ReadAll(got.Body)
		require.NoError(t, err)
		require.Equal(t, "chunked body", string(data))
	})
}

func TestBackend(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	run := func(t *testing.T, dir string, args ...string) string {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=Some User",
			"GIT_AUTHOR_EMAIL=some@example.com",
			"GIT_COMMITTER_NAME=Some User",
			"GIT_COMMITTER_EMAIL=some@example.com",
			"GIT_TERMINAL_PROMPT=0",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
		return strings.TrimSpace(string(out))
	}

	root := t.TempDir()
	run(t, root, "init", "--bare", "-b", "main", "demo.git")

	backend, err := NewBackend(zap.NewNop(), 2)
	require.NoError(t, err)

	var pushes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := Parse(r.Method, r.URL.Path, r.URL.Query().Get("service"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		if req.RPC && req.Op == Push {
			pushes.Add(1)
		}
		require.NoError(t, backend.Serve(w, r, root, req))
	}))
	defer srv.Close()

	t.Run("push then clone", func(t *testing.T) {
		work := t.TempDir()
		run(t, work, "init", "-b", "main")
		require.NoError(t, os.WriteFile(filepath.Join(work, "README.md"), []byte("hello\n"), 0o644))
		run(t, work, "add", "README.md")
		run(t, work, "commit", "-m", "initial commit")
		run(t, work, "push", srv.URL+"/demo.git", "main")
		require.EqualValues(t, 1, pushes.Load())

		clone := filepath.Join(t.TempDir(), "clone")
		run(t, root, "clone", srv.URL+"/demo", clone)
		content, err := os.ReadFile(filepath.Join(clone, "README.md"))
		require.NoError(t, err)
		require.Equal(t, "hello\n", string(content))
	})

	t.Run("buffered response", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/demo.git/info/refs?service=git-upload-pack", bytes.NewReader(nil))
		req, err := Parse(r.Method, r.URL.Path, r.URL.Query().Get("service"))
		require.NoError(t, err)

		buf := NewBuffer()
		require.NoError(t, backend.Serve(buf, r, root, req))
		require.Equal(t, http.StatusOK, buf.Status)
		require.Equal(t, "application/x-git-upload-pack-advertisement", buf.Header().Get("Content-Type"))
		require.Positive(t, buf.Len())
	})
}
