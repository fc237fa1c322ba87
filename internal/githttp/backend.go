package githttp

import (
	"fmt"
	"io"
	"net/http"
	"net/http/cgi"
	"os"
	"os/exec"

	"go.uber.org/zap"
	"go.uber.org/zap/zapio"
	"golang.org/x/sync/semaphore"
)

// Backend serves git requests with `git http-backend`. At most concurrency
// backend processes run at once.
type Backend struct {
	git    string
	sem    *semaphore.Weighted
	logger *zap.Logger
}

func NewBackend(logger *zap.Logger, concurrency int) (*Backend, error) {
	git, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git binary not found in PATH: %w", err)
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Backend{
		git:    git,
		sem:    semaphore.NewWeighted(int64(concurrency)),
		logger: logger.Named("http-backend"),
	}, nil
}

// Serve runs the backend for req with root as GIT_PROJECT_ROOT. It returns
// once the backend exited and its response has been written to w.
func (b *Backend) Serve(w http.ResponseWriter, r *http.Request, root string, req Request) error {
	ctx := r.Context()
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer b.sem.Release(1)

	r, cleanup, err := spool(r)
	if err != nil {
		return err
	}
	defer cleanup()

	logger := b.logger.With(zap.String("repo", req.Repo), zap.String("path", req.Path))
	stderr := &zapio.Writer{Log: logger, Level: zap.WarnLevel}
	defer stderr.Close()

	h := &cgi.Handler{
		Path: b.git,
		Args: []string{
			"-c", "http.receivepack",
			"-c", "http.uploadpack",
			"http-backend",
		},
		Dir: root,
		Env: []string{
			"GIT_PROJECT_ROOT=" + root,
			"PATH_INFO=" + req.PathInfo(),
			"GIT_HTTP_EXPORT_ALL=true",
		},
		Logger: zap.NewStdLog(logger),
		Stderr: stderr,
	}
	h.ServeHTTP(w, r)
	return nil
}

// spool replaces a body of unknown length with a temp file copy. The CGI
// handler rejects chunked bodies and the backend needs CONTENT_LENGTH.
func spool(r *http.Request) (*http.Request, func(), error) {
	if r.ContentLength >= 0 && len(r.TransferEncoding) == 0 {
		return r, func() {}, nil
	}

	f, err := os.CreateTemp("", "jgit-body-*")
	if err != nil {
		return nil, nil, fmt.Errorf("spool request body: %w", err)
	}
	cleanup := func() {
		f.Close()
		os.Remove(f.Name())
	}

	n, err := io.Copy(f, r.Body)
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("spool request body: %w", err)
	}

	spooled := r.Clone(r.Context())
	spooled.Body = f
	spooled.ContentLength = n
	spooled.TransferEncoding = nil
	return spooled, cleanup, nil
}
