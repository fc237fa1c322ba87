package jgit

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/moby/locker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aweris/jgit/internal/address"
	"github.com/aweris/jgit/internal/archive"
	"github.com/aweris/jgit/internal/compression"
	"github.com/aweris/jgit/internal/githttp"
	"github.com/aweris/jgit/internal/remote"
	"github.com/aweris/jgit/internal/store"
)

const (
	realm = "jupiter-git"
	// CLIUserAgent marks requests from the jupiter-git command line client,
	// which expects JSON errors.
	CLIUserAgent = "jupiter-git-cli"
)

// Server is the HTTP front end: it routes /{address}/{repo}/... to the
// address's Adapter and renders errors.
type Server struct {
	opts     *Options
	logger   *zap.Logger
	local    *store.LocalStore
	cache    *store.Cache
	locks    *locker.Locker
	backend  *githttp.Backend
	gate     *Gate
	persist  *persister
	registry *Registry
	mux      *http.ServeMux
}

func NewServer(opts ...Option) (*Server, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	local, err := store.NewLocalStore(filepath.Join(options.RootDir, "repos"))
	if err != nil {
		return nil, err
	}

	blobs := options.Store
	if blobs == nil {
		blobs = remote.NewFileStore(filepath.Join(options.RootDir, "store"))
	}

	deriver := options.Deriver
	if deriver == nil {
		deriver = address.NewLocal()
	}

	mode, err := ParsePersistMode(string(options.PersistMode))
	if err != nil {
		return nil, err
	}

	backend, err := githttp.NewBackend(logger, options.Concurrency)
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:    options,
		logger:  logger,
		local:   local,
		cache:   store.NewCache(options.CacheSize, options.CacheTTL),
		locks:   locker.New(),
		backend: backend,
	}

	packager := archive.New(compression.Default)
	materializer := &Materializer{
		local:    local,
		blobs:    blobs,
		packager: packager,
		cache:    s.cache,
		timeout:  options.RemoteTimeout,
		logger:   logger.Named("materializer"),
	}
	s.gate = &Gate{
		masterKey:         options.MasterKey,
		deriver:           deriver,
		materializer:      materializer,
		materializeOnPush: options.MaterializeOnPush,
		logger:            logger.Named("auth"),
	}
	s.persist = &persister{
		mode:     mode,
		retain:   options.RetainAfterPush,
		local:    local,
		blobs:    blobs,
		packager: packager,
		cache:    s.cache,
		backend:  backend,
		timeout:  options.RemoteTimeout,
		observer: options.Observer,
		logger:   logger.Named("push"),
	}

	s.registry, err = NewRegistry(options.RegistrySize, s.newAdapter, logger.Named("registry"))
	if err != nil {
		return nil, err
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("/{address}/{rest...}", s.handleGit)

	return s, nil
}

func (s *Server) newAdapter(addr string) *Adapter {
	return &Adapter{
		address:   addr,
		gate:      s.gate,
		backend:   s.backend,
		local:     s.local,
		cache:     s.cache,
		persister: s.persist,
		locks:     s.locks,
		logger:    s.logger.Named("git").With(zap.String("address", addr)),
	}
}

func (s *Server) Registry() *Registry { return s.registry }

// Wait blocks until pushes persisting in the background have finished.
func (s *Server) Wait() { s.persist.pending.Wait() }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	host := strings.TrimRight(s.opts.Hostname, "/")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "%s\n\nGit repositories backed by your Jupiter address.\n\n", realm)
	fmt.Fprintf(w, "  git clone %s/JUP-XXXX-XXXX-XXXX-XXXXX/REPO.git\n\n", host)
	fmt.Fprintln(w, "Authenticate with any username and the passphrase of the address.")
}

func (s *Server) handleGit(w http.ResponseWriter, r *http.Request) {
	addr, ok := CanonicalAddress(r.PathValue("address"))
	if !ok {
		s.writeError(w, r, fmt.Errorf("%w: invalid address %q", ErrInvalidRequest, r.PathValue("address")))
		return
	}

	if err := s.registry.Resolve(addr).ServeGit(w, r, r.PathValue("rest")); err != nil {
		s.writeError(w, r, err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRemoteNotFound), errors.Is(err, ErrInvalidRequest):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") ||
		r.Header.Get("User-Agent") == CLIUserAgent
}

// isGitClient reports whether the request comes from git itself, which
// cannot follow an error redirect.
func isGitClient(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("User-Agent"), "git/")
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}

	switch {
	case wantsJSON(r):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
	case status == http.StatusInternalServerError && !isGitClient(r):
		http.Redirect(w, r, "/", http.StatusFound)
	default:
		http.Error(w, msg, status)
	}
}
