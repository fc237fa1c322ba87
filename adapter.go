package jgit

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/moby/locker"
	"go.uber.org/zap"

	"github.com/aweris/jgit/internal/githttp"
	"github.com/aweris/jgit/internal/metrics"
	"github.com/aweris/jgit/internal/store"
)

// Adapter serves the git repositories of one address.
type Adapter struct {
	address   string
	gate      *Gate
	backend   *githttp.Backend
	local     *store.LocalStore
	cache     *store.Cache
	persister *persister
	locks     *locker.Locker
	logger    *zap.Logger
}

func (a *Adapter) Address() string { return a.address }

// ServeGit handles one git protocol request; rest is the URL path after the
// address segment. Requests for the same repository are serialized.
func (a *Adapter) ServeGit(w http.ResponseWriter, r *http.Request, rest string) error {
	req, err := githttp.Parse(r.Method, rest, r.URL.Query().Get("service"))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	err = a.serve(w, r, req)
	outcome := "ok"
	switch {
	case errors.Is(err, ErrAuthentication):
		outcome = "unauthorized"
	case errors.Is(err, ErrRemoteNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	}
	metrics.Requests.WithLabelValues(string(req.Op), outcome).Inc()
	return err
}

func (a *Adapter) serve(w http.ResponseWriter, r *http.Request, req githttp.Request) error {
	username, passphrase, ok := r.BasicAuth()
	if !ok {
		return fmt.Errorf("%w: credentials required", ErrAuthentication)
	}

	s := Session{
		Handle:     Handle{Address: a.address, Repo: req.Repo},
		Username:   username,
		Passphrase: passphrase,
		Op:         req.Op,
	}

	lock := s.Handle.String()
	a.locks.Lock(lock)
	unlock := func() { _ = a.locks.Unlock(lock) }

	s, err := a.gate.Authenticate(r.Context(), s)
	if err != nil {
		unlock()
		return err
	}

	var created bool
	if s.Op == OpPush {
		if created, err = a.local.Init(s.key()); err != nil {
			unlock()
			return err
		}
		if created {
			a.logger.Info("created repository", zap.Stringer("repo", s.Handle))
		}
	}

	r = r.WithContext(ContextWithSession(r.Context(), s))
	if req.RPC && req.Service == githttp.ReceivePack {
		return a.persister.receive(w, r, s, req, unlock)
	}
	defer unlock()

	rec := githttp.NewRecorder(w)
	err = a.backend.Serve(rec, r, a.local.TenantDir(s.Address), req)
	if created {
		// Only the advertisement ran; receive-pack initializes again.
		if rmErr := a.local.Remove(s.key()); rmErr != nil {
			a.logger.Warn("failed to remove unused repository", zap.Stringer("repo", s.Handle), zap.Error(rmErr))
		}
		return err
	}
	if err != nil {
		return err
	}

	a.cache.Touch(s.key())
	if s.Op == OpFetch && req.RPC && rec.Status == http.StatusOK {
		head, err := a.local.Head(s.key())
		if err != nil {
			a.logger.Warn("failed to resolve HEAD", zap.Stringer("repo", s.Handle), zap.Error(err))
		}
		a.logger.Info("fetching repo: "+s.Repo+" -- "+head, zap.String("address", s.Address))
	}
	return nil
}
