package jgit

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/aweris/jgit/internal/archive"
	"github.com/aweris/jgit/internal/githttp"
	"github.com/aweris/jgit/internal/metrics"
	"github.com/aweris/jgit/internal/store"
)

// PushResult reports one receive-pack request. Accepted means git took the
// pack; Persisted means the snapshot reached the blob store.
type PushResult struct {
	Handle    Handle
	Accepted  bool
	Persisted bool
	Blob      string
	Size      int64
	Err       error
}

type persister struct {
	mode     PersistMode
	retain   bool
	local    *store.LocalStore
	blobs    BlobStore
	packager *archive.Packager
	cache    *store.Cache
	backend  *githttp.Backend
	timeout  time.Duration
	observer func(PushResult)
	logger   *zap.Logger

	// pending tracks async persists still running.
	pending conc.WaitGroup
}

// receive serves a receive-pack RPC and persists the result. It owns unlock:
// in async mode the repository stays locked until the upload finished.
func (p *persister) receive(w http.ResponseWriter, r *http.Request, s Session, req githttp.Request, unlock func()) error {
	root := p.local.TenantDir(s.Address)

	if p.mode == PersistAsync {
		rec := githttp.NewRecorder(w)
		if err := p.backend.Serve(rec, r, root, req); err != nil {
			p.discard(s)
			unlock()
			return err
		}
		ctx := context.WithoutCancel(r.Context())
		p.pending.Go(func() {
			defer unlock()
			p.finalize(ctx, s, rec.Status)
		})
		return nil
	}

	defer unlock()
	buf := githttp.NewBuffer()
	if err := p.backend.Serve(buf, r, root, req); err != nil {
		p.discard(s)
		return err
	}
	if res := p.finalize(r.Context(), s, buf.Status); res.Accepted && res.Err != nil {
		return res.Err
	}
	if err := buf.Commit(w); err != nil {
		p.logger.Warn("failed to deliver push response", zap.Stringer("repo", s.Handle), zap.Error(err))
	}
	return nil
}

// finalize packs and uploads the working copy after git accepted a push.
func (p *persister) finalize(ctx context.Context, s Session, status int) PushResult {
	logger := p.logger.With(zap.String("address", s.Address), zap.String("repo", s.Repo))
	res := PushResult{Handle: s.Handle, Accepted: status == http.StatusOK, Blob: s.BlobName()}

	if !res.Accepted {
		res.Err = fmt.Errorf("receive-pack answered %d", status)
		metrics.Pushes.WithLabelValues("rejected").Inc()
		p.discard(s)
		p.notify(res)
		return res
	}

	logger.Info("git handle push")
	start := time.Now()
	size, err := p.persist(ctx, s, logger)
	res.Size = size
	if err != nil {
		res.Err = err
		metrics.Pushes.WithLabelValues("failed").Inc()
		logger.Error("error handling push", zap.Error(err))
		p.discard(s)
		p.notify(res)
		return res
	}

	res.Persisted = true
	metrics.Pushes.WithLabelValues("persisted").Inc()
	metrics.PersistDuration.Observe(time.Since(start).Seconds())
	metrics.SnapshotBytes.Observe(float64(size))
	logger.Info("successfully pushed repo", zap.String("blob", res.Blob), zap.Int64("size", size))
	p.notify(res)
	return res
}

func (p *persister) persist(ctx context.Context, s Session, logger *zap.Logger) (int64, error) {
	key := s.key()
	defer func() {
		if err := p.local.RemoveStaged(key); err != nil {
			logger.Warn("failed to remove staged snapshot", zap.Error(err))
		}
	}()

	snap, err := p.packager.Pack(p.local.TenantDir(s.Address), s.Repo)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrPackaging, s.Repo, err)
	}
	logger.Debug("repo tar info", zap.String("path", snap.Path), zap.Int64("size", snap.Size))

	f, err := os.Open(snap.Path)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrPackaging, s.Repo, err)
	}
	defer f.Close()

	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.blobs.Write(ctx, s.tenant(), snap.Name, f, snap.Size); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrPersistence, s.Repo, err)
	}

	if p.retain {
		p.cache.Touch(key)
		return snap.Size, nil
	}
	if err := p.local.Remove(key); err != nil {
		logger.Warn("failed to remove working copy", zap.Error(err))
	}
	p.cache.Forget(key)
	return snap.Size, nil
}

// discard drops a working copy that may differ from the stored snapshot, so
// the next request materializes again.
func (p *persister) discard(s Session) {
	if err := p.local.Remove(s.key()); err != nil {
		p.logger.Warn("failed to discard working copy", zap.Stringer("repo", s.Handle), zap.Error(err))
	}
	p.cache.Forget(s.key())
}

func (p *persister) notify(res PushResult) {
	if p.observer != nil {
		p.observer(res)
	}
}
