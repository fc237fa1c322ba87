package jgit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aweris/jgit/internal/archive"
	"github.com/aweris/jgit/internal/metrics"
	"github.com/aweris/jgit/internal/remote"
	"github.com/aweris/jgit/internal/store"
)

// Materializer restores working copies from their stored snapshots.
type Materializer struct {
	local    *store.LocalStore
	blobs    BlobStore
	packager *archive.Packager
	cache    *store.Cache
	timeout  time.Duration
	logger   *zap.Logger
}

// Ensure makes sure a working copy exists for s, materializing it when it
// is missing. It reports whether a snapshot was downloaded.
func (m *Materializer) Ensure(ctx context.Context, s Session) (bool, error) {
	exists, err := m.local.Exists(s.key())
	if err != nil {
		return false, fmt.Errorf("check working copy %s: %w", s.Handle, err)
	}
	if exists {
		m.cache.Touch(s.key())
		return false, nil
	}
	return true, m.Materialize(ctx, s)
}

// Materialize downloads the snapshot of s and unpacks it into the tenant
// directory. A failed attempt leaves no working copy behind.
func (m *Materializer) Materialize(ctx context.Context, s Session) error {
	start := time.Now()
	err := m.materialize(ctx, s)

	result := "ok"
	switch {
	case errors.Is(err, ErrRemoteNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	default:
		metrics.MaterializeDuration.Observe(time.Since(start).Seconds())
	}
	metrics.Materializations.WithLabelValues(result).Inc()
	return err
}

func (m *Materializer) materialize(ctx context.Context, s Session) error {
	logger := m.logger.With(zap.String("address", s.Address), zap.String("repo", s.Repo))

	tenantDir, err := m.local.EnsureTenant(s.Address)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()

	blobs, err := m.blobs.List(ctx, s.tenant())
	if err != nil {
		return fmt.Errorf("list snapshots of %s: %w", s.Address, err)
	}
	logger.Debug("remote snapshots", zap.Int("count", len(blobs)))

	name := s.BlobName()
	if _, ok := remote.Find(blobs, name); !ok {
		return fmt.Errorf("%w: %s", ErrRemoteNotFound, s.Repo)
	}

	rc, err := m.blobs.Read(ctx, s.tenant(), name)
	if errors.Is(err, remote.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrRemoteNotFound, s.Repo)
	}
	if err != nil {
		return fmt.Errorf("read snapshot %s: %w", name, err)
	}
	defer rc.Close()

	if err := m.packager.Unpack(rc, tenantDir, s.Repo); err != nil {
		m.discard(s, logger)
		return fmt.Errorf("%w: %s: %w", ErrUnpackaging, s.Repo, err)
	}
	if err := m.local.Verify(s.key()); err != nil {
		m.discard(s, logger)
		return fmt.Errorf("%w: %s: %w", ErrUnpackaging, s.Repo, err)
	}

	m.cache.Touch(s.key())
	logger.Info("materialized working copy", zap.String("blob", name))
	return nil
}

func (m *Materializer) discard(s Session, logger *zap.Logger) {
	if err := m.local.Remove(s.key()); err != nil {
		logger.Warn("failed to remove partial working copy", zap.Error(err))
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
