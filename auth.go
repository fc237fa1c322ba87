package jgit

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/aweris/jgit/internal/logging"
	"github.com/aweris/jgit/internal/metrics"
)

// Gate authenticates protocol requests and prepares the working copy they
// need.
type Gate struct {
	masterKey         string
	deriver           AddressDeriver
	materializer      *Materializer
	materializeOnPush bool
	logger            *zap.Logger
}

// Authenticate verifies that s.Passphrase controls s.Address, or is the
// master key. Fetches then get a working copy, materialized from the blob
// store when missing; a failure there fails the request.
func (g *Gate) Authenticate(ctx context.Context, s Session) (Session, error) {
	s, err := g.identify(ctx, s)
	if err != nil {
		metrics.AuthFailed.WithLabelValues(string(s.Op)).Inc()
		g.logger.Info("auth error",
			zap.String("address", s.Address),
			zap.String("repo", s.Repo),
			zap.Error(err),
		)
		return s, err
	}

	switch {
	case s.Op == OpFetch:
		_, err = g.materializer.Ensure(ctx, s)
	case s.Op == OpPush && g.materializeOnPush:
		_, err = g.materializer.Ensure(ctx, s)
		if errors.Is(err, ErrRemoteNotFound) {
			err = nil
		}
	}
	return s, err
}

func (g *Gate) identify(ctx context.Context, s Session) (Session, error) {
	g.logger.Debug("git auth handler",
		zap.String("address", s.Address),
		zap.String("passphrase", logging.Mask(s.Passphrase)),
	)

	if s.Passphrase == "" {
		return s, fmt.Errorf("%w: missing passphrase", ErrAuthentication)
	}

	if g.masterKey != "" && subtle.ConstantTimeCompare([]byte(s.Passphrase), []byte(g.masterKey)) == 1 {
		metrics.MasterKeyUsed.Inc()
		g.logger.Debug("git client key used to authenticate with repo",
			zap.String("op", string(s.Op)),
			zap.String("repo", s.Repo),
		)
		s.Master = true
		return s, nil
	}

	derived, err := g.deriver.Derive(ctx, s.Passphrase)
	if err != nil {
		return s, fmt.Errorf("%w: derive address: %w", ErrAuthentication, err)
	}
	if !strings.EqualFold(derived, s.Address) {
		return s, fmt.Errorf("%w: %s", ErrAuthentication, addressHint)
	}
	return s, nil
}
