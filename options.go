package jgit

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// PersistMode decides when a push is reported back to the client.
type PersistMode string

const (
	// PersistSync holds the receive-pack response until the snapshot is
	// stored; a failed upload fails the push.
	PersistSync PersistMode = "sync"
	// PersistAsync answers the client first and persists afterwards. Upload
	// failures are only logged.
	PersistAsync PersistMode = "async"
)

func ParsePersistMode(s string) (PersistMode, error) {
	switch m := PersistMode(s); m {
	case PersistSync, PersistAsync:
		return m, nil
	case "":
		return PersistSync, nil
	default:
		return "", fmt.Errorf("unknown persist mode %q", s)
	}
}

const (
	DefaultRegistrySize = 1024
	DefaultCacheSize    = 256
	DefaultCacheTTL     = time.Hour
	DefaultConcurrency  = 4
	DefaultHostname     = "http://localhost:8080"
)

// Options configures a Server.
type Options struct {
	RootDir  string
	Hostname string
	// MasterKey, when set, authenticates any address.
	MasterKey string
	Store     BlobStore
	Deriver   AddressDeriver
	Logger    *zap.Logger

	Concurrency  int
	RegistrySize int
	CacheSize    int
	CacheTTL     time.Duration

	PersistMode       PersistMode
	RetainAfterPush   bool
	MaterializeOnPush bool
	// RemoteTimeout bounds each blob store call; zero means no limit.
	RemoteTimeout time.Duration

	// Observer receives the result of every receive-pack request.
	Observer func(PushResult)
}

// Option is a functional option for configuring NewServer.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		RootDir:      defaultRootDir(),
		Hostname:     DefaultHostname,
		Concurrency:  DefaultConcurrency,
		RegistrySize: DefaultRegistrySize,
		CacheSize:    DefaultCacheSize,
		CacheTTL:     DefaultCacheTTL,
		PersistMode:  PersistSync,
	}
}

// WithRootDir sets the directory holding tenant working copies.
func WithRootDir(dir string) Option {
	return func(o *Options) { o.RootDir = dir }
}

// WithHostname sets the public URL shown on the landing page.
func WithHostname(h string) Option {
	return func(o *Options) { o.Hostname = h }
}

func WithMasterKey(key string) Option {
	return func(o *Options) { o.MasterKey = key }
}

// WithStore sets the blob store holding snapshots.
func WithStore(s BlobStore) Option {
	return func(o *Options) { o.Store = s }
}

// WithDeriver sets how passphrases are mapped to addresses.
func WithDeriver(d AddressDeriver) Option {
	return func(o *Options) { o.Deriver = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithConcurrency bounds concurrent git backend processes.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithRegistrySize bounds the number of cached per-address adapters.
func WithRegistrySize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.RegistrySize = n
		}
	}
}

// WithCache bounds the local working copies kept after fetches.
func WithCache(size int, ttl time.Duration) Option {
	return func(o *Options) {
		o.CacheSize = size
		o.CacheTTL = ttl
	}
}

func WithPersistMode(m PersistMode) Option {
	return func(o *Options) { o.PersistMode = m }
}

// WithRetainAfterPush keeps the working copy after a successful push instead
// of deleting it.
func WithRetainAfterPush(retain bool) Option {
	return func(o *Options) { o.RetainAfterPush = retain }
}

// WithMaterializeOnPush restores a missing working copy before a push, so a
// push to an existing remote repository starts from its stored history.
func WithMaterializeOnPush(enabled bool) Option {
	return func(o *Options) { o.MaterializeOnPush = enabled }
}

func WithRemoteTimeout(d time.Duration) Option {
	return func(o *Options) { o.RemoteTimeout = d }
}

func WithObserver(fn func(PushResult)) Option {
	return func(o *Options) { o.Observer = fn }
}

func defaultRootDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "jgit")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "jgit")
	}
	return ".jgit"
}

// DefaultRootDir is the working copy root used when none is configured.
func DefaultRootDir() string { return defaultRootDir() }
