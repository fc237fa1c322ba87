package jgit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aweris/jgit/internal/address"
	"github.com/aweris/jgit/internal/archive"
	"github.com/aweris/jgit/internal/compression"
	"github.com/aweris/jgit/internal/remote"
	"github.com/aweris/jgit/internal/store"
)

// countingStore wraps a BlobStore and counts calls. Writes fail while an
// error is set with failWrites.
type countingStore struct {
	BlobStore
	lists     atomic.Int32
	reads     atomic.Int32
	writes    atomic.Int32
	failWrite atomic.Pointer[error]
}

func newCountingStore() *countingStore {
	return &countingStore{BlobStore: remote.NewFileStoreFs(afero.NewMemMapFs(), "/blobs")}
}

func (c *countingStore) List(ctx context.Context, t Tenant) ([]Blob, error) {
	c.lists.Add(1)
	return c.BlobStore.List(ctx, t)
}

func (c *countingStore) Read(ctx context.Context, t Tenant, name string) (io.ReadCloser, error) {
	c.reads.Add(1)
	return c.BlobStore.Read(ctx, t, name)
}

func (c *countingStore) Write(ctx context.Context, t Tenant, name string, r io.Reader, size int64) error {
	c.writes.Add(1)
	if err := c.failWrite.Load(); err != nil {
		return *err
	}
	return c.BlobStore.Write(ctx, t, name, r, size)
}

// failWrites makes every Write return err; nil restores normal writes.
func (c *countingStore) failWrites(err error) {
	if err == nil {
		c.failWrite.Store(nil)
		return
	}
	c.failWrite.Store(&err)
}

// fixedDeriver maps known passphrases to addresses.
type fixedDeriver map[string]string

func (f fixedDeriver) Derive(_ context.Context, passphrase string) (string, error) {
	addr, ok := f[passphrase]
	if !ok {
		return "", errors.New("unknown passphrase")
	}
	return addr, nil
}

func newMaterializer(t *testing.T, blobs BlobStore) (*Materializer, *store.LocalStore, *store.Cache) {
	t.Helper()
	local, err := store.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	cache := store.NewCache(16, 0)
	return &Materializer{
		local:    local,
		blobs:    blobs,
		packager: archive.New(compression.Fastest),
		cache:    cache,
		logger:   zap.NewNop(),
	}, local, cache
}

// seed stores a snapshot of an empty bare repository for h and returns it.
func seed(t *testing.T, blobs BlobStore, h Handle) []byte {
	t.Helper()
	local, err := store.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	_, err = local.Init(store.Key(h))
	require.NoError(t, err)

	snap, err := archive.New(compression.Fastest).Pack(local.TenantDir(h.Address), h.Repo)
	require.NoError(t, err)
	data, err := os.ReadFile(snap.Path)
	require.NoError(t, err)

	require.NoError(t, blobs.Write(context.Background(), Tenant{Address: h.Address}, h.BlobName(), bytes.NewReader(data), int64(len(data))))
	return data
}

func derive(t *testing.T, passphrase string) string {
	t.Helper()
	addr, err := address.NewLocal().Derive(context.Background(), passphrase)
	require.NoError(t, err)
	return addr
}
