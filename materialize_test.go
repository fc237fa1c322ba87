package jgit

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaterializer(t *testing.T) {
	ctx := context.Background()

	t.Run("restores the stored snapshot", func(t *testing.T) {
		blobs := newCountingStore()
		m, local, cache := newMaterializer(t, blobs)
		h := Handle{Address: "JUP-ABCD", Repo: "demo"}
		seed(t, blobs, h)

		require.NoError(t, m.Materialize(ctx, Session{Handle: h, Op: OpFetch}))
		require.DirExists(t, filepath.Join(local.Root(), "JUP-ABCD", "demo.git"))
		require.NoError(t, local.Verify(h.key()))
		require.True(t, cache.Contains(h.key()))
	})

	t.Run("is idempotent", func(t *testing.T) {
		blobs := newCountingStore()
		m, _, _ := newMaterializer(t, blobs)
		h := Handle{Address: "JUP-ABCD", Repo: "demo"}
		seed(t, blobs, h)
		s := Session{Handle: h, Op: OpFetch}

		downloaded, err := m.Ensure(ctx, s)
		require.NoError(t, err)
		require.True(t, downloaded)

		downloaded, err = m.Ensure(ctx, s)
		require.NoError(t, err)
		require.False(t, downloaded)
		require.EqualValues(t, 1, blobs.reads.Load())
	})

	t.Run("missing snapshot", func(t *testing.T) {
		m, local, _ := newMaterializer(t, newCountingStore())
		h := Handle{Address: "JUP-ABCD", Repo: "demo"}

		err := m.Materialize(ctx, Session{Handle: h, Op: OpFetch})
		require.ErrorIs(t, err, ErrRemoteNotFound)
		require.EqualError(t, err, "jgit: repository not found: demo")
		require.NoDirExists(t, local.RepoPath(h.key()))
	})

	t.Run("corrupt snapshot leaves nothing behind", func(t *testing.T) {
		blobs := newCountingStore()
		m, local, cache := newMaterializer(t, blobs)
		h := Handle{Address: "JUP-ABCD", Repo: "demo"}
		junk := []byte("definitely not gzip")
		require.NoError(t, blobs.Write(ctx, Tenant{Address: h.Address}, h.BlobName(), bytes.NewReader(junk), int64(len(junk))))

		err := m.Materialize(ctx, Session{Handle: h, Op: OpFetch})
		require.ErrorIs(t, err, ErrUnpackaging)
		require.NoDirExists(t, local.RepoPath(h.key()))
		require.False(t, cache.Contains(h.key()))
	})

	t.Run("snapshot that is not a repository", func(t *testing.T) {
		blobs := newCountingStore()
		m, local, _ := newMaterializer(t, blobs)
		h := Handle{Address: "JUP-ABCD", Repo: "demo"}

		src := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(src, "demo.git", "nothing"), 0o755))
		snap, err := m.packager.Pack(src, "demo")
		require.NoError(t, err)
		data, err := os.ReadFile(snap.Path)
		require.NoError(t, err)
		require.NoError(t, blobs.Write(ctx, Tenant{Address: h.Address}, h.BlobName(), bytes.NewReader(data), int64(len(data))))

		err = m.Materialize(ctx, Session{Handle: h, Op: OpFetch})
		require.ErrorIs(t, err, ErrUnpackaging)
		require.NoDirExists(t, local.RepoPath(h.key()))
	})

	t.Run("tenants are isolated", func(t *testing.T) {
		blobs := newCountingStore()
		m, local, _ := newMaterializer(t, blobs)
		a := Handle{Address: "JUP-AAAA", Repo: "shared"}
		b := Handle{Address: "JUP-BBBB", Repo: "shared"}
		seed(t, blobs, a)

		require.NoError(t, m.Materialize(ctx, Session{Handle: a, Op: OpFetch}))
		require.ErrorIs(t, m.Materialize(ctx, Session{Handle: b, Op: OpFetch}), ErrRemoteNotFound)

		require.DirExists(t, local.RepoPath(a.key()))
		require.NoDirExists(t, local.RepoPath(b.key()))
	})
}
