package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	k := Key{Address: "JUP-A", Repo: "demo"}
	require.Equal(t, "JUP-A/demo", k.String())
	require.Equal(t, "demo.git", k.Dir())
	require.Equal(t, "jupiter-git-demo.git.tar.gz", k.Blob())
}

func TestLocalStore(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	k := Key{Address: "JUP-A", Repo: "demo"}

	t.Run("paths", func(t *testing.T) {
		require.Equal(t, filepath.Join(s.Root(), "JUP-A", "demo.git"), s.RepoPath(k))
		require.Equal(t, filepath.Join(s.Root(), "JUP-A", "jupiter-git-demo.git.tar.gz"), s.StagingPath(k))
	})

	t.Run("init creates bare repository once", func(t *testing.T) {
		exists, err := s.Exists(k)
		require.NoError(t, err)
		require.False(t, exists)

		created, err := s.Init(k)
		require.NoError(t, err)
		require.True(t, created)
		require.FileExists(t, filepath.Join(s.RepoPath(k), "HEAD"))
		require.NoError(t, s.Verify(k))

		created, err = s.Init(k)
		require.NoError(t, err)
		require.False(t, created)
	})

	t.Run("head of empty repository", func(t *testing.T) {
		head, err := s.Head(k)
		require.NoError(t, err)
		require.Empty(t, head)
	})

	t.Run("head after commit", func(t *testing.T) {
		other := Key{Address: "JUP-A", Repo: "full"}
		dir := s.RepoPath(other)
		repo, err := git.PlainInit(dir, false)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("hi"), 0o644))
		wt, err := repo.Worktree()
		require.NoError(t, err)
		_, err = wt.Add("README")
		require.NoError(t, err)
		hash, err := wt.Commit("init", &git.CommitOptions{
			Author: &object.Signature{Name: "t", Email: "t@example.com", When: time.Now()},
		})
		require.NoError(t, err)

		head, err := s.Head(other)
		require.NoError(t, err)
		require.Equal(t, hash.String(), head)
	})

	t.Run("verify rejects junk", func(t *testing.T) {
		junk := Key{Address: "JUP-A", Repo: "junk"}
		require.NoError(t, os.MkdirAll(s.RepoPath(junk), 0o755))
		require.Error(t, s.Verify(junk))
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, os.WriteFile(s.StagingPath(k), []byte("x"), 0o644))
		require.NoError(t, s.RemoveStaged(k))
		require.NoError(t, s.RemoveStaged(k))
		require.NoFileExists(t, s.StagingPath(k))

		require.NoError(t, s.Remove(k))
		require.NoError(t, s.Remove(k))
		exists, err := s.Exists(k)
		require.NoError(t, err)
		require.False(t, exists)
	})

	t.Run("tenants are separate directories", func(t *testing.T) {
		a := Key{Address: "JUP-A", Repo: "shared"}
		b := Key{Address: "JUP-B", Repo: "shared"}
		_, err := s.Init(a)
		require.NoError(t, err)

		exists, err := s.Exists(b)
		require.NoError(t, err)
		require.False(t, exists)
		require.NotEqual(t, s.RepoPath(a), s.RepoPath(b))
	})

	t.Run("incomplete key", func(t *testing.T) {
		_, err := s.Exists(Key{Repo: "demo"})
		require.Error(t, err)
		require.Error(t, s.Remove(Key{Address: "JUP-A"}))
	})
}

func TestCache(t *testing.T) {
	a := Key{Address: "JUP-A", Repo: "a"}
	b := Key{Address: "JUP-A", Repo: "b"}
	c := Key{Address: "JUP-B", Repo: "a"}

	t.Run("capacity eviction is queued", func(t *testing.T) {
		cache := NewCache(2, 0)
		cache.Touch(a)
		cache.Touch(b)
		cache.Touch(a)
		cache.Touch(c)

		require.Equal(t, 2, cache.Len())
		require.True(t, cache.Contains(a))
		require.False(t, cache.Contains(b))

		select {
		case <-cache.Notify():
		default:
			t.Fatal("expected eviction notification")
		}
		require.Equal(t, []Key{b}, cache.Evicted())
		require.Empty(t, cache.Evicted())
	})

	t.Run("forget queues the key", func(t *testing.T) {
		cache := NewCache(10, 0)
		cache.Touch(a)
		cache.Forget(a)
		require.False(t, cache.Contains(a))
		require.Equal(t, []Key{a}, cache.Evicted())
	})

	t.Run("ttl expiry", func(t *testing.T) {
		cache := NewCache(10, 50*time.Millisecond)
		cache.Touch(a)

		require.Eventually(t, func() bool {
			return !cache.Contains(a)
		}, 2*time.Second, 10*time.Millisecond)
		require.Eventually(t, func() bool {
			select {
			case <-cache.Notify():
				return true
			default:
				return false
			}
		}, 2*time.Second, 10*time.Millisecond)
		require.Contains(t, cache.Evicted(), a)
	})
}
