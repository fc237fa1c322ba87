package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// LocalStore lays out working copies on the local filesystem.
//
// Storage layout (tenant-isolated):
//
//	root/
//	  {address}/
//	    {repo}.git/                       bare repository
//	    jupiter-git-{repo}.git.tar.gz     staged snapshot during a push
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", abs, err)
	}
	return &LocalStore{root: abs}, nil
}

func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) TenantDir(address string) string {
	return filepath.Join(s.root, address)
}

func (s *LocalStore) RepoPath(k Key) string {
	return filepath.Join(s.TenantDir(k.Address), k.Dir())
}

// StagingPath is where the packager writes the snapshot for k.
func (s *LocalStore) StagingPath(k Key) string {
	return filepath.Join(s.TenantDir(k.Address), k.Blob())
}

// EnsureTenant creates the tenant directory and returns its path.
func (s *LocalStore) EnsureTenant(address string) (string, error) {
	dir := s.TenantDir(address)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return dir, nil
}

// Exists reports whether a working copy directory is present.
func (s *LocalStore) Exists(k Key) (bool, error) {
	if err := k.validate(); err != nil {
		return false, err
	}
	info, err := os.Stat(s.RepoPath(k))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// Init creates an empty bare repository for k unless one exists already.
func (s *LocalStore) Init(k Key) (bool, error) {
	exists, err := s.Exists(k)
	if err != nil || exists {
		return false, err
	}
	if _, err := s.EnsureTenant(k.Address); err != nil {
		return false, err
	}
	if _, err := git.PlainInit(s.RepoPath(k), true); err != nil {
		return false, fmt.Errorf("init %s: %w", k, err)
	}
	return true, nil
}

// Verify checks that the working copy is a readable git repository.
func (s *LocalStore) Verify(k Key) error {
	if _, err := git.PlainOpen(s.RepoPath(k)); err != nil {
		return fmt.Errorf("open %s: %w", k, err)
	}
	return nil
}

// Head returns the commit HEAD points at, or "" for an empty repository.
func (s *LocalStore) Head(k Key) (string, error) {
	repo, err := git.PlainOpen(s.RepoPath(k))
	if err != nil {
		return "", fmt.Errorf("open %s: %w", k, err)
	}
	ref, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve HEAD of %s: %w", k, err)
	}
	return ref.Hash().String(), nil
}

// Remove deletes the working copy. A missing copy is not an error.
func (s *LocalStore) Remove(k Key) error {
	if err := k.validate(); err != nil {
		return err
	}
	if err := os.RemoveAll(s.RepoPath(k)); err != nil {
		return fmt.Errorf("remove %s: %w", k, err)
	}
	return nil
}

// RemoveStaged deletes the staged snapshot of k, if any.
func (s *LocalStore) RemoveStaged(k Key) error {
	err := os.Remove(s.StagingPath(k))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove staged snapshot of %s: %w", k, err)
	}
	return nil
}
