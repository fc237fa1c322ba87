package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
)

// FileStore keeps blobs on a filesystem under {root}/{address}/{name}.
type FileStore struct {
	fs   afero.Fs
	root string
}

// NewFileStore returns a store on the host filesystem.
func NewFileStore(root string) *FileStore {
	return NewFileStoreFs(afero.NewOsFs(), root)
}

func NewFileStoreFs(fsys afero.Fs, root string) *FileStore {
	return &FileStore{fs: fsys, root: root}
}

func (s *FileStore) String() string { return "file://" + s.root }

func (s *FileStore) List(_ context.Context, tenant Tenant) ([]Blob, error) {
	dir := filepath.Join(s.root, tenant.Address)
	entries, err := afero.ReadDir(s.fs, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var blobs []Blob
	for _, e := range entries {
		if !e.Mode().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		blobs = append(blobs, Blob{Name: e.Name(), Size: e.Size()})
	}

	slices.SortFunc(blobs, func(a, b Blob) int { return strings.Compare(a.Name, b.Name) })
	return blobs, nil
}

func (s *FileStore) Read(_ context.Context, tenant Tenant, name string) (io.ReadCloser, error) {
	p := filepath.Join(s.root, tenant.Address, name)
	f, err := s.fs.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	return f, nil
}

// Write stages the blob in a hidden temp file and renames it into place, so
// readers never observe a partial blob.
func (s *FileStore) Write(ctx context.Context, tenant Tenant, name string, r io.Reader, size int64) error {
	dir := filepath.Join(s.root, tenant.Address)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	defer s.fs.Remove(tmp.Name())

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write blob %s: %w", name, err)
	}
	if size >= 0 && n != size {
		return fmt.Errorf("write blob %s: got %d bytes, want %d", name, n, size)
	}

	if err := s.fs.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("commit blob %s: %w", name, err)
	}
	return nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
