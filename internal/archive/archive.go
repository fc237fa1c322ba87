// Package archive packs a tenant's bare repository directory into a single
// gzip-compressed tar snapshot and extracts it again.
//
// Layout inside a tenant directory:
//
//	{tenantDir}/
//	  {repo}.git/                       bare repository (working copy)
//	  jupiter-git-{repo}.git.tar.gz     staged snapshot, entries rooted at {repo}.git/
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aweris/jgit/internal/compression"
)

const blobPrefix = "jupiter-git-"

// ErrSymlink is returned for link entries; bare repositories hold none.
var ErrSymlink = errors.New("links are not allowed in a repository snapshot")

// BlobName is the remote name of a repository's snapshot. It depends on the
// repository name only; tenants are separated by the store, not the name.
func BlobName(repo string) string {
	return blobPrefix + repo + ".git.tar.gz"
}

// RepoDir is the directory name of a bare repository inside a tenant directory.
func RepoDir(repo string) string {
	return repo + ".git"
}

// Snapshot describes a staged archive on local disk.
type Snapshot struct {
	Dir  string
	Name string
	Path string
	Size int64
}

type Packager struct {
	level compression.Level
}

func New(level compression.Level) *Packager {
	return &Packager{level: level}
}

// Pack archives {tenantDir}/{repo}.git into {tenantDir}/BlobName(repo).
// The whole tree is archived every time.
func (p *Packager) Pack(tenantDir, repo string) (Snapshot, error) {
	src := filepath.Join(tenantDir, RepoDir(repo))
	info, err := os.Stat(src)
	if err != nil {
		return Snapshot{}, fmt.Errorf("stat repository %q: %w", src, err)
	}
	if !info.IsDir() {
		return Snapshot{}, fmt.Errorf("repository %q is not a directory", src)
	}

	name := BlobName(repo)
	dest := filepath.Join(tenantDir, name)
	tmp := dest + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return Snapshot{}, fmt.Errorf("create archive: %w", err)
	}
	defer os.Remove(tmp)

	if err := p.write(f, tenantDir, src); err != nil {
		f.Close()
		return Snapshot{}, err
	}
	if err := f.Close(); err != nil {
		return Snapshot{}, fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return Snapshot{}, fmt.Errorf("move archive into place: %w", err)
	}

	st, err := os.Stat(dest)
	if err != nil {
		return Snapshot{}, fmt.Errorf("stat archive: %w", err)
	}

	return Snapshot{Dir: tenantDir, Name: name, Path: dest, Size: st.Size()}, nil
}

func (p *Packager) write(w io.Writer, base, src string) error {
	gz, err := compression.NewGzipWriter(w, p.level)
	if err != nil {
		return fmt.Errorf("create gzip writer: %w", err)
	}
	tw := tar.NewWriter(gz)

	err = filepath.WalkDir(src, func(walked string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return addEntry(tw, base, walked, d)
	})
	if err != nil {
		return fmt.Errorf("archive %q: %w", src, err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar writer: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip writer: %w", err)
	}
	return nil
}

func addEntry(tw *tar.Writer, base, entry string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(base, entry)
	if err != nil {
		return err
	}

	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		return fmt.Errorf("%s: %w", rel, ErrSymlink)
	case !info.IsDir() && !info.Mode().IsRegular():
		return nil
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("header for %s: %w", rel, err)
	}
	header.Name = filepath.ToSlash(rel)
	if info.IsDir() {
		header.Name += "/"
	}

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write header for %s: %w", rel, err)
	}

	if !info.Mode().IsRegular() {
		return nil
	}

	file, err := os.Open(entry)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := io.Copy(tw, file); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

// Unpack extracts a snapshot produced by Pack into tenantDir, recreating
// {repo}.git. Entries outside {repo}.git are rejected.
func (p *Packager) Unpack(r io.Reader, tenantDir, repo string) error {
	gz, err := compression.NewGzipReader(r)
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	root := RepoDir(repo)
	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}

		name := path.Clean(header.Name)
		if name != root && !strings.HasPrefix(name, root+"/") {
			return fmt.Errorf("archive entry %q is outside %s", header.Name, root)
		}
		target := filepath.Join(tenantDir, filepath.FromSlash(name))

		if err := extract(tr, header, target); err != nil {
			return fmt.Errorf("extract %s: %w", header.Name, err)
		}
	}

	return nil
}

func extract(tr *tar.Reader, header *tar.Header, target string) error {
	mode := fs.FileMode(header.Mode).Perm()

	switch header.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, mode|0o700)

	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		return os.Chtimes(target, header.ModTime, header.ModTime)

	case tar.TypeSymlink, tar.TypeLink:
		return ErrSymlink

	default:
		// Bare repositories hold nothing else; skip devices, fifos, etc.
		return nil
	}
}
