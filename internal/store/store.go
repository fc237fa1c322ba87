// Package store manages the local working copies of tenant repositories.
//
// Working copies are ephemeral: the blob store holds the durable snapshot and
// a copy only lives on disk between a materialization (or push) and its
// eviction.
package store

import (
	"fmt"

	"github.com/aweris/jgit/internal/archive"
)

// Key identifies one repository of one tenant.
type Key struct {
	Address string
	Repo    string
}

func (k Key) String() string { return k.Address + "/" + k.Repo }

// Dir is the bare repository directory name, relative to the tenant dir.
func (k Key) Dir() string { return archive.RepoDir(k.Repo) }

// Blob is the name of the repository's snapshot in the blob store.
func (k Key) Blob() string { return archive.BlobName(k.Repo) }

func (k Key) validate() error {
	if k.Address == "" || k.Repo == "" {
		return fmt.Errorf("incomplete repository key %q", k)
	}
	return nil
}
