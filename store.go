package jgit

import (
	"context"
	"net/http"

	"github.com/aweris/jgit/internal/address"
	"github.com/aweris/jgit/internal/remote"
)

// BlobStore is the durable home of repository snapshots.
// Re-exported from internal/remote for convenience.
type BlobStore = remote.Store

// Tenant scopes BlobStore calls to one address.
type Tenant = remote.Tenant

type Blob = remote.Blob

// AddressDeriver maps a passphrase to the address it controls.
type AddressDeriver = address.Deriver

// Authenticator provides credentials for OCI registries.
type Authenticator = remote.Authenticator

// OpenStore opens a blob store from a URL:
//
//	oci://[user:pass@]host[:port]/prefix[?insecure=true]
//	s3://bucket[/prefix][?region=..&endpoint=..]
//	file:///path
//
// concurrency bounds parallel registry transfers.
func OpenStore(ctx context.Context, url string, concurrency int) (BlobStore, error) {
	return remote.Open(ctx, url, remote.WithConcurrency(concurrency))
}

// NewDeriver returns a deriver backed by the Jupiter node at host, or one
// that derives addresses locally when host is empty.
func NewDeriver(host string, client *http.Client) AddressDeriver {
	return address.New(host, client)
}
