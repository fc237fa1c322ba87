// Package remote implements the blob stores that hold repository snapshots.
//
// Every tenant (address) owns a separate namespace. A snapshot is an opaque
// named blob; the store never looks inside it.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
)

// ErrNotFound is returned by Read when the tenant has no blob of that name.
var ErrNotFound = errors.New("remote: blob not found")

// Tenant scopes store operations to one address. The passphrase is carried
// for stores that authenticate per tenant; the bundled backends ignore it.
type Tenant struct {
	Address    string
	Passphrase string
}

type Blob struct {
	Name string
	Size int64
}

// Store holds named blobs per tenant.
type Store interface {
	List(ctx context.Context, tenant Tenant) ([]Blob, error)
	Read(ctx context.Context, tenant Tenant, name string) (io.ReadCloser, error)
	Write(ctx context.Context, tenant Tenant, name string, r io.Reader, size int64) error
}

// Find returns the blob called name from blobs.
func Find(blobs []Blob, name string) (Blob, bool) {
	for _, b := range blobs {
		if b.Name == name {
			return b, true
		}
	}
	return Blob{}, false
}

type options struct {
	concurrency int
	auth        Authenticator
}

type Option func(*options)

// WithConcurrency bounds parallel transfers for stores that support it.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithAuthenticator overrides registry credentials for the OCI store.
func WithAuthenticator(a Authenticator) Option {
	return func(o *options) { o.auth = a }
}

// Open returns the store addressed by rawURL:
//
//	oci://[user:pass@]host[:port]/prefix[?insecure=true]
//	s3://bucket[/prefix][?region=..&endpoint=..]
//	file:///path
func Open(ctx context.Context, rawURL string, opts ...Option) (Store, error) {
	o := options{concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(&o)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid store url %q: %w", rawURL, err)
	}
	prefix := strings.Trim(u.Path, "/")

	switch u.Scheme {
	case "oci":
		if u.Host == "" {
			return nil, fmt.Errorf("invalid store url %q: missing registry host", rawURL)
		}
		auth := o.auth
		if auth == nil && u.User != nil {
			password, _ := u.User.Password()
			auth = &BasicAuthenticator{Username: u.User.Username(), Password: password}
		}
		if auth == nil {
			auth = NewDefaultAuthenticator()
		}
		insecure, _ := strconv.ParseBool(u.Query().Get("insecure"))
		s, err := NewOCIStore(u.Host, prefix, auth, insecure)
		if err != nil {
			return nil, err
		}
		s.SetConcurrency(o.concurrency)
		return s, nil

	case "s3":
		if u.Host == "" {
			return nil, fmt.Errorf("invalid store url %q: missing bucket", rawURL)
		}
		q := u.Query()
		return NewS3Store(ctx, S3Config{
			Bucket:   u.Host,
			Prefix:   prefix,
			Region:   q.Get("region"),
			Endpoint: q.Get("endpoint"),
		})

	case "file", "":
		if u.Path == "" {
			return nil, fmt.Errorf("invalid store url %q: missing path", rawURL)
		}
		return NewFileStore(u.Path), nil

	default:
		return nil, fmt.Errorf("unsupported store scheme %q", u.Scheme)
	}
}
