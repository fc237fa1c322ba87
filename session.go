package jgit

import (
	"context"
	"regexp"
	"strings"

	"github.com/aweris/jgit/internal/githttp"
	"github.com/aweris/jgit/internal/remote"
	"github.com/aweris/jgit/internal/store"
)

// Op is the direction of a git request.
type Op = githttp.Op

const (
	OpFetch = githttp.Fetch
	OpPush  = githttp.Push
)

var addressPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

// CanonicalAddress validates an address from a URL and upper-cases it.
func CanonicalAddress(s string) (string, bool) {
	if !addressPattern.MatchString(s) {
		return "", false
	}
	return strings.ToUpper(s), true
}

// Handle names one repository of one tenant.
type Handle struct {
	Address string
	Repo    string
}

func (h Handle) String() string { return h.Address + "/" + h.Repo }

// BlobName is the snapshot name of the repository in the blob store.
func (h Handle) BlobName() string { return h.key().Blob() }

func (h Handle) key() store.Key { return store.Key(h) }

// Session is the identity behind one protocol request. It is created per
// request and never shared between requests.
type Session struct {
	Handle
	Username   string
	Passphrase string
	Op         Op
	// Master is set when the operator master key was presented.
	Master bool
}

func (s Session) tenant() remote.Tenant {
	return remote.Tenant{Address: s.Address, Passphrase: s.Passphrase}
}

type sessionKey struct{}

// ContextWithSession returns a copy of ctx carrying s.
func ContextWithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session of the request ctx belongs to.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}
