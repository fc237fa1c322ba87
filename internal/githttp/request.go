// Package githttp speaks the git smart HTTP protocol by driving the system
// `git http-backend` as a CGI program.
package githttp

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// Op is the direction of a git request.
type Op string

const (
	Fetch Op = "fetch"
	Push  Op = "push"
)

const (
	UploadPack  = "git-upload-pack"
	ReceivePack = "git-receive-pack"
)

// ErrUnsupported is returned for paths that are not part of the git HTTP
// protocol.
var ErrUnsupported = errors.New("githttp: unsupported request")

var repoPattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]*$`)

// MaxRepoLength keeps snapshot names within the 128 characters a registry tag
// allows.
const MaxRepoLength = 100

// ValidRepo reports whether name is an acceptable repository name.
func ValidRepo(name string) bool {
	return len(name) <= MaxRepoLength && repoPattern.MatchString(name) && !strings.HasSuffix(name, ".git")
}

// Request is a parsed git protocol request, relative to one tenant.
type Request struct {
	// Repo is the repository name without the .git suffix.
	Repo string
	// Path is the part after the repository segment, e.g. "/info/refs".
	Path string
	// Service is git-upload-pack or git-receive-pack; empty for dumb fetches.
	Service string
	Op      Op
	// RPC marks the POST that transfers objects. For a push it is the request
	// after which the repository has changed.
	RPC bool
}

// PathInfo is the CGI PATH_INFO for the backend, rooted at the tenant dir.
func (r Request) PathInfo() string {
	return "/" + r.Repo + ".git" + r.Path
}

// Parse interprets rest ("{repo}[.git]/...") of a tenant-scoped URL.
func Parse(method, rest, service string) (Request, error) {
	seg, tail, _ := strings.Cut(strings.TrimPrefix(rest, "/"), "/")
	repo := strings.TrimSuffix(seg, ".git")
	if !ValidRepo(repo) {
		return Request{}, fmt.Errorf("%w: invalid repository name %q", ErrUnsupported, seg)
	}
	req := Request{Repo: repo, Path: "/" + tail}

	switch {
	case method == http.MethodGet && req.Path == "/info/refs":
		switch service {
		case UploadPack:
			req.Service, req.Op = service, Fetch
		case ReceivePack:
			req.Service, req.Op = service, Push
		case "":
			req.Op = Fetch
		default:
			return Request{}, fmt.Errorf("%w: service %q", ErrUnsupported, service)
		}

	case method == http.MethodPost && req.Path == "/"+UploadPack:
		req.Service, req.Op, req.RPC = UploadPack, Fetch, true

	case method == http.MethodPost && req.Path == "/"+ReceivePack:
		req.Service, req.Op, req.RPC = ReceivePack, Push, true

	case (method == http.MethodGet || method == http.MethodHead) && isDumbPath(req.Path):
		req.Op = Fetch

	default:
		return Request{}, fmt.Errorf("%w: %s %s", ErrUnsupported, method, rest)
	}
	return req, nil
}

func isDumbPath(p string) bool {
	return p == "/HEAD" || (strings.HasPrefix(p, "/objects/") && !strings.Contains(p, ".."))
}
