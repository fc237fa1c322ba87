package remote

import (
	"fmt"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
)

// Authenticator provides credentials for OCI registry operations.
type Authenticator interface {
	// Authenticate returns credentials for the given registry host.
	// An empty username means anonymous access.
	Authenticate(registry string) (username, password string, err error)
}

// BasicAuthenticator returns fixed credentials, typically from the store URL.
type BasicAuthenticator struct {
	Username string
	Password string
}

func (a *BasicAuthenticator) Authenticate(string) (string, string, error) {
	return a.Username, a.Password, nil
}

// DefaultAuthenticator resolves credentials from the docker keychain.
type DefaultAuthenticator struct {
	keychain authn.Keychain
}

func NewDefaultAuthenticator() *DefaultAuthenticator {
	return &DefaultAuthenticator{keychain: authn.DefaultKeychain}
}

func (a *DefaultAuthenticator) Authenticate(registry string) (string, string, error) {
	reg, err := name.NewRegistry(registry, name.WeakValidation)
	if err != nil {
		return "", "", fmt.Errorf("parse registry %q: %w", registry, err)
	}

	auth, err := a.keychain.Resolve(reg)
	if err != nil {
		return "", "", fmt.Errorf("resolve credentials for %s: %w", registry, err)
	}

	cfg, err := auth.Authorization()
	if err != nil {
		return "", "", fmt.Errorf("authorize %s: %w", registry, err)
	}
	return cfg.Username, cfg.Password, nil
}
