package jgit

import "errors"

var (
	ErrAuthentication = errors.New("jgit: authentication failed")
	ErrRemoteNotFound = errors.New("jgit: repository not found")
	ErrPackaging      = errors.New("jgit: packaging failed")
	ErrUnpackaging    = errors.New("jgit: unpackaging failed")
	ErrPersistence    = errors.New("jgit: persistence failed")
	ErrInvalidRequest = errors.New("jgit: invalid request")
)

const addressHint = "please make sure your git remote URL has the correct JUP-XXX address " +
	"(i.e. https://URL/:JUP_ADDRESS/REPO) and you enter the correct passphrase"
