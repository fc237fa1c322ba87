// Package address derives a tenant address from a passphrase.
//
// Addresses use the Reed-Solomon account format of NXT-derived chains
// (JUP-XXXX-XXXX-XXXX-XXXXX). Local derives them in-process; Remote asks a
// Jupiter node.
package address

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/crypto/curve25519"
)

// DefaultPrefix is the address prefix of the Jupiter chain.
const DefaultPrefix = "JUP"

var ErrEmptyPassphrase = errors.New("address: empty passphrase")

// Deriver turns a passphrase into the address it controls.
type Deriver interface {
	Derive(ctx context.Context, passphrase string) (string, error)
}

// Local derives addresses without network access.
type Local struct {
	Prefix string
}

func NewLocal() *Local {
	return &Local{Prefix: DefaultPrefix}
}

func (l *Local) Derive(_ context.Context, passphrase string) (string, error) {
	if passphrase == "" {
		return "", ErrEmptyPassphrase
	}

	id, err := AccountID(passphrase)
	if err != nil {
		return "", err
	}

	prefix := l.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "-" + encodeRS(id), nil
}

// AccountID returns the numeric account id controlled by passphrase: the
// first eight bytes, little endian, of sha256 over the Curve25519 public key
// whose private scalar is sha256(passphrase).
func AccountID(passphrase string) (uint64, error) {
	secret := sha256.Sum256([]byte(passphrase))
	public, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return 0, fmt.Errorf("derive public key: %w", err)
	}

	digest := sha256.Sum256(public)
	return binary.LittleEndian.Uint64(digest[:8]), nil
}

const alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

var (
	gexp    = [...]int{1, 2, 4, 8, 16, 5, 10, 20, 13, 26, 17, 7, 14, 28, 29, 31, 27, 19, 3, 6, 12, 24, 21, 15, 30, 25, 23, 11, 22, 9, 18, 1}
	glog    = [...]int{0, 0, 1, 18, 2, 5, 19, 11, 3, 29, 6, 27, 20, 8, 12, 23, 4, 10, 30, 17, 7, 22, 28, 26, 21, 25, 9, 16, 13, 14, 24, 15}
	codemap = [...]int{3, 2, 1, 0, 7, 6, 5, 4, 13, 14, 15, 16, 12, 8, 9, 10, 11}
)

const dataSize = 13

func gmult(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return gexp[(glog[a]+glog[b])%31]
}

// encodeRS renders an account id as 17 base-32 symbols: 13 data symbols and
// 4 Reed-Solomon parity symbols over GF(32), grouped 4-4-4-5.
func encodeRS(id uint64) string {
	digits := []byte(strconv.FormatUint(id, 10))
	for i := range digits {
		digits[i] -= '0'
	}

	var codeword [17]int
	length, n := len(digits), 0
	for length > 0 {
		newLength, digit := 0, 0
		for i := range length {
			digit = digit*10 + int(digits[i])
			if digit >= 32 {
				digits[newLength] = byte(digit >> 5)
				digit &= 31
				newLength++
			} else if newLength > 0 {
				digits[newLength] = 0
				newLength++
			}
		}
		length = newLength
		codeword[n] = digit
		n++
	}

	var p [4]int
	for i := dataSize - 1; i >= 0; i-- {
		fb := codeword[i] ^ p[3]
		p[3] = p[2] ^ gmult(30, fb)
		p[2] = p[1] ^ gmult(6, fb)
		p[1] = p[0] ^ gmult(9, fb)
		p[0] = gmult(17, fb)
	}
	copy(codeword[dataSize:], p[:])

	out := make([]byte, 0, 20)
	for i, idx := range codemap {
		out = append(out, alphabet[codeword[idx]])
		if i&3 == 3 && i < dataSize {
			out = append(out, '-')
		}
	}
	return string(out)
}
