package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (OWASP recommendation).
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 1
	argonKeyLen  = 32
	argonSaltLen = 16

	// maxPasswordLength caps the input fed to Argon2id.
	maxPasswordLength = 256
)

var errMalformedHash = errors.New("malformed password hash")

// HashPassword returns the PHC encoding of password:
// $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword reports whether password matches the PHC hash. The
// parameters stored in the hash are used, so older hashes keep verifying
// after the constants change.
func VerifyPassword(password, encodedHash string) (bool, error) {
	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.threads, uint32(len(p.key))) //nolint:gosec // G115: key length fits uint32
	return subtle.ConstantTimeCompare(p.key, candidate) == 1, nil
}

// ValidatePassword enforces the length policy on a new password.
func ValidatePassword(password string, minLength int) error {
	n := utf8.RuneCountInString(password)
	switch {
	case n < minLength:
		return fmt.Errorf("%w: must be at least %d characters", ErrWeakPassword, minLength)
	case len(password) > maxPasswordLength:
		return fmt.Errorf("%w: must be at most %d bytes", ErrWeakPassword, maxPasswordLength)
	}
	return nil
}

// dummyHash is verified against when the account does not exist, so an
// unknown username costs the same Argon2id work as a wrong password.
var dummyHash = sync.OnceValue(func() string {
	h, err := HashPassword("gatehouse-absent-account")
	if err != nil {
		return ""
	}
	return h
})

func burnPasswordCheck(password string) {
	_, _ = VerifyPassword(password, dummyHash()) //nolint:errcheck // result is discarded on purpose
}

type phcHash struct {
	salt    []byte
	key     []byte
	time    uint32
	memory  uint32
	threads uint8
}

func decodePHC(encoded string) (phcHash, error) {
	var p phcHash

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 { //nolint:mnd // "", alg, version, params, salt, key
		return p, fmt.Errorf("%w: expected 6 fields", errMalformedHash)
	}
	if parts[1] != "argon2id" {
		return p, fmt.Errorf("%w: unsupported algorithm %q", errMalformedHash, parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, fmt.Errorf("%w: version: %w", errMalformedHash, err)
	}
	if version != argon2.Version {
		return p, fmt.Errorf("%w: unsupported version %d", errMalformedHash, version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, fmt.Errorf("%w: parameters: %w", errMalformedHash, err)
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return p, fmt.Errorf("%w: salt: %w", errMalformedHash, err)
	}
	if p.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return p, fmt.Errorf("%w: key: %w", errMalformedHash, err)
	}
	if len(p.key) == 0 {
		return p, fmt.Errorf("%w: empty key", errMalformedHash)
	}

	return p, nil
}
