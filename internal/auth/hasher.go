// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Supported hash schemes.
const (
	SchemeArgon2id = "argon2id"
	SchemeBcrypt   = "bcrypt"
)

const (
	argon2SaltLen = 16 // salt length in bytes
	argon2KeyLen  = 32 // output length in bytes

	// bcrypt ignores input past this many bytes.
	bcryptMaxPasswordBytes = 72
)

// ReasonPasswordTooLong is reported when the bcrypt scheme cannot take the whole password.
const ReasonPasswordTooLong = "Must be at most 72 bytes long"

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// Argon2Params are the argon2id cost parameters.
type Argon2Params struct {
	Time        uint32 // iterations
	Memory      uint32 // KiB
	Parallelism uint8
}

// DefaultArgon2Params match the service's historical deployment settings.
var DefaultArgon2Params = Argon2Params{
	Time:        2,
	Memory:      100 * 1024,
	Parallelism: 8,
}

// Validate reports parameters argon2 would reject or silently adjust.
func (p Argon2Params) Validate() error {
	if p.Time < 1 {
		return oops.Code("AUTH_INVALID_HASH_PARAMS").With("time", p.Time).Errorf("argon2 time cost must be at least 1")
	}
	if p.Parallelism < 1 {
		return oops.Code("AUTH_INVALID_HASH_PARAMS").With("parallelism", p.Parallelism).Errorf("argon2 parallelism must be at least 1")
	}
	if p.Memory < 8*uint32(p.Parallelism) {
		return oops.Code("AUTH_INVALID_HASH_PARAMS").
			With("memory", p.Memory).
			With("parallelism", p.Parallelism).
			Errorf("argon2 memory cost must be at least 8 KiB per lane")
	}
	return nil
}

// HashConfig selects the scheme new hashes are written with and its cost.
type HashConfig struct {
	Scheme     string
	Argon2     Argon2Params
	BcryptCost int
}

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a self-describing salted hash of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password, hash string) (bool, error)
}

// Hasher writes hashes with the configured scheme and verifies hashes of
// any supported scheme, so existing users survive a scheme change.
type Hasher struct {
	scheme  string
	primary PasswordHasher
}

// NewHasher builds a Hasher from cfg. An unknown scheme or bad cost is an error;
// callers treat it as fatal at startup.
func NewHasher(cfg HashConfig) (*Hasher, error) {
	scheme := NormalizeScheme(cfg.Scheme)
	switch scheme {
	case SchemeArgon2id:
		h, err := NewArgon2idHasher(cfg.Argon2)
		if err != nil {
			return nil, err
		}
		return &Hasher{scheme: scheme, primary: h}, nil
	case SchemeBcrypt:
		h, err := NewBcryptHasher(cfg.BcryptCost)
		if err != nil {
			return nil, err
		}
		return &Hasher{scheme: scheme, primary: h}, nil
	default:
		return nil, oops.Code("AUTH_UNKNOWN_HASH_SCHEME").
			With("scheme", cfg.Scheme).
			Errorf("unsupported hash scheme %q", cfg.Scheme)
	}
}

// NormalizeScheme maps accepted aliases onto the canonical scheme name.
// Unknown names are returned lower-cased and unchanged otherwise.
func NormalizeScheme(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	switch s {
	case "", "argon2", SchemeArgon2id:
		return SchemeArgon2id
	case SchemeBcrypt:
		return SchemeBcrypt
	}
	return s
}

// Scheme returns the canonical scheme new hashes are written with.
func (h *Hasher) Scheme() string { return h.scheme }

// Hash hashes with the configured scheme.
func (h *Hasher) Hash(password string) (string, error) {
	//nolint:wrapcheck // scheme hashers return coded errors
	return h.primary.Hash(password)
}

// Verify dispatches on the algorithm prefix embedded in encodedHash.
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	switch {
	case strings.HasPrefix(encodedHash, "$argon2id$"):
		return verifyArgon2id(password, encodedHash)
	case isBcryptHash(encodedHash):
		return verifyBcrypt(password, encodedHash)
	default:
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm")
	}
}

// Argon2idHasher implements PasswordHasher using argon2id.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates a new Argon2idHasher with the given cost.
func NewArgon2idHasher(params Argon2Params) (*Argon2idHasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Argon2idHasher{params: params}, nil
}

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	p := h.params
	hash := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Parallelism, argon2KeyLen)

	// $argon2id$v=19$m=102400,t=2,p=8$<salt>$<hash>
	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.Memory,
		p.Time,
		p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)
	return encoded, nil
}

// Verify checks if the password matches the hash.
func (h *Argon2idHasher) Verify(password, encodedHash string) (bool, error) {
	return verifyArgon2id(password, encodedHash)
}

func verifyArgon2id(password, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported argon2 version: %d", version)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	if threads < 1 || threads > 255 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}
	if time < 1 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("time value %d out of range", time)
	}

	keyLen := len(expectedHash)
	if keyLen <= 0 || keyLen > 1<<30 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", keyLen)
	}

	computedHash := argon2.IDKey([]byte(password), salt, time, memory, uint8(threads), uint32(keyLen))

	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1, nil
}

// BcryptHasher implements PasswordHasher using bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a BcryptHasher. A zero cost selects bcrypt.DefaultCost.
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, oops.Code("AUTH_INVALID_HASH_PARAMS").
			With("cost", cost).
			Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &BcryptHasher{cost: cost}, nil
}

// Hash produces a bcrypt hash. Passwords longer than bcrypt can consume are
// rejected with a *ValidationError rather than silently truncated.
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > bcryptMaxPasswordBytes {
		return "", &ValidationError{Field: "password", Reasons: []string{ReasonPasswordTooLong}}
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}
	return string(out), nil
}

// Verify checks if the password matches the hash.
func (h *BcryptHasher) Verify(password, encodedHash string) (bool, error) {
	return verifyBcrypt(password, encodedHash)
}

func verifyBcrypt(password, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// Compile-time interface checks.
var (
	_ PasswordHasher = (*Hasher)(nil)
	_ PasswordHasher = (*Argon2idHasher)(nil)
	_ PasswordHasher = (*BcryptHasher)(nil)
)
