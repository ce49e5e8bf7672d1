// Package auth implements the authentication plane (spec.md §4.7): HTTP
// Basic credential parsing and verification against either a principal's
// password hash or one of its app tokens, both argon2id-hashed with a
// per-secret salt and compared in constant time. There is no directory
// bind and no bearer/OIDC path — spec.md §4.7 specifies Basic plus opaque
// app tokens only.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/hearthdav/caldavd/internal/config"
	"github.com/hearthdav/caldavd/internal/model"
	"github.com/hearthdav/caldavd/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/argon2"
)

var ErrUnauthorized = errors.New("auth: invalid credentials")

// Params are the argon2id tuning knobs, loaded from config.AuthConfig so an
// operator can trade off hashing cost against login latency.
type Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

func ParamsFromConfig(cfg config.AuthConfig) Params {
	return Params{
		Time:    cfg.ArgonTime,
		Memory:  cfg.ArgonMemoryKiB,
		Threads: cfg.ArgonThreads,
		KeyLen:  cfg.ArgonKeyLen,
		SaltLen: cfg.ArgonSaltLen,
	}
}

// Hash returns an encoded "argon2id$time$memory$threads$salt$key" string,
// the numeric fields in decimal and salt and key base64-raw-url encoded,
// the format Verify expects.
func (p Params) Hash(secret string) (string, error) {
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(secret), salt, p.Time, p.Memory, p.Threads, p.KeyLen)
	return fmt.Sprintf("argon2id$%d$%d$%d$%s$%s",
		p.Time, p.Memory, p.Threads,
		base64.RawURLEncoding.EncodeToString(salt),
		base64.RawURLEncoding.EncodeToString(key),
	), nil
}

// Verify checks secret against an encoded hash produced by Hash, in
// constant time over the derived key.
func Verify(encoded, secret string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "argon2id" {
		return false
	}
	var time32, mem32 uint64
	var threads8 uint64
	if _, err := fmt.Sscanf(parts[1], "%d", &time32); err != nil {
		return false
	}
	if _, err := fmt.Sscanf(parts[2], "%d", &mem32); err != nil {
		return false
	}
	if _, err := fmt.Sscanf(parts[3], "%d", &threads8); err != nil {
		return false
	}
	salt, err := base64.RawURLEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawURLEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(secret), salt, uint32(time32), uint32(mem32), uint8(threads8), uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

// randomID mints the opaque app-token ids MintAppToken stores, without
// pulling a full UUID dependency into this package; kept here since it lives
// next to the crypto-grade randomness this package already imports.
func randomID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// Authenticator binds a Principal from an Authorization header, per
// spec.md §4.7's credential-resolution order: password first, then each
// app token in turn.
type Authenticator struct {
	store  store.PrincipalStore
	params Params
	logger zerolog.Logger
}

func NewAuthenticator(ps store.PrincipalStore, cfg config.AuthConfig, logger zerolog.Logger) *Authenticator {
	return &Authenticator{store: ps, params: ParamsFromConfig(cfg), logger: logger}
}

// Authenticate parses an "Authorization: Basic <b64>" header and resolves
// the principal it names.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (string, error) {
	if header == "" {
		return "", ErrUnauthorized
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "basic") {
		return "", ErrUnauthorized
	}
	dec, err := base64.StdEncoding.DecodeString(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", ErrUnauthorized
	}
	creds := strings.SplitN(string(dec), ":", 2)
	if len(creds) != 2 {
		return "", ErrUnauthorized
	}
	id, secret := creds[0], creds[1]

	p, err := a.store.GetPrincipal(ctx, id)
	if err != nil {
		// Always attempt a hash comparison even on lookup failure so
		// principal existence can't be timed out of the endpoint.
		Verify("argon2id$1$1024$1$AAAA$AAAA", secret)
		return "", ErrUnauthorized
	}

	if p.PasswordHash != "" && Verify(p.PasswordHash, secret) {
		return p.ID, nil
	}
	for _, t := range p.AppTokens {
		if Verify(t.HashedSecret, secret) {
			return p.ID, nil
		}
	}
	a.logger.Debug().Str("principal", id).Msg("authentication failed")
	return "", ErrUnauthorized
}

// MintAppToken hashes secret with the authenticator's params and stores a
// new AppToken row for principalID, returning its id.
func (a *Authenticator) MintAppToken(ctx context.Context, principalID, name, secret string) (string, error) {
	hash, err := a.params.Hash(secret)
	if err != nil {
		return "", err
	}
	tok := model.AppToken{
		ID:        randomID(),
		Name:      name,
		HashedSecret: hash,
		CreatedAt: store.Now().UTC(),
	}
	if err := a.store.AddAppToken(ctx, principalID, tok); err != nil {
		return "", err
	}
	return tok.ID, nil
}
