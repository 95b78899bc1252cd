package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pmr-run/pmr/internal/errdef"
	"github.com/pmr-run/pmr/internal/store"
)

const tokenBytes = 32 // 256 bits of entropy, base64url-encoded

// Service mints and validates the control plane's bearer tokens. Rows live
// in the same catalog database as process records, so token mutations get
// the store's transactional guarantees for free.
type Service struct {
	store store.Store
	now   func() time.Time
}

func NewService(s store.Store) *Service {
	return &Service{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// Mint creates a token. expiresInDays <= 0 (with set=false) means no
// expiry; expiresInDays of 0 with set=true mints an already-expired token,
// which some operators use to smoke-test the 401 path.
func (s *Service) Mint(ctx context.Context, label string, expiresInDays int, expirySet bool) (store.Token, error) {
	if strings.TrimSpace(label) == "" {
		return store.Token{}, errdef.New(errdef.KindAuth, "token label required")
	}
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return store.Token{}, errdef.Wrap(errdef.KindAuth, err, "generate token")
	}
	now := s.now()
	tok := store.Token{
		ID:        uuid.NewString(),
		Token:     base64.RawURLEncoding.EncodeToString(buf),
		Label:     label,
		CreatedAt: now,
	}
	if expirySet {
		exp := now.Add(time.Duration(expiresInDays) * 24 * time.Hour)
		tok.ExpiresAt = &exp
	}
	if err := s.store.InsertToken(ctx, tok); err != nil {
		return store.Token{}, err
	}
	return tok, nil
}

// Validate resolves a bearer string to its token id. Unknown or expired
// tokens fail with an auth error; the caller maps that to 401.
func (s *Service) Validate(ctx context.Context, bearer string) (string, error) {
	if bearer == "" {
		return "", errdef.New(errdef.KindAuth, "missing token")
	}
	tok, err := s.store.GetToken(ctx, bearer)
	if err != nil {
		if errdef.Is(err, errdef.KindNotFound) {
			return "", errdef.New(errdef.KindAuth, "invalid token")
		}
		return "", err
	}
	if tok.ExpiresAt != nil && !tok.ExpiresAt.After(s.now()) {
		return "", errdef.New(errdef.KindAuth, "token expired")
	}
	return tok.ID, nil
}

// Revoke deletes the row; a revoked token never validates again.
func (s *Service) Revoke(ctx context.Context, bearer string) error {
	err := s.store.DeleteToken(ctx, bearer)
	if errdef.Is(err, errdef.KindNotFound) {
		return errdef.New(errdef.KindAuth, "unknown token")
	}
	return err
}

// List returns token metadata with the raw strings stripped. The raw
// string is shown exactly once, at mint time.
func (s *Service) List(ctx context.Context) ([]store.Token, error) {
	toks, err := s.store.ListTokens(ctx)
	if err != nil {
		return nil, err
	}
	for i := range toks {
		toks[i].Token = ""
	}
	return toks, nil
}
