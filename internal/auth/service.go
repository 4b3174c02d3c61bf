package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"fixwell.io/internal/directory"
	"fixwell.io/internal/ids"
	"fixwell.io/internal/obs"
	"fixwell.io/internal/tenant"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 24 * time.Hour * 14
)

// Directory is the slice of the user directory the auth service needs.
// Lookups here run before any tenant context exists, so they are unscoped
// by contract.
type Directory interface {
	GetOrganizationBySlug(ctx context.Context, slug string) (directory.Organization, error)
	GetUserByEmail(ctx context.Context, orgID, email string) (directory.User, error)
	GetUser(ctx context.Context, scope tenant.Scope, id string) (directory.User, error)
	RecordLogin(ctx context.Context, id string) error
}

// Service issues and verifies credentials: access tokens, one-time refresh
// tokens and the logout deny-list.
type Service struct {
	dir        Directory
	tokens     RefreshTokenStore
	denylist   *Denylist
	now        func() time.Time
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithDenylist enables access token revocation on logout.
func WithDenylist(d *Denylist) ServiceOption {
	return func(s *Service) { s.denylist = d }
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the auth service.
func NewService(dir Directory, tokens RefreshTokenStore, opts ...ServiceOption) (*Service, error) {
	if dir == nil {
		return nil, errors.New("directory is required")
	}
	if tokens == nil {
		return nil, errors.New("refresh token store is required")
	}
	svc := &Service{
		dir:        dir,
		tokens:     tokens,
		now:        time.Now,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// TokenPair represents access and refresh tokens along with their expirations.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Login authenticates credentials against one organisation and issues a
// token pair. Platform accounts log in with an empty organisation slug.
// Every credential failure returns ErrUnauthorized.
func (s *Service) Login(ctx context.Context, orgSlug, email, password string) (TokenPair, directory.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	orgSlug = strings.TrimSpace(strings.ToLower(orgSlug))
	if email == "" || password == "" {
		return TokenPair{}, directory.User{}, ErrUnauthorized
	}

	orgID := ""
	if orgSlug != "" {
		org, err := s.dir.GetOrganizationBySlug(ctx, orgSlug)
		if err != nil {
			return TokenPair{}, directory.User{}, ErrUnauthorized
		}
		if org.Status != directory.OrgActive {
			return TokenPair{}, directory.User{}, ErrUnauthorized
		}
		orgID = org.ID
	}

	user, err := s.dir.GetUserByEmail(ctx, orgID, email)
	if err != nil {
		return TokenPair{}, directory.User{}, ErrUnauthorized
	}
	if !user.Active || user.PasswordHash == "" {
		return TokenPair{}, directory.User{}, ErrUnauthorized
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, directory.User{}, ErrUnauthorized
	}

	pair, err := s.mintTokens(ctx, user)
	if err != nil {
		return TokenPair{}, directory.User{}, err
	}
	if err := s.dir.RecordLogin(ctx, user.ID); err != nil {
		obs.Logger().Printf(`{"level":"warn","msg":"record_login_failed","user_id":%q,"error":%q}`, user.ID, err.Error())
	}
	return pair, user, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued. A replayed or tampered token is rejected, and a hash
// mismatch revokes the stored record outright.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, directory.User, error) {
	tokenID, tokenSecret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, directory.User{}, ErrInvalidToken
	}

	record, err := s.tokens.Find(ctx, tokenID)
	if err != nil {
		return TokenPair{}, directory.User{}, ErrInvalidToken
	}
	if record.Revoked || s.now().After(record.ExpiresAt) {
		return TokenPair{}, directory.User{}, ErrInvalidToken
	}
	if !secureCompareHash(record.TokenHash, tokenSecret) {
		_ = s.tokens.Revoke(ctx, record.ID)
		return TokenPair{}, directory.User{}, ErrInvalidToken
	}

	user, err := s.dir.GetUser(ctx, tenant.Global(), record.UserID)
	if err != nil {
		return TokenPair{}, directory.User{}, ErrInvalidToken
	}
	if !user.Active {
		return TokenPair{}, directory.User{}, ErrInvalidToken
	}

	if err := s.tokens.Revoke(ctx, record.ID); err != nil {
		return TokenPair{}, directory.User{}, fmt.Errorf("revoke rotated token: %w", err)
	}
	pair, err := s.mintTokens(ctx, user)
	if err != nil {
		return TokenPair{}, directory.User{}, err
	}
	return pair, user, nil
}

// Logout revokes both halves of a session: the access token goes on the
// deny-list until its natural expiry and the refresh token is revoked in
// storage. Either argument may be empty.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	var errs []error
	if accessToken != "" {
		if claims, err := ParseAndValidate(accessToken); err == nil {
			if err := s.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
				errs = append(errs, fmt.Errorf("denylist access token: %w", err))
			}
		}
	}
	if refreshToken != "" {
		if tokenID, _, err := splitRefreshToken(refreshToken); err == nil {
			if err := s.tokens.Revoke(ctx, tokenID); err != nil && !errors.Is(err, ErrNotFound) {
				errs = append(errs, fmt.Errorf("revoke refresh token: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}

// RevokeAllForUser invalidates every refresh token a user holds. Used when
// an account is deactivated.
func (s *Service) RevokeAllForUser(ctx context.Context, userID string) error {
	return s.tokens.RevokeAllForUser(ctx, userID)
}

// Authenticate verifies an access token and returns the principal it
// asserts. Access tokens are stateless; a role change takes effect at the
// next refresh. A deny-list transport error degrades to accepting the token.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := ParseAndValidate(token)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	revoked, err := s.denylist.Revoked(ctx, claims.ID)
	if err != nil {
		obs.Logger().Printf(`{"level":"warn","msg":"denylist_check_failed","error":%q}`, err.Error())
	} else if revoked {
		return Principal{}, ErrInvalidToken
	}
	role, err := directory.ParseRole(claims.Role)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	return Principal{
		UserID:         claims.Subject,
		OrganizationID: claims.OrganizationID,
		Role:           role,
		TokenID:        claims.ID,
		ExpiresAt:      claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) mintTokens(ctx context.Context, user directory.User) (TokenPair, error) {
	accessToken, claims, err := GenerateAccessToken(user.ID, user.OrganizationID, string(user.Role), s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refreshTokenString, refreshRec, err := s.generateRefreshToken(user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.tokens.Create(ctx, refreshRec); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshTokenString,
		AccessExpiresAt:  claims.ExpiresAt.Time,
		RefreshExpiresAt: refreshRec.ExpiresAt,
	}, nil
}

func (s *Service) generateRefreshToken(userID string) (string, *RefreshToken, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, err
	}
	tokenSecret := base64.RawURLEncoding.EncodeToString(secretBytes)
	tokenID := ids.New()
	sum := sha256.Sum256([]byte(tokenSecret))
	rec := &RefreshToken{
		ID:        tokenID,
		UserID:    userID,
		TokenHash: hex.EncodeToString(sum[:]),
		ExpiresAt: s.now().Add(s.refreshTTL),
	}
	return tokenID + "." + tokenSecret, rec, nil
}

func splitRefreshToken(raw string) (id, tokenSecret string, err error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return parts[0], parts[1], nil
}

func secureCompareHash(expectedHash, tokenSecret string) bool {
	sum := sha256.Sum256([]byte(tokenSecret))
	actual := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}
