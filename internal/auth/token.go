package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vidtube/backend/internal/config"
	"github.com/vidtube/backend/internal/models"
)

var (
	// ErrInvalidToken is returned for every verification failure: malformed,
	// tampered, expired, or wrong-kind tokens all look the same to callers.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired wraps ErrInvalidToken so diagnostics can tell an
	// expired token apart without leaking the distinction upward.
	ErrTokenExpired = fmt.Errorf("%w: expired", ErrInvalidToken)
)

// TokenKind selects between the two credentials the manager issues.
type TokenKind string

const (
	// KindAccess tokens are short-lived and re-checked on every request.
	KindAccess TokenKind = "access"
	// KindRefresh tokens are long-lived, stored server-side, and rotated on
	// each use.
	KindRefresh TokenKind = "refresh"
)

// Claims are the verified contents of a token.
type Claims struct {
	UserID    string
	Email     string
	Username  string
	Kind      TokenKind
	ExpiresAt time.Time
}

type jwtClaims struct {
	Email     string    `json:"email,omitempty"`
	Username  string    `json:"username,omitempty"`
	TokenType TokenKind `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies the signed, time-bound session
// credentials. Each kind is signed with its own secret so leaking one cannot
// forge the other.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// NewTokenManager constructs a manager from the injected auth configuration.
func NewTokenManager(cfg config.AuthConfig) *TokenManager {
	return &TokenManager{
		accessSecret:  []byte(cfg.AccessTokenSecret),
		refreshSecret: []byte(cfg.RefreshTokenSecret),
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
		issuer:        cfg.Issuer,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithNowFunc overrides the time source. Useful for tests.
func (m *TokenManager) WithNowFunc(now func() time.Time) *TokenManager {
	m.now = now
	return m
}

// IssueAccess signs a short-lived access token carrying the user's id,
// email, and username for stateless profile echo.
func (m *TokenManager) IssueAccess(user models.User) (string, time.Time, error) {
	return m.issue(jwtClaims{
		Email:     user.Email,
		Username:  user.Username,
		TokenType: KindAccess,
	}, user.ID, m.accessTTL, m.accessSecret)
}

// IssueRefresh signs a long-lived refresh token carrying only the user's id.
func (m *TokenManager) IssueRefresh(userID string) (string, time.Time, error) {
	return m.issue(jwtClaims{TokenType: KindRefresh}, userID, m.refreshTTL, m.refreshSecret)
}

func (m *TokenManager) issue(claims jwtClaims, userID string, ttl time.Duration, secret []byte) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(ttl)

	// The unique token id keeps back-to-back issues distinct even though
	// iat/exp only carry whole-second precision. Rotation depends on the
	// replacement token never equalling the one it supersedes.
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    m.issuer,
		Subject:   userID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", claims.TokenType, err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature, expiry, and kind of raw. It fails closed:
// every failure surfaces as ErrInvalidToken.
func (m *TokenManager) Verify(raw string, kind TokenKind) (Claims, error) {
	secret := m.accessSecret
	if kind == KindRefresh {
		secret = m.refreshSecret
	}

	var parsed jwtClaims
	token, err := jwt.ParseWithClaims(raw, &parsed, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrInvalidToken
	}
	if !token.Valid || parsed.TokenType != kind || parsed.Subject == "" {
		return Claims{}, ErrInvalidToken
	}

	return Claims{
		UserID:    parsed.Subject,
		Email:     parsed.Email,
		Username:  parsed.Username,
		Kind:      parsed.TokenType,
		ExpiresAt: parsed.ExpiresAt.Time,
	}, nil
}
