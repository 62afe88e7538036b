package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/sha256" // SHA-256 hashing for stored refresh tokens
	"encoding/hex"  // hex encoding of digests
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating and parsing signed tokens
	"github.com/google/uuid"

	"github.com/iliyamo/task-manager/internal/model"
)

// TokenKind tells Verify which claim shape to expect.  An access token must
// never be accepted where a refresh token is required and vice versa.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// ErrInvalidToken is returned for any token that fails verification: bad
// signature, malformed, expired, unexpected algorithm or wrong kind.
var ErrInvalidToken = errors.New("invalid token")

// AccessToken represents a signed JWT access token along with its expiry.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// RefreshToken represents a long-lived token used to obtain new access
// tokens.  Only HashRefreshRaw(Raw) is persisted.
type RefreshToken struct {
	Raw string    // serialized JWT returned to the client
	Exp time.Time // UTC expiration time
}

// Claims is the claim set shared by both token kinds.  Role is present only
// on access tokens; ID (jti) only on refresh tokens.
type Claims struct {
	Role string    `json:"role,omitempty"`
	Type TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

// Verified is what a successfully verified token tells the caller.
type Verified struct {
	UserID string
	Role   model.Role // empty for refresh tokens
}

// TokenService mints and verifies HS256 access and refresh tokens.  It holds
// no state besides its configuration and is safe for concurrent use.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService builds a TokenService from the signing secret and the
// configured lifetimes (minutes for access tokens, days for refresh tokens).
func NewTokenService(secret string, accessTTLMin, refreshTTLDays int) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  time.Duration(accessTTLMin) * time.Minute,
		refreshTTL: time.Duration(refreshTTLDays) * 24 * time.Hour,
		now:        time.Now,
	}
}

// WithClock returns a copy of s that reads time from now.  Used by tests to
// mint tokens in the past.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	cp := *s
	cp.now = now
	return &cp
}

// IssueAccessToken signs {sub, role, typ=access, iat, exp}.
func (s *TokenService) IssueAccessToken(userID string, role model.Role) (AccessToken, error) {
	now := s.now().UTC()
	exp := now.Add(s.accessTTL)
	claims := Claims{
		Role: string(role),
		Type: KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := s.sign(claims)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// IssueRefreshToken signs {sub, typ=refresh, jti, iat, exp}.  The random jti
// guarantees that a rotated token never equals the one it replaces.
func (s *TokenService) IssueRefreshToken(userID string) (RefreshToken, error) {
	now := s.now().UTC()
	exp := now.Add(s.refreshTTL)
	claims := Claims{
		Type: KindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := s.sign(claims)
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{Raw: signed, Exp: exp}, nil
}

func (s *TokenService) sign(c Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

// Verify parses raw, checks signature and expiry, and enforces the claim
// shape of kind.  Every failure is reported as ErrInvalidToken.
func (s *TokenService) Verify(raw string, kind TokenKind) (Verified, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !tok.Valid {
		return Verified{}, ErrInvalidToken
	}
	if claims.Type != kind || claims.Subject == "" {
		return Verified{}, ErrInvalidToken
	}
	role := model.Role(claims.Role)
	switch kind {
	case KindAccess:
		if !role.Valid() {
			return Verified{}, ErrInvalidToken
		}
	case KindRefresh:
		if claims.Role != "" || claims.ID == "" {
			return Verified{}, ErrInvalidToken
		}
	default:
		return Verified{}, ErrInvalidToken
	}
	return Verified{UserID: claims.Subject, Role: role}, nil
}

// HashRefreshRaw returns the SHA-256 hash of the raw refresh token as a hex
// string.  Only this digest is stored against the user.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
