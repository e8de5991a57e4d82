package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/cms-api/internal/models"
	appErrors "github.com/noah-isme/cms-api/pkg/errors"
)

// errInvalidToken is returned for every verification failure so callers
// cannot tell a bad signature from an expired token.
var errInvalidToken = appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")

// TokenService verifies access tokens issued by the SSO server.
type TokenService struct {
	secret    []byte
	expiresIn time.Duration
	now       func() time.Time
}

// NewTokenService constructs a verifier for HS256 tokens signed with secret.
func NewTokenService(secret string, expiresIn time.Duration) *TokenService {
	if expiresIn <= 0 {
		expiresIn = 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), expiresIn: expiresIn, now: time.Now}
}

// Verify checks an Authorization header value of the form "Bearer <token>"
// and returns the identity it carries.
func (s *TokenService) Verify(header string) (*models.Identity, error) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, errInvalidToken
	}
	return s.Parse(parts[1])
}

// Parse validates a raw token string.
func (s *TokenService) Parse(tokenString string) (*models.Identity, error) {
	claims := &models.AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}

	identity := claims.Identity()
	if identity.ID == "" {
		return nil, errInvalidToken
	}
	return identity, nil
}

// Issue signs a token for identity valid for ttl, or the configured lifetime
// when ttl is not positive.
func (s *TokenService) Issue(identity models.Identity, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = s.expiresIn
	}
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(ttl)
	claims := &models.AccessClaims{
		UserID:       identity.ID,
		Email:        identity.Email,
		Name:         identity.Name,
		DepartmentID: identity.DepartmentID,
		Roles:        identity.Roles.Strings(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}
