package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour

	// TokenTypeAccess and TokenTypeRefresh distinguish the two token kinds
	// inside claims so one can never be replayed as the other.
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims are the JWT claims carried by both token kinds. Tokens bind to the
// credential ID (sub), never the email.
type Claims struct {
	UserID    uuid.UUID `json:"sub"`
	TokenType string    `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair bundles a freshly minted access and refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// JWTService mints and verifies HS256 tokens.
type JWTService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewJWTService creates a JWT service. Non-positive TTLs fall back to the
// defaults (15 minutes access, 7 days refresh).
func NewJWTService(secret string, accessTTL, refreshTTL time.Duration) *JWTService {
	if accessTTL <= 0 {
		accessTTL = defaultAccessTokenTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTokenTTL
	}
	return &JWTService{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// RefreshTTL returns the configured refresh token lifetime.
func (s *JWTService) RefreshTTL() time.Duration { return s.refreshTTL }

// SignAccessToken mints a short-lived self-contained access token.
func (s *JWTService) SignAccessToken(userID uuid.UUID) (string, error) {
	return s.sign(userID, TokenTypeAccess, s.accessTTL)
}

// SignRefreshToken mints a refresh token carrying a unique jti.
func (s *JWTService) SignRefreshToken(userID uuid.UUID) (string, error) {
	return s.sign(userID, TokenTypeRefresh, s.refreshTTL)
}

func (s *JWTService) sign(userID uuid.UUID, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// VerifyToken parses and verifies a token of the expected type. Expired
// tokens yield ErrTokenExpired; any other failure yields ErrTokenInvalid.
func (s *JWTService) VerifyToken(tokenString, expectedType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != expectedType {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
