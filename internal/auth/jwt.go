package auth

import (
	"errors"
	"time"

	"socialdm/backend/internal/apperr"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Verifier resolves a bearer credential to a user id. It is the identity seam
// shared by the HTTP middleware and the realtime handshake.
type Verifier interface {
	Verify(token string) (string, error)
}

// Claims defines the custom claims structure for our JWT.
type Claims struct {
	UserID string `json:"sub"`
	jwt.RegisteredClaims
}

// Authenticator handles JWT generation and validation.
type Authenticator struct {
	secretKey []byte
	issuer    string
	validity  time.Duration
}

var _ Verifier = (*Authenticator)(nil)

func NewAuthenticator(secretKey string, issuer string, validity time.Duration) *Authenticator {
	return &Authenticator{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		validity:  validity,
	}
}

// GenerateToken creates a signed JWT for a user.
func (a *Authenticator) GenerateToken(userID string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.validity)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    a.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secretKey)
}

// ValidateToken parses and validates a JWT string.
func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secretKey, nil
	}, jwt.WithIssuer(a.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID != "" {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// Verify implements Verifier. Failures are authentication errors.
func (a *Authenticator) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", apperr.Authentication("missing credential")
	}
	claims, err := a.ValidateToken(tokenString)
	if err != nil {
		return "", &apperr.Error{Kind: apperr.KindAuthentication, Message: err.Error(), Err: err}
	}
	return claims.UserID, nil
}
