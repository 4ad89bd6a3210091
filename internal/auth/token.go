package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenCodec signs and verifies the two session credentials. Access tokens
// are stateless and verified on every request; refresh tokens additionally
// carry a token id whose record (hashed) must exist and be unrevoked.
type TokenCodec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenCodec(secret string, accessTTL, refreshTTL time.Duration) *TokenCodec {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &TokenCodec{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL}
}

type AccessClaims struct {
	UserType      string `json:"userType"`
	IsAdmin       bool   `json:"isAdmin"`
	EmailVerified bool   `json:"emailVerified"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	TokenID string `json:"tokenId"`
	jwt.RegisteredClaims
}

func (c *TokenCodec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// SignAccess issues a short-lived access token for the user. Not persisted.
func (c *TokenCodec) SignAccess(u *User) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(c.accessTTL)
	claims := AccessClaims{
		UserType:      u.UserType,
		IsAdmin:       u.IsAdmin,
		EmailVerified: u.EmailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// SignRefresh issues a long-lived refresh token bound to a stored token id.
func (c *TokenCodec) SignRefresh(u *User, tokenID string) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(c.refreshTTL)
	claims := RefreshClaims{
		TokenID: tokenID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (c *TokenCodec) VerifyAccess(token string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := c.verify(token, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (c *TokenCodec) VerifyRefresh(token string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := c.verify(token, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (c *TokenCodec) verify(token string, claims jwt.Claims) error {
	tok, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenMalformed
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenMalformed
	}
	if !tok.Valid {
		return ErrTokenMalformed
	}
	return nil
}

// DecodeAccessUnverified decodes claims without checking the signature.
// For inspection only; never an input to authorization.
func (c *TokenCodec) DecodeAccessUnverified(token string) *AccessClaims {
	var claims AccessClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return nil
	}
	return &claims
}
