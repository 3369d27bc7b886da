package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	cidTokenType = "cid"
	cidTokenTTL  = 365 * 24 * time.Hour
)

// cidClaims is the payload of the client_id cookie token: a dedicated
// token type distinct from any access/refresh token, carrying a random
// 128-bit subject.
type cidClaims struct {
	jwt.RegisteredClaims
	TokenType string `json:"typ"`
}

// JWTClientIdentityManager issues and verifies the signed client_id
// cookie token via HMAC-SHA256, per ClientIdentityManager.
type JWTClientIdentityManager struct {
	secret []byte
}

func NewJWTClientIdentityManager(secret []byte) *JWTClientIdentityManager {
	return &JWTClientIdentityManager{secret: secret}
}

// Issue mints a token over a fresh random subject.
func (m *JWTClientIdentityManager) Issue(now time.Time) (string, string, error) {
	subject, err := randomSubject()
	if err != nil {
		return "", "", err
	}

	claims := cidClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cidTokenTTL)),
		},
		TokenType: cidTokenType,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", "", err
	}
	return signed, subject, nil
}

// Verify returns the embedded subject, or ok=false on bad signature,
// expiry, or a token type other than "cid".
func (m *JWTClientIdentityManager) Verify(tokenStr string) (string, bool) {
	var claims cidClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("client identity: unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return "", false
	}
	if claims.TokenType != cidTokenType {
		return "", false
	}
	return claims.Subject, true
}

func randomSubject() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
