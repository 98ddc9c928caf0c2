package jwtutil

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var ErrPublicKeyNotConfigured = errors.New("jwt public key not configured")

// Claims are issued by the portal's sign-in service. Role is informational
// here: publishing rights are checked against the member record.
type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func NewClaims(userID, role string, expiry time.Duration) *Claims {
	now := time.Now().UTC()
	return &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
}

func GenerateAccessToken(claims *Claims, privateKey *rsa.PrivateKey) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(privateKey)
}

func ParseAccessToken(tokenStr string, publicKey *rsa.PublicKey) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return publicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, fmt.Errorf("%w: missing user id", jwt.ErrTokenInvalidClaims)
	}
	return claims, nil
}

// LoadPublicKey reads an RSA public key from inline PEM, falling back to a
// file path when the inline value is empty.
func LoadPublicKey(inlinePEM, path string) (*rsa.PublicKey, error) {
	pem := strings.TrimSpace(inlinePEM)
	if pem == "" {
		path = strings.TrimSpace(path)
		if path == "" {
			return nil, ErrPublicKeyNotConfigured
		}
		// #nosec G304 -- path comes from operator configuration.
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read jwt public key: %w", err)
		}
		pem = string(buf)
	}

	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
	if err != nil {
		return nil, fmt.Errorf("parse jwt public key: %w", err)
	}
	return key, nil
}
