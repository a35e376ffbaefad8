// ABOUTME: Pairing-token verification for remote attach requests
// ABOUTME: Uses HS256 signing with the hub's pairing secret

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// TokenVerifier checks a pairing token and extracts the device name.
type TokenVerifier interface {
	Verify(tokenString string) (device string, err error)
}

// PairingVerifier implements TokenVerifier using HS256 signed JWTs.
// A remote client without a valid pairing token is unpaired and never
// reaches the channel handshake.
type PairingVerifier struct {
	secret []byte
}

// NewPairingVerifier creates a verifier with the hub's pairing secret.
func NewPairingVerifier(secret []byte) *PairingVerifier {
	return &PairingVerifier{secret: secret}
}

// Verify validates the token and extracts the device name from "sub".
func (v *PairingVerifier) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return sub, nil
}

// Generate creates a pairing token for a device name with expiration.
func (v *PairingVerifier) Generate(device string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": device,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
