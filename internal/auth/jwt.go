package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fathima-sithara/chatlist-service/internal/apperr"
	"github.com/golang-jwt/jwt/v5"
)

// JWTValidator verifies bearer tokens and returns the subject.
type JWTValidator struct {
	alg string
	key interface{}
}

func NewRS256Validator(publicKeyPath string) (*JWTValidator, error) {
	b, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, err
	}
	pub, err := ParseRSAPublicKey(b)
	if err != nil {
		return nil, err
	}
	return &JWTValidator{alg: "RS256", key: pub}, nil
}

func NewHS256Validator(secret []byte) *JWTValidator {
	return &JWTValidator{alg: "HS256", key: secret}
}

// NewValidator picks the verifier configured by alg.
func NewValidator(alg, publicKeyPath, secret string) (*JWTValidator, error) {
	switch strings.ToUpper(alg) {
	case "RS256":
		return NewRS256Validator(publicKeyPath)
	case "HS256":
		return NewHS256Validator([]byte(secret)), nil
	}
	return nil, fmt.Errorf("unsupported jwt alg %q", alg)
}

func ParseRSAPublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("failed to decode public key")
	}
	pubIfc, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pub, ok := pubIfc.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not rsa public key")
	}
	return pub, nil
}

// Validate returns the user id carried by the token (sub, falling back to user_id).
func (j *JWTValidator) Validate(tokenStr string) (string, error) {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return j.key, nil
	}, jwt.WithValidMethods([]string{j.alg}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return "", fmt.Errorf("%w: invalid token", apperr.ErrUnauthorized)
	}
	if id := subject(claims); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("%w: token without subject", apperr.ErrUnauthorized)
}

func subject(claims jwt.MapClaims) string {
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub
	}
	if userID, ok := claims["user_id"].(string); ok {
		return userID
	}
	return ""
}
