package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Области доступа консоли обозревателя.
const (
	ScopeAuditRead = "audit.read"
	ScopeAdmin     = "admin"
)

var ErrInsufficientScope = errors.New("auth: insufficient scope")

type Claims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "admin": true или "audit.read": true
	jwt.RegisteredClaims
}

// Allows: admin покрывает любую область.
func (c *Claims) Allows(scope string) bool {
	return c.Scopes[ScopeAdmin] || c.Scopes[scope]
}

// BaseValidator содержит общую логику проверки RS256
type BaseValidator struct {
	publicKey *rsa.PublicKey
	issuer    string
}

// NewBaseValidator: пустой issuer не проверяется.
func NewBaseValidator(pubKey *rsa.PublicKey, issuer string) *BaseValidator {
	return &BaseValidator{publicKey: pubKey, issuer: issuer}
}

// VerifyToken проверяет JWT токен, подписанный асимметричным ключом RS256.
func (v *BaseValidator) VerifyToken(tokenStr string) (*Claims, error) {
	tokenStr = strings.TrimPrefix(tokenStr, "Bearer ")
	tokenStr = strings.TrimSpace(tokenStr)

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.publicKey, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("auth: invalid claims")
	}
	return claims, nil
}

// ParseRSAPublicKey превращает []byte в объект для проверки подписи
func ParseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("auth: public key data is empty")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to parse public key: %w", err)
	}
	return key, nil
}
