package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultJWTSecret = "TestSecretKeyAUTH1945"

var JWTSecret = []byte(defaultJWTSecret)

// SetJWTSecret replaces the signing key. An empty secret keeps the
// development default.
func SetJWTSecret(secret string) {
	if secret == "" {
		InfoLogger.Warn("JWT_SECRET not set, using development secret")
		JWTSecret = []byte(defaultJWTSecret)
		return
	}
	JWTSecret = []byte(secret)
}

// CustomClaims carries the principal: subject, role and tenant.
type CustomClaims struct {
	Role     string `json:"role"`
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// GenerateToken signs a 24 hour token. Tokens are normally issued by the
// identity service; this exists for tests and local tooling.
func GenerateToken(subject, role, tenantID string) (string, error) {
	claims := &CustomClaims{
		Role:     role,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 24)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "OmniPOS",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(JWTSecret)
	if err != nil {
		ErrorLogger.Printf("Error generating token: %v", err)
		return "", err
	}
	return tokenString, nil
}

func ParseToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return JWTSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
