package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// ServiceTokenClaims scope a producer credential to one workspace. Lead
// ingestion integrations and the CRM runtime hold these tokens to enqueue
// events and call trigger evaluation; they cannot reach other workspaces.
type ServiceTokenClaims struct {
	jwt.RegisteredClaims
	WorkspaceID string `json:"workspace_id"`
	Scope       string `json:"scope"`
}

type ServiceTokenManager struct {
	signingKey []byte
	ttl        time.Duration
}

func NewServiceTokenManager(signingKey []byte, ttl time.Duration) *ServiceTokenManager {
	return &ServiceTokenManager{signingKey: signingKey, ttl: ttl}
}

func (m *ServiceTokenManager) GenerateServiceToken(workspaceID string) (string, error) {
	claims := ServiceTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   workspaceID,
			Issuer:    "stageflow",
		},
		WorkspaceID: workspaceID,
		Scope:       "events:enqueue,triggers:evaluate",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.signingKey)
}

func (m *ServiceTokenManager) ValidateServiceToken(tokenString string) (*ServiceTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ServiceTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.signingKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*ServiceTokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.WorkspaceID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
