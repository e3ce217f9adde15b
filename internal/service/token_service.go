package service

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/studiodl/archivio-api/internal/models"
	appErrors "github.com/studiodl/archivio-api/pkg/errors"
)

// TokenService validates access tokens issued by the authentication
// collaborator. Issuing and refreshing tokens happens outside this service.
type TokenService struct {
	secret string
}

// NewTokenService constructs the validator.
func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: secret}
}

// ValidateToken parses and validates an access token returning the claims.
func (s *TokenService) ValidateToken(tokenString string) (*models.OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.OperatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.secret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.OperatorClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}
