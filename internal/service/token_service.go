package service

import (
	"errors"
	"time"

	"github.com/bvc-digitalhub/digitalhub-api/internal/domain"
	"github.com/bvc-digitalhub/digitalhub-api/internal/security"
)

type TokenService struct {
	jwtMgr    *security.JWTManager
	accessTTL time.Duration
}

func NewTokenService(jwtMgr *security.JWTManager, accessTTL time.Duration) *TokenService {
	return &TokenService{jwtMgr: jwtMgr, accessTTL: accessTTL}
}

func (s *TokenService) Issue(account *domain.Account) (string, time.Time, error) {
	if account == nil || account.ID == "" {
		return "", time.Time{}, errors.New("issue token: account id required")
	}
	return s.jwtMgr.SignAccessToken(account.ID, s.accessTTL)
}

// Validate returns the account id a token was issued for.
func (s *TokenService) Validate(raw string) (string, error) {
	claims, err := s.jwtMgr.ParseAccessToken(raw)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
