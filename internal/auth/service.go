package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nile-shop/nile_shop/internal/config"
	"github.com/nile-shop/nile_shop/internal/identity"
)

// Service issues and refreshes JWT token pairs.
type Service struct {
	cfg    config.Config
	idRepo identity.Repository
}

func NewService(cfg config.Config, idRepo identity.Repository) *Service {
	return &Service{cfg: cfg, idRepo: idRepo}
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login issues an access/refresh token pair for an authenticated user.
func (s *Service) Login(user identity.User) (TokenPair, error) {
	access, accessExp, err := s.sign(user.ID, user.TokenVersion, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := s.sign(user.ID, user.TokenVersion, s.cfg.RefreshSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(time.Until(accessExp).Seconds())}, nil
}

func (s *Service) sign(userID string, tokenVersion int, secret string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"ver": tokenVersion,
		"iat": now.Unix(),
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseAccess verifies an access token and returns its subject and token version.
func (s *Service) ParseAccess(tokenStr string) (string, int, error) {
	return parseToken(tokenStr, s.cfg.JWTSecret)
}

func parseToken(tokenStr, secret string) (string, int, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", 0, errors.New("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", 0, errors.New("invalid claims")
	}
	sub, _ := claims["sub"].(string)
	verFloat, _ := claims["ver"].(float64)
	return sub, int(verFloat), nil
}

// Refresh verifies the refresh token and returns a new access token if valid.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	sub, ver, err := parseToken(refreshToken, s.cfg.RefreshSecret)
	if err != nil {
		return "", 0, errors.New("invalid refresh token")
	}

	user, err := s.idRepo.FindByID(ctx, sub)
	if err != nil {
		return "", 0, errors.New("user not found")
	}
	if user.TokenVersion != ver {
		return "", 0, errors.New("token version invalidated")
	}

	signed, _, err := s.sign(sub, ver, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(s.cfg.AccessTokenTTL.Seconds()), nil
}

// Logout increments token version so older tokens become invalid.
func (s *Service) Logout(ctx context.Context, userID string) error {
	user, err := s.idRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	return s.idRepo.UpdateTokenVersion(ctx, user.ID, user.TokenVersion+1)
}
