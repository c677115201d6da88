package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"lendingledger/internal/auth"
	apperrors "lendingledger/internal/errors"
	"lendingledger/internal/repository"
	"lendingledger/internal/session"
)

// AuthService handles authentication operations.
type AuthService interface {
	Login(ctx context.Context, username, password string) (accessToken string, err error)
	Authenticate(ctx context.Context, accessToken string) (session.Session, error)
	Logout(ctx context.Context) error
}

type authService struct {
	userRepo   repository.UserRepository
	jwtService *auth.JWTService
	tokenStore auth.TokenStoreInterface
	log        logrus.FieldLogger
}

// NewAuthService creates a new authentication service.
func NewAuthService(
	userRepo repository.UserRepository,
	jwtService *auth.JWTService,
	tokenStore auth.TokenStoreInterface,
	log logrus.FieldLogger,
) AuthService {
	return &authService{
		userRepo:   userRepo,
		jwtService: jwtService,
		tokenStore: tokenStore,
		log:        log,
	}
}

// Login verifies credentials and returns a signed access token.
func (s *authService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperrors.ErrInvalidCredentials
		}
		return "", fmt.Errorf("find user: %w", err)
	}

	if !auth.CheckPassword(user.HashedPassword, password) {
		return "", apperrors.ErrInvalidCredentials
	}

	accessToken, err := s.jwtService.GenerateAccessToken(user.Username)
	if err != nil {
		return "", fmt.Errorf("generate access token: %w", err)
	}
	return accessToken, nil
}

// Authenticate validates an access token and returns the session it carries.
func (s *authService) Authenticate(ctx context.Context, accessToken string) (session.Session, error) {
	claims, err := s.jwtService.ValidateToken(accessToken)
	if err != nil {
		return session.Session{}, apperrors.ErrInvalidToken
	}
	revoked, err := s.tokenStore.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return session.Session{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return session.Session{}, apperrors.ErrInvalidToken
	}

	sess := session.Session{Username: claims.Username, TokenID: claims.ID}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	return sess, nil
}

// Logout revokes the access token of the current session.
func (s *authService) Logout(ctx context.Context) error {
	sess, ok := session.FromContext(ctx)
	if !ok {
		return apperrors.ErrInvalidToken
	}
	ttl := s.jwtService.RemainingLifetime(sess.ExpiresAt)
	if err := s.tokenStore.RevokeAccessToken(ctx, sess.TokenID, ttl); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	s.log.WithField("username", sess.Username).Info("user logged out")
	return nil
}
