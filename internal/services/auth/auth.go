// Package auth содержит регистрацию и аутентификацию кабинета по email.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nbelyakov/vpn-billing/internal/lib/jwt"
	"github.com/nbelyakov/vpn-billing/internal/lib/password"
	"github.com/nbelyakov/vpn-billing/internal/models"
	"github.com/nbelyakov/vpn-billing/internal/storage"
)

// ErrInvalidCredentials возвращается при неверной паре email/пароль.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrEmailTaken возвращается при повторной регистрации на email.
var ErrEmailTaken = errors.New("email already registered")

type Service struct {
	txm      storage.TxManager
	jwtMaker jwt.Maker
}

func New(txm storage.TxManager, jwtMaker jwt.Maker) *Service {
	return &Service{txm: txm, jwtMaker: jwtMaker}
}

// Register создает аккаунт по email. Аккаунту выделяется
// синтетический отрицательный telegram_id, чтобы не пересекаться с
// реальными идентификаторами Telegram.
func (s *Service) Register(ctx context.Context, email, username, rawPassword string) (int64, error) {
	const op = "auth.Register"

	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var userID int64
	err = s.txm.Do(ctx, func(ctx context.Context, uow storage.UnitOfWork) error {
		existing, err := uow.Users().GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrEmailTaken
		}

		syntheticID, err := uow.Users().NextSyntheticTelegramID(ctx)
		if err != nil {
			return err
		}

		userID, err = uow.Users().Create(ctx, &models.User{
			TelegramID:   syntheticID,
			Username:     username,
			Email:        &email,
			PasswordHash: &hashed,
			Status:       models.UserStatusActive,
			ReferralCode: newReferralCode(),
		})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return userID, nil
}

// Login проверяет пароль и возвращает JWT кабинета.
func (s *Service) Login(ctx context.Context, email, rawPassword string) (string, error) {
	const op = "auth.Login"

	var user *models.User
	err := s.txm.Do(ctx, func(ctx context.Context, uow storage.UnitOfWork) error {
		var err error
		user, err = uow.Users().GetByEmail(ctx, email)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if user == nil || user.PasswordHash == nil {
		return "", ErrInvalidCredentials
	}
	if err := password.CompareHash(*user.PasswordHash, rawPassword); err != nil {
		return "", ErrInvalidCredentials
	}

	token, err := s.jwtMaker.GenerateToken(user.ID, email)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return token, nil
}

// ValidateToken проверяет JWT и возвращает клеймы кабинета.
func (s *Service) ValidateToken(_ context.Context, token string) (*jwt.CustomClaims, error) {
	return s.jwtMaker.ParseToken(token)
}

func newReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}
