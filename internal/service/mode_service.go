package service

import (
	"context"

	"github.com/sirupsen/logrus"

	apperrors "lendingledger/internal/errors"
	"lendingledger/internal/model"
	"lendingledger/internal/repository"
)

// ModeService reads and changes the process-wide loan mode.
type ModeService interface {
	GetMode(ctx context.Context) (model.Mode, error)
	SetMode(ctx context.Context, mode model.Mode) (model.Mode, error)
}

type modeService struct {
	store     repository.ModeStore
	requester requesterLookup
	log       logrus.FieldLogger
}

// NewModeService creates a new mode service.
func NewModeService(store repository.ModeStore, users repository.UserRepository, log logrus.FieldLogger) ModeService {
	return &modeService{
		store:     store,
		requester: requesterLookup{users: users},
		log:       log,
	}
}

func (s *modeService) GetMode(ctx context.Context) (model.Mode, error) {
	if _, err := s.requester.admin(ctx); err != nil {
		return "", err
	}
	return s.store.Get(ctx), nil
}

func (s *modeService) SetMode(ctx context.Context, mode model.Mode) (model.Mode, error) {
	requester, err := s.requester.admin(ctx)
	if err != nil {
		return "", err
	}
	if !mode.Valid() {
		return "", apperrors.ErrInvalidRequest
	}
	previous := s.store.Set(ctx, mode)
	if previous != mode {
		s.log.WithFields(logrus.Fields{
			"requester": requester.Username,
			"from":      previous,
			"to":        mode,
		}).Info("mode changed")
	}
	return mode, nil
}
