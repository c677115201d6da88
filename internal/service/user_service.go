package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"lendingledger/internal/auth"
	apperrors "lendingledger/internal/errors"
	"lendingledger/internal/model"
	"lendingledger/internal/repository"
)

// UpdateField names the single attribute a UserUpdate changes.
type UpdateField int

const (
	UpdatePassword UpdateField = iota + 1
	UpdatePhone
	UpdateRole
)

// UserUpdate is one change to one user attribute. Combined updates are not
// representable.
type UserUpdate struct {
	Field UpdateField
	Value string
}

// PasswordUpdate sets a new plaintext password; it is hashed before storage.
func PasswordUpdate(password string) UserUpdate {
	return UserUpdate{Field: UpdatePassword, Value: password}
}

// PhoneUpdate sets a new, already validated phone number.
func PhoneUpdate(phone string) UserUpdate {
	return UserUpdate{Field: UpdatePhone, Value: phone}
}

// RoleUpdate sets a new role.
func RoleUpdate(role model.Role) UserUpdate {
	return UserUpdate{Field: UpdateRole, Value: string(role)}
}

// UserService exposes the user directory.
type UserService interface {
	Register(ctx context.Context, username, password, phone string) (*model.User, error)
	CreateInitialAdmin(ctx context.Context, password string) (bool, error)
	GetUser(ctx context.Context, username string) (model.UserPublic, error)
	ListUsers(ctx context.Context) (map[string]model.UserPublic, error)
	UpdateUser(ctx context.Context, username string, update UserUpdate) (model.UserPublic, error)
	RemoveUser(ctx context.Context, username string) (model.UserPublic, error)
}

type userService struct {
	repo      repository.UserRepository
	requester requesterLookup
	log       logrus.FieldLogger
}

// NewUserService builds a UserService on top of the user repository.
func NewUserService(repo repository.UserRepository, log logrus.FieldLogger) UserService {
	return &userService{
		repo:      repo,
		requester: requesterLookup{users: repo},
		log:       log,
	}
}

// Register creates a regular user with a hashed password.
func (s *userService) Register(ctx context.Context, username, password, phone string) (*model.User, error) {
	existing, err := s.repo.FindByUsername(ctx, username)
	if err == nil && existing != nil {
		return nil, apperrors.ErrUserAlreadyExists
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check user existence: %w", err)
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:       username,
		HashedPassword: hashed,
		Role:           model.RoleRegular,
		Phone:          phone,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.WithField("username", username).Info("user registered")
	return user, nil
}

// CreateInitialAdmin creates the bootstrap admin unless it already exists.
// It reports whether an account was created; an existing admin is left
// untouched.
func (s *userService) CreateInitialAdmin(ctx context.Context, password string) (bool, error) {
	_, err := s.repo.FindByUsername(ctx, model.InitialAdminUsername)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("check initial admin: %w", err)
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return false, err
	}
	admin := &model.User{
		Username:       model.InitialAdminUsername,
		HashedPassword: hashed,
		Role:           model.RoleAdmin,
	}
	if err := s.repo.Create(ctx, admin); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, fmt.Errorf("create initial admin: %w", err)
	}

	s.log.WithField("username", admin.Username).Info("initial admin created")
	return true, nil
}

// GetUser returns the public fields of one user. Users may read themselves;
// admins may read anyone.
func (s *userService) GetUser(ctx context.Context, username string) (model.UserPublic, error) {
	requester, err := s.requester.current(ctx)
	if err != nil {
		return model.UserPublic{}, err
	}
	if !mayActOn(requester, username) {
		return model.UserPublic{}, apperrors.ErrNotAllowed
	}
	user, err := s.find(ctx, username)
	if err != nil {
		return model.UserPublic{}, err
	}
	return user.Public(), nil
}

// ListUsers returns every user keyed by username. Admin only.
func (s *userService) ListUsers(ctx context.Context) (map[string]model.UserPublic, error) {
	if _, err := s.requester.admin(ctx); err != nil {
		return nil, err
	}
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make(map[string]model.UserPublic, len(users))
	for i := range users {
		out[users[i].Username] = users[i].Public()
	}
	return out, nil
}

// UpdateUser applies exactly one attribute change.
func (s *userService) UpdateUser(ctx context.Context, username string, update UserUpdate) (model.UserPublic, error) {
	// The initial admin's role is fixed whoever asks.
	if update.Field == UpdateRole && username == model.InitialAdminUsername {
		return model.UserPublic{}, apperrors.ErrInitialAdminRoleChange
	}

	requester, err := s.requester.current(ctx)
	if err != nil {
		return model.UserPublic{}, err
	}

	var fields map[string]interface{}
	switch update.Field {
	case UpdatePassword:
		if !mayActOn(requester, username) {
			return model.UserPublic{}, apperrors.ErrNotAllowed
		}
		hashed, err := auth.HashPassword(update.Value)
		if err != nil {
			return model.UserPublic{}, err
		}
		fields = map[string]interface{}{"hashed_password": hashed}
	case UpdatePhone:
		if !mayActOn(requester, username) {
			return model.UserPublic{}, apperrors.ErrNotAllowed
		}
		fields = map[string]interface{}{"phone": update.Value}
	case UpdateRole:
		if !requester.IsAdmin() {
			return model.UserPublic{}, apperrors.ErrNotAllowed
		}
		role := model.Role(update.Value)
		if !role.Valid() {
			return model.UserPublic{}, apperrors.ErrInvalidRequest
		}
		fields = map[string]interface{}{"role": role}
	default:
		return model.UserPublic{}, apperrors.ErrInvalidRequest
	}

	if _, err := s.find(ctx, username); err != nil {
		return model.UserPublic{}, err
	}
	if err := s.repo.UpdateFields(ctx, username, fields); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.UserPublic{}, apperrors.ErrUnknownUser
		}
		return model.UserPublic{}, fmt.Errorf("update user: %w", err)
	}

	user, err := s.find(ctx, username)
	if err != nil {
		return model.UserPublic{}, err
	}
	s.log.WithFields(logrus.Fields{
		"username":  username,
		"requester": requester.Username,
		"field":     update.Field.String(),
	}).Info("user updated")
	return user.Public(), nil
}

// RemoveUser deletes a user and returns its public fields. Admin only; the
// initial admin can never be removed.
func (s *userService) RemoveUser(ctx context.Context, username string) (model.UserPublic, error) {
	if username == model.InitialAdminUsername {
		return model.UserPublic{}, apperrors.ErrInitialAdminRoleChange
	}
	requester, err := s.requester.admin(ctx)
	if err != nil {
		return model.UserPublic{}, err
	}
	user, err := s.find(ctx, username)
	if err != nil {
		return model.UserPublic{}, err
	}
	if err := s.repo.Delete(ctx, username); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.UserPublic{}, apperrors.ErrUnknownUser
		}
		return model.UserPublic{}, fmt.Errorf("delete user: %w", err)
	}

	s.log.WithFields(logrus.Fields{"username": username, "requester": requester.Username}).Info("user deleted")
	return user.Public(), nil
}

func (s *userService) find(ctx context.Context, username string) (*model.User, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUnknownUser
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func mayActOn(requester *model.User, username string) bool {
	return requester.IsAdmin() || requester.Username == username
}

func (f UpdateField) String() string {
	switch f {
	case UpdatePassword:
		return "password"
	case UpdatePhone:
		return "phone"
	case UpdateRole:
		return "role"
	default:
		return "unknown"
	}
}
