package services

import (
	"chat-hub/auth"
	"chat-hub/contract"
	"chat-hub/domain/user"
	"chat-hub/errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
)

type IUserService interface {
	Profile(userID string) (user.User, error)
	Search(query string, limit int) ([]user.User, error)
	UpdateProfile(userID string, update user.ProfileUpdate) (user.User, error)
}

type UserService struct {
	log   *slog.Logger
	users contract.IUserRepository
}

func NewUserService(log *slog.Logger, users contract.IUserRepository) *UserService {
	return &UserService{log: log, users: users}
}

func (s *UserService) Profile(userID string) (user.User, error) {
	u, err := s.users.GetUserByID(userID)
	if err != nil {
		return user.User{}, storageError(err)
	}
	return u, nil
}

// Search matches query against usernames and emails. The query needs at
// least one non blank character.
func (s *UserService) Search(query string, limit int) ([]user.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", errors.ErrValidation)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	users, err := s.users.SearchUsers(query, min(limit, maxSearchLimit))
	if err != nil {
		return nil, storageError(err)
	}
	return users, nil
}

// UpdateProfile applies the non nil fields of update. Renaming to a taken
// username fails with ErrUserAlreadyExists.
func (s *UserService) UpdateProfile(userID string, update user.ProfileUpdate) (user.User, error) {
	update = update.Trimmed()
	if update.Username != nil && *update.Username == "" {
		return user.User{}, fmt.Errorf("%w: username is required", errors.ErrValidation)
	}
	if err := auth.ValidateProfile(auth.ProfileRequest{
		Username: update.Username,
		Avatar:   update.Avatar,
		Bio:      update.Bio,
	}); err != nil {
		return user.User{}, err
	}

	u, err := s.users.GetUserByID(userID)
	if err != nil {
		return user.User{}, storageError(err)
	}
	u = u.Apply(update)
	u.UpdatedAt = time.Now().UTC()
	if err := s.users.UpdateUser(u); err != nil {
		if errors.Is(err, errors.ErrUserAlreadyExists) {
			return user.User{}, err
		}
		return user.User{}, storageError(err)
	}
	s.log.Info("Profile updated", "user_id", userID)
	return u, nil
}
