package services

import (
	"chat-hub/auth"
	"chat-hub/domain/user"
	"chat-hub/errors"
	"chat-hub/mocks"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// newTestHasher keeps argon2 cheap so the suite stays fast.
func newTestHasher(t *testing.T) *auth.PasswordHasher {
	passwords, err := auth.NewPasswordHasher(auth.Argon2Params{
		MemoryKiB:   1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	require.NoError(t, err)
	return passwords
}

func TestAuthService_Register(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIUserRepository(ctrl)
	tokens := auth.NewTokenManager("test-secret", 24*time.Hour)
	passwords := newTestHasher(t)
	svc := NewAuthService(mockRepo, tokens, passwords)

	t.Run("should register successfully when input is valid", func(t *testing.T) {
		req := require.New(t)
		email := "test@example.com"
		password := "ComplexPass123!"

		// Expect CreateUser to be called with a hashed password (not the plain one)
		mockRepo.EXPECT().
			CreateUser(gomock.Any()).
			DoAndReturn(func(u user.User) (user.User, error) {
				req.Equal("alice", u.Username)
				req.Equal(email, u.Email)
				req.NotEqual(password, u.PasswordHash)
				u.ID = "user-uuid"
				return u, nil
			}).
			Times(1)

		session, err := svc.Register("alice", email, password)

		req.NoError(err)
		req.NotEmpty(session.Token)
		req.Equal("user-uuid", session.User.ID)

		userID, err := tokens.Verify(session.Token.String())
		req.NoError(err)
		req.Equal("user-uuid", userID)
	})

	t.Run("should fail when password complexity is not met", func(t *testing.T) {
		req := require.New(t)

		// Repository should NEVER be called
		mockRepo.EXPECT().CreateUser(gomock.Any()).Times(0)

		session, err := svc.Register("alice", "test@example.com", "simple")

		req.ErrorIs(err, errors.ErrValidation)
		req.Empty(session.Token)
	})

	t.Run("should fail when password has no special char", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().CreateUser(gomock.Any()).Times(0)

		_, err := svc.Register("alice", "test@example.com", "NoSpecialChar123")

		req.ErrorIs(err, errors.ErrInvalidPassword)
	})

	t.Run("should fail when user already exists in repository", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().
			CreateUser(gomock.Any()).
			Return(user.User{}, errors.ErrUserAlreadyExists).
			Times(1)

		_, err := svc.Register("duplicate", "duplicate@example.com", "ComplexPass123!")

		req.ErrorIs(err, errors.ErrUserAlreadyExists)
	})
}

func TestAuthService_Login(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIUserRepository(ctrl)
	tokens := auth.NewTokenManager("test-secret", 24*time.Hour)
	passwords := newTestHasher(t)
	svc := NewAuthService(mockRepo, tokens, passwords)

	t.Run("should login successfully with correct credentials", func(t *testing.T) {
		req := require.New(t)
		email := "user@example.com"
		password := "Secret123456!"

		hashedPassword, err := passwords.Hash(password)
		req.NoError(err)
		storedUser := user.User{
			ID:           "uuid-123",
			Username:     "user",
			Email:        email,
			PasswordHash: hashedPassword,
			Roles:        []string{"user"},
		}

		mockRepo.EXPECT().
			GetUserByEmail(email).
			Return(storedUser, nil).
			Times(1)

		session, err := svc.Login(email, password)

		req.NoError(err)
		req.Equal(storedUser, session.User)

		claims, err := tokens.ValidateToken(session.Token.String())
		req.NoError(err)
		req.Equal(storedUser.ID, claims.UserID)
		req.Equal(storedUser.Roles, claims.Roles)
	})

	t.Run("should return invalid credentials when password matches nothing", func(t *testing.T) {
		req := require.New(t)
		email := "user@example.com"

		hashedPassword, err := passwords.Hash("CorrectPassword123!")
		req.NoError(err)

		mockRepo.EXPECT().
			GetUserByEmail(email).
			Return(user.User{Email: email, PasswordHash: hashedPassword}, nil).
			Times(1)

		_, err = svc.Login(email, "WrongPassword123!")

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})

	t.Run("should return invalid credentials when user is not found", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().
			GetUserByEmail("unknown@example.com").
			Return(user.User{}, errors.ErrNotFound).
			Times(1)

		_, err := svc.Login("unknown@example.com", "anyPassword")

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})

	t.Run("should return invalid credentials when the stored hash is corrupted", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().
			GetUserByEmail("broken@example.com").
			Return(user.User{Email: "broken@example.com", PasswordHash: "$argon2id$v=19$m=65536,t=3$c2FsdHNhbHQ$a2V5a2V5"}, nil).
			Times(1)

		_, err := svc.Login("broken@example.com", "Secret123456!")

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})
}
