package services

import (
	"chat-hub/auth"
	"chat-hub/contract"
	"chat-hub/domain/user"
	"chat-hub/errors"
	"strings"
)

type IAuthService interface {
	Login(email, password string) (Session, error)
	Register(username, email, password string) (Session, error)
}

type Token string

func (t Token) String() string {
	return string(t)
}

// Session is what a successful login or registration hands back.
type Session struct {
	Token Token
	User  user.User
}

type AuthService struct {
	userRepository contract.IUserRepository
	tokens         *auth.TokenManager
	passwords      *auth.PasswordHasher
}

func NewAuthService(repo contract.IUserRepository, tokens *auth.TokenManager, passwords *auth.PasswordHasher) IAuthService {
	return &AuthService{userRepository: repo, tokens: tokens, passwords: passwords}
}

func (s *AuthService) Register(username, email, password string) (Session, error) {
	valReq := auth.RegisterRequest{
		Username: strings.TrimSpace(username),
		Email:    strings.TrimSpace(email),
		Password: password,
	}

	// 1. Validate business rules (email format, password complexity)
	// before any expensive cryptographic operation.
	if err := auth.ValidateRegister(valReq); err != nil {
		return Session{}, err
	}

	// 2. Hash the password using Argon2id
	// Done in the service layer to keep the repository unaware of plain passwords.
	hashedPassword, err := s.passwords.Hash(password)
	if err != nil {
		return Session{}, err
	}

	// 3. Persist the user with the generated hash
	created, err := s.userRepository.CreateUser(user.User{
		Username:     valReq.Username,
		Email:        valReq.Email,
		PasswordHash: hashedPassword,
		Roles:        []string{"user"},
	})
	if err != nil {
		return Session{}, err // Will propagate ErrUserAlreadyExists if email is taken
	}

	// 4. Generate the initial session token
	token, err := s.tokens.GenerateToken(created.ID, created.Roles)
	if err != nil {
		return Session{}, errors.ErrTokenGeneration
	}

	return Session{Token: Token(token), User: created}, nil
}

func (s *AuthService) Login(email, password string) (Session, error) {
	// 1. Retrieve user by email from storage
	u, err := s.userRepository.GetUserByEmail(strings.TrimSpace(email))
	if err != nil {
		// Generic error to prevent user enumeration attacks
		return Session{}, errors.ErrInvalidCredentials
	}

	// 2. Compare the provided password with the stored hash
	// A corrupted stored hash is reported like a wrong password
	match, err := s.passwords.Compare(password, u.PasswordHash)
	if err != nil || !match {
		return Session{}, errors.ErrInvalidCredentials
	}

	// 3. Issue the JWT token
	token, err := s.tokens.GenerateToken(u.ID, u.Roles)
	if err != nil {
		return Session{}, errors.ErrTokenGeneration
	}

	return Session{Token: Token(token), User: u}, nil
}
