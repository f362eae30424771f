package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/vovakirdan/linechat/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with existing username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrNotAdmin is returned when an operator token is requested by a regular user.
	ErrNotAdmin = errors.New("not an admin")
)

// reservedName is the identity used for system notices.
const reservedName = "server"

// Service is the credential gate in front of the chat core.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates a regular account.
func (s *Service) Register(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return err
	}
	if password == "" {
		return ErrInvalidPassword
	}

	hashed, err := HashPassword(password)
	if err != nil {
		return err
	}

	if _, err := s.store.CreateUser(ctx, username, hashed, false); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrUserExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Login checks credentials and reports whether the account is an admin.
func (s *Service) Login(ctx context.Context, username, password string) (bool, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, ErrInvalidCredentials
		}
		return false, fmt.Errorf("get user: %w", err)
	}

	if !ComparePassword(user.PasswordHash, password) {
		return false, ErrInvalidCredentials
	}
	return user.IsAdmin, nil
}

// IssueAdminToken returns a token for the HTTP admin API.
func (s *Service) IssueAdminToken(ctx context.Context, username, password string) (string, error) {
	isAdmin, err := s.Login(ctx, username, password)
	if err != nil {
		return "", err
	}
	if !isAdmin {
		return "", ErrNotAdmin
	}

	token, err := GenerateToken(s.jwtConfig, strings.TrimSpace(username), true)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// ValidateToken validates a token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// EnsureUser creates the account when missing. An existing account is only
// promoted when isAdmin is set; its password is left untouched.
// It reports whether a new account was created.
func (s *Service) EnsureUser(ctx context.Context, username, password string, isAdmin bool) (bool, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return false, err
	}

	existing, err := s.store.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		if isAdmin && !existing.IsAdmin {
			if err := s.store.SetAdmin(ctx, username, true); err != nil {
				return false, fmt.Errorf("promote user: %w", err)
			}
		}
		return false, nil
	case !errors.Is(err, store.ErrNotFound):
		return false, fmt.Errorf("get user: %w", err)
	}

	if password == "" {
		return false, ErrInvalidPassword
	}
	hashed, err := HashPassword(password)
	if err != nil {
		return false, err
	}
	if _, err := s.store.CreateUser(ctx, username, hashed, isAdmin); err != nil {
		return false, fmt.Errorf("create user: %w", err)
	}
	return true, nil
}

// validateUsername accepts 3-32 letters or digits, excluding the reserved name.
func validateUsername(username string) error {
	if len(username) < 3 || len(username) > 32 {
		return ErrInvalidUsername
	}
	for _, r := range username {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return ErrInvalidUsername
		}
	}
	if strings.EqualFold(username, reservedName) {
		return ErrInvalidUsername
	}
	return nil
}
