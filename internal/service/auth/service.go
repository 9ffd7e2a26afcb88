package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/bookreview/internal/domain"
	"github.com/splax/bookreview/internal/repository"
	"github.com/splax/bookreview/pkg/crypto"
	jwtpkg "github.com/splax/bookreview/pkg/jwt"
)

// Client-facing messages. Login failures share one message so responses do
// not reveal whether an email is registered.
const (
	MsgRegisterFieldsRequired = "Name, email and password are required"
	MsgLoginFieldsRequired    = "Email and password are required"
	MsgEmailInUse             = "Email already in use"
	MsgInvalidCredentials     = "Invalid credentials"
	MsgInvalidToken           = "Invalid token"
	msgRegisterFailed         = "Failed to register user"
	msgLoginFailed            = "Failed to login"
)

// TokenIssuer issues and verifies access tokens.
type TokenIssuer interface {
	Issue(userID string) (string, error)
	Verify(token string) (string, error)
}

var _ TokenIssuer = (*jwtpkg.Issuer)(nil)

// RegisterInput is a validated registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// LoginInput is a validated login request.
type LoginInput struct {
	Email    string
	Password string
}

// Service handles authentication workflows.
type Service struct {
	users  repository.UserRepository
	tokens TokenIssuer
	logger *slog.Logger
	cost   int
	now    func() time.Time
	// decoy is compared against when a login email is unknown so that the
	// miss costs the same bcrypt work as a wrong password.
	decoy []byte
}

// New constructs a Service.
func New(users repository.UserRepository, tokens TokenIssuer, logger *slog.Logger, bcryptCost int) Service {
	if logger == nil {
		logger = slog.Default()
	}
	decoy, err := crypto.HashPassword(uuid.NewString(), bcryptCost)
	if err != nil {
		logger.Warn("decoy hash unavailable", "error", err)
	}
	return Service{
		users:  users,
		tokens: tokens,
		logger: logger,
		cost:   bcryptCost,
		now:    time.Now,
		decoy:  decoy,
	}
}

// NormalizeEmail trims and lower-cases an address. Stores compare exact strings.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account and returns it with a fresh access token.
func (s Service) Register(ctx context.Context, in RegisterInput) (*domain.User, string, error) {
	name := strings.TrimSpace(in.Name)
	email := NormalizeEmail(in.Email)
	if name == "" || email == "" || in.Password == "" {
		return nil, "", domain.Validation(MsgRegisterFieldsRequired)
	}

	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, "", domain.Conflict(MsgEmailInUse)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, "", domain.Internal(msgRegisterFailed, err)
	}

	hash, err := crypto.HashPassword(in.Password, s.cost)
	if err != nil {
		return nil, "", domain.Internal(msgRegisterFailed, err)
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, "", domain.Conflict(MsgEmailInUse)
		}
		return nil, "", domain.Internal(msgRegisterFailed, err)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", domain.Internal(msgRegisterFailed, err)
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, token, nil
}

// Login verifies credentials and returns the account with a fresh access token.
func (s Service) Login(ctx context.Context, in LoginInput) (*domain.User, string, error) {
	email := NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, "", domain.Validation(MsgLoginFieldsRequired)
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.burnComparison(in.Password)
			return nil, "", domain.Unauthorized(MsgInvalidCredentials)
		}
		return nil, "", domain.Internal(msgLoginFailed, err)
	}
	if err := crypto.ComparePassword(user.PasswordHash, in.Password); err != nil {
		if errors.Is(err, crypto.ErrMismatch) {
			return nil, "", domain.Unauthorized(MsgInvalidCredentials)
		}
		return nil, "", domain.Internal(msgLoginFailed, err)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", domain.Internal(msgLoginFailed, err)
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, token, nil
}

// Authorize validates a bearer token and returns the user id it was issued for.
// Expired and malformed tokens are indistinguishable to the caller.
func (s Service) Authorize(_ context.Context, token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", domain.Unauthorized(MsgInvalidToken)
	}
	userID, err := s.tokens.Verify(trimmed)
	if err != nil {
		return "", domain.NewError(domain.KindUnauthorized, MsgInvalidToken, err)
	}
	return userID, nil
}

func (s Service) burnComparison(password string) {
	if s.decoy != nil {
		_ = crypto.ComparePassword(s.decoy, password)
	}
}
