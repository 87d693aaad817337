package auth

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/swapmeet/marketplace/backend/internal/apperr"
	"github.com/swapmeet/marketplace/backend/internal/models"
)

const (
	minNameLen     = 2
	minPasswordLen = 6

	msgName          = "Name must be at least 2 characters long"
	msgEmail         = "Please provide a valid email address"
	msgPassword      = "Password must be at least 6 characters long"
	msgBadCredential = "Invalid email or password"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// UserStore defines the interface for user persistence. Lookups return
// (nil, nil) when nothing matches.
type UserStore interface {
	CreateUser(ctx context.Context, name, email, hashedPw, role string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	UpdateUserProfile(ctx context.Context, id int64, name, email string) (*models.User, error)
	UpdateUserPassword(ctx context.Context, id int64, hashedPw string) error
	DeleteUser(ctx context.Context, id int64) (bool, error)
}

// Service implements registration, login and account management.
type Service struct {
	users    UserStore
	tokens   *TokenIssuer
	hashCost int
	admins   map[string]bool
}

type Option func(*Service)

// WithHashCost overrides the bcrypt cost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

// WithAdminEmails grants the admin role to these addresses at registration.
func WithAdminEmails(emails ...string) Option {
	return func(s *Service) {
		for _, e := range emails {
			s.admins[NormalizeEmail(e)] = true
		}
	}
}

func NewService(users UserStore, tokens *TokenIssuer, opts ...Option) *Service {
	s := &Service{
		users:    users,
		tokens:   tokens,
		hashCost: bcrypt.DefaultCost,
		admins:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateProfile(c *apperr.Collector, name, email string) {
	c.Check(len([]rune(name)) >= minNameLen, msgName)
	c.Check(emailPattern.MatchString(email), msgEmail)
}

// Register creates a user with the default role and returns it with a fresh token.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResult, error) {
	name := strings.TrimSpace(req.Name)
	email := NormalizeEmail(req.Email)

	var c apperr.Collector
	validateProfile(&c, name, email)
	c.Check(len(req.Password) >= minPasswordLen, msgPassword)
	if err := c.Err(); err != nil {
		return nil, err
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	if existing != nil {
		return nil, apperr.Conflict("Email is already registered")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}

	role := models.RoleUser
	if s.admins[email] {
		role = models.RoleAdmin
	}
	user, err := s.users.CreateUser(ctx, name, email, string(hashed), role)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// Login verifies credentials. Unknown email and wrong password share one message.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResult, error) {
	email := NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, apperr.Validation("Email and password are required")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if user == nil {
		return nil, apperr.Auth(msgBadCredential)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, apperr.Auth(msgBadCredential)
	}
	return s.issue(user)
}

func (s *Service) issue(user *models.User) (*models.AuthResult, error) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, apperr.Internal("issue token", err)
	}
	user.Password = ""
	return &models.AuthResult{User: user, Token: token}, nil
}

// VerifyToken is the authentication gate for HTTP and realtime callers.
func (s *Service) VerifyToken(token string) (*Claims, error) {
	return s.tokens.Verify(token)
}

// Me returns the user behind an id.
func (s *Service) Me(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("me: %w", err)
	}
	if user == nil {
		return nil, apperr.NotFound("User not found")
	}
	user.Password = ""
	return user, nil
}

// UpdateProfile changes name and email under the registration rules.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, req models.ProfileRequest) (*models.User, error) {
	name := strings.TrimSpace(req.Name)
	email := NormalizeEmail(req.Email)

	var c apperr.Collector
	validateProfile(&c, name, email)
	if err := c.Err(); err != nil {
		return nil, err
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if existing != nil && existing.ID != userID {
		return nil, apperr.Conflict("Email is already registered")
	}

	user, err := s.users.UpdateUserProfile(ctx, userID, name, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("User not found")
	}
	user.Password = ""
	return user, nil
}

// ChangePassword re-verifies the current password before storing the new one.
func (s *Service) ChangePassword(ctx context.Context, userID int64, req models.PasswordRequest) error {
	if len(req.NewPassword) < minPasswordLen {
		return apperr.Validation("New password must be at least 6 characters long")
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	if user == nil {
		return apperr.NotFound("User not found")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
		return apperr.Auth("Current password is incorrect")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.hashCost)
	if err != nil {
		return apperr.Internal("hash password", err)
	}
	return s.users.UpdateUserPassword(ctx, userID, string(hashed))
}

// DeleteUser is an administrative operation; owned items and authored
// messages are removed with the user.
func (s *Service) DeleteUser(ctx context.Context, requesterID, userID int64) error {
	if err := s.RequireAdmin(ctx, requesterID); err != nil {
		return err
	}
	ok, err := s.users.DeleteUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if !ok {
		return apperr.NotFound("User not found")
	}
	return nil
}

// RequireAdmin fails with Forbidden unless the user holds the admin role.
func (s *Service) RequireAdmin(ctx context.Context, userID int64) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("require admin: %w", err)
	}
	if user == nil || user.Role != models.RoleAdmin {
		return apperr.Forbidden("Admin access required")
	}
	return nil
}
