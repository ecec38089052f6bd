package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"studypal/internal/auth"
	"studypal/internal/models"
	"studypal/internal/repository"
)

const defaultHashCost = 10

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func trimmed(s string) string { return strings.TrimSpace(s) }

func hashPassword(password string, cost int) (string, error) {
	if len(password) > 72 {
		return "", invalid("Password must be at most 72 bytes")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

type AuthService struct {
	repo     repository.Repository
	tokens   *auth.TokenIssuer
	hashCost int
	logger   *zap.Logger
}

func NewAuthService(repo repository.Repository, tokens *auth.TokenIssuer, logger *zap.Logger) *AuthService {
	return &AuthService{repo: repo, tokens: tokens, hashCost: defaultHashCost, logger: logger.Named("auth")}
}

type SignupRequest struct {
	Email    string
	Password string
	Name     string
	Role     string
}

// Signup registers a password account directly, without the OTP round trip.
func (s *AuthService) Signup(ctx context.Context, req SignupRequest) (*models.User, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, invalid("Email and password are required")
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		return nil, invalid("Role must be STUDENT or TEACHER")
	}

	exists, err := s.repo.UserExists(ctx, email)
	if err != nil {
		return nil, storeErr("check existing user", err)
	}
	if exists {
		return nil, ErrUserExists
	}

	hash, err := hashPassword(req.Password, s.hashCost)
	if err != nil {
		return nil, err
	}
	u := &models.User{Email: email, PasswordHash: &hash, Role: role}
	if name := trimmed(req.Name); name != "" {
		u.Name = &name
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, storeErr("create user", err)
	}
	return u, nil
}

// Login checks a password and mints a session. Clients only ever see
// ErrInvalidCredentials; the log records which check failed.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, "", invalid("Email and password are required")
	}

	u, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Info("login failed: no such user")
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", storeErr("get user", err)
	}
	if u.PasswordHash == nil {
		s.logger.Info("login failed: account has no password", zap.String("user_id", u.ID.String()))
		return nil, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*u.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("login failed: password mismatch", zap.String("user_id", u.ID.String()))
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.Session(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// LoginWithGoogle finds or creates the account behind a verified Google profile.
func (s *AuthService) LoginWithGoogle(ctx context.Context, p *auth.GoogleProfile) (*models.User, string, error) {
	email := normalizeEmail(p.Email)
	if email == "" {
		return nil, "", invalid("Google profile has no email")
	}

	u, err := s.repo.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		u = &models.User{Email: email, Role: models.RoleStudent}
		if name := trimmed(p.Name); name != "" {
			u.Name = &name
		}
		if p.Picture != "" {
			pic := p.Picture
			u.Image = &pic
		}
		if err := s.repo.CreateUser(ctx, u); err != nil {
			if !errors.Is(err, repository.ErrDuplicate) {
				return nil, "", storeErr("create oauth user", err)
			}
			// Lost a race with a concurrent first login.
			if u, err = s.repo.GetUserByEmail(ctx, email); err != nil {
				return nil, "", storeErr("get user", err)
			}
		} else {
			s.logger.Info("account created from google sign-in", zap.String("user_id", u.ID.String()))
		}
	case err != nil:
		return nil, "", storeErr("get user", err)
	}

	token, err := s.Session(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

func (s *AuthService) Session(u *models.User) (string, error) {
	return s.tokens.Issue(u)
}

func (s *AuthService) CurrentUser(ctx context.Context, claims *auth.Claims) (*models.User, error) {
	id, err := claims.UserID()
	if err != nil {
		return nil, ErrNotFound
	}
	u, err := s.repo.GetUserByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get user", err)
	}
	return u, nil
}
