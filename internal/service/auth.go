package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Kevjes/liberal-api/internal/apperr"
	"github.com/Kevjes/liberal-api/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	purposeAccess = "access"
	purposeReset  = "reset"
)

// Credentials is the body of signup, login and admin creation requests.
type Credentials struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// PasswordChange is the body of a password update.
type PasswordChange struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

// PasswordReset is the body of a reset-password request.
type PasswordReset struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

type tokenClaims struct {
	Purpose string `json:"purpose"`
	// Fingerprint ties a reset token to the password hash it was issued for.
	Fingerprint string `json:"fp,omitempty"`
	jwt.RegisteredClaims
}

// Register creates a regular user and logs them in
func (s *Service) Register(ctx context.Context, in Credentials) (*models.Token, error) {
	user, err := s.createUser(ctx, in, false)
	if err != nil {
		return nil, err
	}
	s.log.Infof("User registered: %s", user.Email)
	return s.accessToken(user)
}

// Login authenticates a user and returns a JWT token
func (s *Service) Login(ctx context.Context, in Credentials) (*models.Token, error) {
	user, err := s.repo.FindUserByEmail(ctx, normalizeEmail(in.Email))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Unauthorized("invalid credentials")
		}
		return nil, err
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, apperr.Unauthorized("invalid credentials")
	}

	s.log.Infof("User logged in: %s", user.Email)
	return s.accessToken(user)
}

// CreateAdmin lets an administrator create another administrator
func (s *Service) CreateAdmin(ctx context.Context, caller *models.User, in Credentials) (*models.User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	user, err := s.createUser(ctx, in, true)
	if err != nil {
		return nil, err
	}
	s.log.Infof("Administrator %s created by %s", user.Email, caller.Email)
	return user, nil
}

// EnsureAdmin creates the bootstrap administrator when it does not exist yet.
func (s *Service) EnsureAdmin(ctx context.Context, emailAddr, password string) error {
	existing, err := s.repo.FindUserByEmail(ctx, normalizeEmail(emailAddr))
	switch {
	case err == nil:
		if !existing.IsAdmin {
			s.log.Warnf("Bootstrap account %s exists but is not an administrator", existing.Email)
		}
		return nil
	case !errors.Is(err, apperr.ErrNotFound):
		return err
	}

	user, err := s.createUser(ctx, Credentials{Email: emailAddr, Password: password}, true)
	if err != nil {
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}
	s.log.Infof("Bootstrap administrator created: %s", user.Email)
	return nil
}

func (s *Service) createUser(ctx context.Context, in Credentials, admin bool) (*models.User, error) {
	in.Email = normalizeEmail(in.Email)
	if err := s.validate.Validate(in); err != nil {
		return nil, err
	}

	// Hash password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        in.Email,
		PasswordHash: string(hashedPassword),
		IsAdmin:      admin,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate resolves an access token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.parseToken(token, purposeAccess)
	if err != nil {
		return nil, err
	}
	user, err := s.userFromClaims(ctx, claims)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Me reloads the caller's account.
func (s *Service) Me(ctx context.Context, caller *models.User) (*models.User, error) {
	if err := requireUser(caller); err != nil {
		return nil, err
	}
	return s.repo.FindUserByID(ctx, caller.ID)
}

// ListUsers returns every account, or only administrators
func (s *Service) ListUsers(ctx context.Context, caller *models.User, adminsOnly bool) ([]models.User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx, adminsOnly)
}

// DeleteUser removes an account that has not issued any card
func (s *Service) DeleteUser(ctx context.Context, caller *models.User, id uuid.UUID) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if caller.ID == id {
		return apperr.BadRequest("administrators cannot delete their own account")
	}
	if _, err := s.repo.FindUserByID(ctx, id); err != nil {
		return err
	}
	n, err := s.repo.CountCardsByCreator(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperr.Conflict("user has created %d card(s) and cannot be deleted", n)
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.log.Infof("User %s deleted by %s", id, caller.Email)
	return nil
}

// ChangePassword replaces the caller's password after checking the old one
func (s *Service) ChangePassword(ctx context.Context, caller *models.User, in PasswordChange) error {
	if err := requireUser(caller); err != nil {
		return err
	}
	if err := s.validate.Validate(in); err != nil {
		return err
	}
	user, err := s.repo.FindUserByID(ctx, caller.ID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.OldPassword)); err != nil {
		return apperr.BadRequest("old password is incorrect")
	}
	return s.setPassword(ctx, user, in.NewPassword)
}

// ForgotPassword mails a reset link when the address belongs to an account.
// It reports success either way so callers cannot probe for accounts.
func (s *Service) ForgotPassword(ctx context.Context, emailAddr string) error {
	user, err := s.repo.FindUserByEmail(ctx, normalizeEmail(emailAddr))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			s.log.Infof("Password reset requested for unknown address %s", emailAddr)
			return nil
		}
		return err
	}

	token, err := s.signToken(user, purposeReset, s.config.ResetTokenExpiry)
	if err != nil {
		return err
	}
	link := s.config.DomainURL + "/auth/reset-password?token=" + url.QueryEscape(token)
	if err := s.mailer.SendPasswordReset(ctx, user.Email, link, s.config.ResetTokenExpiry); err != nil {
		s.log.Errorf("Failed to send reset link to %s: %v", user.Email, err)
	}
	return nil
}

// ResetPassword stores a new password for the holder of a valid reset token
func (s *Service) ResetPassword(ctx context.Context, in PasswordReset) error {
	if err := s.validate.Validate(in); err != nil {
		return err
	}
	claims, err := s.parseToken(in.Token, purposeReset)
	if err != nil {
		return apperr.BadRequest("invalid or expired reset token")
	}
	user, err := s.userFromClaims(ctx, claims)
	if err != nil {
		return apperr.BadRequest("invalid or expired reset token")
	}
	if claims.Fingerprint != fingerprint(user.PasswordHash) {
		return apperr.BadRequest("reset token has already been used")
	}
	if err := s.setPassword(ctx, user, in.NewPassword); err != nil {
		return err
	}
	if err := s.mailer.SendPasswordChanged(ctx, user.Email, s.now()); err != nil {
		s.log.Warnf("Failed to confirm password reset to %s: %v", user.Email, err)
	}
	return nil
}

func (s *Service) setPassword(ctx context.Context, user *models.User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.repo.UpdateUserPassword(ctx, user.ID, string(hash)); err != nil {
		return err
	}
	s.log.Infof("Password changed for %s", user.Email)
	return nil
}

func (s *Service) accessToken(user *models.User) (*models.Token, error) {
	token, err := s.signToken(user, purposeAccess, s.config.AccessTokenExpiry)
	if err != nil {
		return nil, err
	}
	return &models.Token{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.config.AccessTokenExpiry.Seconds()),
	}, nil
}

func (s *Service) signToken(user *models.User, purpose string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := tokenClaims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if purpose == purposeReset {
		claims.Fingerprint = fingerprint(user.PasswordHash)
	}

	token := jwt.NewWithClaims(jwt.GetSigningMethod(s.config.JWTAlgorithm), claims)
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}

func (s *Service) parseToken(tokenString, purpose string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return []byte(s.config.JWTSecret), nil },
		jwt.WithValidMethods([]string{s.config.JWTAlgorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, apperr.Unauthorized("invalid token")
	}
	if claims.Purpose != purpose {
		return nil, apperr.Unauthorized("invalid token")
	}
	return claims, nil
}

func (s *Service) userFromClaims(ctx context.Context, claims *tokenClaims) (*models.User, error) {
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, apperr.Unauthorized("invalid token")
	}
	user, err := s.repo.FindUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Unauthorized("user no longer exists")
		}
		return nil, err
	}
	return user, nil
}

func fingerprint(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:8])
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
