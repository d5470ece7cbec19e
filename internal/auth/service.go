package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenUnitSync/internal/config"
	"github.com/KevinKickass/OpenUnitSync/internal/storage"
)

type Permission string

const (
	PermOperator   Permission = "operator"   // scan, read units and reports
	PermTechnician Permission = "technician" // start runs, edit profiles
	PermAdmin      Permission = "admin"
)

const (
	RoleOperator   = "operator"
	RoleTechnician = "technician"
	RoleAdmin      = "admin"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
)

// UserStore holds database users. It is optional; without it only the
// configured admin can log in.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*storage.User, error)
	IncrementFailedLoginAttempts(ctx context.Context, userID uuid.UUID) error
	ResetFailedLoginAttempts(ctx context.Context, userID uuid.UUID) error
	UpdateLastLogin(ctx context.Context, userID uuid.UUID) error
	LogAuthEvent(ctx context.Context, eventType string, userID *uuid.UUID, ipAddress, userAgent string, success bool, reason string) error
}

type LoginResult struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
}

type AuthService struct {
	users          UserStore
	jwtHandler     *JWTHandler
	passwordHasher *PasswordHasher
	adminUser      string
	adminHash      string
	logger         *zap.Logger
}

func NewAuthService(users UserStore, cfg config.AuthConfig, logger *zap.Logger) *AuthService {
	if !cfg.IsProductionReady() {
		logger.Warn("Auth is not production ready (JWT secret or admin password hash missing)")
	}

	hasher := NewPasswordHasher()
	if cfg.AdminPasswordHash != "" && hasher.NeedsRehash(cfg.AdminPasswordHash) {
		logger.Warn("auth.admin_password_hash uses outdated or invalid argon2id parameters, regenerate it with unitctl hash-password",
			zap.String("admin_user", cfg.AdminUser))
	}

	return &AuthService{
		users:          users,
		jwtHandler:     NewJWTHandler(cfg.GetJWTSecret(), cfg.AccessTokenTTL),
		passwordHasher: hasher,
		adminUser:      cfg.AdminUser,
		adminHash:      cfg.AdminPasswordHash,
		logger:         logger,
	}
}

// Login authenticates a user and returns an access token. The configured
// admin is checked before the user store.
func (a *AuthService) Login(ctx context.Context, username, password, ipAddress, userAgent string) (*LoginResult, error) {
	if username == a.adminUser && a.adminHash != "" {
		valid, err := a.passwordHasher.VerifyPassword(password, a.adminHash)
		if err != nil || !valid {
			a.logAuthEvent(ctx, "admin_login_failed", nil, ipAddress, userAgent, false, "invalid password")
			return nil, ErrInvalidCredentials
		}
		a.logAuthEvent(ctx, "admin_login_success", nil, ipAddress, userAgent, true, "")
		return a.issue(adminID(username), username, RoleAdmin)
	}

	if a.users == nil {
		return nil, ErrInvalidCredentials
	}

	user, err := a.users.GetUserByUsername(ctx, username)
	if err != nil {
		a.logAuthEvent(ctx, "user_login_failed", nil, ipAddress, userAgent, false, "user not found")
		return nil, ErrInvalidCredentials
	}

	if user.LockedUntil != nil && time.Now().Before(*user.LockedUntil) {
		return nil, fmt.Errorf("%w until %s", ErrAccountLocked, user.LockedUntil.Format(time.RFC3339))
	}

	valid, err := a.passwordHasher.VerifyPassword(password, user.PasswordHash)
	if err != nil || !valid {
		if err := a.users.IncrementFailedLoginAttempts(ctx, user.ID); err != nil {
			a.logger.Warn("Failed to count login attempt", zap.String("user", username), zap.Error(err))
		}
		a.logAuthEvent(ctx, "user_login_failed", &user.ID, ipAddress, userAgent, false, "invalid password")
		return nil, ErrInvalidCredentials
	}

	if err := a.users.ResetFailedLoginAttempts(ctx, user.ID); err != nil {
		a.logger.Warn("Failed to reset login attempts", zap.String("user", username), zap.Error(err))
	}
	if err := a.users.UpdateLastLogin(ctx, user.ID); err != nil {
		a.logger.Warn("Failed to update last login", zap.String("user", username), zap.Error(err))
	}
	a.logAuthEvent(ctx, "user_login_success", &user.ID, ipAddress, userAgent, true, "")

	return a.issue(user.ID, user.Username, user.Role)
}

func (a *AuthService) issue(userID uuid.UUID, username, role string) (*LoginResult, error) {
	token, expiresAt, err := a.jwtHandler.GenerateAccessToken(userID, username, role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	return &LoginResult{AccessToken: token, ExpiresAt: expiresAt, Username: username, Role: role}, nil
}

// ValidateToken returns the permissions carried by an access token.
func (a *AuthService) ValidateToken(token string) (*JWTClaims, []Permission, error) {
	claims, err := a.jwtHandler.ValidateAccessToken(token)
	if err != nil {
		return nil, nil, err
	}
	return claims, roleToPermissions(claims.Role), nil
}

func roleToPermissions(role string) []Permission {
	switch role {
	case RoleAdmin:
		return []Permission{PermOperator, PermTechnician, PermAdmin}
	case RoleTechnician:
		return []Permission{PermOperator, PermTechnician}
	default:
		return []Permission{PermOperator}
	}
}

// adminID is stable across restarts so tokens keep their subject.
func adminID(username string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("openunitsync:"+username))
}

func (a *AuthService) logAuthEvent(ctx context.Context, eventType string, userID *uuid.UUID, ip, userAgent string, success bool, reason string) {
	if a.users == nil {
		return
	}
	if err := a.users.LogAuthEvent(ctx, eventType, userID, ip, userAgent, success, reason); err != nil {
		a.logger.Debug("Failed to log auth event", zap.String("event", eventType), zap.Error(err))
	}
}
