package storage

import (
	"time"

	"github.com/google/uuid"
)

// UnitProfileRow is a stored profile without its decoded definition.
type UnitProfileRow struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	Name      string    `json:"name"`
	IPAddress string    `json:"ip_address"`
	CanID     string    `json:"can_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User models
type User struct {
	ID                  uuid.UUID  `json:"id"`
	Username            string     `json:"username"`
	PasswordHash        string     `json:"-"` // Never expose in JSON
	Role                string     `json:"role"`
	CreatedAt           time.Time  `json:"created_at"`
	LastLoginAt         *time.Time `json:"last_login_at"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"locked_until,omitempty"`
}
