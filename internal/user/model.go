package user

import "time"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	IsSuperuser  bool      `json:"is_superuser"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Patch is a sparse update: only non-nil fields are applied.
type Patch struct {
	Email        *string
	PasswordHash *string
	IsActive     *bool
}

// UpdateMeRequest payload of partial self-update.
type UpdateMeRequest struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
	IsActive *bool   `json:"is_active"`
}

// CreateUserRequest payload of admin user creation.
type CreateUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
