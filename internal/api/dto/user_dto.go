package dto

import "time"

// SignupRequest payload for new accounts.
type SignupRequest struct {
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Skills   []string `json:"skills"`
}

// LoginRequest payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateUserRequest is the admin role/skills edit, keyed by email.
type UpdateUserRequest struct {
	Email  string   `json:"email"`
	Role   *string  `json:"role"`
	Skills []string `json:"skills"`
}

// UserResponse is the account projection (never the password hash).
type UserResponse struct {
	ID        string    `json:"_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Skills    []string  `json:"skills"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
