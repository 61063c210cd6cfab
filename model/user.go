package model

import "time"

// User represents a registered dashboard user (for internal storage)
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`        // unique
	Name         string    `json:"name,omitempty"`
	PasswordHash string    `json:"passwordHash"` // bcrypt hash, never exposed in API
	CreatedAt    time.Time `json:"createdAt"`
}

// UserResponse represents user data for API responses (excludes sensitive fields)
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ToResponse converts User to UserResponse (removes sensitive data)
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
	}
}

// RegisterRequest represents user registration data
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents successful login response
type LoginResponse struct {
	AccessToken string       `json:"accessToken"`
	User        UserResponse `json:"user"`
}
