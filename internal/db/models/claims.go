package models

import "github.com/golang-jwt/jwt/v5"

// Role represents caller roles carried in bearer tokens
type Role string

const (
	// RoleAdmin may manage the history cache
	RoleAdmin Role = "admin"
	// RoleUser may query device history
	RoleUser Role = "user"
)

// Claims are the JWT claims issued by the auth service
type Claims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
