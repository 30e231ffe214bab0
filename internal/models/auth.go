package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token roles accepted by the API
const (
	RoleAdmin   = "admin"
	RoleService = "service"
)

// TokenClaims are the claims carried by bearer tokens issued by the mail system.
// Admin-console users carry RoleAdmin; the login route authenticates as RoleService.
type TokenClaims struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
