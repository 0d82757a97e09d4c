package models

import "github.com/golang-jwt/jwt/v5"

// Claims carried by operator API tokens.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}
