package types

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the fields read from a BaaS issued access token.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Session is the authenticated caller threaded through every handler call.
type Session struct {
	UserID uuid.UUID
	Email  string
	Role   string
}
