package model

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoCredentials      = errors.New("no credentials supplied")
	ErrTokensDisabled     = errors.New("token authentication is not configured")
)

// AuthMethod records how an admin proved their identity
type AuthMethod string

const (
	AuthMethodBasic  AuthMethod = "basic"
	AuthMethodBearer AuthMethod = "bearer"
)

// Admin is an authenticated operator allowed to manage index paths
type Admin struct {
	Username string     `json:"username"`
	Method   AuthMethod `json:"method"`
}

// Credential is a stored admin secret. Hashed secrets are bcrypt digests.
type Credential struct {
	Username string
	Secret   string
	Hashed   bool
}
