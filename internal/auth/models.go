package auth

import (
	"errors"
	"time"
)

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleStandard Role = "ESTANDAR"
	RoleBusiness Role = "ESTABLECIMIENTO"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStandard, RoleBusiness:
		return true
	}
	return false
}

var (
	ErrMissingFields       = errors.New("email, password, rol and nombre required")
	ErrInvalidRole         = errors.New("rol must be ADMIN, ESTANDAR or ESTABLECIMIENTO")
	ErrMissingBusinessName = errors.New("nombreComercial required for ESTABLECIMIENTO")
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
)

type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	Role            Role      `json:"rol"`
	Nombre          string    `json:"nombre"`
	Apellido        string    `json:"apellido,omitempty"`
	NombreComercial string    `json:"nombreComercial,omitempty"`
	Direccion       string    `json:"direccion,omitempty"`
	Telefono        string    `json:"telefono,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	Role            Role   `json:"rol"`
	Nombre          string `json:"nombre"`
	Apellido        string `json:"apellido"`
	NombreComercial string `json:"nombreComercial"`
	Direccion       string `json:"direccion"`
	Telefono        string `json:"telefono"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
}
