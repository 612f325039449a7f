package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"backend-bikevillage/internal/db"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

const (
	accessTokenTTL  = 24 * time.Hour
	uniqueViolation = "23505"
)

type Service struct {
	secret []byte
	db     db.Querier
}

type Claims struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"rol"`
	jwt.RegisteredClaims
}

var (
	hashPasswordFn = bcrypt.GenerateFromPassword
	signTokenFn    = (*Service).signToken
)

func NewService(secret string, db db.Querier) *Service {
	return &Service{
		secret: []byte(secret),
		db:     db,
	}
}

// Register creates the account and, for ESTABLECIMIENTO users, the store it
// manages.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (User, TokenResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" || req.Role == "" || strings.TrimSpace(req.Nombre) == "" {
		return User{}, TokenResponse{}, ErrMissingFields
	}
	if !req.Role.Valid() {
		return User{}, TokenResponse{}, ErrInvalidRole
	}
	if req.Role == RoleBusiness && strings.TrimSpace(req.NombreComercial) == "" {
		return User{}, TokenResponse{}, ErrMissingBusinessName
	}

	hash, err := hashPasswordFn([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, TokenResponse{}, err
	}

	user := User{
		ID:              uuid.NewString(),
		Email:           req.Email,
		PasswordHash:    string(hash),
		Role:            req.Role,
		Nombre:          req.Nombre,
		Apellido:        req.Apellido,
		NombreComercial: req.NombreComercial,
		Direccion:       req.Direccion,
		Telefono:        req.Telefono,
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, rol, nombre, apellido, nombre_comercial, direccion, telefono)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at
	`, user.ID, user.Email, user.PasswordHash, string(user.Role), user.Nombre, user.Apellido,
		user.NombreComercial, user.Direccion, user.Telefono)
	if err := row.Scan(&user.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return User{}, TokenResponse{}, ErrEmailTaken
		}
		return User{}, TokenResponse{}, err
	}

	if user.Role == RoleBusiness {
		_, err := s.db.Exec(ctx, `
			INSERT INTO stores (id, owner_id, name, address, phone)
			VALUES ($1,$2,$3,$4,$5)
		`, uuid.NewString(), user.ID, user.NombreComercial, user.Direccion, user.Telefono)
		if err != nil {
			return User{}, TokenResponse{}, err
		}
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return User{}, TokenResponse{}, err
	}
	return user, token, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (User, TokenResponse, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, email, password_hash, rol, nombre, COALESCE(apellido, ''), COALESCE(nombre_comercial, ''),
			COALESCE(direccion, ''), COALESCE(telefono, ''), created_at
		FROM users WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(req.Email)))

	var user User
	var role string
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &role, &user.Nombre, &user.Apellido,
		&user.NombreComercial, &user.Direccion, &user.Telefono, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, TokenResponse{}, ErrInvalidCredentials
		}
		return User{}, TokenResponse{}, err
	}
	user.Role = Role(role)

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return User{}, TokenResponse{}, ErrInvalidCredentials
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return User{}, TokenResponse{}, err
	}
	return user, token, nil
}

func (s *Service) IssueToken(user User) (TokenResponse, error) {
	token, err := signTokenFn(s, user.ID, user.Role, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int64(accessTokenTTL.Seconds()),
	}, nil
}

// ValidateAccessToken returns the user id carried by a valid token.
func (s *Service) ValidateAccessToken(token string) (string, error) {
	claims, err := s.ParseAccessToken(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

func (s *Service) ParseAccessToken(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

func (s *Service) signToken(userID string, role Role, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
