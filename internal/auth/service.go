package auth

import (
	"context"
	"errors"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/gdprop/waterbill/internal/storage"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// SessionDuration is how long an operator login stays valid.
const SessionDuration = 8 * time.Hour

type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type Service struct {
	storage  storage.Storage
	enforcer *casbin.Enforcer
	secret   []byte
}

func NewService(s storage.Storage, jwtSecret string) (*Service, error) {
	m, err := model.NewModelFromString(`
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (r.obj == p.obj || p.obj == "*") && (r.act == p.act || p.act == "*")
`)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	// Admin can do everything.
	e.AddPolicy("admin", "*", "*")
	// Operator manages the billing workflow but not accounts.
	e.AddPolicy("operator", "units", "read")
	e.AddPolicy("operator", "tenants", "write")
	e.AddPolicy("operator", "rates", "read")
	e.AddPolicy("operator", "rates", "write")
	e.AddPolicy("operator", "usage", "read")
	e.AddPolicy("operator", "usage", "write")
	e.AddPolicy("operator", "bills", "read")
	e.AddPolicy("operator", "bills", "write")
	e.AddPolicy("operator", "payments", "write")
	e.AddPolicy("operator", "settings", "write")
	// Viewer can only look.
	e.AddPolicy("viewer", "units", "read")
	e.AddPolicy("viewer", "rates", "read")
	e.AddPolicy("viewer", "usage", "read")
	e.AddPolicy("viewer", "bills", "read")

	return &Service{storage: s, enforcer: e, secret: []byte(jwtSecret)}, nil
}

// Authenticate checks operator credentials against the stored account.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*storage.User, error) {
	u, err := s.storage.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}
	return u, nil
}

// IssueToken signs a session JWT for an authenticated operator.
func (s *Service) IssueToken(u *storage.User) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: u.Username,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionDuration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken parses and verifies a session JWT.
func (s *Service) ValidateToken(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Enforce checks a role against the policy table.
func (s *Service) Enforce(role, obj, act string) (bool, error) {
	return s.enforcer.Enforce(role, obj, act)
}

// HashPassword produces a bcrypt hash for account seeding.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
