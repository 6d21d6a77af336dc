package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/Spok95/lms-recordings/internal/db"
	"github.com/Spok95/lms-recordings/internal/models"
)

var (
	ErrNoCredential = errors.New("no credential")
	ErrUnauthorized = errors.New("unauthorized")
)

// Claims: сессионный JWT провайдера авторизации; роль в нём не используется.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type Identity struct {
	UserID string
	Email  string
	Role   models.Role
}

type RoleSource interface {
	UserRole(ctx context.Context, userID string) (models.Role, error)
}

type Resolver struct {
	secret []byte
	roles  RoleSource
	log    *zap.Logger
}

func NewResolver(secret string, roles RoleSource, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	if secret == "" {
		log.Warn("AUTH_JWT_SECRET is empty, every session will be rejected")
	}
	return &Resolver{secret: []byte(secret), roles: roles, log: log}
}

// ParseSession проверяет подпись (только HS256) и срок действия.
func (r *Resolver) ParseSession(raw string) (*Claims, error) {
	if len(r.secret) == 0 {
		return nil, ErrUnauthorized
	}
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid || claims.Subject == "" {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

// Resolve превращает сессионный токен в пользователя. Роль всегда берётся из БД.
func (r *Resolver) Resolve(ctx context.Context, raw string) (*Identity, error) {
	if raw == "" {
		return nil, ErrNoCredential
	}
	claims, err := r.ParseSession(raw)
	if err != nil {
		return nil, err
	}
	role, err := r.roles.UserRole(ctx, claims.Subject)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("load role: %w", err)
	}
	return &Identity{UserID: claims.Subject, Email: claims.Email, Role: role}, nil
}

// BearerToken достаёт токен из заголовка Authorization: Bearer <token>.
func BearerToken(req *http.Request) string {
	h := req.Header.Get("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}
