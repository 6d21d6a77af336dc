package db

import (
	"context"

	"github.com/Spok95/lms-recordings/internal/models"
)

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, role, created_at
		FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// UserRole читает роль заново из БД; неизвестное значение отдаётся как есть,
// решение о доступе принимает вызывающий.
func (s *Store) UserRole(ctx context.Context, userID string) (models.Role, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id = $1`, userID).Scan(&role)
	if err != nil {
		return "", notFound(err)
	}
	return models.Role(role), nil
}

func (s *Store) CreateUser(ctx context.Context, email, fullName string, role models.Role) (*models.User, error) {
	u := models.User{Email: email, FullName: fullName, Role: role}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, full_name, role) VALUES ($1, $2, $3)
		RETURNING id, created_at`, email, fullName, string(role)).
		Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return &u, nil
}
