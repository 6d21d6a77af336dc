package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Spok95/lms-recordings/internal/models"
)

const demoColumns = `id, user_id, course_id, access_type, granted_by, granted_at, expires_at, used_at, resource_id`

func scanDemoGrant(row rowScanner) (*models.DemoAccessGrant, error) {
	var g models.DemoAccessGrant
	if err := row.Scan(&g.ID, &g.UserID, &g.CourseID, &g.AccessType, &g.GrantedBy,
		&g.GrantedAt, &g.ExpiresAt, &g.UsedAt, &g.ResourceID); err != nil {
		return nil, err
	}
	return &g, nil
}

// DemoUpsert: параметры записи в журнал демо-доступа.
type DemoUpsert struct {
	UserID     string
	CourseID   string
	AccessType models.AccessType
	GrantedBy  *string
	Now        time.Time
	ExpiresAt  time.Time
	// ResetWindow: при конфликте переписать granted_*/expires_at (путь админа).
	ResetWindow bool
}

// UpsertDemoGrant пишет грант по естественному ключу (user, course, access_type).
// Без ResetWindow существующая строка возвращается как есть.
func (s *Store) UpsertDemoGrant(ctx context.Context, in DemoUpsert) (*models.DemoAccessGrant, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO demo_access (user_id, course_id, access_type, granted_by, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, course_id, access_type) DO UPDATE SET
			granted_by = CASE WHEN $7::boolean THEN EXCLUDED.granted_by ELSE demo_access.granted_by END,
			granted_at = CASE WHEN $7::boolean THEN EXCLUDED.granted_at ELSE demo_access.granted_at END,
			expires_at = CASE WHEN $7::boolean THEN EXCLUDED.expires_at ELSE demo_access.expires_at END
		RETURNING `+demoColumns,
		in.UserID, in.CourseID, string(in.AccessType), in.GrantedBy, in.Now, in.ExpiresAt, in.ResetWindow)
	return scanDemoGrant(row)
}

// GetDemoGrant возвращает грант по ключу независимо от срока, nil если его нет.
func (s *Store) GetDemoGrant(ctx context.Context, userID, courseID string, accessType models.AccessType) (*models.DemoAccessGrant, error) {
	g, err := scanDemoGrant(s.db.QueryRowContext(ctx, `
		SELECT `+demoColumns+` FROM demo_access
		WHERE user_id = $1 AND course_id = $2 AND access_type = $3`,
		userID, courseID, string(accessType)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

// ActiveDemoGrant: неистёкший грант или nil.
func (s *Store) ActiveDemoGrant(ctx context.Context, userID, courseID string, accessType models.AccessType, now time.Time) (*models.DemoAccessGrant, error) {
	g, err := scanDemoGrant(s.db.QueryRowContext(ctx, `
		SELECT `+demoColumns+` FROM demo_access
		WHERE user_id = $1 AND course_id = $2 AND access_type = $3 AND expires_at > $4`,
		userID, courseID, string(accessType), now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

// CountDemoCourses считает курсы, на которые у пользователя уже есть демо данного типа.
func (s *Store) CountDemoCourses(ctx context.Context, userID string, accessType models.AccessType) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(DISTINCT course_id) FROM demo_access
		WHERE user_id = $1 AND access_type = $2`, userID, string(accessType)).Scan(&n)
	return n, err
}

// TouchDemoGrant фиксирует просмотр на активном гранте; false: активного гранта нет.
func (s *Store) TouchDemoGrant(ctx context.Context, userID, courseID string, accessType models.AccessType, resourceID string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE demo_access SET used_at = $5, resource_id = $4
		WHERE user_id = $1 AND course_id = $2 AND access_type = $3 AND expires_at > $5`,
		userID, courseID, string(accessType), resourceID, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) ListDemoGrants(ctx context.Context) ([]models.DemoAccessGrant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+demoColumns+` FROM demo_access ORDER BY granted_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.DemoAccessGrant
	for rows.Next() {
		g, err := scanDemoGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}
