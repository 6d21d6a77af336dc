package db

import (
	"context"

	"github.com/Spok95/lms-recordings/internal/models"
)

func (s *Store) CreateCourse(ctx context.Context, title string) (*models.Course, error) {
	c := models.Course{Title: title}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO courses (title) VALUES ($1) RETURNING id, created_at`, title).
		Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) CourseExists(ctx context.Context, courseID string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM courses WHERE id = $1)`, courseID).Scan(&ok)
	return ok, err
}

func (s *Store) AssignTeacher(ctx context.Context, courseID, teacherID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO course_teachers (course_id, teacher_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, courseID, teacherID)
	return err
}

func (s *Store) IsCourseTeacher(ctx context.Context, courseID, userID string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM course_teachers WHERE course_id = $1 AND teacher_id = $2)`,
		courseID, userID).Scan(&ok)
	return ok, err
}

// EnsureEnrollment идемпотентна: существующая запись (любого типа) не трогается.
func (s *Store) EnsureEnrollment(ctx context.Context, courseID, studentID string, typ models.EnrollmentType) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO course_enrollments (course_id, student_id, enrollment_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (course_id, student_id) DO NOTHING`, courseID, studentID, string(typ))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) GetEnrollment(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	var e models.Enrollment
	err := s.db.QueryRowContext(ctx, `
		SELECT course_id, student_id, enrollment_type, created_at
		FROM course_enrollments WHERE course_id = $1 AND student_id = $2`, courseID, studentID).
		Scan(&e.CourseID, &e.StudentID, &e.Type, &e.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}
