package models

import "time"

type EnrollmentType string

const (
	EnrollmentPaid EnrollmentType = "paid"
	EnrollmentDemo EnrollmentType = "demo"
)

type Course struct {
	ID        string    `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type Enrollment struct {
	CourseID  string         `db:"course_id" json:"courseId"`
	StudentID string         `db:"student_id" json:"studentId"`
	Type      EnrollmentType `db:"enrollment_type" json:"enrollmentType"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
}

type LectureRecording struct {
	ID          string    `db:"id" json:"id"`
	CourseID    string    `db:"course_id" json:"courseId"`
	TeacherID   string    `db:"teacher_id" json:"teacherId"`
	Title       string    `db:"title" json:"title"`
	StorageKey  string    `db:"storage_key" json:"storageKey"`
	ContentType string    `db:"content_type" json:"contentType"`
	SizeBytes   int64     `db:"size_bytes" json:"sizeBytes"`
	IsPublished bool      `db:"is_published" json:"isPublished"`
	IsDemo      bool      `db:"is_demo" json:"isDemo"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}
