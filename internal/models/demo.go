package models

import "time"

type AccessType string

const (
	AccessLectureRecording AccessType = "lecture_recording"
	AccessLiveClass        AccessType = "live_class"
)

func ParseAccessType(s string) (AccessType, bool) {
	switch t := AccessType(s); t {
	case AccessLectureRecording, AccessLiveClass:
		return t, true
	}
	return "", false
}

// DemoAccessGrant is unique per (UserID, CourseID, AccessType).
type DemoAccessGrant struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"userId"`
	CourseID   string     `db:"course_id" json:"courseId"`
	AccessType AccessType `db:"access_type" json:"accessType"`
	GrantedBy  *string    `db:"granted_by" json:"grantedBy,omitempty"`
	GrantedAt  time.Time  `db:"granted_at" json:"grantedAt"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expiresAt"`
	UsedAt     *time.Time `db:"used_at" json:"usedAt,omitempty"`
	ResourceID *string    `db:"resource_id" json:"resourceId,omitempty"`
}

func (g *DemoAccessGrant) ActiveAt(now time.Time) bool {
	return g != nil && g.ExpiresAt.After(now)
}

// DemoView is one tracked video view, read back from the action log.
type DemoView struct {
	UserID     string    `db:"user_id"`
	CourseID   string    `db:"course_id"`
	ResourceID string    `db:"resource_id"`
	ViewedAt   time.Time `db:"created_at"`
}
