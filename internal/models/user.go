package models

import "time"

type Role string

const (
	Student    Role = "student"
	Teacher    Role = "teacher"
	Admin      Role = "admin"
	SuperAdmin Role = "superadmin"
)

// ParseRole accepts only the closed set of known roles.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case Student, Teacher, Admin, SuperAdmin:
		return r, true
	}
	return "", false
}

// IsAdmin reports admin or superadmin.
func (r Role) IsAdmin() bool { return r == Admin || r == SuperAdmin }

type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"fullName"`
	Role      Role      `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
