package models

import "time"

type PlanType string

const (
	PlanFull       PlanType = "full"
	PlanRecordings PlanType = "recordings"
	PlanLive       PlanType = "live"
)

func ParsePlanType(s string) (PlanType, bool) {
	switch p := PlanType(s); p {
	case PlanFull, PlanRecordings, PlanLive:
		return p, true
	}
	return "", false
}

// AllowsRecordings reports whether the plan covers lecture recordings.
func (p PlanType) AllowsRecordings() bool { return p == PlanFull || p == PlanRecordings }

// RecordingPlans lists plan types that permit recordings.
func RecordingPlans() []string { return []string{string(PlanFull), string(PlanRecordings)} }

type SubscriptionStatus string

const (
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionExpired SubscriptionStatus = "expired"
)

type Subscription struct {
	ID                    string             `db:"id" json:"id"`
	UserID                string             `db:"user_id" json:"userId"`
	CourseID              string             `db:"course_id" json:"courseId"`
	PlanType              PlanType           `db:"plan_type" json:"planType"`
	Status                SubscriptionStatus `db:"status" json:"status"`
	StartsAt              time.Time          `db:"starts_at" json:"startsAt"`
	ExpiresAt             time.Time          `db:"expires_at" json:"expiresAt"`
	PaymentVerificationID *string            `db:"payment_verification_id" json:"paymentVerificationId,omitempty"`
}

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

type PaymentVerification struct {
	ID          string             `db:"id" json:"id"`
	UserID      string             `db:"user_id" json:"userId"`
	CourseID    string             `db:"course_id" json:"courseId"`
	PlanType    PlanType           `db:"plan_type" json:"planType"`
	AmountCents int64              `db:"amount_cents" json:"amountCents"`
	Reference   string             `db:"reference" json:"reference"`
	Status      VerificationStatus `db:"status" json:"status"`
	ReviewedBy  *string            `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt  *time.Time         `db:"reviewed_at" json:"reviewedAt,omitempty"`
	CreatedAt   time.Time          `db:"created_at" json:"createdAt"`
}
