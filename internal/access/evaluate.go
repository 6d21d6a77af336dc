// Package access decides whether a caller may watch a course's lecture
// recordings. Evaluate is pure; Evaluator gathers its inputs from the store.
package access

import "github.com/Spok95/lms-recordings/internal/models"

type Reason string

const (
	ReasonStaff                Reason = "staff"
	ReasonSubscription         Reason = "subscription"
	ReasonDemo                 Reason = "demo"
	ReasonNotPublished         Reason = "not_published"
	ReasonNotAssigned          Reason = "not_assigned"
	ReasonSubscriptionRequired Reason = "subscription_required"
	ReasonUnknownRole          Reason = "unknown_role"
	ReasonLookupFailed         Reason = "lookup_failed"
)

const (
	MsgNotPublished         = "This lecture recording is not published yet."
	MsgNotAssigned          = "You are not assigned to this course."
	MsgSubscriptionRequired = "An active subscription is required to watch lecture recordings."
	MsgUnknownRole          = "Your account role does not allow access."
	MsgLookupFailed         = "Unable to verify access."
)

// Input is everything a decision depends on.
type Input struct {
	Role            models.Role
	AssignedTeacher bool
	Uploader        bool
	// Published is true for course-level checks that do not target one recording.
	Published    bool
	Subscription bool
	Demo         bool
}

type Decision struct {
	Allowed              bool   `json:"hasAccess"`
	Reason               Reason `json:"-"`
	Message              string `json:"message,omitempty"`
	RequiresSubscription bool   `json:"requiresSubscription,omitempty"`
}

func allow(r Reason) Decision { return Decision{Allowed: true, Reason: r} }

func deny(r Reason, msg string) Decision { return Decision{Reason: r, Message: msg} }

// Evaluate applies the role ladder; first match wins.
func Evaluate(in Input) Decision {
	switch in.Role {
	case models.Admin, models.SuperAdmin:
		return allow(ReasonStaff)
	case models.Teacher:
		if in.AssignedTeacher || in.Uploader {
			return allow(ReasonStaff)
		}
		return deny(ReasonNotAssigned, MsgNotAssigned)
	case models.Student:
		if !in.Published {
			return deny(ReasonNotPublished, MsgNotPublished)
		}
		if in.Subscription {
			return allow(ReasonSubscription)
		}
		if in.Demo {
			return allow(ReasonDemo)
		}
		d := deny(ReasonSubscriptionRequired, MsgSubscriptionRequired)
		d.RequiresSubscription = true
		return d
	}
	return deny(ReasonUnknownRole, MsgUnknownRole)
}

// LookupFailed is the fail-closed decision for store errors.
func LookupFailed() Decision { return deny(ReasonLookupFailed, MsgLookupFailed) }
