package access

import (
	"testing"

	"github.com/Spok95/lms-recordings/internal/models"
)

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name    string
		in      Input
		allowed bool
		reason  Reason
		reqSub  bool
	}{
		{"admin outright", Input{Role: models.Admin}, true, ReasonStaff, false},
		{"superadmin unpublished", Input{Role: models.SuperAdmin, Published: false}, true, ReasonStaff, false},
		{"assigned teacher", Input{Role: models.Teacher, AssignedTeacher: true}, true, ReasonStaff, false},
		{"uploader teacher", Input{Role: models.Teacher, Uploader: true}, true, ReasonStaff, false},
		{"foreign teacher", Input{Role: models.Teacher, Published: true, Subscription: true}, false, ReasonNotAssigned, false},
		{"student unpublished with sub", Input{Role: models.Student, Subscription: true}, false, ReasonNotPublished, false},
		{"student subscription", Input{Role: models.Student, Published: true, Subscription: true}, true, ReasonSubscription, false},
		{"student demo", Input{Role: models.Student, Published: true, Demo: true}, true, ReasonDemo, false},
		{"student nothing", Input{Role: models.Student, Published: true}, false, ReasonSubscriptionRequired, true},
		{"unknown role", Input{Role: "parent", Published: true, Subscription: true}, false, ReasonUnknownRole, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Evaluate(tc.in)
			if d.Allowed != tc.allowed || d.Reason != tc.reason || d.RequiresSubscription != tc.reqSub {
				t.Fatalf("got %+v", d)
			}
			if !d.Allowed && d.Message == "" {
				t.Fatalf("denial without message")
			}
		})
	}
}

// Students: allowed iff published && (subscription || demo).
func TestEvaluateStudentProperty(t *testing.T) {
	for _, pub := range []bool{false, true} {
		for _, sub := range []bool{false, true} {
			for _, demo := range []bool{false, true} {
				d := Evaluate(Input{Role: models.Student, Published: pub, Subscription: sub, Demo: demo})
				want := pub && (sub || demo)
				if d.Allowed != want {
					t.Fatalf("pub=%v sub=%v demo=%v: got %v want %v", pub, sub, demo, d.Allowed, want)
				}
			}
		}
	}
}
