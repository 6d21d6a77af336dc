package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Spok95/lms-recordings/internal/models"
)

func TestWriteDemoLedger(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	admin := "admin-1"
	res := "rec-1"
	used := now.Add(-time.Hour)
	grants := []models.DemoAccessGrant{
		{UserID: "u1", CourseID: "c1", AccessType: models.AccessLectureRecording,
			GrantedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(22 * time.Hour), UsedAt: &used, ResourceID: &res},
		{UserID: "u2", CourseID: "c1", AccessType: models.AccessLiveClass, GrantedBy: &admin,
			GrantedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-24 * time.Hour)},
	}
	views := []models.DemoView{{UserID: "u1", CourseID: "c1", ResourceID: "rec-1", ViewedAt: used}}

	var buf bytes.Buffer
	if err := WriteDemoLedger(&buf, grants, views, now, time.UTC); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetGrants)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[1][6] != "да" || rows[2][6] != "нет" {
		t.Fatalf("active column wrong: %v / %v", rows[1], rows[2])
	}
	if rows[2][3] != admin || rows[1][3] != "сам" {
		t.Fatalf("granted_by column wrong: %v / %v", rows[1], rows[2])
	}

	vrows, err := f.GetRows(sheetViews)
	if err != nil {
		t.Fatal(err)
	}
	if len(vrows) != 2 || vrows[1][2] != "rec-1" {
		t.Fatalf("views sheet wrong: %v", vrows)
	}
}

func TestBuildDemoLedgerFilename(t *testing.T) {
	name := BuildDemoLedgerFilename(time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC))
	if !strings.HasSuffix(name, "2026-05-10.xlsx") || strings.ContainsAny(name, `\/:*?"<>|`) {
		t.Fatalf("bad filename %q", name)
	}
}
