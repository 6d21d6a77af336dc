//go:build testutil
// +build testutil

package testdb

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/lib/pq"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/Spok95/lms-recordings/internal/db"
	"github.com/Spok95/lms-recordings/internal/models"
)

type DBHandle struct {
	DB     *sql.DB
	Store  *db.Store
	cancel func()
	stop   func(context.Context) error
}

func (h *DBHandle) Close() {
	if h.DB != nil {
		_ = h.DB.Close()
	}
	if h.stop != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = h.stop(ctx)
	}
	if h.cancel != nil {
		h.cancel()
	}
}

// Start поднимает postgres в контейнере и накатывает миграции репозитория.
func Start(ctx context.Context) (*DBHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)

	pg, err := postgres.RunContainer(ctx,
		tc.WithImage("postgres:17-alpine"),
		postgres.WithDatabase("lms"),
		postgres.WithUsername("lms"),
		postgres.WithPassword("lms"),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	fail := func(err error) (*DBHandle, error) {
		_ = pg.Terminate(ctx)
		cancel()
		return nil, err
	}

	uri, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fail(err)
	}
	database, err := sql.Open("postgres", uri)
	if err != nil {
		return fail(err)
	}
	if err := waitReady(ctx, database); err != nil {
		return fail(err)
	}
	if err := db.Migrate(ctx, database); err != nil {
		return fail(err)
	}

	return &DBHandle{
		DB:     database,
		Store:  db.New(database),
		cancel: cancel,
		stop:   pg.Terminate,
	}, nil
}

func waitReady(ctx context.Context, database *sql.DB) error {
	dead := time.Now().Add(20 * time.Second)
	for time.Now().Before(dead) {
		if err := database.PingContext(ctx); err == nil {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return errors.New("db not ready")
}

func MustUser(t *testing.T, h *DBHandle, email string, role models.Role) string {
	t.Helper()
	u, err := h.Store.CreateUser(context.Background(), email, email, role)
	if err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return u.ID
}

func MustCourse(t *testing.T, h *DBHandle, title string) string {
	t.Helper()
	c, err := h.Store.CreateCourse(context.Background(), title)
	if err != nil {
		t.Fatalf("seed course %s: %v", title, err)
	}
	return c.ID
}

// MustRecording вставляет запись и сдвигает created_at, чтобы порядок был детерминирован.
func MustRecording(t *testing.T, h *DBHandle, courseID, teacherID, key string, published bool, createdAt time.Time) string {
	t.Helper()
	ctx := context.Background()
	r, err := h.Store.CreateRecording(ctx, models.LectureRecording{
		CourseID: courseID, TeacherID: teacherID, Title: key, StorageKey: key,
		ContentType: "video/mp4", IsPublished: published,
	})
	if err != nil {
		t.Fatalf("seed recording %s: %v", key, err)
	}
	if _, err := h.DB.ExecContext(ctx, `UPDATE lecture_recordings SET created_at = $2 WHERE id = $1`, r.ID, createdAt); err != nil {
		t.Fatalf("backdate recording: %v", err)
	}
	return r.ID
}
