package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Spok95/lms-recordings/internal/access"
	"github.com/Spok95/lms-recordings/internal/db"
	"github.com/Spok95/lms-recordings/internal/demo"
	"github.com/Spok95/lms-recordings/internal/identity"
	"github.com/Spok95/lms-recordings/internal/models"
	"github.com/Spok95/lms-recordings/internal/playback"
	"github.com/Spok95/lms-recordings/internal/progress"
	"github.com/Spok95/lms-recordings/internal/storage"
	"github.com/Spok95/lms-recordings/internal/stream"
	"github.com/Spok95/lms-recordings/internal/token"
)

const (
	sessionSecret = "session-secret"
	courseID      = "6f1c1f4e-8f43-4d4f-9a43-1d2b7e0c0a01"
	firstID       = "0b6a5c6e-1111-4a4a-8a8a-000000000001"
	secondID      = "0b6a5c6e-2222-4a4a-8a8a-000000000002"
	studentID     = "5d0c2b7a-aaaa-4b4b-9c9c-000000000001"
	adminID       = "5d0c2b7a-bbbb-4b4b-9c9c-000000000002"
)

// memStore реализует хранилище для всех сервисов, которые собирает сервер.
type memStore struct {
	mu     sync.Mutex
	roles  map[string]models.Role
	recs   []models.LectureRecording
	grants map[string]*models.DemoAccessGrant
	views  int
	subErr error
}

func newMemStore() *memStore {
	base := time.Now().Add(-48 * time.Hour)
	return &memStore{
		roles: map[string]models.Role{studentID: models.Student, adminID: models.Admin},
		recs: []models.LectureRecording{
			{ID: firstID, CourseID: courseID, StorageKey: "courses/c/recordings/first.mp4", IsPublished: true, CreatedAt: base},
			{ID: secondID, CourseID: courseID, StorageKey: "courses/c/recordings/second.mp4", IsPublished: true, CreatedAt: base.Add(time.Hour)},
		},
		grants: map[string]*models.DemoAccessGrant{},
	}
}

func gkey(u, c string, t models.AccessType) string { return u + "|" + c + "|" + string(t) }

func (m *memStore) UserRole(_ context.Context, id string) (models.Role, error) {
	if r, ok := m.roles[id]; ok {
		return r, nil
	}
	return "", db.ErrNotFound
}

func (m *memStore) IsCourseTeacher(context.Context, string, string) (bool, error) { return false, nil }

func (m *memStore) HasActiveSubscription(context.Context, string, string, time.Time) (bool, error) {
	return false, m.subErr
}

func (m *memStore) ActiveDemoGrant(_ context.Context, u, c string, t models.AccessType, now time.Time) (*models.DemoAccessGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g := m.grants[gkey(u, c, t)]; g != nil && g.ActiveAt(now) {
		cp := *g
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) GetRecording(_ context.Context, id string) (*models.LectureRecording, error) {
	for i := range m.recs {
		if m.recs[i].ID == id {
			r := m.recs[i]
			return &r, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memStore) GetRecordingByKey(_ context.Context, key string) (*models.LectureRecording, error) {
	for i := range m.recs {
		if m.recs[i].StorageKey == key {
			r := m.recs[i]
			return &r, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memStore) FirstPublishedRecording(_ context.Context, c string) (*models.LectureRecording, error) {
	var first *models.LectureRecording
	for i := range m.recs {
		r := m.recs[i]
		if r.CourseID == c && r.IsPublished && (first == nil || r.CreatedAt.Before(first.CreatedAt)) {
			first = &r
		}
	}
	return first, nil
}

func (m *memStore) ListRecordings(_ context.Context, c string, publishedOnly bool) ([]models.LectureRecording, error) {
	var out []models.LectureRecording
	for _, r := range m.recs {
		if r.CourseID == c && (!publishedOnly || r.IsPublished) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) SetRecordingPublished(context.Context, string, bool) error { return nil }
func (m *memStore) SetDemoRecording(context.Context, string) error              { return nil }

func (m *memStore) CourseExists(_ context.Context, id string) (bool, error) { return id == courseID, nil }

func (m *memStore) ListDemoGrants(context.Context) ([]models.DemoAccessGrant, error) { return nil, nil }

func (m *memStore) ListDemoViews(context.Context, time.Time) ([]models.DemoView, error) {
	return nil, nil
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) GetDemoGrant(_ context.Context, u, c string, t models.AccessType) (*models.DemoAccessGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g := m.grants[gkey(u, c, t)]; g != nil {
		cp := *g
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) CountDemoCourses(_ context.Context, u string, t models.AccessType) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, g := range m.grants {
		if g.UserID == u && g.AccessType == t {
			n++
		}
	}
	return n, nil
}

func (m *memStore) UpsertDemoGrant(_ context.Context, in db.DemoUpsert) (*models.DemoAccessGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := gkey(in.UserID, in.CourseID, in.AccessType)
	g := m.grants[k]
	if g == nil || in.ResetWindow {
		g = &models.DemoAccessGrant{
			ID: "g-" + in.UserID, UserID: in.UserID, CourseID: in.CourseID, AccessType: in.AccessType,
			GrantedBy: in.GrantedBy, GrantedAt: in.Now, ExpiresAt: in.ExpiresAt,
		}
		m.grants[k] = g
	}
	cp := *g
	return &cp, nil
}

func (m *memStore) EnsureEnrollment(context.Context, string, string, models.EnrollmentType) (bool, error) {
	return true, nil
}

func (m *memStore) TouchDemoGrant(_ context.Context, u, c string, t models.AccessType, res string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.grants[gkey(u, c, t)]
	if g == nil || !g.ActiveAt(now) {
		return false, nil
	}
	g.ResourceID, g.UsedAt = &res, &now
	return true, nil
}

func (m *memStore) LogAction(context.Context, string, string, *string, *string, time.Time) error {
	m.mu.Lock()
	m.views++
	m.mu.Unlock()
	return nil
}

type memObjects map[string][]byte

func (o memObjects) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	b, ok := o[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Size: int64(len(b)), ContentType: "video/mp4"}, nil
}

func (o memObjects) Open(_ context.Context, key string, start, end int64) (io.ReadCloser, error) {
	b := o[key]
	if end < 0 {
		end = int64(len(b)) - 1
	}
	return io.NopCloser(bytes.NewReader(b[start : end+1])), nil
}

func (o memObjects) Put(context.Context, string, io.Reader, int64, string) error { return nil }

type fixture struct {
	store *memStore
	srv   *httptest.Server
}

func newFixture(t *testing.T, tokenSecret string) *fixture {
	t.Helper()
	return newFixtureWith(t, tokenSecret, newMemStore(), nil)
}

func newFixtureWith(t *testing.T, tokenSecret string, st *memStore, log *zap.Logger) *fixture {
	t.Helper()
	objs := memObjects{
		"courses/c/recordings/first.mp4":  []byte("0123456789"),
		"courses/c/recordings/second.mp4": []byte("abcdefghij"),
	}
	eval := access.NewEvaluator(st, nil)
	s := NewServer(Deps{
		Log:      log,
		Store:    st,
		Identity: identity.NewResolver(sessionSecret, st, nil),
		Access:   eval,
		Playback: playback.NewService(st, eval, token.NewSigner(tokenSecret, 0), nil),
		Proxy:    stream.NewProxy(objs, nil),
		Demo:     demo.NewLedger(st, 24*time.Hour, 3, nil),
		Progress: progress.NewRegistry(nil),
	})
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &fixture{store: st, srv: srv}
}

func session(t *testing.T, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, identity.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	raw, err := tok.SignedString([]byte(sessionSecret))
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func (f *fixture) do(t *testing.T, method, path, bearer string, body any, hdr map[string]string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp, out
}

func (f *fixture) issue(t *testing.T, bearer, recordingID string) (*http.Response, map[string]any) {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/api/lecture-recordings/access-token", bearer,
		map[string]string{"recordingId": recordingID}, nil)
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
	return resp, m
}

func TestGuestTokenForFirstLectureStreams(t *testing.T) {
	f := newFixture(t, "token-secret")

	resp, m := f.issue(t, "", firstID)
	if resp.StatusCode != http.StatusOK || m["success"] != true {
		t.Fatalf("issue: %d %v", resp.StatusCode, m)
	}
	tok, _ := m["token"].(string)
	if !token.LooksSigned(tok) {
		t.Fatalf("unexpected token %q", tok)
	}

	resp, body := f.do(t, http.MethodGet, "/api/lecture-recordings/stream/courses/c/recordings/first.mp4?token="+tok, "", nil,
		map[string]string{"Range": "bytes=2-5"})
	if resp.StatusCode != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d %s", resp.StatusCode, body)
	}
	if string(body) != "2345" {
		t.Fatalf("body %q", body)
	}
	if got := resp.Header.Get("Content-Range"); got != "bytes 2-5/10" {
		t.Fatalf("content-range %q", got)
	}

	resp, _ = f.do(t, http.MethodGet, "/api/lecture-recordings/stream/courses/c/recordings/first.mp4?token="+tok, "", nil,
		map[string]string{"Range": "bytes=20-30"})
	if resp.StatusCode != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("expected 416, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Range"); got != "bytes */10" {
		t.Fatalf("content-range %q", got)
	}

	// токен привязан к ключу
	resp, _ = f.do(t, http.MethodGet, "/api/lecture-recordings/stream/courses/c/recordings/second.mp4?token="+tok, "", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign key, got %d", resp.StatusCode)
	}
}

func TestGuestDeniedBeyondFirstLecture(t *testing.T) {
	f := newFixture(t, "token-secret")
	resp, m := f.issue(t, "", secondID)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if m["error"] != playback.MsgPreviewOnly {
		t.Fatalf("message %v", m["error"])
	}
	if _, ok := m["token"]; ok {
		t.Fatal("denied response must not carry a token")
	}
}

func TestIssueWithoutSecretFails(t *testing.T) {
	f := newFixture(t, "")
	resp, m := f.issue(t, "", firstID)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if _, ok := m["token"]; ok {
		t.Fatal("misconfigured server must not return a token")
	}
}

func TestIssueRejectsBadInput(t *testing.T) {
	f := newFixture(t, "token-secret")
	if resp, _ := f.issue(t, "", "not-a-uuid"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if resp, _ := f.issue(t, "garbage", firstID); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad session, got %d", resp.StatusCode)
	}
	if resp, _ := f.issue(t, "", "00000000-0000-4000-8000-000000000000"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestStudentExpiredDemoRequiresSubscription(t *testing.T) {
	f := newFixture(t, "token-secret")
	past := time.Now().Add(-30 * time.Hour)
	f.store.mu.Lock()
	f.store.grants[gkey(studentID, courseID, models.AccessLectureRecording)] = &models.DemoAccessGrant{
		UserID: studentID, CourseID: courseID, AccessType: models.AccessLectureRecording,
		GrantedAt: past, ExpiresAt: past.Add(24 * time.Hour),
	}
	f.store.mu.Unlock()

	resp, m := f.issue(t, session(t, studentID), secondID)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if m["requiresSubscription"] != true || m["error"] != access.MsgSubscriptionRequired {
		t.Fatalf("unexpected body %v", m)
	}

	// сессия без подписанного токена проходит ту же проверку
	resp, _ = f.do(t, http.MethodGet, "/api/lecture-recordings/stream/courses/c/recordings/second.mp4", session(t, studentID), nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 on session stream, got %d", resp.StatusCode)
	}
}

func TestStreamRequiresCredential(t *testing.T) {
	f := newFixture(t, "token-secret")
	resp, _ := f.do(t, http.MethodGet, "/api/lecture-recordings/stream/courses/c/recordings/first.mp4", "", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestDemoGrantThenWatch(t *testing.T) {
	f := newFixture(t, "token-secret")
	student := session(t, studentID)

	resp, _ := f.do(t, http.MethodPost, "/api/demo-access", student,
		map[string]string{"courseId": courseID}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("grant: %d", resp.StatusCode)
	}

	resp, m := f.issue(t, student, secondID)
	if resp.StatusCode != http.StatusOK || m["token"] == "" {
		t.Fatalf("issue with demo: %d %v", resp.StatusCode, m)
	}

	resp, _ = f.do(t, http.MethodPost, "/api/demo-access/track-view", student,
		map[string]string{"courseId": courseID, "recordingId": secondID}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("track: %d", resp.StatusCode)
	}
	f.store.mu.Lock()
	views := f.store.views
	f.store.mu.Unlock()
	if views != 1 {
		t.Fatalf("expected one logged view, got %d", views)
	}

	resp, body := f.do(t, http.MethodGet, "/api/courses/"+courseID+"/access", student, nil, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"hasAccess":true`) {
		t.Fatalf("access: %d %s", resp.StatusCode, body)
	}
}

func TestAdminDemoGrant(t *testing.T) {
	f := newFixture(t, "token-secret")
	body := map[string]string{"userId": studentID, "courseId": courseID, "accessType": "lecture_recording"}

	resp, _ := f.do(t, http.MethodPost, "/api/admin/demo-access", session(t, studentID), body, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("student must not use admin route, got %d", resp.StatusCode)
	}

	resp, raw := f.do(t, http.MethodPost, "/api/admin/demo-access", session(t, adminID), body, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("admin grant: %d %s", resp.StatusCode, raw)
	}
	var g models.DemoAccessGrant
	if err := json.Unmarshal(raw, &g); err != nil {
		t.Fatal(err)
	}
	if g.GrantedBy == nil || *g.GrantedBy != adminID {
		t.Fatalf("granted_by not set: %+v", g)
	}
}

func TestStreamByQueryKey(t *testing.T) {
	f := newFixture(t, "token-secret")
	_, m := f.issue(t, "", firstID)
	tok, _ := m["token"].(string)

	resp, body := f.do(t, http.MethodGet,
		"/api/lecture-recordings/stream?key=courses/c/recordings/first.mp4&token="+tok, "", nil,
		map[string]string{"Range": "bytes=4-"})
	if resp.StatusCode != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d %s", resp.StatusCode, body)
	}
	if got := resp.Header.Get("Content-Range"); got != "bytes 4-9/10" {
		t.Fatalf("content-range %q", got)
	}
	if string(body) != "456789" {
		t.Fatalf("body %q", body)
	}

	resp, _ = f.do(t, http.MethodGet, "/api/lecture-recordings/stream?key=courses/c/recordings/first.mp4", "",
		nil, map[string]string{"Authorization": "Bearer " + tok})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bearer playback token: expected 200, got %d", resp.StatusCode)
	}

	resp, _ = f.do(t, http.MethodGet, "/api/lecture-recordings/stream?token="+tok, "", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing key: expected 400, got %d", resp.StatusCode)
	}
}

func TestStoreFailureIsServerError(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	st := newMemStore()
	st.subErr = errors.New("connection reset")
	f := newFixtureWith(t, "token-secret", st, zap.New(core))

	resp, m := f.issue(t, session(t, studentID), secondID)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d %v", resp.StatusCode, m)
	}
	if _, ok := m["token"]; ok {
		t.Fatal("failed lookup must not return a token")
	}
	if m["error"] != "internal error" {
		t.Fatalf("internal detail leaked: %v", m)
	}

	entries := logs.FilterMessage("request failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one failure log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["op"] != "issue_token" || fields["user_id"] != studentID {
		t.Fatalf("failure log lacks request context: %v", fields)
	}

	resp, _ = f.do(t, http.MethodGet, "/api/courses/"+courseID+"/access", session(t, studentID), nil, nil)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("course access: expected 500, got %d", resp.StatusCode)
	}
}

func TestDemoExportWindowBounds(t *testing.T) {
	f := newFixture(t, "token-secret")
	admin := session(t, adminID)
	for _, days := range []string{"0", "-1", "abc", "3651", "200000"} {
		resp, _ := f.do(t, http.MethodGet, "/api/admin/demo-access/export?days="+days, admin, nil, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("days=%s: expected 400, got %d", days, resp.StatusCode)
		}
	}
	resp, _ := f.do(t, http.MethodGet, "/api/admin/demo-access/export?days=3650", admin, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("days=3650: expected 200, got %d", resp.StatusCode)
	}
}
