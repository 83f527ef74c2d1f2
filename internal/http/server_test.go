package http_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/attendance"
	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/attendance/memstore"
	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/auth"
	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/config"
	internalhttp "github.com/HarshaVardhanRao/StudentActivityCentre/internal/http"
)

const (
	testSecret = "test-secret"
	testIssuer = "sac-test"

	organizerID = int64(2)
	studentID   = int64(42)
	walkInID    = int64(43)
	sacID       = int64(10)
	eventID     = int64(7)
	clubID      = int64(5)
)

type errorResponse struct {
	Error string `json:"error"`
}

type sessionResponse struct {
	ID      int64  `json:"id"`
	EventID int64  `json:"event_id"`
	Label   string `json:"label"`
	State   string `json:"state"`
	Locked  bool   `json:"locked"`
}

type recordResponse struct {
	ID      int64  `json:"id"`
	Status  string `json:"status"`
	RefCode string `json:"ref_code"`
	Created bool   `json:"created"`
}

type testServer struct {
	url   string
	store *memstore.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memstore.New()
	club := clubID
	store.AddUser(attendance.Student{ID: organizerID, FirstName: "Olu"}, auth.RoleEventOrganizer)
	store.AddUser(attendance.Student{ID: sacID, FirstName: "Sam"}, auth.RoleSACCoordinator)
	store.AddUser(attendance.Student{ID: studentID, RollNo: "CS042", FirstName: "Ravi", LastName: "Kumar", Department: "CSE"}, auth.RoleStudent)
	store.AddUser(attendance.Student{ID: walkInID, RollNo: "EC043", FirstName: "Mira", LastName: "Das", Department: "ECE"}, auth.RoleStudent)
	store.AddClub(attendance.Club{ID: clubID, Name: "Robotics"})
	store.AddEvent(attendance.Event{ID: eventID, Name: "Tech Fest", Status: attendance.EventApproved, ClubID: &club, StartsAt: time.Now()}, organizerID)
	store.Register(eventID, studentID)

	cfg := config.Config{JWTSecret: testSecret, JWTIssuer: testIssuer, PublicBaseURL: "https://sac.example.edu"}
	svc := attendance.NewService(store, attendance.Config{
		DefaultSessionDuration: time.Hour,
		ImplicitOpenLead:       30 * time.Minute,
		ImplicitOpenWindow:     2 * time.Hour,
	})
	srv := httptest.NewServer(internalhttp.NewServer(cfg, svc).Router())
	t.Cleanup(srv.Close)
	return &testServer{url: srv.URL, store: store}
}

func token(t *testing.T, userID int64) string {
	t.Helper()
	tok, err := auth.NewAccessToken(testSecret, testIssuer, time.Hour, userID)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, tok string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.url+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func expectError(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("expected %d, got %d", status, resp.StatusCode)
	}
	var body errorResponse
	decode(t, resp, &body)
	if body.Error != code {
		t.Fatalf("expected error %s, got %s", code, body.Error)
	}
}

func (s *testServer) openSession(t *testing.T, label string) sessionResponse {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/events/7/sessions", token(t, organizerID), map[string]interface{}{"label": label, "force_open": true})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var session sessionResponse
	decode(t, resp, &session)
	return session
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)
	expectError(t, s.do(t, http.MethodGet, "/events/7/sessions", "", nil), http.StatusUnauthorized, "missing_token")
	expectError(t, s.do(t, http.MethodGet, "/events/7/sessions", "garbage", nil), http.StatusUnauthorized, "invalid_token")

	wrongIssuer, err := auth.NewAccessToken(testSecret, "someone-else", time.Hour, organizerID)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	expectError(t, s.do(t, http.MethodGet, "/events/7/sessions", wrongIssuer, nil), http.StatusUnauthorized, "invalid_token")
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)
	tok := token(t, organizerID)
	session := s.openSession(t, "Day 1")
	if session.EventID != eventID || session.State != string(attendance.StateOpen) {
		t.Fatalf("unexpected session %+v", session)
	}

	resp := s.do(t, http.MethodPut, "/sessions/1/records/42", tok, map[string]string{"status": "present"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created recordResponse
	decode(t, resp, &created)
	if !created.Created || created.Status != "PRESENT" || created.RefCode == "" {
		t.Fatalf("unexpected record %+v", created)
	}

	resp = s.do(t, http.MethodPut, "/sessions/1/records/42", tok, map[string]string{"status": "ABSENT"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var updated recordResponse
	decode(t, resp, &updated)
	if updated.Created || updated.RefCode != created.RefCode || updated.Status != "ABSENT" {
		t.Fatalf("unexpected update %+v", updated)
	}

	expectError(t, s.do(t, http.MethodPut, "/sessions/1/records/42", tok, map[string]string{"status": "late"}), http.StatusBadRequest, attendance.CodeInvalidStatus)
	expectError(t, s.do(t, http.MethodPut, "/sessions/1/records/43", tok, map[string]string{"status": "PRESENT"}), http.StatusConflict, attendance.CodeStudentNotRegistered)
	expectError(t, s.do(t, http.MethodPost, "/sessions/1/extend", tok, map[string]int{"minutes": 0}), http.StatusBadRequest, attendance.CodeInvalidMinutes)

	resp = s.do(t, http.MethodPost, "/sessions/1/extend", tok, map[string]int{"minutes": 15})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = s.do(t, http.MethodPost, "/sessions/1/submit", tok, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var submitted sessionResponse
	decode(t, resp, &submitted)
	if !submitted.Locked || submitted.State != string(attendance.StateLocked) {
		t.Fatalf("expected locked session, got %+v", submitted)
	}

	expectError(t, s.do(t, http.MethodPost, "/sessions/1/submit", tok, nil), http.StatusConflict, attendance.CodeSessionLocked)
	expectError(t, s.do(t, http.MethodPut, "/sessions/1/records/42", tok, map[string]string{"status": "PRESENT"}), http.StatusConflict, attendance.CodeSessionLocked)
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t)
	tok := token(t, organizerID)
	s.openSession(t, "")

	expectError(t, s.do(t, http.MethodGet, "/sessions/abc", tok, nil), http.StatusBadRequest, attendance.CodeInvalidID)
	expectError(t, s.do(t, http.MethodPost, "/events/7/sessions", tok, map[string]string{"unknown": "x"}), http.StatusBadRequest, "invalid_json")
	expectError(t, s.do(t, http.MethodPost, "/events/7/sessions", tok, map[string]string{"label": strings.Repeat("x", 101)}), http.StatusBadRequest, "invalid_request")
	expectError(t, s.do(t, http.MethodPost, "/sessions/1/spot-registrations", tok, map[string]interface{}{"status": "PRESENT"}), http.StatusBadRequest, "invalid_request")
	expectError(t, s.do(t, http.MethodGet, "/sessions/99", tok, nil), http.StatusNotFound, attendance.CodeSessionNotFound)
	expectError(t, s.do(t, http.MethodGet, "/events/7/sessions", token(t, studentID), nil), http.StatusForbidden, attendance.CodeForbidden)
}

func TestVerifyAndQR(t *testing.T) {
	s := newTestServer(t)
	tok := token(t, organizerID)
	s.openSession(t, "Day 1")

	resp := s.do(t, http.MethodPut, "/sessions/1/records/42", tok, map[string]string{"status": "PRESENT"})
	var record recordResponse
	decode(t, resp, &record)

	resp = s.do(t, http.MethodGet, "/verify/"+strings.ToLower(record.RefCode), "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var v attendance.Verification
	decode(t, resp, &v)
	if v.RefCode != record.RefCode || v.EventName != "Tech Fest" || v.StudentName != "Ravi Kumar" || v.SessionLabel != "Day 1" {
		t.Fatalf("unexpected verification %+v", v)
	}

	expectError(t, s.do(t, http.MethodGet, "/verify/NOPE1234", "", nil), http.StatusNotFound, attendance.CodeReferenceNotFound)

	resp = s.do(t, http.MethodGet, "/verify/"+record.RefCode+"/qr", "", nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("expected png, got %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read qr: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Fatalf("expected PNG signature")
	}
	expectError(t, s.do(t, http.MethodGet, "/verify/NOPE1234/qr", "", nil), http.StatusNotFound, attendance.CodeReferenceNotFound)
}

func TestExportCSV(t *testing.T) {
	s := newTestServer(t)
	tok := token(t, organizerID)
	s.openSession(t, "Day 1")

	if resp := s.do(t, http.MethodPut, "/sessions/1/records/42", tok, map[string]string{"status": "PRESENT"}); resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	resp := s.do(t, http.MethodPost, "/sessions/1/spot-registrations", tok, map[string]interface{}{"student_id": walkInID, "status": "ABSENT"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if !s.store.IsSpotRegistered(eventID, walkInID) {
		t.Fatalf("expected spot registration")
	}

	resp = s.do(t, http.MethodGet, "/events/7/attendance.csv?session=1", tok, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("expected text/csv, got %s", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "attendance-7-tech-fest-session-1.csv") {
		t.Fatalf("unexpected disposition %s", cd)
	}
	lines, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %d lines", len(lines))
	}
	if strings.Join(lines[0], ",") != "roll_no,name,department,status,recorded_at,session,ref_code" {
		t.Fatalf("unexpected header %v", lines[0])
	}

	resp = s.do(t, http.MethodGet, "/sessions/1/records", tok, nil)
	var rows []map[string]interface{}
	decode(t, resp, &rows)
	if len(rows) != 2 {
		t.Fatalf("expected 2 records, got %d", len(rows))
	}

	expectError(t, s.do(t, http.MethodGet, "/events/7/attendance.csv?session=x", tok, nil), http.StatusBadRequest, attendance.CodeInvalidID)
}

func TestClubCoordinators(t *testing.T) {
	s := newTestServer(t)
	sac := token(t, sacID)

	expectError(t, s.do(t, http.MethodPost, "/clubs/5/coordinators", token(t, organizerID), map[string]int64{"user_id": walkInID}), http.StatusForbidden, attendance.CodeForbidden)

	resp := s.do(t, http.MethodPost, "/clubs/5/coordinators", sac, map[string]int64{"user_id": walkInID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	expectError(t, s.do(t, http.MethodPost, "/clubs/5/coordinators", sac, map[string]int64{"user_id": walkInID}), http.StatusConflict, attendance.CodeAlreadyCoordinator)

	// The new coordinator manages the club's events.
	resp = s.do(t, http.MethodGet, "/events/7/sessions", token(t, walkInID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected coordinator access, got %d", resp.StatusCode)
	}

	resp = s.do(t, http.MethodDelete, "/clubs/5/coordinators/43", sac, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	expectError(t, s.do(t, http.MethodGet, "/events/7/sessions", token(t, walkInID), nil), http.StatusForbidden, attendance.CodeForbidden)
}
