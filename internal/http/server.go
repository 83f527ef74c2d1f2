package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skip2/go-qrcode"

	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/attendance"
	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/auth"
	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/config"
)

const qrSize = 256

type Server struct {
	cfg      config.Config
	svc      *attendance.Service
	validate *validator.Validate
	metrics  http.Handler
}

func NewServer(cfg config.Config, svc *attendance.Service) *Server {
	return &Server{
		cfg:      cfg,
		svc:      svc,
		validate: validator.New(),
		metrics:  promhttp.Handler(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", s.metrics)

	// Public verification.
	r.Get("/verify/{code}", s.handleVerify)
	r.Get("/verify/{code}/qr", s.handleVerifyQR)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/events/{eventId}/sessions", s.handleOpenSession)
		r.Get("/events/{eventId}/sessions", s.handleListSessions)
		r.Post("/events/{eventId}/sessions/current", s.handleEnsureSession)
		r.Get("/events/{eventId}/attendance.csv", s.handleExport)

		r.Get("/sessions/{sessionId}", s.handleGetSession)
		r.Get("/sessions/{sessionId}/records", s.handleListRecords)
		r.Post("/sessions/{sessionId}/extend", s.handleExtendSession)
		r.Post("/sessions/{sessionId}/submit", s.handleSubmitSession)
		r.Put("/sessions/{sessionId}/records/{studentId}", s.handleRecordStatus)
		r.Post("/sessions/{sessionId}/spot-registrations", s.handleSpotRegistration)

		r.Post("/clubs/{clubId}/coordinators", s.handleAddCoordinator)
		r.Delete("/clubs/{clubId}/coordinators/{userId}", s.handleRemoveCoordinator)
	})

	return r
}

// Auth

type principalKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		principal, err := s.svc.Principal(r.Context(), claims.UserID)
		if err != nil {
			log.Printf("load principal %d: %v", claims.UserID, err)
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func principalFromContext(ctx context.Context) auth.Principal {
	principal, _ := ctx.Value(principalKey{}).(auth.Principal)
	return principal
}

// Sessions

type openSessionRequest struct {
	Label     string     `json:"label" validate:"max=100"`
	ForceOpen bool       `json:"force_open"`
	OpenAt    *time.Time `json:"open_at"`
	CloseAt   *time.Time `json:"close_at"`
}

type ensureSessionRequest struct {
	Label string `json:"label" validate:"max=100"`
}

type extendSessionRequest struct {
	Minutes int `json:"minutes"`
}

type sessionResponse struct {
	ID             int64      `json:"id"`
	EventID        int64      `json:"event_id"`
	Label          string     `json:"label"`
	State          string     `json:"state"`
	AttendanceCode string     `json:"attendance_code"`
	CreatedBy      int64      `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	OpenAt         *time.Time `json:"open_at"`
	CloseAt        *time.Time `json:"close_at"`
	Locked         bool       `json:"locked"`
	SubmittedBy    *int64     `json:"submitted_by"`
	SubmittedAt    *time.Time `json:"submitted_at"`
}

func toSessionResponse(session attendance.Session, now time.Time) sessionResponse {
	return sessionResponse{
		ID:             session.ID,
		EventID:        session.EventID,
		Label:          session.Label,
		State:          string(session.State(now)),
		AttendanceCode: session.AttendanceCode,
		CreatedBy:      session.CreatedBy,
		CreatedAt:      session.CreatedAt,
		OpenAt:         session.OpenAt,
		CloseAt:        session.CloseAt,
		Locked:         session.Locked,
		SubmittedBy:    session.SubmittedBy,
		SubmittedAt:    session.SubmittedAt,
	}
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventId")
	if !ok {
		return
	}
	var req openSessionRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	session, err := s.svc.OpenSession(r.Context(), principalFromContext(r.Context()), attendance.OpenSessionParams{
		EventID:   eventID,
		Label:     req.Label,
		ForceOpen: req.ForceOpen,
		OpenAt:    req.OpenAt,
		CloseAt:   req.CloseAt,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(session, time.Now()))
}

func (s *Server) handleEnsureSession(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventId")
	if !ok {
		return
	}
	var req ensureSessionRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	session, err := s.svc.EnsureSession(r.Context(), principalFromContext(r.Context()), eventID, req.Label)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session, time.Now()))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventId")
	if !ok {
		return
	}
	sessions, err := s.svc.ListSessions(r.Context(), principalFromContext(r.Context()), eventID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	now := time.Now()
	out := make([]sessionResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, toSessionResponse(session, now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionId")
	if !ok {
		return
	}
	session, err := s.svc.GetSession(r.Context(), principalFromContext(r.Context()), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session, time.Now()))
}

func (s *Server) handleExtendSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionId")
	if !ok {
		return
	}
	var req extendSessionRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	session, err := s.svc.ExtendSession(r.Context(), principalFromContext(r.Context()), sessionID, req.Minutes)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session, time.Now()))
}

func (s *Server) handleSubmitSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionId")
	if !ok {
		return
	}
	session, err := s.svc.SubmitSession(r.Context(), principalFromContext(r.Context()), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session, time.Now()))
}

// Records

type recordStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type spotRegistrationRequest struct {
	StudentID int64  `json:"student_id" validate:"required,gt=0"`
	Status    string `json:"status" validate:"required"`
}

type recordResponse struct {
	ID        int64     `json:"id"`
	SessionID *int64    `json:"session_id"`
	StudentID int64     `json:"student_id"`
	Status    string    `json:"status"`
	RefCode   string    `json:"ref_code"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Created   bool      `json:"created"`
}

type rowResponse struct {
	StudentID  int64     `json:"student_id"`
	RollNo     string    `json:"roll_no"`
	Name       string    `json:"name"`
	Department string    `json:"department"`
	Status     string    `json:"status"`
	RecordedAt time.Time `json:"recorded_at"`
	SessionID  int64     `json:"session_id"`
	Session    string    `json:"session"`
	RefCode    string    `json:"ref_code"`
}

func toRecordResponse(result attendance.RecordResult) recordResponse {
	return recordResponse{
		ID:        result.Record.ID,
		SessionID: result.Record.SessionID,
		StudentID: result.Record.StudentID,
		Status:    string(result.Record.Status),
		RefCode:   result.Record.RefCode,
		CreatedAt: result.Record.CreatedAt,
		UpdatedAt: result.Record.UpdatedAt,
		Created:   result.Created,
	}
}

func (s *Server) handleRecordStatus(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionId")
	if !ok {
		return
	}
	studentID, ok := pathID(w, r, "studentId")
	if !ok {
		return
	}
	var req recordStatusRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	status, err := attendance.ParseStatus(req.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	result, err := s.svc.RecordStatus(r.Context(), principalFromContext(r.Context()), sessionID, studentID, status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	code := http.StatusOK
	if result.Created {
		code = http.StatusCreated
	}
	writeJSON(w, code, toRecordResponse(result))
}

func (s *Server) handleSpotRegistration(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionId")
	if !ok {
		return
	}
	var req spotRegistrationRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	status, err := attendance.ParseStatus(req.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	result, err := s.svc.SpotRegister(r.Context(), principalFromContext(r.Context()), sessionID, req.StudentID, status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordResponse(result))
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionId")
	if !ok {
		return
	}
	rows, err := s.svc.ListRecords(r.Context(), principalFromContext(r.Context()), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]rowResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowResponse{
			StudentID:  row.StudentID,
			RollNo:     row.RollNo,
			Name:       row.Name,
			Department: row.Department,
			Status:     string(row.Status),
			RecordedAt: row.RecordedAt,
			SessionID:  row.SessionID,
			Session:    row.SessionLabel,
			RefCode:    row.RefCode,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventId")
	if !ok {
		return
	}
	var sessionID *int64
	if raw := r.URL.Query().Get("session"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, attendance.CodeInvalidID)
			return
		}
		sessionID = &id
	}
	event, rows, err := s.svc.Export(r.Context(), principalFromContext(r.Context()), eventID, sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, attendance.ExportFilename(event, sessionID)))
	w.WriteHeader(http.StatusOK)
	if err := attendance.WriteCSV(w, rows); err != nil {
		log.Printf("write csv for event %d: %v", eventID, err)
	}
}

// Clubs

type addCoordinatorRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

func (s *Server) handleAddCoordinator(w http.ResponseWriter, r *http.Request) {
	clubID, ok := pathID(w, r, "clubId")
	if !ok {
		return
	}
	var req addCoordinatorRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if err := s.svc.AddClubCoordinator(r.Context(), principalFromContext(r.Context()), clubID, req.UserID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"club_id": clubID, "user_id": req.UserID})
}

func (s *Server) handleRemoveCoordinator(w http.ResponseWriter, r *http.Request) {
	clubID, ok := pathID(w, r, "clubId")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	if err := s.svc.RemoveClubCoordinator(r.Context(), principalFromContext(r.Context()), clubID, userID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Verification

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.Verify(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleVerifyQR(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.Verify(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	png, err := qrcode.Encode(s.verifyURL(v.RefCode), qrcode.Medium, qrSize)
	if err != nil {
		log.Printf("qr for %s: %v", v.RefCode, err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (s *Server) verifyURL(code string) string {
	return s.cfg.PublicBaseURL + "/verify/" + code
}

// Utilities

func statusForKind(kind attendance.Kind) int {
	switch kind {
	case attendance.KindInvalid:
		return http.StatusBadRequest
	case attendance.KindNotFound:
		return http.StatusNotFound
	case attendance.KindForbidden:
		return http.StatusForbidden
	case attendance.KindState, attendance.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	if e, ok := attendance.AsError(err); ok {
		writeError(w, statusForKind(e.Kind), e.Code)
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	log.Printf("request failed: %v", err)
	writeError(w, http.StatusInternalServerError, "server_error")
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, attendance.CodeInvalidID)
		return 0, false
	}
	return id, true
}

// decodeAndValidate accepts an empty body as the zero request.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if err := decodeJSON(r, out); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return false
	}
	if err := s.validate.Struct(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return false
	}
	return true
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
