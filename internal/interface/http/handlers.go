package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/brightsprouts/daycare-hub/internal/application/command"
	"github.com/brightsprouts/daycare-hub/internal/application/query"
	"github.com/brightsprouts/daycare-hub/internal/domain/attendance"
	"github.com/brightsprouts/daycare-hub/internal/domain/shared"
	"github.com/brightsprouts/daycare-hub/internal/domain/student"
)

var validate = validator.New()

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not_found", "Unknown endpoint")
		return
	}

	info := map[string]interface{}{
		"name":    "Daycare Hub API",
		"version": "v1",
		"endpoints": map[string]string{
			"health":   "/health",
			"events":   "/api/v1/events",
			"students": "/api/v1/students",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT LEDGER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// recordEventRequest is the POST /api/v1/events body.
type recordEventRequest struct {
	StudentID  string `json:"student_id" validate:"required"`
	GuardianID string `json:"guardian_id" validate:"required"`
	Type       string `json:"type" validate:"required,oneof=dropoff pickup"`
	OccurredAt string `json:"occurred_at,omitempty" validate:"omitempty"`
	CapturedBy string `json:"captured_by,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// eventView is the wire shape of one custody event.
type eventView struct {
	ID           string    `json:"id"`
	StudentID    string    `json:"student_id"`
	StudentName  string    `json:"student_name"`
	GuardianID   string    `json:"guardian_id"`
	GuardianName string    `json:"guardian_name"`
	Type         string    `json:"type"`
	OccurredAt   time.Time `json:"occurred_at"`
	Seq          int64     `json:"seq"`
	CapturedBy   string    `json:"captured_by,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toEventView(e attendance.Event) eventView {
	return eventView{
		ID:           e.ID,
		StudentID:    e.StudentID,
		StudentName:  e.StudentName,
		GuardianID:   e.GuardianID,
		GuardianName: e.GuardianName,
		Type:         string(e.Type),
		OccurredAt:   e.OccurredAt,
		Seq:          e.Seq,
		CapturedBy:   e.CapturedBy,
		Notes:        e.Notes,
		CreatedAt:    e.CreatedAt,
	}
}

func toEventViews(events []attendance.Event) []eventView {
	views := make([]eventView, len(events))
	for i, e := range events {
		views[i] = toEventView(e)
	}
	return views
}

// handleRecordEvent handles POST /api/v1/events.
func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	var req recordEventRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	var occurredAt time.Time
	if req.OccurredAt != "" {
		t, err := time.Parse(time.RFC3339, req.OccurredAt)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_timestamp", "occurred_at must be RFC 3339")
			return
		}
		occurredAt = t
	}

	result, err := s.deps.RecordEvent.Handle(r.Context(), command.RecordEventCommand{
		StudentID:  req.StudentID,
		GuardianID: req.GuardianID,
		Type:       req.Type,
		OccurredAt: occurredAt,
		CapturedBy: req.CapturedBy,
		Notes:      req.Notes,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toEventView(result.Event))
}

// handleListEvents handles GET /api/v1/events.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := query.ListEventsQuery{
		StudentID:  getQueryParam(r, "student_id", ""),
		GuardianID: getQueryParam(r, "guardian_id", ""),
		Type:       getQueryParam(r, "type", ""),
		Limit:      getQueryParamInt(r, "limit", 0),
	}

	for _, bound := range []struct {
		param string
		dst   *time.Time
	}{
		{"start", &q.Start},
		{"end", &q.End},
	} {
		raw := r.URL.Query().Get(bound.param)
		if raw == "" {
			continue
		}
		t, err := parseTimeParam(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_timestamp", bound.param+" must be RFC 3339 or YYYY-MM-DD")
			return
		}
		*bound.dst = t
	}

	events, err := s.deps.ListEvents.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSONWithMeta(w, http.StatusOK, toEventViews(events), &ResponseMeta{TotalCount: len(events)})
}

// handleGetEvent handles GET /api/v1/events/{id}.
func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.deps.GetEvent.Handle(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toEventView(event))
}

// handleDeleteEvent handles DELETE /api/v1/events/{id}.
func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	err := s.deps.DeleteEvent.Handle(r.Context(), command.DeleteEventCommand{
		EventID: r.PathValue("id"),
		Force:   getQueryParamBool(r, "force"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleStudentHistory handles GET /api/v1/students/{id}/events.
func (s *Server) handleStudentHistory(w http.ResponseWriter, r *http.Request) {
	events, err := s.deps.History.ByStudent(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSONWithMeta(w, http.StatusOK, toEventViews(events), &ResponseMeta{TotalCount: len(events)})
}

// handleGuardianHistory handles GET /api/v1/guardians/{id}/events. An
// unknown guardian is a 404; a known guardian with no events is an empty
// list.
func (s *Server) handleGuardianHistory(w http.ResponseWriter, r *http.Request) {
	guardianID := r.PathValue("id")

	if _, err := s.deps.Directory.StudentsOfGuardian(r.Context(), guardianID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	events, err := s.deps.History.ByGuardian(r.Context(), guardianID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSONWithMeta(w, http.StatusOK, toEventViews(events), &ResponseMeta{TotalCount: len(events)})
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT DIRECTORY HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type guardianRequest struct {
	FullName     string `json:"full_name" validate:"required"`
	Relationship string `json:"relationship,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	Email        string `json:"email,omitempty" validate:"omitempty,email"`
}

type registerStudentRequest struct {
	FirstName   string            `json:"first_name" validate:"required"`
	LastName    string            `json:"last_name" validate:"required"`
	DateOfBirth string            `json:"date_of_birth,omitempty"`
	Guardians   []guardianRequest `json:"guardians" validate:"required,min=1,dive"`
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

type guardianView struct {
	ID           string `json:"id"`
	FullName     string `json:"full_name"`
	Relationship string `json:"relationship,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	Email        string `json:"email,omitempty"`
}

type studentView struct {
	ID             string         `json:"id"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	DateOfBirth    *time.Time     `json:"date_of_birth,omitempty"`
	EnrollmentYear int            `json:"enrollment_year"`
	Active         bool           `json:"active"`
	Guardians      []guardianView `json:"guardians"`
	RegisteredAt   time.Time      `json:"registered_at"`
}

func toStudentView(s *student.Student) studentView {
	guardians := make([]guardianView, len(s.Guardians))
	for i, g := range s.Guardians {
		guardians[i] = guardianView{
			ID:           g.ID,
			FullName:     g.FullName,
			Relationship: g.Relationship,
			PhoneNumber:  g.PhoneNumber,
			Email:        g.Email,
		}
	}

	view := studentView{
		ID:             s.ID,
		FirstName:      s.Profile.FirstName,
		LastName:       s.Profile.LastName,
		EnrollmentYear: s.EnrollmentYear,
		Active:         s.Active,
		Guardians:      guardians,
		RegisteredAt:   s.RegisteredAt,
	}
	if !s.Profile.DateOfBirth.IsZero() {
		dob := s.Profile.DateOfBirth
		view.DateOfBirth = &dob
	}
	return view
}

// handleRegisterStudent handles POST /api/v1/students.
func (s *Server) handleRegisterStudent(w http.ResponseWriter, r *http.Request) {
	var req registerStudentRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	cmd := command.RegisterStudentCommand{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
	if req.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", req.DateOfBirth)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_date", "date_of_birth must be YYYY-MM-DD")
			return
		}
		cmd.DateOfBirth = dob
	}
	for _, g := range req.Guardians {
		cmd.Guardians = append(cmd.Guardians, command.GuardianInput{
			FullName:     g.FullName,
			Relationship: g.Relationship,
			PhoneNumber:  g.PhoneNumber,
			Email:        g.Email,
		})
	}

	registered, err := s.deps.RegisterStudent.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toStudentView(registered))
}

// handleListStudents handles GET /api/v1/students.
func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := s.deps.Directory.List(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	views := make([]studentView, len(students))
	for i, st := range students {
		views[i] = toStudentView(st)
	}

	writeJSONWithMeta(w, http.StatusOK, views, &ResponseMeta{TotalCount: len(views)})
}

// handleGetStudent handles GET /api/v1/students/{id}.
func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	found, err := s.deps.Directory.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toStudentView(found))
}

// handleSetStudentActive handles PATCH /api/v1/students/{id}/active.
func (s *Server) handleSetStudentActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	err := s.deps.SetStudentActive.Handle(r.Context(), command.SetStudentActiveCommand{
		StudentID: r.PathValue("id"),
		Active:    req.Active,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"active": req.Active})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST DECODING & ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// decodeAndValidate decodes the JSON body into dst and runs struct validation.
// Writes the error response itself and returns false on failure.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "Request body is not valid JSON: "+err.Error())
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			writeJSONError(w, http.StatusInternalServerError, "internal_server_error", "Request validation misconfigured")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "validation_failed", validationMessage(err))
		return false
	}

	return true
}

// parseTimeParam accepts RFC 3339 timestamps or bare YYYY-MM-DD dates.
func parseTimeParam(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

// validationMessage flattens validator errors into one readable line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}

	msg := ""
	for i, fe := range verrs {
		if i > 0 {
			msg += "; "
		}
		msg += fe.Field() + " failed " + fe.Tag() + " validation"
	}
	return msg
}

// domainErrorMapping maps a domain error to an HTTP status and reason code.
// Ledger rule violations are client errors: the request was well-formed but
// the operation is not allowed in the current ledger state.
func domainErrorMapping(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrInvalidEventType):
		return http.StatusBadRequest, "invalid_event_type"
	case errors.Is(err, shared.ErrFirstEventPickUp):
		return http.StatusConflict, "first_event_pickup"
	case errors.Is(err, shared.ErrConsecutiveSameType):
		return http.StatusConflict, "consecutive_event"
	case errors.Is(err, shared.ErrGuardianNotRelated):
		return http.StatusForbidden, "guardian_not_related"
	case errors.Is(err, shared.ErrStudentInactive):
		return http.StatusConflict, "student_inactive"
	case errors.Is(err, shared.ErrStudentAlreadyExists):
		return http.StatusConflict, "student_already_exists"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsValidation(err):
		return http.StatusBadRequest, "invalid_request"
	case shared.IsExternalService(err):
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal_server_error"
	}
}

// writeDomainError translates application errors into the response envelope.
// 5xx responses get a generic message; the detail goes to the log only.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := domainErrorMapping(err)

	if status >= 500 {
		s.logger.Error("request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", getRequestID(r.Context()),
		)
		writeJSONError(w, status, code, "An unexpected error occurred")
		return
	}

	writeJSONError(w, status, code, err.Error())
}
