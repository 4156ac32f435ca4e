package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightsprouts/daycare-hub/internal/application/command"
	"github.com/brightsprouts/daycare-hub/internal/application/query"
	"github.com/brightsprouts/daycare-hub/internal/domain/attendance"
	"github.com/brightsprouts/daycare-hub/internal/domain/shared"
	"github.com/brightsprouts/daycare-hub/internal/domain/student"
)

// ─────────────────────────────────────────────────────────────────────────────
// In-memory repositories
// ─────────────────────────────────────────────────────────────────────────────

type memStudentRepo struct {
	students map[string]*student.Student
}

func (r *memStudentRepo) Create(_ context.Context, s *student.Student) error {
	if _, exists := r.students[s.ID]; exists {
		return shared.ErrStudentAlreadyExists
	}
	r.students[s.ID] = s
	return nil
}

func (r *memStudentRepo) GetByID(_ context.Context, id string) (*student.Student, error) {
	s, ok := r.students[id]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	return s, nil
}

func (r *memStudentRepo) GetByGuardianID(_ context.Context, guardianID string) ([]*student.Student, error) {
	var out []*student.Student
	for _, s := range r.students {
		if s.GuardianByID(guardianID) != nil {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memStudentRepo) List(_ context.Context) ([]*student.Student, error) {
	var out []*student.Student
	for _, s := range r.students {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memStudentRepo) SetActive(_ context.Context, id string, active bool) error {
	s, ok := r.students[id]
	if !ok {
		return shared.ErrStudentNotFound
	}
	s.Active = active
	return nil
}

type memEventRepo struct {
	events []attendance.Event
	seq    int64
}

func (r *memEventRepo) Append(_ context.Context, e attendance.Event) (attendance.Event, error) {
	r.seq++
	e.Seq = r.seq
	e.CreatedAt = time.Now()
	r.events = append(r.events, e)
	return e, nil
}

func (r *memEventRepo) GetByID(_ context.Context, id string) (attendance.Event, error) {
	for _, e := range r.events {
		if e.ID == id {
			return e, nil
		}
	}
	return attendance.Event{}, shared.ErrEventNotFound
}

func (r *memEventRepo) FindByStudent(_ context.Context, studentID string) ([]attendance.Event, error) {
	var out []attendance.Event
	for _, e := range r.events {
		if e.StudentID == studentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memEventRepo) FindByGuardian(_ context.Context, guardianID string) ([]attendance.Event, error) {
	var out []attendance.Event
	for _, e := range r.events {
		if e.GuardianID == guardianID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memEventRepo) FindByFilter(_ context.Context, f attendance.Filter) ([]attendance.Event, error) {
	var out []attendance.Event
	for _, e := range r.events {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memEventRepo) FindLatestBefore(_ context.Context, studentID string, before time.Time) (attendance.Event, bool, error) {
	var latest attendance.Event
	found := false
	for _, e := range r.events {
		if e.StudentID != studentID || !e.OccurredAt.Before(before) {
			continue
		}
		if !found || e.After(latest) {
			latest = e
			found = true
		}
	}
	return latest, found, nil
}

func (r *memEventRepo) FindEarliestAfter(_ context.Context, studentID string, after time.Time) (attendance.Event, bool, error) {
	var earliest attendance.Event
	found := false
	for _, e := range r.events {
		if e.StudentID != studentID || !e.OccurredAt.After(after) {
			continue
		}
		if !found || earliest.After(e) {
			earliest = e
			found = true
		}
	}
	return earliest, found, nil
}

func (r *memEventRepo) DeleteByID(_ context.Context, id string) error {
	for i, e := range r.events {
		if e.ID == id {
			r.events = append(r.events[:i], r.events[i+1:]...)
			return nil
		}
	}
	return shared.ErrEventNotFound
}

func (r *memEventRepo) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	kept := r.events[:0]
	var removed int64
	for _, e := range r.events {
		if e.OccurredAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return removed, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

func newTestServer(t *testing.T) (*Server, *memStudentRepo, *memEventRepo) {
	t.Helper()

	students := &memStudentRepo{students: make(map[string]*student.Student)}
	events := &memEventRepo{}

	students.students["s-1"] = &student.Student{
		ID:     "s-1",
		Active: true,
		Profile: student.Profile{
			FirstName: "Thandi",
			LastName:  "Mokoena",
		},
		Guardians: []student.Guardian{
			{ID: "g-1", FullName: "Naledi Mokoena", Email: "naledi@example.com"},
		},
	}

	deps := Dependencies{
		RecordEvent:      command.NewRecordEventHandler(students, events),
		DeleteEvent:      command.NewDeleteEventHandler(events),
		RegisterStudent:  command.NewRegisterStudentHandler(students),
		SetStudentActive: command.NewSetStudentActiveHandler(students),
		ListEvents:       query.NewListEventsHandler(events),
		GetEvent:         query.NewGetEventHandler(events),
		History:          query.NewEventHistoryHandler(events),
		Directory:        query.NewStudentDirectoryHandler(students),
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	config := DefaultConfig()
	config.RateLimitPerMinute = 0

	return NewServer(config, deps), students, events
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, JSONResponse) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var envelope JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return rec, envelope
}

func recordBody(eventType, occurredAt string) map[string]interface{} {
	body := map[string]interface{}{
		"student_id":  "s-1",
		"guardian_id": "g-1",
		"type":        eventType,
	}
	if occurredAt != "" {
		body["occurred_at"] = occurredAt
	}
	return body
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestRecordEvent_Created(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec, envelope := doJSON(t, s, http.MethodPost, "/api/v1/events", recordBody("dropoff", "2026-03-09T08:00:00Z"))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, envelope.Success)

	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, "dropoff", data["type"])
	assert.Equal(t, "Thandi Mokoena", data["student_name"])
	assert.Equal(t, float64(1), data["seq"])
}

func TestRecordEvent_AlternationConflict(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec, _ := doJSON(t, s, http.MethodPost, "/api/v1/events", recordBody("dropoff", "2026-03-09T08:00:00Z"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, envelope := doJSON(t, s, http.MethodPost, "/api/v1/events", recordBody("dropoff", "2026-03-09T09:00:00Z"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "consecutive_event", envelope.Error.Code)
}

func TestRecordEvent_FirstPickUpConflict(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec, envelope := doJSON(t, s, http.MethodPost, "/api/v1/events", recordBody("pickup", "2026-03-09T16:00:00Z"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "first_event_pickup", envelope.Error.Code)
}

func TestRecordEvent_UnrelatedGuardian(t *testing.T) {
	s, _, _ := newTestServer(t)

	body := recordBody("dropoff", "")
	body["guardian_id"] = "g-stranger"

	rec, envelope := doJSON(t, s, http.MethodPost, "/api/v1/events", body)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "guardian_not_related", envelope.Error.Code)
}

func TestRecordEvent_InactiveStudent(t *testing.T) {
	s, students, _ := newTestServer(t)
	students.students["s-1"].Active = false

	rec, envelope := doJSON(t, s, http.MethodPost, "/api/v1/events", recordBody("dropoff", ""))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "student_inactive", envelope.Error.Code)
}

func TestRecordEvent_ValidationFailures(t *testing.T) {
	s, _, _ := newTestServer(t)

	// Missing type field.
	rec, envelope := doJSON(t, s, http.MethodPost, "/api/v1/events", map[string]interface{}{
		"student_id": "s-1", "guardian_id": "g-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", envelope.Error.Code)

	// Unknown event type is rejected before the handler runs.
	rec, envelope = doJSON(t, s, http.MethodPost, "/api/v1/events", recordBody("naptime", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", envelope.Error.Code)

	// Malformed timestamp.
	rec, envelope = doJSON(t, s, http.MethodPost, "/api/v1/events", recordBody("dropoff", "yesterday"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_timestamp", envelope.Error.Code)
}

func TestGetEvent_NotFound(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec, envelope := doJSON(t, s, http.MethodGet, "/api/v1/events/nope", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", envelope.Error.Code)
}

func TestListEvents_FilterByType(t *testing.T) {
	s, _, _ := newTestServer(t)

	for _, b := range []map[string]interface{}{
		recordBody("dropoff", "2026-03-09T08:00:00Z"),
		recordBody("pickup", "2026-03-09T16:00:00Z"),
	} {
		rec, _ := doJSON(t, s, http.MethodPost, "/api/v1/events", b)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, envelope := doJSON(t, s, http.MethodGet, "/api/v1/events?type=pickup&start=2026-03-09", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, envelope.Meta.TotalCount)

	rec, envelope = doJSON(t, s, http.MethodGet, "/api/v1/events?type=naptime", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", envelope.Error.Code)
}

func TestDeleteEvent_InteriorNeedsForce(t *testing.T) {
	s, _, events := newTestServer(t)

	for _, b := range []map[string]interface{}{
		recordBody("dropoff", "2026-03-09T08:00:00Z"),
		recordBody("pickup", "2026-03-09T12:00:00Z"),
		recordBody("dropoff", "2026-03-09T13:00:00Z"),
	} {
		rec, _ := doJSON(t, s, http.MethodPost, "/api/v1/events", b)
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	interior := events.events[1].ID

	rec, envelope := doJSON(t, s, http.MethodDelete, "/api/v1/events/"+interior, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "consecutive_event", envelope.Error.Code)

	rec, _ = doJSON(t, s, http.MethodDelete, "/api/v1/events/"+interior+"?force=true", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStudentHistory(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec, _ := doJSON(t, s, http.MethodPost, "/api/v1/events", recordBody("dropoff", "2026-03-09T08:00:00Z"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, envelope := doJSON(t, s, http.MethodGet, "/api/v1/students/s-1/events", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, envelope.Meta.TotalCount)

	rec, envelope = doJSON(t, s, http.MethodGet, "/api/v1/guardians/g-1/events", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, envelope.Meta.TotalCount)
}

func TestGuardianHistory_UnknownGuardian(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec, envelope := doJSON(t, s, http.MethodGet, "/api/v1/guardians/g-nobody/events", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "not_found", envelope.Error.Code)
}

// The ledger must reject a backdated event that would sit same-typed next to
// its chronological successor, not just its predecessor.
func TestRecordEvent_BackdatedConflict(t *testing.T) {
	s, _, events := newTestServer(t)

	rec, _ := doJSON(t, s, http.MethodPost, "/api/v1/events", recordBody("dropoff", "2026-03-09T08:00:00Z"))
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = doJSON(t, s, http.MethodPost, "/api/v1/events", recordBody("pickup", "2026-03-09T17:00:00Z"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, envelope := doJSON(t, s, http.MethodPost, "/api/v1/events", recordBody("pickup", "2026-03-09T09:00:00Z"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "consecutive_event", envelope.Error.Code)

	assert.Len(t, events.events, 2)
}

func TestRegisterStudent_AndSetActive(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec, envelope := doJSON(t, s, http.MethodPost, "/api/v1/students", map[string]interface{}{
		"first_name":    "Sipho",
		"last_name":     "Dlamini",
		"date_of_birth": "2022-11-03",
		"guardians": []map[string]interface{}{
			{"full_name": "Zanele Dlamini", "email": "zanele@example.com"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	data := envelope.Data.(map[string]interface{})
	id := data["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, true, data["active"])

	rec, _ = doJSON(t, s, http.MethodPatch, "/api/v1/students/"+id+"/active", map[string]interface{}{"active": false})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, envelope = doJSON(t, s, http.MethodGet, "/api/v1/students/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, envelope.Data.(map[string]interface{})["active"])
}

func TestRegisterStudent_RequiresGuardian(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec, envelope := doJSON(t, s, http.MethodPost, "/api/v1/students", map[string]interface{}{
		"first_name": "Sipho",
		"last_name":  "Dlamini",
		"guardians":  []map[string]interface{}{},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", envelope.Error.Code)
}

func TestHealthEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec, envelope := doJSON(t, s, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, envelope.Success)
}
