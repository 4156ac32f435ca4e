package command

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightsprouts/daycare-hub/internal/domain/attendance"
	"github.com/brightsprouts/daycare-hub/internal/domain/shared"
	"github.com/brightsprouts/daycare-hub/internal/domain/student"
)

// ─────────────────────────────────────────────────────────────────────────────
// In-memory fakes
// ─────────────────────────────────────────────────────────────────────────────

type memStudentRepo struct {
	mu       sync.Mutex
	students map[string]*student.Student
}

func newMemStudentRepo(students ...*student.Student) *memStudentRepo {
	r := &memStudentRepo{students: make(map[string]*student.Student)}
	for _, s := range students {
		r.students[s.ID] = s
	}
	return r
}

func (r *memStudentRepo) Create(_ context.Context, s *student.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.students[s.ID] = s
	return nil
}

func (r *memStudentRepo) GetByID(_ context.Context, id string) (*student.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.students[id]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	return s, nil
}

func (r *memStudentRepo) GetByGuardianID(_ context.Context, guardianID string) ([]*student.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*student.Student
	for _, s := range r.students {
		if s.GuardianByID(guardianID) != nil {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memStudentRepo) List(_ context.Context) ([]*student.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*student.Student, 0, len(r.students))
	for _, s := range r.students {
		out = append(out, s)
	}
	return out, nil
}

func (r *memStudentRepo) SetActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.students[id]
	if !ok {
		return shared.ErrStudentNotFound
	}
	s.Active = active
	return nil
}

type memEventRepo struct {
	mu     sync.Mutex
	events []attendance.Event
	seq    int64
}

func (r *memEventRepo) Append(_ context.Context, e attendance.Event) (attendance.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	e.Seq = r.seq
	e.CreatedAt = time.Now().UTC()
	r.events = append(r.events, e)
	return e, nil
}

func (r *memEventRepo) GetByID(_ context.Context, id string) (attendance.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id {
			return e, nil
		}
	}
	return attendance.Event{}, shared.ErrEventNotFound
}

func (r *memEventRepo) FindByStudent(_ context.Context, studentID string) ([]attendance.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []attendance.Event
	for _, e := range r.events {
		if e.StudentID == studentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memEventRepo) FindByGuardian(_ context.Context, guardianID string) ([]attendance.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []attendance.Event
	for _, e := range r.events {
		if e.GuardianID == guardianID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memEventRepo) FindByFilter(_ context.Context, f attendance.Filter) ([]attendance.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []attendance.Event
	for _, e := range r.events {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memEventRepo) FindLatestBefore(_ context.Context, studentID string, before time.Time) (attendance.Event, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
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
	r.mu.Lock()
	defer r.mu.Unlock()
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
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.events {
		if e.ID == id {
			r.events = append(r.events[:i], r.events[i+1:]...)
			return nil
		}
	}
	return shared.ErrEventNotFound
}

func (r *memEventRepo) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
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

func enrolledStudent() *student.Student {
	return &student.Student{
		ID:     "student-1",
		Active: true,
		Profile: student.Profile{
			FirstName: "Thandi",
			LastName:  "Mokoena",
		},
		Guardians: []student.Guardian{
			{ID: "guardian-1", FullName: "Naledi Mokoena", Relationship: "mother"},
			{ID: "guardian-2", FullName: "Sipho Mokoena", Relationship: "father"},
		},
	}
}

func testHandler(t *testing.T) (*RecordEventHandler, *memEventRepo) {
	t.Helper()
	events := &memEventRepo{}
	h := NewRecordEventHandler(newMemStudentRepo(enrolledStudent()), events)
	return h, events
}

func at(hour int) time.Time {
	return time.Date(2026, time.March, 9, hour, 0, 0, 0, time.UTC)
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestRecordEvent_FirstDropOff(t *testing.T) {
	h, _ := testHandler(t)

	res, err := h.Handle(context.Background(), RecordEventCommand{
		StudentID:  "student-1",
		GuardianID: "guardian-1",
		Type:       "dropoff",
		OccurredAt: at(8),
		CapturedBy: "staff-7",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.Event.ID)
	assert.Equal(t, int64(1), res.Event.Seq)
	assert.Equal(t, attendance.EventDropOff, res.Event.Type)
	assert.Equal(t, "Thandi Mokoena", res.Event.StudentName)
	assert.Equal(t, "Naledi Mokoena", res.Event.GuardianName)
}

func TestRecordEvent_FirstPickUpRejected(t *testing.T) {
	h, _ := testHandler(t)

	_, err := h.Handle(context.Background(), RecordEventCommand{
		StudentID:  "student-1",
		GuardianID: "guardian-1",
		Type:       "pickup",
		OccurredAt: at(8),
	})
	assert.ErrorIs(t, err, shared.ErrFirstEventPickUp)
}

func TestRecordEvent_AlternationEnforced(t *testing.T) {
	h, _ := testHandler(t)
	ctx := context.Background()

	submit := func(typ string, hour int) error {
		_, err := h.Handle(ctx, RecordEventCommand{
			StudentID: "student-1", GuardianID: "guardian-1",
			Type: typ, OccurredAt: at(hour),
		})
		return err
	}

	require.NoError(t, submit("dropoff", 8))
	assert.ErrorIs(t, submit("dropoff", 9), shared.ErrConsecutiveSameType)
	require.NoError(t, submit("pickup", 12))
	assert.ErrorIs(t, submit("pickup", 13), shared.ErrConsecutiveSameType)
	require.NoError(t, submit("dropoff", 13))
}

// A backdated event must alternate with its chronological successor too,
// not only with its predecessor. Otherwise an interior insert would leave
// two adjacent same-typed events in the stored ledger.
func TestRecordEvent_BackdatedInsertRejected(t *testing.T) {
	h, events := testHandler(t)
	ctx := context.Background()

	submit := func(typ string, hour int) error {
		_, err := h.Handle(ctx, RecordEventCommand{
			StudentID: "student-1", GuardianID: "guardian-1",
			Type: typ, OccurredAt: at(hour),
		})
		return err
	}

	require.NoError(t, submit("dropoff", 8))
	require.NoError(t, submit("pickup", 17))

	// Backdated into the custody window: either type collides with a
	// neighbour.
	assert.ErrorIs(t, submit("pickup", 9), shared.ErrConsecutiveSameType)
	assert.ErrorIs(t, submit("dropoff", 9), shared.ErrConsecutiveSameType)

	// Backdated before the opening drop-off.
	assert.ErrorIs(t, submit("dropoff", 7), shared.ErrConsecutiveSameType)
	assert.ErrorIs(t, submit("pickup", 7), shared.ErrFirstEventPickUp)

	events.mu.Lock()
	defer events.mu.Unlock()
	require.Len(t, events.events, 2)
	assert.Equal(t, attendance.EventDropOff, events.events[0].Type)
	assert.Equal(t, attendance.EventPickUp, events.events[1].Type)
}

func TestRecordEvent_UnknownStudent(t *testing.T) {
	h, _ := testHandler(t)

	_, err := h.Handle(context.Background(), RecordEventCommand{
		StudentID: "nobody", GuardianID: "guardian-1", Type: "dropoff",
	})
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)
}

func TestRecordEvent_UnrelatedGuardian(t *testing.T) {
	h, _ := testHandler(t)

	_, err := h.Handle(context.Background(), RecordEventCommand{
		StudentID: "student-1", GuardianID: "stranger", Type: "dropoff",
	})
	assert.ErrorIs(t, err, shared.ErrGuardianNotRelated)
}

func TestRecordEvent_InactiveStudent(t *testing.T) {
	events := &memEventRepo{}
	rec := enrolledStudent()
	rec.Active = false
	h := NewRecordEventHandler(newMemStudentRepo(rec), events)

	_, err := h.Handle(context.Background(), RecordEventCommand{
		StudentID: "student-1", GuardianID: "guardian-1", Type: "dropoff",
	})
	assert.ErrorIs(t, err, shared.ErrStudentInactive)
}

func TestRecordEvent_InvalidType(t *testing.T) {
	h, _ := testHandler(t)

	_, err := h.Handle(context.Background(), RecordEventCommand{
		StudentID: "student-1", GuardianID: "guardian-1", Type: "visit",
	})
	assert.ErrorIs(t, err, shared.ErrInvalidEventType)
}

// Concurrent submissions for the same student must serialize through the
// per-student lock; with defaulted timestamps exactly one of the racing
// drop-offs lands, the rest see it as their predecessor.
func TestRecordEvent_ConcurrentSameStudentSerialized(t *testing.T) {
	h, events := testHandler(t)

	var tick int64
	var clockMu sync.Mutex
	h.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		tick++
		return at(8).Add(time.Duration(tick) * time.Second)
	}

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.Handle(context.Background(), RecordEventCommand{
				StudentID: "student-1", GuardianID: "guardian-1", Type: "dropoff",
			})
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
		} else {
			assert.ErrorIs(t, err, shared.ErrConsecutiveSameType)
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Len(t, events.events, 1)
}

func TestDeleteEvent_TailAndInterior(t *testing.T) {
	h, events := testHandler(t)
	ctx := context.Background()

	var ids []string
	for i, typ := range []string{"dropoff", "pickup", "dropoff", "pickup"} {
		res, err := h.Handle(ctx, RecordEventCommand{
			StudentID: "student-1", GuardianID: "guardian-1",
			Type: typ, OccurredAt: at(8 + i),
		})
		require.NoError(t, err)
		ids = append(ids, res.Event.ID)
	}

	del := NewDeleteEventHandler(events)

	// Interior deletion would leave pickup(9) next to dropoff(10) intact
	// but dropoff(8) adjacent to dropoff(10) if we removed pickup(9).
	err := del.Handle(ctx, DeleteEventCommand{EventID: ids[1]})
	assert.ErrorIs(t, err, shared.ErrConsecutiveSameType)

	// Tail deletion is always safe.
	require.NoError(t, del.Handle(ctx, DeleteEventCommand{EventID: ids[3]}))

	remaining, err := events.FindByStudent(ctx, "student-1")
	require.NoError(t, err)
	sort.Slice(remaining, func(i, j int) bool { return remaining[j].After(remaining[i]) })
	require.Len(t, remaining, 3)
	assert.Equal(t, attendance.EventDropOff, remaining[2].Type)

	// Force bypasses the gap check.
	require.NoError(t, del.Handle(ctx, DeleteEventCommand{EventID: ids[1], Force: true}))
}
