package redis

import (
	"context"
	"time"

	"github.com/brightsprouts/daycare-hub/internal/domain/student"
)

// StudentCache is a read-through cache over the student directory. The
// recording path resolves the student on every submission, so directory reads
// dominate; entries are invalidated on any directory write.
type StudentCache struct {
	cache   *Cache
	backing student.Repository
	ttl     time.Duration
}

// NewStudentCache wraps a student repository with Redis caching.
func NewStudentCache(cache *Cache, backing student.Repository) *StudentCache {
	return &StudentCache{
		cache:   cache,
		backing: backing,
		ttl:     TTLStudentCache,
	}
}

// Create stores a new student and primes the cache.
func (s *StudentCache) Create(ctx context.Context, st *student.Student) error {
	if err := s.backing.Create(ctx, st); err != nil {
		return err
	}
	_ = s.cache.Set(ctx, StudentKey(st.ID), st, s.ttl)
	return nil
}

// GetByID returns a student, from cache when possible.
func (s *StudentCache) GetByID(ctx context.Context, id string) (*student.Student, error) {
	var cached student.Student
	if err := s.cache.Get(ctx, StudentKey(id), &cached); err == nil {
		return &cached, nil
	}
	// On miss or cache trouble, fall through to the backing store. Cache
	// failures must not take the directory down.

	st, err := s.backing.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, StudentKey(id), st, s.ttl)
	return st, nil
}

// GetByGuardianID is served by the backing store; the guardian index is not
// cached.
func (s *StudentCache) GetByGuardianID(ctx context.Context, guardianID string) ([]*student.Student, error) {
	return s.backing.GetByGuardianID(ctx, guardianID)
}

// List is served by the backing store.
func (s *StudentCache) List(ctx context.Context) ([]*student.Student, error) {
	return s.backing.List(ctx)
}

// Flush drops every cached directory entry. Run after a schema migration:
// entries serialized under the previous shape must not deserialize into the
// new one.
func (s *StudentCache) Flush(ctx context.Context) error {
	return s.cache.DeleteByPattern(ctx, PrefixStudent+"*")
}

// SetActive flips the active flag and invalidates the cache entry. The
// validator must see the flip immediately; a stale active flag would let a
// deactivated student accept events for up to the TTL.
func (s *StudentCache) SetActive(ctx context.Context, id string, active bool) error {
	if err := s.backing.SetActive(ctx, id, active); err != nil {
		return err
	}
	return s.cache.Delete(ctx, StudentKey(id))
}
