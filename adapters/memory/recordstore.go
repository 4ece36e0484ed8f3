// Package memory provides in-memory implementations of the ports for tests and
// the sandbox key service mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/artpar/awsapigw/domain/provision"
	"github.com/artpar/awsapigw/ports"
)

// RecordStore is an in-memory implementation of ports.RecordStore.
type RecordStore struct {
	mu      sync.RWMutex
	records map[int64]provision.Record

	insertErr error
	deleteErr error
	updateErr error
	getErr    error
}

// NewRecordStore creates a new in-memory record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[int64]provision.Record)}
}

// Get retrieves the record of a service.
func (s *RecordStore) Get(ctx context.Context, serviceID int64) (provision.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.getErr != nil {
		return provision.Record{}, s.getErr
	}
	r, ok := s.records[serviceID]
	if !ok {
		return provision.Record{}, ports.ErrNotFound
	}
	return copyRecord(r), nil
}

// Exists reports whether a record exists for the service.
func (s *RecordStore) Exists(ctx context.Context, serviceID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.getErr != nil {
		return false, s.getErr
	}
	_, ok := s.records[serviceID]
	return ok, nil
}

// InsertIfAbsent stores r unless the service already has a record.
func (s *RecordStore) InsertIfAbsent(ctx context.Context, r provision.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.insertErr != nil {
		return false, s.insertErr
	}
	if _, ok := s.records[r.ServiceID]; ok {
		return false, nil
	}
	s.records[r.ServiceID] = copyRecord(r)
	return true, nil
}

// UpdateTimestamps overwrites the mirrored timestamps.
func (s *RecordStore) UpdateTimestamps(ctx context.Context, serviceID int64, createdAt, updatedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.updateErr != nil {
		return false, s.updateErr
	}
	r, ok := s.records[serviceID]
	if !ok {
		return false, nil
	}
	s.records[serviceID] = r.WithTimestamps(createdAt, updatedAt)
	return true, nil
}

// Delete removes the record of a service.
func (s *RecordStore) Delete(ctx context.Context, serviceID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleteErr != nil {
		return false, s.deleteErr
	}
	if _, ok := s.records[serviceID]; !ok {
		return false, nil
	}
	delete(s.records, serviceID)
	return true, nil
}

// List returns records ordered by service ID. A non-positive limit returns all.
func (s *RecordStore) List(ctx context.Context, limit, offset int) ([]provision.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if offset > len(ids) {
		offset = len(ids)
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}

	result := make([]provision.Record, 0, len(ids))
	for _, id := range ids {
		result = append(result, copyRecord(s.records[id]))
	}
	return result, nil
}

// Ping always succeeds.
func (s *RecordStore) Ping(ctx context.Context) error {
	return nil
}

// Len returns the number of stored records.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// SetInsertError makes InsertIfAbsent fail with err (nil clears).
func (s *RecordStore) SetInsertError(err error) { s.setErr(&s.insertErr, err) }

// SetDeleteError makes Delete fail with err (nil clears).
func (s *RecordStore) SetDeleteError(err error) { s.setErr(&s.deleteErr, err) }

// SetUpdateError makes UpdateTimestamps fail with err (nil clears).
func (s *RecordStore) SetUpdateError(err error) { s.setErr(&s.updateErr, err) }

// SetGetError makes Get and Exists fail with err (nil clears).
func (s *RecordStore) SetGetError(err error) { s.setErr(&s.getErr, err) }

func (s *RecordStore) setErr(field *error, err error) {
	s.mu.Lock()
	*field = err
	s.mu.Unlock()
}

func copyRecord(r provision.Record) provision.Record {
	if r.UsagePlans != nil {
		r.UsagePlans = append([]string(nil), r.UsagePlans...)
	}
	return r
}

// Ensure interface compliance.
var _ ports.RecordStore = (*RecordStore)(nil)
