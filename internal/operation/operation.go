// Package operation records upload requests. An Operation moves through a
// linear lifecycle owned by the request that created it:
//
//	uploading(0..n-1) → fetching_table → notifying → done | failed.
//
// fetching_table is skipped when no spreadsheet is configured. Only finished
// operations are handed to a Store, and a stored record is never changed.
// The store keeps a bounded window of recent requests for operators.
package operation

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomasbasham/drive-uploader/internal/storage"
)

// Status represents the lifecycle state of an operation.
type Status string

const (
	StatusUploading     Status = "uploading"
	StatusFetchingTable Status = "fetching_table"
	StatusNotifying     Status = "notifying"
	StatusDone          Status = "done"
	StatusFailed        Status = "failed"
)

// Finished reports whether s is a terminal status.
func (s Status) Finished() bool {
	return s == StatusDone || s == StatusFailed
}

// DefaultCapacity is the number of finished operations a MemoryStore keeps
// when no capacity is given.
const DefaultCapacity = 1000

var (
	// ErrNotFound is returned for unknown or evicted operation IDs.
	ErrNotFound = errors.New("operation not found")

	// ErrNotFinished is returned when an in-flight operation is recorded.
	ErrNotFinished = errors.New("operation not finished")
)

// Operation represents a single upload request.
type Operation struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Files     []string  `json:"files"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// FileIndex is the last file the request started uploading.
	FileIndex int `json:"file_index"`

	// Results lists the created objects once the operation is done.
	Results []storage.UploadResult `json:"results,omitempty"`

	// Error is non-empty if the operation reached StatusFailed.
	Error string `json:"error,omitempty"`

	now func() time.Time
}

// Begin starts a new operation for files. The returned value belongs to the
// caller until it is recorded.
func Begin(files []string) *Operation {
	return begin(files, time.Now)
}

func begin(files []string, now func() time.Time) *Operation {
	t := now()
	return &Operation{
		ID:        uuid.NewString(),
		Status:    StatusUploading,
		Files:     slices.Clone(files),
		CreatedAt: t,
		UpdatedAt: t,
		now:       now,
	}
}

func (op *Operation) Uploading(index int) {
	op.FileIndex = index
	op.advance(StatusUploading)
}

func (op *Operation) FetchingTable() { op.advance(StatusFetchingTable) }

func (op *Operation) Notifying() { op.advance(StatusNotifying) }

func (op *Operation) Done(results []storage.UploadResult) {
	op.Results = slices.Clone(results)
	op.advance(StatusDone)
}

func (op *Operation) Failed(err error) {
	op.Error = err.Error()
	op.advance(StatusFailed)
}

func (op *Operation) advance(s Status) {
	op.Status = s
	if op.now != nil {
		op.UpdatedAt = op.now()
	} else {
		op.UpdatedAt = time.Now()
	}
}

// Store keeps finished operations.
type Store interface {
	Record(op *Operation) error
	Get(id string) (*Operation, error)
}

// MemoryStore is a concurrency-safe in-memory Store holding at most
// capacity records. Once full, recording a new operation evicts the oldest.
type MemoryStore struct {
	mu   sync.RWMutex
	ops  map[string]*Operation
	ring []string
	next int
}

// NewMemoryStore returns a store that keeps the most recent capacity
// operations. A non-positive capacity selects DefaultCapacity.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		ops:  make(map[string]*Operation, capacity),
		ring: make([]string, capacity),
	}
}

// Record stores a copy of a finished operation.
func (s *MemoryStore) Record(op *Operation) error {
	if !op.Status.Finished() {
		return fmt.Errorf("%w: %s is %s", ErrNotFinished, op.ID, op.Status)
	}
	c := op.clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ops[c.ID]; ok {
		return fmt.Errorf("operation %s already recorded", c.ID)
	}
	if old := s.ring[s.next]; old != "" {
		delete(s.ops, old)
	}
	s.ring[s.next] = c.ID
	s.next = (s.next + 1) % len(s.ring)
	s.ops[c.ID] = c
	return nil
}

func (s *MemoryStore) Get(id string) (*Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, ok := s.ops[id]
	if !ok {
		return nil, ErrNotFound
	}
	return op.clone(), nil
}

// Len returns the number of retained operations.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ops)
}

func (op *Operation) clone() *Operation {
	c := *op
	c.Files = slices.Clone(op.Files)
	c.Results = slices.Clone(op.Results)
	c.now = nil
	return &c
}
