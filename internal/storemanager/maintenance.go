package storemanager

import (
	"errors"
	"sync"
	"time"
)

// ErrMaintenanceInProgress is returned when an operation of the same kind
// is already running.
var ErrMaintenanceInProgress = errors.New("maintenance operation already in progress")

// Operation names a maintenance operation.
type Operation string

const (
	OpReindexing  Operation = "reindexing"
	OpClustering  Operation = "clustering"
	OpCompression Operation = "compression"
	OpCleanup     Operation = "cleanup"
)

// OperationState tracks one maintenance operation.
type OperationState struct {
	InProgress  bool      `json:"in_progress"`
	Progress    float64   `json:"progress"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// MaintenanceStatus is a snapshot of every maintenance operation.
type MaintenanceStatus struct {
	Reindexing  OperationState `json:"reindexing"`
	Clustering  OperationState `json:"clustering"`
	Compression OperationState `json:"compression"`
	Cleanup     OperationState `json:"cleanup"`
}

// maintenance guards the operation states.
type maintenance struct {
	mu     sync.Mutex
	states map[Operation]*OperationState
	now    func() time.Time
}

func newMaintenance(now func() time.Time) *maintenance {
	return &maintenance{
		now: now,
		states: map[Operation]*OperationState{
			OpReindexing:  {},
			OpClustering:  {},
			OpCompression: {},
			OpCleanup:     {},
		},
	}
}

// begin marks op as running. Fails when it already is.
func (m *maintenance) begin(op Operation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.states[op]
	if s.InProgress {
		return ErrMaintenanceInProgress
	}
	*s = OperationState{InProgress: true, StartedAt: m.now(), LastError: s.LastError}
	return nil
}

func (m *maintenance) progress(op Operation, fraction float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[op].Progress = min(max(fraction, 0), 1)
}

// end marks op as finished. A nil err clears LastError.
func (m *maintenance) end(op Operation, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.states[op]
	s.InProgress = false
	s.CompletedAt = m.now()
	if err != nil {
		s.LastError = err.Error()
		return
	}
	s.Progress = 1
	s.LastError = ""
}

func (m *maintenance) snapshot() MaintenanceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MaintenanceStatus{
		Reindexing:  *m.states[OpReindexing],
		Clustering:  *m.states[OpClustering],
		Compression: *m.states[OpCompression],
		Cleanup:     *m.states[OpCleanup],
	}
}
