package jobs

import (
	"errors"
	"sync"
)

// ErrJobAlreadyRunning is returned when starting a second active conversion.
var ErrJobAlreadyRunning = errors.New("conversion already running")

// ErrNoRunningJob is returned when cancel is requested with nothing active.
var ErrNoRunningJob = errors.New("no running conversion")

// Manager enforces the single-active-conversion policy. Job state itself
// lives on the ConversionJob owned by its runner; the manager only tracks
// which job currently holds the conversion slot.
type Manager struct {
	mu     sync.RWMutex
	active string
}

// NewManager creates a manager with no active job.
func NewManager() *Manager {
	return &Manager{}
}

// Begin claims the conversion slot for jobID.
func (m *Manager) Begin(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != "" {
		return ErrJobAlreadyRunning
	}
	m.active = jobID
	return nil
}

// Finish releases the slot held by jobID. A finish from a job that no
// longer holds the slot is ignored.
func (m *Manager) Finish(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == jobID {
		m.active = ""
	}
}

// Active returns the active job ID and whether one is running.
func (m *Manager) Active() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active, m.active != ""
}

// IsRunning reports whether a conversion currently holds the slot.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active != ""
}
