package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"video-transcriber/internal/domain"
)

// ErrJobAlreadyRunning is returned when starting while another job is active.
// The active job is not affected.
var ErrJobAlreadyRunning = errors.New("a transcription is already running")

// Coarse progress markers reported at state entry.
const (
	ProgressExtracting   = 10
	ProgressTranscribing = 30
	ProgressRendering    = 90
	ProgressComplete     = 100
	ProgressFailed       = 0
)

// Manager tracks the single allowed active job and its transitions.
type Manager struct {
	mu      sync.RWMutex
	current domain.Job
	now     func() time.Time
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.Job{
			Status: domain.JobStatusIdle,
		},
		now: time.Now,
	}
}

// Start claims the manager for a new job and moves it to extracting.
// It fails with ErrJobAlreadyRunning from any non-idle state.
func (m *Manager) Start(jobID, sourcePath string) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Status != domain.JobStatusIdle {
		return domain.Job{}, ErrJobAlreadyRunning
	}

	m.current = domain.Job{
		ID:         jobID,
		SourcePath: sourcePath,
		Status:     domain.JobStatusExtracting,
		Progress:   ProgressExtracting,
		StartedAt:  m.now(),
	}
	return m.current, nil
}

// Transition validates and applies state transitions for the current job.
func (m *Manager) Transition(status domain.JobStatus) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID == "" {
		return m.current, fmt.Errorf("cannot transition without an active job")
	}
	if status == m.current.Status {
		return m.current, nil
	}
	if !isValidTransition(m.current.Status, status) {
		return m.current, fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}

	m.current.Status = status
	switch status {
	case domain.JobStatusTranscribing:
		m.current.Progress = ProgressTranscribing
	case domain.JobStatusRendering:
		m.current.Progress = ProgressRendering
		m.current.EndedAt = m.now()
	case domain.JobStatusFailed:
		m.current.Progress = ProgressFailed
		m.current.EndedAt = m.now()
	}
	return m.current, nil
}

// Complete returns a rendering job to idle with full progress.
func (m *Manager) Complete() (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Status != domain.JobStatusRendering {
		return m.current, fmt.Errorf("invalid transition: %s -> %s", m.current.Status, domain.JobStatusIdle)
	}
	m.current.Status = domain.JobStatusIdle
	m.current.Progress = ProgressComplete
	return m.current, nil
}

// Fail records the failure reason and returns the manager to idle.
// It is valid from extracting, transcribing and failed.
func (m *Manager) Fail(reason string) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Status != domain.JobStatusFailed && !isValidTransition(m.current.Status, domain.JobStatusFailed) {
		return m.current, fmt.Errorf("invalid transition: %s -> %s", m.current.Status, domain.JobStatusFailed)
	}
	m.current.Status = domain.JobStatusIdle
	m.current.Progress = ProgressFailed
	m.current.Error = reason
	if m.current.EndedAt.IsZero() {
		m.current.EndedAt = m.now()
	}
	return m.current, nil
}

// Current returns a snapshot of the current or most recent job.
func (m *Manager) Current() domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsRunning reports whether a job holds the manager.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Status != domain.JobStatusIdle
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusIdle:
		return to == domain.JobStatusExtracting
	case domain.JobStatusExtracting:
		return to == domain.JobStatusTranscribing || to == domain.JobStatusFailed
	case domain.JobStatusTranscribing:
		return to == domain.JobStatusRendering || to == domain.JobStatusFailed
	case domain.JobStatusRendering:
		return to == domain.JobStatusIdle
	case domain.JobStatusFailed:
		return to == domain.JobStatusIdle
	default:
		return false
	}
}
