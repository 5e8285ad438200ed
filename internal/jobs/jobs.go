// Package jobs implements the engine's background job lifecycle: a
// single in-process registry enforcing "at most one running job",
// TTL/cap eviction of completed jobs, and lock handoff to the job
// function so the caller never has to manage FileLock release itself.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	kerrors "github.com/kestrelkb/kestrel/internal/errors"
	"github.com/kestrelkb/kestrel/internal/locking"
)

// Type is the kind of work a job performs.
type Type string

const (
	TypeAdd   Type = "add"
	TypeSync  Type = "sync"
	TypeIndex Type = "index"
	TypeEmbed Type = "embed"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Func is the work a job performs. The manager holds the FileLock it
// acquired (or was handed) on the job's behalf while Func runs, and
// releases it once Func returns, regardless of outcome.
type Func func(ctx context.Context) (result string, err error)

// Job is an opaque background task owned by a Manager.
type Job struct {
	ID               string
	Type             Type
	Status           Status
	StartedAt        time.Time
	CompletedAt      time.Time
	Result           string
	Error            string
	ServerInstanceID string
}

// snapshot returns a copy safe to hand to callers outside the manager's lock.
func (j *Job) snapshot() *Job {
	cp := *j
	return &cp
}

// Config bounds the garbage collection of completed jobs.
type Config struct {
	// TTL is how long a completed job is retained before it becomes
	// eligible for eviction. Zero means no TTL-based eviction.
	TTL time.Duration
	// MaxCompleted is the hard cap on retained completed jobs; once
	// exceeded, the oldest are evicted first. Zero means no cap.
	MaxCompleted int
}

// DefaultConfig matches the teacher's retention window for completed
// indexing runs, generalized to all four job types.
func DefaultConfig() Config {
	return Config{
		TTL:          1 * time.Hour,
		MaxCompleted: 50,
	}
}

// Manager enforces the at-most-one-running-job invariant and tracks
// job history for listJob/getJob.
type Manager struct {
	cfg              Config
	serverInstanceID string

	mu        sync.Mutex
	running   *Job
	completed []*Job
	byID      map[string]*Job

	wg sync.WaitGroup
}

// New creates a Manager. serverInstanceID distinguishes processes
// sharing a data directory; a random id is generated if empty.
func New(cfg Config, serverInstanceID string) *Manager {
	if serverInstanceID == "" {
		serverInstanceID = uuid.NewString()
	}
	return &Manager{
		cfg:              cfg,
		serverInstanceID: serverInstanceID,
		byID:             make(map[string]*Job),
	}
}

// StartJob acquires lock (bounded by ctx, or the lock's own default
// timeout), then registers and runs a new job of the given type. It
// fails with JOB_CONFLICT if a job is already running, without ever
// attempting to acquire the lock.
func (m *Manager) StartJob(ctx context.Context, jobType Type, lock *locking.FileLock, fn Func) (string, error) {
	if err := m.checkNotRunning(); err != nil {
		return "", err
	}
	if err := lock.Acquire(ctx); err != nil {
		return "", err
	}
	return m.StartJobWithLock(jobType, lock, fn)
}

// StartJobWithLock registers and runs a job using a lock the caller
// has already acquired. The manager releases it when the job settles.
func (m *Manager) StartJobWithLock(jobType Type, lock *locking.FileLock, fn Func) (string, error) {
	m.mu.Lock()
	if m.running != nil {
		active := m.running.ID
		m.mu.Unlock()
		return "", kerrors.New(kerrors.KindJobConflict, "a %s job is already running", m.running.Type).
			WithDetail("activeJobId", active)
	}

	job := &Job{
		ID:               uuid.NewString(),
		Type:             jobType,
		Status:           StatusRunning,
		StartedAt:        time.Now(),
		ServerInstanceID: m.serverInstanceID,
	}
	m.running = job
	m.byID[job.ID] = job
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(job, lock, fn)

	return job.ID, nil
}

func (m *Manager) checkNotRunning() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running != nil {
		return kerrors.New(kerrors.KindJobConflict, "a %s job is already running", m.running.Type).
			WithDetail("activeJobId", m.running.ID)
	}
	return nil
}

func (m *Manager) run(job *Job, lock *locking.FileLock, fn Func) {
	defer m.wg.Done()
	defer func() { _ = lock.Release() }()

	result, err := m.invoke(job, fn)

	m.mu.Lock()
	job.CompletedAt = time.Now()
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
	} else {
		job.Status = StatusCompleted
		job.Result = result
	}
	m.running = nil
	m.completed = append(m.completed, job)
	m.gcLocked()
	m.mu.Unlock()
}

// invoke runs fn behind the engine's panic firewall: a job function
// that panics fails the job with a RUNTIME error instead of crashing
// the process.
func (m *Manager) invoke(job *Job, fn Func) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = kerrors.Recover(fmt.Sprintf("job:%s", job.Type), r)
		}
	}()
	return fn(context.Background())
}

// GetJob returns the job with the given id, if tracked.
func (m *Manager) GetJob(id string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.byID[id]
	if !ok {
		return nil, false
	}
	return job.snapshot(), true
}

// ListJobs returns the most recent jobs (running job first, if any),
// newest-completed-first, bounded by limit. limit <= 0 means no bound.
func (m *Manager) ListJobs(limit int) []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Job, 0, len(m.completed)+1)
	if m.running != nil {
		out = append(out, m.running.snapshot())
	}
	for i := len(m.completed) - 1; i >= 0; i-- {
		out = append(out, m.completed[i].snapshot())
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Shutdown waits for all tracked jobs to settle (best-effort; it
// never cancels a running job) or for ctx to expire, whichever comes
// first.
func (m *Manager) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// gcLocked evicts completed jobs past the TTL or beyond the cap,
// oldest first. Callers must hold m.mu.
func (m *Manager) gcLocked() {
	now := time.Now()
	kept := m.completed[:0]
	for _, j := range m.completed {
		if m.cfg.TTL > 0 && now.Sub(j.CompletedAt) > m.cfg.TTL {
			delete(m.byID, j.ID)
			continue
		}
		kept = append(kept, j)
	}
	m.completed = kept

	if m.cfg.MaxCompleted > 0 && len(m.completed) > m.cfg.MaxCompleted {
		sort.Slice(m.completed, func(i, k int) bool {
			return m.completed[i].CompletedAt.Before(m.completed[k].CompletedAt)
		})
		excess := len(m.completed) - m.cfg.MaxCompleted
		for _, j := range m.completed[:excess] {
			delete(m.byID, j.ID)
		}
		m.completed = m.completed[excess:]
	}
}
