package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/callsched/core/pkg/logger"
)

// JobLockManager provides per-job mutual exclusion for executions
type JobLockManager interface {
	// AcquireLock attempts to take the lock for the given job key without waiting.
	// It returns the holder token when acquired, and false if an execution of
	// the key already holds it
	AcquireLock(ctx context.Context, jobKey string) (token string, acquired bool, err error)

	// ReleaseLock releases the lock only while token still holds it
	ReleaseLock(ctx context.Context, jobKey, token string) error

	// ExtendLock renews the lease of token. Returns false when token no longer holds the lock
	ExtendLock(ctx context.Context, jobKey, token string) (bool, error)

	// RefreshInterval is how often a holder must call ExtendLock. Zero means the lock never expires
	RefreshInterval() time.Duration

	// IsLocked checks if an execution of the key is currently running
	IsLocked(ctx context.Context, jobKey string) (bool, error)

	// Ping verifies the lock backend is reachable
	Ping(ctx context.Context) error
}

// MemoryLockManager implements JobLockManager for a single process
type MemoryLockManager struct {
	mu    sync.Mutex
	locks map[string]string
}

// NewMemoryLockManager creates an in-process lock manager
func NewMemoryLockManager() *MemoryLockManager {
	return &MemoryLockManager{locks: make(map[string]string)}
}

func (m *MemoryLockManager) AcquireLock(_ context.Context, jobKey string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[jobKey]; held {
		return "", false, nil
	}
	token := uuid.NewString()
	m.locks[jobKey] = token
	return token, true, nil
}

func (m *MemoryLockManager) ReleaseLock(_ context.Context, jobKey, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[jobKey] == token {
		delete(m.locks, jobKey)
	}
	return nil
}

func (m *MemoryLockManager) ExtendLock(_ context.Context, jobKey, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locks[jobKey] == token, nil
}

func (m *MemoryLockManager) RefreshInterval() time.Duration {
	return 0
}

func (m *MemoryLockManager) IsLocked(_ context.Context, jobKey string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, held := m.locks[jobKey]
	return held, nil
}

func (m *MemoryLockManager) Ping(context.Context) error {
	return nil
}

// LockGuard provides RAII-style lock management. While held, the lease is
// renewed in the background so a long execution keeps its lock.
type LockGuard struct {
	lockManager JobLockManager
	jobKey      string
	token       string
	acquired    bool
	logger      *logger.Logger

	stop chan struct{}
	done chan struct{}
}

// NewLockGuard creates a new lock guard that releases on defer
func NewLockGuard(lockManager JobLockManager, jobKey string, log *logger.Logger) *LockGuard {
	return &LockGuard{
		lockManager: lockManager,
		jobKey:      jobKey,
		logger:      log,
	}
}

// Acquire attempts to acquire the lock
func (lg *LockGuard) Acquire(ctx context.Context) (bool, error) {
	token, acquired, err := lg.lockManager.AcquireLock(ctx, lg.jobKey)
	if err != nil {
		return false, err
	}
	lg.acquired = acquired
	if !acquired {
		return false, nil
	}

	lg.token = token
	if interval := lg.lockManager.RefreshInterval(); interval > 0 {
		lg.stop = make(chan struct{})
		lg.done = make(chan struct{})
		go lg.keepAlive(interval)
	}
	return true, nil
}

func (lg *LockGuard) keepAlive(interval time.Duration) {
	defer close(lg.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-lg.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			held, err := lg.lockManager.ExtendLock(ctx, lg.jobKey, lg.token)
			cancel()

			if err != nil {
				lg.logger.Warn().
					Err(err).
					Str("job_key", lg.jobKey).
					Str("action", "lock_extend_error").
					Msg("Failed to extend lock, retrying")
				continue
			}
			if !held {
				lg.logger.Error().
					Str("job_key", lg.jobKey).
					Str("action", "lock_lost").
					Msg("Lock expired while the execution was still running")
				return
			}
		}
	}
}

// Release releases the lock if it was acquired
func (lg *LockGuard) Release(ctx context.Context) error {
	if !lg.acquired {
		return nil
	}

	if lg.stop != nil {
		close(lg.stop)
		<-lg.done
		lg.stop, lg.done = nil, nil
	}

	if err := lg.lockManager.ReleaseLock(ctx, lg.jobKey, lg.token); err != nil {
		lg.logger.Error().
			Err(err).
			Str("job_key", lg.jobKey).
			Str("action", "lock_release_error").
			Msg("Failed to release lock in guard")
		return err
	}

	lg.acquired = false
	lg.token = ""
	return nil
}

// IsAcquired returns whether the lock is currently held by this guard
func (lg *LockGuard) IsAcquired() bool {
	return lg.acquired
}
