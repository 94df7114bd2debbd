package reconnect

import (
	"context"
	"sync"
	"time"

	"augur/pkg/errors"
	"augur/pkg/logger"
)

// Manager serializes reconnection attempts with exponential backoff and a
// circuit breaker. Streaming sources use it to recover dropped connections
// without hammering the upstream.
type Manager struct {
	minBackoff        time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	maxRetries        int
	circuitResetAfter time.Duration

	mu                  sync.RWMutex
	currentBackoff      time.Duration
	consecutiveFailures int
	totalReconnects     int
	circuitOpen         bool
	circuitOpenedAt     time.Time

	log *logger.Logger
}

// Config configures the reconnect manager.
type Config struct {
	MinBackoff        time.Duration // initial backoff (default 1s)
	MaxBackoff        time.Duration // backoff ceiling (default 2min)
	BackoffMultiplier float64       // exponential growth factor (default 2.0)
	MaxRetries        int           // consecutive failures before the circuit opens (default 10)
	CircuitResetAfter time.Duration // how long an open circuit blocks retries (default 5min)
}

// NewManager creates a reconnect manager with sensible defaults.
func NewManager(config Config, log *logger.Logger) *Manager {
	if config.MinBackoff == 0 {
		config.MinBackoff = 1 * time.Second
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = 2 * time.Minute
	}
	if config.BackoffMultiplier == 0 {
		config.BackoffMultiplier = 2.0
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 10
	}
	if config.CircuitResetAfter == 0 {
		config.CircuitResetAfter = 5 * time.Minute
	}

	return &Manager{
		minBackoff:        config.MinBackoff,
		maxBackoff:        config.MaxBackoff,
		backoffMultiplier: config.BackoffMultiplier,
		maxRetries:        config.MaxRetries,
		circuitResetAfter: config.CircuitResetAfter,
		currentBackoff:    config.MinBackoff,
		log:               log,
	}
}

// ShouldRetry reports whether another reconnection attempt is allowed.
func (m *Manager) ShouldRetry() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.circuitOpen {
		// An open circuit blocks retries until the reset period elapses.
		return time.Since(m.circuitOpenedAt) >= m.circuitResetAfter
	}

	if m.maxRetries > 0 && m.consecutiveFailures >= m.maxRetries {
		return false
	}

	return true
}

// GetBackoff returns the wait before the next attempt.
func (m *Manager) GetBackoff() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentBackoff
}

// RecordFailure bumps the failure counter and grows the backoff. Once
// maxRetries consecutive failures accumulate the circuit opens.
func (m *Manager) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consecutiveFailures++

	next := time.Duration(float64(m.currentBackoff) * m.backoffMultiplier)
	if next > m.maxBackoff {
		next = m.maxBackoff
	}
	m.currentBackoff = next

	m.log.Warnw("Reconnection failed",
		"consecutive_failures", m.consecutiveFailures,
		"next_backoff", m.currentBackoff,
	)

	if m.maxRetries > 0 && m.consecutiveFailures >= m.maxRetries {
		m.circuitOpen = true
		m.circuitOpenedAt = time.Now()

		m.log.Errorw("🔴 Circuit breaker opened after repeated reconnect failures",
			"consecutive_failures", m.consecutiveFailures,
			"circuit_reset_after", m.circuitResetAfter,
		)
	}
}

// RecordSuccess resets the backoff and closes the circuit.
func (m *Manager) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.consecutiveFailures > 0 {
		m.log.Infow("✅ Reconnected, resetting backoff",
			"previous_consecutive_failures", m.consecutiveFailures,
		)
	}

	m.currentBackoff = m.minBackoff
	m.consecutiveFailures = 0
	m.totalReconnects++

	if m.circuitOpen {
		m.log.Infow("🟢 Circuit breaker closed, connection restored",
			"total_reconnects", m.totalReconnects,
		)
		m.circuitOpen = false
		m.circuitOpenedAt = time.Time{}
	}
}

// GetStats returns a snapshot of the reconnect state.
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Stats{
		ConsecutiveFailures: m.consecutiveFailures,
		TotalReconnects:     m.totalReconnects,
		CurrentBackoff:      m.currentBackoff,
		CircuitOpen:         m.circuitOpen,
		CircuitOpenedAt:     m.circuitOpenedAt,
	}
}

// Stats describes the current reconnect state.
type Stats struct {
	ConsecutiveFailures int
	TotalReconnects     int
	CurrentBackoff      time.Duration
	CircuitOpen         bool
	CircuitOpenedAt     time.Time
}

// ReconnectWithBackoff waits out the current backoff, then runs reconnectFn
// once. A failure grows the backoff for the next call; success resets it.
func (m *Manager) ReconnectWithBackoff(ctx context.Context, reconnectFn func(context.Context) error) error {
	if !m.ShouldRetry() {
		m.mu.RLock()
		circuitOpen := m.circuitOpen
		failures := m.consecutiveFailures
		m.mu.RUnlock()

		if circuitOpen {
			return errors.New("circuit breaker is open")
		}
		return errors.Newf("max retries reached: %d consecutive failures", failures)
	}

	backoff := m.GetBackoff()
	if backoff > 0 {
		m.log.Infow("Waiting before reconnect attempt", "backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := reconnectFn(ctx); err != nil {
		m.RecordFailure()
		return errors.Wrap(err, "reconnect attempt failed")
	}

	m.RecordSuccess()
	return nil
}
