package reconnect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"augur/pkg/logger"
)

func newTestLogger() *logger.Logger {
	zapLog, _ := zap.NewDevelopment()
	return &logger.Logger{SugaredLogger: zapLog.Sugar()}
}

func TestNewManager(t *testing.T) {
	tests := []struct {
		name          string
		config        Config
		expectedMin   time.Duration
		expectedMax   time.Duration
		expectedMult  float64
		expectedRetry int
		expectedReset time.Duration
	}{
		{
			name:          "all defaults",
			config:        Config{},
			expectedMin:   1 * time.Second,
			expectedMax:   2 * time.Minute,
			expectedMult:  2.0,
			expectedRetry: 10,
			expectedReset: 5 * time.Minute,
		},
		{
			name: "custom config",
			config: Config{
				MinBackoff:        2 * time.Second,
				MaxBackoff:        10 * time.Minute,
				BackoffMultiplier: 3.0,
				MaxRetries:        5,
				CircuitResetAfter: 10 * time.Minute,
			},
			expectedMin:   2 * time.Second,
			expectedMax:   10 * time.Minute,
			expectedMult:  3.0,
			expectedRetry: 5,
			expectedReset: 10 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.config, newTestLogger())

			assert.Equal(t, tt.expectedMin, m.minBackoff)
			assert.Equal(t, tt.expectedMax, m.maxBackoff)
			assert.Equal(t, tt.expectedMult, m.backoffMultiplier)
			assert.Equal(t, tt.expectedRetry, m.maxRetries)
			assert.Equal(t, tt.expectedReset, m.circuitResetAfter)
			assert.Equal(t, tt.expectedMin, m.currentBackoff)
			assert.False(t, m.circuitOpen)
		})
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name                string
		maxRetries          int
		consecutiveFailures int
		circuitOpen         bool
		circuitOpenedAt     time.Time
		circuitResetAfter   time.Duration
		expectedShouldRetry bool
	}{
		{
			name:                "no failures",
			maxRetries:          10,
			expectedShouldRetry: true,
		},
		{
			name:                "some failures",
			maxRetries:          10,
			consecutiveFailures: 5,
			expectedShouldRetry: true,
		},
		{
			name:                "max retries reached",
			maxRetries:          10,
			consecutiveFailures: 10,
			expectedShouldRetry: false,
		},
		{
			name:                "circuit open recently",
			maxRetries:          10,
			consecutiveFailures: 10,
			circuitOpen:         true,
			circuitOpenedAt:     time.Now().Add(-1 * time.Minute),
			circuitResetAfter:   5 * time.Minute,
			expectedShouldRetry: false,
		},
		{
			name:                "circuit reset period elapsed",
			maxRetries:          10,
			consecutiveFailures: 10,
			circuitOpen:         true,
			circuitOpenedAt:     time.Now().Add(-6 * time.Minute),
			circuitResetAfter:   5 * time.Minute,
			expectedShouldRetry: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(Config{
				MaxRetries:        tt.maxRetries,
				CircuitResetAfter: tt.circuitResetAfter,
			}, newTestLogger())

			m.consecutiveFailures = tt.consecutiveFailures
			m.circuitOpen = tt.circuitOpen
			m.circuitOpenedAt = tt.circuitOpenedAt

			assert.Equal(t, tt.expectedShouldRetry, m.ShouldRetry())
		})
	}
}

func TestRecordFailure(t *testing.T) {
	tests := []struct {
		name                string
		maxBackoff          time.Duration
		maxRetries          int
		initialFailures     int
		initialBackoff      time.Duration
		expectedFailures    int
		expectedBackoff     time.Duration
		expectedCircuitOpen bool
	}{
		{
			name:             "first failure doubles backoff",
			maxBackoff:       5 * time.Minute,
			maxRetries:       10,
			initialBackoff:   1 * time.Second,
			expectedFailures: 1,
			expectedBackoff:  2 * time.Second,
		},
		{
			name:             "exponential growth",
			maxBackoff:       5 * time.Minute,
			maxRetries:       10,
			initialFailures:  3,
			initialBackoff:   8 * time.Second,
			expectedFailures: 4,
			expectedBackoff:  16 * time.Second,
		},
		{
			name:             "backoff capped at ceiling",
			maxBackoff:       10 * time.Second,
			maxRetries:       10,
			initialBackoff:   8 * time.Second,
			expectedFailures: 1,
			expectedBackoff:  10 * time.Second,
		},
		{
			name:                "circuit opens at max retries",
			maxBackoff:          5 * time.Minute,
			maxRetries:          5,
			initialFailures:     4,
			initialBackoff:      16 * time.Second,
			expectedFailures:    5,
			expectedBackoff:     32 * time.Second,
			expectedCircuitOpen: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(Config{
				MinBackoff:        1 * time.Second,
				MaxBackoff:        tt.maxBackoff,
				BackoffMultiplier: 2.0,
				MaxRetries:        tt.maxRetries,
			}, newTestLogger())

			m.consecutiveFailures = tt.initialFailures
			m.currentBackoff = tt.initialBackoff

			m.RecordFailure()

			assert.Equal(t, tt.expectedFailures, m.consecutiveFailures)
			assert.Equal(t, tt.expectedBackoff, m.currentBackoff)
			assert.Equal(t, tt.expectedCircuitOpen, m.circuitOpen)
			if tt.expectedCircuitOpen {
				assert.False(t, m.circuitOpenedAt.IsZero())
			}
		})
	}
}

func TestRecordSuccess(t *testing.T) {
	m := NewManager(Config{MinBackoff: 1 * time.Second, MaxRetries: 5}, newTestLogger())

	m.consecutiveFailures = 5
	m.currentBackoff = 32 * time.Second
	m.circuitOpen = true
	m.circuitOpenedAt = time.Now().Add(-1 * time.Minute)
	m.totalReconnects = 2

	m.RecordSuccess()

	assert.Equal(t, 0, m.consecutiveFailures)
	assert.Equal(t, 1*time.Second, m.currentBackoff)
	assert.Equal(t, 3, m.totalReconnects)
	assert.False(t, m.circuitOpen)
	assert.True(t, m.circuitOpenedAt.IsZero())
}

func TestGetStats(t *testing.T) {
	m := NewManager(Config{}, newTestLogger())

	m.consecutiveFailures = 3
	m.totalReconnects = 5
	m.currentBackoff = 8 * time.Second

	stats := m.GetStats()

	assert.Equal(t, 3, stats.ConsecutiveFailures)
	assert.Equal(t, 5, stats.TotalReconnects)
	assert.Equal(t, 8*time.Second, stats.CurrentBackoff)
	assert.False(t, stats.CircuitOpen)
}

func TestReconnectWithBackoff(t *testing.T) {
	tests := []struct {
		name                string
		setupCircuitOpen    bool
		setupFailures       int
		maxRetries          int
		reconnectFnError    error
		expectErrorContains string
	}{
		{
			name: "successful reconnect",
		},
		{
			name:                "failed reconnect",
			reconnectFnError:    errors.New("connection refused"),
			expectErrorContains: "reconnect attempt failed",
		},
		{
			name:                "circuit breaker open",
			setupCircuitOpen:    true,
			maxRetries:          5,
			setupFailures:       5,
			expectErrorContains: "circuit breaker is open",
		},
		{
			name:                "max retries reached",
			maxRetries:          5,
			setupFailures:       5,
			expectErrorContains: "max retries reached",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(Config{
				MinBackoff: 10 * time.Millisecond,
				MaxRetries: tt.maxRetries,
			}, newTestLogger())

			m.circuitOpen = tt.setupCircuitOpen
			if tt.setupCircuitOpen {
				m.circuitOpenedAt = time.Now()
			}
			m.consecutiveFailures = tt.setupFailures

			attempts := 0
			err := m.ReconnectWithBackoff(context.Background(), func(ctx context.Context) error {
				attempts++
				return tt.reconnectFnError
			})

			if tt.expectErrorContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectErrorContains)
			} else {
				require.NoError(t, err)
				assert.Equal(t, 1, attempts)
				assert.Equal(t, 0, m.consecutiveFailures)
				assert.False(t, m.circuitOpen)
			}
		})
	}
}

func TestReconnectWithBackoff_ContextCancellation(t *testing.T) {
	m := NewManager(Config{MinBackoff: 1 * time.Second}, newTestLogger())
	m.RecordFailure()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.ReconnectWithBackoff(ctx, func(ctx context.Context) error {
		t.Fatal("reconnectFn should not run after cancellation")
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, context.Canceled, err)
}

func TestConcurrentAccess(t *testing.T) {
	m := NewManager(Config{MaxRetries: 1000}, newTestLogger())

	done := make(chan bool)

	go func() {
		for i := 0; i < 50; i++ {
			m.RecordFailure()
			time.Sleep(time.Millisecond)
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 50; i++ {
			m.ShouldRetry()
			time.Sleep(time.Millisecond)
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 50; i++ {
			m.GetStats()
			time.Sleep(time.Millisecond)
		}
		done <- true
	}()

	for i := 0; i < 3; i++ {
		<-done
	}

	assert.Equal(t, 50, m.GetStats().ConsecutiveFailures)
}
