package plugins

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"augur/internal/domain/sentiment"
	"augur/pkg/errors"
)

// mockPlugin is a scriptable source for registry and pipeline tests.
// Fetch delegates to fetchFunc so each test controls what comes back.
type mockPlugin struct {
	*BasePlugin

	fetchCount int32
	cleanups   int32
	initErr    error
	fetchFunc  func(ctx context.Context) *sentiment.Report
}

func newMockPlugin(name string) *mockPlugin {
	return &mockPlugin{
		BasePlugin: NewBasePlugin(name, WithCacheTTL(0)),
	}
}

func (m *mockPlugin) Fetch(ctx context.Context) *sentiment.Report {
	atomic.AddInt32(&m.fetchCount, 1)
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx)
	}
	return sentiment.NewReport([]sentiment.Record{{
		IndicatorName: "Mock Index",
		Value:         75,
		Confidence:    0.9,
		Timestamp:     time.Now(),
		Source:        m.Name(),
	}}, 0.5, sentiment.QualityGood)
}

func (m *mockPlugin) Initialize(ctx context.Context) error {
	return m.initErr
}

func (m *mockPlugin) Cleanup() error {
	atomic.AddInt32(&m.cleanups, 1)
	return nil
}

// streamingMock additionally reports a live connection, like the
// websocket sources do
type streamingMock struct {
	*mockPlugin
	connected bool
}

func (s *streamingMock) Connected() bool {
	return s.connected
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	p := newMockPlugin("alpha")
	require.NoError(t, r.Register(ctx, "alpha", p, 10, 0.6))

	assert.Equal(t, 1, r.Count())
	assert.Equal(t, []string{"alpha"}, r.Names())

	reg, err := r.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", reg.Name)
	assert.Equal(t, 10, reg.Priority)
	assert.Equal(t, 0.6, reg.Weight)
	assert.False(t, reg.Selected)

	_, err = r.Get("missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestRegistry_RegisterValidation(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	err := r.Register(ctx, "", newMockPlugin("x"), 10, 1.0)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	err = r.Register(ctx, "x", nil, 10, 1.0)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
	assert.Equal(t, 0, r.Count())

	// Non-positive weights fall back to the default
	require.NoError(t, r.Register(ctx, "x", newMockPlugin("x"), 10, -2))
	reg, err := r.Get("x")
	require.NoError(t, err)
	assert.Equal(t, DefaultWeight, reg.Weight)
}

func TestRegistry_RegisterInitFailure(t *testing.T) {
	r := NewRegistry()

	p := newMockPlugin("broken")
	p.initErr = errors.New("no api key")

	err := r.Register(context.Background(), "broken", p, 10, 1.0)
	assert.True(t, errors.Is(err, errors.ErrPluginInit))
	assert.Contains(t, err.Error(), "no api key")
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_ReplaceRunsOldCleanup(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	old := newMockPlugin("alpha")
	require.NoError(t, r.Register(ctx, "alpha", old, 10, 1.0))

	replacement := newMockPlugin("alpha")
	require.NoError(t, r.Register(ctx, "alpha", replacement, 20, 2.0))

	assert.Equal(t, int32(1), atomic.LoadInt32(&old.cleanups))
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, []string{"alpha"}, r.Names())

	reg, err := r.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, 20, reg.Priority)
	assert.Equal(t, 2.0, reg.Weight)
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	p := newMockPlugin("alpha")
	require.NoError(t, r.Register(ctx, "alpha", p, 10, 1.0))
	require.NoError(t, r.Unregister("alpha"))

	assert.Equal(t, int32(1), atomic.LoadInt32(&p.cleanups))
	assert.Equal(t, 0, r.Count())
	assert.Empty(t, r.Names())

	err := r.Unregister("alpha")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestRegistry_Selection(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, "alpha", newMockPlugin("alpha"), 10, 1.0))
	require.NoError(t, r.Register(ctx, "beta", newMockPlugin("beta"), 20, 1.0))
	require.NoError(t, r.Register(ctx, "gamma", newMockPlugin("gamma"), 30, 1.0))

	// Unknown names are dropped, not stored
	r.SetSelected([]string{"beta", "ghost"})
	assert.Equal(t, []string{"beta"}, r.Selected())

	entries := r.SelectedOrAll()
	require.Len(t, entries, 1)
	assert.Equal(t, "beta", entries[0].Name)
	assert.True(t, entries[0].Selected)

	// Empty selection means every plugin participates
	r.ClearSelected()
	assert.Empty(t, r.Selected())
	entries = r.SelectedOrAll()
	require.Len(t, entries, 3)
	assert.Equal(t, "alpha", entries[0].Name)
	assert.Equal(t, "beta", entries[1].Name)
	assert.Equal(t, "gamma", entries[2].Name)
}

func TestRegistry_SelectionSurvivesUnregister(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, "alpha", newMockPlugin("alpha"), 10, 1.0))
	require.NoError(t, r.Register(ctx, "beta", newMockPlugin("beta"), 20, 1.0))

	r.SetSelected([]string{"alpha", "beta"})
	require.NoError(t, r.Unregister("alpha"))

	assert.Equal(t, []string{"beta"}, r.Selected())
}

func TestRegistry_SortByPriority(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	// Registered out of priority order on purpose
	require.NoError(t, r.Register(ctx, "gamma", newMockPlugin("gamma"), 30, 1.0))
	require.NoError(t, r.Register(ctx, "alpha", newMockPlugin("alpha"), 10, 1.0))
	require.NoError(t, r.Register(ctx, "beta", newMockPlugin("beta"), 20, 1.0))

	entries := r.SelectedOrAll()
	require.Len(t, entries, 3)
	assert.Equal(t, "gamma", entries[0].Name) // registration order before sorting

	SortByPriority(entries)
	assert.Equal(t, "alpha", entries[0].Name)
	assert.Equal(t, "beta", entries[1].Name)
	assert.Equal(t, "gamma", entries[2].Name)
}

func TestRegistry_SetParams(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, "alpha", newMockPlugin("alpha"), 10, 1.0))
	require.NoError(t, r.SetParams("alpha", 5, 2.5))

	reg, err := r.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, 5, reg.Priority)
	assert.Equal(t, 2.5, reg.Weight)

	// Non-positive weight keeps the previous one
	require.NoError(t, r.SetParams("alpha", 7, 0))
	reg, err = r.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, 7, reg.Priority)
	assert.Equal(t, 2.5, reg.Weight)

	err = r.SetParams("ghost", 1, 1.0)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestRegistry_FetchStats(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, "alpha", newMockPlugin("alpha"), 10, 1.0))

	st, err := r.Status("alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.FetchCount)
	assert.Empty(t, st.LastFetchAge)

	r.RecordFetch("alpha", 100*time.Millisecond)
	st, err = r.Status("alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.FetchCount)
	assert.Equal(t, int64(0), st.ErrorCount)
	assert.Equal(t, 100*time.Millisecond, st.LastResponseTime)
	assert.NotEmpty(t, st.LastFetchAge)

	// Response time is an 80/20 weighted average
	r.RecordFetch("alpha", 200*time.Millisecond)
	st, err = r.Status("alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.FetchCount)
	assert.InDelta(t, float64(120*time.Millisecond), float64(st.LastResponseTime), float64(time.Millisecond))

	r.RecordError("alpha", errors.New("upstream down"), 100*time.Millisecond)
	st, err = r.Status("alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.FetchCount)
	assert.Equal(t, int64(1), st.ErrorCount)
	assert.Contains(t, st.LastError, "upstream down")

	// A following success clears the last error
	r.RecordFetch("alpha", 100*time.Millisecond)
	st, err = r.Status("alpha")
	require.NoError(t, err)
	assert.Empty(t, st.LastError)
	assert.Equal(t, int64(1), st.ErrorCount)
}

func TestRegistry_StatusConnection(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	// Plain plugins report connected while enabled
	plain := newMockPlugin("plain")
	require.NoError(t, r.Register(ctx, "plain", plain, 10, 1.0))

	st, err := r.Status("plain")
	require.NoError(t, err)
	assert.True(t, st.Connected)

	plain.Disable()
	st, err = r.Status("plain")
	require.NoError(t, err)
	assert.False(t, st.Connected)

	// Streaming plugins report their actual connection state
	stream := &streamingMock{mockPlugin: newMockPlugin("stream")}
	require.NoError(t, r.Register(ctx, "stream", stream, 20, 1.0))

	st, err = r.Status("stream")
	require.NoError(t, err)
	assert.True(t, st.Enabled)
	assert.False(t, st.Connected)

	stream.connected = true
	st, err = r.Status("stream")
	require.NoError(t, err)
	assert.True(t, st.Connected)

	statuses := r.AllStatuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "plain", statuses[0].Name)
	assert.Equal(t, "stream", statuses[1].Name)
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	a := newMockPlugin("alpha")
	b := newMockPlugin("beta")
	require.NoError(t, r.Register(ctx, "alpha", a, 10, 1.0))
	require.NoError(t, r.Register(ctx, "beta", b, 20, 1.0))
	r.SetSelected([]string{"alpha"})

	r.Clear()

	assert.Equal(t, 0, r.Count())
	assert.Empty(t, r.Names())
	assert.Empty(t, r.Selected())
	assert.Equal(t, int32(1), atomic.LoadInt32(&a.cleanups))
	assert.Equal(t, int32(1), atomic.LoadInt32(&b.cleanups))
}
