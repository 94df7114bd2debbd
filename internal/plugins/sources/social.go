package sources

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"augur/internal/domain/sentiment"
	"augur/internal/plugins"
	"augur/pkg/errors"
	"augur/pkg/reconnect"
)

// SocialIndicator is the indicator name this source reports under
const SocialIndicator = "Social Mood Index"

const (
	socialPingInterval = 3 * time.Minute
	socialReadTimeout  = 10 * time.Second
	socialWriteTimeout = 5 * time.Second

	// socialMaxMessageAge caps how old a windowed message may be before
	// Fetch prunes it
	socialMaxMessageAge = 30 * time.Minute
)

// SocialPlugin consumes a stream of pre-scored social messages over
// WebSocket and keeps a sliding window of the most recent scores. Fetch
// never touches the network: it folds whatever the window holds at that
// moment, so it stays fast even when the feed is busy. No self-cache,
// the window already is one.
type SocialPlugin struct {
	*plugins.BasePlugin
	wsURL       string
	windowSize  int
	reconnector *reconnect.Manager

	connMu    sync.RWMutex
	conn      *websocket.Conn
	connected bool
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	windowMu sync.Mutex
	window   []socialMessage

	lastMu    sync.Mutex
	lastValue *float64
}

type socialMessage struct {
	platform string
	score    float64
	at       time.Time
}

// socialFrame is the wire format of one scored message
type socialFrame struct {
	Platform string   `json:"platform"`
	Text     string   `json:"text"`
	Score    *float64 `json:"score"`
	TS       int64    `json:"ts"`
}

// SocialConfig holds the social source settings
type SocialConfig struct {
	WSURL      string
	WindowSize int

	// ReconnectBackoff is the initial wait before redialing a dropped
	// feed; it doubles per failure up to a ceiling. Zero means 1s.
	ReconnectBackoff time.Duration
}

// NewSocialPlugin creates a streaming social sentiment source
func NewSocialPlugin(cfg SocialConfig, opts ...func(*plugins.BasePlugin)) *SocialPlugin {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 200
	}

	// The window replaces the TTL cache; callers may still override
	baseOpts := append([]func(*plugins.BasePlugin){plugins.WithCacheTTL(0)}, opts...)

	p := &SocialPlugin{
		BasePlugin: plugins.NewBasePlugin("social", baseOpts...),
		wsURL:      cfg.WSURL,
		windowSize: cfg.WindowSize,
		window:     make([]socialMessage, 0, cfg.WindowSize),
		done:       make(chan struct{}),
	}

	p.reconnector = reconnect.NewManager(reconnect.Config{
		MinBackoff: cfg.ReconnectBackoff,
		MaxBackoff: 2 * time.Minute,
		MaxRetries: 8,
	}, p.Log())

	return p
}

// Indicators lists the indicator names this source produces
func (p *SocialPlugin) Indicators() []string {
	return []string{SocialIndicator}
}

// Initialize dials the feed and starts the reader. A failed dial aborts
// registration.
func (p *SocialPlugin) Initialize(ctx context.Context) error {
	if p.Connected() {
		return nil
	}
	if p.wsURL == "" {
		return errors.Wrapf(errors.ErrInvalidInput, "social feed URL is required")
	}

	p.Log().Infof("Connecting to social feed: %s", p.wsURL)

	if err := p.dial(ctx); err != nil {
		return err
	}

	p.connMu.Lock()
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.connMu.Unlock()

	p.wg.Add(1)
	go p.readMessages()

	p.wg.Add(1)
	go p.pingLoop()

	p.Log().Info("Social feed connected")
	return nil
}

// dial opens the feed connection. It refuses to install a connection
// once shutdown has begun.
func (p *SocialPlugin) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, p.wsURL, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to connect to social feed")
	}

	p.connMu.Lock()
	defer p.connMu.Unlock()

	select {
	case <-p.done:
		conn.Close()
		return errors.Wrap(errors.ErrUnavailable, "plugin is shutting down")
	default:
	}

	p.conn = conn
	p.connected = true
	return nil
}

// Cleanup closes the connection and waits for the reader goroutines
func (p *SocialPlugin) Cleanup() error {
	p.connMu.Lock()

	select {
	case <-p.done:
		// Already cleaned up
		p.connMu.Unlock()
		return nil
	default:
	}

	if p.cancel != nil {
		p.cancel()
	}
	close(p.done)

	if p.conn != nil {
		err := p.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(1*time.Second),
		)
		if err != nil {
			p.Log().Warnf("Error sending close message: %v", err)
		}

		p.conn.Close()
		p.conn = nil
	}

	p.connected = false
	p.connMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.Log().Info("Social feed disconnected")
	case <-time.After(10 * time.Second):
		p.Log().Warn("Social feed shutdown timed out after 10s")
		return errors.Wrap(errors.ErrTimeout, "websocket shutdown timeout")
	}

	return nil
}

// Connected reports whether the feed connection is live
func (p *SocialPlugin) Connected() bool {
	p.connMu.RLock()
	defer p.connMu.RUnlock()
	return p.connected
}

func (p *SocialPlugin) currentConn() *websocket.Conn {
	p.connMu.RLock()
	defer p.connMu.RUnlock()
	return p.conn
}

// Fetch folds the current window into a report. No IO.
func (p *SocialPlugin) Fetch(ctx context.Context) *sentiment.Report {
	if !p.Connected() {
		return sentiment.NewFailureReport(errors.ErrNotConnected.Error())
	}

	scores, platforms := p.snapshotWindow()
	if len(scores) == 0 {
		return sentiment.NewFailureReport("no messages in window")
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(len(scores))

	// Project [-1, 1] onto the shared 0-100 indicator scale
	value := 50 + mean*50

	p.lastMu.Lock()
	var change float64
	if p.lastValue != nil {
		change = value - *p.lastValue
	}
	v := value
	p.lastValue = &v
	p.lastMu.Unlock()

	confidence := sentiment.ClampConfidence(float64(len(scores)) / float64(p.windowSize))
	if confidence < 0.3 {
		confidence = 0.3
	}

	record := sentiment.Record{
		IndicatorName: SocialIndicator,
		Value:         value,
		Status:        newsStatus(mean),
		Change:        change,
		Signal:        sentiment.Classify(mean),
		Suggestion:    socialSuggestion(mean),
		Timestamp:     time.Now(),
		Source:        p.Name(),
		Confidence:    confidence,
		Color:         sentiment.ScoreColor(mean),
		Metadata: map[string]interface{}{
			"window_count": len(scores),
			"window_size":  p.windowSize,
			"platforms":    platforms,
		},
	}

	records := []sentiment.Record{record}

	return sentiment.NewReport(records, p.CompositeScore(records), p.ValidateQuality(records))
}

// ValidateQuality grades on window fill: a thin window means the mood
// reading rests on too few voices
func (p *SocialPlugin) ValidateQuality(records []sentiment.Record) sentiment.Quality {
	if len(records) == 0 {
		return sentiment.QualityPoor
	}

	count := 0
	if n, ok := records[0].Metadata["window_count"].(int); ok {
		count = n
	}

	switch {
	case count >= p.windowSize*3/4:
		return sentiment.QualityExcellent
	case count >= p.windowSize/4:
		return sentiment.QualityGood
	case count >= 10:
		return sentiment.QualityFair
	default:
		return sentiment.QualityPoor
	}
}

// snapshotWindow prunes stale messages and returns the remaining scores
// with a per-platform count
func (p *SocialPlugin) snapshotWindow() ([]float64, map[string]int) {
	p.windowMu.Lock()
	defer p.windowMu.Unlock()

	cutoff := time.Now().Add(-socialMaxMessageAge)
	kept := p.window[:0]
	for _, m := range p.window {
		if m.at.After(cutoff) {
			kept = append(kept, m)
		}
	}
	p.window = kept

	scores := make([]float64, 0, len(p.window))
	platforms := make(map[string]int)
	for _, m := range p.window {
		scores = append(scores, m.score)
		platforms[m.platform]++
	}
	return scores, platforms
}

// addMessage appends to the window, dropping the oldest entry when full
func (p *SocialPlugin) addMessage(m socialMessage) {
	p.windowMu.Lock()
	defer p.windowMu.Unlock()

	if len(p.window) >= p.windowSize {
		copy(p.window, p.window[1:])
		p.window = p.window[:len(p.window)-1]
	}
	p.window = append(p.window, m)
}

// readMessages reads frames until the connection dies or Cleanup runs.
// An abnormal exit hands recovery to the reconnect loop.
func (p *SocialPlugin) readMessages() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.done:
			return
		default:
		}

		conn := p.currentConn()
		if conn == nil {
			return
		}

		// Read deadline keeps the loop responsive to shutdown
		if err := conn.SetReadDeadline(time.Now().Add(socialReadTimeout)); err != nil {
			p.Log().Errorf("Failed to set read deadline: %v", err)
			p.handleDisconnect()
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
				continue
			}

			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.Log().Info("Social feed closed by remote")
			} else {
				p.Log().Errorf("Error reading social frame: %v", err)
			}

			p.handleDisconnect()
			return
		}

		p.processFrame(message)
	}
}

// handleDisconnect marks the feed down and, unless shutdown is underway,
// starts the reconnect loop
func (p *SocialPlugin) handleDisconnect() {
	p.connMu.Lock()
	p.connected = false
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	p.connMu.Unlock()

	select {
	case <-p.ctx.Done():
		return
	case <-p.done:
		return
	default:
	}

	p.Log().Warn("Social feed connection lost, scheduling reconnect")
	p.wg.Add(1)
	go p.reconnectLoop()
}

// reconnectLoop redials with growing backoff until it succeeds, the
// circuit opens, or shutdown begins
func (p *SocialPlugin) reconnectLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.done:
			return
		default:
		}

		if !p.reconnector.ShouldRetry() {
			stats := p.reconnector.GetStats()
			p.Log().Errorw("Giving up on social feed reconnection",
				"consecutive_failures", stats.ConsecutiveFailures,
				"circuit_open", stats.CircuitOpen,
			)
			return
		}

		err := p.reconnector.ReconnectWithBackoff(p.ctx, p.redial)
		if err == nil {
			p.Log().Info("Social feed reconnected")
			return
		}

		if p.ctx.Err() != nil {
			return
		}
	}
}

// redial dials and restarts the reader on success
func (p *SocialPlugin) redial(ctx context.Context) error {
	if err := p.dial(ctx); err != nil {
		return err
	}

	p.wg.Add(1)
	go p.readMessages()
	return nil
}

// processFrame parses one scored message into the window
func (p *SocialPlugin) processFrame(message []byte) {
	var frame socialFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		p.Log().Debugf("Skipping unparseable frame: %v", err)
		return
	}

	if frame.Score == nil {
		return
	}

	score := *frame.Score
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}

	at := time.Now()
	if frame.TS > 0 {
		at = time.Unix(frame.TS, 0)
	}

	platform := frame.Platform
	if platform == "" {
		platform = "unknown"
	}

	p.addMessage(socialMessage{platform: platform, score: score, at: at})
}

// pingLoop keeps the feed connection alive
func (p *SocialPlugin) pingLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(socialPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
			if err := p.ping(); err != nil && !errors.Is(err, errors.ErrNotConnected) {
				p.Log().Errorf("Ping failed: %v", err)
			}
		}
	}
}

func (p *SocialPlugin) ping() error {
	p.connMu.Lock()
	defer p.connMu.Unlock()

	if !p.connected || p.conn == nil {
		return errors.ErrNotConnected
	}

	if err := p.conn.SetWriteDeadline(time.Now().Add(socialWriteTimeout)); err != nil {
		return err
	}

	if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		return errors.Wrapf(err, "failed to send ping")
	}

	return nil
}

func socialSuggestion(mean float64) string {
	switch {
	case mean >= 0.3:
		return "Crowd mood is euphoric, beware of crowded trades"
	case mean >= 0.1:
		return "Crowd mood leans optimistic"
	case mean > -0.1:
		return "Crowd mood is indifferent"
	case mean > -0.3:
		return "Crowd mood leans pessimistic"
	default:
		return "Crowd mood is capitulating"
	}
}
