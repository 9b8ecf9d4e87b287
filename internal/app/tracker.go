package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType names the raw signals forwarded to the backend.
type EventType string

const (
	EventScroll     EventType = "scroll"
	EventClick      EventType = "click"
	EventMouseMove  EventType = "mousemove"
	EventIdle       EventType = "idle"
	EventVisibility EventType = "visibility"
	EventTabCount   EventType = "tab_count"
)

// Backend is the remote collaborator the tracker reports to. Implemented by
// Client (HTTP) and MockBackend (in-process, for offline use).
type Backend interface {
	StartSession(ctx context.Context) (string, error)
	ReportEvent(ctx context.Context, sessionID string, eventType EventType, data map[string]any) error
	Analysis(ctx context.Context, sessionID string) (DriftAnalysis, error)
	EndSession(ctx context.Context, sessionID string) error
}

// Metrics holds the counters shown on the dashboard. Counters only grow while
// tracking is active; everything lives in memory and dies with the process.
type Metrics struct {
	ActiveTime  time.Duration
	Scrolls     int
	Clicks      int
	MouseBursts int
	IdleTime    time.Duration
	TabCount    int
}

// Options are the tracker's timing knobs. Zero values fall back to the
// defaults the backend model was tuned against; tests compress them.
type Options struct {
	ScrollDebounce      time.Duration
	MouseQuiet          time.Duration
	MouseBurstThreshold int
	IdleTick            time.Duration
	IdleThreshold       time.Duration
	ActiveTick          time.Duration
	PollInterval        time.Duration
	AlertDuration       time.Duration
	RequestTimeout      time.Duration
}

func DefaultOptions() Options {
	return Options{
		ScrollDebounce:      100 * time.Millisecond,
		MouseQuiet:          500 * time.Millisecond,
		MouseBurstThreshold: 5,
		IdleTick:            5 * time.Second,
		IdleThreshold:       5 * time.Second,
		ActiveTick:          time.Second,
		PollInterval:        10 * time.Second,
		AlertDuration:       5 * time.Second,
		RequestTimeout:      10 * time.Second,
	}
}

func (o Options) normalized() Options {
	def := DefaultOptions()
	if o.ScrollDebounce <= 0 {
		o.ScrollDebounce = def.ScrollDebounce
	}
	if o.MouseQuiet <= 0 {
		o.MouseQuiet = def.MouseQuiet
	}
	if o.MouseBurstThreshold <= 0 {
		o.MouseBurstThreshold = def.MouseBurstThreshold
	}
	if o.IdleTick <= 0 {
		o.IdleTick = def.IdleTick
	}
	if o.IdleThreshold <= 0 {
		o.IdleThreshold = def.IdleThreshold
	}
	if o.ActiveTick <= 0 {
		o.ActiveTick = def.ActiveTick
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.AlertDuration <= 0 {
		o.AlertDuration = def.AlertDuration
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = def.RequestTimeout
	}
	return o
}

// Snapshot is a consistent copy of the tracker state for rendering.
type Snapshot struct {
	Active    bool
	SessionID string
	Metrics   Metrics
	// Alert is non-nil while a drift alert is being shown.
	Alert *DriftAnalysis
	// Analysis is the most recent poll result, drifting or not.
	Analysis *DriftAnalysis
}

// Tracker converts raw input signals into debounced counters and tracking
// events, and polls the backend for a drift classification. All state sits
// behind one mutex; every mutation goes through it.
//
// The periodic work (active-time tick, idle sampling, analysis poll) runs on
// tickers owned by a single goroutine started by Start and stopped by Stop.
// Reports and polls each run in their own goroutine, so a slow backend stalls
// one cycle at most.
type Tracker struct {
	backend Backend
	logger  zerolog.Logger
	opts    Options

	mu           sync.Mutex
	active       bool
	sessionID    string
	metrics      Metrics
	lastActivity time.Time

	scrollOffset int
	scrollGen    uint64
	scrollTimer  *time.Timer

	mouseAccum int
	mouseGen   uint64
	mouseTimer *time.Timer

	alert      *DriftAnalysis
	alertTimer *time.Timer
	analysis   *DriftAnalysis

	stopCh chan struct{}
}

func NewTracker(backend Backend, logger zerolog.Logger, opts Options) *Tracker {
	return &Tracker{
		backend: backend,
		logger:  logger,
		opts:    opts.normalized(),
	}
}

// Start requests a session and begins tracking. If the session request fails
// nothing starts: no timers, no counters, no further requests.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.active {
		t.mu.Unlock()
		return errors.New("tracking already active")
	}
	t.mu.Unlock()

	sessionID, err := t.backend.StartSession(ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("session start failed")
		return fmt.Errorf("start tracking: %w", err)
	}

	t.mu.Lock()
	t.active = true
	t.sessionID = sessionID
	t.metrics = Metrics{TabCount: 1}
	t.lastActivity = time.Now()
	t.scrollOffset = 0
	t.mouseAccum = 0
	t.alert = nil
	t.analysis = nil
	t.stopCh = make(chan struct{})
	stop := t.stopCh
	t.mu.Unlock()

	t.logger.Info().Str("session_id", sessionID).Msg("tracking started")
	go t.run(stop)
	return nil
}

// Stop cancels every timer, clears the session and fires a best-effort
// delete. Safe to call twice; late poll responses are discarded because the
// active flag is already down.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	close(t.stopCh)
	t.stopCh = nil
	if t.scrollTimer != nil {
		t.scrollTimer.Stop()
		t.scrollTimer = nil
	}
	if t.mouseTimer != nil {
		t.mouseTimer.Stop()
		t.mouseTimer = nil
	}
	if t.alertTimer != nil {
		t.alertTimer.Stop()
		t.alertTimer = nil
	}
	sessionID := t.sessionID
	t.sessionID = ""
	t.alert = nil
	t.mouseAccum = 0
	t.mu.Unlock()

	t.logger.Info().Str("session_id", sessionID).Msg("tracking stopped")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.opts.RequestTimeout)
		defer cancel()
		if err := t.backend.EndSession(ctx, sessionID); err != nil {
			t.logger.Error().Err(err).Str("session_id", sessionID).Msg("session delete failed")
		}
	}()
}

// Scroll registers a scroll signal at the given vertical offset. Bursts are
// debounced: one counter increment and one report per quiet period, carrying
// the offset the burst ended at.
func (t *Tracker) Scroll(offset int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return
	}
	t.scrollOffset = offset
	t.scrollGen++
	gen := t.scrollGen
	if t.scrollTimer != nil {
		t.scrollTimer.Stop()
	}
	t.scrollTimer = time.AfterFunc(t.opts.ScrollDebounce, func() { t.flushScroll(gen) })
}

func (t *Tracker) flushScroll(gen uint64) {
	t.mu.Lock()
	if !t.active || gen != t.scrollGen {
		t.mu.Unlock()
		return
	}
	t.scrollTimer = nil
	t.metrics.Scrolls++
	sessionID, offset := t.sessionID, t.scrollOffset
	t.mu.Unlock()

	t.report(sessionID, EventScroll, map[string]any{"position": offset})
}

// Click registers a click at viewport coordinates. No debouncing.
func (t *Tracker) Click(x, y int) {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.metrics.Clicks++
	sessionID := t.sessionID
	t.mu.Unlock()

	t.report(sessionID, EventClick, map[string]any{"x": x, "y": y})
}

// MouseMove registers one raw movement. Moves accumulate until the pointer
// has been quiet for MouseQuiet; a burst bigger than the threshold is then
// reported once and counted as a single burst. The accumulator resets whether
// or not the threshold was met.
func (t *Tracker) MouseMove() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return
	}
	t.mouseAccum++
	t.lastActivity = time.Now()
	t.mouseGen++
	gen := t.mouseGen
	if t.mouseTimer != nil {
		t.mouseTimer.Stop()
	}
	t.mouseTimer = time.AfterFunc(t.opts.MouseQuiet, func() { t.flushMouse(gen) })
}

func (t *Tracker) flushMouse(gen uint64) {
	t.mu.Lock()
	if !t.active || gen != t.mouseGen {
		t.mu.Unlock()
		return
	}
	t.mouseTimer = nil
	count := t.mouseAccum
	t.mouseAccum = 0
	if count <= t.opts.MouseBurstThreshold {
		t.mu.Unlock()
		return
	}
	t.metrics.MouseBursts++
	sessionID := t.sessionID
	t.mu.Unlock()

	t.report(sessionID, EventMouseMove, map[string]any{"count": count})
}

// KeyPress marks keyboard activity for idle detection. Key contents are never
// recorded or reported.
func (t *Tracker) KeyPress() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return
	}
	t.lastActivity = time.Now()
}

// Visibility registers a focus change. Hidden transitions also bump the tab
// estimate and report it, which the backend scores as a distraction signal.
func (t *Tracker) Visibility(hidden bool) {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	sessionID := t.sessionID
	tabs := 0
	if hidden {
		t.metrics.TabCount++
		tabs = t.metrics.TabCount
	}
	t.mu.Unlock()

	t.report(sessionID, EventVisibility, map[string]any{"hidden": hidden})
	if hidden {
		t.report(sessionID, EventTabCount, map[string]any{"count": tabs})
	}
}

// Snapshot returns a copy of the current state for rendering.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Snapshot{
		Active:    t.active,
		SessionID: t.sessionID,
		Metrics:   t.metrics,
	}
	if t.alert != nil {
		a := *t.alert
		s.Alert = &a
	}
	if t.analysis != nil {
		a := *t.analysis
		s.Analysis = &a
	}
	return s
}

func (t *Tracker) run(stop chan struct{}) {
	activeTick := time.NewTicker(t.opts.ActiveTick)
	idleTick := time.NewTicker(t.opts.IdleTick)
	pollTick := time.NewTicker(t.opts.PollInterval)
	defer activeTick.Stop()
	defer idleTick.Stop()
	defer pollTick.Stop()

	for {
		select {
		case <-stop:
			return
		case <-activeTick.C:
			t.tickActive()
		case <-idleTick.C:
			t.tickIdle()
		case <-pollTick.C:
			go t.poll(stop)
		}
	}
}

func (t *Tracker) tickActive() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return
	}
	t.metrics.ActiveTime += t.opts.ActiveTick
}

// tickIdle samples the gap since the last qualifying activity (mouse move or
// key press). A gap over the threshold books one threshold's worth of idle
// time and resets the reference, so gaps longer than one tick are undercounted.
func (t *Tracker) tickIdle() {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	now := time.Now()
	if now.Sub(t.lastActivity) <= t.opts.IdleThreshold {
		t.mu.Unlock()
		return
	}
	t.metrics.IdleTime += t.opts.IdleThreshold
	t.lastActivity = now
	sessionID := t.sessionID
	seconds := t.opts.IdleThreshold.Seconds()
	t.mu.Unlock()

	t.report(sessionID, EventIdle, map[string]any{"duration": seconds})
}

func (t *Tracker) poll(stop chan struct{}) {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	sessionID := t.sessionID
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), t.opts.RequestTimeout)
	defer cancel()
	result, err := t.backend.Analysis(ctx, sessionID)
	if err != nil {
		t.logger.Error().Err(err).Str("session_id", sessionID).Msg("analysis poll failed")
		return
	}

	select {
	case <-stop:
		return
	default:
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active || t.sessionID != sessionID {
		// Response landed after Stop; nothing left to update.
		return
	}
	t.analysis = &result
	if result.IsDrifting && t.alert == nil {
		alert := result
		t.alert = &alert
		t.alertTimer = time.AfterFunc(t.opts.AlertDuration, t.clearAlert)
	}
}

func (t *Tracker) clearAlert() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.alert = nil
	t.alertTimer = nil
}

// report sends one event without blocking the caller. Failures are logged and
// swallowed: telemetry is advisory, never transactional.
func (t *Tracker) report(sessionID string, eventType EventType, data map[string]any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.opts.RequestTimeout)
		defer cancel()
		if err := t.backend.ReportEvent(ctx, sessionID, eventType, data); err != nil {
			t.logger.Error().Err(err).Str("event", string(eventType)).Msg("event report failed")
		}
	}()
}
