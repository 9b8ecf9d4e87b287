package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	sessionID string
	eventType EventType
	data      map[string]any
}

type fakeBackend struct {
	mu            sync.Mutex
	startErr      error
	events        []recordedEvent
	ended         []string
	analysisCalls int
	analysisFn    func(call int) (DriftAnalysis, error)
}

func (f *fakeBackend) StartSession(ctx context.Context) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	return "sess-1", nil
}

func (f *fakeBackend) ReportEvent(ctx context.Context, sessionID string, eventType EventType, data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{sessionID: sessionID, eventType: eventType, data: data})
	return nil
}

func (f *fakeBackend) Analysis(ctx context.Context, sessionID string) (DriftAnalysis, error) {
	f.mu.Lock()
	f.analysisCalls++
	call := f.analysisCalls
	fn := f.analysisFn
	f.mu.Unlock()
	if fn != nil {
		return fn(call)
	}
	return DriftAnalysis{}, nil
}

func (f *fakeBackend) EndSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, sessionID)
	return nil
}

func (f *fakeBackend) eventsOf(eventType EventType) []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedEvent
	for _, ev := range f.events {
		if ev.eventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeBackend) endedSessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ended...)
}

func (f *fakeBackend) polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.analysisCalls
}

// testOptions compresses every interval so the properties can be observed in
// milliseconds. Poll and alert timers are parked unless a test needs them.
func testOptions() Options {
	return Options{
		ScrollDebounce:      40 * time.Millisecond,
		MouseQuiet:          40 * time.Millisecond,
		MouseBurstThreshold: 5,
		IdleTick:            30 * time.Millisecond,
		IdleThreshold:       30 * time.Millisecond,
		ActiveTick:          10 * time.Millisecond,
		PollInterval:        time.Hour,
		AlertDuration:       time.Hour,
		RequestTimeout:      time.Second,
	}
}

func startedTracker(t *testing.T, backend *fakeBackend, opts Options) *Tracker {
	t.Helper()
	tr := NewTracker(backend, zerolog.Nop(), opts)
	require.NoError(t, tr.Start(context.Background()))
	t.Cleanup(tr.Stop)
	return tr
}

func TestScrollBurst_OneIncrementOneReport(t *testing.T) {
	backend := &fakeBackend{}
	tr := startedTracker(t, backend, testOptions())

	for i := 1; i <= 5; i++ {
		tr.Scroll(i * 20)
	}
	time.Sleep(150 * time.Millisecond)

	snap := tr.Snapshot()
	assert.Equal(t, 1, snap.Metrics.Scrolls)

	events := backend.eventsOf(EventScroll)
	require.Len(t, events, 1)
	assert.Equal(t, "sess-1", events[0].sessionID)
	assert.Equal(t, 100, events[0].data["position"], "report carries the offset the burst ended at")

	// A second burst counts again.
	tr.Scroll(130)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 2, tr.Snapshot().Metrics.Scrolls)
	assert.Len(t, backend.eventsOf(EventScroll), 2)
}

func TestMouseBurst_ThresholdAndAccumulatorReset(t *testing.T) {
	backend := &fakeBackend{}
	tr := startedTracker(t, backend, testOptions())

	// Six raw moves: over the threshold, one aggregated report.
	for i := 0; i < 6; i++ {
		tr.MouseMove()
	}
	time.Sleep(150 * time.Millisecond)

	snap := tr.Snapshot()
	assert.Equal(t, 1, snap.Metrics.MouseBursts, "bursts are counted, not raw moves")
	events := backend.eventsOf(EventMouseMove)
	require.Len(t, events, 1)
	assert.Equal(t, 6, events[0].data["count"])

	// Three moves: below the threshold, nothing reported, nothing counted.
	for i := 0; i < 3; i++ {
		tr.MouseMove()
	}
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, tr.Snapshot().Metrics.MouseBursts)
	assert.Len(t, backend.eventsOf(EventMouseMove), 1)

	// The accumulator was reset: a fresh burst of seven reports seven, not ten.
	for i := 0; i < 7; i++ {
		tr.MouseMove()
	}
	time.Sleep(150 * time.Millisecond)
	events = backend.eventsOf(EventMouseMove)
	require.Len(t, events, 2)
	assert.Equal(t, 7, events[1].data["count"])
}

func TestIdleSampling_AccruesPerQuietTick(t *testing.T) {
	backend := &fakeBackend{}
	opts := testOptions()
	tr := startedTracker(t, backend, opts)

	time.Sleep(120 * time.Millisecond)
	tr.Stop()
	// Let in-flight reports land before counting them.
	time.Sleep(50 * time.Millisecond)

	snap := tr.Snapshot()
	require.GreaterOrEqual(t, snap.Metrics.IdleTime, 2*opts.IdleThreshold)
	assert.Zero(t, snap.Metrics.IdleTime%opts.IdleThreshold, "idle accrues in whole thresholds")

	events := backend.eventsOf(EventIdle)
	require.NotEmpty(t, events)
	assert.Equal(t, int(snap.Metrics.IdleTime/opts.IdleThreshold), len(events))
	for _, ev := range events {
		assert.InDelta(t, opts.IdleThreshold.Seconds(), ev.data["duration"], 1e-9)
	}
}

func TestIdleSampling_MouseMovementPreventsIdle(t *testing.T) {
	backend := &fakeBackend{}
	tr := startedTracker(t, backend, testOptions())

	deadline := time.Now().Add(120 * time.Millisecond)
	for time.Now().Before(deadline) {
		tr.MouseMove()
		time.Sleep(10 * time.Millisecond)
	}

	assert.Zero(t, tr.Snapshot().Metrics.IdleTime)
	assert.Empty(t, backend.eventsOf(EventIdle))
}

func TestIdleSampling_ClicksAreNotQualifyingActivity(t *testing.T) {
	backend := &fakeBackend{}
	tr := startedTracker(t, backend, testOptions())

	deadline := time.Now().Add(120 * time.Millisecond)
	for time.Now().Before(deadline) {
		tr.Click(1, 1)
		time.Sleep(10 * time.Millisecond)
	}

	assert.Greater(t, tr.Snapshot().Metrics.IdleTime, time.Duration(0),
		"only mouse movement and key presses reset the idle reference")
}

func TestStartFailure_NothingRuns(t *testing.T) {
	backend := &fakeBackend{startErr: errors.New("backend down")}
	tr := NewTracker(backend, zerolog.Nop(), testOptions())

	err := tr.Start(context.Background())
	require.Error(t, err)

	tr.Scroll(10)
	tr.Click(1, 1)
	tr.MouseMove()
	tr.Visibility(true)
	time.Sleep(120 * time.Millisecond)

	snap := tr.Snapshot()
	assert.False(t, snap.Active)
	assert.Equal(t, Metrics{}, snap.Metrics)
	assert.Empty(t, backend.events)
	assert.Zero(t, backend.polls())
}

func TestStart_WhileActiveFails(t *testing.T) {
	backend := &fakeBackend{}
	tr := startedTracker(t, backend, testOptions())
	assert.Error(t, tr.Start(context.Background()))
}

func TestDriftAlert_RaisesOnceThenAutoClears(t *testing.T) {
	var drifting atomic.Bool
	drifting.Store(true)

	backend := &fakeBackend{}
	backend.analysisFn = func(call int) (DriftAnalysis, error) {
		return DriftAnalysis{
			IsDrifting: drifting.Load(),
			DriftScore: float64(call),
			Confidence: 0.5,
		}, nil
	}

	opts := testOptions()
	opts.PollInterval = 20 * time.Millisecond
	opts.AlertDuration = 150 * time.Millisecond
	tr := startedTracker(t, backend, opts)

	time.Sleep(90 * time.Millisecond)
	snap := tr.Snapshot()
	require.NotNil(t, snap.Alert, "a drifting result raises an alert")
	require.NotNil(t, snap.Analysis)
	assert.Less(t, snap.Alert.DriftScore, snap.Analysis.DriftScore,
		"later drifting polls replace the analysis but never the live alert")

	// Stop producing drift and let the dismiss timer run out.
	drifting.Store(false)
	time.Sleep(250 * time.Millisecond)
	snap = tr.Snapshot()
	assert.Nil(t, snap.Alert, "alert auto-clears after the alert duration")
	require.NotNil(t, snap.Analysis)
	assert.False(t, snap.Analysis.IsDrifting)
}

func TestStop_CancelsEverything(t *testing.T) {
	backend := &fakeBackend{}
	opts := testOptions()
	opts.PollInterval = 30 * time.Millisecond
	tr := startedTracker(t, backend, opts)

	// Leave debounce timers pending, then stop before they fire.
	tr.Scroll(10)
	for i := 0; i < 6; i++ {
		tr.MouseMove()
	}
	tr.Stop()
	tr.Stop() // idempotent
	frozen := tr.Snapshot().Metrics

	time.Sleep(150 * time.Millisecond)

	snap := tr.Snapshot()
	assert.False(t, snap.Active)
	assert.Empty(t, snap.SessionID)
	assert.Equal(t, frozen, snap.Metrics, "no counter moves after stop")
	assert.Empty(t, backend.eventsOf(EventScroll), "pending debounce timers are cancelled")
	assert.Empty(t, backend.eventsOf(EventMouseMove))
	assert.Zero(t, backend.polls(), "poll ticker is cancelled")
	assert.Equal(t, []string{"sess-1"}, backend.endedSessions(), "one best-effort delete")

	// Signals after stop are no-ops.
	tr.Scroll(99)
	tr.Click(1, 1)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, frozen, tr.Snapshot().Metrics)
}

func TestVisibility_ReportsStateAndTabEstimate(t *testing.T) {
	backend := &fakeBackend{}
	tr := startedTracker(t, backend, testOptions())

	tr.Visibility(true)
	tr.Visibility(false)
	time.Sleep(50 * time.Millisecond)

	vis := backend.eventsOf(EventVisibility)
	require.Len(t, vis, 2)
	assert.Equal(t, true, vis[0].data["hidden"])
	assert.Equal(t, false, vis[1].data["hidden"])

	tabs := backend.eventsOf(EventTabCount)
	require.Len(t, tabs, 1, "only hidden transitions report the tab estimate")
	assert.Equal(t, 2, tabs[0].data["count"])
	assert.Equal(t, 2, tr.Snapshot().Metrics.TabCount)
}

func TestActiveTime_AccruesWhileTracking(t *testing.T) {
	backend := &fakeBackend{}
	tr := startedTracker(t, backend, testOptions())

	time.Sleep(100 * time.Millisecond)
	assert.GreaterOrEqual(t, tr.Snapshot().Metrics.ActiveTime, 50*time.Millisecond)
}

func TestRestart_GetsFreshCounters(t *testing.T) {
	backend := &fakeBackend{}
	tr := startedTracker(t, backend, testOptions())

	tr.Click(1, 1)
	tr.Stop()
	require.NoError(t, tr.Start(context.Background()))

	snap := tr.Snapshot()
	assert.True(t, snap.Active)
	assert.Zero(t, snap.Metrics.Clicks, "counters reset on restart")
	assert.Equal(t, 1, snap.Metrics.TabCount)
}
