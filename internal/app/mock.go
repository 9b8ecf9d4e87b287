package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MockBackend is an in-process stand-in for the drift detection service, used
// when no server is configured. It scores sessions with the same rule set the
// hosted model simulator uses, over the events it has been fed, so the
// dashboard behaves realistically offline. Nothing is persisted.
type MockBackend struct {
	mu       sync.Mutex
	sessions map[string]*mockSession
}

type mockSession struct {
	counts      map[EventType]int
	crowdedTabs int
	ended       bool
}

func NewMockBackend() *MockBackend {
	return &MockBackend{sessions: make(map[string]*mockSession)}
}

func (m *MockBackend) StartSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	m.mu.Lock()
	m.sessions[id] = &mockSession{counts: make(map[EventType]int)}
	m.mu.Unlock()
	return id, nil
}

func (m *MockBackend) ReportEvent(ctx context.Context, sessionID string, eventType EventType, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.ended {
		return fmt.Errorf("unknown session %q", sessionID)
	}
	s.counts[eventType]++
	if eventType == EventTabCount {
		if n, ok := asInt(data["count"]); ok && n > 3 {
			s.crowdedTabs++
		}
	}
	return nil
}

// Analysis reproduces the backend's rule-based scorer: weighted factors sum
// to a 0-100 score, drifting above 40.
func (m *MockBackend) Analysis(ctx context.Context, sessionID string) (DriftAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || len(s.counts) == 0 {
		return DriftAnalysis{
			Factors:        map[string]bool{},
			Recommendation: "Keep going! Start tracking your activity.",
		}, nil
	}

	scrolls := s.counts[EventScroll]
	clicks := s.counts[EventClick]
	moves := s.counts[EventMouseMove]
	idles := s.counts[EventIdle]

	score := 0.0
	factors := map[string]bool{}

	if scrolls > 20 && clicks < 3 {
		score += 25
		factors["excessive_scrolling"] = true
	}
	if idles > 3 {
		score += 30
		factors["idle_behavior"] = true
	}
	if s.crowdedTabs > 2 {
		score += 20
		factors["multiple_tabs"] = true
	}
	if moves > 50 && clicks < 5 {
		score += 15
		factors["erratic_movement"] = true
	}
	if scrolls+clicks+moves < 10 {
		score += 10
		factors["low_activity"] = true
	}

	isDrifting := score > 40
	confidence := score / 100.0
	if confidence > 0.95 {
		confidence = 0.95
	}

	var recommendation string
	switch {
	case !isDrifting:
		recommendation = "Great focus! Keep up the good work."
	case factors["idle_behavior"]:
		recommendation = "Take a short break or switch tasks to re-engage."
	case factors["excessive_scrolling"]:
		recommendation = "Focus on reading content instead of scrolling."
	case factors["multiple_tabs"]:
		recommendation = "Close unnecessary tabs to reduce distractions."
	default:
		recommendation = "Refocus on your current task."
	}

	return DriftAnalysis{
		IsDrifting:     isDrifting,
		Confidence:     confidence,
		DriftScore:     score,
		Factors:        factors,
		Recommendation: recommendation,
	}, nil
}

func (m *MockBackend) EndSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("unknown session %q", sessionID)
	}
	s.ended = true
	return nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
