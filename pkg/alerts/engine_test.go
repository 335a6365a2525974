package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/healthharbor/prevcare/pkg/measure"
)

type fakeState struct {
	events map[string]time.Time
	alerts map[string]CareAlert
	puts   int
}

func newFakeState() *fakeState {
	return &fakeState{
		events: make(map[string]time.Time),
		alerts: make(map[string]CareAlert),
	}
}

func (s *fakeState) LatestQualifying(ctx context.Context, def measure.Definition) (time.Time, bool, error) {
	ts, ok := s.events[def.Code]
	return ts, ok, nil
}

func (s *fakeState) CurrentAlerts(ctx context.Context) ([]CareAlert, error) {
	rows := make([]CareAlert, 0, len(s.alerts))
	for _, a := range s.alerts {
		rows = append(rows, a)
	}
	return rows, nil
}

func (s *fakeState) PutAlert(ctx context.Context, alert CareAlert) error {
	s.puts++
	s.alerts[alert.Type] = alert
	return nil
}

func fluCatalog(windowDays int) measure.Catalog {
	return measure.Catalog{Measures: []measure.Definition{
		{Type: "FLU_OVERDUE", Source: measure.SourceImmunization, Code: "FLU", WindowDays: windowDays},
	}}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRecomputeOpensWhenNoEventEver(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	engine := NewEngine(measure.DefaultCatalog(), fixedClock(now))
	state := newFakeState()

	out, err := engine.Recompute(context.Background(), "M0001", state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Evaluated != 2 || out.Changed != 2 {
		t.Fatalf("expected 2 evaluated and 2 changed, got %+v", out)
	}
	for _, alertType := range []string{"A1C_OVERDUE", "FLU_OVERDUE"} {
		a, ok := state.alerts[alertType]
		if !ok {
			t.Fatalf("expected %s to materialize", alertType)
		}
		if a.Status != StatusOpen {
			t.Fatalf("%s: expected OPEN, got %s", alertType, a.Status)
		}
		if a.DetectedAt == nil || !a.DetectedAt.Equal(now) {
			t.Fatalf("%s: expected detected_at %v, got %v", alertType, now, a.DetectedAt)
		}
	}
}

func TestComplianceBoundaryInclusive(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	window := 180

	tests := []struct {
		name  string
		event time.Time
		want  Status
	}{
		{"exactly at boundary", now.Add(-time.Duration(window) * 24 * time.Hour), StatusClosed},
		{"one instant past boundary", now.Add(-time.Duration(window)*24*time.Hour - time.Nanosecond), StatusOpen},
		{"well within window", now.AddDate(0, 0, -10), StatusClosed},
		{"well past window", now.AddDate(0, 0, -400), StatusOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(fluCatalog(window), fixedClock(now))
			state := newFakeState()
			state.events["FLU"] = tt.event

			if _, err := engine.Recompute(context.Background(), "M0001", state); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := state.alerts["FLU_OVERDUE"].Status; got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestRecomputeIdempotent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	engine := NewEngine(fluCatalog(180), fixedClock(now))
	state := newFakeState()
	state.events["FLU"] = now.AddDate(0, 0, -200)

	first, err := engine.Recompute(context.Background(), "M0001", state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Changed != 1 {
		t.Fatalf("expected 1 change on first pass, got %d", first.Changed)
	}
	before := state.alerts["FLU_OVERDUE"]

	second, err := engine.Recompute(context.Background(), "M0001", state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Changed != 0 {
		t.Fatalf("expected no changes on second pass, got %d", second.Changed)
	}
	if state.puts != 1 {
		t.Fatalf("expected exactly one write, got %d", state.puts)
	}

	after := state.alerts["FLU_OVERDUE"]
	if !after.UpdatedAt.Equal(before.UpdatedAt) || !after.DetectedAt.Equal(*before.DetectedAt) {
		t.Fatal("no-op recompute must not touch timestamps")
	}
}

func TestDetectedAtMonotonicWhileOpen(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := start
	engine := NewEngine(fluCatalog(180), func() time.Time { return current })
	state := newFakeState()
	state.events["FLU"] = start.AddDate(0, 0, -200)

	if _, err := engine.Recompute(context.Background(), "M0001", state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	detected := state.alerts["FLU_OVERDUE"].DetectedAt

	// Alert stays OPEN across later recomputes; detected_at must not move.
	current = start.AddDate(0, 0, 30)
	out, err := engine.Recompute(context.Background(), "M0001", state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Changed != 0 {
		t.Fatalf("expected no change, got %d", out.Changed)
	}
	if got := state.alerts["FLU_OVERDUE"].DetectedAt; !got.Equal(*detected) {
		t.Fatalf("detected_at moved from %v to %v while OPEN", detected, got)
	}
}

func TestCloseClearsDetectedAt(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := start
	engine := NewEngine(fluCatalog(180), func() time.Time { return current })
	state := newFakeState()
	state.events["FLU"] = start.AddDate(0, 0, -200)

	if _, err := engine.Recompute(context.Background(), "M0001", state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.alerts["FLU_OVERDUE"].Status != StatusOpen {
		t.Fatal("expected alert to start OPEN")
	}

	current = start.Add(time.Hour)
	state.events["FLU"] = current.AddDate(0, 0, -10)
	out, err := engine.Recompute(context.Background(), "M0001", state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Changed != 1 {
		t.Fatalf("expected 1 change, got %d", out.Changed)
	}

	a := state.alerts["FLU_OVERDUE"]
	if a.Status != StatusClosed {
		t.Fatalf("expected CLOSED, got %s", a.Status)
	}
	if a.DetectedAt != nil {
		t.Fatalf("expected detected_at cleared, got %v", a.DetectedAt)
	}
	if !a.UpdatedAt.Equal(current) {
		t.Fatalf("expected updated_at refreshed to %v, got %v", current, a.UpdatedAt)
	}

	tr := out.Transitions[0]
	if tr.From != StatusOpen || tr.To != StatusClosed {
		t.Fatalf("unexpected transition %+v", tr)
	}
}

func TestReopenAfterEventAgesOut(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := start
	engine := NewEngine(fluCatalog(180), func() time.Time { return current })
	state := newFakeState()
	state.events["FLU"] = start.AddDate(0, 0, -10)

	if _, err := engine.Recompute(context.Background(), "M0001", state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.alerts["FLU_OVERDUE"].Status != StatusClosed {
		t.Fatal("expected alert to start CLOSED")
	}

	current = start.AddDate(0, 0, 300)
	out, err := engine.Recompute(context.Background(), "M0001", state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Changed != 1 {
		t.Fatalf("expected 1 change, got %d", out.Changed)
	}

	a := state.alerts["FLU_OVERDUE"]
	if a.Status != StatusOpen {
		t.Fatalf("expected OPEN, got %s", a.Status)
	}
	if a.DetectedAt == nil || !a.DetectedAt.Equal(current) {
		t.Fatalf("expected detected_at %v, got %v", current, a.DetectedAt)
	}
}

func TestMaterializesClosedRowOnFirstCompliantEvent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	engine := NewEngine(fluCatalog(180), fixedClock(now))
	state := newFakeState()
	state.events["FLU"] = now.AddDate(0, 0, -10)

	out, err := engine.Recompute(context.Background(), "M0001", state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Changed != 1 {
		t.Fatalf("expected 1 change, got %d", out.Changed)
	}

	a := state.alerts["FLU_OVERDUE"]
	if a.Status != StatusClosed {
		t.Fatalf("expected CLOSED, got %s", a.Status)
	}
	if a.DetectedAt != nil {
		t.Fatalf("expected no detected_at on a never-open alert, got %v", a.DetectedAt)
	}
}
