package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/healthharbor/prevcare/pkg/measure"
)

// MemberState is the engine's view of one member's durable state inside the
// surrounding transaction: event history reads and alert writes.
type MemberState interface {
	LatestQualifying(ctx context.Context, def measure.Definition) (time.Time, bool, error)
	CurrentAlerts(ctx context.Context) ([]CareAlert, error)
	PutAlert(ctx context.Context, alert CareAlert) error
}

// Engine derives the correct status for every measure from the member's event
// history and applies the minimal state transition. It holds no mutable state
// between calls; every recompute re-reads durable storage.
type Engine struct {
	catalog measure.Catalog
	now     func() time.Time
}

// NewEngine builds an engine over a catalog. A nil clock means wall time;
// tests inject a fixed one.
func NewEngine(catalog measure.Catalog, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{catalog: catalog, now: clock}
}

// Recompute evaluates every catalog measure for the member behind state and
// writes only the rows whose materialized status actually changes. Running it
// twice with no intervening events changes nothing the second time.
func (e *Engine) Recompute(ctx context.Context, publicID string, state MemberState) (Outcome, error) {
	now := e.now().UTC()

	current, err := state.CurrentAlerts(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("reading alert state: %w", err)
	}
	byType := make(map[string]CareAlert, len(current))
	for _, a := range current {
		byType[a.Type] = a
	}

	var out Outcome
	for _, def := range e.catalog.DefinitionsFor(publicID) {
		out.Evaluated++

		latest, hasEvent, err := state.LatestQualifying(ctx, def)
		if err != nil {
			return Outcome{}, fmt.Errorf("reading event history for %s: %w", def.Type, err)
		}

		target := targetStatus(def, latest, hasEvent, now)
		cur, exists := byType[def.Type]
		next, changed := nextAlert(cur, exists, def.Type, target, now)
		if !changed {
			continue
		}

		if err := state.PutAlert(ctx, next); err != nil {
			return Outcome{}, fmt.Errorf("writing alert %s: %w", def.Type, err)
		}
		out.Changed++

		tr := Transition{Type: def.Type, To: next.Status, At: now}
		if exists {
			tr.From = cur.Status
		}
		out.Transitions = append(out.Transitions, tr)
	}

	return out, nil
}

// targetStatus applies the compliance rule. The boundary is inclusive: an
// event whose age equals the window exactly is still compliant.
func targetStatus(def measure.Definition, latest time.Time, hasEvent bool, now time.Time) Status {
	if hasEvent && now.Sub(latest) <= def.Window() {
		return StatusClosed
	}
	return StatusOpen
}

// nextAlert computes the minimal row mutation. An absent row is materialized
// with the target status; a row already at the target is left untouched,
// timestamps included. DetectedAt moves only on a transition into OPEN.
func nextAlert(cur CareAlert, exists bool, alertType string, target Status, now time.Time) (CareAlert, bool) {
	if !exists {
		a := CareAlert{Type: alertType, Status: target, UpdatedAt: now}
		if target == StatusOpen {
			detected := now
			a.DetectedAt = &detected
		}
		return a, true
	}

	if cur.Status == target {
		return cur, false
	}

	cur.Status = target
	cur.UpdatedAt = now
	if target == StatusOpen {
		detected := now
		cur.DetectedAt = &detected
	} else {
		cur.DetectedAt = nil
	}
	return cur, true
}
