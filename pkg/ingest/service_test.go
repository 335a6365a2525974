package ingest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/healthharbor/prevcare/pkg/alerts"
	"github.com/healthharbor/prevcare/pkg/clinical"
	"github.com/healthharbor/prevcare/pkg/ingest"
	"github.com/healthharbor/prevcare/pkg/measure"
	"github.com/healthharbor/prevcare/pkg/member"
	"github.com/healthharbor/prevcare/pkg/store"
)

func fluCatalog(windowDays int) measure.Catalog {
	return measure.Catalog{Measures: []measure.Definition{
		{Type: "FLU_OVERDUE", Source: measure.SourceImmunization, Code: "FLU", WindowDays: windowDays},
	}}
}

func newTestService(catalog measure.Catalog, clock func() time.Time) (*ingest.Service, *store.Memory) {
	mem := store.NewMemory()
	engine := alerts.NewEngine(catalog, clock)
	return ingest.NewService(mem, engine, nil, nil, nil), mem
}

func TestFluAlertLifecycle(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, mem := newTestService(fluCatalog(180), func() time.Time { return now })
	ctx := context.Background()

	m, err := svc.EnrollMember(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A 200-day-old shot against a 180-day window opens the alert.
	out, err := svc.IngestImmunization(ctx, m.PublicID, clinical.ImmunizationInput{
		Code:           "FLU",
		AdministeredAt: now.AddDate(0, 0, -200),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Changed != 1 {
		t.Fatalf("expected 1 alert change, got %d", out.Changed)
	}

	rows, _ := mem.Alerts(m.PublicID)
	if len(rows) != 1 {
		t.Fatalf("expected 1 alert row, got %d", len(rows))
	}
	if rows[0].Type != "FLU_OVERDUE" || rows[0].Status != alerts.StatusOpen {
		t.Fatalf("unexpected alert: %+v", rows[0])
	}
	if rows[0].DetectedAt == nil || !rows[0].DetectedAt.Equal(now) {
		t.Fatalf("expected detected_at %v, got %v", now, rows[0].DetectedAt)
	}

	// A fresh shot closes it.
	out, err = svc.IngestImmunization(ctx, m.PublicID, clinical.ImmunizationInput{
		Code:           "FLU",
		AdministeredAt: now.AddDate(0, 0, -10),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Changed != 1 {
		t.Fatalf("expected 1 alert change, got %d", out.Changed)
	}

	rows, _ = mem.Alerts(m.PublicID)
	if rows[0].Status != alerts.StatusClosed {
		t.Fatalf("expected CLOSED, got %s", rows[0].Status)
	}
	if rows[0].DetectedAt != nil {
		t.Fatalf("expected detected_at cleared, got %v", rows[0].DetectedAt)
	}
	if !rows[0].UpdatedAt.Equal(now) {
		t.Fatalf("expected updated_at refreshed, got %v", rows[0].UpdatedAt)
	}

	// Recompute with nothing new changes nothing.
	out, err = svc.Recompute(ctx, m.PublicID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Changed != 0 {
		t.Fatalf("expected idempotent recompute, got %d changes", out.Changed)
	}
}

func TestIngestUnknownMember(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, mem := newTestService(fluCatalog(180), func() time.Time { return now })

	_, err := svc.IngestImmunization(context.Background(), "M9999", clinical.ImmunizationInput{
		Code:           "FLU",
		AdministeredAt: now,
	})
	if !errors.Is(err, member.ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound, got %v", err)
	}

	if _, err := mem.Alerts("M9999"); !errors.Is(err, member.ErrMemberNotFound) {
		t.Fatal("no state may exist for an unknown member")
	}
}

func TestIngestRejectsInvalidInput(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, mem := newTestService(fluCatalog(180), func() time.Time { return now })
	ctx := context.Background()
	m, _ := svc.EnrollMember(ctx)

	_, err := svc.IngestLabResult(ctx, m.PublicID, clinical.LabResultInput{
		ValueNum:    7.2,
		Unit:        "%",
		CollectedAt: now,
	})
	if !ingest.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = svc.IngestImmunization(ctx, m.PublicID, clinical.ImmunizationInput{Code: "FLU"})
	if !ingest.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	labs, imms, _ := mem.EventCounts(m.PublicID)
	if labs != 0 || imms != 0 {
		t.Fatalf("rejected input must not write events, got labs=%d imms=%d", labs, imms)
	}
}

func TestDuplicateImmunizationAbsorbed(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, mem := newTestService(fluCatalog(180), func() time.Time { return now })
	ctx := context.Background()
	m, _ := svc.EnrollMember(ctx)

	in := clinical.ImmunizationInput{Code: "FLU", AdministeredAt: now.AddDate(0, 0, -10)}
	if _, err := svc.IngestImmunization(ctx, m.PublicID, in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := svc.IngestImmunization(ctx, m.PublicID, in)
	if err != nil {
		t.Fatalf("duplicate submission must not error, got %v", err)
	}
	if out.Changed != 0 {
		t.Fatalf("duplicate submission must not change alerts, got %d", out.Changed)
	}

	_, imms, _ := mem.EventCounts(m.PublicID)
	if imms != 1 {
		t.Fatalf("expected 1 immunization row, got %d", imms)
	}
}

func TestFirstEventMaterializesAllMeasures(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, mem := newTestService(measure.DefaultCatalog(), func() time.Time { return now })
	ctx := context.Background()

	m, _ := svc.EnrollMember(ctx)

	// No recompute has run yet, so nothing is materialized.
	rows, _ := mem.Alerts(m.PublicID)
	if len(rows) != 0 {
		t.Fatalf("expected no alerts before first event, got %d", len(rows))
	}

	// A recent lab closes A1C and, with no flu shot ever, opens FLU.
	_, err := svc.IngestLabResult(ctx, m.PublicID, clinical.LabResultInput{
		Code:        "4548-4",
		ValueNum:    7.2,
		Unit:        "%",
		CollectedAt: now.AddDate(0, 0, -90),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, _ = mem.Alerts(m.PublicID)
	if len(rows) != 2 {
		t.Fatalf("expected both measures materialized, got %d", len(rows))
	}
	if rows[0].Type != "A1C_OVERDUE" || rows[0].Status != alerts.StatusClosed {
		t.Fatalf("unexpected A1C alert: %+v", rows[0])
	}
	if rows[1].Type != "FLU_OVERDUE" || rows[1].Status != alerts.StatusOpen {
		t.Fatalf("unexpected FLU alert: %+v", rows[1])
	}
}
