package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/healthharbor/prevcare/pkg/alerts"
	"github.com/healthharbor/prevcare/pkg/clinical"
	"github.com/healthharbor/prevcare/pkg/member"
)

func TestEnrollSequenceAndParity(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	m1, err := s.EnrollMember(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m1.PublicID != "M0001" || m1.Sex != member.SexMale {
		t.Fatalf("unexpected first member: %+v", m1)
	}

	m2, _ := s.EnrollMember(ctx)
	if m2.PublicID != "M0002" || m2.Sex != member.SexFemale {
		t.Fatalf("unexpected second member: %+v", m2)
	}

	m3, _ := s.EnrollMember(ctx)
	if m3.PublicID != "M0003" || m3.Sex != member.SexMale {
		t.Fatalf("unexpected third member: %+v", m3)
	}
}

func TestRunMemberTxUnknownMember(t *testing.T) {
	s := NewMemory()
	err := s.RunMemberTx(context.Background(), "M9999", func(ctx context.Context, tx MemberTx) error {
		t.Fatal("callback must not run for unknown member")
		return nil
	})
	if !errors.Is(err, member.ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound, got %v", err)
	}
}

func TestRollbackLeavesPriorStateIntact(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	m, _ := s.EnrollMember(ctx)

	injected := errors.New("injected failure")
	err := s.RunMemberTx(ctx, m.PublicID, func(ctx context.Context, tx MemberTx) error {
		if err := tx.UpsertLabResult(ctx, clinical.LabResultInput{
			Code:        "4548-4",
			ValueNum:    7.2,
			Unit:        "%",
			CollectedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.State().PutAlert(ctx, alerts.CareAlert{
			Type:      "A1C_OVERDUE",
			Status:    alerts.StatusOpen,
			UpdatedAt: now,
		}); err != nil {
			return err
		}
		// Failure after both writes: neither may survive.
		return injected
	})
	if !errors.Is(err, injected) {
		t.Fatalf("expected injected error, got %v", err)
	}

	labs, imms, err := s.EventCounts(m.PublicID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if labs != 0 || imms != 0 {
		t.Fatalf("expected no events after rollback, got labs=%d imms=%d", labs, imms)
	}
	rows, _ := s.Alerts(m.PublicID)
	if len(rows) != 0 {
		t.Fatalf("expected no alerts after rollback, got %d", len(rows))
	}
}

func TestLabResultUpsertCorrectsInPlace(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	m, _ := s.EnrollMember(ctx)

	collectedAt := time.Date(2025, 3, 1, 9, 15, 0, 0, time.UTC)
	for _, value := range []float64{7.1, 7.4} {
		err := s.RunMemberTx(ctx, m.PublicID, func(ctx context.Context, tx MemberTx) error {
			return tx.UpsertLabResult(ctx, clinical.LabResultInput{
				Code:        "4548-4",
				ValueNum:    value,
				Unit:        "%",
				CollectedAt: collectedAt,
			})
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	labs, _, err := s.EventCounts(m.PublicID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if labs != 1 {
		t.Fatalf("expected duplicate submission to collapse to 1 row, got %d", labs)
	}
}

func TestImmunizationResubmissionIsNoop(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	m, _ := s.EnrollMember(ctx)

	administeredAt := time.Date(2024, 10, 15, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		err := s.RunMemberTx(ctx, m.PublicID, func(ctx context.Context, tx MemberTx) error {
			return tx.UpsertImmunization(ctx, clinical.ImmunizationInput{
				Code:           "FLU",
				AdministeredAt: administeredAt,
			})
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	_, imms, err := s.EventCounts(m.PublicID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if imms != 1 {
		t.Fatalf("expected 1 immunization row, got %d", imms)
	}
}

func TestConcurrentMembersDoNotContaminate(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	m1, _ := s.EnrollMember(ctx)
	m2, _ := s.EnrollMember(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		offset := i
		go func() {
			defer wg.Done()
			_ = s.RunMemberTx(ctx, m1.PublicID, func(ctx context.Context, tx MemberTx) error {
				return tx.UpsertLabResult(ctx, clinical.LabResultInput{
					Code:        "4548-4",
					ValueNum:    7.0,
					Unit:        "%",
					CollectedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset),
				})
			})
		}()
		go func() {
			defer wg.Done()
			_ = s.RunMemberTx(ctx, m2.PublicID, func(ctx context.Context, tx MemberTx) error {
				return tx.UpsertImmunization(ctx, clinical.ImmunizationInput{
					Code:           "FLU",
					AdministeredAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset),
				})
			})
		}()
	}
	wg.Wait()

	labs1, imms1, _ := s.EventCounts(m1.PublicID)
	labs2, imms2, _ := s.EventCounts(m2.PublicID)
	if labs1 != 50 || imms1 != 0 {
		t.Fatalf("member 1: expected 50 labs and 0 immunizations, got %d/%d", labs1, imms1)
	}
	if labs2 != 0 || imms2 != 50 {
		t.Fatalf("member 2: expected 0 labs and 50 immunizations, got %d/%d", labs2, imms2)
	}
}
