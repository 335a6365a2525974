package ingest

import (
	"context"

	"github.com/google/uuid"
	"github.com/healthharbor/prevcare/pkg/alerts"
	"github.com/healthharbor/prevcare/pkg/clinical"
	"github.com/healthharbor/prevcare/pkg/common/kafka"
	"github.com/healthharbor/prevcare/pkg/common/logger"
	"github.com/healthharbor/prevcare/pkg/common/models"
	"github.com/healthharbor/prevcare/pkg/member"
	"github.com/healthharbor/prevcare/pkg/observability/metrics"
	"github.com/healthharbor/prevcare/pkg/store"
)

// Service is the ingestion coordinator: it appends an event and recomputes
// the member's alerts as one atomic unit. Either both the event and every
// resulting alert mutation commit, or neither does.
type Service struct {
	runner   store.Runner
	engine   *alerts.Engine
	audit    *AuditRepository
	producer *kafka.Producer
	dlq      *kafka.Producer
}

// NewService wires the coordinator. Audit, producer, and dlq may be nil.
func NewService(runner store.Runner, engine *alerts.Engine, audit *AuditRepository, producer *kafka.Producer, dlq *kafka.Producer) *Service {
	return &Service{
		runner:   runner,
		engine:   engine,
		audit:    audit,
		producer: producer,
		dlq:      dlq,
	}
}

func (s *Service) EnrollMember(ctx context.Context) (member.Member, error) {
	m, err := s.runner.EnrollMember(ctx)
	if err != nil {
		return member.Member{}, err
	}

	metrics.IncEnrollments()
	logger.WithMember(m.PublicID).Info("member enrolled")
	return m, nil
}

func (s *Service) IngestLabResult(ctx context.Context, publicID string, in clinical.LabResultInput) (alerts.Outcome, error) {
	if err := validateLabResult(in); err != nil {
		return alerts.Outcome{}, err
	}

	auditID := s.beginAudit(ctx, publicID, models.EventTypeLabResult, map[string]interface{}{
		"code":         in.Code,
		"value_num":    in.ValueNum,
		"unit":         in.Unit,
		"collected_at": in.CollectedAt,
	})

	var out alerts.Outcome
	err := s.runner.RunMemberTx(ctx, publicID, func(ctx context.Context, tx store.MemberTx) error {
		if err := tx.UpsertLabResult(ctx, in); err != nil {
			return err
		}
		o, err := s.engine.Recompute(ctx, publicID, tx.State())
		if err != nil {
			return err
		}
		out = o
		return nil
	})

	return s.finish(ctx, publicID, auditID, out, err)
}

func (s *Service) IngestImmunization(ctx context.Context, publicID string, in clinical.ImmunizationInput) (alerts.Outcome, error) {
	if err := validateImmunization(in); err != nil {
		return alerts.Outcome{}, err
	}

	auditID := s.beginAudit(ctx, publicID, models.EventTypeImmunization, map[string]interface{}{
		"code":            in.Code,
		"administered_at": in.AdministeredAt,
	})

	var out alerts.Outcome
	err := s.runner.RunMemberTx(ctx, publicID, func(ctx context.Context, tx store.MemberTx) error {
		if err := tx.UpsertImmunization(ctx, in); err != nil {
			return err
		}
		o, err := s.engine.Recompute(ctx, publicID, tx.State())
		if err != nil {
			return err
		}
		out = o
		return nil
	})

	return s.finish(ctx, publicID, auditID, out, err)
}

// Recompute re-derives the member's alerts without appending an event.
// Idempotent: with no new events it changes zero rows.
func (s *Service) Recompute(ctx context.Context, publicID string) (alerts.Outcome, error) {
	var out alerts.Outcome
	err := s.runner.RunMemberTx(ctx, publicID, func(ctx context.Context, tx store.MemberTx) error {
		o, err := s.engine.Recompute(ctx, publicID, tx.State())
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return alerts.Outcome{}, err
	}

	metrics.AddAlertTransitions(out.Changed)
	s.publishTransitions(ctx, publicID, out)
	return out, nil
}

func (s *Service) finish(ctx context.Context, publicID, auditID string, out alerts.Outcome, err error) (alerts.Outcome, error) {
	if err != nil {
		metrics.IncIngestFailed()
		s.endAudit(ctx, auditID, AuditFailed, err.Error())
		return alerts.Outcome{}, err
	}

	metrics.IncIngestAccepted()
	metrics.AddAlertTransitions(out.Changed)
	s.endAudit(ctx, auditID, AuditApplied, "")
	s.publishTransitions(ctx, publicID, out)

	logger.WithMember(publicID).WithField("changed", out.Changed).Info("event ingested")
	return out, nil
}

func (s *Service) beginAudit(ctx context.Context, publicID, kind string, payload map[string]interface{}) string {
	if s.audit == nil {
		return ""
	}
	rec := &AuditRecord{
		ID:       uuid.New().String(),
		PublicID: publicID,
		Kind:     kind,
		Payload:  payload,
		Status:   AuditAccepted,
	}
	if err := s.audit.Create(ctx, rec); err != nil {
		logger.Log.WithError(err).Warn("failed to write ingest audit record")
		return ""
	}
	return rec.ID
}

func (s *Service) endAudit(ctx context.Context, auditID, status, errMsg string) {
	if s.audit == nil || auditID == "" {
		return
	}
	if err := s.audit.UpdateStatus(ctx, auditID, status, errMsg); err != nil {
		logger.Log.WithError(err).Warn("failed to update ingest audit record")
	}
}

// publishTransitions emits committed status changes to the bus. The ingest
// has already committed; a publish failure is logged and routed to the DLQ,
// never surfaced to the caller.
func (s *Service) publishTransitions(ctx context.Context, publicID string, out alerts.Outcome) {
	if s.producer == nil {
		return
	}
	for _, tr := range out.Transitions {
		data := map[string]interface{}{
			"public_id": publicID,
			"type":      tr.Type,
			"from":      tr.From,
			"to":        tr.To,
			"at":        tr.At,
		}
		if err := s.producer.PublishEvent(ctx, models.EventTypeAlertTransition, publicID, data); err != nil {
			logger.Log.WithError(err).Error("failed to publish alert transition")
			if s.dlq != nil {
				if dlqErr := s.dlq.PublishEvent(ctx, models.EventTypeAlertTransition, publicID, data); dlqErr != nil {
					logger.Log.WithError(dlqErr).Error("failed to push alert transition to DLQ")
				}
			}
		}
	}
}
