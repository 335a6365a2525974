package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/healthharbor/prevcare/pkg/alerts"
	"github.com/healthharbor/prevcare/pkg/clinical"
	"github.com/healthharbor/prevcare/pkg/common/config"
	"github.com/healthharbor/prevcare/pkg/common/database"
	"github.com/healthharbor/prevcare/pkg/common/kafka"
	"github.com/healthharbor/prevcare/pkg/common/logger"
	"github.com/healthharbor/prevcare/pkg/common/models"
	"github.com/healthharbor/prevcare/pkg/ingest"
	"github.com/healthharbor/prevcare/pkg/measure"
	"github.com/healthharbor/prevcare/pkg/member"
	"github.com/healthharbor/prevcare/pkg/store"
)

// event-worker consumes clinical events from the bus and feeds them through
// the ingestion coordinator. Delivery is at-least-once; the idempotent event
// keys absorb redelivered messages.
func main() {
	logger.Init()
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.Close(db)

	pg := store.NewPostgres(db)
	if err := pg.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate tables")
	}

	auditRepo := ingest.NewAuditRepository(db)
	if err := auditRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate audit table")
	}

	catalog, err := measure.Load(cfg.CatalogPath)
	if err != nil {
		logger.Log.WithError(err).Warn("failed to load measure catalog, using defaults")
	}

	engine := alerts.NewEngine(catalog, nil)

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.AlertTransitionsTopic)
	defer producer.Close()

	var dlqProducer *kafka.Producer
	if cfg.DLQTopic != "" {
		dlqProducer = kafka.NewProducer(cfg.KafkaBrokers, cfg.DLQTopic)
		defer dlqProducer.Close()
	}

	svc := ingest.NewService(pg, engine, auditRepo, producer, dlqProducer)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.ClinicalEventsTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	go func() {
		logger.Log.WithField("topic", cfg.ClinicalEventsTopic).Info("Event worker started")
		if err := consumer.Consume(ctx, handleEvent(svc)); err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.WithError(err).Error("consumer stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down event worker...")
	cancel()
	logger.Log.Info("Event worker stopped")
}

func handleEvent(svc *ingest.Service) kafka.EventHandler {
	return func(ctx context.Context, event models.Event) error {
		publicID, _ := event.Data["public_id"].(string)

		var err error
		switch event.Type {
		case models.EventTypeLabResult:
			in := clinical.LabResultInput{
				Code:     stringField(event.Data, "code"),
				ValueNum: floatField(event.Data, "value_num"),
				Unit:     stringField(event.Data, "unit"),
			}
			in.CollectedAt, err = timeField(event.Data, "collected_at")
			if err == nil {
				_, err = svc.IngestLabResult(ctx, publicID, in)
			}
		case models.EventTypeImmunization:
			in := clinical.ImmunizationInput{
				Code: stringField(event.Data, "code"),
			}
			in.AdministeredAt, err = timeField(event.Data, "administered_at")
			if err == nil {
				_, err = svc.IngestImmunization(ctx, publicID, in)
			}
		default:
			logger.Log.WithField("event_type", event.Type).Warn("skipping unknown event type")
			return nil
		}

		// Malformed payloads and unknown members will not heal on retry;
		// commit them so the partition keeps moving.
		if err != nil {
			if ingest.IsValidationError(err) || errors.Is(err, member.ErrMemberNotFound) || isParseError(err) {
				logger.WithMember(publicID).WithError(err).Warn("dropping unprocessable clinical event")
				return nil
			}
			return err
		}
		return nil
	}
}

func isParseError(err error) bool {
	var pe *time.ParseError
	return errors.As(err, &pe)
}

func stringField(data map[string]interface{}, key string) string {
	s, _ := data[key].(string)
	return s
}

func floatField(data map[string]interface{}, key string) float64 {
	f, _ := data[key].(float64)
	return f
}

func timeField(data map[string]interface{}, key string) (time.Time, error) {
	raw, _ := data[key].(string)
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", key, err)
	}
	return ts, nil
}
