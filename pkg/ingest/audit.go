package ingest

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	AuditAccepted = "accepted"
	AuditApplied  = "applied"
	AuditFailed   = "failed"
)

// AuditRecord traces every ingest attempt, including rejected ones. It lives
// outside the member transaction; alert state never depends on it.
type AuditRecord struct {
	ID        string            `json:"id" gorm:"primaryKey;column:id"`
	PublicID  string            `json:"public_id" gorm:"index;column:public_id"`
	Kind      string            `json:"kind" gorm:"column:kind"`
	Payload   datatypes.JSONMap `json:"payload" gorm:"column:payload"`
	Status    string            `json:"status" gorm:"column:status"`
	Error     string            `json:"error,omitempty" gorm:"column:error"`
	CreatedAt time.Time         `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time         `json:"updated_at" gorm:"column:updated_at"`
}

func (AuditRecord) TableName() string {
	return "ingest_audit"
}

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&AuditRecord{})
}

func (r *AuditRepository) Create(ctx context.Context, rec *AuditRecord) error {
	rec.CreatedAt = time.Now().UTC()
	rec.UpdatedAt = rec.CreatedAt
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *AuditRepository) UpdateStatus(ctx context.Context, id, status, errMsg string) error {
	return r.db.WithContext(ctx).Model(&AuditRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"error":      errMsg,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *AuditRepository) Recent(ctx context.Context, limit int) ([]AuditRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	var rows []AuditRecord
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
