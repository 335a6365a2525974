package alerts

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

// NewRepository binds to a handle, which may be a transaction.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&CareAlert{})
}

func (r *Repository) ForMember(ctx context.Context, memberID int64) ([]CareAlert, error) {
	var rows []CareAlert
	err := r.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("type").
		Find(&rows).Error
	return rows, err
}

// Upsert writes the singleton row for (member, type).
func (r *Repository) Upsert(ctx context.Context, memberID int64, alert CareAlert) error {
	alert.MemberID = memberID
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "member_id"}, {Name: "type"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "detected_at", "updated_at"}),
	}).Create(&alert).Error
}
