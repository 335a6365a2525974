package clinical

import (
	"context"
	"fmt"
	"time"

	"github.com/healthharbor/prevcare/pkg/measure"
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
	return r.db.AutoMigrate(&LabResult{}, &Immunization{})
}

func (r *Repository) UpsertLabResult(ctx context.Context, memberID int64, in LabResultInput) error {
	rec := LabResult{
		MemberID:    memberID,
		Code:        in.Code,
		CollectedAt: in.CollectedAt.UTC(),
		ValueNum:    in.ValueNum,
		Unit:        in.Unit,
		CreatedAt:   time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "member_id"}, {Name: "code"}, {Name: "collected_at"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"value_num", "unit"}),
	}).Create(&rec).Error
}

func (r *Repository) UpsertImmunization(ctx context.Context, memberID int64, in ImmunizationInput) error {
	rec := Immunization{
		MemberID:       memberID,
		Code:           in.Code,
		AdministeredAt: in.AdministeredAt.UTC(),
		CreatedAt:      time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "member_id"}, {Name: "code"}, {Name: "administered_at"},
		},
		DoNothing: true,
	}).Create(&rec).Error
}

// LatestQualifying returns the timestamp of the member's most recent event
// satisfying the measure definition, if any exists.
func (r *Repository) LatestQualifying(ctx context.Context, memberID int64, def measure.Definition) (time.Time, bool, error) {
	var latest *time.Time
	var err error

	switch def.Source {
	case measure.SourceLab:
		err = r.db.WithContext(ctx).Model(&LabResult{}).
			Select("MAX(collected_at)").
			Where("member_id = ? AND code = ?", memberID, def.Code).
			Scan(&latest).Error
	case measure.SourceImmunization:
		err = r.db.WithContext(ctx).Model(&Immunization{}).
			Select("MAX(administered_at)").
			Where("member_id = ? AND code = ?", memberID, def.Code).
			Scan(&latest).Error
	default:
		return time.Time{}, false, fmt.Errorf("unknown event source %q", def.Source)
	}

	if err != nil {
		return time.Time{}, false, err
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return latest.UTC(), true, nil
}
