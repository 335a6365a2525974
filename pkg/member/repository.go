package member

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrMemberNotFound = errors.New("member not found")

type Repository struct {
	db *gorm.DB
}

// NewRepository binds to a handle, which may be a transaction.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Member{})
}

// NextPublicID derives the next identifier from the highest existing numeric
// suffix. Best effort under concurrent enrollment; the unique constraint plus
// upsert absorbs a re-issued identifier.
func (r *Repository) NextPublicID(ctx context.Context) (string, error) {
	var next string
	err := r.db.WithContext(ctx).Raw(`
		SELECT 'M' || LPAD((COALESCE(MAX(substring(public_id from 2)::int), 0) + 1)::text, 4, '0')
		FROM members
	`).Scan(&next).Error
	if err != nil {
		return "", err
	}
	return next, nil
}

// Upsert creates the member, or refreshes sex and updated_at when the public
// identifier was already issued.
func (r *Repository) Upsert(ctx context.Context, publicID, sex string) (Member, error) {
	now := time.Now().UTC()
	m := Member{
		PublicID:  publicID,
		Sex:       sex,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "public_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"sex": sex, "updated_at": now}),
	}).Create(&m).Error
	if err != nil {
		return Member{}, err
	}

	return r.GetByPublicID(ctx, publicID)
}

func (r *Repository) GetByPublicID(ctx context.Context, publicID string) (Member, error) {
	var m Member
	err := r.db.WithContext(ctx).Where("public_id = ?", publicID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Member{}, ErrMemberNotFound
	}
	if err != nil {
		return Member{}, err
	}
	return m, nil
}

// GetForUpdate locks the member row for the duration of the surrounding
// transaction, serializing concurrent ingests for the same member.
func (r *Repository) GetForUpdate(ctx context.Context, publicID string) (Member, error) {
	var m Member
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("public_id = ?", publicID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Member{}, ErrMemberNotFound
	}
	if err != nil {
		return Member{}, err
	}
	return m, nil
}
