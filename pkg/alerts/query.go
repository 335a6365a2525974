package alerts

import (
	"context"
	"strings"
	"time"

	"github.com/healthharbor/prevcare/pkg/member"
	"gorm.io/gorm"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// QueryService is the read-only aggregation surface over the alert store.
// It relies on the store's own read consistency; no coordination with ingests.
type QueryService struct {
	db      *gorm.DB
	members *member.Repository
}

func NewQueryService(db *gorm.DB) *QueryService {
	return &QueryService{db: db, members: member.NewRepository(db)}
}

// AlertsForMember returns the member's alerts ordered by type. An unknown
// public id yields member.ErrMemberNotFound; a known member with no alerts
// yields an empty slice.
func (q *QueryService) AlertsForMember(ctx context.Context, publicID string) ([]CareAlert, error) {
	m, err := q.members.GetByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}

	var rows []CareAlert
	err = q.db.WithContext(ctx).
		Where("member_id = ?", m.MemberID).
		Order("type").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type StatusCount struct {
	Status Status `json:"status" gorm:"column:status"`
	Count  int    `json:"count" gorm:"column:count"`
}

// SummaryByType counts members per status for one alert type.
func (q *QueryService) SummaryByType(ctx context.Context, alertType string) ([]StatusCount, error) {
	rows := []StatusCount{}
	err := q.db.WithContext(ctx).Raw(`
		SELECT status, COUNT(*)::int AS count
		FROM care_alerts
		WHERE type = ?
		GROUP BY status
		ORDER BY status
	`, alertType).Scan(&rows).Error
	return rows, err
}

type OpenAlertsItem struct {
	PublicID    string    `json:"public_id"`
	Sex         string    `json:"sex"`
	AlertTypes  []string  `json:"alert_types"`
	LastUpdated time.Time `json:"last_updated"`
}

type OpenAlertsPage struct {
	Total int              `json:"total"`
	Items []OpenAlertsItem `json:"items"`
}

// ClampLimit bounds the page size to [1, 200], defaulting to 50.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}

func ClampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

// OpenAlertsPage lists members holding at least one OPEN alert, optionally
// filtered to one type, most recently updated first with public id as the
// tie-break.
func (q *QueryService) OpenAlertsPage(ctx context.Context, alertType string, limit, offset int) (OpenAlertsPage, error) {
	limit = ClampLimit(limit)
	offset = ClampOffset(offset)

	page := OpenAlertsPage{Items: []OpenAlertsItem{}}

	err := q.db.WithContext(ctx).Raw(`
		WITH filtered AS (
			SELECT m.public_id
			FROM care_alerts ca
			JOIN members m ON m.member_id = ca.member_id
			WHERE ca.status = 'OPEN'
			  AND (? = '' OR ca.type = ?)
			GROUP BY m.public_id
		)
		SELECT COUNT(*)::int FROM filtered
	`, alertType, alertType).Scan(&page.Total).Error
	if err != nil {
		return OpenAlertsPage{}, err
	}

	var rows []struct {
		PublicID    string    `gorm:"column:public_id"`
		Sex         string    `gorm:"column:sex"`
		AlertTypes  string    `gorm:"column:alert_types"`
		LastUpdated time.Time `gorm:"column:last_updated"`
	}

	err = q.db.WithContext(ctx).Raw(`
		SELECT m.public_id,
		       m.sex,
		       STRING_AGG(DISTINCT ca.type, ',' ORDER BY ca.type) AS alert_types,
		       MAX(ca.updated_at)                                 AS last_updated
		FROM care_alerts ca
		JOIN members m ON m.member_id = ca.member_id
		WHERE ca.status = 'OPEN'
		  AND (? = '' OR ca.type = ?)
		GROUP BY m.public_id, m.sex
		ORDER BY last_updated DESC, m.public_id
		LIMIT ? OFFSET ?
	`, alertType, alertType, limit, offset).Scan(&rows).Error
	if err != nil {
		return OpenAlertsPage{}, err
	}

	for _, row := range rows {
		page.Items = append(page.Items, OpenAlertsItem{
			PublicID:    row.PublicID,
			Sex:         row.Sex,
			AlertTypes:  strings.Split(row.AlertTypes, ","),
			LastUpdated: row.LastUpdated,
		})
	}

	return page, nil
}
