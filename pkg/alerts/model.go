package alerts

import (
	"time"
)

type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// CareAlert is the materialized current status of one measure for one member.
// At most one row exists per (member, type); there is no transition log beyond
// the two timestamps.
type CareAlert struct {
	MemberID   int64      `json:"-" gorm:"primaryKey;column:member_id"`
	Type       string     `json:"type" gorm:"primaryKey;column:type"`
	Status     Status     `json:"status" gorm:"column:status"`
	DetectedAt *time.Time `json:"detected_at" gorm:"column:detected_at"`
	UpdatedAt  time.Time  `json:"updated_at" gorm:"column:updated_at"`
}

func (CareAlert) TableName() string {
	return "care_alerts"
}

// Transition records a single status change applied by a recompute.
// From is empty when the alert row was first materialized.
type Transition struct {
	Type string    `json:"type"`
	From Status    `json:"from,omitempty"`
	To   Status    `json:"to"`
	At   time.Time `json:"at"`
}

// Outcome summarizes one recompute pass.
type Outcome struct {
	Evaluated   int          `json:"evaluated"`
	Changed     int          `json:"changed"`
	Transitions []Transition `json:"transitions,omitempty"`
}
