package clinical

import (
	"time"
)

// LabResult is an immutable clinical record. Resubmitting the same
// (member, code, collected_at) corrects value and unit in place.
type LabResult struct {
	MemberID    int64     `json:"-" gorm:"primaryKey;column:member_id"`
	Code        string    `json:"code" gorm:"primaryKey;column:code"`
	CollectedAt time.Time `json:"collected_at" gorm:"primaryKey;column:collected_at"`
	ValueNum    float64   `json:"value_num" gorm:"column:value_num"`
	Unit        string    `json:"unit" gorm:"column:unit"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at"`
}

func (LabResult) TableName() string {
	return "lab_results"
}

// Immunization resubmissions for the same (member, code, administered_at)
// are a no-op.
type Immunization struct {
	MemberID       int64     `json:"-" gorm:"primaryKey;column:member_id"`
	Code           string    `json:"code" gorm:"primaryKey;column:code"`
	AdministeredAt time.Time `json:"administered_at" gorm:"primaryKey;column:administered_at"`
	CreatedAt      time.Time `json:"created_at" gorm:"column:created_at"`
}

func (Immunization) TableName() string {
	return "immunizations"
}

type LabResultInput struct {
	Code        string    `json:"code"`
	ValueNum    float64   `json:"value_num"`
	Unit        string    `json:"unit"`
	CollectedAt time.Time `json:"collected_at"`
}

type ImmunizationInput struct {
	Code           string    `json:"code"`
	AdministeredAt time.Time `json:"administered_at"`
}
