package member

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sex values follow the closed enumeration from the enrollment feed.
const (
	SexFemale  = "F"
	SexMale    = "M"
	SexUnknown = "U"
)

// Member is an enrolled individual. MemberID is the internal key and never
// leaves the service; PublicID is the stable human-referenceable identifier.
type Member struct {
	MemberID  int64     `json:"-" gorm:"primaryKey;autoIncrement;column:member_id"`
	PublicID  string    `json:"public_id" gorm:"uniqueIndex;column:public_id"`
	Sex       string    `json:"sex" gorm:"column:sex"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (Member) TableName() string {
	return "members"
}

// FormatPublicID renders the canonical M-prefixed, zero-padded identifier.
func FormatPublicID(seq int) string {
	return fmt.Sprintf("M%04d", seq)
}

// SequenceOf parses the numeric suffix of a public identifier.
func SequenceOf(publicID string) (int, error) {
	trimmed := strings.TrimPrefix(publicID, "M")
	if trimmed == publicID || trimmed == "" {
		return 0, fmt.Errorf("malformed public id %q", publicID)
	}
	return strconv.Atoi(trimmed)
}

// SexForSequence assigns the demographic attribute deterministically from the
// allocation sequence: even numbers enroll as F, odd as M.
func SexForSequence(seq int) string {
	if seq%2 == 0 {
		return SexFemale
	}
	return SexMale
}
