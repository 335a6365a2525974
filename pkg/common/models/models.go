package models

import (
	"time"
)

// Event is the bus envelope shared by the Kafka producer and consumer.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // lab_result, immunization, alert_transition
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// Clinical event types carried over the bus.
const (
	EventTypeLabResult       = "lab_result"
	EventTypeImmunization    = "immunization"
	EventTypeAlertTransition = "alert_transition"
)
