package model

import "time"

// SendoutState is the lifecycle state of a persisted sendout
type SendoutState string

const (
	SendoutRunning   SendoutState = "running"
	SendoutCompleted SendoutState = "completed"
	SendoutFailed    SendoutState = "failed"
)

// Sendout is one persisted sendout run
type Sendout struct {
	ID                 string       `json:"id"`
	AccountFingerprint string       `json:"accountFingerprint"`
	Subject            string       `json:"subject"`
	RecipientCount     int          `json:"recipientCount"`
	State              SendoutState `json:"state"`
	Error              *string      `json:"error,omitempty"`
	StartedAt          time.Time    `json:"startedAt"`
	FinishedAt         *time.Time   `json:"finishedAt,omitempty"`
}

// StoredDelivery is a delivery record as kept in the history store
type StoredDelivery struct {
	SendoutID string         `json:"sendoutId"`
	Position  int            `json:"position"`
	Record    DeliveryRecord `json:"record"`
}
