package model

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrMissingSendoutData is returned when a sendout request has an empty field
var ErrMissingSendoutData = errors.New("Missing sendout data, please check your input.")

// DeliveryStatus is the outcome of one recipient's send attempt
type DeliveryStatus string

const (
	StatusOK    DeliveryStatus = "ok"
	StatusError DeliveryStatus = "error"
)

// SendoutRequest is the input of one sendout
type SendoutRequest struct {
	Username   string   `json:"username"`
	Password   string   `json:"password"`
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Message    string   `json:"message"`
}

// Validate checks that every field is present and non-empty
func (r SendoutRequest) Validate() error {
	if r.Username == "" || r.Password == "" || r.Subject == "" || r.Message == "" {
		return ErrMissingSendoutData
	}
	if len(r.Recipients) == 0 {
		return ErrMissingSendoutData
	}
	for _, addr := range r.Recipients {
		if addr == "" {
			return ErrMissingSendoutData
		}
	}
	return nil
}

// DeliveryRecord is the outcome entry for one recipient.
// SentAt is set only when Status is StatusOK.
type DeliveryRecord struct {
	Address string
	Status  DeliveryStatus
	SentAt  *time.Time
}

// NewDeliveryRecord builds the record for a finished send attempt
func NewDeliveryRecord(address string, status DeliveryStatus, now time.Time) DeliveryRecord {
	rec := DeliveryRecord{Address: address, Status: status}
	if status == StatusOK {
		rec.SentAt = &now
	}
	return rec
}

type deliveryRecordJSON struct {
	Address string         `json:"address"`
	Status  DeliveryStatus `json:"status"`
	SentAt  *int64         `json:"sent_at"`
}

// MarshalJSON encodes SentAt as unix milliseconds or null
func (d DeliveryRecord) MarshalJSON() ([]byte, error) {
	out := deliveryRecordJSON{Address: d.Address, Status: d.Status}
	if d.SentAt != nil {
		ms := d.SentAt.UnixMilli()
		out.SentAt = &ms
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the form produced by MarshalJSON
func (d *DeliveryRecord) UnmarshalJSON(data []byte) error {
	var in deliveryRecordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	d.Address = in.Address
	d.Status = in.Status
	d.SentAt = nil
	if in.SentAt != nil {
		t := time.UnixMilli(*in.SentAt)
		d.SentAt = &t
	}
	return nil
}

// SendoutResult is the payload printed at the end of a sendout.
// Exactly one of Res and Error is set.
type SendoutResult struct {
	Res   []DeliveryRecord `json:"res"`
	Error *string          `json:"error"`
}

// NewSendoutResult builds the payload from the orchestrator's return values
func NewSendoutResult(log []DeliveryRecord, err error) SendoutResult {
	if err != nil {
		msg := err.Error()
		return SendoutResult{Error: &msg}
	}
	if log == nil {
		log = []DeliveryRecord{}
	}
	return SendoutResult{Res: log}
}
