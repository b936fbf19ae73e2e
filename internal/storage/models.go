package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyFinal is returned when a terminal-state update targets a record
// that already reached completed or failed. Terminal records never move.
var ErrAlreadyFinal = errors.New("record already in a terminal state")

// Video statuses. There is no persisted "pending": a record is created only
// after validation and staging succeed, already in processing.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Video is one submitted file's signing attempt and its outcome.
type Video struct {
	ID           string
	OriginalName string
	ContentHash  string // SHA-256 of the uploaded bytes, set at creation
	OutputName   string // signed artifact filename, set only on completion
	DeviceInfo   string // opaque JSON from the client, "" when absent
	Status       string // processing, completed, failed
	ErrorDetail  string // set only on failure
	CreatedAt    time.Time
	CompletedAt  time.Time // zero until the record reaches a terminal state
}

// Terminal reports whether the record has reached completed or failed.
func (v Video) Terminal() bool {
	return v.Status == StatusCompleted || v.Status == StatusFailed
}
