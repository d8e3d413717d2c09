package models

import "time"

// PendingMutation is a write that failed to reach the upstream while offline
// and is queued for replay on the next sync trigger. The credential token is
// stored opaquely so the replay can authenticate as the original caller.
// Items survive repeated replay failures; there is no dead-letter state.
type PendingMutation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	LocalID   string    `gorm:"uniqueIndex" json:"localId"`
	Method    string    `json:"method"`
	Endpoint  string    `json:"endpoint"`
	Body      []byte    `json:"body"`
	Token     string    `json:"-"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"createdAt"`
}
