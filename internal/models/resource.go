package models

import "time"

// CachedResource is one response stored in a versioned cache generation.
// Generation plus URL uniquely identify a resource; writes overwrite
// (last writer wins per key).
type CachedResource struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Generation string    `gorm:"index:idx_gen_url,unique" json:"generation"`
	URL        string    `gorm:"index:idx_gen_url,unique" json:"url"`
	StatusCode int       `json:"statusCode"`
	Headers    string    `json:"headers"` // JSON-encoded header map
	Body       []byte    `json:"body"`
	StoredAt   time.Time `json:"storedAt"`
}
