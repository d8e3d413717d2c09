package models

import "time"

// CacheSnapshot persists one serialized blob per named request-cache store.
// The blob is a JSON array of [key, entry] pairs written wholesale on every
// mutation; there is no schema versioning beyond tolerating a bad blob.
type CacheSnapshot struct {
	StoreName string    `gorm:"primaryKey" json:"storeName"`
	Blob      []byte    `json:"blob"`
	UpdatedAt time.Time `json:"updatedAt"`
}
