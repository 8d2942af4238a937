// Package models holds the records shared between the storage, service and
// job layers.
package models

import "time"

// RefreshTokenRecord is the single persisted credential for a subject.
type RefreshTokenRecord struct {
	Subject      string    `json:"sub"`
	RefreshToken string    `json:"refresh_token"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
