package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is an anonymous identity issued to one client profile. The
// device secret is only ever stored hashed.
type Participant struct {
	ID         uuid.UUID `json:"id"`
	SecretHash string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
