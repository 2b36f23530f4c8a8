package models

import "time"

// User represents a card owner in the system
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"` // Not serialized
	Deleted      bool      `json:"deleted"`
	CreatedAt    time.Time `json:"created_at"`
}
