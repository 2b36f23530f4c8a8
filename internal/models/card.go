package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CardStatus is the lifecycle state of a card.
type CardStatus string

const (
	StatusActive  CardStatus = "ACTIVE"
	StatusBlocked CardStatus = "BLOCKED"
	StatusExpired CardStatus = "EXPIRED"
)

// ParseCardStatus converts a string into a known CardStatus.
func ParseCardStatus(s string) (CardStatus, error) {
	switch CardStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusActive:
		return StatusActive, nil
	case StatusBlocked:
		return StatusBlocked, nil
	case StatusExpired:
		return StatusExpired, nil
	}
	return "", fmt.Errorf("unknown card status: %q", s)
}

// CanTransition reports whether a status change is allowed.
// ACTIVE and BLOCKED may swap via admin action, either may expire,
// and EXPIRED is terminal.
func CanTransition(from, to CardStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusActive:
		return to == StatusBlocked || to == StatusExpired
	case StatusBlocked:
		return to == StatusActive || to == StatusExpired
	}
	return false
}

// Card represents a bank card and its balance
type Card struct {
	ID              int64           `json:"id"`
	EncryptedNumber string          `json:"-"` // Unique lookup key, never the plaintext
	MaskedNumber    string          `json:"masked_number"`
	OwnerID         int64           `json:"owner_id"`
	OwnerName       string          `json:"owner_name"`
	Status          CardStatus      `json:"status"`
	ExpiryDate      time.Time       `json:"expiry_date"`
	Balance         decimal.Decimal `json:"balance"`
	Deleted         bool            `json:"deleted"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// IsExpiredAt reports whether the card's expiry date is strictly before
// the calendar day of the given instant.
func (c *Card) IsExpiredAt(now time.Time) bool {
	return c.ExpiryDate.Before(Today(now))
}

// Today returns the UTC midnight of the given instant.
func Today(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
