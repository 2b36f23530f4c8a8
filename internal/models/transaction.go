package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TypeDeposit  TransactionType = "DEPOSIT"
	TypeTransfer TransactionType = "TRANSFER"
)

// Transaction is an append-only ledger entry attached to the
// originating card. Entries are never updated or deleted.
type Transaction struct {
	ID          int64           `json:"id"`
	CardID      int64           `json:"card_id"`
	Amount      decimal.Decimal `json:"amount"`
	Type        TransactionType `json:"type"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}
