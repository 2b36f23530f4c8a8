package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cardhub/card-service/internal/models"
	"github.com/lib/pq"
)

// ErrNotFound is returned when a requested row does not exist or is
// soft-deleted.
var ErrNotFound = errors.New("record not found")

// Repository provides database operations
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// TxRepository exposes the row-locking operations available inside a
// unit of work started by WithinTx.
type TxRepository struct {
	tx *sql.Tx
}

// WithinTx runs fn inside one database transaction. All writes commit
// or roll back together; any error from fn rolls everything back.
func (r *Repository) WithinTx(ctx context.Context, fn func(tx *TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&TxRepository{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (after: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether an error is a Postgres unique
// constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// CreateUser creates a new user in the database
func (r *Repository) CreateUser(user *models.User) error {
	query := `
		INSERT INTO bank.users (email, full_name, password_hash, deleted, created_at)
		VALUES ($1, $2, $3, FALSE, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.db.QueryRow(query, user.Email, user.FullName, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindUserByEmail retrieves a non-deleted user by email
func (r *Repository) FindUserByEmail(email string) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT id, email, full_name, password_hash, deleted, created_at
		FROM bank.users
		WHERE email = $1 AND deleted = FALSE`
	err := r.db.QueryRow(query, email).
		Scan(&user.ID, &user.Email, &user.FullName, &user.PasswordHash, &user.Deleted, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// FindUserByID retrieves a non-deleted user by id
func (r *Repository) FindUserByID(id int64) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT id, email, full_name, password_hash, deleted, created_at
		FROM bank.users
		WHERE id = $1 AND deleted = FALSE`
	err := r.db.QueryRow(query, id).
		Scan(&user.ID, &user.Email, &user.FullName, &user.PasswordHash, &user.Deleted, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

const cardColumns = `id, encrypted_number, masked_number, owner_id, owner_name, status, expiry_date, balance, deleted, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*models.Card, error) {
	card := &models.Card{}
	err := row.Scan(&card.ID, &card.EncryptedNumber, &card.MaskedNumber, &card.OwnerID,
		&card.OwnerName, &card.Status, &card.ExpiryDate, &card.Balance,
		&card.Deleted, &card.CreatedAt, &card.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return card, nil
}

// CreateCard inserts a new card
func (r *Repository) CreateCard(card *models.Card) error {
	query := `
		INSERT INTO bank.cards (encrypted_number, masked_number, owner_id, owner_name, status, expiry_date, balance, deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(query, card.EncryptedNumber, card.MaskedNumber, card.OwnerID,
		card.OwnerName, card.Status, card.ExpiryDate, card.Balance).
		Scan(&card.ID, &card.CreatedAt, &card.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create card: %w", err)
	}
	return nil
}

// ExistsCardByEncryptedNumber checks the uniqueness of an encrypted number
func (r *Repository) ExistsCardByEncryptedNumber(encrypted string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM bank.cards WHERE encrypted_number = $1)`
	if err := r.db.QueryRow(query, encrypted).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check card existence: %w", err)
	}
	return exists, nil
}

// FindCardByEncryptedNumber retrieves a non-deleted card by its encrypted number
func (r *Repository) FindCardByEncryptedNumber(encrypted string) (*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM bank.cards WHERE encrypted_number = $1 AND deleted = FALSE`
	card, err := scanCard(r.db.QueryRow(query, encrypted))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find card: %w", err)
	}
	return card, nil
}

// FindCardByID retrieves a non-deleted card by id
func (r *Repository) FindCardByID(id int64) (*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM bank.cards WHERE id = $1 AND deleted = FALSE`
	card, err := scanCard(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find card: %w", err)
	}
	return card, nil
}

// FindCardsByOwner lists a user's non-deleted cards, newest first
func (r *Repository) FindCardsByOwner(ownerID int64) ([]*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM bank.cards WHERE owner_id = $1 AND deleted = FALSE ORDER BY id DESC`
	rows, err := r.db.Query(query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()
	return collectCards(rows)
}

// CardFilter narrows card listings. Deleted defaults to excluding
// soft-deleted rows.
type CardFilter struct {
	Keyword string
	Status  models.CardStatus
	Deleted *bool
}

// ListCards returns cards matching the filter, newest first
func (r *Repository) ListCards(filter CardFilter) ([]*models.Card, error) {
	var conds []string
	var args []any

	if kw := strings.TrimSpace(filter.Keyword); kw != "" {
		args = append(args, "%"+strings.ToLower(kw)+"%")
		p := fmt.Sprintf("$%d", len(args))
		conds = append(conds, fmt.Sprintf("(LOWER(owner_name) LIKE %s OR LOWER(masked_number) LIKE %s)", p, p))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	deleted := false
	if filter.Deleted != nil {
		deleted = *filter.Deleted
	}
	args = append(args, deleted)
	conds = append(conds, fmt.Sprintf("deleted = $%d", len(args)))

	query := `SELECT ` + cardColumns + ` FROM bank.cards WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY id DESC`
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()
	return collectCards(rows)
}

// FindExpiredCandidates returns non-deleted cards whose expiry date has
// passed but that are not yet EXPIRED.
func (r *Repository) FindExpiredCandidates(asOf time.Time) ([]*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM bank.cards
		WHERE expiry_date < $1 AND status <> $2 AND deleted = FALSE`
	rows, err := r.db.Query(query, asOf, models.StatusExpired)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired candidates: %w", err)
	}
	defer rows.Close()
	return collectCards(rows)
}

func collectCards(rows *sql.Rows) ([]*models.Card, error) {
	cards := []*models.Card{}
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cards: %w", err)
	}
	return cards, nil
}

const updateCardQuery = `
	UPDATE bank.cards
	SET masked_number = $2, owner_name = $3, status = $4, expiry_date = $5, balance = $6, deleted = $7, updated_at = CURRENT_TIMESTAMP
	WHERE id = $1`

// UpdateCard persists a full-row overwrite of a card
func (r *Repository) UpdateCard(card *models.Card) error {
	res, err := r.db.Exec(updateCardQuery, card.ID, card.MaskedNumber, card.OwnerName,
		card.Status, card.ExpiryDate, card.Balance, card.Deleted)
	if err != nil {
		return fmt.Errorf("failed to update card: %w", err)
	}
	return checkUpdated(res)
}

// FindCardForUpdate locks and returns a card row for the rest of the
// unit of work.
func (t *TxRepository) FindCardForUpdate(id int64) (*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM bank.cards WHERE id = $1 AND deleted = FALSE FOR UPDATE`
	card, err := scanCard(t.tx.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock card: %w", err)
	}
	return card, nil
}

// UpdateCard persists a card inside the unit of work
func (t *TxRepository) UpdateCard(card *models.Card) error {
	res, err := t.tx.Exec(updateCardQuery, card.ID, card.MaskedNumber, card.OwnerName,
		card.Status, card.ExpiryDate, card.Balance, card.Deleted)
	if err != nil {
		return fmt.Errorf("failed to update card: %w", err)
	}
	return checkUpdated(res)
}

// CreateTransaction appends a ledger entry inside the unit of work
func (t *TxRepository) CreateTransaction(entry *models.Transaction) error {
	query := `
		INSERT INTO bank.transactions (card_id, amount, type, description, created_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := t.tx.QueryRow(query, entry.CardID, entry.Amount, entry.Type, entry.Description).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func checkUpdated(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
