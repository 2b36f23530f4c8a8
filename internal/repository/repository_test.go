package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cardhub/card-service/internal/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cardCols = []string{"id", "encrypted_number", "masked_number", "owner_id", "owner_name",
	"status", "expiry_date", "balance", "deleted", "created_at", "updated_at"}

func cardRow(id int64, encrypted string, status models.CardStatus, balance string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(cardCols).
		AddRow(id, encrypted, "**** **** **** 7890", int64(1), "John Doe",
			string(status), now.AddDate(5, 0, 0), balance, false, now, now)
}

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func TestCreateCard(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO bank\.cards`).
		WithArgs("cipher", "**** **** **** 7890", int64(1), "John Doe",
			"ACTIVE", sqlmock.AnyArg(), "0").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(7), now, now))

	card := &models.Card{
		EncryptedNumber: "cipher",
		MaskedNumber:    "**** **** **** 7890",
		OwnerID:         1,
		OwnerName:       "John Doe",
		Status:          models.StatusActive,
		ExpiryDate:      now.AddDate(5, 0, 0),
		Balance:         decimal.Zero,
	}
	require.NoError(t, repo.CreateCard(card))
	assert.Equal(t, int64(7), card.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExistsCardByEncryptedNumber(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("cipher").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsCardByEncryptedNumber("cipher")
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindCardByEncryptedNumber(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM bank\.cards WHERE encrypted_number = \$1 AND deleted = FALSE`).
		WithArgs("cipher").
		WillReturnRows(cardRow(3, "cipher", models.StatusActive, "1000"))

	card, err := repo.FindCardByEncryptedNumber("cipher")
	require.NoError(t, err)
	assert.Equal(t, int64(3), card.ID)
	assert.Equal(t, models.StatusActive, card.Status)
	assert.True(t, card.Balance.Equal(decimal.NewFromInt(1000)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindCardByEncryptedNumberNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM bank\.cards WHERE encrypted_number`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(cardCols))

	_, err := repo.FindCardByEncryptedNumber("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindCardByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM bank\.cards WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(cardCols))

	_, err := repo.FindCardByID(99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindExpiredCandidates(t *testing.T) {
	repo, mock := newMockRepo(t)
	asOf := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	rows := cardRow(1, "c1", models.StatusActive, "100")
	now := time.Now()
	rows.AddRow(int64(2), "c2", "**** **** **** 1111", int64(2), "Jane Roe",
		"BLOCKED", now.AddDate(-1, 0, 0), "50", false, now, now)

	mock.ExpectQuery(`WHERE expiry_date < \$1 AND status <> \$2 AND deleted = FALSE`).
		WithArgs(asOf, "EXPIRED").
		WillReturnRows(rows)

	cards, err := repo.FindExpiredCandidates(asOf)
	require.NoError(t, err)
	assert.Len(t, cards, 2)
}

func TestListCardsFilter(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`LOWER\(owner_name\) LIKE \$1 OR LOWER\(masked_number\) LIKE \$1`).
		WithArgs("%doe%", "BLOCKED", false).
		WillReturnRows(cardRow(3, "cipher", models.StatusBlocked, "10"))

	cards, err := repo.ListCards(CardFilter{Keyword: "Doe", Status: models.StatusBlocked})
	require.NoError(t, err)
	assert.Len(t, cards, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListCardsIncludeDeleted(t *testing.T) {
	repo, mock := newMockRepo(t)
	deleted := true

	mock.ExpectQuery(`WHERE deleted = \$1 ORDER BY id DESC`).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows(cardCols))

	cards, err := repo.ListCards(CardFilter{Deleted: &deleted})
	require.NoError(t, err)
	assert.Empty(t, cards)
}

func TestUpdateCardNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE bank\.cards`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	card := &models.Card{ID: 42, Status: models.StatusActive, Balance: decimal.Zero}
	assert.ErrorIs(t, repo.UpdateCard(card), ErrNotFound)
}

func TestWithinTxCommit(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(cardRow(1, "cipher", models.StatusActive, "100"))
	mock.ExpectExec(`UPDATE bank\.cards`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.WithinTx(context.Background(), func(tx *TxRepository) error {
		card, err := tx.FindCardForUpdate(1)
		if err != nil {
			return err
		}
		card.Balance = card.Balance.Add(decimal.NewFromInt(50))
		return tx.UpdateCard(card)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollback(t *testing.T) {
	repo, mock := newMockRepo(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := repo.WithinTx(context.Background(), func(tx *TxRepository) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTransactionInTx(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO bank\.transactions`).
		WithArgs(int64(1), "100", "DEPOSIT", "Card fill operation").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(5), now))
	mock.ExpectCommit()

	err := repo.WithinTx(context.Background(), func(tx *TxRepository) error {
		return tx.CreateTransaction(&models.Transaction{
			CardID:      1,
			Amount:      decimal.NewFromInt(100),
			Type:        models.TypeDeposit,
			Description: "Card fill operation",
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("plain")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestCreateUser(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO bank\.users`).
		WithArgs("john@example.com", "John Doe", "hash").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), now))

	user := &models.User{Email: "john@example.com", FullName: "John Doe", PasswordHash: "hash"}
	require.NoError(t, repo.CreateUser(user))
	assert.Equal(t, int64(1), user.ID)
}

func TestFindUserByEmailNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM bank\.users`).
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "full_name", "password_hash", "deleted", "created_at"}))

	_, err := repo.FindUserByEmail("ghost@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}
