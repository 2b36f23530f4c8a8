package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cardhub/card-service/internal/cardcrypt"
	"github.com/cardhub/card-service/internal/config"
	"github.com/cardhub/card-service/internal/models"
	"github.com/cardhub/card-service/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ExpiryNotifier is told when the sweeper expires a card. Sending is
// best-effort; failures never affect the sweep.
type ExpiryNotifier interface {
	SendCardExpired(to, name, maskedNumber string, expiry time.Time) error
}

// Service handles business logic
type Service struct {
	repo     *repository.Repository
	codec    *cardcrypt.Codec
	log      *logrus.Logger
	config   *config.Config
	notifier ExpiryNotifier
	now      func() time.Time
}

// NewService initializes a new service. notifier may be nil when SMTP
// is not configured.
func NewService(repo *repository.Repository, codec *cardcrypt.Codec, log *logrus.Logger, cfg *config.Config, notifier ExpiryNotifier) *Service {
	return &Service{
		repo:     repo,
		codec:    codec,
		log:      log,
		config:   cfg,
		notifier: notifier,
		now:      time.Now,
	}
}

// AddCard issues a new card for the given owner. The card starts
// ACTIVE with a zero balance and a fixed-term expiry.
func (s *Service) AddCard(ctx context.Context, ownerID int64) (*models.Card, error) {
	number, err := cardcrypt.GenerateNumber(s.config.CardPrefix, s.config.CardLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate card number: %w", err)
	}
	encrypted, err := s.codec.Encrypt(number)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt card number: %w", err)
	}

	exists, err := s.repo.ExistsCardByEncryptedNumber(encrypted)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrCardConflict
	}

	owner, err := s.repo.FindUserByID(ownerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrOwnerNotFound
	}
	if err != nil {
		return nil, err
	}

	card := &models.Card{
		EncryptedNumber: encrypted,
		MaskedNumber:    cardcrypt.Mask(number),
		OwnerID:         owner.ID,
		OwnerName:       owner.FullName,
		Status:          models.StatusActive,
		ExpiryDate:      s.now().UTC().AddDate(s.config.CardTermYears, 0, 0),
		Balance:         decimal.Zero,
	}
	if err := s.repo.CreateCard(card); err != nil {
		// The unique index backstops a race between the existence
		// check and the insert.
		if repository.IsUniqueViolation(err) {
			return nil, ErrCardConflict
		}
		return nil, err
	}

	s.log.Infof("Card issued for owner %d: %s", owner.ID, card.MaskedNumber)
	return card, nil
}

// GetCard returns a card by id
func (s *Service) GetCard(id int64) (*models.Card, error) {
	card, err := s.repo.FindCardByID(id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrCardNotFound
	}
	return card, err
}

// GetCardDetails returns a card together with its decrypted number.
// A decryption failure is fatal to the call, never masked.
func (s *Service) GetCardDetails(id int64) (*models.Card, string, error) {
	card, err := s.GetCard(id)
	if err != nil {
		return nil, "", err
	}
	number, err := s.codec.Decrypt(card.EncryptedNumber)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decrypt card number: %w", err)
	}
	return card, number, nil
}

// ListOwnerCards returns all cards belonging to the given owner. The
// caller's identity is resolved at the boundary and passed explicitly.
func (s *Service) ListOwnerCards(ownerID int64) ([]*models.Card, error) {
	return s.repo.FindCardsByOwner(ownerID)
}

// ListCards returns cards matching the filter
func (s *Service) ListCards(filter repository.CardFilter) ([]*models.Card, error) {
	return s.repo.ListCards(filter)
}

// GetBalance returns a card's current balance
func (s *Service) GetBalance(id int64) (decimal.Decimal, error) {
	card, err := s.GetCard(id)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return card.Balance, nil
}

// SoftDelete marks a card deleted without removing the row
func (s *Service) SoftDelete(id int64) error {
	card, err := s.GetCard(id)
	if err != nil {
		return err
	}
	card.Deleted = true
	if err := s.repo.UpdateCard(card); err != nil {
		return err
	}
	s.log.Infof("Card %d soft-deleted", id)
	return nil
}

// ChangeStatus applies an administrative status change. The transaction
// gate is not consulted, but EXPIRED stays terminal.
func (s *Service) ChangeStatus(id int64, status models.CardStatus) error {
	card, err := s.GetCard(id)
	if err != nil {
		return err
	}
	if !models.CanTransition(card.Status, status) {
		return ErrInvalidStatus
	}
	card.Status = status
	if err := s.repo.UpdateCard(card); err != nil {
		return err
	}
	s.log.Infof("Card %d status changed to %s", id, status)
	return nil
}

// CardUpdate carries the optional fields of a partial card update.
type CardUpdate struct {
	CardHolder string
	ExpiryDate *time.Time
	Status     models.CardStatus
}

// UpdateCardHolder applies a partial update. Empty fields are left
// untouched; an expiry date in the past and a disallowed status
// transition are silently ignored.
func (s *Service) UpdateCardHolder(id int64, upd CardUpdate) error {
	card, err := s.GetCard(id)
	if err != nil {
		return err
	}
	if upd.CardHolder != "" {
		card.OwnerName = upd.CardHolder
	}
	if upd.ExpiryDate != nil && !upd.ExpiryDate.Before(models.Today(s.now())) {
		card.ExpiryDate = *upd.ExpiryDate
	}
	if upd.Status != "" && models.CanTransition(card.Status, upd.Status) {
		card.Status = upd.Status
	}
	return s.repo.UpdateCard(card)
}

// evaluateCard applies the transaction gate to a single card. When the
// card turns out stale (expiry date passed but status still current),
// the caller must persist the EXPIRED transition before surfacing the
// error.
func (s *Service) evaluateCard(card *models.Card, now time.Time) (stale bool, err error) {
	if card.Status == models.StatusExpired {
		return false, ErrCardExpired
	}
	if card.Status == models.StatusBlocked {
		return false, ErrCardBlocked
	}
	if card.IsExpiredAt(now) {
		return true, ErrCardExpired
	}
	return false, nil
}

// gateCard runs the transaction gate and persists the lazy EXPIRED
// transition when one is discovered. The persist deliberately happens
// outside the failing operation's unit of work so it survives the
// rejection.
func (s *Service) gateCard(card *models.Card) error {
	stale, err := s.evaluateCard(card, s.now())
	if stale {
		card.Status = models.StatusExpired
		if updErr := s.repo.UpdateCard(card); updErr != nil {
			return updErr
		}
		s.log.Infof("Card %d lazily expired (expiry %s)", card.ID, card.ExpiryDate.Format("2006-01-02"))
	}
	return err
}

// FillCard deposits amount onto the card identified by its plaintext
// number. The balance update and the DEPOSIT ledger entry commit
// together.
func (s *Service) FillCard(ctx context.Context, number string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	encrypted, err := s.codec.Encrypt(number)
	if err != nil {
		return fmt.Errorf("failed to encrypt card number: %w", err)
	}
	card, err := s.repo.FindCardByEncryptedNumber(encrypted)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrCardNotFound
	}
	if err != nil {
		return err
	}
	if err := s.gateCard(card); err != nil {
		return err
	}

	err = s.repo.WithinTx(ctx, func(tx *repository.TxRepository) error {
		locked, err := tx.FindCardForUpdate(card.ID)
		if err != nil {
			return err
		}
		locked.Balance = locked.Balance.Add(amount)
		if err := tx.UpdateCard(locked); err != nil {
			return err
		}
		return tx.CreateTransaction(&models.Transaction{
			CardID:      locked.ID,
			Amount:      amount,
			Type:        models.TypeDeposit,
			Description: "Card fill operation",
		})
	})
	if err != nil {
		return err
	}

	s.log.Infof("Card %d filled with %s", card.ID, amount)
	return nil
}

// Transfer moves amount between two cards. Both balance updates and
// the single source-side TRANSFER entry commit in one unit of work;
// rows are locked in ascending id order to avoid deadlocks between
// concurrent transfers sharing a card pair.
func (s *Service) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error {
	encryptedFrom, err := s.codec.Encrypt(from)
	if err != nil {
		return fmt.Errorf("failed to encrypt card number: %w", err)
	}
	encryptedTo, err := s.codec.Encrypt(to)
	if err != nil {
		return fmt.Errorf("failed to encrypt card number: %w", err)
	}

	cardFrom, err := s.repo.FindCardByEncryptedNumber(encryptedFrom)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrCardNotFound
	}
	if err != nil {
		return err
	}
	cardTo, err := s.repo.FindCardByEncryptedNumber(encryptedTo)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrCardNotFound
	}
	if err != nil {
		return err
	}

	if err := s.gateCard(cardFrom); err != nil {
		return err
	}
	if err := s.gateCard(cardTo); err != nil {
		return err
	}

	if cardFrom.ID == cardTo.ID {
		return ErrSameCard
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if cardFrom.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}

	err = s.repo.WithinTx(ctx, func(tx *repository.TxRepository) error {
		firstID, secondID := cardFrom.ID, cardTo.ID
		if secondID < firstID {
			firstID, secondID = secondID, firstID
		}
		first, err := tx.FindCardForUpdate(firstID)
		if err != nil {
			return err
		}
		second, err := tx.FindCardForUpdate(secondID)
		if err != nil {
			return err
		}
		src, dst := first, second
		if src.ID != cardFrom.ID {
			src, dst = second, first
		}

		// Re-check against the locked row so concurrent transfers
		// cannot overdraw the source.
		if src.Balance.LessThan(amount) {
			return ErrInsufficientFunds
		}
		src.Balance = src.Balance.Sub(amount)
		dst.Balance = dst.Balance.Add(amount)
		if err := tx.UpdateCard(src); err != nil {
			return err
		}
		if err := tx.UpdateCard(dst); err != nil {
			return err
		}
		return tx.CreateTransaction(&models.Transaction{
			CardID:      src.ID,
			Amount:      amount,
			Type:        models.TypeTransfer,
			Description: "Transfer to card: " + dst.MaskedNumber,
		})
	})
	if err != nil {
		return err
	}

	s.log.Infof("Transferred %s from card %d to card %d", amount, cardFrom.ID, cardTo.ID)
	return nil
}
