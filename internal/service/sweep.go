package service

import (
	"errors"
	"time"

	"github.com/cardhub/card-service/internal/models"
	"github.com/cardhub/card-service/internal/repository"
)

// SweepExpired transitions every non-deleted card whose expiry date has
// passed to EXPIRED. Each card is its own failure unit: a persist error
// is logged and the sweep moves on. Returns the number of cards
// expired. Running it again over the same data is a no-op.
func (s *Service) SweepExpired(asOf time.Time) (int, error) {
	candidates, err := s.repo.FindExpiredCandidates(models.Today(asOf))
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	expired := 0
	for _, card := range candidates {
		card.Status = models.StatusExpired
		if err := s.repo.UpdateCard(card); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				// Deleted between the scan and the update.
				continue
			}
			s.log.Errorf("Failed to expire card %d: %v", card.ID, err)
			continue
		}
		expired++
		s.log.Infof("Card %d expired (expiry %s)", card.ID, card.ExpiryDate.Format("2006-01-02"))
		s.notifyExpired(card)
	}

	s.log.Infof("Expiry sweep finished: %d of %d cards expired", expired, len(candidates))
	return expired, nil
}

func (s *Service) notifyExpired(card *models.Card) {
	if s.notifier == nil {
		return
	}
	owner, err := s.repo.FindUserByID(card.OwnerID)
	if err != nil {
		s.log.Errorf("Failed to resolve owner %d for expiry notice: %v", card.OwnerID, err)
		return
	}
	if err := s.notifier.SendCardExpired(owner.Email, owner.FullName, card.MaskedNumber, card.ExpiryDate); err != nil {
		s.log.Errorf("Failed to send expiry notice for card %d: %v", card.ID, err)
	}
}
