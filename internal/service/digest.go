package service

import (
	"context"

	"github.com/Kevjes/liberal-api/internal/apperr"
	"github.com/Kevjes/liberal-api/internal/repository"
	"github.com/Kevjes/liberal-api/internal/utils/email"
)

// SendPendingDigest mails every administrator the cards still awaiting approval.
// It returns the number of pending cards.
func (s *Service) SendPendingDigest(ctx context.Context) (int, error) {
	inactive := false
	cards, err := s.repo.ListCards(ctx, repository.CardFilter{Active: &inactive})
	if err != nil {
		return 0, err
	}
	if len(cards) == 0 {
		s.log.Debug("No pending cards, digest skipped")
		return 0, nil
	}

	users, err := s.repo.ListUsers(ctx, false)
	if err != nil {
		return 0, err
	}
	emails := make(map[string]string, len(users))
	var admins []string
	for _, u := range users {
		emails[u.ID.String()] = u.Email
		if u.IsAdmin {
			admins = append(admins, u.Email)
		}
	}
	if len(admins) == 0 {
		s.log.Warnf("%d card(s) pending but no administrator to notify", len(cards))
		return len(cards), nil
	}

	pending := make([]email.PendingCard, 0, len(cards))
	for _, c := range cards {
		pending = append(pending, email.PendingCard{
			Number:    c.Number,
			FirstName: c.FirstName,
			LastName:  c.LastName,
			Creator:   emails[c.CreatorID.String()],
			CreatedAt: c.CreatedAt,
		})
	}
	if err := s.mailer.SendPendingDigest(ctx, admins, pending); err != nil {
		return len(cards), apperr.Delivery(err, "could not send pending card digest")
	}
	s.log.Infof("Pending card digest sent to %d administrator(s) for %d card(s)", len(admins), len(cards))
	return len(cards), nil
}
