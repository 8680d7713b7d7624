package service

import (
	"context"

	"transitpass/internal/fare"
	"transitpass/internal/pass/models"
	id "transitpass/pkg/domain"
	dErrors "transitpass/pkg/domain-errors"
)

// GetStatus describes the caller's latest non-rejected pass after applying expiry.
// A live renewal of that pass takes precedence in the view.
func (s *Service) GetStatus(ctx context.Context, caller id.Caller) (models.StatusView, error) {
	if err := caller.RequireUser(); err != nil {
		return models.StatusView{}, err
	}
	passes, err := s.store.ListPassesByUser(ctx, caller.UserID)
	if err != nil {
		return models.StatusView{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load passes")
	}
	var current *models.Pass
	for _, p := range passes {
		if p.Status != models.PassStatusRejected {
			current = p
			break
		}
	}
	if current == nil {
		return models.StatusView{HasPass: false}, nil
	}

	if _, err := s.Enforce(ctx, current); err != nil {
		return models.StatusView{}, err
	}

	today := s.today(ctx)
	renewals, err := s.store.ListRenewalsByPass(ctx, current.ID)
	if err != nil {
		return models.StatusView{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load renewals")
	}
	for _, r := range renewals {
		if r.Status != models.RenewalStatusRejected {
			return models.NewRenewalStatusView(current, r, today), nil
		}
	}
	return models.NewPassStatusView(current, today), nil
}

// Quote prices a pass without recording anything.
func (s *Service) Quote(_ context.Context, distanceKm float64, concession string, months int) (fare.Quote, error) {
	c, err := fare.ParseConcession(concession)
	if err != nil {
		return fare.Quote{}, err
	}
	return fare.NewQuote(distanceKm, c, months)
}
