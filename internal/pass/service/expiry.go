package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"transitpass/internal/notification"
	"transitpass/internal/pass/models"
	dErrors "transitpass/pkg/domain-errors"
	audit "transitpass/pkg/platform/audit"
	"transitpass/pkg/requestcontext"
)

// Enforce applies lazy expiry to p and reports whether it is still active.
//
// Only PAID passes past valid_to are touched. The pass is re-read under lock so a
// concurrent payment cannot be overwritten with stale data; its active renewals
// are deactivated in the same transaction. The expiry notification is sent only
// when this call flipped is_active, so repeated reads never resend it.
// p is updated in place with the committed state.
func (s *Service) Enforce(ctx context.Context, p *models.Pass) (_ bool, err error) {
	if p == nil {
		return false, nil
	}
	today := s.today(ctx)
	if !p.IsExpired(today) {
		return p.IsActive, nil
	}

	ctx, span := s.startSpan(ctx, "Enforce", attribute.Int64("pass_id", int64(p.ID)))
	defer func() { endSpan(span, err) }()

	now := requestcontext.Now(ctx)
	var (
		current     *models.Pass
		flipped     bool
		deactivated int
	)
	err = s.runInTx(ctx, func(ctx context.Context) error {
		locked, err := s.loadPassForUpdate(ctx, p.ID)
		if err != nil {
			return err
		}
		current = locked
		if !locked.IsExpired(today) {
			return nil
		}

		flipped = locked.ApplyExpiry(now)
		renewals, err := s.store.ListRenewalsByPass(ctx, locked.ID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load renewals")
		}
		for _, r := range renewals {
			if !r.ApplyDeactivation(now) {
				continue
			}
			if err := s.store.UpdateRenewal(ctx, r); err != nil {
				return translateWrite(err, "renewal")
			}
			deactivated++
		}
		if !flipped {
			return nil
		}
		if err := locked.CheckInvariants(); err != nil {
			return err
		}
		if err := s.store.UpdatePass(ctx, locked); err != nil {
			return translateWrite(err, "pass")
		}
		return s.emitAudit(ctx, audit.Event{
			Action:  audit.EventPassExpired.String(),
			UserID:  locked.UserID,
			Subject: "pass:" + locked.ID.String(),
			Details: map[string]string{"valid_to": dateString(locked.ValidTo)},
		})
	})
	if err != nil {
		return false, err
	}

	*p = *current
	if flipped {
		s.metrics.IncrementPassesExpired()
		s.logger.InfoContext(ctx, "pass expired",
			"pass_id", p.ID,
			"user_id", p.UserID,
			"renewals_deactivated", deactivated,
			"request_id", requestcontext.RequestID(ctx),
		)
		s.notify(ctx, notice{
			userID:   p.UserID,
			template: notification.TemplatePassExpired,
			data: notification.Data{
				"route":  p.Route,
				"expiry": dateString(p.ValidTo),
			},
		})
	}
	return p.IsActive, nil
}
