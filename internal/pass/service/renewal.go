package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"transitpass/internal/fare"
	"transitpass/internal/notification"
	"transitpass/internal/pass/models"
	id "transitpass/pkg/domain"
	dErrors "transitpass/pkg/domain-errors"
	audit "transitpass/pkg/platform/audit"
	"transitpass/pkg/platform/sentinel"
	"transitpass/pkg/requestcontext"
)

// ApplyRenewalInput requests an extension of a paid pass. RenewalFare is optional;
// when set it must equal the expected fare for the duration and route.
type ApplyRenewalInput struct {
	PassID              id.PassID
	DurationMonths      int
	RenewalFare         int64
	RouteChanged        bool
	RequestedRoute      string
	RequestedDistanceKm float64
}

func (in *ApplyRenewalInput) validate() error {
	if in.PassID.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "pass_id is required")
	}
	if err := models.ValidateDuration(in.DurationMonths); err != nil {
		return err
	}
	if in.RenewalFare < 0 {
		return dErrors.New(dErrors.CodeValidation, "renewal_fare must not be negative")
	}
	if in.RouteChanged {
		in.RequestedRoute = strings.TrimSpace(in.RequestedRoute)
		if in.RequestedRoute == "" {
			return dErrors.New(dErrors.CodeValidation, "requested_route is required when route_changed is set")
		}
		if in.RequestedDistanceKm < 0 {
			return dErrors.New(dErrors.CodeValidation, "requested_distance_km must not be negative")
		}
	}
	return nil
}

// GetEligiblePass returns the caller's PAID pass with the latest expiry, ties
// broken by the highest id.
func (s *Service) GetEligiblePass(ctx context.Context, caller id.Caller) (*models.EligiblePass, error) {
	if err := caller.RequireUser(); err != nil {
		return nil, err
	}
	passes, err := s.store.ListPassesByUser(ctx, caller.UserID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load passes")
	}
	var best *models.Pass
	for _, p := range passes {
		if p.Status != models.PassStatusPaid {
			continue
		}
		if best == nil || p.ValidTo.After(best.ValidTo) ||
			(p.ValidTo.Equal(best.ValidTo) && p.ID > best.ID) {
			best = p
		}
	}
	if best == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "no paid pass eligible for renewal")
	}
	return &models.EligiblePass{Pass: best, BaseFare: best.BaseFare()}, nil
}

// expectedRenewalFare is the per-month fare times the duration. A changed route
// is re-quoted under the pass's concession.
func expectedRenewalFare(p *models.Pass, in ApplyRenewalInput) int64 {
	monthly := p.BaseFare()
	if in.RouteChanged {
		monthly = fare.Monthly(in.RequestedDistanceKm, p.Concession)
	}
	return monthly * int64(in.DurationMonths)
}

var errOpenRenewal = dErrors.New(dErrors.CodeDuplicatePendingRenewal,
	"a renewal for this pass is still awaiting review or payment")

// ApplyForRenewal records a PENDING renewal of one of the caller's paid passes.
func (s *Service) ApplyForRenewal(ctx context.Context, caller id.Caller, in ApplyRenewalInput) (_ *models.Renewal, err error) {
	defer s.metrics.ObserveOperation("apply_renewal", time.Now())
	ctx, span := s.startSpan(ctx, "ApplyForRenewal", attribute.Int64("pass_id", int64(in.PassID)))
	defer func() { endSpan(span, err) }()

	if err := caller.RequireUser(); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	today := s.today(ctx)
	now := requestcontext.Now(ctx)
	var created *models.Renewal
	err = s.runInTx(ctx, func(ctx context.Context) error {
		p, err := s.loadPassForUpdate(ctx, in.PassID)
		if err != nil {
			return err
		}
		if !p.IsOwnedBy(caller.UserID) {
			return dErrors.New(dErrors.CodeNotOwned, "pass not found")
		}
		if p.Status != models.PassStatusPaid {
			return dErrors.New(dErrors.CodeInvalidState, "only paid passes can be renewed")
		}

		existing, err := s.store.ListRenewalsByPass(ctx, p.ID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load renewals")
		}
		for _, r := range existing {
			if r.Status.IsOpen() {
				return errOpenRenewal
			}
		}

		expected := expectedRenewalFare(p, in)
		if in.RenewalFare != 0 && in.RenewalFare != expected {
			return dErrors.New(dErrors.CodeValidation,
				"renewal_fare does not match the expected fare of "+strconv.FormatInt(expected, 10))
		}

		r, err := models.NewRenewal(models.NewRenewalParams{
			Pass:                p,
			DurationMonths:      in.DurationMonths,
			RenewalFare:         expected,
			RouteChanged:        in.RouteChanged,
			RequestedRoute:      in.RequestedRoute,
			RequestedDistanceKm: in.RequestedDistanceKm,
		}, today, now)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeValidation, err.Error())
			}
			return err
		}
		if err := s.store.CreateRenewal(ctx, r); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return errOpenRenewal
			}
			return translateWrite(err, "renewal")
		}
		created = r
		return s.emitAudit(ctx, audit.Event{
			Action:  audit.EventRenewalApplied.String(),
			UserID:  caller.UserID,
			Subject: "renewal:" + r.ID.String(),
			Details: map[string]string{
				"pass_id":       p.ID.String(),
				"new_expiry":    dateString(r.NewExpiry),
				"route_changed": strconv.FormatBool(r.RouteChanged),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementRenewalsApplied()
	s.logger.InfoContext(ctx, "renewal requested",
		"renewal_id", created.ID,
		"pass_id", created.PassID,
		"user_id", caller.UserID,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.notify(ctx, notice{
		userID:   caller.UserID,
		template: notification.TemplateRenewalReceived,
		data:     notification.Data{"expiry": dateString(created.NewExpiry)},
	})
	return created, nil
}

// ApproveRenewal approves a PENDING renewal and moves the pass onto the renewal's
// window and route in the same transaction. Neither record is activated.
func (s *Service) ApproveRenewal(ctx context.Context, caller id.Caller, renewalID id.RenewalID) (_ *models.Renewal, err error) {
	defer s.metrics.ObserveOperation("approve_renewal", time.Now())
	ctx, span := s.startSpan(ctx, "ApproveRenewal", attribute.Int64("renewal_id", int64(renewalID)))
	defer func() { endSpan(span, err) }()

	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var approved *models.Renewal
	err = s.runInTx(ctx, func(ctx context.Context) error {
		// Resolve the pass first so locks are always taken pass then renewal.
		peek, err := s.store.FindRenewalByID(ctx, renewalID)
		if err != nil {
			return translateFind(err, "renewal")
		}
		p, err := s.loadPassForUpdate(ctx, peek.PassID)
		if err != nil {
			return err
		}
		r, err := s.loadRenewalForUpdate(ctx, renewalID)
		if err != nil {
			return err
		}
		if err := r.CanApprove(); err != nil {
			return err
		}

		r.ApplyApproval(now)
		p.ApplyRenewalApproval(r, now)
		if err := invariantGuard(r.CheckInvariants, p.CheckInvariants); err != nil {
			return err
		}
		if err := s.store.UpdateRenewal(ctx, r); err != nil {
			return translateWrite(err, "renewal")
		}
		if err := s.store.UpdatePass(ctx, p); err != nil {
			return translateWrite(err, "pass")
		}
		approved = r
		return s.emitAudit(ctx, audit.Event{
			Action:  audit.EventRenewalApproved.String(),
			UserID:  r.UserID,
			ActorID: caller.UserID,
			Subject: "renewal:" + r.ID.String(),
			Details: map[string]string{
				"pass_id":    p.ID.String(),
				"valid_from": dateString(p.ValidFrom),
				"valid_to":   dateString(p.ValidTo),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementDecision("renewal", "approved")
	s.logger.InfoContext(ctx, "renewal approved",
		"renewal_id", approved.ID,
		"pass_id", approved.PassID,
		"admin_id", caller.UserID,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.notify(ctx, notice{
		userID:   approved.UserID,
		template: notification.TemplateRenewalApproved,
		data: notification.Data{
			"fare":   strconv.FormatInt(approved.RenewalFare, 10),
			"expiry": dateString(approved.NewExpiry),
		},
	})
	return approved, nil
}

// RejectRenewal moves a PENDING renewal to the terminal REJECTED state. The pass is untouched.
func (s *Service) RejectRenewal(ctx context.Context, caller id.Caller, renewalID id.RenewalID) (_ *models.Renewal, err error) {
	defer s.metrics.ObserveOperation("reject_renewal", time.Now())
	ctx, span := s.startSpan(ctx, "RejectRenewal", attribute.Int64("renewal_id", int64(renewalID)))
	defer func() { endSpan(span, err) }()

	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var rejected *models.Renewal
	err = s.runInTx(ctx, func(ctx context.Context) error {
		r, err := s.loadRenewalForUpdate(ctx, renewalID)
		if err != nil {
			return err
		}
		if err := r.CanReject(); err != nil {
			return err
		}
		r.ApplyRejection(now)
		if err := s.store.UpdateRenewal(ctx, r); err != nil {
			return translateWrite(err, "renewal")
		}
		rejected = r
		return s.emitAudit(ctx, audit.Event{
			Action:  audit.EventRenewalRejected.String(),
			UserID:  r.UserID,
			ActorID: caller.UserID,
			Subject: "renewal:" + r.ID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementDecision("renewal", "rejected")
	s.logger.InfoContext(ctx, "renewal rejected",
		"renewal_id", rejected.ID,
		"admin_id", caller.UserID,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.notify(ctx, notice{
		userID:   rejected.UserID,
		template: notification.TemplateRenewalRejected,
	})
	return rejected, nil
}

// LatestRenewal returns the caller's most recently created renewal.
func (s *Service) LatestRenewal(ctx context.Context, caller id.Caller) (*models.Renewal, error) {
	if err := caller.RequireUser(); err != nil {
		return nil, err
	}
	renewals, err := s.store.ListRenewalsByUser(ctx, caller.UserID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load renewals")
	}
	if len(renewals) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "no renewal found")
	}
	return renewals[0], nil
}

// ListPendingRenewals returns PENDING renewals with the applicant and current route, oldest first.
func (s *Service) ListPendingRenewals(ctx context.Context, caller id.Caller) ([]models.PendingRenewal, error) {
	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	renewals, err := s.store.ListRenewalsByStatus(ctx, models.RenewalStatusPending)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending renewals")
	}
	out := make([]models.PendingRenewal, 0, len(renewals))
	for _, r := range renewals {
		p, err := s.store.FindPassByID(ctx, r.PassID)
		if err != nil {
			return nil, translateFind(err, "pass")
		}
		out = append(out, models.PendingRenewal{
			Renewal:       r,
			ApplicantName: p.ApplicantName,
			CurrentRoute:  p.Route,
		})
	}
	return out, nil
}
