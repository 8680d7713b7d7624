package service

import (
	"context"
	"errors"
	"io"
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

// ApplyPassInput is a new pass application. Fare is optional: when set it must
// equal the quoted total for the distance, concession and duration.
type ApplyPassInput struct {
	ApplicantName  string
	Route          string
	DistanceKm     float64
	DurationMonths int
	Fare           int64
	Concession     string
	Document       io.Reader
	DocumentName   string
}

func (in *ApplyPassInput) validate() (fare.Concession, error) {
	in.ApplicantName = strings.TrimSpace(in.ApplicantName)
	in.Route = strings.TrimSpace(in.Route)
	if in.ApplicantName == "" {
		return "", dErrors.New(dErrors.CodeValidation, "applicant_name is required")
	}
	if in.Route == "" {
		return "", dErrors.New(dErrors.CodeValidation, "route is required")
	}
	if in.DistanceKm < 0 {
		return "", dErrors.New(dErrors.CodeValidation, "distance_km must not be negative")
	}
	if err := models.ValidateDuration(in.DurationMonths); err != nil {
		return "", err
	}
	if in.Fare < 0 {
		return "", dErrors.New(dErrors.CodeValidation, "fare must not be negative")
	}
	if in.Document == nil || strings.TrimSpace(in.DocumentName) == "" {
		return "", dErrors.New(dErrors.CodeValidation, "id_proof is required")
	}
	return fare.ParseConcession(in.Concession)
}

// ApplyForPass records a PENDING application for the caller. An APPROVED pass
// whose window has not elapsed blocks new applications.
func (s *Service) ApplyForPass(ctx context.Context, caller id.Caller, in ApplyPassInput) (_ *models.Pass, err error) {
	start := time.Now()
	defer s.metrics.ObserveOperation("apply_pass", start)
	ctx, span := s.startSpan(ctx, "ApplyForPass", attribute.Int64("user_id", int64(caller.UserID)))
	defer func() { endSpan(span, err) }()

	if err := caller.RequireUser(); err != nil {
		return nil, err
	}
	concession, err := in.validate()
	if err != nil {
		return nil, err
	}
	quote, err := fare.NewQuote(in.DistanceKm, concession, in.DurationMonths)
	if err != nil {
		return nil, err
	}
	if in.Fare != 0 && in.Fare != quote.Total {
		return nil, dErrors.New(dErrors.CodeValidation,
			"fare does not match the quoted fare of "+strconv.FormatInt(quote.Total, 10))
	}

	today := s.today(ctx)
	// Fail fast before storing the upload; the check is repeated under the user lock.
	if err := s.ensureNoBlockingPass(ctx, caller.UserID, today); err != nil {
		return nil, err
	}

	ref, err := s.documents.Save(ctx, in.Document, in.DocumentName)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to store identity document")
	}

	now := requestcontext.Now(ctx)
	var created *models.Pass
	err = s.runInTx(ctx, func(ctx context.Context) error {
		if err := s.store.LockUser(ctx, caller.UserID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeUnauthorized, "unknown user")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to lock user")
		}
		if err := s.ensureNoBlockingPass(ctx, caller.UserID, today); err != nil {
			return err
		}
		p, err := models.NewPass(models.NewPassParams{
			UserID:         caller.UserID,
			ApplicantName:  in.ApplicantName,
			Route:          in.Route,
			DistanceKm:     in.DistanceKm,
			DurationMonths: in.DurationMonths,
			Fare:           quote.Total,
			Concession:     concession,
			IDProofRef:     ref,
		}, today, now)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeValidation, err.Error())
			}
			return err
		}
		if err := s.store.CreatePass(ctx, p); err != nil {
			return translateWrite(err, "pass")
		}
		created = p
		return s.emitAudit(ctx, audit.Event{
			Action:  audit.EventPassApplied.String(),
			UserID:  caller.UserID,
			Subject: "pass:" + p.ID.String(),
			Details: map[string]string{
				"route":           p.Route,
				"duration_months": strconv.Itoa(p.DurationMonths),
				"fare":            strconv.FormatInt(p.Fare, 10),
			},
		})
	})
	if err != nil {
		s.discardDocument(ctx, ref)
		return nil, err
	}

	s.metrics.IncrementPassesApplied()
	s.logger.InfoContext(ctx, "pass application received",
		"pass_id", created.ID,
		"user_id", caller.UserID,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.notify(ctx, notice{
		userID:   caller.UserID,
		template: notification.TemplateApplicationReceived,
		data:     notification.Data{"route": created.Route},
	})
	return created, nil
}

// discardDocument removes an upload left behind by a failed application.
func (s *Service) discardDocument(ctx context.Context, ref string) {
	// The request may already be cancelled; the file still has to go.
	if err := s.documents.Remove(context.WithoutCancel(ctx), ref); err != nil {
		s.logger.WarnContext(ctx, "failed to remove orphaned identity document",
			"ref", ref,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

func (s *Service) ensureNoBlockingPass(ctx context.Context, userID id.UserID, today time.Time) error {
	passes, err := s.store.ListPassesByUser(ctx, userID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load passes")
	}
	for _, p := range passes {
		if p.BlocksNewApplication(today) {
			return dErrors.New(dErrors.CodeDuplicateActive, "an approved pass is still valid for this user")
		}
	}
	return nil
}

// ApproveNewPass moves a PENDING pass to APPROVED. The pass stays inactive until paid.
func (s *Service) ApproveNewPass(ctx context.Context, caller id.Caller, passID id.PassID) (_ *models.Pass, err error) {
	defer s.metrics.ObserveOperation("approve_pass", time.Now())
	ctx, span := s.startSpan(ctx, "ApproveNewPass", attribute.Int64("pass_id", int64(passID)))
	defer func() { endSpan(span, err) }()

	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var approved *models.Pass
	err = s.runInTx(ctx, func(ctx context.Context) error {
		p, err := s.loadPassForUpdate(ctx, passID)
		if err != nil {
			return err
		}
		if err := p.CanApprove(); err != nil {
			return err
		}
		p.ApplyApproval(now)
		if err := p.CheckInvariants(); err != nil {
			return err
		}
		if err := s.store.UpdatePass(ctx, p); err != nil {
			return translateWrite(err, "pass")
		}
		approved = p
		return s.emitAudit(ctx, audit.Event{
			Action:  audit.EventPassApproved.String(),
			UserID:  p.UserID,
			ActorID: caller.UserID,
			Subject: "pass:" + p.ID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementDecision("pass", "approved")
	s.logger.InfoContext(ctx, "pass approved",
		"pass_id", approved.ID,
		"admin_id", caller.UserID,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.notify(ctx, notice{
		userID:   approved.UserID,
		template: notification.TemplatePassApproved,
		data: notification.Data{
			"route": approved.Route,
			"fare":  strconv.FormatInt(approved.Fare, 10),
		},
	})
	return approved, nil
}

// RejectPass moves a PENDING pass to the terminal REJECTED state.
func (s *Service) RejectPass(ctx context.Context, caller id.Caller, passID id.PassID) (_ *models.Pass, err error) {
	defer s.metrics.ObserveOperation("reject_pass", time.Now())
	ctx, span := s.startSpan(ctx, "RejectPass", attribute.Int64("pass_id", int64(passID)))
	defer func() { endSpan(span, err) }()

	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var rejected *models.Pass
	err = s.runInTx(ctx, func(ctx context.Context) error {
		p, err := s.loadPassForUpdate(ctx, passID)
		if err != nil {
			return err
		}
		if err := p.CanReject(); err != nil {
			return err
		}
		p.ApplyRejection(now)
		if err := s.store.UpdatePass(ctx, p); err != nil {
			return translateWrite(err, "pass")
		}
		rejected = p
		return s.emitAudit(ctx, audit.Event{
			Action:  audit.EventPassRejected.String(),
			UserID:  p.UserID,
			ActorID: caller.UserID,
			Subject: "pass:" + p.ID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementDecision("pass", "rejected")
	s.logger.InfoContext(ctx, "pass rejected",
		"pass_id", rejected.ID,
		"admin_id", caller.UserID,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.notify(ctx, notice{
		userID:   rejected.UserID,
		template: notification.TemplatePassRejected,
		data:     notification.Data{"route": rejected.Route},
	})
	return rejected, nil
}

// ListPending returns PENDING applications, oldest first.
func (s *Service) ListPending(ctx context.Context, caller id.Caller) ([]*models.Pass, error) {
	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	passes, err := s.store.ListPassesByStatus(ctx, models.PassStatusPending)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending passes")
	}
	return passes, nil
}
