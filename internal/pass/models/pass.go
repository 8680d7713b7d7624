package models

import (
	"math"
	"strings"
	"time"

	"transitpass/internal/fare"
	id "transitpass/pkg/domain"
	dErrors "transitpass/pkg/domain-errors"
)

const (
	maxNameLength  = 128
	maxRouteLength = 256
)

// Pass is a transit authorization for one user, one route and one validity window.
//
// Invariants:
//   - DurationMonths is 1 or 3
//   - ValidTo = ValidFrom + DurationMonths calendar months at creation
//   - Status follows PENDING -> APPROVED -> PAID, or PENDING -> REJECTED
//   - IsActive implies Status == PAID
//
// IsActive is maintained lazily: a PAID pass past ValidTo stays active until the
// expiry enforcer observes it.
type Pass struct {
	ID             id.PassID
	UserID         id.UserID
	ApplicantName  string
	Route          string
	DistanceKm     float64
	DurationMonths int
	ValidFrom      time.Time
	ValidTo        time.Time
	Fare           int64
	Concession     fare.Concession
	IDProofRef     string
	Status         PassStatus
	IsActive       bool
	OrderID        string
	PaymentID      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewPassParams carries validated application input.
type NewPassParams struct {
	UserID         id.UserID
	ApplicantName  string
	Route          string
	DistanceKm     float64
	DurationMonths int
	Fare           int64
	Concession     fare.Concession
	IDProofRef     string
}

// NewPass builds a PENDING, inactive pass whose window starts today.
func NewPass(p NewPassParams, today, now time.Time) (*Pass, error) {
	if p.UserID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "pass owner is required")
	}
	name := strings.TrimSpace(p.ApplicantName)
	if name == "" || len(name) > maxNameLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "applicant name must be 1-128 characters")
	}
	route := strings.TrimSpace(p.Route)
	if route == "" || len(route) > maxRouteLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "route must be 1-256 characters")
	}
	if err := validateDistance(p.DistanceKm); err != nil {
		return nil, err
	}
	if err := ValidateDuration(p.DurationMonths); err != nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "duration must be 1 or 3 months")
	}
	if p.Fare <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "fare must be positive")
	}
	if p.IDProofRef == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "identity document is required")
	}
	return &Pass{
		UserID:         p.UserID,
		ApplicantName:  name,
		Route:          route,
		DistanceKm:     p.DistanceKm,
		DurationMonths: p.DurationMonths,
		ValidFrom:      today,
		ValidTo:        AddMonths(today, p.DurationMonths),
		Fare:           p.Fare,
		Concession:     p.Concession,
		IDProofRef:     p.IDProofRef,
		Status:         PassStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func validateDistance(km float64) error {
	if km < 0 || math.IsNaN(km) || math.IsInf(km, 0) {
		return dErrors.New(dErrors.CodeInvariantViolation, "distance must be a non-negative number")
	}
	return nil
}

// BlocksNewApplication is the activity predicate used for duplicate checks:
// an APPROVED pass whose window has not elapsed, regardless of payment.
func (p *Pass) BlocksNewApplication(today time.Time) bool {
	return p.Status == PassStatusApproved && !p.ValidTo.Before(today)
}

// IsExpired reports whether a paid pass is past its window.
func (p *Pass) IsExpired(today time.Time) bool {
	return p.Status == PassStatusPaid && p.ValidTo.Before(today)
}

func (p *Pass) DisplayState(today time.Time) DisplayState {
	switch {
	case p.IsExpired(today):
		return DisplayExpired
	case p.Status == PassStatusPaid && p.IsActive:
		return DisplayActive
	default:
		return DisplayInactive
	}
}

// DaysLeft is zero unless the pass is currently active.
func (p *Pass) DaysLeft(today time.Time) int {
	if p.DisplayState(today) != DisplayActive {
		return 0
	}
	return DaysBetween(today, p.ValidTo)
}

// BaseFare is the per-month fare, truncated.
func (p *Pass) BaseFare() int64 {
	if p.DurationMonths <= 0 {
		return 0
	}
	return p.Fare / int64(p.DurationMonths)
}

func (p *Pass) IsOwnedBy(userID id.UserID) bool {
	return p.UserID == userID
}

// CheckInvariants verifies the activation invariant after a mutation.
func (p *Pass) CheckInvariants() error {
	if p.IsActive && p.Status != PassStatusPaid {
		return dErrors.New(dErrors.CodeInvariantViolation, "active pass must be paid")
	}
	return nil
}

func (p *Pass) transitionErr(next PassStatus) error {
	if p.Status.CanTransitionTo(next) {
		return nil
	}
	return dErrors.New(dErrors.CodeInvalidState,
		"pass is "+string(p.Status)+" and cannot become "+string(next))
}

// CanApprove checks the PENDING -> APPROVED transition.
func (p *Pass) CanApprove() error {
	return p.transitionErr(PassStatusApproved)
}

// ApplyApproval approves without activating; payment activates.
func (p *Pass) ApplyApproval(now time.Time) {
	p.Status = PassStatusApproved
	p.IsActive = false
	p.UpdatedAt = now
}

func (p *Pass) CanReject() error {
	return p.transitionErr(PassStatusRejected)
}

func (p *Pass) ApplyRejection(now time.Time) {
	p.Status = PassStatusRejected
	p.IsActive = false
	p.UpdatedAt = now
}

// CanAcceptPayment checks that an order may be attached or settled.
func (p *Pass) CanAcceptPayment() error {
	return p.transitionErr(PassStatusPaid)
}

func (p *Pass) ApplyOrder(orderID string, now time.Time) {
	p.OrderID = orderID
	p.UpdatedAt = now
}

// ApplyPayment marks the pass PAID and active.
func (p *Pass) ApplyPayment(paymentID string, now time.Time) {
	p.Status = PassStatusPaid
	p.IsActive = true
	p.PaymentID = paymentID
	p.UpdatedAt = now
}

// ApplyExpiry deactivates the pass and reports whether it was active before.
func (p *Pass) ApplyExpiry(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	p.IsActive = false
	p.UpdatedAt = now
	return true
}

// ApplyRenewalApproval moves the window to the renewal's dates and, when
// requested, the route. Service stays off until the renewal is paid.
func (p *Pass) ApplyRenewalApproval(r *Renewal, now time.Time) {
	p.ValidFrom = r.OldExpiry
	p.ValidTo = r.NewExpiry
	if r.RouteChanged {
		p.Route = r.RequestedRoute
		p.DistanceKm = r.RequestedDistanceKm
	}
	p.IsActive = false
	p.UpdatedAt = now
}

// ApplyRenewalPayment synchronizes the pass with a paid renewal and reactivates it.
func (p *Pass) ApplyRenewalPayment(r *Renewal, now time.Time) {
	p.Route = r.RequestedRoute
	p.DistanceKm = r.RequestedDistanceKm
	p.ValidTo = r.NewExpiry
	p.Status = PassStatusPaid
	p.IsActive = true
	p.UpdatedAt = now
}
