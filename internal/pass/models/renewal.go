package models

import (
	"strings"
	"time"

	id "transitpass/pkg/domain"
	dErrors "transitpass/pkg/domain-errors"
)

// Renewal is a proposed extension of a paid pass, approved and paid independently.
//
// Invariants:
//   - OldExpiry is the later of the pass's ValidTo and the application date
//   - NewExpiry = OldExpiry + DurationMonths calendar months
//   - RequestedRoute/RequestedDistanceKm are always set; they mirror the pass when RouteChanged is false
//   - IsActive implies Status == PAID
type Renewal struct {
	ID                  id.RenewalID
	PassID              id.PassID
	UserID              id.UserID
	OldExpiry           time.Time
	NewExpiry           time.Time
	DurationMonths      int
	RenewalFare         int64
	RouteChanged        bool
	RequestedRoute      string
	RequestedDistanceKm float64
	Status              RenewalStatus
	IsActive            bool
	OrderID             string
	PaymentID           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type NewRenewalParams struct {
	Pass                *Pass
	DurationMonths      int
	RenewalFare         int64
	RouteChanged        bool
	RequestedRoute      string
	RequestedDistanceKm float64
}

// NewRenewal builds a PENDING renewal extending p.Pass from max(valid_to, today).
func NewRenewal(p NewRenewalParams, today, now time.Time) (*Renewal, error) {
	if p.Pass == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "renewal requires a pass")
	}
	if err := ValidateDuration(p.DurationMonths); err != nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "duration must be 1 or 3 months")
	}
	if p.RenewalFare <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "renewal fare must be positive")
	}

	route, distance := p.Pass.Route, p.Pass.DistanceKm
	if p.RouteChanged {
		route = strings.TrimSpace(p.RequestedRoute)
		if route == "" || len(route) > maxRouteLength {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "requested route must be 1-256 characters")
		}
		if err := validateDistance(p.RequestedDistanceKm); err != nil {
			return nil, err
		}
		distance = p.RequestedDistanceKm
	}

	base := today
	if !p.Pass.ValidTo.IsZero() {
		base = laterOf(p.Pass.ValidTo, today)
	}
	return &Renewal{
		PassID:              p.Pass.ID,
		UserID:              p.Pass.UserID,
		OldExpiry:           base,
		NewExpiry:           AddMonths(base, p.DurationMonths),
		DurationMonths:      p.DurationMonths,
		RenewalFare:         p.RenewalFare,
		RouteChanged:        p.RouteChanged,
		RequestedRoute:      route,
		RequestedDistanceKm: distance,
		Status:              RenewalStatusPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

func (r *Renewal) IsOwnedBy(userID id.UserID) bool {
	return r.UserID == userID
}

func (r *Renewal) CheckInvariants() error {
	if r.IsActive && r.Status != RenewalStatusPaid {
		return dErrors.New(dErrors.CodeInvariantViolation, "active renewal must be paid")
	}
	return nil
}

// DisplayState mirrors Pass.DisplayState against the renewal's window.
func (r *Renewal) DisplayState(today time.Time) DisplayState {
	switch {
	case r.Status == RenewalStatusPaid && r.NewExpiry.Before(today):
		return DisplayExpired
	case r.Status == RenewalStatusPaid && r.IsActive:
		return DisplayActive
	default:
		return DisplayInactive
	}
}

func (r *Renewal) DaysLeft(today time.Time) int {
	if r.DisplayState(today) != DisplayActive {
		return 0
	}
	return DaysBetween(today, r.NewExpiry)
}

func (r *Renewal) transitionErr(next RenewalStatus) error {
	if r.Status.CanTransitionTo(next) {
		return nil
	}
	return dErrors.New(dErrors.CodeInvalidState,
		"renewal is "+string(r.Status)+" and cannot become "+string(next))
}

func (r *Renewal) CanApprove() error {
	return r.transitionErr(RenewalStatusApproved)
}

// ApplyApproval approves without activating.
func (r *Renewal) ApplyApproval(now time.Time) {
	r.Status = RenewalStatusApproved
	r.IsActive = false
	r.UpdatedAt = now
}

func (r *Renewal) CanReject() error {
	return r.transitionErr(RenewalStatusRejected)
}

func (r *Renewal) ApplyRejection(now time.Time) {
	r.Status = RenewalStatusRejected
	r.IsActive = false
	r.UpdatedAt = now
}

func (r *Renewal) CanAcceptPayment() error {
	return r.transitionErr(RenewalStatusPaid)
}

func (r *Renewal) ApplyOrder(orderID string, now time.Time) {
	r.OrderID = orderID
	r.UpdatedAt = now
}

func (r *Renewal) ApplyPayment(paymentID string, now time.Time) {
	r.Status = RenewalStatusPaid
	r.IsActive = true
	r.PaymentID = paymentID
	r.UpdatedAt = now
}

// ApplyDeactivation clears IsActive and reports whether it was set.
func (r *Renewal) ApplyDeactivation(now time.Time) bool {
	if !r.IsActive {
		return false
	}
	r.IsActive = false
	r.UpdatedAt = now
	return true
}
