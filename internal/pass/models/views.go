package models

import (
	"time"

	id "transitpass/pkg/domain"
)

// EligiblePass is the pass a user may renew, with the per-month fare used to pre-fill the renewal fare.
type EligiblePass struct {
	Pass     *Pass
	BaseFare int64
}

// PendingRenewal is an admin review row.
type PendingRenewal struct {
	Renewal       *Renewal
	ApplicantName string
	CurrentRoute  string
}

// StatusView is the caller's current pass situation. Renewals take precedence
// over the original application when one exists.
type StatusView struct {
	HasPass        bool
	PassID         id.PassID
	RenewalID      id.RenewalID
	ApplicantName  string
	PassType       PassType
	Route          string
	ExpiryDate     time.Time
	Fare           int64
	ApprovalStatus string
	State          DisplayState
	DaysLeft       int
	CanPay         bool
}

// NewPassStatusView builds the view for a pass with no live renewal.
func NewPassStatusView(p *Pass, today time.Time) StatusView {
	return StatusView{
		HasPass:        true,
		PassID:         p.ID,
		ApplicantName:  p.ApplicantName,
		PassType:       PassTypeNew,
		Route:          p.Route,
		ExpiryDate:     p.ValidTo,
		Fare:           p.Fare,
		ApprovalStatus: string(p.Status),
		State:          p.DisplayState(today),
		DaysLeft:       p.DaysLeft(today),
		CanPay:         p.Status == PassStatusApproved,
	}
}

// NewRenewalStatusView builds the view for a renewal of p.
func NewRenewalStatusView(p *Pass, r *Renewal, today time.Time) StatusView {
	return StatusView{
		HasPass:        true,
		PassID:         p.ID,
		RenewalID:      r.ID,
		ApplicantName:  p.ApplicantName,
		PassType:       PassTypeRenewal,
		Route:          r.RequestedRoute,
		ExpiryDate:     r.NewExpiry,
		Fare:           r.RenewalFare,
		ApprovalStatus: string(r.Status),
		State:          r.DisplayState(today),
		DaysLeft:       r.DaysLeft(today),
		CanPay:         r.Status == RenewalStatusApproved,
	}
}
