package handler

import (
	"time"

	"transitpass/internal/pass/models"
)

type PassResponse struct {
	ID             int64   `json:"id"`
	ApplicantName  string  `json:"applicant_name"`
	Route          string  `json:"route"`
	DistanceKm     float64 `json:"distance_km"`
	DurationMonths int     `json:"duration_months"`
	ValidFrom      string  `json:"valid_from"`
	ValidTo        string  `json:"valid_to"`
	Fare           int64   `json:"fare"`
	Concession     string  `json:"concession"`
	IDProof        string  `json:"id_proof"`
	Status         string  `json:"status"`
	IsActive       bool    `json:"is_active"`
	CreatedAt      string  `json:"created_at"`
}

func toPassResponse(p *models.Pass) PassResponse {
	return PassResponse{
		ID:             int64(p.ID),
		ApplicantName:  p.ApplicantName,
		Route:          p.Route,
		DistanceKm:     p.DistanceKm,
		DurationMonths: p.DurationMonths,
		ValidFrom:      p.ValidFrom.Format(time.DateOnly),
		ValidTo:        p.ValidTo.Format(time.DateOnly),
		Fare:           p.Fare,
		Concession:     string(p.Concession),
		IDProof:        p.IDProofRef,
		Status:         string(p.Status),
		IsActive:       p.IsActive,
		CreatedAt:      p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type RenewalResponse struct {
	ID                  int64   `json:"id"`
	PassID              int64   `json:"pass_id"`
	OldExpiry           string  `json:"old_expiry"`
	NewExpiry           string  `json:"new_expiry"`
	DurationMonths      int     `json:"duration_months"`
	RenewalFare         int64   `json:"renewal_fare"`
	RouteChanged        bool    `json:"route_changed"`
	RequestedRoute      string  `json:"requested_route"`
	RequestedDistanceKm float64 `json:"requested_distance_km"`
	Status              string  `json:"status"`
	IsActive            bool    `json:"is_active"`
}

func toRenewalResponse(r *models.Renewal) RenewalResponse {
	return RenewalResponse{
		ID:                  int64(r.ID),
		PassID:              int64(r.PassID),
		OldExpiry:           r.OldExpiry.Format(time.DateOnly),
		NewExpiry:           r.NewExpiry.Format(time.DateOnly),
		DurationMonths:      r.DurationMonths,
		RenewalFare:         r.RenewalFare,
		RouteChanged:        r.RouteChanged,
		RequestedRoute:      r.RequestedRoute,
		RequestedDistanceKm: r.RequestedDistanceKm,
		Status:              string(r.Status),
		IsActive:            r.IsActive,
	}
}

type EligiblePassResponse struct {
	PassID     int64   `json:"pass_id"`
	Route      string  `json:"route"`
	DistanceKm float64 `json:"distance_km"`
	ValidTo    string  `json:"valid_to"`
	BaseFare   int64   `json:"base_fare"`
	Concession string  `json:"concession"`
}

func toEligibleResponse(e *models.EligiblePass) EligiblePassResponse {
	return EligiblePassResponse{
		PassID:     int64(e.Pass.ID),
		Route:      e.Pass.Route,
		DistanceKm: e.Pass.DistanceKm,
		ValidTo:    e.Pass.ValidTo.Format(time.DateOnly),
		BaseFare:   e.BaseFare,
		Concession: string(e.Pass.Concession),
	}
}

type PendingRenewalResponse struct {
	RenewalResponse
	ApplicantName string `json:"applicant_name"`
	CurrentRoute  string `json:"current_route"`
}

// StatusResponse omits pass details when has_pass is false.
type StatusResponse struct {
	HasPass        bool   `json:"has_pass"`
	PassID         int64  `json:"pass_id,omitempty"`
	RenewalID      int64  `json:"renewal_id,omitempty"`
	ApplicantName  string `json:"applicant_name,omitempty"`
	PassType       string `json:"pass_type,omitempty"`
	Route          string `json:"route,omitempty"`
	ExpiryDate     string `json:"expiry_date,omitempty"`
	Fare           int64  `json:"fare,omitempty"`
	ApprovalStatus string `json:"approval_status,omitempty"`
	State          string `json:"state,omitempty"`
	DaysLeft       int    `json:"days_left"`
	CanPay         bool   `json:"can_pay"`
}

func toStatusResponse(v models.StatusView) StatusResponse {
	if !v.HasPass {
		return StatusResponse{}
	}
	return StatusResponse{
		HasPass:        true,
		PassID:         int64(v.PassID),
		RenewalID:      int64(v.RenewalID),
		ApplicantName:  v.ApplicantName,
		PassType:       string(v.PassType),
		Route:          v.Route,
		ExpiryDate:     v.ExpiryDate.Format(time.DateOnly),
		Fare:           v.Fare,
		ApprovalStatus: v.ApprovalStatus,
		State:          string(v.State),
		DaysLeft:       v.DaysLeft,
		CanPay:         v.CanPay,
	}
}
