package models

import (
	"strings"

	dErrors "transitpass/pkg/domain-errors"
)

// PassStatus is the ledger status of a pass. Expiry is not a status; see DisplayState.
type PassStatus string

const (
	PassStatusPending  PassStatus = "PENDING"
	PassStatusApproved PassStatus = "APPROVED"
	PassStatusRejected PassStatus = "REJECTED"
	PassStatusPaid     PassStatus = "PAID"
)

func (s PassStatus) IsValid() bool {
	switch s {
	case PassStatusPending, PassStatusApproved, PassStatusRejected, PassStatusPaid:
		return true
	default:
		return false
	}
}

// CanTransitionTo encodes PENDING -> APPROVED -> PAID and PENDING -> REJECTED.
func (s PassStatus) CanTransitionTo(next PassStatus) bool {
	switch s {
	case PassStatusPending:
		return next == PassStatusApproved || next == PassStatusRejected
	case PassStatusApproved:
		return next == PassStatusPaid
	case PassStatusRejected, PassStatusPaid:
		return false
	default:
		return false
	}
}

func ParsePassStatus(s string) (PassStatus, error) {
	status := PassStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !status.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid pass status")
	}
	return status, nil
}

// RenewalStatus is the ledger status of a renewal request.
type RenewalStatus string

const (
	RenewalStatusPending  RenewalStatus = "PENDING"
	RenewalStatusApproved RenewalStatus = "APPROVED"
	RenewalStatusRejected RenewalStatus = "REJECTED"
	RenewalStatusPaid     RenewalStatus = "PAID"
)

func (s RenewalStatus) IsValid() bool {
	switch s {
	case RenewalStatusPending, RenewalStatusApproved, RenewalStatusRejected, RenewalStatusPaid:
		return true
	default:
		return false
	}
}

// IsOpen reports whether a renewal still awaits review or payment. A pass has
// at most one open renewal.
func (s RenewalStatus) IsOpen() bool {
	return s == RenewalStatusPending || s == RenewalStatusApproved
}

func (s RenewalStatus) CanTransitionTo(next RenewalStatus) bool {
	switch s {
	case RenewalStatusPending:
		return next == RenewalStatusApproved || next == RenewalStatusRejected
	case RenewalStatusApproved:
		return next == RenewalStatusPaid
	case RenewalStatusRejected, RenewalStatusPaid:
		return false
	default:
		return false
	}
}

func ParseRenewalStatus(s string) (RenewalStatus, error) {
	status := RenewalStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !status.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid renewal status")
	}
	return status, nil
}

// DisplayState is derived on read and never stored.
type DisplayState string

const (
	DisplayActive   DisplayState = "ACTIVE"
	DisplayInactive DisplayState = "INACTIVE"
	DisplayExpired  DisplayState = "EXPIRED"
)

// PassType distinguishes a first application from a renewal in the status view.
type PassType string

const (
	PassTypeNew     PassType = "NEW"
	PassTypeRenewal PassType = "RENEWAL"
)
