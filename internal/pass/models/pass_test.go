package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitpass/internal/fare"
	dErrors "transitpass/pkg/domain-errors"
)

func validPassParams() NewPassParams {
	return NewPassParams{
		UserID:         7,
		ApplicantName:  "Asha Rao",
		Route:          "Depot - Central",
		DistanceKm:     8,
		DurationMonths: 1,
		Fare:           300,
		Concession:     fare.ConcessionGeneral,
		IDProofRef:     "doc-1",
	}
}

func TestNewPass(t *testing.T) {
	today := date(2024, 1, 15)
	now := today.Add(10 * time.Hour)

	t.Run("computes window with calendar months", func(t *testing.T) {
		p, err := NewPass(validPassParams(), today, now)
		require.NoError(t, err)
		assert.Equal(t, today, p.ValidFrom)
		assert.Equal(t, date(2024, 2, 15), p.ValidTo)
		assert.Equal(t, PassStatusPending, p.Status)
		assert.False(t, p.IsActive)

		params := validPassParams()
		params.DurationMonths = 3
		params.Fare = 900
		p, err = NewPass(params, today, now)
		require.NoError(t, err)
		assert.Equal(t, date(2024, 4, 15), p.ValidTo)
	})

	t.Run("rejects invalid input as invariant violations", func(t *testing.T) {
		cases := map[string]func(*NewPassParams){
			"missing name":     func(p *NewPassParams) { p.ApplicantName = "  " },
			"missing route":    func(p *NewPassParams) { p.Route = "" },
			"negative km":      func(p *NewPassParams) { p.DistanceKm = -2 },
			"two months":       func(p *NewPassParams) { p.DurationMonths = 2 },
			"zero fare":        func(p *NewPassParams) { p.Fare = 0 },
			"missing document": func(p *NewPassParams) { p.IDProofRef = "" },
			"missing owner":    func(p *NewPassParams) { p.UserID = 0 },
		}
		for name, mutate := range cases {
			params := validPassParams()
			mutate(&params)
			_, err := NewPass(params, today, now)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation), name)
		}
	})
}

func TestPassTransitions(t *testing.T) {
	now := date(2024, 1, 15)

	t.Run("approval never activates", func(t *testing.T) {
		p := &Pass{Status: PassStatusPending}
		require.NoError(t, p.CanApprove())
		p.ApplyApproval(now)
		assert.Equal(t, PassStatusApproved, p.Status)
		assert.False(t, p.IsActive)
		assert.NoError(t, p.CheckInvariants())
	})

	t.Run("rejection is terminal", func(t *testing.T) {
		p := &Pass{Status: PassStatusPending}
		require.NoError(t, p.CanReject())
		p.ApplyRejection(now)

		assert.True(t, dErrors.HasCode(p.CanApprove(), dErrors.CodeInvalidState))
		assert.True(t, dErrors.HasCode(p.CanReject(), dErrors.CodeInvalidState))
		assert.True(t, dErrors.HasCode(p.CanAcceptPayment(), dErrors.CodeInvalidState))
	})

	t.Run("payment requires approval", func(t *testing.T) {
		p := &Pass{Status: PassStatusPending}
		assert.True(t, dErrors.HasCode(p.CanAcceptPayment(), dErrors.CodeInvalidState))

		p.ApplyApproval(now)
		require.NoError(t, p.CanAcceptPayment())
		p.ApplyPayment("pay_1", now)
		assert.Equal(t, PassStatusPaid, p.Status)
		assert.True(t, p.IsActive)
		assert.Equal(t, "pay_1", p.PaymentID)
	})

	t.Run("active unpaid pass violates invariant", func(t *testing.T) {
		p := &Pass{Status: PassStatusApproved, IsActive: true}
		assert.True(t, dErrors.HasCode(p.CheckInvariants(), dErrors.CodeInvariantViolation))
	})

	t.Run("expiry flips only once", func(t *testing.T) {
		p := &Pass{Status: PassStatusPaid, IsActive: true}
		assert.True(t, p.ApplyExpiry(now))
		assert.False(t, p.ApplyExpiry(now))
		assert.Equal(t, PassStatusPaid, p.Status, "expiry keeps the payment status")
	})
}

func TestPassPredicates(t *testing.T) {
	today := date(2024, 3, 1)

	t.Run("approved unexpired pass blocks new applications", func(t *testing.T) {
		p := &Pass{Status: PassStatusApproved, ValidTo: today}
		assert.True(t, p.BlocksNewApplication(today))

		p.ValidTo = today.AddDate(0, 0, -1)
		assert.False(t, p.BlocksNewApplication(today))
	})

	t.Run("paid and pending passes do not block", func(t *testing.T) {
		for _, s := range []PassStatus{PassStatusPending, PassStatusPaid, PassStatusRejected} {
			p := &Pass{Status: s, ValidTo: today.AddDate(0, 1, 0), IsActive: s == PassStatusPaid}
			assert.False(t, p.BlocksNewApplication(today), s)
		}
	})

	t.Run("display state", func(t *testing.T) {
		active := &Pass{Status: PassStatusPaid, IsActive: true, ValidTo: today.AddDate(0, 0, 10)}
		assert.Equal(t, DisplayActive, active.DisplayState(today))
		assert.Equal(t, 10, active.DaysLeft(today))

		expired := &Pass{Status: PassStatusPaid, IsActive: true, ValidTo: today.AddDate(0, 0, -1)}
		assert.Equal(t, DisplayExpired, expired.DisplayState(today))
		assert.Equal(t, 0, expired.DaysLeft(today))

		approved := &Pass{Status: PassStatusApproved, ValidTo: today.AddDate(0, 1, 0)}
		assert.Equal(t, DisplayInactive, approved.DisplayState(today))
	})

	t.Run("base fare truncates", func(t *testing.T) {
		p := &Pass{Fare: 1000, DurationMonths: 3}
		assert.Equal(t, int64(333), p.BaseFare())
	})
}

func TestPassRenewalSync(t *testing.T) {
	now := date(2024, 2, 1)
	p := &Pass{Status: PassStatusPaid, IsActive: true, Route: "A - B", DistanceKm: 4, ValidTo: date(2024, 2, 15)}
	r := &Renewal{
		OldExpiry:           date(2024, 2, 15),
		NewExpiry:           date(2024, 5, 15),
		RouteChanged:        true,
		RequestedRoute:      "A - C",
		RequestedDistanceKm: 12,
	}

	p.ApplyRenewalApproval(r, now)
	assert.Equal(t, date(2024, 2, 15), p.ValidFrom)
	assert.Equal(t, date(2024, 5, 15), p.ValidTo)
	assert.Equal(t, "A - C", p.Route)
	assert.Equal(t, 12.0, p.DistanceKm)
	assert.False(t, p.IsActive, "approval leaves service off until payment")
	assert.NoError(t, p.CheckInvariants())

	p.ApplyRenewalPayment(r, now)
	assert.True(t, p.IsActive)
	assert.Equal(t, PassStatusPaid, p.Status)
}
