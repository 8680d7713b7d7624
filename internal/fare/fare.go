// Package fare computes pass prices from route distance, concession category and duration.
package fare

import (
	"math"
	"strings"

	dErrors "transitpass/pkg/domain-errors"
)

// Concession is the discount category an applicant qualifies for.
type Concession string

const (
	ConcessionGeneral Concession = "GENERAL"
	ConcessionStudent Concession = "STUDENT"
	ConcessionElder   Concession = "ELDER"
)

// ParseConcession accepts an empty value as GENERAL.
func ParseConcession(s string) (Concession, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ConcessionGeneral, nil
	}
	c := Concession(s)
	switch c {
	case ConcessionGeneral, ConcessionStudent, ConcessionElder:
		return c, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "concession must be GENERAL, STUDENT or ELDER")
	}
}

// percent is the share of the slab fare charged for the category.
func (c Concession) percent() int64 {
	switch c {
	case ConcessionStudent:
		return 80
	case ConcessionElder:
		return 70
	default:
		return 100
	}
}

type slab struct {
	upToKm  float64
	monthly int64
}

var slabs = []slab{
	{upToKm: 5, monthly: 150},
	{upToKm: 10, monthly: 300},
	{upToKm: 20, monthly: 500},
	{upToKm: math.Inf(1), monthly: 700},
}

// Monthly returns the per-month fare for a route distance under a concession.
func Monthly(distanceKm float64, c Concession) int64 {
	var base int64
	for _, s := range slabs {
		if distanceKm <= s.upToKm {
			base = s.monthly
			break
		}
	}
	// Round half up on the discounted amount.
	return (base*c.percent() + 50) / 100
}

// Quote is a priced duration.
type Quote struct {
	Monthly int64 `json:"monthly"`
	Months  int   `json:"months"`
	Total   int64 `json:"total"`
}

// NewQuote prices distanceKm for the given number of months.
func NewQuote(distanceKm float64, c Concession, months int) (Quote, error) {
	if distanceKm < 0 || math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) {
		return Quote{}, dErrors.New(dErrors.CodeValidation, "distance must be a non-negative number")
	}
	if months <= 0 {
		return Quote{}, dErrors.New(dErrors.CodeValidation, "months must be positive")
	}
	monthly := Monthly(distanceKm, c)
	return Quote{Monthly: monthly, Months: months, Total: monthly * int64(months)}, nil
}
