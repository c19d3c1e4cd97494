// Package billing holds the pure rate computations for parking sessions.
package billing

import (
	"time"

	"github.com/mrcbstmnte/park-n-go/internal/domain"
)

// HoursPerDay is the threshold at which a stay switches to the day rate.
const HoursPerDay = 24

// Rounding selects how a duration is converted to whole hours. Billing
// always rounds up (any started hour is charged in full); the continuity
// check rounds to nearest so a sub-minute gap cannot waive the flat fee.
type Rounding int

const (
	RoundUp Rounding = iota
	RoundNearest
)

// ElapsedHours converts the span between start and end to whole hours
// using the given rounding mode.
func ElapsedHours(start, end time.Time, mode Rounding) int64 {
	d := end.Sub(start)
	if mode == RoundNearest {
		return int64((d + 30*time.Minute) / time.Hour)
	}
	h := d / time.Hour
	if d%time.Hour != 0 {
		h++
	}
	return int64(h)
}

// Policy is the rate table applied to every session. It is built once from
// configuration and passed to the engine at construction time.
type Policy struct {
	// FlatFee is charged once per non-continuous session and includes
	// FreeHours hours of parking.
	FlatFee int64
	// WholeDayFee replaces the flat+hourly formula for each full 24h chunk.
	WholeDayFee int64
	// HourlyRates is indexed by domain.Tier.
	HourlyRates [3]int64
	// FreeHours is the number of hours covered by the flat fee.
	FreeHours int64
	// GraceHours is the maximum gap since the last departure that still
	// counts as a continuous stay.
	GraceHours int64
}

// HourlyRate returns the rate for a slot of the given tier.
func (p Policy) HourlyRate(t domain.Tier) int64 {
	return p.HourlyRates[t]
}

// IsContinuous reports whether an arrival continues the vehicle's previous
// visit. A vehicle with no recorded visit is never continuous.
func (p Policy) IsContinuous(lastVisit *domain.Visit, arrival time.Time) bool {
	if lastVisit == nil {
		return false
	}
	return ElapsedHours(lastVisit.DepartedAt, arrival, RoundNearest) <= p.GraceHours
}

// FlatComponent returns the flat fee owed for a session; continuous stays
// are exempt.
func (p Policy) FlatComponent(isContinuous bool) int64 {
	if isContinuous {
		return 0
	}
	return p.FlatFee
}

// Payment computes the amount owed for a stay of totalHours whole hours.
// At or beyond 24 hours the day rate applies: one WholeDayFee per full day
// plus the hourly rate for the remainder. Below that the session pays the
// flat component plus hourly overage past the free-hours threshold.
func (p Policy) Payment(hourlyRate, flatComponent, totalHours int64) int64 {
	if totalHours >= HoursPerDay {
		days := totalHours / HoursPerDay
		remainder := totalHours % HoursPerDay
		return days*p.WholeDayFee + remainder*hourlyRate
	}

	overage := totalHours - p.FreeHours
	if overage < 0 {
		overage = 0
	}
	return flatComponent + hourlyRate*overage
}
