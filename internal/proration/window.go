// Package proration spreads invoice totals over the days of the control
// period they cover.
//
// A record billed for [billing_start, billing_end] contributes
// total * effective_days / billing_days, where effective_days is the
// inclusive overlap with the control period. Day counts are inclusive on
// both ends, so a one-day period counts as 1.
package proration

import (
	"time"

	"monotributo-control/internal/models"
)

// Window is the overlap of a billing period with the control period
type Window struct {
	BillingStart   time.Time
	BillingEnd     time.Time
	EffectiveStart time.Time
	EffectiveEnd   time.Time
	BillingDays    int
	EffectiveDays  int
}

// Overlaps reports whether any day of the billing period is in the period
func (w Window) Overlaps() bool {
	return w.EffectiveDays > 0
}

// ComputeWindow intersects a billing period with the control period.
// BillingDays is at least 1; an inverted billing period is read in date
// order. EffectiveDays is 0 when the two do not overlap; EffectiveEnd is
// then held at EffectiveStart.
func ComputeWindow(billingStart, billingEnd time.Time, period models.ControlPeriod) Window {
	billingStart, billingEnd = models.Day(billingStart), models.Day(billingEnd)
	if billingEnd.Before(billingStart) {
		billingStart, billingEnd = billingEnd, billingStart
	}

	w := Window{
		BillingStart:   billingStart,
		BillingEnd:     billingEnd,
		EffectiveStart: laterOf(period.Start, billingStart),
		EffectiveEnd:   earlierOf(period.End, billingEnd),
		BillingDays:    models.DaysBetween(billingStart, billingEnd) + 1,
	}

	w.EffectiveDays = models.DaysBetween(w.EffectiveStart, w.EffectiveEnd) + 1
	if w.EffectiveDays < 0 {
		w.EffectiveDays = 0
	}
	if w.EffectiveEnd.Before(w.EffectiveStart) {
		w.EffectiveEnd = w.EffectiveStart
	}

	return w
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlierOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
