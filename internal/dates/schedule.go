package dates

import "time"

// Rule decides which end of a schedule is the anchor.
type Rule int

const (
	// Forward steps from the issue date; a stub, if any, falls at maturity.
	Forward Rule = iota
	// Backward steps from maturity; a stub, if any, falls at the start.
	Backward
)

// GenerateSchedule returns adjusted period boundaries from start to maturity
// at the given step in months. With the Backward rule and a zero start the
// schedule begins at the last anchor date on or before notBefore, which is
// how gilts without an issue date get their previous coupon date.
func GenerateSchedule(start, maturity, notBefore time.Time, months int, cal *Calendar, conv Convention, rule Rule) []time.Time {
	if months <= 0 {
		return []time.Time{cal.Adjust(start, conv), cal.Adjust(maturity, conv)}
	}

	var unadjusted []time.Time

	switch rule {
	case Backward:
		floor := start
		if floor.IsZero() {
			floor = notBefore
		}
		unadjusted = append(unadjusted, maturity)
		for k := 1; ; k++ {
			d := AddMonths(maturity, -k*months)
			if !d.After(floor) {
				if start.IsZero() {
					unadjusted = append(unadjusted, d)
				} else {
					unadjusted = append(unadjusted, start)
				}
				break
			}
			unadjusted = append(unadjusted, d)
		}
		for i, j := 0, len(unadjusted)-1; i < j; i, j = i+1, j-1 {
			unadjusted[i], unadjusted[j] = unadjusted[j], unadjusted[i]
		}
	default:
		unadjusted = append(unadjusted, start)
		for k := 1; ; k++ {
			d := AddMonths(start, k*months)
			if !d.Before(maturity) {
				unadjusted = append(unadjusted, maturity)
				break
			}
			unadjusted = append(unadjusted, d)
		}
	}

	out := make([]time.Time, 0, len(unadjusted))
	for _, d := range unadjusted {
		out = append(out, cal.Adjust(d, conv))
	}
	return out
}

// EvalContext carries the evaluation date and calendar explicitly through
// curve and instrument construction.
type EvalContext struct {
	Date     time.Time
	Calendar *Calendar
}

// NewEvalContext truncates date to a day. A nil calendar means weekends only.
func NewEvalContext(date time.Time, cal *Calendar) EvalContext {
	if cal == nil {
		cal = Weekends
	}
	return EvalContext{Date: Truncate(date), Calendar: cal}
}
