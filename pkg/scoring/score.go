// Package scoring turns the raw text signals of a job posting into a
// single 0-10 score and a display tier.
package scoring

import "strconv"

// Value is a normalized factor value on the 0-10 scale, or absent when the
// signal was missing or could not be parsed. Penalties may go below zero.
type Value struct {
	v  float64
	ok bool
}

// Absent is the missing value.
var Absent = Value{}

func Present(v float64) Value { return Value{v: v, ok: true} }

func (v Value) Get() (float64, bool) { return v.v, v.ok }

func (v Value) IsPresent() bool { return v.ok }

func (v Value) String() string {
	if !v.ok {
		return "-"
	}
	return strconv.FormatFloat(v.v, 'f', 1, 64)
}

// Factor is one weighted input to Score.
type Factor struct {
	Name   string
	Value  Value
	Weight float64
}

// Counts reports whether the factor takes part in the aggregate.
func (f Factor) Counts() bool {
	return f.Value.ok && f.Weight > 0
}

// Score is the weighted arithmetic mean of the factors that are present
// and carry a positive weight. It reports false when no factor qualifies.
func Score(factors []Factor) (float64, bool) {
	var total, weights float64
	for _, f := range factors {
		if !f.Counts() {
			continue
		}
		total += f.Value.v * f.Weight
		weights += f.Weight
	}
	if weights == 0 {
		return 0, false
	}
	return total / weights, true
}

// Format renders a score with one decimal, or "n/a" when there is none.
func Format(score float64, ok bool) string {
	if !ok {
		return "n/a"
	}
	return strconv.FormatFloat(score, 'f', 1, 64)
}

// Tier is the display band a score falls into.
type Tier int

const (
	Low Tier = iota
	MediumLow
	MediumHigh
	High
)

// Classify maps a score to its tier: >=7 high, >=5 medium-high, >=3
// medium-low, anything else low.
func Classify(score float64) Tier {
	switch {
	case score >= 7:
		return High
	case score >= 5:
		return MediumHigh
	case score >= 3:
		return MediumLow
	default:
		return Low
	}
}

func (t Tier) String() string {
	switch t {
	case High:
		return "high"
	case MediumHigh:
		return "medium-high"
	case MediumLow:
		return "medium-low"
	default:
		return "low"
	}
}

func (t Tier) color() string {
	switch t {
	case High:
		return "green"
	case MediumHigh:
		return "light-green"
	case MediumLow:
		return "yellow"
	default:
		return "red"
	}
}

// BadgeClass is the label style for the tier.
func (t Tier) BadgeClass() string { return "badge-" + t.color() }

// RowClass is the row highlight for the tier.
func (t Tier) RowClass() string { return "row-" + t.color() }

// ParseTier is the inverse of Tier.String.
func ParseTier(s string) (Tier, bool) {
	for _, t := range []Tier{Low, MediumLow, MediumHigh, High} {
		if t.String() == s {
			return t, true
		}
	}
	return Low, false
}
