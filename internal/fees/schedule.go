// Package fees maps days late to a late-return fee rate through an ordered table of rate tiers.
package fees

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultMinDaysLate is the smallest lateness that is charged when nothing else is configured.
const DefaultMinDaysLate = 1

// ErrInvalidSchedule is returned when a tier table is not ordered and contiguous.
var ErrInvalidSchedule = errors.New("invalid fee schedule")

// Tier covers the days-late range (LowerBound, UpperBound].
// The final tier of a schedule is open-ended and has Unbounded set.
type Tier struct {
	LowerBound        int
	UpperBound        int
	Unbounded         bool
	BasePenaltyRate   float64
	DailyInterestRate float64
}

// Contains reports whether daysLate falls into the tier range.
func (t Tier) Contains(daysLate int) bool {
	if daysLate <= t.LowerBound {
		return false
	}
	return t.Unbounded || daysLate <= t.UpperBound
}

// Rate is the fee for daysLate under this tier.
func (t Tier) Rate(daysLate int) float64 {
	return t.BasePenaltyRate + t.DailyInterestRate*float64(daysLate)
}

// TierSpec describes a tier by its inclusive upper bound only; lower bounds are derived
// from the previous tier. A nil MaxDaysLate marks the open-ended final tier.
type TierSpec struct {
	MaxDaysLate       *int    `yaml:"max_days_late"`
	BasePenaltyRate   float64 `yaml:"base_penalty_rate"`
	DailyInterestRate float64 `yaml:"daily_interest_rate"`
}

// Schedule is an immutable ordered chain of tiers.
type Schedule struct {
	tiers []Tier
}

func bound(n int) *int { return &n }

// StandardTiers is the library's tier table: (0,3], (3,5] and (5,∞).
func StandardTiers() []TierSpec {
	return []TierSpec{
		{MaxDaysLate: bound(3), BasePenaltyRate: 0.03, DailyInterestRate: 0.002},
		{MaxDaysLate: bound(5), BasePenaltyRate: 0.05, DailyInterestRate: 0.004},
		{BasePenaltyRate: 0.07, DailyInterestRate: 0.006},
	}
}

// DefaultSchedule builds the standard tiers with DefaultMinDaysLate.
func DefaultSchedule() Schedule {
	s, err := NewSchedule(DefaultMinDaysLate, StandardTiers())
	if err != nil {
		panic(err)
	}
	return s
}

// NewSchedule builds a schedule from tier specs. minDaysLate is the first lateness that is
// charged, so the first tier's exclusive lower bound is minDaysLate-1.
func NewSchedule(minDaysLate int, specs []TierSpec) (Schedule, error) {
	if len(specs) == 0 {
		return Schedule{}, fmt.Errorf("%w: no tiers", ErrInvalidSchedule)
	}
	if minDaysLate < 1 {
		return Schedule{}, fmt.Errorf("%w: min days late must be at least 1, got %d", ErrInvalidSchedule, minDaysLate)
	}

	tiers := make([]Tier, 0, len(specs))
	lower := minDaysLate - 1
	for i, spec := range specs {
		last := i == len(specs)-1

		if spec.MaxDaysLate == nil {
			if !last {
				return Schedule{}, fmt.Errorf("%w: tier %d is open-ended but not last", ErrInvalidSchedule, i+1)
			}
			tiers = append(tiers, Tier{
				LowerBound:        lower,
				Unbounded:         true,
				BasePenaltyRate:   spec.BasePenaltyRate,
				DailyInterestRate: spec.DailyInterestRate,
			})
			continue
		}

		if last {
			return Schedule{}, fmt.Errorf("%w: last tier must be open-ended", ErrInvalidSchedule)
		}
		upper := *spec.MaxDaysLate
		if upper <= lower {
			return Schedule{}, fmt.Errorf("%w: tier %d upper bound %d is not above %d", ErrInvalidSchedule, i+1, upper, lower)
		}
		tiers = append(tiers, Tier{
			LowerBound:        lower,
			UpperBound:        upper,
			BasePenaltyRate:   spec.BasePenaltyRate,
			DailyInterestRate: spec.DailyInterestRate,
		})
		lower = upper
	}

	return Schedule{tiers: tiers}, nil
}

// Tiers returns a copy of the tier table.
func (s Schedule) Tiers() []Tier {
	out := make([]Tier, len(s.tiers))
	copy(out, s.tiers)
	return out
}

// FeeFor returns the fee rate as a fraction. Lateness at or below the first tier's
// lower bound, including zero and negative values, is not charged.
func (s Schedule) FeeFor(daysLate int) float64 {
	if daysLate <= 0 || len(s.tiers) == 0 || daysLate <= s.tiers[0].LowerBound {
		return 0
	}

	for _, tier := range s.tiers {
		if tier.Contains(daysLate) {
			return tier.Rate(daysLate)
		}
	}
	return s.tiers[len(s.tiers)-1].Rate(daysLate)
}

// PercentageFor returns the fee for daysLate as a percentage rounded to 2 decimals.
func (s Schedule) PercentageFor(daysLate int) float64 {
	return ToPercentage(s.FeeFor(daysLate))
}

// ToPercentage converts a fee fraction to a display percentage rounded to 2 decimals.
func ToPercentage(rate float64) float64 {
	return decimal.NewFromFloat(rate * 100).Round(2).InexactFloat64()
}
