package access

import (
	"context"
	"fmt"

	"github.com/tidybook/subsync/internal/subscription"
)

// Analytics summarizes the subscriber base. Ratios with a zero denominator
// are reported as zero rather than NaN.
type Analytics struct {
	Counts map[subscription.Status]int `json:"counts"`
	Total  int                         `json:"total"`

	// ConversionRate is active over everyone who ever trialed
	// (trial + active + expired_trial).
	ConversionRate float64 `json:"conversionRate"`

	// ChurnRate is (cancelled + expired) over (active + cancelled + expired).
	ChurnRate float64 `json:"churnRate"`

	// EstimatedMRRCents is active subscribers times the monthly unit price.
	// Zero when no price is configured or the provider lookup fails.
	EstimatedMRRCents int64  `json:"estimatedMrrCents"`
	Currency          string `json:"currency,omitempty"`
}

// Analytics aggregates per-status counts and derives the headline rates.
func (s *Service) Analytics(ctx context.Context) (Analytics, error) {
	counts, err := s.store.StatusCounts(ctx)
	if err != nil {
		return Analytics{}, fmt.Errorf("status counts: %w", err)
	}

	a := Analytics{Counts: counts}
	for _, n := range counts {
		a.Total += n
	}

	active := counts[subscription.StatusActive]
	trialed := counts[subscription.StatusTrial] + active + counts[subscription.StatusExpiredTrial]
	if trialed > 0 {
		a.ConversionRate = float64(active) / float64(trialed)
	}

	churned := counts[subscription.StatusCancelled] + counts[subscription.StatusExpired]
	if denom := active + churned; denom > 0 {
		a.ChurnRate = float64(churned) / float64(denom)
	}

	if active > 0 && s.priceID != "" && s.billing != nil {
		price, err := s.billing.FetchPrice(ctx, s.priceID)
		if err != nil {
			s.logger.Warn().Err(err).Str("price_id", s.priceID).Msg("price lookup failed, MRR omitted")
		} else {
			a.EstimatedMRRCents = int64(active) * monthlyAmount(price.UnitAmountCents, price.Interval, price.IntervalCount)
			a.Currency = price.Currency
		}
	}

	return a, nil
}

// monthlyAmount normalizes a recurring price to a per-month amount in cents.
func monthlyAmount(unitAmountCents int64, interval string, intervalCount int) int64 {
	if intervalCount <= 0 {
		intervalCount = 1
	}
	switch interval {
	case "year":
		return unitAmountCents / (12 * int64(intervalCount))
	case "week":
		return unitAmountCents * 4 / int64(intervalCount)
	case "day":
		return unitAmountCents * 30 / int64(intervalCount)
	default: // "month"
		return unitAmountCents / int64(intervalCount)
	}
}
