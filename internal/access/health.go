package access

import (
	"context"
	"fmt"
	"time"

	"github.com/tidybook/subsync/internal/subscription"
)

// staleWindow is how far back a linked record may go unsynced before the
// health report flags it.
const staleWindow = 24 * time.Hour

// HealthReport describes the operational state of the subscription engine.
type HealthReport struct {
	Healthy       bool                        `json:"healthy"`
	BillingLinked bool                        `json:"billingLinked"`
	StaleRecords  int                         `json:"staleRecords"`
	Counts        map[subscription.Status]int `json:"counts"`
	Warnings      []string                    `json:"warnings,omitempty"`
	GeneratedAt   time.Time                   `json:"generatedAt"`
}

// Health reports configuration and data-freshness problems an operator
// should look at. It never fails the whole report for one bad probe.
func (s *Service) Health(ctx context.Context) (HealthReport, error) {
	report := HealthReport{
		Healthy:       true,
		BillingLinked: s.billing != nil,
		GeneratedAt:   s.now(),
	}

	if s.billing == nil {
		report.Healthy = false
		report.Warnings = append(report.Warnings, "billing provider not configured")
	}

	counts, err := s.store.StatusCounts(ctx)
	if err != nil {
		return HealthReport{}, fmt.Errorf("status counts: %w", err)
	}
	report.Counts = counts

	stale, err := s.store.CountStaleLinked(ctx, s.now().Add(-staleWindow))
	if err != nil {
		report.Warnings = append(report.Warnings, "stale record count unavailable: "+err.Error())
	} else {
		report.StaleRecords = stale
		if stale > 0 {
			report.Healthy = false
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%d linked records not synced in %s", stale, staleWindow))
		}
	}

	return report, nil
}
