package httpserver

import (
	"net/http"
	"strconv"

	apierrors "github.com/tidybook/subsync/internal/errors"
	"github.com/tidybook/subsync/internal/logger"
	"github.com/tidybook/subsync/pkg/responders"
)

// getAnalytics returns aggregate subscriber-base numbers.
// GET /subsync/v1/analytics
func (h *handlers) getAnalytics(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	analytics, err := h.access.Analytics(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("analytics.failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeDatabaseError, "failed to aggregate subscription analytics")
		return
	}

	responders.JSON(w, http.StatusOK, analytics)
}

// getHealthReport returns the operational health of the subscription engine
// (configuration problems, stale linked records, per-status counts).
// GET /subsync/v1/health
func (h *handlers) getHealthReport(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	report, err := h.access.Health(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("health.report_failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeDatabaseError, "failed to build health report")
		return
	}

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	responders.JSON(w, status, report)
}

// runSyncResponse summarizes a manually triggered scheduler pass.
type runSyncResponse struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// runSync triggers one scheduler pass outside the regular interval. Limit
// can be overridden with ?limit=N. Protected by the admin API key.
// POST /subsync/v1/sync/run
func (h *handlers) runSync(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	if h.scheduler == nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeConfigError, "background sync is not configured")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	synced, failed, err := h.scheduler.RunOnce(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("sync.manual_run_failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "sync run failed")
		return
	}

	log.Info().Int("synced", synced).Int("failed", failed).Msg("sync.manual_run_completed")
	responders.JSON(w, http.StatusOK, runSyncResponse{Synced: synced, Failed: failed})
}
