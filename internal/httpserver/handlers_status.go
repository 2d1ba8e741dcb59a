package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/tidybook/subsync/internal/access"
	apierrors "github.com/tidybook/subsync/internal/errors"
	"github.com/tidybook/subsync/internal/logger"
	syncsvc "github.com/tidybook/subsync/internal/sync"
	"github.com/tidybook/subsync/internal/tenant"
	"github.com/tidybook/subsync/pkg/responders"
)

// statusResponse is the tenant-facing subscription snapshot.
type statusResponse struct {
	TenantID             string  `json:"tenantId"`
	Status               string  `json:"status"`
	StoredStatus         string  `json:"storedStatus"`
	Active               bool    `json:"active"`
	Linked               bool    `json:"linked"`
	TrialEndsAt          *string `json:"trialEndsAt,omitempty"`
	EndsAt               *string `json:"endsAt,omitempty"`
	DaysUntilNextPayment int     `json:"daysUntilNextPayment"`
	CachedAt             string  `json:"cachedAt"`
	FromCache            bool    `json:"fromCache"`
}

func toStatusResponse(view access.StatusView) statusResponse {
	return statusResponse{
		TenantID:             view.TenantID,
		Status:               string(view.Status),
		StoredStatus:         string(view.StoredStatus),
		Active:               view.Status.Grants(),
		Linked:               view.Linked,
		TrialEndsAt:          isoTime(view.TrialEndsAt),
		EndsAt:               isoTime(view.EndsAt),
		DaysUntilNextPayment: view.DaysUntilNextPayment,
		CachedAt:             view.CachedAt.UTC().Format(time.RFC3339),
		FromCache:            view.FromCache,
	}
}

// getStatus returns the tenant's effective subscription status.
// GET /subsync/v1/status
func (h *handlers) getStatus(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	tenantID := tenant.FromContext(r.Context())

	view, err := h.access.Status(r.Context(), tenantID)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("status.lookup_failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "failed to look up subscription status")
		return
	}

	responders.JSON(w, http.StatusOK, toStatusResponse(view))
}

// refreshStatus forces a provider sync before answering. Unlike getStatus,
// a sync failure is surfaced so the caller knows the answer may be stale.
// POST /subsync/v1/refresh
func (h *handlers) refreshStatus(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	tenantID := tenant.FromContext(r.Context())

	view, err := h.access.Refresh(r.Context(), tenantID)
	if err != nil {
		var syncErr *syncsvc.SyncError
		if errors.As(err, &syncErr) {
			log.Warn().Err(err).Str("tenant_id", tenantID).Msg("refresh.sync_failed")
			apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeProviderError, "provider sync failed, stored state unchanged", "tenantId", tenantID)
			return
		}
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("refresh.failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "failed to refresh subscription status")
		return
	}

	responders.JSON(w, http.StatusOK, toStatusResponse(view))
}

// notifyLoginResponse reports whether a deferred sync was scheduled.
type notifyLoginResponse struct {
	Scheduled bool `json:"scheduled"`
}

// notifyLogin schedules the deferred post-login sync for the tenant. The
// response is 202: the sync happens later, off the login path.
// POST /subsync/v1/login
func (h *handlers) notifyLogin(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	tenantID := tenant.FromContext(r.Context())

	scheduled := h.access.OnLogin(tenantID)
	log.Debug().Str("tenant_id", tenantID).Bool("scheduled", scheduled).Msg("login.sync_scheduled")

	responders.JSON(w, http.StatusAccepted, notifyLoginResponse{Scheduled: scheduled})
}

func isoTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
