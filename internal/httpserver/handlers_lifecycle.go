package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/tidybook/subsync/internal/access"
	apierrors "github.com/tidybook/subsync/internal/errors"
	"github.com/tidybook/subsync/internal/logger"
	"github.com/tidybook/subsync/internal/subscription"
	"github.com/tidybook/subsync/internal/tenant"
	"github.com/tidybook/subsync/pkg/responders"
)

// startTrialRequest is the body for trial provisioning.
type startTrialRequest struct {
	Email string `json:"email"` // Used to register the billing-provider customer
}

// trialResponse describes the freshly created trial.
type trialResponse struct {
	TenantID    string  `json:"tenantId"`
	Status      string  `json:"status"`
	TrialEndsAt *string `json:"trialEndsAt,omitempty"`
	Linked      bool    `json:"linked"`
}

// startTrial provisions the tenant's one-and-only trial.
// POST /subsync/v1/trial
func (h *handlers) startTrial(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	tenantID := tenant.FromContext(r.Context())

	var req startTrialRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		log.Warn().Err(err).Msg("trial.invalid_body")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField, err.Error())
		return
	}

	if req.Email != "" && !strings.Contains(req.Email, "@") {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField, "email is not valid")
		return
	}

	rec, err := h.access.StartTrial(r.Context(), tenantID, req.Email)
	if err != nil {
		if errors.Is(err, access.ErrTrialAlreadyUsed) {
			apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeTrialAlreadyUsed, "tenant already has a subscription record", "tenantId", tenantID)
			return
		}
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("trial.create_failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "failed to start trial")
		return
	}

	log.Info().
		Str("tenant_id", tenantID).
		Str("customer_id", logger.TruncateID(rec.ExternalCustomerID)).
		Msg("trial.started")

	responders.JSON(w, http.StatusCreated, trialResponse{
		TenantID:    rec.TenantID,
		Status:      string(rec.Status),
		TrialEndsAt: isoTime(rec.TrialEndsAt),
		Linked:      rec.Linked(),
	})
}

// cancelRequest is the body for subscription cancellation.
type cancelRequest struct {
	AtPeriodEnd *bool `json:"atPeriodEnd"` // Defaults to true: cancel at period end
}

// cancelResponse describes the cancelled subscription. Access persists
// until accessUntil (the end of the period already paid for).
type cancelResponse struct {
	TenantID    string  `json:"tenantId"`
	Status      string  `json:"status"`
	AccessUntil *string `json:"accessUntil,omitempty"`
}

// cancelSubscription cancels provider-side and marks the record cancelled.
// POST /subsync/v1/cancel
func (h *handlers) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	tenantID := tenant.FromContext(r.Context())

	atPeriodEnd := true
	if r.Body != nil && r.ContentLength != 0 {
		var req cancelRequest
		if err := decodeJSON(r.Body, &req); err != nil {
			log.Warn().Err(err).Msg("cancel.invalid_body")
			apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField, err.Error())
			return
		}
		if req.AtPeriodEnd != nil {
			atPeriodEnd = *req.AtPeriodEnd
		}
	}

	rec, err := h.access.Cancel(r.Context(), tenantID, atPeriodEnd)
	if err != nil {
		switch {
		case errors.Is(err, access.ErrNotSubscribed):
			apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeSubscriptionNotFound, "tenant has no subscription", "tenantId", tenantID)
		case errors.Is(err, access.ErrAlreadyCancelled):
			apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeAlreadyCancelled, "subscription is already cancelled", "tenantId", tenantID)
		default:
			log.Error().Err(err).Str("tenant_id", tenantID).Msg("cancel.failed")
			apierrors.WriteSimpleError(w, apierrors.ErrCodeProviderError, "failed to cancel subscription")
		}
		return
	}

	log.Info().
		Str("tenant_id", tenantID).
		Bool("at_period_end", atPeriodEnd).
		Msg("subscription.cancelled")

	resp := cancelResponse{
		TenantID: rec.TenantID,
		Status:   string(rec.Status),
	}
	if rec.EndsAt != nil {
		until := rec.EndsAt.Add(subscription.GracePeriod)
		resp.AccessUntil = isoTime(&until)
	}
	responders.JSON(w, http.StatusOK, resp)
}
