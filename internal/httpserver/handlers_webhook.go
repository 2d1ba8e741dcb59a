package httpserver

import (
	"errors"
	"io"
	"net/http"
	"time"

	apierrors "github.com/tidybook/subsync/internal/errors"
	"github.com/tidybook/subsync/internal/logger"
	syncsvc "github.com/tidybook/subsync/internal/sync"
	"github.com/tidybook/subsync/pkg/responders"
)

// webhookResponse acknowledges a billing webhook.
type webhookResponse struct {
	Received bool   `json:"received"`
	Type     string `json:"type,omitempty"`
	Ignored  bool   `json:"ignored,omitempty"`
}

// billingWebhook processes verified billing provider webhooks. The event
// only identifies which subscription changed; the ingestor re-fetches the
// authoritative state through the reconciler.
// POST /webhook/billing
func (h *handlers) billingWebhook(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	start := time.Now()

	signature := r.Header.Get("Stripe-Signature")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error().Err(err).Msg("webhook.read_body_failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidPayload, "read body: "+err.Error())
		return
	}

	event, err := h.webhooks.Parse(body, signature)
	if err != nil {
		log.Warn().Err(err).Msg("webhook.invalid_signature")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidSignature, err.Error())
		return
	}

	tenantID, err := h.ingest.Process(r.Context(), event)
	if err != nil {
		// An event we can never match to a local record will not succeed on
		// retry either, so acknowledge it and move on.
		if errors.Is(err, syncsvc.ErrUnresolvedTenant) {
			log.Warn().
				Str("event_id", event.ID).
				Str("event_type", event.Type).
				Str("subscription_id", logger.TruncateID(event.SubscriptionID)).
				Msg("webhook.unresolved_tenant")
			responders.JSON(w, http.StatusOK, webhookResponse{Received: true, Type: event.Type, Ignored: true})
			return
		}
		// Transient failures return 5xx so the provider retries delivery.
		log.Error().Err(err).
			Str("event_id", event.ID).
			Str("event_type", event.Type).
			Msg("webhook.process_failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "webhook processing failed")
		return
	}

	if tenantID == "" {
		responders.JSON(w, http.StatusOK, webhookResponse{Received: true, Type: event.Type, Ignored: true})
		return
	}

	log.Info().
		Str("event_id", event.ID).
		Str("event_type", event.Type).
		Str("tenant_id", tenantID).
		Dur("duration", time.Since(start)).
		Msg("webhook.processed")

	responders.JSON(w, http.StatusOK, webhookResponse{Received: true, Type: event.Type})
}
