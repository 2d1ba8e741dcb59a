package httpserver

import (
	"net/http"
	"time"

	"github.com/tidybook/subsync/pkg/responders"
)

// health returns process liveness. Kept deliberately cheap: no store or
// provider round trips, so load balancers can poll it aggressively. The
// deeper operational report lives at /subsync/v1/health.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	uptime := now.Sub(serverStartTime)

	response := map[string]any{
		"status":    "ok",
		"uptime":    uptime.String(),
		"timestamp": now.UTC(),
	}

	// Include route prefix for frontend discovery
	if h.cfg.Server.RoutePrefix != "" {
		response["routePrefix"] = h.cfg.Server.RoutePrefix
	}

	response["store"] = h.cfg.Store.Backend
	response["cache"] = h.cfg.Cache.Backend

	features := []string{}
	if h.cfg.Billing.SecretKey != "" {
		features = append(features, "billing-sync")
	}
	if h.cfg.Billing.WebhookSecret != "" {
		features = append(features, "webhooks")
	}
	if h.scheduler != nil {
		features = append(features, "background-sync")
	}
	if len(features) > 0 {
		response["features"] = features
	}

	responders.JSON(w, http.StatusOK, response)
}
