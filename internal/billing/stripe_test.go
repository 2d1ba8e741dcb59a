package billing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	stripeapi "github.com/stripe/stripe-go/v72"

	"github.com/tidybook/subsync/internal/config"
)

// pointStripeAt routes all stripe-go API calls to a local test server.
func pointStripeAt(t *testing.T, url string) {
	t.Helper()
	stripeapi.SetBackend(stripeapi.APIBackend, stripeapi.GetBackendWithConfig(stripeapi.APIBackend, &stripeapi.BackendConfig{
		URL:           stripeapi.String(url),
		LeveledLogger: &stripeapi.LeveledLogger{Level: stripeapi.LevelNull},
	}))
}

func TestStripeCallsHonorContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))
	defer srv.Close()
	pointStripeAt(t, srv.URL)

	client := NewStripeClient(config.BillingConfig{SecretKey: "sk_test_x"}, nil)

	// A live context reaches the API.
	if _, err := client.FetchSubscription(context.Background(), "sub_1"); err != nil {
		t.Fatalf("FetchSubscription: %v", err)
	}

	// A dead context must abort every provider call instead of letting the
	// request run to the transport's own timeout.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.FetchSubscription(ctx, "sub_1"); !errors.Is(err, context.Canceled) {
		t.Errorf("FetchSubscription err = %v, want context.Canceled", err)
	}
	if _, err := client.FetchPrice(ctx, "price_1"); !errors.Is(err, context.Canceled) {
		t.Errorf("FetchPrice err = %v, want context.Canceled", err)
	}
	if _, err := client.CreateCustomer(ctx, "t1", "owner@acme.test"); !errors.Is(err, context.Canceled) {
		t.Errorf("CreateCustomer err = %v, want context.Canceled", err)
	}
	if err := client.CancelSubscription(ctx, "sub_1", true); !errors.Is(err, context.Canceled) {
		t.Errorf("CancelSubscription(atPeriodEnd) err = %v, want context.Canceled", err)
	}
	if err := client.CancelSubscription(ctx, "sub_1", false); !errors.Is(err, context.Canceled) {
		t.Errorf("CancelSubscription err = %v, want context.Canceled", err)
	}
}
