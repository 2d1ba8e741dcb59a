package billing

import (
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v72/webhook"
)

const testSecret = "whsec_test_secret"

// signedHeader builds a valid Stripe-Signature header for a payload.
func signedHeader(t *testing.T, payload []byte) string {
	t.Helper()
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, testSecret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func TestParseSubscriptionUpdated(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1",
		"type": "customer.subscription.updated",
		"data": {
			"object": {
				"id": "sub_123",
				"object": "subscription",
				"customer": {"id": "cus_9"},
				"metadata": {"tenant_id": "tenant-1"}
			}
		}
	}`)

	parser := NewWebhookParser(testSecret)
	event, err := parser.Parse(payload, signedHeader(t, payload))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if event.Type != EventSubscriptionUpdated {
		t.Errorf("type = %q", event.Type)
	}
	if event.SubscriptionID != "sub_123" || event.CustomerID != "cus_9" || event.TenantID != "tenant-1" {
		t.Errorf("event = %+v", event)
	}
	if !event.Relevant() {
		t.Error("subscription update should be relevant")
	}
}

func TestParseInvoicePaid(t *testing.T) {
	payload := []byte(`{
		"id": "evt_2",
		"type": "invoice.paid",
		"data": {
			"object": {
				"id": "in_1",
				"object": "invoice",
				"subscription": {"id": "sub_123"},
				"customer": {"id": "cus_9"}
			}
		}
	}`)

	parser := NewWebhookParser(testSecret)
	event, err := parser.Parse(payload, signedHeader(t, payload))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if event.SubscriptionID != "sub_123" {
		t.Errorf("subscription id = %q", event.SubscriptionID)
	}
}

func TestParseIgnoresUnknownTypes(t *testing.T) {
	payload := []byte(`{
		"id": "evt_3",
		"type": "charge.refunded",
		"data": {"object": {"id": "ch_1"}}
	}`)

	parser := NewWebhookParser(testSecret)
	event, err := parser.Parse(payload, signedHeader(t, payload))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if event.Relevant() {
		t.Error("charge.refunded should not be relevant")
	}
}

func TestParseRejectsBadSignature(t *testing.T) {
	payload := []byte(`{"id": "evt_4", "type": "invoice.paid", "data": {"object": {}}}`)

	parser := NewWebhookParser(testSecret)
	if _, err := parser.Parse(payload, "t=1,v1=deadbeef"); err == nil {
		t.Error("Parse() with a bad signature should fail")
	}
}

func TestParseRequiresSecret(t *testing.T) {
	parser := NewWebhookParser("")
	if _, err := parser.Parse([]byte("{}"), "sig"); err == nil {
		t.Error("Parse() without a secret should fail")
	}
}
