package subscription

// FallbackStatus is the status assigned when the billing provider reports a
// vocabulary we do not recognize. Failing open to active is a deliberate
// policy: an unrecognized-but-benign provider status must not lock out a
// paying tenant. Callers should log the fallback (the second return value
// of MapProviderStatus is false) so new provider statuses get noticed.
const FallbackStatus = StatusActive

// providerStatusTable translates the billing provider's status vocabulary
// into ours. Total over the provider statuses we have seen in the wild.
var providerStatusTable = map[string]Status{
	"active":             StatusActive,
	"canceled":           StatusCancelled,
	"cancelled":          StatusCancelled,
	"past_due":           StatusPastDue,
	"unpaid":             StatusUnpaid,
	"trialing":           StatusTrial,
	"incomplete":         StatusPending,
	"incomplete_expired": StatusExpired,
}

// MapProviderStatus converts a provider status string to the internal
// vocabulary. The boolean is false when the status was unrecognized and
// FallbackStatus was applied.
func MapProviderStatus(providerStatus string) (Status, bool) {
	if s, ok := providerStatusTable[providerStatus]; ok {
		return s, true
	}
	return FallbackStatus, false
}
