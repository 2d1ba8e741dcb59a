package subscription

import (
	"time"
)

// GracePeriod is the fixed window after a paid period ends during which
// access is still granted, absorbing billing-provider processing delay.
const GracePeriod = 48 * time.Hour

// EffectiveStatus derives the access status of a record at the given time,
// applying trial-expiry and grace-period decay to the stored status. It is
// pure: callers that observe a decayed status are responsible for writing it
// back (see store.Repository.MarkStatus) so later reads converge.
func EffectiveStatus(r Record, now time.Time) Status {
	if r.Status == StatusTrial && r.TrialEndsAt != nil && now.After(*r.TrialEndsAt) {
		return StatusExpiredTrial
	}

	if (r.Status == StatusActive || r.Status == StatusCancelled) && r.EndsAt != nil {
		graceDeadline := r.EndsAt.Add(GracePeriod)
		if now.After(graceDeadline) {
			return StatusExpired
		}
		// Cancelled tenants keep access through the period they already
		// paid for, even though auto-renew is off.
		if r.Status == StatusCancelled && !now.After(*r.EndsAt) {
			return StatusActive
		}
	}

	return r.Status
}

// Decayed reports whether the effective status differs from the stored one
// because of time-based expiry (as opposed to the cancelled-but-paid case,
// which is a read-time view and must not be written back).
func Decayed(stored, effective Status) bool {
	return effective != stored &&
		(effective == StatusExpired || effective == StatusExpiredTrial)
}

// RenewalDue reports whether an active record enters the renewal window:
// its paid period ends within the given lead time. Used to emit
// renewal-reminder lifecycle events from the background scheduler.
func RenewalDue(r Record, now time.Time, lead time.Duration) bool {
	if r.Status != StatusActive || r.EndsAt == nil {
		return false
	}
	return now.Before(*r.EndsAt) && !now.Add(lead).Before(*r.EndsAt)
}
