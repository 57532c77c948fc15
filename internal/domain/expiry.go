package domain

import "time"

// IsExpired reports whether now is past the donation's safety window.
func IsExpired(d Donation, now time.Time) bool {
	return now.After(d.SafeUntil)
}

// LogicallyExpired reports whether the donation must be treated as expired
// even if the stored status has not caught up yet.
func LogicallyExpired(d Donation, now time.Time) bool {
	switch d.Status {
	case StatusExpired:
		return true
	case StatusOpen, StatusClaimed:
		return IsExpired(d, now)
	default:
		return false
	}
}

// EffectiveStatus is the status readers should see at the given instant.
func (d Donation) EffectiveStatus(now time.Time) Status {
	if LogicallyExpired(d, now) {
		return StatusExpired
	}
	return d.Status
}

// Claimable reports whether a nonprofit could claim the donation at now.
func (d Donation) Claimable(now time.Time) bool {
	return d.Status == StatusOpen && !IsExpired(d, now)
}
