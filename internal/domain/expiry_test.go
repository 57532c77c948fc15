package domain_test

import (
	"testing"
	"time"

	"github.com/neomorfeo/foodflow/internal/domain"
)

func TestIsExpired(t *testing.T) {
	safeUntil := time.Date(2024, 1, 15, 20, 0, 0, 0, time.UTC)
	d := domain.Donation{SafeUntil: safeUntil}

	if domain.IsExpired(d, safeUntil.Add(-time.Second)) {
		t.Error("should not be expired before safe_until")
	}
	if domain.IsExpired(d, safeUntil) {
		t.Error("should not be expired exactly at safe_until")
	}
	if !domain.IsExpired(d, safeUntil.Add(time.Nanosecond)) {
		t.Error("should be expired after safe_until")
	}
}

func TestEffectiveStatus_LazyExpiry(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Second)

	cases := []struct {
		status domain.Status
		want   domain.Status
	}{
		{domain.StatusOpen, domain.StatusExpired},
		{domain.StatusClaimed, domain.StatusExpired},
		{domain.StatusAssigned, domain.StatusAssigned},
		{domain.StatusDelivered, domain.StatusDelivered},
		{domain.StatusExpired, domain.StatusExpired},
	}

	for _, tc := range cases {
		d := domain.Donation{Status: tc.status, SafeUntil: past}
		if got := d.EffectiveStatus(now); got != tc.want {
			t.Errorf("EffectiveStatus(%q) = %q, want %q", tc.status, got, tc.want)
		}
	}
}

func TestClaimable(t *testing.T) {
	now := time.Now().UTC()

	open := domain.Donation{Status: domain.StatusOpen, SafeUntil: now.Add(time.Hour)}
	if !open.Claimable(now) {
		t.Error("open donation within window should be claimable")
	}

	stale := domain.Donation{Status: domain.StatusOpen, SafeUntil: now.Add(-time.Second)}
	if stale.Claimable(now) {
		t.Error("open donation past safe_until should not be claimable")
	}

	claimed := domain.Donation{Status: domain.StatusClaimed, SafeUntil: now.Add(time.Hour)}
	if claimed.Claimable(now) {
		t.Error("claimed donation should not be claimable")
	}
}
