package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDonationRequestState(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	closed := now.Add(-time.Minute)

	cases := []struct {
		name string
		req  DonationRequest
		want RequestState
	}{
		{"open", DonationRequest{BagsNeeded: 2, SessionEndAt: now.Add(time.Hour)}, RequestStateOpen},
		{"partial", DonationRequest{BagsNeeded: 2, BagsReceived: 1, SessionEndAt: now.Add(time.Hour)}, RequestStatePartiallyFulfilled},
		{"fulfilled", DonationRequest{BagsNeeded: 2, BagsReceived: 2, SessionEndAt: now.Add(time.Hour)}, RequestStateFulfilled},
		{"expired", DonationRequest{BagsNeeded: 2, BagsReceived: 1, SessionEndAt: now.Add(-time.Second)}, RequestStateExpired},
		{"fulfilled beats expired", DonationRequest{BagsNeeded: 1, BagsReceived: 1, SessionEndAt: now.Add(-time.Hour)}, RequestStateFulfilled},
		{"closed beats all", DonationRequest{BagsNeeded: 1, BagsReceived: 1, SessionEndAt: now.Add(-time.Hour), ClosedAt: &closed}, RequestStateClosed},
		{"deadline instant is still open", DonationRequest{BagsNeeded: 1, SessionEndAt: now}, RequestStateOpen},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.req.State(now))
		})
	}
}

func TestDonorResponseTerminal(t *testing.T) {
	assert.False(t, DonorResponseAccepted.Terminal())
	assert.False(t, DonorResponseReached.Terminal())
	assert.True(t, DonorResponseConfirmed.Terminal())
	assert.True(t, DonorResponseRejected.Terminal())
	assert.True(t, DonorResponseDismissed.Terminal())

	rec := DonorResponseRecord{DonorResponse: DonorResponseRejected}
	assert.True(t, rec.IsRejectedByPatient())
	assert.False(t, rec.IsConfirmedByPatient())
	assert.False(t, rec.IsDismissed())
}

func TestSnapshotCarriesHospitalLocation(t *testing.T) {
	req := DonationRequest{ID: "req-1", PatientUserID: "u-1", BloodGroupName: "O+", HospitalLatitude: 23.7, HospitalLongitude: 90.4, BagsNeeded: 3}
	snap := req.Snapshot()
	assert.Equal(t, "req-1", snap.RequestID)
	assert.Equal(t, "u-1", snap.RequesterUserID)
	assert.Equal(t, 23.7, snap.HospitalLocation.Latitude)
	assert.Equal(t, 3, snap.BagsNeeded)
	assert.True(t, IsKnownBloodGroup("AB-"))
	assert.False(t, IsKnownBloodGroup("C+"))
}
