package eligibility

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/farhanpavel/cognit-api/internal/models"
	"github.com/farhanpavel/cognit-api/pkg/geo"
)

var hospital = geo.Coordinate{Latitude: 23.7806, Longitude: 90.2794}

func snapshot() models.RequestSnapshot {
	return models.RequestSnapshot{
		RequestID:        "req-1",
		RequesterUserID:  "patient-1",
		BloodGroupName:   "O+",
		HospitalLocation: hospital,
		BagsNeeded:       2,
	}
}

func donorAt(userID, group string, distanceKm float64) models.DonorProfile {
	return models.DonorProfile{
		UserID:          userID,
		BloodGroupName:  group,
		CurrentLocation: geo.Offset(hospital, distanceKm, 90),
	}
}

func TestFilterAcceptsNearbyCompatibleDonor(t *testing.T) {
	f := NewFilter(0)
	d := f.Evaluate(snapshot(), donorAt("donor-1", "O+", 5))
	assert.True(t, d.Eligible)
	assert.Equal(t, ReasonEligible, d.Reason)
	assert.InDelta(t, 5, d.DistanceKm, 1e-6)
	assert.Equal(t, DefaultProximityLimitKm, f.ProximityLimitKm())
}

func TestFilterRejectsBloodGroupMismatch(t *testing.T) {
	d := NewFilter(30).Evaluate(snapshot(), donorAt("donor-1", "A+", 1))
	assert.False(t, d.Eligible)
	assert.Equal(t, ReasonBloodGroupMismatch, d.Reason)
}

func TestFilterNeverNotifiesRequester(t *testing.T) {
	f := NewFilter(30)
	self := donorAt("patient-1", "O+", 0)
	assert.False(t, f.IsEligible(snapshot(), self))
	assert.Equal(t, ReasonOwnRequest, f.Evaluate(snapshot(), self).Reason)
}

func TestFilterDistanceBoundary(t *testing.T) {
	const eps = 1e-3
	f := NewFilter(DefaultProximityLimitKm)
	assert.True(t, f.IsEligible(snapshot(), donorAt("donor-1", "O+", DefaultProximityLimitKm-eps)))
	assert.False(t, f.IsEligible(snapshot(), donorAt("donor-1", "O+", DefaultProximityLimitKm+eps)))
}

func TestFilterRejectsInvalidLocation(t *testing.T) {
	self := models.DonorProfile{UserID: "donor-1", BloodGroupName: "O+", CurrentLocation: geo.Coordinate{Latitude: 120}}
	d := NewFilter(30).Evaluate(snapshot(), self)
	assert.False(t, d.Eligible)
	assert.Equal(t, ReasonInvalidLocation, d.Reason)
}
