// Package eligibility decides whether a donor device should surface a broadcast request.
package eligibility

import (
	"github.com/farhanpavel/cognit-api/internal/models"
	"github.com/farhanpavel/cognit-api/pkg/geo"
)

// DefaultProximityLimitKm is the default notification radius around the hospital.
const DefaultProximityLimitKm = 30.0

// Reason explains the outcome of an evaluation.
type Reason string

const (
	ReasonEligible           Reason = "eligible"
	ReasonBloodGroupMismatch Reason = "blood_group_mismatch"
	ReasonOwnRequest         Reason = "own_request"
	ReasonInvalidLocation    Reason = "invalid_location"
	ReasonOutOfRange         Reason = "out_of_range"
)

// Decision is the detailed result of Evaluate.
type Decision struct {
	Eligible   bool
	Reason     Reason
	DistanceKm float64
}

// Filter is a stateless predicate over a request snapshot and a donor profile.
type Filter struct {
	proximityLimitKm float64
}

// NewFilter builds a filter; a non-positive limit falls back to DefaultProximityLimitKm.
func NewFilter(proximityLimitKm float64) *Filter {
	if proximityLimitKm <= 0 {
		proximityLimitKm = DefaultProximityLimitKm
	}
	return &Filter{proximityLimitKm: proximityLimitKm}
}

// ProximityLimitKm returns the configured radius.
func (f *Filter) ProximityLimitKm() float64 {
	return f.proximityLimitKm
}

// IsEligible reports whether self should be notified about snapshot.
func (f *Filter) IsEligible(snapshot models.RequestSnapshot, self models.DonorProfile) bool {
	return f.Evaluate(snapshot, self).Eligible
}

// Evaluate applies the rules in order, stopping at the first rejection.
func (f *Filter) Evaluate(snapshot models.RequestSnapshot, self models.DonorProfile) Decision {
	if snapshot.BloodGroupName != self.BloodGroupName {
		return Decision{Reason: ReasonBloodGroupMismatch}
	}
	if snapshot.RequesterUserID == self.UserID {
		return Decision{Reason: ReasonOwnRequest}
	}
	if !snapshot.HospitalLocation.Valid() || !self.CurrentLocation.Valid() {
		return Decision{Reason: ReasonInvalidLocation}
	}
	d := geo.DistanceKm(snapshot.HospitalLocation, self.CurrentLocation)
	if d > f.proximityLimitKm {
		return Decision{Reason: ReasonOutOfRange, DistanceKm: d}
	}
	return Decision{Eligible: true, Reason: ReasonEligible, DistanceKm: d}
}
