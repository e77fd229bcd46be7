package models

import (
	"time"

	"github.com/farhanpavel/cognit-api/pkg/geo"
)

// BloodGroups lists the ABO/Rh groups a request may be raised for.
var BloodGroups = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

// IsKnownBloodGroup reports whether name is one of BloodGroups.
func IsKnownBloodGroup(name string) bool {
	for _, g := range BloodGroups {
		if g == name {
			return true
		}
	}
	return false
}

// RequestState is derived from a DonationRequest's fields, never stored.
type RequestState string

const (
	RequestStateOpen               RequestState = "OPEN"
	RequestStatePartiallyFulfilled RequestState = "PARTIALLY_FULFILLED"
	RequestStateFulfilled          RequestState = "FULFILLED"
	RequestStateExpired            RequestState = "EXPIRED"
	RequestStateClosed             RequestState = "CLOSED"
)

// Live reports whether donors may still respond to a request in this state.
func (s RequestState) Live() bool {
	return s == RequestStateOpen || s == RequestStatePartiallyFulfilled
}

// DonationRequest is one patient's call for blood bags at a hospital.
type DonationRequest struct {
	ID                  string     `db:"id" json:"id"`
	PatientUserID       string     `db:"patient_user_id" json:"patientProfileId"`
	PatientName         string     `db:"patient_name" json:"patientName"`
	BloodGroupName      string     `db:"blood_group_name" json:"bloodGroupName"`
	BagsNeeded          int        `db:"bags_needed" json:"bagsNeeded"`
	BagsReceived        int        `db:"bags_received" json:"bagsReceived"`
	BloodNeededBeforeAt time.Time  `db:"blood_needed_before_at" json:"bloodNeededBeforeAt"`
	SessionEndAt        time.Time  `db:"session_end_at" json:"sessionEndAt"`
	HospitalName        string     `db:"hospital_name" json:"hospitalName"`
	HospitalAddress     string     `db:"hospital_address" json:"hospitalAddress"`
	HospitalLatitude    float64    `db:"hospital_latitude" json:"hospitalLatitude"`
	HospitalLongitude   float64    `db:"hospital_longitude" json:"hospitalLongitude"`
	CreatedAt           time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updatedAt"`
	ClosedAt            *time.Time `db:"closed_at" json:"closedAt,omitempty"`
}

// HospitalLocation returns the hospital coordinate.
func (r *DonationRequest) HospitalLocation() geo.Coordinate {
	return geo.Coordinate{Latitude: r.HospitalLatitude, Longitude: r.HospitalLongitude}
}

// State evaluates the lifecycle state at now. Closed wins over fulfilled,
// and fulfilled wins over expired so a deadline never masks a completed request.
func (r *DonationRequest) State(now time.Time) RequestState {
	switch {
	case r.ClosedAt != nil:
		return RequestStateClosed
	case r.BagsReceived >= r.BagsNeeded:
		return RequestStateFulfilled
	case now.After(r.SessionEndAt):
		return RequestStateExpired
	case r.BagsReceived > 0:
		return RequestStatePartiallyFulfilled
	default:
		return RequestStateOpen
	}
}

// RemainingBags is the number of bags still required.
func (r *DonationRequest) RemainingBags() int {
	if r.BagsReceived >= r.BagsNeeded {
		return 0
	}
	return r.BagsNeeded - r.BagsReceived
}

// Snapshot returns the broadcast view of the request.
func (r *DonationRequest) Snapshot() RequestSnapshot {
	return RequestSnapshot{
		RequestID:           r.ID,
		RequesterUserID:     r.PatientUserID,
		PatientName:         r.PatientName,
		BloodGroupName:      r.BloodGroupName,
		HospitalName:        r.HospitalName,
		HospitalAddress:     r.HospitalAddress,
		HospitalLocation:    r.HospitalLocation(),
		BagsNeeded:          r.BagsNeeded,
		BloodNeededBeforeAt: r.BloodNeededBeforeAt,
		SessionEndAt:        r.SessionEndAt,
	}
}

// RequestSnapshot is the payload fanned out on the broadcast channel.
type RequestSnapshot struct {
	RequestID           string         `json:"requestId"`
	RequesterUserID     string         `json:"requesterUserId"`
	PatientName         string         `json:"patientName,omitempty"`
	BloodGroupName      string         `json:"bloodGroupName"`
	HospitalName        string         `json:"hospitalName"`
	HospitalAddress     string         `json:"hospitalAddress"`
	HospitalLocation    geo.Coordinate `json:"hospitalLocation"`
	BagsNeeded          int            `json:"bagsNeeded"`
	BloodNeededBeforeAt time.Time      `json:"bloodNeededBeforeAt"`
	SessionEndAt        time.Time      `json:"sessionEndAt"`
}

// DonationRequestFilter constrains request listings.
type DonationRequestFilter struct {
	PatientUserID  string
	BloodGroupName string
	States         []RequestState
	Near           *geo.Coordinate
	RadiusKm       float64
	Now            time.Time
	Limit          int
	Offset         int
}

// DonorResponse is the tagged per-donor state of a DonorResponseRecord.
type DonorResponse string

const (
	DonorResponseAccepted  DonorResponse = "Accepted"
	DonorResponseReached   DonorResponse = "Reached"
	DonorResponseConfirmed DonorResponse = "Confirmed"
	DonorResponseRejected  DonorResponse = "Rejected"
	DonorResponseDismissed DonorResponse = "Dismissed"
)

// Terminal reports whether no patient transition can leave this state.
func (r DonorResponse) Terminal() bool {
	switch r {
	case DonorResponseConfirmed, DonorResponseRejected, DonorResponseDismissed:
		return true
	default:
		return false
	}
}

// Decided reports whether the patient has confirmed or rejected the donation.
func (r DonorResponse) Decided() bool {
	return r == DonorResponseConfirmed || r == DonorResponseRejected
}

// DonorResponseRecord is one donor's relationship to one request.
type DonorResponseRecord struct {
	ID                    string        `db:"id" json:"id"`
	RequestID             string        `db:"request_id" json:"requestId"`
	DonorID               string        `db:"donor_id" json:"donorId"`
	DonorResponse         DonorResponse `db:"donor_response" json:"donorResponse"`
	CanDonateBloodBagUpto int           `db:"can_donate_blood_bag_upto" json:"canDonateBloodBagUpto"`
	DonorReachedAt        *time.Time    `db:"donor_reached_at" json:"donorReachedAt,omitempty"`
	BloodBagDonated       int           `db:"blood_bag_donated" json:"bloodBagDonated"`
	CreatedAt             time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt             time.Time     `db:"updated_at" json:"updatedAt"`
}

// IsDismissed mirrors the legacy boolean flag.
func (r *DonorResponseRecord) IsDismissed() bool { return r.DonorResponse == DonorResponseDismissed }

// IsConfirmedByPatient mirrors the legacy boolean flag.
func (r *DonorResponseRecord) IsConfirmedByPatient() bool {
	return r.DonorResponse == DonorResponseConfirmed
}

// IsRejectedByPatient mirrors the legacy boolean flag.
func (r *DonorResponseRecord) IsRejectedByPatient() bool {
	return r.DonorResponse == DonorResponseRejected
}

// DonorResponseUpdate is an append-only audit entry for a record.
type DonorResponseUpdate struct {
	ID         string    `db:"id" json:"id"`
	RecordID   string    `db:"record_id" json:"recordId"`
	StatusName string    `db:"status_name" json:"statusName"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// Audit status labels.
const (
	StatusNameAccepted   = "Accepted"
	StatusNameReaccepted = "Re-accepted"
	StatusNameUpdated    = "Ceiling updated"
	StatusNameReached    = "Reached hospital"
	StatusNameConfirmed  = "Confirmed by patient"
	StatusNameRejected   = "Rejected by patient"
	StatusNameDismissed  = "Dismissed by patient"
)

// DonorProfile is the externally owned view of a donor used for eligibility.
type DonorProfile struct {
	UserID          string         `json:"userId"`
	BloodGroupName  string         `json:"bloodGroupName"`
	CurrentLocation geo.Coordinate `json:"currentLocation"`
	IsVerified      bool           `json:"isVerified"`
}

// AuditEntry is a DonorResponseUpdate joined with its record's donor.
type AuditEntry struct {
	UpdateID   string    `db:"update_id" json:"updateId"`
	RecordID   string    `db:"record_id" json:"recordId"`
	DonorID    string    `db:"donor_id" json:"donorId"`
	StatusName string    `db:"status_name" json:"statusName"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
