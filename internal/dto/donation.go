package dto

import (
	"time"

	"github.com/farhanpavel/cognit-api/internal/models"
	"github.com/farhanpavel/cognit-api/pkg/geo"
)

// CreateDonationRequest is the payload a patient submits to ask for blood.
type CreateDonationRequest struct {
	PatientName         string         `json:"patientName" validate:"omitempty,max=120"`
	BloodGroupName      string         `json:"bloodGroupName" validate:"required,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	BagsNeeded          int            `json:"bagsNeeded" validate:"required,min=1,max=20"`
	BloodNeededBeforeAt time.Time      `json:"bloodNeededBeforeAt" validate:"required"`
	SessionEndAt        *time.Time     `json:"sessionEndAt"`
	HospitalName        string         `json:"hospitalName" validate:"required,max=200"`
	HospitalAddress     string         `json:"hospitalAddress" validate:"omitempty,max=500"`
	HospitalLocation    geo.Coordinate `json:"hospitalLocation"`
}

// AcceptDonationRequest is a donor's acceptance of a request.
type AcceptDonationRequest struct {
	CanDonateBloodBagUpto int `json:"canDonateBloodBagUpto" validate:"min=0,max=20"`
}

// ConfirmDonationRequest is the patient's verdict on a donor's donation.
type ConfirmDonationRequest struct {
	DonatedBags int   `json:"donatedBags" validate:"min=0,max=20"`
	Confirm     *bool `json:"confirm" validate:"required"`
}

// ExtendSessionRequest moves the response deadline of a request.
type ExtendSessionRequest struct {
	SessionEndAt time.Time `json:"sessionEndAt" validate:"required"`
}

// DonationRequestQuery mirrors supported listing filters.
type DonationRequestQuery struct {
	PatientUserID  string
	BloodGroupName string
	States         []models.RequestState
	Near           *geo.Coordinate
	RadiusKm       float64
	Limit          int
	Offset         int
}

// DonationRequestView is a request as returned by the API.
type DonationRequestView struct {
	models.DonationRequest
	HospitalLocation geo.Coordinate      `json:"hospitalLocation"`
	State            models.RequestState `json:"state"`
	RemainingBags    int                 `json:"remainingBags"`
	DistanceKm       *float64            `json:"distanceKm,omitempty"`
}

// DonorResponseView is a record with its legacy boolean flags.
type DonorResponseView struct {
	models.DonorResponseRecord
	IsDismissed          bool `json:"isDismissed"`
	IsConfirmedByPatient bool `json:"isConfirmedByPatient"`
	IsRejectedByPatient  bool `json:"isRejectedByPatient"`
}

// ConfirmDonationResult reports the outcome of a confirmation.
type ConfirmDonationResult struct {
	Record  DonorResponseView   `json:"record"`
	Request DonationRequestView `json:"request"`
	// BagsApplied is clamped to the remaining need and is zero on replay.
	BagsApplied int  `json:"bagsApplied"`
	Replayed    bool `json:"replayed"`
}

// NewDonationRequestView derives the API view of req at now.
func NewDonationRequestView(req *models.DonationRequest, now time.Time) DonationRequestView {
	return DonationRequestView{
		DonationRequest:  *req,
		HospitalLocation: req.HospitalLocation(),
		State:            req.State(now),
		RemainingBags:    req.RemainingBags(),
	}
}

// NewDonorResponseView derives the API view of rec.
func NewDonorResponseView(rec *models.DonorResponseRecord) DonorResponseView {
	return DonorResponseView{
		DonorResponseRecord:  *rec,
		IsDismissed:          rec.IsDismissed(),
		IsConfirmedByPatient: rec.IsConfirmedByPatient(),
		IsRejectedByPatient:  rec.IsRejectedByPatient(),
	}
}
