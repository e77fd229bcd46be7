package memstore

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farhanpavel/cognit-api/internal/models"
	"github.com/farhanpavel/cognit-api/internal/repository"
	"github.com/farhanpavel/cognit-api/pkg/geo"
)

func seedRequest(t *testing.T, s *Store, needed int, sessionEnd time.Time) *models.DonationRequest {
	t.Helper()
	req := &models.DonationRequest{
		PatientUserID:     "patient-1",
		BloodGroupName:    "O+",
		BagsNeeded:        needed,
		SessionEndAt:      sessionEnd,
		HospitalName:      "Dhaka Medical",
		HospitalLatitude:  23.7256,
		HospitalLongitude: 90.3973,
	}
	require.NoError(t, s.CreateRequest(context.Background(), req))
	return req
}

func TestStoreGetMissingReturnsNoRows(t *testing.T) {
	s := New()
	_, err := s.GetRequest(context.Background(), "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	_, err = s.GetResponse(context.Background(), "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	_, err = s.GetResponseByDonor(context.Background(), "nope", "donor")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestStoreReturnsCopies(t *testing.T) {
	s := New()
	req := seedRequest(t, s, 2, time.Now().Add(time.Hour))

	got, err := s.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	got.BagsReceived = 99

	again, err := s.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Zero(t, again.BagsReceived)
}

func TestStoreIncrementClampsConcurrently(t *testing.T) {
	s := New()
	req := seedRequest(t, s, 5, time.Now().Add(time.Hour))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.IncrementBagsReceived(context.Background(), req.ID, 1, time.Now())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.BagsReceived)
}

func TestStoreAcceptLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	req := seedRequest(t, s, 2, now.Add(time.Hour))

	rec, err := s.AcceptDonation(ctx, repository.AcceptParams{RequestID: req.ID, DonorID: "donor-1", Ceiling: 1, StatusName: models.StatusNameAccepted, At: now})
	require.NoError(t, err)
	assert.Equal(t, models.DonorResponseAccepted, rec.DonorResponse)

	rec, err = s.AcceptDonation(ctx, repository.AcceptParams{RequestID: req.ID, DonorID: "donor-1", Ceiling: 2, StatusName: models.StatusNameUpdated, At: now})
	require.NoError(t, err)
	assert.Equal(t, 2, rec.CanDonateBloodBagUpto)

	_, err = s.TransitionResponse(ctx, repository.TransitionParams{
		RecordID: rec.ID, From: []models.DonorResponse{models.DonorResponseAccepted, models.DonorResponseReached},
		To: models.DonorResponseDismissed, StatusName: models.StatusNameDismissed, At: now,
	})
	require.NoError(t, err)

	rec, err = s.AcceptDonation(ctx, repository.AcceptParams{RequestID: req.ID, DonorID: "donor-1", Ceiling: 2, StatusName: models.StatusNameReaccepted, At: now})
	require.NoError(t, err)
	assert.Equal(t, models.DonorResponseAccepted, rec.DonorResponse)

	records, err := s.ListResponses(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	audit, err := s.ListAudit(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, audit, 4)
	assert.Equal(t, models.StatusNameReaccepted, audit[3].StatusName)
	assert.Equal(t, "donor-1", audit[3].DonorID)
}

func TestStoreAcceptRejectsDecidedRecord(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	req := seedRequest(t, s, 3, now.Add(time.Hour))

	rec, err := s.AcceptDonation(ctx, repository.AcceptParams{RequestID: req.ID, DonorID: "donor-1", Ceiling: 1, At: now})
	require.NoError(t, err)
	_, err = s.ConfirmDonation(ctx, repository.ConfirmParams{RecordID: rec.ID, Donated: 1, At: now})
	require.NoError(t, err)

	_, err = s.AcceptDonation(ctx, repository.AcceptParams{RequestID: req.ID, DonorID: "donor-1", Ceiling: 1, At: now})
	assert.ErrorIs(t, err, repository.ErrStaleState)
}

func TestStoreAcceptRejectsExpiredRequest(t *testing.T) {
	s := New()
	now := time.Now()
	req := seedRequest(t, s, 2, now.Add(-time.Second))

	_, err := s.AcceptDonation(context.Background(), repository.AcceptParams{RequestID: req.ID, DonorID: "donor-1", At: now})
	assert.ErrorIs(t, err, repository.ErrRequestNotLive)
}

func TestStoreConfirmClampsToRemaining(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	req := seedRequest(t, s, 2, now.Add(time.Hour))

	first, err := s.AcceptDonation(ctx, repository.AcceptParams{RequestID: req.ID, DonorID: "donor-1", Ceiling: 1, At: now})
	require.NoError(t, err)
	second, err := s.AcceptDonation(ctx, repository.AcceptParams{RequestID: req.ID, DonorID: "donor-2", Ceiling: 3, At: now})
	require.NoError(t, err)

	res, err := s.ConfirmDonation(ctx, repository.ConfirmParams{RecordID: first.ID, Donated: 1, At: now})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)

	res, err = s.ConfirmDonation(ctx, repository.ConfirmParams{RecordID: second.ID, Donated: 3, At: now})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 2, res.Request.BagsReceived)
	assert.Equal(t, 3, res.Record.BloodBagDonated)
	assert.Equal(t, models.RequestStateFulfilled, res.Request.State(now))

	_, err = s.ConfirmDonation(ctx, repository.ConfirmParams{RecordID: second.ID, Donated: 3, At: now})
	assert.ErrorIs(t, err, repository.ErrStaleState)
}

func TestStoreConfirmRejectsFulfilledRequest(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	req := seedRequest(t, s, 1, now.Add(time.Hour))

	first, err := s.AcceptDonation(ctx, repository.AcceptParams{RequestID: req.ID, DonorID: "donor-1", Ceiling: 1, At: now})
	require.NoError(t, err)
	late, err := s.AcceptDonation(ctx, repository.AcceptParams{RequestID: req.ID, DonorID: "donor-2", Ceiling: 1, At: now})
	require.NoError(t, err)
	_, err = s.ConfirmDonation(ctx, repository.ConfirmParams{RecordID: first.ID, Donated: 1, At: now})
	require.NoError(t, err)

	_, err = s.ConfirmDonation(ctx, repository.ConfirmParams{RecordID: late.ID, Donated: 1, At: now})
	assert.ErrorIs(t, err, repository.ErrRequestNotLive)

	rec, err := s.GetResponse(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DonorResponseAccepted, rec.DonorResponse)
	got, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.BagsReceived)
}

func TestStoreExtendAndClose(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	req := seedRequest(t, s, 2, now.Add(-time.Minute))

	extended, err := s.ExtendSession(ctx, req.ID, now.Add(time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStateOpen, extended.State(now))

	closed, err := s.CloseRequest(ctx, req.ID, now)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStateClosed, closed.State(now))

	_, err = s.CloseRequest(ctx, req.ID, now)
	assert.ErrorIs(t, err, repository.ErrStaleState)
	_, err = s.ExtendSession(ctx, req.ID, now.Add(2*time.Hour), now)
	assert.ErrorIs(t, err, repository.ErrStaleState)
}

func TestStoreListFilters(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	near := seedRequest(t, s, 2, now.Add(time.Hour))
	far := &models.DonationRequest{
		PatientUserID: "patient-2", BloodGroupName: "O+", BagsNeeded: 1, SessionEndAt: now.Add(time.Hour),
		HospitalName: "Chittagong Medical", HospitalLatitude: 22.3592, HospitalLongitude: 91.8317,
		CreatedAt: now.Add(time.Minute),
	}
	require.NoError(t, s.CreateRequest(ctx, far))
	expired := seedRequest(t, s, 1, now.Add(-time.Hour))

	center := geo.Coordinate{Latitude: 23.73, Longitude: 90.40}
	list, err := s.ListRequests(ctx, models.DonationRequestFilter{Near: &center, RadiusKm: 30, Now: now})
	require.NoError(t, err)
	ids := []string{}
	for _, r := range list {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{near.ID, expired.ID}, ids)

	list, err = s.ListRequests(ctx, models.DonationRequestFilter{States: []models.RequestState{models.RequestStateExpired}, Now: now})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, expired.ID, list[0].ID)

	list, err = s.ListRequests(ctx, models.DonationRequestFilter{Limit: 1, Now: now})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, far.ID, list[0].ID)

	list, err = s.ListRequests(ctx, models.DonationRequestFilter{Offset: 10, Now: now})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStoreListNearAcrossAntimeridian(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	taveuni := &models.DonationRequest{
		PatientUserID: "patient-3", BloodGroupName: "B+", BagsNeeded: 1, SessionEndAt: now.Add(time.Hour),
		HospitalName: "Taveuni Hospital", HospitalLatitude: -16.9, HospitalLongitude: -179.95,
	}
	require.NoError(t, s.CreateRequest(ctx, taveuni))
	seedRequest(t, s, 1, now.Add(time.Hour))

	donor := geo.Coordinate{Latitude: -16.9, Longitude: 179.95}
	list, err := s.ListRequests(ctx, models.DonationRequestFilter{Near: &donor, RadiusKm: 30, Now: now})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, taveuni.ID, list[0].ID)
}
