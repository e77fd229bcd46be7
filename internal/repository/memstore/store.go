// Package memstore provides an in-process Request Store with the same
// semantics as the PostgreSQL repositories. It backs STORE_DRIVER=memory and
// the service tests.
package memstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/farhanpavel/cognit-api/internal/models"
	"github.com/farhanpavel/cognit-api/internal/repository"
	"github.com/farhanpavel/cognit-api/pkg/geo"
)

// Store keeps requests, donor records and audit entries in memory. A single
// mutex guards all maps, so every method is atomic with respect to the others.
type Store struct {
	mu       sync.Mutex
	requests map[string]*models.DonationRequest
	records  map[string]*models.DonorResponseRecord
	byDonor  map[string]string
	updates  []models.DonorResponseUpdate
}

// New creates an empty store.
func New() *Store {
	return &Store{
		requests: make(map[string]*models.DonationRequest),
		records:  make(map[string]*models.DonorResponseRecord),
		byDonor:  make(map[string]string),
	}
}

func donorKey(requestID, donorID string) string { return requestID + "|" + donorID }

// CreateRequest stores a copy of req, assigning an ID when empty.
func (s *Store) CreateRequest(_ context.Context, req *models.DonationRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.ID]; exists {
		return fmt.Errorf("create donation request: duplicate id %s", req.ID)
	}
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

// GetRequest returns a copy of the request or sql.ErrNoRows.
func (s *Store) GetRequest(_ context.Context, id string) (*models.DonationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *req
	return &cp, nil
}

// ListRequests returns requests matching the filter, newest first.
func (s *Store) ListRequests(_ context.Context, filter models.DonationRequestFilter) ([]models.DonationRequest, error) {
	now := filter.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	var box geo.Box
	near := filter.Near != nil && filter.RadiusKm > 0
	if near {
		box = geo.BoundingBox(*filter.Near, filter.RadiusKm)
	}

	s.mu.Lock()
	matched := make([]models.DonationRequest, 0, len(s.requests))
	for _, req := range s.requests {
		if filter.PatientUserID != "" && req.PatientUserID != filter.PatientUserID {
			continue
		}
		if filter.BloodGroupName != "" && req.BloodGroupName != filter.BloodGroupName {
			continue
		}
		if near && !box.Contains(req.HospitalLocation()) {
			continue
		}
		if len(filter.States) > 0 && !containsState(filter.States, req.State(now)) {
			continue
		}
		matched = append(matched, *req)
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []models.DonationRequest{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

// ExtendSession moves the session end of an unfinished request to a later instant.
func (s *Store) ExtendSession(_ context.Context, id string, sessionEndAt, at time.Time) (*models.DonationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok || req.ClosedAt != nil || req.BagsReceived >= req.BagsNeeded || !sessionEndAt.After(req.SessionEndAt) {
		return nil, repository.ErrStaleState
	}
	req.SessionEndAt = sessionEndAt
	req.UpdatedAt = at
	cp := *req
	return &cp, nil
}

// CloseRequest marks a request closed.
func (s *Store) CloseRequest(_ context.Context, id string, at time.Time) (*models.DonationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok || req.ClosedAt != nil {
		return nil, repository.ErrStaleState
	}
	closedAt := at
	req.ClosedAt = &closedAt
	req.UpdatedAt = at
	cp := *req
	return &cp, nil
}

// IncrementBagsReceived credits up to delta bags, clamped at BagsNeeded.
func (s *Store) IncrementBagsReceived(_ context.Context, id string, delta int, at time.Time) (int, *models.DonationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return 0, nil, sql.ErrNoRows
	}
	applied := s.incrementLocked(req, delta, at)
	cp := *req
	return applied, &cp, nil
}

func (s *Store) incrementLocked(req *models.DonationRequest, delta int, at time.Time) int {
	applied := repository.ClampIncrement(req.BagsNeeded, req.BagsReceived, delta)
	if applied > 0 {
		req.BagsReceived += applied
		req.UpdatedAt = at
	}
	return applied
}

// GetResponse returns a copy of the record or sql.ErrNoRows.
func (s *Store) GetResponse(_ context.Context, id string) (*models.DonorResponseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *rec
	return &cp, nil
}

// GetResponseByDonor returns the record linking donorID to requestID.
func (s *Store) GetResponseByDonor(_ context.Context, requestID, donorID string) (*models.DonorResponseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byDonor[donorKey(requestID, donorID)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *s.records[id]
	return &cp, nil
}

// ListResponses returns all records for a request in creation order.
func (s *Store) ListResponses(_ context.Context, requestID string) ([]models.DonorResponseRecord, error) {
	s.mu.Lock()
	out := make([]models.DonorResponseRecord, 0)
	for _, rec := range s.records {
		if rec.RequestID == requestID {
			out = append(out, *rec)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// AcceptDonation creates or refreshes the donor's record for a live request.
func (s *Store) AcceptDonation(_ context.Context, params repository.AcceptParams) (*models.DonorResponseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[params.RequestID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if err := checkLive(req, params.At); err != nil {
		return nil, err
	}

	key := donorKey(params.RequestID, params.DonorID)
	if id, exists := s.byDonor[key]; exists {
		rec := s.records[id]
		switch rec.DonorResponse {
		case models.DonorResponseAccepted, models.DonorResponseReached:
		case models.DonorResponseDismissed:
			rec.DonorResponse = models.DonorResponseAccepted
			rec.DonorReachedAt = nil
		default:
			return nil, repository.ErrStaleState
		}
		rec.CanDonateBloodBagUpto = params.Ceiling
		rec.UpdatedAt = params.At
		s.appendLocked(rec.ID, params.StatusName, params.At)
		cp := *rec
		return &cp, nil
	}

	rec := &models.DonorResponseRecord{
		ID:                    uuid.NewString(),
		RequestID:             params.RequestID,
		DonorID:               params.DonorID,
		DonorResponse:         models.DonorResponseAccepted,
		CanDonateBloodBagUpto: params.Ceiling,
		CreatedAt:             params.At,
		UpdatedAt:             params.At,
	}
	s.records[rec.ID] = rec
	s.byDonor[key] = rec.ID
	s.appendLocked(rec.ID, params.StatusName, params.At)
	cp := *rec
	return &cp, nil
}

// TransitionResponse moves a record into params.To when it is in one of params.From.
func (s *Store) TransitionResponse(_ context.Context, params repository.TransitionParams) (*models.DonorResponseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[params.RecordID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if err := checkLive(s.requests[rec.RequestID], params.At); err != nil {
		return nil, err
	}
	if !containsResponse(params.From, rec.DonorResponse) {
		return nil, repository.ErrStaleState
	}
	rec.DonorResponse = params.To
	if params.ReachedAt != nil {
		reached := *params.ReachedAt
		rec.DonorReachedAt = &reached
	}
	rec.UpdatedAt = params.At
	s.appendLocked(rec.ID, params.StatusName, params.At)
	cp := *rec
	return &cp, nil
}

// ConfirmDonation confirms an Accepted or Reached record and credits the
// request with the clamped number of bags.
func (s *Store) ConfirmDonation(_ context.Context, params repository.ConfirmParams) (*repository.ConfirmResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[params.RecordID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	req := s.requests[rec.RequestID]
	if err := checkLive(req, params.At); err != nil {
		return nil, err
	}
	if rec.DonorResponse != models.DonorResponseAccepted && rec.DonorResponse != models.DonorResponseReached {
		return nil, repository.ErrStaleState
	}
	rec.DonorResponse = models.DonorResponseConfirmed
	rec.BloodBagDonated = params.Donated
	rec.UpdatedAt = params.At
	applied := s.incrementLocked(req, params.Donated, params.At)
	s.appendLocked(rec.ID, params.StatusName, params.At)

	recCopy := *rec
	reqCopy := *req
	return &repository.ConfirmResult{Record: &recCopy, Request: &reqCopy, Applied: applied}, nil
}

// ListAudit returns the audit trail of every record under a request.
func (s *Store) ListAudit(_ context.Context, requestID string) ([]models.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]models.AuditEntry, 0)
	for _, u := range s.updates {
		rec := s.records[u.RecordID]
		if rec == nil || rec.RequestID != requestID {
			continue
		}
		entries = append(entries, models.AuditEntry{
			UpdateID:   u.ID,
			RecordID:   u.RecordID,
			DonorID:    rec.DonorID,
			StatusName: u.StatusName,
			CreatedAt:  u.CreatedAt,
		})
	}
	return entries, nil
}

func (s *Store) appendLocked(recordID, statusName string, at time.Time) {
	s.updates = append(s.updates, models.DonorResponseUpdate{
		ID:         uuid.NewString(),
		RecordID:   recordID,
		StatusName: statusName,
		CreatedAt:  at,
	})
}

func checkLive(req *models.DonationRequest, at time.Time) error {
	if req == nil {
		return sql.ErrNoRows
	}
	state := req.State(at)
	if state.Live() {
		return nil
	}
	return fmt.Errorf("request %s is %s: %w", req.ID, state, repository.ErrRequestNotLive)
}

func containsState(states []models.RequestState, state models.RequestState) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}

func containsResponse(states []models.DonorResponse, state models.DonorResponse) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}
