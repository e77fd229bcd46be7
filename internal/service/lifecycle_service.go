package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/farhanpavel/cognit-api/internal/dto"
	"github.com/farhanpavel/cognit-api/internal/models"
	"github.com/farhanpavel/cognit-api/internal/notification"
	"github.com/farhanpavel/cognit-api/internal/repository"
	appErrors "github.com/farhanpavel/cognit-api/pkg/errors"
	"github.com/farhanpavel/cognit-api/pkg/geo"
)

// Lifecycle operation names used for metrics and logs.
const (
	opCreate  = "create"
	opAccept  = "accept"
	opReached = "reached"
	opConfirm = "confirm"
	opReject  = "reject"
	opDismiss = "dismiss"
	opExtend  = "extend"
	opClose   = "close"
)

// Transition outcomes.
const (
	outcomeOK        = "ok"
	outcomeReplayed  = "replayed"
	outcomeConflict  = "conflict"
	outcomeNotFound  = "not_found"
	outcomeForbidden = "forbidden"
	outcomeInvalid   = "invalid"
	outcomeError     = "error"
)

// DonationStore is the Request Store as seen by the lifecycle manager.
type DonationStore interface {
	CreateRequest(ctx context.Context, req *models.DonationRequest) error
	GetRequest(ctx context.Context, id string) (*models.DonationRequest, error)
	ListRequests(ctx context.Context, filter models.DonationRequestFilter) ([]models.DonationRequest, error)
	ExtendSession(ctx context.Context, id string, sessionEndAt, at time.Time) (*models.DonationRequest, error)
	CloseRequest(ctx context.Context, id string, at time.Time) (*models.DonationRequest, error)
	GetResponse(ctx context.Context, id string) (*models.DonorResponseRecord, error)
	GetResponseByDonor(ctx context.Context, requestID, donorID string) (*models.DonorResponseRecord, error)
	ListResponses(ctx context.Context, requestID string) ([]models.DonorResponseRecord, error)
	AcceptDonation(ctx context.Context, params repository.AcceptParams) (*models.DonorResponseRecord, error)
	TransitionResponse(ctx context.Context, params repository.TransitionParams) (*models.DonorResponseRecord, error)
	ConfirmDonation(ctx context.Context, params repository.ConfirmParams) (*repository.ConfirmResult, error)
	ListAudit(ctx context.Context, requestID string) ([]models.AuditEntry, error)
}

type eventEmitter interface {
	Emit(evt notification.Event) bool
}

// LifecycleConfig tunes the lifecycle manager.
type LifecycleConfig struct {
	ProximityLimitKm  float64
	DefaultSessionTTL time.Duration
	LockStripes       int
	// Clock overrides time.Now, mainly for tests.
	Clock func() time.Time
}

// LifecycleService is the request lifecycle state machine. Transitions on the
// same donor record are serialized in process; the store guards the
// cross-record bag counter.
type LifecycleService struct {
	store     DonationStore
	events    eventEmitter
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	locks     *keyedMutex
	config    LifecycleConfig
	now       func() time.Time
}

// NewLifecycleService constructs the lifecycle manager. events, cache and
// metrics may be nil.
func NewLifecycleService(
	store DonationStore,
	events eventEmitter,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg LifecycleConfig,
) *LifecycleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProximityLimitKm <= 0 {
		cfg.ProximityLimitKm = 30
	}
	if cfg.DefaultSessionTTL <= 0 {
		cfg.DefaultSessionTTL = 24 * time.Hour
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &LifecycleService{
		store:     store,
		events:    events,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		locks:     newKeyedMutex(cfg.LockStripes),
		config:    cfg,
		now:       func() time.Time { return now().UTC() },
	}
}

// CreateRequest persists a new request for the calling patient and
// broadcasts it to donors.
func (s *LifecycleService) CreateRequest(ctx context.Context, actor models.Actor, req dto.CreateDonationRequest) (view *dto.DonationRequestView, err error) {
	defer func() { s.observe(opCreate, err) }()

	if actor.Role != models.RolePatient && actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only patients can request blood")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid donation request")
	}
	if !req.HospitalLocation.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "hospitalLocation is out of range")
	}

	now := s.now()
	sessionEnd := now.Add(s.config.DefaultSessionTTL)
	if req.SessionEndAt != nil {
		sessionEnd = req.SessionEndAt.UTC()
	}
	if !sessionEnd.After(now) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "sessionEndAt must be in the future")
	}

	model := &models.DonationRequest{
		ID:                  uuid.NewString(),
		PatientUserID:       actor.UserID,
		PatientName:         strings.TrimSpace(req.PatientName),
		BloodGroupName:      req.BloodGroupName,
		BagsNeeded:          req.BagsNeeded,
		BloodNeededBeforeAt: req.BloodNeededBeforeAt.UTC(),
		SessionEndAt:        sessionEnd,
		HospitalName:        strings.TrimSpace(req.HospitalName),
		HospitalAddress:     strings.TrimSpace(req.HospitalAddress),
		HospitalLatitude:    req.HospitalLocation.Latitude,
		HospitalLongitude:   req.HospitalLocation.Longitude,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.store.CreateRequest(ctx, model); err != nil {
		return nil, appErrors.Internal(err, "failed to create donation request")
	}

	s.cache.PutRequest(ctx, model, 0)
	s.emit(notification.Event{Kind: notification.EventRequestCreated, Request: *model, OccurredAt: now})
	s.logger.Info("donation request created",
		zap.String("request_id", model.ID),
		zap.String("patient_id", model.PatientUserID),
		zap.String("blood_group", model.BloodGroupName),
		zap.Int("bags_needed", model.BagsNeeded),
	)

	result := dto.NewDonationRequestView(model, now)
	return &result, nil
}

// GetRequest returns a request with its derived state.
func (s *LifecycleService) GetRequest(ctx context.Context, id string) (*dto.DonationRequestView, error) {
	req, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	view := dto.NewDonationRequestView(req, s.now())
	return &view, nil
}

// ListRequests returns requests matching query. A Near coordinate restricts
// the result to hospitals within RadiusKm (defaults to the proximity limit)
// and annotates each request with its distance.
func (s *LifecycleService) ListRequests(ctx context.Context, query dto.DonationRequestQuery) ([]dto.DonationRequestView, *models.Pagination, error) {
	if query.Near != nil && !query.Near.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "near coordinate is out of range")
	}
	if query.BloodGroupName != "" && !models.IsKnownBloodGroup(query.BloodGroupName) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown blood group")
	}
	radius := query.RadiusKm
	if query.Near != nil && radius <= 0 {
		radius = s.config.ProximityLimitKm
	}

	now := s.now()
	items, err := s.store.ListRequests(ctx, models.DonationRequestFilter{
		PatientUserID:  query.PatientUserID,
		BloodGroupName: query.BloodGroupName,
		States:         query.States,
		Near:           query.Near,
		RadiusKm:       radius,
		Now:            now,
		Limit:          query.Limit,
		Offset:         query.Offset,
	})
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list donation requests")
	}

	views := make([]dto.DonationRequestView, 0, len(items))
	for i := range items {
		view := dto.NewDonationRequestView(&items[i], now)
		if query.Near != nil {
			d := geo.DistanceKm(*query.Near, items[i].HospitalLocation())
			if d > radius {
				continue
			}
			view.DistanceKm = &d
		}
		views = append(views, view)
	}
	return views, &models.Pagination{Limit: query.Limit, Offset: query.Offset, Count: len(views)}, nil
}

// ListResponses returns donor records for a request. The owning patient and
// admins see every record; anyone else only sees their own.
func (s *LifecycleService) ListResponses(ctx context.Context, actor models.Actor, requestID string) ([]dto.DonorResponseView, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !isOwner(actor, req) && actor.Role != models.RoleAdmin {
		rec, err := s.store.GetResponseByDonor(ctx, requestID, actor.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return []dto.DonorResponseView{}, nil
			}
			return nil, appErrors.Internal(err, "failed to load donor response")
		}
		return []dto.DonorResponseView{dto.NewDonorResponseView(rec)}, nil
	}

	records, err := s.store.ListResponses(ctx, requestID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list donor responses")
	}
	views := make([]dto.DonorResponseView, 0, len(records))
	for i := range records {
		views = append(views, dto.NewDonorResponseView(&records[i]))
	}
	return views, nil
}

// AuditTrail returns every audit entry recorded under a request.
func (s *LifecycleService) AuditTrail(ctx context.Context, actor models.Actor, requestID string) (*models.DonationRequest, []models.AuditEntry, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if !isOwner(actor, req) && actor.Role != models.RoleAdmin {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only the requesting patient can view the audit trail")
	}
	entries, err := s.store.ListAudit(ctx, requestID)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to load audit trail")
	}
	return req, entries, nil
}

// AuthorizeStream checks that actor may follow live updates of a request.
func (s *LifecycleService) AuthorizeStream(ctx context.Context, actor models.Actor, requestID string) (*models.DonationRequest, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !isOwner(actor, req) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the requesting patient can follow this request")
	}
	return req, nil
}

// Accept records that the calling donor can give up to CanDonateBloodBagUpto
// bags. Re-accepting refreshes the ceiling; accepting after being dismissed
// starts a fresh cycle.
func (s *LifecycleService) Accept(ctx context.Context, actor models.Actor, requestID string, req dto.AcceptDonationRequest) (view *dto.DonorResponseView, err error) {
	defer func() { s.observe(opAccept, err) }()

	if actor.Role != models.RoleDonor {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only donors can accept a request")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid acceptance")
	}
	donation, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if isOwner(actor, donation) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "patients cannot donate to their own request")
	}

	unlock := s.locks.Lock(recordKey(requestID, actor.UserID))
	defer unlock()

	statusName := models.StatusNameAccepted
	existing, err := s.store.GetResponseByDonor(ctx, requestID, actor.UserID)
	switch {
	case err == nil:
		switch existing.DonorResponse {
		case models.DonorResponseDismissed:
			statusName = models.StatusNameReaccepted
		case models.DonorResponseAccepted, models.DonorResponseReached:
			statusName = models.StatusNameUpdated
		default:
			return nil, appErrors.Clone(appErrors.ErrStateConflict, "donation already "+strings.ToLower(string(existing.DonorResponse)))
		}
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Internal(err, "failed to load donor response")
	}

	now := s.now()
	rec, err := s.store.AcceptDonation(ctx, repository.AcceptParams{
		RequestID:  requestID,
		DonorID:    actor.UserID,
		Ceiling:    req.CanDonateBloodBagUpto,
		StatusName: statusName,
		At:         now,
	})
	if err != nil {
		return nil, s.storeError(err, "donation request not found", "failed to accept donation request")
	}

	s.cache.InvalidateRequest(ctx, requestID)
	s.emit(notification.Event{Kind: notification.EventDonorAccepted, Request: *s.committedRequest(ctx, donation), Record: rec, OccurredAt: now})
	s.logger.Info("donor accepted request",
		zap.String("request_id", requestID),
		zap.String("record_id", rec.ID),
		zap.String("donor_id", actor.UserID),
		zap.String("status", statusName),
	)

	result := dto.NewDonorResponseView(rec)
	return &result, nil
}

// DonorReached records that the calling donor arrived at the hospital.
func (s *LifecycleService) DonorReached(ctx context.Context, actor models.Actor, recordID string) (view *dto.DonorResponseView, err error) {
	defer func() { s.observe(opReached, err) }()

	rec, donation, err := s.loadRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.DonorID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the responding donor can report arrival")
	}

	unlock := s.locks.Lock(recordKey(rec.RequestID, rec.DonorID))
	defer unlock()

	now := s.now()
	updated, err := s.store.TransitionResponse(ctx, repository.TransitionParams{
		RecordID:   recordID,
		From:       []models.DonorResponse{models.DonorResponseAccepted},
		To:         models.DonorResponseReached,
		ReachedAt:  &now,
		StatusName: models.StatusNameReached,
		At:         now,
	})
	if err != nil {
		return nil, s.storeError(err, "donor response not found", "failed to record arrival")
	}

	s.cache.InvalidateRequest(ctx, rec.RequestID)
	s.emit(notification.Event{Kind: notification.EventDonorReached, Request: *s.committedRequest(ctx, donation), Record: updated, OccurredAt: now})

	result := dto.NewDonorResponseView(updated)
	return &result, nil
}

// Confirm records the patient's verdict on a donation. Confirming credits the
// request with donatedBags clamped to the remaining need. Repeating Confirm
// on a decided record returns the recorded outcome without crediting again.
func (s *LifecycleService) Confirm(ctx context.Context, actor models.Actor, recordID string, req dto.ConfirmDonationRequest) (result *dto.ConfirmDonationResult, err error) {
	op := opConfirm
	if req.Confirm != nil && !*req.Confirm {
		op = opReject
	}
	defer func() {
		if result != nil && result.Replayed {
			s.metrics.ObserveTransition(op, outcomeReplayed)
			return
		}
		s.observe(op, err)
	}()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid confirmation")
	}
	confirm := *req.Confirm
	if confirm && req.DonatedBags < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "donatedBags must be at least 1 when confirming")
	}

	rec, donation, err := s.loadRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if !isOwner(actor, donation) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the requesting patient can confirm a donation")
	}

	unlock := s.locks.Lock(recordKey(rec.RequestID, rec.DonorID))
	defer unlock()

	if replay, err := s.replayDecided(ctx, recordID); replay != nil || err != nil {
		return replay, err
	}

	now := s.now()
	if !confirm {
		updated, err := s.store.TransitionResponse(ctx, repository.TransitionParams{
			RecordID:   recordID,
			From:       []models.DonorResponse{models.DonorResponseAccepted, models.DonorResponseReached},
			To:         models.DonorResponseRejected,
			StatusName: models.StatusNameRejected,
			At:         now,
		})
		if err != nil {
			return s.afterStaleConfirm(ctx, recordID, err)
		}
		s.cache.InvalidateRequest(ctx, rec.RequestID)
		current := s.committedRequest(ctx, donation)
		s.emit(notification.Event{Kind: notification.EventDonationRejected, Request: *current, Record: updated, OccurredAt: now})
		return &dto.ConfirmDonationResult{
			Record:  dto.NewDonorResponseView(updated),
			Request: dto.NewDonationRequestView(current, now),
		}, nil
	}

	outcome, err := s.store.ConfirmDonation(ctx, repository.ConfirmParams{
		RecordID:   recordID,
		Donated:    req.DonatedBags,
		StatusName: models.StatusNameConfirmed,
		At:         now,
	})
	if err != nil {
		return s.afterStaleConfirm(ctx, recordID, err)
	}

	s.metrics.ObserveConfirmation(req.DonatedBags, outcome.Applied)
	s.cache.InvalidateRequest(ctx, rec.RequestID)
	s.emit(notification.Event{
		Kind:       notification.EventDonationConfirmed,
		Request:    *outcome.Request,
		Record:     outcome.Record,
		Applied:    outcome.Applied,
		OccurredAt: now,
	})
	s.logger.Info("donation confirmed",
		zap.String("request_id", rec.RequestID),
		zap.String("record_id", recordID),
		zap.Int("donated", req.DonatedBags),
		zap.Int("applied", outcome.Applied),
		zap.Int("bags_received", outcome.Request.BagsReceived),
	)

	return &dto.ConfirmDonationResult{
		Record:      dto.NewDonorResponseView(outcome.Record),
		Request:     dto.NewDonationRequestView(outcome.Request, now),
		BagsApplied: outcome.Applied,
	}, nil
}

// ConfirmDonor confirms the record of donorID under requestID. A donor who
// never accepted the request has nothing to confirm, which is a conflict
// rather than a missing resource.
func (s *LifecycleService) ConfirmDonor(ctx context.Context, actor models.Actor, requestID, donorID string, req dto.ConfirmDonationRequest) (*dto.ConfirmDonationResult, error) {
	donation, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !isOwner(actor, donation) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the requesting patient can confirm a donation")
	}
	rec, err := s.store.GetResponseByDonor(ctx, requestID, donorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.ObserveTransition(opConfirm, outcomeConflict)
			return nil, appErrors.Clone(appErrors.ErrStateConflict, "donor has not accepted this request")
		}
		return nil, appErrors.Internal(err, "failed to load donor response")
	}
	return s.Confirm(ctx, actor, rec.ID, req)
}

// replayDecided returns the recorded outcome when the record is already
// Confirmed or Rejected, or nil when a decision is still pending.
func (s *LifecycleService) replayDecided(ctx context.Context, recordID string) (*dto.ConfirmDonationResult, error) {
	rec, err := s.store.GetResponse(ctx, recordID)
	if err != nil {
		return nil, s.storeError(err, "donor response not found", "failed to load donor response")
	}
	if !rec.DonorResponse.Decided() {
		return nil, nil
	}
	donation, err := s.store.GetRequest(ctx, rec.RequestID)
	if err != nil {
		return nil, s.storeError(err, "donation request not found", "failed to load donation request")
	}
	return &dto.ConfirmDonationResult{
		Record:   dto.NewDonorResponseView(rec),
		Request:  dto.NewDonationRequestView(donation, s.now()),
		Replayed: true,
	}, nil
}

// afterStaleConfirm turns a failed confirmation into a replay when another
// caller decided the record first.
func (s *LifecycleService) afterStaleConfirm(ctx context.Context, recordID string, cause error) (*dto.ConfirmDonationResult, error) {
	if errors.Is(cause, repository.ErrStaleState) {
		replay, err := s.replayDecided(ctx, recordID)
		if err != nil {
			return nil, err
		}
		if replay != nil {
			return replay, nil
		}
	}
	return nil, s.storeError(cause, "donor response not found", "failed to confirm donation")
}

// Dismiss lets the patient decline an accepted donor before arrival.
func (s *LifecycleService) Dismiss(ctx context.Context, actor models.Actor, recordID string) (view *dto.DonorResponseView, err error) {
	defer func() { s.observe(opDismiss, err) }()

	rec, donation, err := s.loadRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if !isOwner(actor, donation) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the requesting patient can dismiss a donor")
	}

	unlock := s.locks.Lock(recordKey(rec.RequestID, rec.DonorID))
	defer unlock()

	now := s.now()
	updated, err := s.store.TransitionResponse(ctx, repository.TransitionParams{
		RecordID:   recordID,
		From:       []models.DonorResponse{models.DonorResponseAccepted},
		To:         models.DonorResponseDismissed,
		StatusName: models.StatusNameDismissed,
		At:         now,
	})
	if err != nil {
		return nil, s.storeError(err, "donor response not found", "failed to dismiss donor")
	}

	s.cache.InvalidateRequest(ctx, rec.RequestID)
	s.emit(notification.Event{Kind: notification.EventDonorDismissed, Request: *s.committedRequest(ctx, donation), Record: updated, OccurredAt: now})

	result := dto.NewDonorResponseView(updated)
	return &result, nil
}

// ExtendSession moves the response deadline of the patient's request to a
// later instant. An expired request becomes live again; fulfilled or closed
// requests stay as they are.
func (s *LifecycleService) ExtendSession(ctx context.Context, actor models.Actor, requestID string, req dto.ExtendSessionRequest) (view *dto.DonationRequestView, err error) {
	defer func() { s.observe(opExtend, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session extension")
	}
	newEnd := req.SessionEndAt.UTC()
	now := s.now()
	if !newEnd.After(now) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "sessionEndAt must be in the future")
	}

	unlock := s.locks.Lock(requestID)
	defer unlock()

	current, err := s.ownedRequest(ctx, actor, requestID, "only the requesting patient can extend the session")
	if err != nil {
		return nil, err
	}
	switch state := current.State(now); state {
	case models.RequestStateClosed, models.RequestStateFulfilled:
		return nil, appErrors.Clone(appErrors.ErrStateConflict, "cannot extend a "+strings.ToLower(string(state))+" request")
	}
	if !newEnd.After(current.SessionEndAt) {
		return nil, appErrors.Clone(appErrors.ErrStateConflict, "sessionEndAt must be later than the current session end")
	}

	updated, err := s.store.ExtendSession(ctx, requestID, newEnd, now)
	if err != nil {
		return nil, s.storeError(err, "donation request not found", "failed to extend session")
	}

	s.cache.InvalidateRequest(ctx, requestID)
	s.emit(notification.Event{Kind: notification.EventSessionExtended, Request: *updated, OccurredAt: now})

	result := dto.NewDonationRequestView(updated, now)
	return &result, nil
}

// CloseSession closes the patient's request regardless of bags received.
// Existing donor records are kept for history.
func (s *LifecycleService) CloseSession(ctx context.Context, actor models.Actor, requestID string) (view *dto.DonationRequestView, err error) {
	defer func() { s.observe(opClose, err) }()

	unlock := s.locks.Lock(requestID)
	defer unlock()

	if _, err := s.ownedRequest(ctx, actor, requestID, "only the requesting patient can close the session"); err != nil {
		return nil, err
	}

	now := s.now()
	updated, err := s.store.CloseRequest(ctx, requestID, now)
	if err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, appErrors.Clone(appErrors.ErrStateConflict, "donation request is already closed")
		}
		return nil, s.storeError(err, "donation request not found", "failed to close session")
	}

	s.cache.InvalidateRequest(ctx, requestID)
	s.emit(notification.Event{Kind: notification.EventSessionClosed, Request: *updated, OccurredAt: now})
	s.logger.Info("donation request closed",
		zap.String("request_id", requestID),
		zap.Int("bags_received", updated.BagsReceived),
		zap.Int("bags_needed", updated.BagsNeeded),
	)

	result := dto.NewDonationRequestView(updated, now)
	return &result, nil
}

func (s *LifecycleService) ownedRequest(ctx context.Context, actor models.Actor, requestID, forbidden string) (*models.DonationRequest, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, s.storeError(err, "donation request not found", "failed to load donation request")
	}
	if !isOwner(actor, req) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, forbidden)
	}
	return req, nil
}

// loadRequest reads a request through the cache.
func (s *LifecycleService) loadRequest(ctx context.Context, id string) (*models.DonationRequest, error) {
	cached, gen, ok := s.cache.GetRequest(ctx, id)
	if ok {
		return cached, nil
	}
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, s.storeError(err, "donation request not found", "failed to load donation request")
	}
	s.cache.PutRequest(ctx, req, gen)
	return req, nil
}

// committedRequest re-reads a request after a transition so event payloads
// reflect the committed row. It falls back to loaded when the read fails.
func (s *LifecycleService) committedRequest(ctx context.Context, loaded *models.DonationRequest) *models.DonationRequest {
	req, err := s.store.GetRequest(ctx, loaded.ID)
	if err != nil {
		s.logger.Warn("failed to reload request for event", zap.String("request_id", loaded.ID), zap.Error(err))
		return loaded
	}
	return req
}

func (s *LifecycleService) loadRecord(ctx context.Context, recordID string) (*models.DonorResponseRecord, *models.DonationRequest, error) {
	rec, err := s.store.GetResponse(ctx, recordID)
	if err != nil {
		return nil, nil, s.storeError(err, "donor response not found", "failed to load donor response")
	}
	req, err := s.loadRequest(ctx, rec.RequestID)
	if err != nil {
		return nil, nil, err
	}
	return rec, req, nil
}

// storeError maps store failures onto the API error taxonomy.
func (s *LifecycleService) storeError(err error, notFound, internal string) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	case errors.Is(err, repository.ErrRequestNotLive):
		return appErrors.Wrap(err, appErrors.ErrStateConflict.Code, appErrors.ErrStateConflict.Status, "donation request no longer accepts responses")
	case errors.Is(err, repository.ErrStaleState):
		return appErrors.Wrap(err, appErrors.ErrStateConflict.Code, appErrors.ErrStateConflict.Status, "donor response does not allow this action")
	default:
		return appErrors.Internal(err, internal)
	}
}

func (s *LifecycleService) emit(evt notification.Event) {
	if s.events == nil {
		return
	}
	s.events.Emit(evt)
}

func (s *LifecycleService) observe(op string, err error) {
	s.metrics.ObserveTransition(op, outcomeFor(err))
	if err != nil {
		appErr := appErrors.FromError(err)
		if appErr.Status >= 500 {
			s.logger.Error("lifecycle transition failed", zap.String("operation", op), zap.Error(err))
		} else {
			s.logger.Debug("lifecycle transition rejected", zap.String("operation", op), zap.String("code", appErr.Code))
		}
	}
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, appErrors.ErrStateConflict):
		return outcomeConflict
	case errors.Is(err, appErrors.ErrNotFound):
		return outcomeNotFound
	case errors.Is(err, appErrors.ErrForbidden):
		return outcomeForbidden
	case errors.Is(err, appErrors.ErrValidation):
		return outcomeInvalid
	default:
		return outcomeError
	}
}

func isOwner(actor models.Actor, req *models.DonationRequest) bool {
	return actor.UserID != "" && actor.UserID == req.PatientUserID
}

func recordKey(requestID, donorID string) string {
	return requestID + "|" + donorID
}
