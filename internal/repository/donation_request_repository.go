package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/farhanpavel/cognit-api/internal/models"
	"github.com/farhanpavel/cognit-api/pkg/geo"
)

const requestColumns = `id, patient_user_id, patient_name, blood_group_name, bags_needed, bags_received,
       blood_needed_before_at, session_end_at, hospital_name, hospital_address, hospital_latitude, hospital_longitude,
       created_at, updated_at, closed_at`

// DonationRequestRepository persists donation requests.
type DonationRequestRepository struct {
	db *sqlx.DB
}

// NewDonationRequestRepository constructs the repository.
func NewDonationRequestRepository(db *sqlx.DB) *DonationRequestRepository {
	return &DonationRequestRepository{db: db}
}

// CreateRequest inserts a new request row.
func (r *DonationRequestRepository) CreateRequest(ctx context.Context, req *models.DonationRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}
	const query = `INSERT INTO donation_requests
	(id, patient_user_id, patient_name, blood_group_name, bags_needed, bags_received, blood_needed_before_at, session_end_at,
	 hospital_name, hospital_address, hospital_latitude, hospital_longitude, created_at, updated_at, closed_at)
	VALUES (:id, :patient_user_id, :patient_name, :blood_group_name, :bags_needed, :bags_received, :blood_needed_before_at, :session_end_at,
	 :hospital_name, :hospital_address, :hospital_latitude, :hospital_longitude, :created_at, :updated_at, :closed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create donation request: %w", err)
	}
	return nil
}

// GetRequest fetches a request by identifier.
func (r *DonationRequestRepository) GetRequest(ctx context.Context, id string) (*models.DonationRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM donation_requests WHERE id = $1`, requestColumns)
	var req models.DonationRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// ListRequests returns requests matching the filter, newest first. A Near
// filter is applied as a bounding box; callers refine by exact distance.
func (r *DonationRequestRepository) ListRequests(ctx context.Context, filter models.DonationRequestFilter) ([]models.DonationRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 8)
	builder.WriteString(fmt.Sprintf("SELECT %s FROM donation_requests", requestColumns))

	conditions := make([]string, 0, 4)
	if filter.PatientUserID != "" {
		args = append(args, filter.PatientUserID)
		conditions = append(conditions, fmt.Sprintf("patient_user_id = $%d", len(args)))
	}
	if filter.BloodGroupName != "" {
		args = append(args, filter.BloodGroupName)
		conditions = append(conditions, fmt.Sprintf("blood_group_name = $%d", len(args)))
	}
	if filter.Near != nil && filter.RadiusKm > 0 {
		box := geo.BoundingBox(*filter.Near, filter.RadiusKm)
		args = append(args, box.MinLatitude, box.MaxLatitude, box.MinLongitude, box.MaxLongitude)
		n := len(args)
		lng := "hospital_longitude BETWEEN $%d AND $%d"
		if box.Wraps() {
			lng = "(hospital_longitude >= $%d OR hospital_longitude <= $%d)"
		}
		conditions = append(conditions, fmt.Sprintf("hospital_latitude BETWEEN $%d AND $%d AND "+lng, n-3, n-2, n-1, n))
	}
	if len(filter.States) > 0 {
		now := filter.Now
		if now.IsZero() {
			now = time.Now().UTC()
		}
		args = append(args, now)
		stateConds := make([]string, 0, len(filter.States))
		for _, state := range filter.States {
			if cond := stateCondition(state, len(args)); cond != "" {
				stateConds = append(stateConds, cond)
			}
		}
		if len(stateConds) > 0 {
			conditions = append(conditions, "("+strings.Join(stateConds, " OR ")+")")
		}
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.DonationRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list donation requests: %w", err)
	}
	return requests, nil
}

// stateCondition mirrors DonationRequest.State as SQL. nowArg is the
// placeholder index holding the evaluation time.
func stateCondition(state models.RequestState, nowArg int) string {
	switch state {
	case models.RequestStateClosed:
		return "(closed_at IS NOT NULL)"
	case models.RequestStateFulfilled:
		return "(closed_at IS NULL AND bags_received >= bags_needed)"
	case models.RequestStateExpired:
		return fmt.Sprintf("(closed_at IS NULL AND bags_received < bags_needed AND session_end_at < $%d)", nowArg)
	case models.RequestStatePartiallyFulfilled:
		return fmt.Sprintf("(closed_at IS NULL AND bags_received > 0 AND bags_received < bags_needed AND session_end_at >= $%d)", nowArg)
	case models.RequestStateOpen:
		return fmt.Sprintf("(closed_at IS NULL AND bags_received = 0 AND session_end_at >= $%d)", nowArg)
	default:
		return ""
	}
}

// ExtendSession moves the session end of an unfinished request to a later
// instant. Returns ErrStaleState when the request is closed, already
// fulfilled, or already ends at or after sessionEndAt.
func (r *DonationRequestRepository) ExtendSession(ctx context.Context, id string, sessionEndAt, at time.Time) (*models.DonationRequest, error) {
	query := fmt.Sprintf(`UPDATE donation_requests SET session_end_at = $2, updated_at = $3
	WHERE id = $1 AND closed_at IS NULL AND bags_received < bags_needed AND session_end_at < $2
	RETURNING %s`, requestColumns)
	var req models.DonationRequest
	if err := r.db.GetContext(ctx, &req, query, id, sessionEndAt, at); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrStaleState
		}
		return nil, fmt.Errorf("extend donation session: %w", err)
	}
	return &req, nil
}

// CloseRequest marks a request closed. Returns ErrStaleState when it already is.
func (r *DonationRequestRepository) CloseRequest(ctx context.Context, id string, at time.Time) (*models.DonationRequest, error) {
	query := fmt.Sprintf(`UPDATE donation_requests SET closed_at = $2, updated_at = $2
	WHERE id = $1 AND closed_at IS NULL
	RETURNING %s`, requestColumns)
	var req models.DonationRequest
	if err := r.db.GetContext(ctx, &req, query, id, at); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrStaleState
		}
		return nil, fmt.Errorf("close donation request: %w", err)
	}
	return &req, nil
}

// IncrementBagsReceived credits up to delta bags, clamped at bags_needed.
// It returns the number of bags actually applied and the updated request.
func (r *DonationRequestRepository) IncrementBagsReceived(ctx context.Context, id string, delta int, at time.Time) (int, *models.DonationRequest, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("begin increment: %w", err)
	}
	defer rollback(tx)

	current, err := lockRequest(ctx, tx, id)
	if err != nil {
		return 0, nil, err
	}
	applied, updated, err := incrementLocked(ctx, tx, current, delta, at)
	if err != nil {
		return 0, nil, err
	}
	if err := commit(tx, "increment"); err != nil {
		return 0, nil, err
	}
	return applied, updated, nil
}

// incrementLocked applies the clamp to a request already locked by tx.
func incrementLocked(ctx context.Context, tx *sqlx.Tx, current *models.DonationRequest, delta int, at time.Time) (int, *models.DonationRequest, error) {
	applied := ClampIncrement(current.BagsNeeded, current.BagsReceived, delta)
	if applied == 0 {
		return 0, current, nil
	}
	query := fmt.Sprintf(`UPDATE donation_requests
	SET bags_received = LEAST(bags_needed, bags_received + $2), updated_at = $3
	WHERE id = $1
	RETURNING %s`, requestColumns)
	var updated models.DonationRequest
	if err := tx.GetContext(ctx, &updated, query, current.ID, applied, at); err != nil {
		return 0, nil, fmt.Errorf("increment bags received: %w", err)
	}
	return updated.BagsReceived - current.BagsReceived, &updated, nil
}
