package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/farhanpavel/cognit-api/internal/models"
)

const responseColumns = `id, request_id, donor_id, donor_response, can_donate_blood_bag_upto, donor_reached_at,
       blood_bag_donated, created_at, updated_at`

// DonorResponseRepository persists donor response records and their audit trail.
type DonorResponseRepository struct {
	db *sqlx.DB
}

// NewDonorResponseRepository constructs the repository.
func NewDonorResponseRepository(db *sqlx.DB) *DonorResponseRepository {
	return &DonorResponseRepository{db: db}
}

// GetResponse fetches a record by identifier.
func (r *DonorResponseRepository) GetResponse(ctx context.Context, id string) (*models.DonorResponseRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM donor_response_records WHERE id = $1`, responseColumns)
	var record models.DonorResponseRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// GetResponseByDonor fetches the record linking donorID to requestID.
func (r *DonorResponseRepository) GetResponseByDonor(ctx context.Context, requestID, donorID string) (*models.DonorResponseRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM donor_response_records WHERE request_id = $1 AND donor_id = $2`, responseColumns)
	var record models.DonorResponseRecord
	if err := r.db.GetContext(ctx, &record, query, requestID, donorID); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListResponses returns all records for a request in creation order.
func (r *DonorResponseRepository) ListResponses(ctx context.Context, requestID string) ([]models.DonorResponseRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM donor_response_records WHERE request_id = $1 ORDER BY created_at ASC`, responseColumns)
	var records []models.DonorResponseRecord
	if err := r.db.SelectContext(ctx, &records, query, requestID); err != nil {
		return nil, fmt.Errorf("list donor responses: %w", err)
	}
	return records, nil
}

// AcceptDonation creates or refreshes the donor's record for a live request.
// Accepted and Reached records keep their state with an updated ceiling, a
// Dismissed record starts a fresh cycle, and decided records are left alone
// with ErrStaleState.
func (r *DonorResponseRepository) AcceptDonation(ctx context.Context, params AcceptParams) (*models.DonorResponseRecord, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin accept: %w", err)
	}
	defer rollback(tx)

	req, err := lockRequest(ctx, tx, params.RequestID)
	if err != nil {
		return nil, err
	}
	if err := checkTransitionable(req, params.At); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`INSERT INTO donor_response_records
	(id, request_id, donor_id, donor_response, can_donate_blood_bag_upto, donor_reached_at, blood_bag_donated, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, NULL, 0, $6, $6)
	ON CONFLICT (request_id, donor_id) DO UPDATE SET
		can_donate_blood_bag_upto = EXCLUDED.can_donate_blood_bag_upto,
		donor_response = CASE WHEN donor_response_records.donor_response = $7 THEN $4 ELSE donor_response_records.donor_response END,
		donor_reached_at = CASE WHEN donor_response_records.donor_response = $7 THEN NULL ELSE donor_response_records.donor_reached_at END,
		updated_at = EXCLUDED.updated_at
	WHERE donor_response_records.donor_response = ANY($8)
	RETURNING %s`, responseColumns)
	reopenable := pq.Array([]string{
		string(models.DonorResponseAccepted),
		string(models.DonorResponseReached),
		string(models.DonorResponseDismissed),
	})
	var record models.DonorResponseRecord
	err = tx.GetContext(ctx, &record, query,
		uuid.NewString(), params.RequestID, params.DonorID, models.DonorResponseAccepted,
		params.Ceiling, params.At, models.DonorResponseDismissed, reopenable)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrStaleState
		}
		return nil, fmt.Errorf("upsert donor response: %w", err)
	}
	if err := appendUpdate(ctx, tx, record.ID, params.StatusName, params.At); err != nil {
		return nil, err
	}
	if err := commit(tx, "accept"); err != nil {
		return nil, err
	}
	return &record, nil
}

// TransitionResponse moves a record into params.To when it is currently in
// one of params.From and its request is still live.
func (r *DonorResponseRepository) TransitionResponse(ctx context.Context, params TransitionParams) (*models.DonorResponseRecord, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer rollback(tx)

	if _, err := lockOwningRequest(ctx, tx, params.RecordID, params.At); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`UPDATE donor_response_records
	SET donor_response = $2, donor_reached_at = COALESCE($3, donor_reached_at), updated_at = $4
	WHERE id = $1 AND donor_response = ANY($5)
	RETURNING %s`, responseColumns)
	var record models.DonorResponseRecord
	err = tx.GetContext(ctx, &record, query, params.RecordID, params.To, params.ReachedAt, params.At, pq.Array(responseStrings(params.From)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrStaleState
		}
		return nil, fmt.Errorf("transition donor response: %w", err)
	}
	if err := appendUpdate(ctx, tx, record.ID, params.StatusName, params.At); err != nil {
		return nil, err
	}
	if err := commit(tx, "transition"); err != nil {
		return nil, err
	}
	return &record, nil
}

// ConfirmDonation marks an Accepted or Reached record Confirmed and credits
// the request with the clamped number of donated bags in one transaction.
func (r *DonorResponseRepository) ConfirmDonation(ctx context.Context, params ConfirmParams) (*ConfirmResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin confirm: %w", err)
	}
	defer rollback(tx)

	req, err := lockOwningRequest(ctx, tx, params.RecordID, params.At)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`UPDATE donor_response_records
	SET donor_response = $2, blood_bag_donated = $3, updated_at = $4
	WHERE id = $1 AND donor_response = ANY($5)
	RETURNING %s`, responseColumns)
	confirmable := pq.Array([]string{string(models.DonorResponseAccepted), string(models.DonorResponseReached)})
	var record models.DonorResponseRecord
	err = tx.GetContext(ctx, &record, query, params.RecordID, models.DonorResponseConfirmed, params.Donated, params.At, confirmable)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrStaleState
		}
		return nil, fmt.Errorf("confirm donor response: %w", err)
	}

	applied, updated, err := incrementLocked(ctx, tx, req, params.Donated, params.At)
	if err != nil {
		return nil, err
	}
	if err := appendUpdate(ctx, tx, record.ID, params.StatusName, params.At); err != nil {
		return nil, err
	}
	if err := commit(tx, "confirm"); err != nil {
		return nil, err
	}
	return &ConfirmResult{Record: &record, Request: updated, Applied: applied}, nil
}

// ListAudit returns the audit trail of every record under a request.
func (r *DonorResponseRepository) ListAudit(ctx context.Context, requestID string) ([]models.AuditEntry, error) {
	const query = `SELECT u.id AS update_id, u.record_id, d.donor_id, u.status_name, u.created_at
	FROM donor_response_updates u
	JOIN donor_response_records d ON d.id = u.record_id
	WHERE d.request_id = $1
	ORDER BY u.created_at ASC, u.id ASC`
	var entries []models.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, requestID); err != nil {
		return nil, fmt.Errorf("list donor response audit: %w", err)
	}
	return entries, nil
}

// lockOwningRequest locks the request a record belongs to. The request row
// is always locked before the record row.
func lockOwningRequest(ctx context.Context, tx *sqlx.Tx, recordID string, at time.Time) (*models.DonationRequest, error) {
	var requestID string
	if err := tx.GetContext(ctx, &requestID, `SELECT request_id FROM donor_response_records WHERE id = $1`, recordID); err != nil {
		return nil, err
	}
	req, err := lockRequest(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	if err := checkTransitionable(req, at); err != nil {
		return nil, err
	}
	return req, nil
}

func appendUpdate(ctx context.Context, tx *sqlx.Tx, recordID, statusName string, at time.Time) error {
	const query = `INSERT INTO donor_response_updates (id, record_id, status_name, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := tx.ExecContext(ctx, query, uuid.NewString(), recordID, statusName, at); err != nil {
		return fmt.Errorf("append donor response update: %w", err)
	}
	return nil
}

func responseStrings(states []models.DonorResponse) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}
