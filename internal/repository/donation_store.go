package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/farhanpavel/cognit-api/internal/models"
)

var (
	// ErrStaleState is returned when a conditional update matched no row
	// because the record left the expected state.
	ErrStaleState = errors.New("record state changed")
	// ErrRequestNotLive is returned when the owning request no longer accepts
	// the attempted transition.
	ErrRequestNotLive = errors.New("request no longer accepts transitions")
)

// AcceptParams describes a donor acceptance or ceiling update.
type AcceptParams struct {
	RequestID  string
	DonorID    string
	Ceiling    int
	StatusName string
	At         time.Time
}

// TransitionParams moves a record from one of From into To.
type TransitionParams struct {
	RecordID   string
	From       []models.DonorResponse
	To         models.DonorResponse
	ReachedAt  *time.Time
	StatusName string
	At         time.Time
}

// ConfirmParams confirms a donation and credits the request.
type ConfirmParams struct {
	RecordID   string
	Donated    int
	StatusName string
	At         time.Time
}

// ConfirmResult carries the outcome of a confirmation.
type ConfirmResult struct {
	Record  *models.DonorResponseRecord
	Request *models.DonationRequest
	// Applied is the number of bags actually credited after clamping.
	Applied int
}

// PostgresStore combines the request and response repositories into a single
// Request Store backed by PostgreSQL.
type PostgresStore struct {
	*DonationRequestRepository
	*DonorResponseRepository
}

// NewPostgresStore constructs a PostgreSQL-backed store.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{
		DonationRequestRepository: NewDonationRequestRepository(db),
		DonorResponseRepository:   NewDonorResponseRepository(db),
	}
}

// ClampIncrement returns how many of delta bags fit under the remaining need.
func ClampIncrement(needed, received, delta int) int {
	if delta <= 0 {
		return 0
	}
	remaining := needed - received
	if remaining <= 0 {
		return 0
	}
	if delta > remaining {
		return remaining
	}
	return delta
}

func rollback(tx *sqlx.Tx) {
	_ = tx.Rollback()
}

func commit(tx *sqlx.Tx, op string) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", op, err)
	}
	return nil
}

// checkTransitionable rejects donor transitions on requests that are not
// live at at. Fulfilled, expired and closed requests are all final for donors.
func checkTransitionable(req *models.DonationRequest, at time.Time) error {
	state := req.State(at)
	if state.Live() {
		return nil
	}
	return fmt.Errorf("request %s is %s: %w", req.ID, state, ErrRequestNotLive)
}

// lockRequest reads a request row under a row lock held until tx ends.
func lockRequest(ctx context.Context, tx *sqlx.Tx, id string) (*models.DonationRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM donation_requests WHERE id = $1 FOR UPDATE`, requestColumns)
	var req models.DonationRequest
	if err := tx.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}
