package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"payungku-returns/internal/domain"
	"payungku-returns/internal/logger"
	"payungku-returns/internal/repository"
)

// Schema:
//
//	CREATE TABLE resume_cache (
//	    device_id          TEXT PRIMARY KEY,
//	    return_location_id TEXT NOT NULL DEFAULT '',
//	    rent_token         TEXT NOT NULL,
//	    updated_on         TIMESTAMPTZ NOT NULL
//	);
type resumeCacheRepository struct {
	db *sql.DB
}

func NewResumeCacheRepository(db *sql.DB) repository.ResumeCacheRepository {
	return &resumeCacheRepository{db: db}
}

func (r *resumeCacheRepository) Get(ctx context.Context, deviceID string) (*domain.ResumeState, error) {
	query := `SELECT device_id, return_location_id, rent_token, updated_on
	          FROM resume_cache WHERE device_id = $1`
	logger.DatabaseCall("SELECT", "resume_cache", "deviceID", deviceID)

	var state domain.ResumeState
	err := r.db.QueryRowContext(ctx, query, deviceID).
		Scan(&state.DeviceID, &state.ReturnLocationID, &state.RentToken, &state.UpdatedOn)
	if errors.Is(err, sql.ErrNoRows) {
		logger.DatabaseResult("SELECT", 0, nil, "deviceID", deviceID)
		return nil, nil
	}
	logger.DatabaseResult("SELECT", 1, err, "deviceID", deviceID)
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *resumeCacheRepository) Upsert(ctx context.Context, state *domain.ResumeState) error {
	query := `INSERT INTO resume_cache (device_id, return_location_id, rent_token, updated_on)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (device_id)
	          DO UPDATE SET return_location_id = $2, rent_token = $3, updated_on = $4`
	logger.DatabaseCall("UPSERT", "resume_cache", "deviceID", state.DeviceID)

	now := time.Now().UTC()
	state.UpdatedOn = now
	_, err := r.db.ExecContext(ctx, query, state.DeviceID, state.ReturnLocationID, state.RentToken, now)
	logger.DatabaseResult("UPSERT", 1, err, "deviceID", state.DeviceID)
	return err
}

func (r *resumeCacheRepository) Delete(ctx context.Context, deviceID string) error {
	query := `DELETE FROM resume_cache WHERE device_id = $1`
	_, err := r.db.ExecContext(ctx, query, deviceID)
	return err
}

func (r *resumeCacheRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM resume_cache WHERE updated_on < $1`
	logger.DatabaseCall("DELETE", "resume_cache", "cutoff", cutoff)

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		logger.DatabaseResult("DELETE", 0, err)
		return 0, err
	}
	rows, err := result.RowsAffected()
	logger.DatabaseResult("DELETE", rows, err)
	return rows, err
}
