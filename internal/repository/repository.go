package repository

import (
	"context"
	"time"

	"payungku-returns/internal/domain"
)

// ResumeCacheRepository persists the per-device resume cache: the chosen
// return location and the active rent token, kept only so the return flow
// can resume after a page reload. The core rental API stays the source of
// truth for the rental itself.
type ResumeCacheRepository interface {
	Get(ctx context.Context, deviceID string) (*domain.ResumeState, error)
	Upsert(ctx context.Context, state *domain.ResumeState) error
	Delete(ctx context.Context, deviceID string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
