package jobs

import (
	"payungku-returns/internal/config"
	"payungku-returns/internal/logger"
	"payungku-returns/internal/repository/postgres"
	"payungku-returns/internal/session"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	sessions *session.Manager
	store    *postgres.Store
	config   *config.Config
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(sessions *session.Manager, store *postgres.Store, cfg *config.Config) *JobRunner {
	return &JobRunner{
		sessions: sessions,
		store:    store,
		config:   cfg,
	}
}

// Config returns the runner's configuration
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	logger.Info("Starting job", "job", jobName)
	jobFunc()
	logger.Info("Job completed", "job", jobName)
}
