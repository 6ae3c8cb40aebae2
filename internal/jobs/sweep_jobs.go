package jobs

import (
	"context"
	"time"

	"payungku-returns/internal/logger"
)

// SweepDeadSessions evicts closed sessions and sessions idle past the TTL.
func (jr *JobRunner) SweepDeadSessions() {
	jr.runWithRecovery("SweepDeadSessions", func() {
		evicted := jr.sessions.SweepDead(time.Now())
		if evicted > 0 {
			logger.Info("Evicted dead return sessions", "count", evicted)
		}
	})
}

// PruneResumeCache deletes resume-cache rows older than the retention window.
func (jr *JobRunner) PruneResumeCache() {
	jr.runWithRecovery("PruneResumeCache", func() {
		retention := time.Duration(jr.config.Session.ResumeRetentionDays) * 24 * time.Hour
		cutoff := time.Now().UTC().Add(-retention)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		rows, err := jr.store.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			logger.Error("Failed to prune resume cache", "error", err)
			return
		}
		if rows > 0 {
			logger.Info("Pruned resume cache", "rows", rows, "cutoff", cutoff)
		}
	})
}
