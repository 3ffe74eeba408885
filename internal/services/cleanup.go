package services

import (
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/studio-s/auth-service/internal/models"
	"github.com/studio-s/auth-service/pkg/logger"
)

// CleanupScheduler purges expired sessions on a fixed schedule. Expiry
// is otherwise enforced passively at rotation time, so the purge only
// reclaims storage.
type CleanupScheduler struct {
	cron  *cron.Cron
	store SessionStore
	queue EventQueue
}

func NewCleanupScheduler(store SessionStore, queue EventQueue) *CleanupScheduler {
	return &CleanupScheduler{
		cron:  cron.New(),
		store: store,
		queue: queue,
	}
}

// Start registers the hourly purge job and starts the scheduler.
func (s *CleanupScheduler) Start() error {
	if _, err := s.cron.AddFunc("@hourly", s.purge); err != nil {
		return err
	}
	s.cron.Start()
	logger.Info().Msg("session cleanup scheduler started")
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *CleanupScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *CleanupScheduler) purge() {
	n, err := s.store.DeleteExpired(time.Now().UTC())
	if err != nil {
		logger.Error().Err(err).Msg("expired session purge failed")
		return
	}
	if n == 0 {
		return
	}
	logger.Info().Int64("count", n).Msg("expired sessions purged")
	if s.queue != nil {
		_ = s.queue.Publish(&SecurityEvent{
			Kind:   models.AuditSessionsPurged,
			Detail: strconv.FormatInt(n, 10) + " expired sessions deleted",
		})
	}
}
