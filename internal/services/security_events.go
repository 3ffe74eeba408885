package services

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"github.com/studio-s/auth-service/internal/config"
	"github.com/studio-s/auth-service/internal/models"
	"github.com/studio-s/auth-service/pkg/logger"
)

const TaskTypeSecurityEvent = "auth:security_event"

// SecurityEvent is the payload recorded when the rotation engine or the
// auth endpoints observe something worth auditing.
type SecurityEvent struct {
	Kind      string `json:"kind"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// EventQueue accepts security events for recording. Publish must be
// cheap and non-blocking relative to the request path; delivery is at
// least once.
type EventQueue interface {
	Publish(event *SecurityEvent) error
	IsAsync() bool
	Close() error
}

// NewEventQueue picks the Redis-backed queue when Redis is enabled and
// reachable, otherwise records events inline.
func NewEventQueue(cfg *config.Config, db *gorm.DB) EventQueue {
	if cfg.Redis.Enabled {
		queue, err := NewAsyncEventQueue(&cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, recording security events synchronously")
			return NewSyncEventQueue(db)
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("async security-event queue initialized")
		return queue
	}
	logger.Info().Msg("sync security-event queue initialized (redis disabled)")
	return NewSyncEventQueue(db)
}

// AsyncEventQueue publishes events to Redis for the worker to drain.
type AsyncEventQueue struct {
	client *asynq.Client
}

func NewAsyncEventQueue(cfg *config.RedisConfig) (*AsyncEventQueue, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	client := asynq.NewClient(redisOpt)

	// Verify the connection up front so callers can fall back.
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()
	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncEventQueue{client: client}, nil
}

func (q *AsyncEventQueue) Publish(event *SecurityEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	info, err := q.client.Enqueue(asynq.NewTask(TaskTypeSecurityEvent, payload),
		asynq.Queue("default"),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return err
	}

	logger.Debug().Str("task_id", info.ID).Str("kind", event.Kind).Msg("security event enqueued")
	return nil
}

func (q *AsyncEventQueue) IsAsync() bool { return true }

func (q *AsyncEventQueue) Close() error { return q.client.Close() }

// SyncEventQueue writes the audit row on the calling goroutine.
type SyncEventQueue struct {
	recorder *EventRecorder
}

func NewSyncEventQueue(db *gorm.DB) *SyncEventQueue {
	return &SyncEventQueue{recorder: NewEventRecorder(db)}
}

func (q *SyncEventQueue) Publish(event *SecurityEvent) error {
	return q.recorder.Record(context.Background(), event)
}

func (q *SyncEventQueue) IsAsync() bool { return false }

func (q *SyncEventQueue) Close() error { return nil }

// EventRecorder turns security events into audit_logs rows.
type EventRecorder struct {
	db *gorm.DB
}

func NewEventRecorder(db *gorm.DB) *EventRecorder {
	return &EventRecorder{db: db}
}

func (r *EventRecorder) Record(ctx context.Context, event *SecurityEvent) error {
	row := models.AuditLog{
		Kind:      event.Kind,
		UserID:    event.UserID,
		SessionID: event.SessionID,
		ClientIP:  event.ClientIP,
		UserAgent: event.UserAgent,
		Detail:    event.Detail,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		logger.Error().Err(err).Str("kind", event.Kind).Msg("failed to record security event")
		return err
	}
	return nil
}
