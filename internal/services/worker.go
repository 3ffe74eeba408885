package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hibiken/asynq"

	"github.com/studio-s/auth-service/internal/config"
	"github.com/studio-s/auth-service/pkg/logger"
)

// Worker drains security events from Redis and hands them to the
// recorder. It only exists when the async queue is in use.
type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	recorder *EventRecorder
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewWorker(cfg *config.RedisConfig, recorder *EventRecorder) *Worker {
	if !cfg.Enabled {
		return nil
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		},
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error().Err(err).Str("task", task.Type()).Msg("security-event task failed")
			}),
		},
	)

	return &Worker{
		server:   server,
		mux:      asynq.NewServeMux(),
		recorder: recorder,
	}
}

// Start begins draining the queue. Safe to call once.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.mux.HandleFunc(TaskTypeSecurityEvent, w.handleSecurityEvent)

	w.running = true
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		logger.Info().Msg("security-event worker starting")
		if err := w.server.Run(w.mux); err != nil {
			logger.Error().Err(err).Msg("security-event worker stopped")
		}
	}()

	return nil
}

// Stop shuts the worker down and waits for in-flight tasks.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	w.server.Shutdown()
	w.running = false
	w.wg.Wait()
	logger.Info().Msg("security-event worker shutdown complete")
}

func (w *Worker) handleSecurityEvent(ctx context.Context, t *asynq.Task) error {
	var event SecurityEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		logger.Error().Err(err).Msg("malformed security-event payload")
		return err
	}
	return w.recorder.Record(ctx, &event)
}
