// Package tasks runs background work for server mode on an asynq
// queue: ahead-of-time protocol compilation to warm the cache, and
// periodic archive pruning.
package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
)

// Queue names, by priority.
const (
	QueueCompile     = "compile"
	QueueMaintenance = "maintenance"
)

// Config holds queue configuration.
type Config struct {
	// Redis connection settings. asynq owns its own connection; the
	// compilation cache may share the same instance under a different
	// key prefix.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Concurrency is the worker count.
	Concurrency int

	// Queues maps queue names to priorities.
	Queues map[string]int

	// ShutdownTimeout bounds draining on Stop.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the default queue configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:       "localhost:6379",
		Concurrency:     4,
		Queues:          map[string]int{QueueCompile: 5, QueueMaintenance: 1},
		ShutdownTimeout: 30 * time.Second,
	}
}

// Queue wraps the asynq client and server pair.
type Queue struct {
	client    *asynq.Client
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
}

// New creates a queue manager.
func New(cfg Config) *Queue {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      cfg.Queues,
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			delay := time.Duration(1<<uint(n)) * time.Second
			if delay > 10*time.Minute {
				delay = 10 * time.Minute
			}
			return delay
		},
		ShutdownTimeout: cfg.ShutdownTimeout,
	})

	return &Queue{
		client:    asynq.NewClient(redisOpt),
		server:    server,
		scheduler: asynq.NewScheduler(redisOpt, nil),
		mux:       asynq.NewServeMux(),
		logger:    slog.Default().With("component", "tasks"),
	}
}

// Handle registers a handler for a task type.
func (q *Queue) Handle(taskType string, handler func(context.Context, *asynq.Task) error) {
	q.mux.HandleFunc(taskType, handler)
}

// Enqueue submits a task for processing.
func (q *Queue) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return q.client.EnqueueContext(ctx, task, opts...)
}

// Schedule registers a recurring task by cron expression.
func (q *Queue) Schedule(cronSpec string, task *asynq.Task, opts ...asynq.Option) (string, error) {
	return q.scheduler.Register(cronSpec, task, opts...)
}

// Start launches the worker server and scheduler.
func (q *Queue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return nil
	}

	go func() {
		if err := q.scheduler.Run(); err != nil {
			q.logger.Error("task scheduler stopped", "error", err)
		}
	}()
	go func() {
		if err := q.server.Run(q.mux); err != nil {
			q.logger.Error("task server stopped", "error", err)
		}
	}()

	q.running = true
	return nil
}

// Stop drains workers and closes the client.
func (q *Queue) Stop() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return nil
	}

	q.scheduler.Shutdown()
	q.server.Shutdown()
	if err := q.client.Close(); err != nil {
		return err
	}
	q.running = false
	return nil
}
