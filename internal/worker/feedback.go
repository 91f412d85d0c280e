// Package worker runs the asynchronous side of the learning loop so guardian
// writes never add latency to a user request.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const jobTimeout = 30 * time.Second

// Job is one queued guardian write.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// FeedbackDispatcher feeds jobs to a single background goroutine. The queue
// is bounded; when it is full the job is dropped with a log line rather than
// blocking the request path.
type FeedbackDispatcher struct {
	logger *slog.Logger
	jobs   chan Job

	stopOnce sync.Once
	done     chan struct{}
}

func NewFeedbackDispatcher(queueSize int, logger *slog.Logger) *FeedbackDispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &FeedbackDispatcher{
		logger: logger,
		jobs:   make(chan Job, queueSize),
		done:   make(chan struct{}),
	}
}

// Start launches the consumer goroutine.
func (d *FeedbackDispatcher) Start() {
	go d.run()
}

func (d *FeedbackDispatcher) run() {
	defer close(d.done)
	for job := range d.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		if err := job.Run(ctx); err != nil {
			d.logger.Error("feedback job failed", "job", job.Name, "error", err)
		}
		cancel()
	}
}

// Dispatch enqueues one job. Never blocks.
func (d *FeedbackDispatcher) Dispatch(job Job) {
	select {
	case d.jobs <- job:
	default:
		d.logger.Warn("feedback queue full, job dropped", "job", job.Name)
	}
}

// Stop drains the queue and waits for the consumer to finish.
func (d *FeedbackDispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.jobs)
	})
	<-d.done
}
