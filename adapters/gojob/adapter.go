package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bagelhq/rwa-engine/adapters/gologger"
	"github.com/bagelhq/rwa-engine/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

const JobIDSweep = "engine.sweep"

// SweepService is the slice of the engine the queue worker needs.
type SweepService interface {
	RunSweepOnce(ctx context.Context) (core.SweepResult, error)
}

// RetryPolicy bounds nack behavior so a poisoned sweep message cannot loop
// through the queue forever.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces the retry bounds for a nack at the given attempt.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// SweepMessage builds the execution message for one maintenance pass. The
// idempotency key collapses duplicate schedules of the same tick.
func SweepMessage(requestedAt time.Time, idempotencyKey string) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID: JobIDSweep,
		Parameters: map[string]any{
			"requested_at": requestedAt.UTC().Format(time.RFC3339),
		},
		IdempotencyKey: strings.TrimSpace(idempotencyKey),
	}
}

type SweepEnqueuer struct {
	enqueuer queue.Enqueuer
	nowFn    func() time.Time
}

func NewSweepEnqueuer(enqueuer queue.Enqueuer) *SweepEnqueuer {
	return &SweepEnqueuer{enqueuer: enqueuer, nowFn: time.Now}
}

func (e *SweepEnqueuer) EnqueueSweep(ctx context.Context, idempotencyKey string) error {
	if e == nil || e.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	now := time.Now()
	if e.nowFn != nil {
		now = e.nowFn()
	}
	return e.enqueuer.Enqueue(ctx, SweepMessage(now, idempotencyKey))
}

// SweepWorker drains sweep messages from a queue and runs the engine
// maintenance pass for each one.
type SweepWorker struct {
	service  SweepService
	dequeuer queue.Dequeuer
	policy   RetryPolicy
	logger   glog.Logger
}

func NewSweepWorker(service SweepService, dequeuer queue.Dequeuer, policy RetryPolicy, logger glog.Logger) (*SweepWorker, error) {
	if service == nil {
		return nil, fmt.Errorf("gojob: sweep service is required")
	}
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	_, resolved := gologger.ResolveComponent("sweep-worker", nil, logger)
	return &SweepWorker{
		service:  service,
		dequeuer: dequeuer,
		policy:   policy,
		logger:   resolved,
	}, nil
}

// Run consumes messages until the context is canceled.
func (w *SweepWorker) Run(ctx context.Context) error {
	if w == nil || w.dequeuer == nil {
		return fmt.Errorf("gojob: sweep worker is not configured")
	}
	for {
		delivery, err := w.dequeuer.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("sweep dequeue failed", "error", err)
			continue
		}
		w.handle(ctx, delivery)
	}
}

func (w *SweepWorker) handle(ctx context.Context, delivery queue.Delivery) {
	if delivery == nil {
		return
	}
	message := delivery.Message()
	if message == nil || message.JobID != JobIDSweep {
		jobID := ""
		if message != nil {
			jobID = message.JobID
		}
		w.logger.Warn("discarding message for unknown job", "job_id", jobID)
		_ = delivery.Nack(ctx, queue.NackOptions{
			DeadLetter: true,
			Reason:     "unknown job id",
		})
		return
	}

	result, err := w.service.RunSweepOnce(ctx)
	if err != nil {
		w.logger.Error("sweep execution failed", "error", err)
		_ = delivery.Nack(ctx, w.policy.NormalizeAttempt(queue.NackOptions{
			Requeue: true,
			Reason:  err.Error(),
		}, 1))
		return
	}
	if result.ExpiredRequests > 0 || result.DefaultedLoans > 0 {
		w.logger.Info("sweep completed",
			"expired_requests", result.ExpiredRequests,
			"defaulted_loans", result.DefaultedLoans,
		)
	}
	if err := delivery.Ack(ctx); err != nil {
		w.logger.Error("sweep ack failed", "error", err)
	}
}

// LoggingHook surfaces queue worker lifecycle events through the engine
// logger.
type LoggingHook struct {
	logger glog.Logger
}

func NewLoggingHook(logger glog.Logger) *LoggingHook {
	_, resolved := gologger.ResolveComponent("queue-hook", nil, logger)
	return &LoggingHook{logger: resolved}
}

func (h *LoggingHook) OnStart(_ context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.logger.Debug("job started", "job_id", eventJobID(event), "attempt", event.Attempt)
}

func (h *LoggingHook) OnSuccess(_ context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.logger.Debug("job succeeded", "job_id", eventJobID(event), "duration", event.Duration)
}

func (h *LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.logger.Error("job failed", "job_id", eventJobID(event), "attempt", event.Attempt, "error", event.Err)
}

func (h *LoggingHook) OnRetry(_ context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.logger.Warn("job retrying", "job_id", eventJobID(event), "attempt", event.Attempt, "delay", event.Delay)
}

func eventJobID(event worker.Event) string {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message == nil {
		return ""
	}
	return message.JobID
}

var _ worker.Hook = (*LoggingHook)(nil)
