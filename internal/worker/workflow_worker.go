package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"docinsight/internal/app"
	"docinsight/internal/model"
)

type JobRunner interface {
	Execute(ctx context.Context, job app.WorkflowJob) (*model.WorkflowRun, error)
}

type LagObserver interface {
	ObserveQueueLag(lag time.Duration)
}

// WorkflowWorker consumes queued workflow jobs and runs them one at a time per
// consumer goroutine. Failed runs are terminal and are acked; only payloads
// that cannot be decoded are rejected.
type WorkflowWorker struct {
	conn      *amqp.Connection
	runner    JobRunner
	lag       LagObserver
	queueName string
	consumers int
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorkflowWorker(conn *amqp.Connection, runner JobRunner, lag LagObserver, queueName string, consumers int, logger *zap.Logger) *WorkflowWorker {
	if consumers <= 0 {
		consumers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowWorker{
		conn:      conn,
		runner:    runner,
		lag:       lag,
		queueName: queueName,
		consumers: consumers,
		logger:    logger,
	}
}

func (w *WorkflowWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	if err := ch.Qos(w.consumers, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	var consumers sync.WaitGroup
	for i := 0; i < w.consumers; i++ {
		consumers.Add(1)
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer consumers.Done()
			w.consume(workerCtx, deliveries)
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		consumers.Wait()
		_ = ch.Close()
	}()

	w.logger.Info("workflow worker started",
		zap.String("queue", w.queueName),
		zap.Int("consumers", w.consumers),
	)
	return nil
}

func (w *WorkflowWorker) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			if w.handle(ctx, d.Body) {
				_ = d.Ack(false)
			} else {
				_ = d.Nack(false, false)
			}
		}
	}
}

// handle runs one job and reports whether the delivery should be acked.
func (w *WorkflowWorker) handle(ctx context.Context, body []byte) bool {
	var job app.WorkflowJob
	if err := json.Unmarshal(body, &job); err != nil || job.RunID == "" {
		w.logger.Error("worker decode job failed", zap.Error(err), zap.Int("bytes", len(body)))
		return false
	}

	if w.lag != nil && !job.SubmittedAt.IsZero() {
		w.lag.ObserveQueueLag(time.Since(job.SubmittedAt))
	}

	started := time.Now()
	run, err := w.runner.Execute(ctx, job)
	fields := []zap.Field{
		zap.String("run_id", job.RunID),
		zap.Uint("user_id", job.UserID),
		zap.Duration("elapsed", time.Since(started)),
	}
	if run != nil {
		fields = append(fields, zap.String("state", string(run.State)))
	}

	switch {
	case err == nil:
		w.logger.Info("workflow run finished", fields...)
	case errors.Is(err, app.ErrInvalidTransition):
		w.logger.Warn("workflow job skipped", append(fields, zap.Error(err))...)
	default:
		w.logger.Error("workflow run failed", append(fields, zap.Error(err))...)
	}
	return true
}

func (w *WorkflowWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
