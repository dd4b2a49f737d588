package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
	"github.com/kirillkom/pdf-recompose/internal/infrastructure/resilience"
)

const workerQueueGroup = "workers"

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

// Queue carries job submissions on subject and progress events on
// <progressSubject>.<jobId>.
type Queue struct {
	conn            *nats.Conn
	subject         string
	progressSubject string
	executor        *resilience.Executor
}

func New(url, subject, progressSubject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("pdf-recompose"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newQueue(conn, subject, progressSubject, options.ResilienceExecutor), nil
}

func newQueue(conn *nats.Conn, subject, progressSubject string, executor *resilience.Executor) *Queue {
	return &Queue{
		conn:            conn,
		subject:         subject,
		progressSubject: strings.TrimSuffix(progressSubject, "."),
		executor:        executor,
	}
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishJobSubmitted(ctx context.Context, jobID string) error {
	call := func(context.Context) error {
		if err := q.conn.Publish(q.subject, []byte(jobID)); err != nil {
			return wrapTemporaryIfNeeded(fmt.Errorf("nats publish: %w", err))
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, resilience.OpJobPublish, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}

// PublishProgress never blocks the pipeline; failures are logged and dropped.
func (q *Queue) PublishProgress(_ context.Context, event domain.JobProgress) {
	if q.progressSubject == "" {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("progress_encode_failed", "job_id", event.JobID, "error", err)
		return
	}
	if err := q.conn.Publish(ProgressSubject(q.progressSubject, event.JobID), payload); err != nil {
		slog.Debug("progress_publish_dropped", "job_id", event.JobID, "error", err)
	}
}

// ProgressSubject is the per-job subject progress events are published on.
func ProgressSubject(base, jobID string) string {
	return strings.TrimSuffix(base, ".") + "." + jobID
}

// SubscribeJobSubmitted blocks until ctx is done, then drains in-flight jobs.
func (q *Queue) SubscribeJobSubmitted(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerQueueGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		jobID := strings.TrimSpace(string(msg.Data))
		if jobID == "" {
			slog.Warn("worker_empty_job_id", "subject", msg.Subject)
			return
		}
		if err := handler(ctx, jobID); err != nil {
			slog.Error("worker_job_failed", "job_id", jobID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionReconnecting),
		errors.Is(err, nats.ErrDisconnected):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.TemporaryKind(err)
}

func wrapTemporaryIfNeeded(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyNATSError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, "nats publish", err)
	}
	return err
}
