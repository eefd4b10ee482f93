package worker

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"documind-backend/internal/model"
	"documind-backend/internal/platform/logger"
	"documind-backend/internal/platform/rabbitmq"
)

// Purger removes a deleted document's vectors and stored bytes.
type Purger interface {
	Purge(ctx context.Context, job model.CleanupJob) error
}

// CleanupWorker consumes cleanup jobs. A job that fails is requeued once and
// dropped with an error log if its redelivery fails too.
type CleanupWorker struct {
	conn      *amqp.Connection
	purger    Purger
	queueName string
	log       *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCleanupWorker(conn *amqp.Connection, purger Purger, queueName string, log *logger.Logger) *CleanupWorker {
	return &CleanupWorker{
		conn:      conn,
		purger:    purger,
		queueName: queueName,
		log:       log.With("component", "CleanupWorker"),
	}
}

func (w *CleanupWorker) Start(ctx context.Context) error {
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
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker prefetch failed: %w", err)
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

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				w.handle(workerCtx, d)
			}
		}
	}()

	w.log.Info("cleanup worker started", "queue", w.queueName)
	return nil
}

func (w *CleanupWorker) handle(ctx context.Context, d amqp.Delivery) {
	job, err := rabbitmq.DecodeCleanupJob(d.Body)
	if err != nil {
		w.log.Error("drop undecodable cleanup job", "error", err)
		_ = d.Nack(false, false)
		return
	}

	if err := w.purger.Purge(ctx, job); err != nil {
		requeue := !d.Redelivered
		w.log.Error("purge document failed",
			"document_id", job.DocumentID,
			"redelivered", d.Redelivered,
			"requeue", requeue,
			"error", err,
		)
		_ = d.Nack(false, requeue)
		return
	}

	w.log.Info("document purged", "document_id", job.DocumentID, "reason", job.Reason)
	_ = d.Ack(false)
}

func (w *CleanupWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
