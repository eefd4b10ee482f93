package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"documind-backend/internal/model"
)

type CleanupPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewCleanupPublisher(conn *amqp.Connection, queueName string) *CleanupPublisher {
	return &CleanupPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *CleanupPublisher) PublishCleanup(ctx context.Context, job model.CleanupJob) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := declareQueue(ch, p.queueName); err != nil {
		return err
	}

	payload, err := encodeCleanupJob(job)
	if err != nil {
		return err
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish cleanup job failed: %w", err)
	}
	return nil
}

// Ping reports whether the broker connection is still open.
func (p *CleanupPublisher) Ping(_ context.Context) error {
	if p.conn == nil || p.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

func encodeCleanupJob(job model.CleanupJob) ([]byte, error) {
	if job.DocumentID == "" {
		return nil, errors.New("cleanup job has no document id")
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal cleanup job failed: %w", err)
	}
	return payload, nil
}

// DecodeCleanupJob parses a delivery body written by PublishCleanup.
func DecodeCleanupJob(body []byte) (model.CleanupJob, error) {
	var job model.CleanupJob
	if err := json.Unmarshal(body, &job); err != nil {
		return job, fmt.Errorf("decode cleanup job failed: %w", err)
	}
	if job.DocumentID == "" {
		return job, errors.New("cleanup job has no document id")
	}
	return job, nil
}
