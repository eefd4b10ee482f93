package worker

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"documind-backend/internal/model"
	"documind-backend/internal/platform/logger"
)

type recordingAck struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *recordingAck) Ack(uint64, bool) error { a.acked = true; return nil }

func (a *recordingAck) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

func (a *recordingAck) Reject(_ uint64, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

type stubPurger struct {
	err  error
	jobs []model.CleanupJob
}

func (p *stubPurger) Purge(_ context.Context, job model.CleanupJob) error {
	p.jobs = append(p.jobs, job)
	return p.err
}

func TestHandleAcksPurgedJob(t *testing.T) {
	purger := &stubPurger{}
	w := NewCleanupWorker(nil, purger, "q", logger.Nop())
	ack := &recordingAck{}

	w.handle(context.Background(), amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		Body:         []byte(`{"document_id":"doc-1","object_key":"documents/u/doc-1.pdf","reason":"deleted"}`),
	})

	if !ack.acked || ack.nacked {
		t.Fatalf("unexpected ack state %+v", ack)
	}
	if len(purger.jobs) != 1 || purger.jobs[0].ObjectKey != "documents/u/doc-1.pdf" {
		t.Fatalf("unexpected jobs %+v", purger.jobs)
	}
}

func TestHandleRequeuesOnce(t *testing.T) {
	cases := []struct {
		redelivered bool
		wantRequeue bool
	}{
		{redelivered: false, wantRequeue: true},
		{redelivered: true, wantRequeue: false},
	}
	for _, tc := range cases {
		w := NewCleanupWorker(nil, &stubPurger{err: errors.New("qdrant down")}, "q", logger.Nop())
		ack := &recordingAck{}
		w.handle(context.Background(), amqp.Delivery{
			Acknowledger: ack,
			DeliveryTag:  1,
			Redelivered:  tc.redelivered,
			Body:         []byte(`{"document_id":"doc-1"}`),
		})
		if !ack.nacked || ack.requeue != tc.wantRequeue {
			t.Fatalf("redelivered=%v: got=%+v want requeue=%v", tc.redelivered, ack, tc.wantRequeue)
		}
	}
}

func TestHandleDropsGarbage(t *testing.T) {
	purger := &stubPurger{}
	w := NewCleanupWorker(nil, purger, "q", logger.Nop())
	ack := &recordingAck{}

	w.handle(context.Background(), amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte(`not json`)})

	if !ack.nacked || ack.requeue || len(purger.jobs) != 0 {
		t.Fatalf("garbage not dropped: ack=%+v jobs=%d", ack, len(purger.jobs))
	}
}
