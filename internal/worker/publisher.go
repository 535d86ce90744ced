package worker

import (
	"context"
	"time"

	"github.com/wolfman30/realty-ai-agent/internal/agent"
)

// Publisher enqueues lead work for the Worker.
type Publisher struct {
	queue Queue
	now   func() time.Time
}

func NewPublisher(queue Queue) *Publisher {
	if queue == nil {
		panic("worker: queue cannot be nil")
	}
	return &Publisher{queue: queue, now: time.Now}
}

// PublishMessage enqueues an inbound lead message and returns the job ID.
func (p *Publisher) PublishMessage(ctx context.Context, req agent.MessageRequest) (string, error) {
	return p.publish(ctx, Job{Kind: KindMessage, Message: &req}, 0)
}

// PublishNewLead enqueues first-contact outreach and returns the job ID.
func (p *Publisher) PublishNewLead(ctx context.Context, req agent.NewLeadRequest) (string, error) {
	return p.publish(ctx, Job{Kind: KindNewLead, NewLead: &req}, 0)
}

func (p *Publisher) publish(ctx context.Context, job Job, delay time.Duration) (string, error) {
	if err := job.validate(); err != nil {
		return "", err
	}
	return enqueue(ctx, p.queue, job, p.now(), delay)
}

func enqueue(ctx context.Context, queue Queue, job Job, now time.Time, delay time.Duration) (string, error) {
	job.EnqueuedAt = now.UTC()
	job, body, err := encodeJob(job)
	if err != nil {
		return "", err
	}
	if err := queue.Send(ctx, body, delay); err != nil {
		return "", err
	}
	return job.ID, nil
}
