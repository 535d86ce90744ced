// Package worker consumes inbound lead jobs from a queue, runs them through
// the agent and delivers the replies.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/realty-ai-agent/internal/agent"
	"github.com/wolfman30/realty-ai-agent/internal/messaging"
)

// Queue is the transport jobs travel on. SQSQueue and MemoryQueue
// implement it.
type Queue interface {
	Send(ctx context.Context, body string, delay time.Duration) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Message is one received queue entry.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Kind names the work a job carries.
type Kind string

const (
	KindNewLead  Kind = "new_lead"
	KindMessage  Kind = "message"
	KindOutbound Kind = "outbound"
)

var ErrInvalidJob = errors.New("worker: invalid job")

// Job is the queue payload.
type Job struct {
	ID       string                     `json:"id"`
	Kind     Kind                       `json:"kind"`
	NewLead  *agent.NewLeadRequest      `json:"new_lead,omitempty"`
	Message  *agent.MessageRequest      `json:"message,omitempty"`
	Outbound *messaging.OutboundMessage `json:"outbound,omitempty"`

	// SkipCompliance lets opt-out confirmations through the send check.
	SkipCompliance bool      `json:"skip_compliance,omitempty"`
	NotBefore      time.Time `json:"not_before,omitzero"`
	Attempt        int       `json:"attempt,omitempty"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

// LeadID is the key jobs are serialized on.
func (j Job) LeadID() string {
	switch {
	case j.NewLead != nil:
		return j.NewLead.Lead.ID
	case j.Message != nil:
		return j.Message.Lead.ID
	case j.Outbound != nil:
		return j.Outbound.LeadID
	}
	return ""
}

func (j Job) validate() error {
	var ok bool
	switch j.Kind {
	case KindNewLead:
		ok = j.NewLead != nil && j.NewLead.Lead.ID != ""
	case KindMessage:
		ok = j.Message != nil && j.Message.Lead.ID != ""
	case KindOutbound:
		ok = j.Outbound != nil
	}
	if !ok {
		return fmt.Errorf("%w: kind %q", ErrInvalidJob, j.Kind)
	}
	return nil
}

func encodeJob(job Job) (Job, string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return Job{}, "", fmt.Errorf("worker: encode job: %w", err)
	}
	return job, string(body), nil
}

func decodeJob(body string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return Job{}, fmt.Errorf("worker: decode job: %w", err)
	}
	if err := job.validate(); err != nil {
		return Job{}, err
	}
	return job, nil
}
