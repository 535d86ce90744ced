package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/realty-ai-agent/internal/agent"
	"github.com/wolfman30/realty-ai-agent/internal/intent"
	"github.com/wolfman30/realty-ai-agent/internal/messaging"
	"github.com/wolfman30/realty-ai-agent/internal/messaging/compliance"
	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

var tracer = otel.Tracer("realty/worker")

// Processor runs a lead turn through the agent. agent.Service satisfies it.
type Processor interface {
	ProcessMessage(ctx context.Context, req agent.MessageRequest) *agent.Response
	ProcessNewLead(ctx context.Context, req agent.NewLeadRequest) *agent.Response
}

// Sender delivers a reply. messaging.Gateway satisfies it.
type Sender interface {
	Send(ctx context.Context, msg messaging.OutboundMessage) (messaging.Receipt, error)
}

// SendChecker re-checks SMS compliance right before a delayed reply leaves.
type SendChecker interface {
	CheckSendAllowed(ctx context.Context, phone, personID string) (compliance.Result, error)
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	maxAttempts      int
	retryBaseDelay   time.Duration
	maxReplyDelay    time.Duration
	quietHours       compliance.QuietHours
	checker          SendChecker
	handoffEmail     string
	now              func() time.Time
}

// WorkerOption customizes the worker.
type WorkerOption func(*workerConfig)

const (
	defaultWorkerCount    = 2
	defaultWaitSeconds    = 2
	defaultBatchSize      = 5
	maxWaitSeconds        = 20
	maxReceiveBatchSize   = 10
	deleteTimeoutSeconds  = 5
	defaultMaxAttempts    = 5
	defaultRetryBaseDelay = 30 * time.Second
	maxRetryDelay         = maxSQSDelay
)

// WithWorkerCount sets how many receive loops run.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait, capped at 20s.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		cfg.receiveWaitSecs = min(seconds, maxWaitSeconds)
	}
}

// WithReceiveBatchSize sets messages per receive, capped at 10.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		cfg.receiveBatchSize = min(size, maxReceiveBatchSize)
	}
}

// WithSendRetries bounds delivery attempts and sets the first retry delay.
func WithSendRetries(maxAttempts int, baseDelay time.Duration) WorkerOption {
	return func(cfg *workerConfig) {
		if maxAttempts > 0 {
			cfg.maxAttempts = maxAttempts
		}
		if baseDelay > 0 {
			cfg.retryBaseDelay = baseDelay
		}
	}
}

// WithMaxReplyDelay caps the per-agent response delay.
func WithMaxReplyDelay(d time.Duration) WorkerOption {
	return func(cfg *workerConfig) {
		if d >= 0 {
			cfg.maxReplyDelay = d
		}
	}
}

// WithQuietHours parks new-lead SMS outreach until the window closes.
func WithQuietHours(q compliance.QuietHours) WorkerOption {
	return func(cfg *workerConfig) { cfg.quietHours = q }
}

func WithSendChecker(c SendChecker) WorkerOption {
	return func(cfg *workerConfig) {
		if c != nil {
			cfg.checker = c
		}
	}
}

// WithHandoffAlerts emails the human agent whenever a lead is handed off.
func WithHandoffAlerts(email string) WorkerOption {
	return func(cfg *workerConfig) { cfg.handoffEmail = strings.TrimSpace(email) }
}

func WithClock(now func() time.Time) WorkerOption {
	return func(cfg *workerConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// Worker consumes lead jobs, runs them through the agent and delivers the
// replies. Jobs for the same lead never run concurrently.
type Worker struct {
	processor Processor
	queue     Queue
	sender    Sender
	locks     *keyedMutex
	logger    *logging.Logger
	cfg       workerConfig
	wg        sync.WaitGroup
}

func NewWorker(processor Processor, queue Queue, sender Sender, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if processor == nil {
		panic("worker: processor cannot be nil")
	}
	if queue == nil {
		panic("worker: queue cannot be nil")
	}
	if sender == nil {
		panic("worker: sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		maxAttempts:      defaultMaxAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		maxReplyDelay:    maxSQSDelay,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{
		processor: processor,
		queue:     queue,
		sender:    sender,
		locks:     newKeyedMutex(),
		logger:    logger.WithComponent("worker"),
		cfg:       cfg,
	}
}

// Start launches the receive loops. They stop when ctx is done.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

// handleMessage runs one job. The queue entry is deleted unless the job
// could not be rescheduled, in which case visibility timeout redelivers it.
func (w *Worker) handleMessage(ctx context.Context, msg Message) {
	job, err := decodeJob(msg.Body)
	if err != nil {
		w.logger.Error("failed to decode job", "error", err, "message_id", msg.ID)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	ctx, span := tracer.Start(ctx, "worker.job")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.kind", string(job.Kind)),
		attribute.Int("job.attempt", job.Attempt),
	)

	if err := w.handleJob(ctx, job); err != nil {
		span.RecordError(err)
		w.logger.Error("job failed; leaving for redelivery", "error", err, "job_id", job.ID, "kind", job.Kind)
		return
	}
	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

func (w *Worker) handleJob(ctx context.Context, job Job) error {
	now := w.cfg.now()
	if job.NotBefore.After(now) {
		return w.requeue(ctx, job, job.NotBefore.Sub(now))
	}

	unlock := w.locks.Lock(job.LeadID())
	defer unlock()

	switch job.Kind {
	case KindNewLead:
		return w.handleNewLead(ctx, job, now)
	case KindMessage:
		resp := w.processor.ProcessMessage(ctx, *job.Message)
		w.scheduleReply(ctx, job.Message.Lead, resp)
		return nil
	case KindOutbound:
		return w.deliver(ctx, job)
	}
	return fmt.Errorf("%w: kind %q", ErrInvalidJob, job.Kind)
}

func (w *Worker) handleNewLead(ctx context.Context, job Job, now time.Time) error {
	req := *job.NewLead
	if req.Channel != agent.ChannelEmail && w.cfg.quietHours.Suppress(now, compliance.PurposeOutreach) {
		job.NotBefore = w.cfg.quietHours.NextAllowed(now)
		w.logger.Info("new lead outreach parked for quiet hours", "lead_id", req.Lead.ID, "until", job.NotBefore)
		return w.requeue(ctx, job, job.NotBefore.Sub(now))
	}
	resp := w.processor.ProcessNewLead(ctx, req)
	w.scheduleReply(ctx, req.Lead, resp)
	return nil
}

// scheduleReply queues the agent's reply to leave after the configured
// response delay. If queueing fails the reply is sent at once.
func (w *Worker) scheduleReply(ctx context.Context, lead agent.LeadProfile, resp *agent.Response) {
	if resp == nil {
		return
	}
	if resp.ShouldHandoff {
		w.alertHandoff(ctx, lead, resp)
	}
	if resp.Result == agent.ResultSkipped || resp.Result == agent.ResultComplianceBlocked {
		return
	}
	if strings.TrimSpace(resp.ResponseText) == "" {
		return
	}

	out, ok := replyFor(lead, resp)
	if !ok {
		w.logger.Warn("no deliverable address for reply", "lead_id", lead.ID, "channel", resp.Channel)
		return
	}
	job := Job{Kind: KindOutbound, Outbound: &out}
	// Opt-out confirmations must reach a number that is now opted out.
	job.SkipCompliance = resp.DetectedIntent == intent.OptOut
	delay := min(time.Duration(resp.ResponseDelaySeconds)*time.Second, w.cfg.maxReplyDelay)
	if _, err := enqueue(ctx, w.queue, job, w.cfg.now(), delay); err != nil {
		w.logger.Warn("failed to queue reply; sending now", "error", err, "lead_id", lead.ID)
		if err := w.deliver(ctx, job); err != nil {
			w.logger.Error("reply dropped", "error", err, "lead_id", lead.ID)
		}
	}
}

func replyFor(lead agent.LeadProfile, resp *agent.Response) (messaging.OutboundMessage, bool) {
	out := messaging.OutboundMessage{
		LeadID: lead.ID,
		ToName: strings.TrimSpace(lead.FirstName + " " + lead.LastName),
		Body:   resp.ResponseText,
	}
	switch resp.Channel {
	case agent.ChannelSMS, "":
		out.Channel = messaging.ChannelSMS
		out.To = lead.Phone
	case agent.ChannelEmail:
		out.Channel = messaging.ChannelEmail
		out.To = lead.Email
	default:
		return out, false
	}
	return out, strings.TrimSpace(out.To) != ""
}

// deliver sends an outbound job, retrying transient failures with
// exponential backoff until maxAttempts.
func (w *Worker) deliver(ctx context.Context, job Job) error {
	out := *job.Outbound
	if out.Channel == messaging.ChannelSMS && w.cfg.checker != nil && !job.SkipCompliance {
		res, err := w.cfg.checker.CheckSendAllowed(ctx, out.To, "")
		if err != nil {
			return w.retry(ctx, job, fmt.Errorf("worker: compliance check: %w", err))
		}
		if !res.Allowed() {
			w.logger.Info("reply suppressed by compliance", "lead_id", out.LeadID, "status", res.Status, "reason", res.Reason)
			return nil
		}
	}

	receipt, err := w.sender.Send(ctx, out)
	if err != nil {
		if errors.Is(err, messaging.ErrUnsupportedChannel) ||
			errors.Is(err, messaging.ErrMissingRecipient) ||
			errors.Is(err, messaging.ErrEmptyBody) {
			w.logger.Error("reply undeliverable", "error", err, "lead_id", out.LeadID, "channel", out.Channel)
			return nil
		}
		return w.retry(ctx, job, err)
	}
	w.logger.Info("reply delivered", "lead_id", out.LeadID, "channel", receipt.Channel, "provider_id", receipt.ProviderID)
	return nil
}

func (w *Worker) retry(ctx context.Context, job Job, cause error) error {
	if job.Attempt+1 >= w.cfg.maxAttempts {
		w.logger.Error("giving up on reply", "error", cause, "lead_id", job.LeadID(), "attempts", job.Attempt+1)
		return nil
	}
	delay := w.nextDelay(job.Attempt)
	w.logger.Warn("reply send failed; retrying", "error", cause, "lead_id", job.LeadID(), "attempt", job.Attempt+1, "delay", delay)
	job.Attempt++
	return w.requeue(ctx, job, delay)
}

func (w *Worker) nextDelay(attempts int) time.Duration {
	delay := w.cfg.retryBaseDelay * time.Duration(1<<attempts)
	if delay <= 0 || delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

func (w *Worker) requeue(ctx context.Context, job Job, delay time.Duration) error {
	if _, err := enqueue(ctx, w.queue, job, w.cfg.now(), delay); err != nil {
		return fmt.Errorf("worker: requeue job %s: %w", job.ID, err)
	}
	return nil
}

func (w *Worker) alertHandoff(ctx context.Context, lead agent.LeadProfile, resp *agent.Response) {
	if w.cfg.handoffEmail == "" {
		return
	}
	name := strings.TrimSpace(lead.FirstName + " " + lead.LastName)
	if name == "" {
		name = lead.ID
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Lead %s needs a human follow-up.\n\n", name)
	fmt.Fprintf(&b, "Reason: %s\n", resp.HandoffReason)
	fmt.Fprintf(&b, "Score: %d\n", resp.LeadScore)
	fmt.Fprintf(&b, "Last intent: %s\n", resp.DetectedIntent)
	if lead.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", lead.Phone)
	}
	if lead.Email != "" {
		fmt.Fprintf(&b, "Email: %s\n", lead.Email)
	}
	job := Job{
		Kind: KindOutbound,
		Outbound: &messaging.OutboundMessage{
			LeadID:  lead.ID,
			Channel: messaging.ChannelEmail,
			To:      w.cfg.handoffEmail,
			Subject: "Lead handoff: " + name,
			Body:    b.String(),
		},
	}
	if _, err := enqueue(ctx, w.queue, job, w.cfg.now(), 0); err != nil {
		w.logger.Error("failed to queue handoff alert", "error", err, "lead_id", lead.ID)
	}
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete job", "error", err)
	}
}
