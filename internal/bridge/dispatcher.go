package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sonyccd/rarsms/internal/aprs"
	"github.com/sonyccd/rarsms/internal/store"
)

// Default dispatcher intervals.
const (
	DefaultPollInterval = 10 * time.Second
	DefaultSendDelay    = 2 * time.Second
)

// Dispatcher drains the outbound delivery queue: it polls the record store
// for pending messages and transmits them over the session, marking each
// job delivered or failed. Polling keeps the connector decoupled from
// whatever produced the job; the inter-message delay respects the shared,
// low-bandwidth radio network.
type Dispatcher struct {
	session      Transmitter
	store        RecordStore
	log          *logrus.Logger
	pollInterval time.Duration
	sendDelay    time.Duration
	stats        *Stats
}

// DispatcherOpts holds parameters for creating a Dispatcher.
type DispatcherOpts struct {
	Session      Transmitter
	Store        RecordStore
	Logger       *logrus.Logger
	PollInterval time.Duration // defaults to DefaultPollInterval
	SendDelay    time.Duration // defaults to DefaultSendDelay
	Stats        *Stats        // optional
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts DispatcherOpts) (*Dispatcher, error) {
	if opts.Session == nil {
		return nil, fmt.Errorf("bridge: dispatcher: session is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("bridge: dispatcher: store is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("bridge: dispatcher: logger is required")
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	delay := opts.SendDelay
	if delay <= 0 {
		delay = DefaultSendDelay
	}
	stats := opts.Stats
	if stats == nil {
		stats = NewStats()
	}
	return &Dispatcher{
		session:      opts.Session,
		store:        opts.Store,
		log:          opts.Logger,
		pollInterval: poll,
		sendDelay:    delay,
		stats:        stats,
	}, nil
}

// Run polls on the configured interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.RunCycle(ctx)
		}
	}
}

// RunCycle runs one poll cycle. The whole cycle is skipped while the
// session is down — jobs stay pending for the next cycle, nothing queues
// locally.
func (d *Dispatcher) RunCycle(ctx context.Context) {
	if !d.session.Connected() {
		return
	}

	jobs, err := d.store.GetPendingMessages(ctx)
	if err != nil {
		d.log.WithError(err).Warn("Failed to get pending messages")
		return
	}

	for i, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		d.deliver(ctx, job)

		// Pace consecutive transmissions to avoid flooding the network.
		if i < len(jobs)-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.sendDelay):
			}
		}
	}
}

// deliver attempts one job and advances it to a terminal status. A job is
// never re-queued here: delivered and failed are final.
func (d *Dispatcher) deliver(ctx context.Context, job store.PendingMessage) {
	target := job.TargetCallsign()

	if !aprs.ValidContent(job.Content) {
		d.log.WithFields(logrus.Fields{
			"message_id":     job.ID,
			"correlation_id": job.CorrelationID,
		}).Warn("Invalid message content, marking as failed")
		d.markFailed(ctx, job, store.DeliveryMetadata{Error: "invalid content"})
		return
	}

	content := aprs.TruncateForNetwork(aprs.SanitizeContent(job.Content), aprs.MaxMessageLength)
	aprsMessageID := fmt.Sprintf("%d", time.Now().Unix()%10000)

	if err := d.session.SendMessage(target, content, aprsMessageID); err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{
			"message_id":     job.ID,
			"target":         target,
			"correlation_id": job.CorrelationID,
		}).Error("Failed to send APRS message")
		d.markFailed(ctx, job, store.DeliveryMetadata{
			Error:            err.Error(),
			APRSMessageID:    aprsMessageID,
			TruncatedContent: content,
		})
		return
	}

	d.log.WithFields(logrus.Fields{
		"message_id":      job.ID,
		"target":          target,
		"correlation_id":  job.CorrelationID,
		"aprs_message_id": aprsMessageID,
	}).Info("Successfully sent APRS message")
	d.stats.AddDelivered()

	if err := d.store.UpdateMessageStatus(ctx, job.ID, "delivered", store.DeliveryMetadata{
		APRSMessageID:    aprsMessageID,
		TruncatedContent: content,
		DeliveryMethod:   "aprs-is",
	}); err != nil {
		d.log.WithError(err).Warn("Failed to update message status")
	}

	if err := d.store.LogEvent(ctx, "info", "aprs", "message",
		fmt.Sprintf("Message delivered to %s via APRS", target),
		map[string]any{
			"message_id":      job.ID,
			"target_callsign": target,
			"aprs_message_id": aprsMessageID,
			"content_length":  len(content),
		}, job.CorrelationID); err != nil {
		d.log.WithError(err).Warn("Failed to log delivery event")
	}
}

// markFailed records a terminal failure for a job.
func (d *Dispatcher) markFailed(ctx context.Context, job store.PendingMessage, meta store.DeliveryMetadata) {
	d.stats.AddFailed()
	if err := d.store.UpdateMessageStatus(ctx, job.ID, "failed", meta); err != nil {
		d.log.WithError(err).Warn("Failed to update message status")
	}
}
