package bridge

import (
	"context"
	"fmt"
	"time"
)

// runDigestScheduler fires an activity digest on the configured cron
// schedule. It returns immediately when no schedule is configured.
func (d *Daemon) runDigestScheduler(ctx context.Context) {
	expr := d.digestCron
	if expr == "" {
		return
	}

	wait := nextCronDuration(expr)
	if wait <= 0 {
		d.log.WithField("cron", expr).Warn("Invalid digest cron expression, digest disabled")
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			d.fireDigest(ctx)
			if wait = nextCronDuration(expr); wait > 0 {
				timer.Reset(wait)
			} else {
				return
			}
		}
	}
}

// fireDigest writes one activity digest covering the window since the last
// one, then resets the counters. A window with no activity is suppressed.
func (d *Daemon) fireDigest(ctx context.Context) {
	snap := d.stats.Take()
	if snap.Empty() {
		return
	}

	summary := fmt.Sprintf("Activity digest: %d packets seen, %d messages accepted, %d unauthorized, %d delivered, %d failed",
		snap.PacketsSeen, snap.MessagesAccepted, snap.Unauthorized, snap.Delivered, snap.Failed)

	d.log.Info(summary)

	if err := d.store.LogEvent(ctx, "info", "aprs", "digest", summary,
		map[string]any{
			"packets_seen":      snap.PacketsSeen,
			"messages_accepted": snap.MessagesAccepted,
			"unauthorized":      snap.Unauthorized,
			"delivered":         snap.Delivered,
			"failed":            snap.Failed,
		}, ""); err != nil {
		d.log.WithError(err).Warn("Failed to log activity digest")
	}
}
