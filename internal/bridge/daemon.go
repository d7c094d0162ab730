package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sonyccd/rarsms/internal/backoff"
	"github.com/sonyccd/rarsms/internal/config"
	"github.com/sonyccd/rarsms/internal/store"
)

// beaconText is the periodic status beacon transmitted while connected.
const beaconText = "RARSMS online - bridging APRS to Discord"

// Daemon is the bridge supervisor. It owns the connect/listen/reconnect
// cycle, the heartbeat task, the outbound dispatcher, and the activity
// digest, and coordinates shutdown across all of them through one context.
type Daemon struct {
	session    SessionRunner
	store      RecordStore
	log        *logrus.Logger
	inbound    *Inbound
	dispatcher *Dispatcher
	policy     backoff.Policy
	stats      *Stats

	reconnectDelay    time.Duration
	heartbeatInterval time.Duration
	digestCron        string
	version           string
	server            string
	filter            string
}

// DaemonOpts holds parameters for creating a Daemon.
type DaemonOpts struct {
	Config  *config.Config
	Session SessionRunner
	Store   RecordStore
	Logger  *logrus.Logger
	Policy  backoff.Policy // zero value uses backoff defaults
	Version string
}

// NewDaemon creates a Daemon and its inbound pipeline and dispatcher.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bridge: config is required")
	}
	if opts.Session == nil {
		return nil, fmt.Errorf("bridge: session is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("bridge: store is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("bridge: logger is required")
	}

	stats := NewStats()
	cfg := opts.Config

	inbound, err := NewInbound(InboundOpts{
		Callsign: cfg.APRS.Callsign,
		Server:   cfg.APRS.Server,
		Session:  opts.Session,
		Store:    opts.Store,
		Logger:   opts.Logger,
		Stats:    stats,
	})
	if err != nil {
		return nil, err
	}

	dispatcher, err := NewDispatcher(DispatcherOpts{
		Session:      opts.Session,
		Store:        opts.Store,
		Logger:       opts.Logger,
		PollInterval: time.Duration(cfg.Bridge.PollInterval) * time.Second,
		SendDelay:    time.Duration(cfg.Bridge.SendDelay) * time.Second,
		Stats:        stats,
	})
	if err != nil {
		return nil, err
	}

	return &Daemon{
		session:           opts.Session,
		store:             opts.Store,
		log:               opts.Logger,
		inbound:           inbound,
		dispatcher:        dispatcher,
		policy:            opts.Policy,
		stats:             stats,
		reconnectDelay:    time.Duration(cfg.Bridge.ReconnectDelay) * time.Second,
		heartbeatInterval: time.Duration(cfg.Bridge.HeartbeatInterval) * time.Second,
		digestCron:        cfg.Bridge.DigestCron,
		version:           opts.Version,
		server:            cfg.APRS.Server,
		filter:            cfg.APRS.Filter,
	}, nil
}

// Run starts the bridge and blocks until ctx is cancelled. It retries the
// session with backoff, restarts the read loop after disconnection, and
// tears everything down on shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.store.UpdateSystemStatus(ctx, ServiceName, "starting", d.statusMetadata(nil)); err != nil {
		d.log.WithError(err).Warn("Failed to initialize system status")
	}

	go d.dispatcher.Run(ctx)
	go d.runDigestScheduler(ctx)

	for ctx.Err() == nil {
		err := d.policy.Retry(ctx, func() error {
			return d.session.Connect(ctx)
		}, func(attempt int, delay time.Duration, err error) {
			d.log.WithFields(logrus.Fields{
				"attempt": attempt,
				"delay":   delay,
				"error":   err,
			}).Warn("Connect failed, retrying")
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			d.log.WithError(err).Error("Failed to connect to APRS-IS after retries")
			if dbErr := d.store.UpdateSystemStatus(ctx, ServiceName, "error", d.statusMetadata(err)); dbErr != nil {
				d.log.WithError(dbErr).Warn("Failed to update error status")
			}
			if !d.waitReconnect(ctx) {
				break
			}
			continue
		}

		connected := true
		onlineMeta := d.statusMetadata(nil)
		onlineMeta.Connected = &connected
		onlineMeta.ConnectTime = time.Now().Unix()
		if err := d.store.UpdateSystemStatus(ctx, ServiceName, "online", onlineMeta); err != nil {
			d.log.WithError(err).Warn("Failed to update system status")
		}

		// The heartbeat lives for one connection only.
		hbCtx, stopHeartbeat := context.WithCancel(ctx)
		go d.runHeartbeat(hbCtx)

		d.log.Info("Starting APRS message listener")
		err = d.session.Listen(ctx, func(line string) {
			d.inbound.HandleLine(ctx, line)
		})
		stopHeartbeat()

		if err != nil {
			d.log.WithError(err).Error("APRS listener error")
			if logErr := d.store.LogEvent(ctx, "error", "aprs", "connection",
				fmt.Sprintf("APRS listener error: %s", err.Error()),
				map[string]any{"error": err.Error()}, ""); logErr != nil {
				d.log.WithError(logErr).Warn("Failed to log listener error")
			}
		}

		d.session.Disconnect()

		if ctx.Err() != nil {
			break
		}

		d.log.WithField("delay", d.reconnectDelay).Info("Waiting before reconnecting to APRS-IS")
		if !d.waitReconnect(ctx) {
			break
		}
		d.log.Info("Attempting to reconnect to APRS-IS")
	}

	d.shutdown()
	return nil
}

// waitReconnect sleeps for the reconnect delay, observing cancellation.
// Returns false when ctx was cancelled during the wait.
func (d *Daemon) waitReconnect(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d.reconnectDelay):
		return true
	}
}

// runHeartbeat transmits the status beacon and refreshes the store status
// record every interval while the session is connected.
func (d *Daemon) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(d.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !d.session.Connected() {
				continue
			}
			if err := d.session.SendBeacon(beaconText); err != nil {
				d.log.WithError(err).Warn("Failed to send heartbeat")
			} else {
				d.log.Debug("Sent heartbeat beacon")
			}

			connected := true
			meta := store.StatusMetadata{
				Connected:     &connected,
				LastHeartbeat: time.Now().Unix(),
			}
			if err := d.store.UpdateSystemStatus(ctx, ServiceName, "online", meta); err != nil {
				d.log.WithError(err).Warn("Failed to update heartbeat status")
			}
		}
	}
}

// shutdown disconnects the session and records the final offline status.
// Runs after ctx is cancelled, so the status write uses its own context.
func (d *Daemon) shutdown() {
	d.log.Info("Shutting down APRS connector")
	d.session.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	connected := false
	meta := store.StatusMetadata{
		Connected:      &connected,
		DisconnectTime: time.Now().Unix(),
		ShutdownReason: "graceful",
	}
	if err := d.store.UpdateSystemStatus(ctx, ServiceName, "offline", meta); err != nil {
		d.log.WithError(err).Warn("Failed to update shutdown status")
	}
	d.log.Info("APRS connector stopped")
}

// statusMetadata builds the base status metadata for this connector,
// optionally carrying a connect error.
func (d *Daemon) statusMetadata(err error) store.StatusMetadata {
	m := store.StatusMetadata{
		Server:   d.server,
		Callsign: d.session.Callsign(),
		Filter:   d.filter,
		Version:  d.version,
	}
	if err != nil {
		m.Error = err.Error()
		m.ErrorTime = time.Now().Unix()
	}
	return m
}
