package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sonyccd/rarsms/internal/aprs"
	"github.com/sonyccd/rarsms/internal/store"
)

// Inbound processes decoded packet lines from the session read loop:
// audit storage, authorization, persistence, and acknowledgement. Lines are
// handled sequentially by the single read loop, so conversation updates
// need no locking here.
type Inbound struct {
	callsign string // own callsign, uppercased
	server   string // APRS-IS server, recorded in message metadata
	session  Transmitter
	store    RecordStore
	log      *logrus.Logger
	stats    *Stats
}

// InboundOpts holds parameters for creating an Inbound pipeline.
type InboundOpts struct {
	Callsign string
	Server   string
	Session  Transmitter
	Store    RecordStore
	Logger   *logrus.Logger
	Stats    *Stats // optional
}

// NewInbound creates an Inbound pipeline.
func NewInbound(opts InboundOpts) (*Inbound, error) {
	if opts.Callsign == "" {
		return nil, fmt.Errorf("bridge: inbound: callsign is required")
	}
	if opts.Session == nil {
		return nil, fmt.Errorf("bridge: inbound: session is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("bridge: inbound: store is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("bridge: inbound: logger is required")
	}
	stats := opts.Stats
	if stats == nil {
		stats = NewStats()
	}
	return &Inbound{
		callsign: strings.ToUpper(opts.Callsign),
		server:   opts.Server,
		session:  opts.Session,
		store:    opts.Store,
		log:      opts.Logger,
		stats:    stats,
	}, nil
}

// HandleLine processes one raw packet line. Errors are logged, never
// returned: a bad packet must not take down the read loop.
func (p *Inbound) HandleLine(ctx context.Context, line string) {
	p.log.WithField("packet", line).Debug("Received APRS packet")

	// Server comments and status lines are not packets; nothing is stored
	// for them.
	if strings.HasPrefix(line, "#") {
		return
	}
	p.stats.AddPacket()

	// Audit the raw packet. Best effort — a store failure is logged and
	// processing continues.
	if err := p.auditPacket(ctx, line); err != nil {
		p.log.WithError(err).Warn("Failed to store raw packet")
	}

	msg, isMessage := aprs.ParseMessagePacket(line)
	if !isMessage {
		p.log.WithField("packet", line).Debug("Packet is not a message")
		return
	}

	// Only messages addressed to the bridge itself are acted upon.
	if msg.ToCallsign != p.callsign {
		return
	}

	p.log.WithFields(logrus.Fields{
		"from":       msg.FromCallsign,
		"content":    msg.Content,
		"message_id": msg.MessageID,
	}).Info("Received APRS message for RARSMS")

	authorized, err := p.store.IsAuthorizedMember(ctx, msg.FromCallsign)
	if err != nil {
		// A lookup failure aborts this packet only; the read loop goes on.
		p.log.WithError(err).WithField("callsign", msg.FromCallsign).
			Error("Failed to check authorization")
		return
	}

	if !authorized {
		p.handleUnauthorized(ctx, msg)
		return
	}

	p.acceptMessage(ctx, msg)
}

// auditPacket stores the raw line with a best-effort classification. Lines
// carrying the :: delimiter are classified as messages even when the full
// grammar fails to match, so the audit trail keeps near-miss packets.
func (p *Inbound) auditPacket(ctx context.Context, line string) error {
	rec := store.PacketRecord{
		RawPacket:  line,
		PacketType: string(aprs.ClassifyPacket(line)),
	}
	if msg, isMessage := aprs.ParseMessagePacket(line); isMessage {
		rec.FromCallsign = msg.FromCallsign
		rec.ToCallsign = msg.ToCallsign
	}
	return p.store.CreateAPRSPacket(ctx, rec)
}

// handleUnauthorized acknowledges protocol courtesy and records the attempt
// without persisting the message.
func (p *Inbound) handleUnauthorized(ctx context.Context, msg aprs.Message) {
	p.log.WithField("callsign", msg.FromCallsign).
		Warn("Unauthorized callsign attempted to send message")
	p.stats.AddUnauthorized()

	// ACK anyway when the packet carried an id — standard practice.
	if msg.MessageID != "" {
		if err := p.session.SendAck(msg.FromCallsign, msg.MessageID); err != nil {
			p.log.WithError(err).Warn("Failed to send ACK")
		}
	}

	if err := p.store.LogEvent(ctx, "warn", "aprs", "unauthorized",
		fmt.Sprintf("Unauthorized message from %s", msg.FromCallsign),
		map[string]any{
			"from_callsign": msg.FromCallsign,
			"content":       msg.Content,
			"raw_packet":    msg.RawPacket,
		}, ""); err != nil {
		p.log.WithError(err).Warn("Failed to log unauthorized attempt")
	}
}

// acceptMessage persists an authorized message, threads its conversation,
// and acknowledges it. Once authorization has succeeded, persistence
// failures of the conversation and log records are warnings only.
func (p *Inbound) acceptMessage(ctx context.Context, msg aprs.Message) {
	correlationID := newCorrelationID()

	userID, err := p.store.GetUserIDByCallsign(ctx, msg.FromCallsign)
	if err != nil {
		p.log.WithError(err).WithField("callsign", msg.FromCallsign).
			Warn("Failed to get user ID")
		userID = ""
	}

	rec := store.MessageRecord{
		CorrelationID: correlationID,
		FromCallsign:  msg.FromCallsign,
		FromService:   "aprs",
		ToService:     "discord",
		Content:       msg.Content,
		MessageType:   "message",
		Status:        "pending",
		User:          userID,
		Metadata: store.InboundMetadata{
			APRSMessageID: msg.MessageID,
			RawPacket:     msg.RawPacket,
			Server:        p.server,
		},
	}
	if err := p.store.CreateMessage(ctx, rec); err != nil {
		p.log.WithError(err).Error("Failed to store message")
		return
	}
	p.stats.AddAccepted()

	if err := p.store.CreateOrUpdateConversation(ctx, correlationID, userID, msg.Content); err != nil {
		p.log.WithError(err).Warn("Failed to create/update conversation")
	}

	if msg.MessageID != "" {
		if err := p.session.SendAck(msg.FromCallsign, msg.MessageID); err != nil {
			p.log.WithError(err).Warn("Failed to send ACK")
		}
	}

	if err := p.store.LogEvent(ctx, "info", "aprs", "message",
		fmt.Sprintf("Message received from %s", msg.FromCallsign),
		map[string]any{
			"correlation_id": correlationID,
			"from_callsign":  msg.FromCallsign,
			"content_length": len(msg.Content),
			"has_message_id": msg.MessageID != "",
		}, correlationID); err != nil {
		p.log.WithError(err).Warn("Failed to log message event")
	}

	p.log.WithFields(logrus.Fields{
		"from":           msg.FromCallsign,
		"correlation_id": correlationID,
	}).Info("Successfully processed APRS message")
}
