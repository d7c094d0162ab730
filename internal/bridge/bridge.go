// Package bridge connects the APRS-IS session to the RARSMS record store:
// it authorizes and persists inbound messages, drains the outbound delivery
// queue, and supervises the connection lifecycle.
package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sonyccd/rarsms/internal/aprs"
	"github.com/sonyccd/rarsms/internal/store"
)

// ServiceName identifies this connector in store status and log records.
const ServiceName = "aprs-connector"

// RecordStore is the record store surface the bridge depends on.
// Implemented by *store.Client; mocked in tests.
type RecordStore interface {
	IsAuthorizedMember(ctx context.Context, callsign string) (bool, error)
	GetUserIDByCallsign(ctx context.Context, callsign string) (string, error)
	CreateMessage(ctx context.Context, msg store.MessageRecord) error
	CreateAPRSPacket(ctx context.Context, pkt store.PacketRecord) error
	LogEvent(ctx context.Context, level, service, eventType, message string, metadata map[string]any, correlationID string) error
	UpdateSystemStatus(ctx context.Context, service, status string, metadata store.StatusMetadata) error
	CreateOrUpdateConversation(ctx context.Context, correlationID, userID, subject string) error
	GetPendingMessages(ctx context.Context) ([]store.PendingMessage, error)
	UpdateMessageStatus(ctx context.Context, messageID, status string, metadata store.DeliveryMetadata) error
}

// Transmitter is the outbound session surface used by the inbound pipeline
// and the dispatcher.
type Transmitter interface {
	Connected() bool
	SendMessage(toCallsign, content, messageID string) error
	SendAck(toCallsign, messageID string) error
	SendBeacon(text string) error
}

// SessionRunner is the full session lifecycle surface the supervisor owns.
// Implemented by *aprs.Session.
type SessionRunner interface {
	Transmitter
	Connect(ctx context.Context) error
	Listen(ctx context.Context, handler aprs.LineHandler) error
	Disconnect()
	Callsign() string
	LastHeartbeat() time.Time
}

// newCorrelationID generates a fresh correlation id for a new conversation
// thread. The unix timestamp keeps ids roughly ordered; the uuid suffix
// keeps them collision-free.
func newCorrelationID() string {
	return fmt.Sprintf("aprs_%d_%s", time.Now().Unix(), uuid.NewString()[:8])
}
