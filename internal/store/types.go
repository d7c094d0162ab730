package store

// Record payloads for the record store collections. Metadata is typed per
// call site; an open-ended map is used only for log event metadata, which
// genuinely varies by event.

// MessageRecord is an inbound message persisted for routing to other
// services.
type MessageRecord struct {
	CorrelationID string          `json:"correlation_id"`
	FromCallsign  string          `json:"from_callsign"`
	FromService   string          `json:"from_service"`
	ToService     string          `json:"to_service"`
	Content       string          `json:"content"`
	MessageType   string          `json:"message_type"`
	Status        string          `json:"status"`
	User          string          `json:"user,omitempty"`
	Metadata      InboundMetadata `json:"metadata"`
}

// InboundMetadata carries packet-level detail alongside a stored message.
type InboundMetadata struct {
	APRSMessageID string `json:"aprs_message_id,omitempty"`
	RawPacket     string `json:"raw_packet"`
	Server        string `json:"server,omitempty"`
}

// PacketRecord is a raw packet audit entry.
type PacketRecord struct {
	RawPacket       string `json:"raw_packet"`
	PacketType      string `json:"packet_type"`
	FromCallsign    string `json:"from_callsign,omitempty"`
	ToCallsign      string `json:"to_callsign,omitempty"`
	Processed       bool   `json:"processed"`
	ProcessingNotes string `json:"processing_notes"`
}

// StatusMetadata describes a service status update. Fields are omitted when
// not relevant to the reporting site.
type StatusMetadata struct {
	Server         string `json:"server,omitempty"`
	Callsign       string `json:"callsign,omitempty"`
	Filter         string `json:"filter,omitempty"`
	Connected      *bool  `json:"connected,omitempty"`
	ConnectTime    int64  `json:"connect_time,omitempty"`
	DisconnectTime int64  `json:"disconnect_time,omitempty"`
	LastHeartbeat  int64  `json:"last_heartbeat,omitempty"`
	Error          string `json:"error,omitempty"`
	ErrorTime      int64  `json:"error_time,omitempty"`
	Version        string `json:"version,omitempty"`
	StartedAt      int64  `json:"started_at,omitempty"`
	ShutdownReason string `json:"shutdown_reason,omitempty"`
}

// DeliveryMetadata records the outcome of an outbound delivery attempt.
type DeliveryMetadata struct {
	Error            string `json:"error,omitempty"`
	APRSMessageID    string `json:"aprs_message_id,omitempty"`
	TruncatedContent string `json:"truncated_content,omitempty"`
	DeliveryMethod   string `json:"delivery_method,omitempty"`
}

// MessageMetadata is the metadata object attached to a queued outbound
// message by whichever service produced it.
type MessageMetadata struct {
	TargetCallsign string `json:"target_callsign,omitempty"`
}

// PendingMessage is an outbound delivery job read back from the store.
type PendingMessage struct {
	ID            string          `json:"id"`
	CorrelationID string          `json:"correlation_id"`
	FromCallsign  string          `json:"from_callsign"`
	Content       string          `json:"content"`
	Metadata      MessageMetadata `json:"metadata"`
}

// TargetCallsign resolves the delivery target: the explicit metadata target
// when set, otherwise the original sender.
func (m PendingMessage) TargetCallsign() string {
	if m.Metadata.TargetCallsign != "" {
		return m.Metadata.TargetCallsign
	}
	return m.FromCallsign
}

// memberProfile is the subset of a member_profiles record we read.
type memberProfile struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

// userRecord is the subset of a users record we read.
type userRecord struct {
	ID       string `json:"id"`
	Approved bool   `json:"approved"`
}

// conversationRecord is a conversation thread keyed by correlation id.
type conversationRecord struct {
	ID               string   `json:"id,omitempty"`
	CorrelationID    string   `json:"correlation_id"`
	ServicesInvolved []string `json:"services_involved"`
	Subject          string   `json:"subject"`
	Status           string   `json:"status"`
	LastActivity     string   `json:"last_activity"`
	MessageCount     int      `json:"message_count"`
	InitiatedBy      string   `json:"initiated_by,omitempty"`
}

// logRecord is a system_logs entry.
type logRecord struct {
	Level         string         `json:"level"`
	Service       string         `json:"service"`
	EventType     string         `json:"event_type"`
	Message       string         `json:"message"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

// statusRecord is a system_status entry.
type statusRecord struct {
	Service       string         `json:"service"`
	Status        string         `json:"status"`
	LastHeartbeat string         `json:"last_heartbeat"`
	Metadata      StatusMetadata `json:"metadata"`
}
