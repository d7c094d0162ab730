package bridge

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sonyccd/rarsms/internal/aprs"
	"github.com/sonyccd/rarsms/internal/store"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// loggedEvent captures a LogEvent call.
type loggedEvent struct {
	Level         string
	Service       string
	EventType     string
	Message       string
	Metadata      map[string]any
	CorrelationID string
}

// statusUpdate captures an UpdateSystemStatus call.
type statusUpdate struct {
	Service  string
	Status   string
	Metadata store.StatusMetadata
}

// conversationCall captures a CreateOrUpdateConversation call.
type conversationCall struct {
	CorrelationID string
	UserID        string
	Subject       string
}

// msgStatusCall captures an UpdateMessageStatus call.
type msgStatusCall struct {
	MessageID string
	Status    string
	Metadata  store.DeliveryMetadata
}

// mockStore implements RecordStore with recorded calls and configurable
// results.
type mockStore struct {
	mu sync.Mutex

	authorized bool
	authErr    error
	userID     string
	userErr    error

	createMessageErr error
	pending          []store.PendingMessage
	pendingErr       error

	messages      []store.MessageRecord
	packets       []store.PacketRecord
	events        []loggedEvent
	statuses      []statusUpdate
	conversations []conversationCall
	msgStatuses   []msgStatusCall
}

func newMockStore() *mockStore {
	return &mockStore{}
}

func (m *mockStore) IsAuthorizedMember(ctx context.Context, callsign string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authorized, m.authErr
}

func (m *mockStore) GetUserIDByCallsign(ctx context.Context, callsign string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID, m.userErr
}

func (m *mockStore) CreateMessage(ctx context.Context, msg store.MessageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createMessageErr != nil {
		return m.createMessageErr
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockStore) CreateAPRSPacket(ctx context.Context, pkt store.PacketRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets = append(m.packets, pkt)
	return nil
}

func (m *mockStore) LogEvent(ctx context.Context, level, service, eventType, message string, metadata map[string]any, correlationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, loggedEvent{
		Level: level, Service: service, EventType: eventType,
		Message: message, Metadata: metadata, CorrelationID: correlationID,
	})
	return nil
}

func (m *mockStore) UpdateSystemStatus(ctx context.Context, service, status string, metadata store.StatusMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, statusUpdate{Service: service, Status: status, Metadata: metadata})
	return nil
}

func (m *mockStore) CreateOrUpdateConversation(ctx context.Context, correlationID, userID, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations = append(m.conversations, conversationCall{
		CorrelationID: correlationID, UserID: userID, Subject: subject,
	})
	return nil
}

func (m *mockStore) GetPendingMessages(ctx context.Context) ([]store.PendingMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pendingErr != nil {
		return nil, m.pendingErr
	}
	jobs := m.pending
	m.pending = nil
	return jobs, nil
}

func (m *mockStore) UpdateMessageStatus(ctx context.Context, messageID, status string, metadata store.DeliveryMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgStatuses = append(m.msgStatuses, msgStatusCall{
		MessageID: messageID, Status: status, Metadata: metadata,
	})
	return nil
}

func (m *mockStore) storedMessages() []store.MessageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.MessageRecord(nil), m.messages...)
}

func (m *mockStore) storedPackets() []store.PacketRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.PacketRecord(nil), m.packets...)
}

func (m *mockStore) loggedEvents() []loggedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]loggedEvent(nil), m.events...)
}

func (m *mockStore) statusUpdates() []statusUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]statusUpdate(nil), m.statuses...)
}

func (m *mockStore) conversationCalls() []conversationCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]conversationCall(nil), m.conversations...)
}

func (m *mockStore) messageStatusCalls() []msgStatusCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]msgStatusCall(nil), m.msgStatuses...)
}

// sentMessage captures a SendMessage call.
type sentMessage struct {
	To        string
	Content   string
	MessageID string
}

// sentAck captures a SendAck call.
type sentAck struct {
	To        string
	MessageID string
}

// mockSession implements SessionRunner. Connect consumes connectErrs one at
// a time; Listen blocks until its context is cancelled.
type mockSession struct {
	mu sync.Mutex

	connected   bool
	connectErrs []error
	connects    int
	sendErr     error
	ackErr      error

	sent    []sentMessage
	acks    []sentAck
	beacons []string

	listenStarted chan struct{}
}

func newMockSession() *mockSession {
	return &mockSession{connected: true, listenStarted: make(chan struct{}, 8)}
}

func (m *mockSession) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockSession) SendMessage(toCallsign, content, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentMessage{To: toCallsign, Content: content, MessageID: messageID})
	return nil
}

func (m *mockSession) SendAck(toCallsign, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ackErr != nil {
		return m.ackErr
	}
	m.acks = append(m.acks, sentAck{To: toCallsign, MessageID: messageID})
	return nil
}

func (m *mockSession) SendBeacon(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beacons = append(m.beacons, text)
	return nil
}

func (m *mockSession) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	if len(m.connectErrs) > 0 {
		err := m.connectErrs[0]
		m.connectErrs = m.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	m.connected = true
	return nil
}

func (m *mockSession) Listen(ctx context.Context, handler aprs.LineHandler) error {
	m.listenStarted <- struct{}{}
	<-ctx.Done()
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

func (m *mockSession) Disconnect() {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
}

func (m *mockSession) Callsign() string { return "RARSMS" }

func (m *mockSession) LastHeartbeat() time.Time { return time.Time{} }

func (m *mockSession) sentMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

func (m *mockSession) sentAcks() []sentAck {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentAck(nil), m.acks...)
}

func (m *mockSession) sentBeacons() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.beacons...)
}

func (m *mockSession) connectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}
