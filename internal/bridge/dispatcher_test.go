package bridge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sonyccd/rarsms/internal/aprs"
	"github.com/sonyccd/rarsms/internal/store"
)

func newTestDispatcher(t *testing.T, sess *mockSession, st *mockStore) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(DispatcherOpts{
		Session:   sess,
		Store:     st,
		Logger:    testLogger(),
		SendDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return d
}

// --- NewDispatcher tests ---

func TestNewDispatcher_Validation(t *testing.T) {
	if _, err := NewDispatcher(DispatcherOpts{}); err == nil {
		t.Error("expected error for missing session")
	}
	if _, err := NewDispatcher(DispatcherOpts{Session: newMockSession(), Store: newMockStore()}); err == nil {
		t.Error("expected error for missing logger")
	}
}

// --- RunCycle tests ---

func TestRunCycle_DeliversPending(t *testing.T) {
	sess := newMockSession()
	st := newMockStore()
	st.pending = []store.PendingMessage{
		{ID: "m1", CorrelationID: "aprs_1_a", FromCallsign: "W4ABC", Content: "net at 8"},
	}
	d := newTestDispatcher(t, sess, st)

	d.RunCycle(context.Background())

	sent := sess.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	if sent[0].To != "W4ABC" {
		t.Errorf("target = %q, want sender fallback", sent[0].To)
	}
	if sent[0].Content != "net at 8" {
		t.Errorf("content = %q", sent[0].Content)
	}
	if sent[0].MessageID == "" {
		t.Error("outbound message id missing")
	}

	updates := st.messageStatusCalls()
	if len(updates) != 1 {
		t.Fatalf("got %d status updates, want 1", len(updates))
	}
	if updates[0].MessageID != "m1" || updates[0].Status != "delivered" {
		t.Errorf("update = %+v", updates[0])
	}
	if updates[0].Metadata.DeliveryMethod != "aprs-is" {
		t.Errorf("delivery method = %q", updates[0].Metadata.DeliveryMethod)
	}
	if updates[0].Metadata.APRSMessageID != sent[0].MessageID {
		t.Error("metadata message id does not match the transmitted one")
	}
}

func TestRunCycle_MetadataTargetWins(t *testing.T) {
	sess := newMockSession()
	st := newMockStore()
	st.pending = []store.PendingMessage{
		{ID: "m1", FromCallsign: "W4ABC", Content: "hi",
			Metadata: store.MessageMetadata{TargetCallsign: "K4XYZ"}},
	}
	d := newTestDispatcher(t, sess, st)

	d.RunCycle(context.Background())

	sent := sess.sentMessages()
	if len(sent) != 1 || sent[0].To != "K4XYZ" {
		t.Errorf("sent = %+v, want delivery to metadata target", sent)
	}
}

func TestRunCycle_TruncatesLongContent(t *testing.T) {
	sess := newMockSession()
	st := newMockStore()
	st.pending = []store.PendingMessage{
		{ID: "m1", FromCallsign: "W4ABC", Content: strings.Repeat("x", 150)},
	}
	d := newTestDispatcher(t, sess, st)

	d.RunCycle(context.Background())

	sent := sess.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	if len(sent[0].Content) > aprs.MaxMessageLength {
		t.Errorf("content length = %d, want <= %d", len(sent[0].Content), aprs.MaxMessageLength)
	}
	if !strings.HasSuffix(sent[0].Content, "...") {
		t.Errorf("truncated content %q lacks ellipsis", sent[0].Content)
	}

	updates := st.messageStatusCalls()
	if len(updates) != 1 || updates[0].Metadata.TruncatedContent != sent[0].Content {
		t.Error("truncated content not recorded in delivery metadata")
	}
}

func TestRunCycle_SanitizesNewlines(t *testing.T) {
	sess := newMockSession()
	st := newMockStore()
	st.pending = []store.PendingMessage{
		{ID: "m1", FromCallsign: "W4ABC", Content: "line one\nline two"},
	}
	d := newTestDispatcher(t, sess, st)

	d.RunCycle(context.Background())

	sent := sess.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	if strings.ContainsAny(sent[0].Content, "\r\n") {
		t.Errorf("content %q still carries line terminators", sent[0].Content)
	}
}

func TestRunCycle_InvalidContentFails(t *testing.T) {
	sess := newMockSession()
	st := newMockStore()
	st.pending = []store.PendingMessage{
		{ID: "m1", FromCallsign: "W4ABC", Content: ""},
	}
	d := newTestDispatcher(t, sess, st)

	d.RunCycle(context.Background())

	if len(sess.sentMessages()) != 0 {
		t.Error("invalid content must not be transmitted")
	}
	updates := st.messageStatusCalls()
	if len(updates) != 1 || updates[0].Status != "failed" {
		t.Fatalf("updates = %+v, want one failed", updates)
	}
	if updates[0].Metadata.Error != "invalid content" {
		t.Errorf("error = %q", updates[0].Metadata.Error)
	}
}

func TestRunCycle_SendFailureMarksFailed(t *testing.T) {
	sess := newMockSession()
	sess.sendErr = errors.New("connection reset")
	st := newMockStore()
	st.pending = []store.PendingMessage{
		{ID: "m1", FromCallsign: "W4ABC", Content: "hi"},
	}
	d := newTestDispatcher(t, sess, st)

	d.RunCycle(context.Background())

	updates := st.messageStatusCalls()
	if len(updates) != 1 || updates[0].Status != "failed" {
		t.Fatalf("updates = %+v, want one failed", updates)
	}
	if !strings.Contains(updates[0].Metadata.Error, "connection reset") {
		t.Errorf("error = %q, want the send error recorded", updates[0].Metadata.Error)
	}
}

func TestRunCycle_SkipsWhileDisconnected(t *testing.T) {
	sess := newMockSession()
	sess.Disconnect()
	st := newMockStore()
	st.pending = []store.PendingMessage{
		{ID: "m1", FromCallsign: "W4ABC", Content: "hi"},
	}
	d := newTestDispatcher(t, sess, st)

	d.RunCycle(context.Background())

	// The job stays pending for the next cycle.
	if len(sess.sentMessages()) != 0 {
		t.Error("nothing should be sent while disconnected")
	}
	if len(st.messageStatusCalls()) != 0 {
		t.Error("no status update while disconnected")
	}
	st.mu.Lock()
	remaining := len(st.pending)
	st.mu.Unlock()
	if remaining != 1 {
		t.Error("pending queue should be untouched while disconnected")
	}
}

func TestRunCycle_QueryFailureTolerated(t *testing.T) {
	sess := newMockSession()
	st := newMockStore()
	st.pendingErr = errors.New("store down")
	d := newTestDispatcher(t, sess, st)

	// Must not panic; nothing sent.
	d.RunCycle(context.Background())
	if len(sess.sentMessages()) != 0 {
		t.Error("nothing should be sent when the queue query fails")
	}
}

func TestRunCycle_MultipleJobs(t *testing.T) {
	sess := newMockSession()
	st := newMockStore()
	st.pending = []store.PendingMessage{
		{ID: "m1", FromCallsign: "W4ABC", Content: "one"},
		{ID: "m2", FromCallsign: "K4XYZ", Content: "two"},
		{ID: "m3", FromCallsign: "N0CALL", Content: "three"},
	}
	d := newTestDispatcher(t, sess, st)

	d.RunCycle(context.Background())

	if got := len(sess.sentMessages()); got != 3 {
		t.Errorf("sent %d messages, want 3", got)
	}
	if got := len(st.messageStatusCalls()); got != 3 {
		t.Errorf("got %d status updates, want 3", got)
	}
}
