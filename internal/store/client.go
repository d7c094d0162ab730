// Package store implements the HTTP+JSON client for the RARSMS record
// store (a PocketBase-shaped API). Every call is a single synchronous
// request; non-2xx responses become errors carrying the response body.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// defaultTimeout bounds every store request.
const defaultTimeout = 30 * time.Second

// Client talks to the record store API.
type Client struct {
	http *resty.Client
	log  *logrus.Logger
}

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	BaseURL string
	Logger  *logrus.Logger
	Timeout time.Duration // defaults to 30s
}

// NewClient creates a record store client.
func NewClient(opts ClientOpts) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("store: base URL is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("store: logger is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	http := resty.New().
		SetBaseURL(strings.TrimSuffix(opts.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Client{http: http, log: opts.Logger}, nil
}

// apiError formats a non-2xx response into an error carrying the body.
func apiError(op string, resp *resty.Response) error {
	return fmt.Errorf("store: %s: API error %d: %s", op, resp.StatusCode(), resp.String())
}

// ok reports whether the response status is a success.
func ok(resp *resty.Response) bool {
	return resp.StatusCode() >= 200 && resp.StatusCode() < 300
}

// IsAuthorizedMember reports whether callsign belongs to a member whose
// linked account is approved. A missing member is not an error.
func (c *Client) IsAuthorizedMember(ctx context.Context, callsign string) (bool, error) {
	callsign = strings.ToUpper(callsign)

	var result struct {
		Items []memberProfile `json:"items"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("filter", fmt.Sprintf("callsign='%s'", callsign)).
		SetResult(&result).
		Get("/api/collections/member_profiles/records")
	if err != nil {
		return false, fmt.Errorf("store: query member: %w", err)
	}
	if resp.StatusCode() == 404 {
		return false, nil
	}
	if !ok(resp) {
		return false, apiError("query member", resp)
	}
	if len(result.Items) == 0 {
		return false, nil
	}

	userID := result.Items[0].User
	if userID == "" {
		return false, fmt.Errorf("store: member %s has no linked user", callsign)
	}

	var user userRecord
	userResp, err := c.http.R().
		SetContext(ctx).
		SetResult(&user).
		Get("/api/collections/users/records/" + userID)
	if err != nil {
		return false, fmt.Errorf("store: query user: %w", err)
	}
	if !ok(userResp) {
		return false, nil
	}
	return user.Approved, nil
}

// GetUserIDByCallsign returns the user id linked to callsign, or empty if
// no member matches.
func (c *Client) GetUserIDByCallsign(ctx context.Context, callsign string) (string, error) {
	callsign = strings.ToUpper(callsign)

	var result struct {
		Items []memberProfile `json:"items"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("filter", fmt.Sprintf("callsign='%s'", callsign)).
		SetResult(&result).
		Get("/api/collections/member_profiles/records")
	if err != nil {
		return "", fmt.Errorf("store: query member: %w", err)
	}
	if !ok(resp) || len(result.Items) == 0 {
		return "", nil
	}
	return result.Items[0].User, nil
}

// CreateMessage stores an inbound message for routing.
func (c *Client) CreateMessage(ctx context.Context, msg MessageRecord) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(msg).
		Post("/api/collections/messages/records")
	if err != nil {
		return fmt.Errorf("store: create message: %w", err)
	}
	if !ok(resp) {
		return apiError("create message", resp)
	}
	c.log.WithField("correlation_id", msg.CorrelationID).Debug("Message created in store")
	return nil
}

// CreateAPRSPacket stores a raw packet audit record.
func (c *Client) CreateAPRSPacket(ctx context.Context, pkt PacketRecord) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(pkt).
		Post("/api/collections/aprs_packets/records")
	if err != nil {
		return fmt.Errorf("store: create packet: %w", err)
	}
	if !ok(resp) {
		return apiError("create packet", resp)
	}
	return nil
}

// LogEvent writes a structured system log entry.
func (c *Client) LogEvent(ctx context.Context, level, service, eventType, message string, metadata map[string]any, correlationID string) error {
	rec := logRecord{
		Level:         level,
		Service:       service,
		EventType:     eventType,
		Message:       message,
		Metadata:      metadata,
		CorrelationID: correlationID,
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(rec).
		Post("/api/collections/system_logs/records")
	if err != nil {
		return fmt.Errorf("store: create log: %w", err)
	}
	if !ok(resp) {
		return apiError("create log", resp)
	}
	return nil
}

// UpdateSystemStatus upserts the status record for a service.
func (c *Client) UpdateSystemStatus(ctx context.Context, service, status string, metadata StatusMetadata) error {
	var result struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("filter", fmt.Sprintf("service='%s'", service)).
		SetResult(&result).
		Get("/api/collections/system_status/records")
	if err != nil {
		return fmt.Errorf("store: query status: %w", err)
	}

	rec := statusRecord{
		Service:       service,
		Status:        status,
		LastHeartbeat: time.Now().Format(time.RFC3339),
		Metadata:      metadata,
	}

	if ok(resp) && len(result.Items) > 0 {
		patchResp, err := c.http.R().
			SetContext(ctx).
			SetBody(rec).
			Patch("/api/collections/system_status/records/" + result.Items[0].ID)
		if err != nil {
			return fmt.Errorf("store: update status: %w", err)
		}
		if !ok(patchResp) {
			return apiError("update status", patchResp)
		}
		return nil
	}

	createResp, err := c.http.R().
		SetContext(ctx).
		SetBody(rec).
		Post("/api/collections/system_status/records")
	if err != nil {
		return fmt.Errorf("store: create status: %w", err)
	}
	if !ok(createResp) {
		return apiError("create status", createResp)
	}
	return nil
}

// CreateOrUpdateConversation creates the conversation for a correlation id
// on its first message, or increments its message count and refreshes its
// last-activity time on subsequent messages.
func (c *Client) CreateOrUpdateConversation(ctx context.Context, correlationID, userID, subject string) error {
	if len(subject) > 50 {
		subject = subject[:47] + "..."
	}

	var result struct {
		Items []conversationRecord `json:"items"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("filter", fmt.Sprintf("correlation_id='%s'", correlationID)).
		SetResult(&result).
		Get("/api/collections/conversations/records")
	if err != nil {
		return fmt.Errorf("store: query conversation: %w", err)
	}

	rec := conversationRecord{
		CorrelationID:    correlationID,
		ServicesInvolved: []string{"aprs", "discord"},
		Subject:          subject,
		Status:           "active",
		LastActivity:     time.Now().Format(time.RFC3339),
		MessageCount:     1,
		InitiatedBy:      userID,
	}

	if ok(resp) && len(result.Items) > 0 {
		existing := result.Items[0]
		rec.MessageCount = existing.MessageCount + 1
		rec.ID = ""
		patchResp, err := c.http.R().
			SetContext(ctx).
			SetBody(rec).
			Patch("/api/collections/conversations/records/" + existing.ID)
		if err != nil {
			return fmt.Errorf("store: update conversation: %w", err)
		}
		if !ok(patchResp) {
			return apiError("update conversation", patchResp)
		}
		return nil
	}

	createResp, err := c.http.R().
		SetContext(ctx).
		SetBody(rec).
		Post("/api/collections/conversations/records")
	if err != nil {
		return fmt.Errorf("store: create conversation: %w", err)
	}
	if !ok(createResp) {
		return apiError("create conversation", createResp)
	}
	return nil
}

// GetPendingMessages returns queued outbound messages awaiting delivery.
func (c *Client) GetPendingMessages(ctx context.Context) ([]PendingMessage, error) {
	var result struct {
		Items []PendingMessage `json:"items"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("filter", "to_service='aprs' && status='pending'").
		SetQueryParam("sort", "-created").
		SetResult(&result).
		Get("/api/collections/messages/records")
	if err != nil {
		return nil, fmt.Errorf("store: query pending messages: %w", err)
	}
	if !ok(resp) {
		return nil, apiError("query pending messages", resp)
	}
	return result.Items, nil
}

// UpdateMessageStatus advances a message to a terminal delivery status and
// attaches delivery metadata. A delivered message also gets a delivered_at
// timestamp.
func (c *Client) UpdateMessageStatus(ctx context.Context, messageID, status string, metadata DeliveryMetadata) error {
	body := map[string]any{
		"status":   status,
		"metadata": metadata,
	}
	if status == "delivered" {
		body["delivered_at"] = time.Now().Format(time.RFC3339)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Patch("/api/collections/messages/records/" + messageID)
	if err != nil {
		return fmt.Errorf("store: update message status: %w", err)
	}
	if !ok(resp) {
		return apiError("update message status", resp)
	}
	return nil
}
