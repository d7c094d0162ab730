package aprs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// dialTimeout bounds the TCP dial to the APRS-IS server.
	dialTimeout = 30 * time.Second
	// writeTimeout bounds a single line write on the socket.
	writeTimeout = 10 * time.Second
	// scanBufferSize is the line buffer ceiling for the read loop. APRS
	// packets are short, but third-party servers occasionally emit long
	// lines and the scanner must not error on them.
	scanBufferSize = 8192
)

// ErrNotConnected is returned by write operations when the session has no
// live connection.
var ErrNotConnected = errors.New("aprs: not connected")

// State is the session connection state. The Session is its single owner;
// other components observe it only through Connected().
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateLoggedIn
	StateListening
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateLoggedIn:
		return "logged_in"
	case StateListening:
		return "listening"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Dialer abstracts the TCP dial for testability.
type Dialer func(ctx context.Context, address string) (net.Conn, error)

// defaultDialer dials TCP with the bounded dial timeout.
func defaultDialer(ctx context.Context, address string) (net.Conn, error) {
	d := net.Dialer{Timeout: dialTimeout}
	return d.DialContext(ctx, "tcp", address)
}

// LineHandler receives one decoded packet line from the read loop.
type LineHandler func(line string)

// Session manages the lifecycle of one APRS-IS TCP connection: dial, login
// handshake, line-by-line reads, and serialized outbound writes. It never
// reconnects on its own — reconnection is owned by the bridge supervisor.
type Session struct {
	callsign string
	passcode string
	address  string
	filter   string
	version  string
	log      *logrus.Logger
	dialer   Dialer

	mu            sync.Mutex
	state         State
	conn          net.Conn
	lastHeartbeat time.Time

	// writeMu serializes socket writes across the heartbeat task and the
	// outbound dispatcher.
	writeMu sync.Mutex
}

// SessionOpts holds parameters for creating a Session.
type SessionOpts struct {
	Callsign string // own station callsign
	Passcode string // APRS-IS login passcode
	Server   string // server host
	Port     int
	Filter   string // subscription filter string
	Version  string // application version for the login line
	Logger   *logrus.Logger
	// For testing: inject a dialer instead of real TCP.
	Dialer Dialer
}

// NewSession creates a Session.
func NewSession(opts SessionOpts) (*Session, error) {
	if opts.Callsign == "" {
		return nil, fmt.Errorf("aprs: callsign is required")
	}
	if opts.Server == "" || opts.Port <= 0 {
		return nil, fmt.Errorf("aprs: server and port are required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("aprs: logger is required")
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = defaultDialer
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	return &Session{
		callsign: strings.ToUpper(opts.Callsign),
		passcode: opts.Passcode,
		address:  fmt.Sprintf("%s:%d", opts.Server, opts.Port),
		filter:   opts.Filter,
		version:  version,
		log:      opts.Logger,
		dialer:   dialer,
	}, nil
}

// Callsign returns the session's own callsign (uppercased).
func (s *Session) Callsign() string { return s.callsign }

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether the session has a live, logged-in connection.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateLoggedIn || s.state == StateListening
}

// LastHeartbeat returns when the last beacon was transmitted.
func (s *Session) LastHeartbeat() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeartbeat
}

// Connect dials the APRS-IS server and sends the login line. Login success
// is assumed optimistically: the server's logresp line is not awaited, and
// a rejection surfaces later in the inbound stream.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return fmt.Errorf("aprs: connect in state %s", s.state)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"server":   s.address,
		"callsign": s.callsign,
		"filter":   s.filter,
	}).Info("Connecting to APRS-IS")

	conn, err := s.dialer(ctx, s.address)
	if err != nil {
		s.setDisconnected()
		return fmt.Errorf("aprs: dial %s: %w", s.address, err)
	}

	login := fmt.Sprintf("user %s pass %s vers RARSMS %s filter %s\r\n",
		s.callsign, s.passcode, s.version, s.filter)
	if _, err := conn.Write([]byte(login)); err != nil {
		conn.Close()
		s.setDisconnected()
		return fmt.Errorf("aprs: send login: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateLoggedIn
	s.mu.Unlock()

	s.log.Info("Connected to APRS-IS")
	return nil
}

// Listen reads newline-delimited packets until the connection errs, the
// remote end closes, or ctx is cancelled, passing each non-empty line to
// handler. It blocks for the life of the connection and always leaves the
// session disconnected on return.
func (s *Session) Listen(ctx context.Context, handler LineHandler) error {
	s.mu.Lock()
	if s.state != StateLoggedIn {
		s.mu.Unlock()
		return ErrNotConnected
	}
	conn := s.conn
	s.state = StateListening
	s.mu.Unlock()

	// Close the socket on cancellation to unblock the scanner read.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	defer s.Disconnect()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 1024), scanBufferSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		handler(line)
	}

	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("aprs: read: %w", err)
	}
	// Remote end closed the stream.
	return nil
}

// Disconnect closes the connection and resets the session to disconnected.
// It is idempotent and safe to call even if the session never connected.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.state = StateDisconnected
}

// SendRaw writes one CRLF-terminated line on the socket. Writes from the
// heartbeat task and the dispatcher are serialized here. A write failure
// marks the session disconnected.
func (s *Session) SendRaw(line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	conn := s.conn
	connected := s.state == StateLoggedIn || s.state == StateListening
	s.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := conn.Write([]byte(line + "\r\n")); err != nil {
		s.Disconnect()
		return fmt.Errorf("aprs: write: %w", err)
	}
	return nil
}

// SendMessage transmits an addressed message packet.
func (s *Session) SendMessage(toCallsign, content, messageID string) error {
	if err := s.SendRaw(FormatOutboundMessage(s.callsign, toCallsign, content, messageID)); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"to":         toCallsign,
		"content":    content,
		"message_id": messageID,
	}).Info("Sent APRS message")
	return nil
}

// SendAck transmits an acknowledgement for a received message id.
func (s *Session) SendAck(toCallsign, messageID string) error {
	if err := s.SendRaw(FormatAck(s.callsign, toCallsign, messageID)); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"to":         toCallsign,
		"message_id": messageID,
	}).Debug("Sent ACK")
	return nil
}

// SendBeacon transmits a status beacon and records the heartbeat time.
func (s *Session) SendBeacon(text string) error {
	if err := s.SendRaw(FormatOutboundMessage(s.callsign, "STATUS", text, "")); err != nil {
		return err
	}
	s.mu.Lock()
	s.lastHeartbeat = time.Now()
	s.mu.Unlock()
	return nil
}

// setDisconnected resets the state after a failed connect attempt.
func (s *Session) setDisconnected() {
	s.mu.Lock()
	s.state = StateDisconnected
	s.mu.Unlock()
}
