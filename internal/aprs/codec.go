// Package aprs implements the APRS-IS protocol surface: the message packet
// codec and the TCP session to an APRS-IS server.
package aprs

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MaxMessageLength is the APRS message content limit in bytes.
const MaxMessageLength = 67

// addresseeWidth is the fixed width of the recipient field in an APRS
// message packet. Shorter callsigns are space-padded on the wire.
const addresseeWidth = 9

// messageRegex matches the APRS message addressing grammar:
// FROM>PATH::ADDRESSEE:content{MSGID with a space-padded addressee field
// and an optional trailing message id.
var messageRegex = regexp.MustCompile(`^([A-Z0-9-]+)>([^,]+),.*?::([A-Z0-9-]+)\s*:(.+?)(?:\{([A-Za-z0-9]+))?$`)

// PacketKind classifies a raw packet line for audit storage.
type PacketKind string

const (
	// KindMessage marks lines carrying the :: addressing delimiter.
	// A line can classify as a message even when the full message
	// grammar fails to match; classification is best-effort.
	KindMessage PacketKind = "message"
	// KindOther covers position, telemetry, status, and anything else.
	KindOther PacketKind = "other"
)

// Message is a parsed APRS message packet.
type Message struct {
	FromCallsign string
	ToCallsign   string
	Content      string
	MessageID    string // empty when the packet carried no {id suffix
	RawPacket    string
	Timestamp    time.Time
}

// ParseMessagePacket parses a raw packet line against the APRS message
// grammar. The second return value is false for any line that is not a
// message packet (position/telemetry/status packets, server comments) —
// that is not an error condition.
func ParseMessagePacket(line string) (Message, bool) {
	if strings.HasPrefix(line, "#") {
		return Message{}, false
	}
	matches := messageRegex.FindStringSubmatch(line)
	if len(matches) < 5 {
		return Message{}, false
	}

	msg := Message{
		FromCallsign: strings.ToUpper(matches[1]),
		ToCallsign:   strings.ToUpper(matches[3]),
		Content:      strings.TrimSpace(matches[4]),
		RawPacket:    line,
		Timestamp:    time.Now(),
	}
	if len(matches) > 5 {
		msg.MessageID = matches[5]
	}
	return msg, true
}

// ClassifyPacket returns the audit classification for a raw packet line.
func ClassifyPacket(line string) PacketKind {
	if strings.Contains(line, "::") {
		return KindMessage
	}
	return KindOther
}

// FormatOutboundMessage builds an addressed message line. The {id suffix is
// appended only when messageID is non-empty. The line is not CRLF-terminated;
// the session adds the terminator on write.
func FormatOutboundMessage(ownCallsign, toCallsign, content, messageID string) string {
	line := fmt.Sprintf("%s>APRS,TCPIP*::%s:%s",
		strings.ToUpper(ownCallsign), padAddressee(toCallsign), content)
	if messageID != "" {
		line += "{" + messageID
	}
	return line
}

// FormatAck builds an acknowledgement line for a received message id.
func FormatAck(ownCallsign, toCallsign, messageID string) string {
	return fmt.Sprintf("%s>APRS,TCPIP*::%s:ack%s",
		strings.ToUpper(ownCallsign), padAddressee(toCallsign), messageID)
}

// padAddressee uppercases a callsign and space-pads it to the fixed
// addressee field width.
func padAddressee(callsign string) string {
	return fmt.Sprintf("%-*s", addresseeWidth, strings.ToUpper(callsign))
}

// TruncateForNetwork cuts content to at most limit bytes, marking the cut
// with a trailing ellipsis. Content within the limit is returned unchanged.
func TruncateForNetwork(content string, limit int) string {
	if len(content) <= limit {
		return content
	}
	return content[:limit-3] + "..."
}

// SanitizeContent strips control characters from message content: line
// terminators become single spaces, tab is preserved, and every other
// byte below 0x20 is dropped.
func SanitizeContent(content string) string {
	content = strings.ReplaceAll(content, "\r\n", " ")
	var b strings.Builder
	b.Grow(len(content))
	for _, r := range content {
		switch {
		case r >= 0x20 || r == '\t':
			b.WriteRune(r)
		case r == '\n' || r == '\r':
			b.WriteRune(' ')
		}
	}
	return b.String()
}

// ValidContent reports whether content is transmittable: non-empty and free
// of control bytes other than tab and line terminators.
func ValidContent(content string) bool {
	if content == "" {
		return false
	}
	for _, r := range content {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

// ValidCallsign reports whether callsign looks like an amateur radio
// callsign: 3-9 characters, letters first (the second may be a digit),
// letters and digits after.
func ValidCallsign(callsign string) bool {
	if len(callsign) < 3 || len(callsign) > 9 {
		return false
	}
	for i, c := range callsign {
		switch {
		case i == 0:
			if c < 'A' || c > 'Z' {
				return false
			}
		case i == 1:
			if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
				return false
			}
		default:
			if (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '-' {
				return false
			}
		}
	}
	return true
}

// SplitSSID splits a callsign into its base and SSID parts
// (e.g. "W4ABC-5" -> "W4ABC", "5").
func SplitSSID(callsign string) (base, ssid string) {
	parts := strings.SplitN(callsign, "-", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return callsign, ""
}

// Passcode computes the APRS-IS login passcode for a callsign. The SSID,
// if present, is ignored.
func Passcode(callsign string) int {
	callsign = strings.ToUpper(callsign)
	if idx := strings.Index(callsign, "-"); idx != -1 {
		callsign = callsign[:idx]
	}

	hash := 0x73e2
	for i := 0; i < len(callsign); i += 2 {
		hash ^= int(callsign[i]) << 8
		if i+1 < len(callsign) {
			hash ^= int(callsign[i+1])
		}
	}
	return hash & 0x7fff
}
