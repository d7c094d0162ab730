package bridge

import "sync"

// Stats counts bridge activity between digest windows. All methods are safe
// for concurrent use by the inbound pipeline and the dispatcher.
type Stats struct {
	mu               sync.Mutex
	packetsSeen      int
	messagesAccepted int
	unauthorized     int
	delivered        int
	failed           int
}

// NewStats creates an empty counter set.
func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) AddPacket() {
	s.mu.Lock()
	s.packetsSeen++
	s.mu.Unlock()
}

func (s *Stats) AddAccepted() {
	s.mu.Lock()
	s.messagesAccepted++
	s.mu.Unlock()
}

func (s *Stats) AddUnauthorized() {
	s.mu.Lock()
	s.unauthorized++
	s.mu.Unlock()
}

func (s *Stats) AddDelivered() {
	s.mu.Lock()
	s.delivered++
	s.mu.Unlock()
}

func (s *Stats) AddFailed() {
	s.mu.Lock()
	s.failed++
	s.mu.Unlock()
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	PacketsSeen      int
	MessagesAccepted int
	Unauthorized     int
	Delivered        int
	Failed           int
}

// Empty reports whether no activity was counted.
func (s Snapshot) Empty() bool {
	return s == Snapshot{}
}

// Take returns the current counters and resets them to zero.
func (s *Stats) Take() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		PacketsSeen:      s.packetsSeen,
		MessagesAccepted: s.messagesAccepted,
		Unauthorized:     s.unauthorized,
		Delivered:        s.delivered,
		Failed:           s.failed,
	}
	s.packetsSeen = 0
	s.messagesAccepted = 0
	s.unauthorized = 0
	s.delivered = 0
	s.failed = 0
	return snap
}
