package amqp

import "sync"

// sessionTable maps channel numbers 1..=channelMax to their live Session.
// Channel 0 is reserved for the connection's control session and is never
// allocated through this table. Every operation is
// serialised: the main loop performs lookups and frees while user
// goroutines allocate concurrently.
type sessionTable struct {
	mu         sync.Mutex
	channelMax uint16
	next       uint16 // lowest channel number that might still be free
	sessions   map[uint16]*Session
}

func newSessionTable(channelMax uint16) *sessionTable {
	if channelMax == 0 {
		// 0 means "unlimited" during negotiation; the table still needs a
		// bound, and the wire format caps channel numbers at 16 bits.
		channelMax = 65535
	}
	return &sessionTable{
		channelMax: channelMax,
		next:       1,
		sessions:   make(map[uint16]*Session),
	}
}

// allocate picks the lowest free channel number in 1..=channelMax and
// reserves it for s, setting s's channel number. It fails with
// ErrChannelExhausted when every number is in use.
func (t *sessionTable) allocate(s *Session) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if uint16(len(t.sessions)) >= t.channelMax {
		return newError(KindChannelExhausted, "no free channel number available")
	}
	ch := t.next
	for {
		if _, taken := t.sessions[ch]; !taken && ch != 0 && ch <= t.channelMax {
			break
		}
		ch++
		if ch > t.channelMax {
			ch = 1
		}
	}
	s.channelNumber = ch
	t.sessions[ch] = s
	t.next = ch + 1
	if t.next > t.channelMax {
		t.next = 1
	}
	return nil
}

// allocateNumber reserves a specific channel number for s, failing with
// KindChannelExhausted if ch is 0, above channelMax, or already taken.
func (t *sessionTable) allocateNumber(ch uint16, s *Session) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ch == 0 || ch > t.channelMax {
		return newError(KindChannelExhausted, "channel number out of range")
	}
	if _, taken := t.sessions[ch]; taken {
		return newError(KindChannelExhausted, "channel number already in use")
	}
	s.channelNumber = ch
	t.sessions[ch] = s
	return nil
}

// lookup returns the Session registered for ch, if any.
func (t *sessionTable) lookup(ch uint16) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[ch]
	return s, ok
}

// free removes ch from the table entirely.
func (t *sessionTable) free(ch uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, ch)
	if ch != 0 && ch < t.next {
		t.next = ch
	}
}

// all returns every currently registered Session, in no particular order.
func (t *sessionTable) all() []*Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s)
	}
	return out
}

func (t *sessionTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
