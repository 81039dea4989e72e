// Package claims keeps two validator stations from submitting the same ticket at once.
package claims

import (
	"context"
	"sync"
	"time"
)

const DefaultTTL = 2 * time.Minute

// Local holds claims in process memory. It covers every coordinator sharing the process.
type Local struct {
	mu   sync.Mutex
	held map[string]claim
	ttl  time.Duration
	now  func() time.Time
}

type claim struct {
	station string
	expires time.Time
}

func NewLocal(ttl time.Duration) *Local {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Local{held: make(map[string]claim), ttl: ttl, now: time.Now}
}

// Acquire claims ticketID for station. A station may re-acquire its own claim.
func (l *Local) Acquire(ctx context.Context, eventID, ticketID, station string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key(eventID, ticketID)
	now := l.now()
	if c, ok := l.held[k]; ok && c.station != station && now.Before(c.expires) {
		return false, nil
	}
	l.held[k] = claim{station: station, expires: now.Add(l.ttl)}
	return true, nil
}

func (l *Local) Release(ctx context.Context, eventID, ticketID, station string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key(eventID, ticketID)
	if c, ok := l.held[k]; ok && c.station == station {
		delete(l.held, k)
	}
	return nil
}

func key(eventID, ticketID string) string {
	return "checkin:claim:" + eventID + ":" + ticketID
}
