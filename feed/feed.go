// Package feed keeps the list of already checked-in tickets for an event fresh.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ticketfy-checkin/models"
)

const (
	DefaultInterval = 15 * time.Second
	MinInterval     = 10 * time.Second
	MaxInterval     = 20 * time.Second
)

// ClampInterval bounds a polling interval to [MinInterval, MaxInterval]; zero means default.
func ClampInterval(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultInterval
	case d < MinInterval:
		return MinInterval
	case d > MaxInterval:
		return MaxInterval
	}
	return d
}

type Fetcher interface {
	FetchRecent(ctx context.Context, eventID string) ([]models.RecentEntry, error)
}

// Feed is a read-through cache of the backend's validated tickets list. A failed
// fetch keeps the last good list.
type Feed struct {
	fetcher  Fetcher
	eventID  string
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	entries []models.RecentEntry
	issued  uint64
	applied uint64
	subs    map[int]chan []models.RecentEntry
	nextSub int
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(fetcher Fetcher, eventID string, interval time.Duration, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		fetcher:  fetcher,
		eventID:  eventID,
		interval: ClampInterval(interval),
		logger:   logger.With("event", eventID),
		subs:     make(map[int]chan []models.RecentEntry),
	}
}

// Start fetches immediately and then on every interval until ctx is cancelled or Stop
// is called. Starting a running feed does nothing.
func (f *Feed) Start(ctx context.Context) {
	f.mu.Lock()
	if f.cancel != nil {
		f.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	f.cancel = cancel
	f.done = done
	f.mu.Unlock()

	go f.poll(ctx, done)
}

// Stop cancels polling and waits for the polling goroutine to exit.
func (f *Feed) Stop() {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel, f.done = nil, nil
	f.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (f *Feed) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancel != nil
}

func (f *Feed) poll(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.Refresh(ctx)
		}
	}
}

// Refresh fetches the list now. Results of an older request never overwrite a newer one.
func (f *Feed) Refresh(ctx context.Context) error {
	f.mu.Lock()
	f.issued++
	seq := f.issued
	f.mu.Unlock()

	entries, err := f.fetcher.FetchRecent(ctx, f.eventID)
	if err != nil {
		if ctx.Err() == nil {
			f.logger.Warn("failed to refresh recent entries", "error", err)
		}
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if seq < f.applied {
		return nil
	}
	f.applied = seq
	f.entries = entries
	snapshot := f.snapshotLocked()
	for _, ch := range f.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
	return nil
}

// Entries returns the last successfully fetched list, most recent first.
func (f *Feed) Entries() []models.RecentEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// Subscribe delivers every new list. Slow subscribers only see the latest one.
func (f *Feed) Subscribe() (<-chan []models.RecentEntry, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextSub
	f.nextSub++
	ch := make(chan []models.RecentEntry, 1)
	f.subs[id] = ch

	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *Feed) snapshotLocked() []models.RecentEntry {
	out := make([]models.RecentEntry, len(f.entries))
	copy(out, f.entries)
	return out
}
