package store

import (
	"context"
	"sort"
	"sync"
	"time"

	appLog "pireminder/internal/log"
	"pireminder/internal/model"
)

// Source produces today's events. Implementations must be safe to call
// repeatedly and must return a stable ID per logical event across calls, so
// reminder state re-associates correctly after a refresh.
type Source interface {
	// Name identifies the source in logs ("backend", "google", "ics").
	Name() string
	// FetchTodayEvents returns this day's events, in any order.
	FetchTodayEvents(ctx context.Context) ([]*model.Event, error)
}

// Store exclusively owns the current day's event records. It is the single
// structural writer; the reminder scheduler only flips Triggered on events
// the store handed out.
type Store struct {
	source Source
	loc    *time.Location

	mu     sync.RWMutex
	events []*model.Event
	day    string // local date ("2006-01-02") the loaded set belongs to
}

// New constructs an empty Store over the given source. loc is the display
// timezone used for day-rollover detection; nil means time.Local.
func New(source Source, loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{
		source: source,
		loc:    loc,
	}
}

// Refresh fetches today's events and replaces the held set.
//
// Failure policy: a fetch error is logged and the previous list is retained
// untouched until the next successful refresh; the appliance keeps showing
// and reminding from the last known schedule.
//
// Triggered flags latched locally are monotonic within a day: an incoming
// record with Triggered=false does not un-trigger an event we already
// dismissed (the backend write-back may lag or have failed).
func (s *Store) Refresh(ctx context.Context, now time.Time) error {
	fetched, err := s.source.FetchTodayEvents(ctx)
	if err != nil {
		appLog.Error("event fetch failed, keeping previous list", err,
			"source", s.source.Name(), "retained", len(s.Events()))
		return err
	}

	sort.SliceStable(fetched, func(i, j int) bool {
		return fetched[i].ScheduledTime.Before(fetched[j].ScheduledTime)
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	prevTriggered := make(map[string]bool, len(s.events))
	for _, ev := range s.events {
		if ev.Triggered {
			prevTriggered[ev.ID] = true
		}
	}
	for _, ev := range fetched {
		if prevTriggered[ev.ID] {
			ev.Triggered = true
		}
	}

	s.events = fetched
	s.day = now.In(s.loc).Format("2006-01-02")

	appLog.Info("events refreshed", "source", s.source.Name(), "count", len(fetched), "day", s.day)
	return nil
}

// Reload discards the held set and fetches fresh. Used on day rollover,
// where retaining yesterday's list on failure would be worse than showing
// nothing.
func (s *Store) Reload(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	s.events = nil
	s.day = now.In(s.loc).Format("2006-01-02")
	s.mu.Unlock()

	return s.Refresh(ctx, now)
}

// RolledOver reports whether the local date has moved past the day the
// current set was loaded for.
func (s *Store) RolledOver(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.day == "" {
		return false
	}
	return now.In(s.loc).Format("2006-01-02") != s.day
}

// Events returns the current ordered event list. The returned slice is a
// copy; the pointed-to events are the store-owned records (the scheduler
// relies on that to latch Triggered).
func (s *Store) Events() []*model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Find returns the event with the given id, or nil.
func (s *Store) Find(id string) *model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ev := range s.events {
		if ev.ID == id {
			return ev
		}
	}
	return nil
}
