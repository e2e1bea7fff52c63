package reminder

import (
	"sync"
	"sync/atomic"
	"time"

	appLog "pireminder/internal/log"
	"pireminder/internal/model"
)

// Phase is the per-event reminder lifecycle phase.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseAnnouncing Phase = "announcing"
	PhaseStopped    Phase = "stopped"
	PhaseExpired    Phase = "expired"
)

// terminal reports whether a phase accepts no further announcements today.
func (p Phase) terminal() bool {
	return p == PhaseStopped || p == PhaseExpired
}

// defaultTerminalRetention is how long Stopped/Expired states are kept so a
// late tick cannot re-create Announcing for the same event before day
// rollover.
const defaultTerminalRetention = time.Hour

// State tracks the reminder lifecycle for one event. It is created lazily
// when the event first classifies InProgress and owned exclusively by the
// Scheduler; external signal handlers only ever touch stopRequested.
type State struct {
	EventID          string
	Phase            Phase
	FirstAnnouncedAt time.Time
	LastAnnouncedAt  time.Time

	// stopRequested is latched asynchronously by voice/button handlers and
	// consumed on the next tick. Flag-only writes keep signal delivery free
	// of structural mutation.
	stopRequested atomic.Bool

	// terminalAt is when the state entered Stopped/Expired, for pruning.
	terminalAt time.Time
}

// StopRequested reports whether a stop signal is latched and not yet consumed.
func (st *State) StopRequested() bool {
	return st.stopRequested.Load()
}

// Notifier performs the actual voice announcement. Both calls must be
// non-blocking from the scheduler's perspective: a stuck speech backend must
// not stall status evaluation.
type Notifier interface {
	Announce(ev *model.Event)
	Stop(ev *model.Event)
}

// Scheduler owns per-event reminder state and drives repeated announcements
// from an externally invoked tick. It never schedules itself; the caller
// decides the tick cadence.
type Scheduler struct {
	windows  Windows
	notifier Notifier

	// OnStopped, if set, runs after a stop request latched Triggered on an
	// event (used for backend write-back and the spoken confirmation). It is
	// called from inside Tick and must not block.
	OnStopped func(ev *model.Event)

	terminalRetention time.Duration

	mu     sync.RWMutex
	states map[string]*State
}

// NewScheduler constructs a Scheduler with the given windows and notifier.
func NewScheduler(w Windows, n Notifier) *Scheduler {
	return &Scheduler{
		windows:           w,
		notifier:          n,
		terminalRetention: defaultTerminalRetention,
		states:            make(map[string]*State),
	}
}

// Tick evaluates all events against now, advances reminder state machines
// and returns the ordered (event, status) sequence for presentation. All
// structural state mutation happens here, on the caller's single loop.
func (s *Scheduler) Tick(events []*model.Event, now time.Time) []model.EventStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.EventStatus, 0, len(events))
	seen := make(map[string]bool, len(events))

	for _, ev := range events {
		status := s.step(ev, now)
		seen[ev.ID] = true
		out = append(out, model.EventStatus{Event: *ev, Status: status})
	}

	s.prune(seen, now)

	return out
}

// step advances one event's state machine and returns its display status.
// Caller holds s.mu.
func (s *Scheduler) step(ev *model.Event, now time.Time) model.Status {
	status := Classify(ev, now, s.windows)
	st := s.states[ev.ID]

	if status != model.StatusInProgress {
		// Classification is the source of truth for whether reminding is
		// applicable. If it left InProgress while we were still announcing
		// (clock jump, upstream reschedule), silence and discard rather
		// than keep running on stale timers. Terminal states stay until
		// pruned so a flapping clock cannot restart a handled reminder.
		if st != nil && st.Phase == PhaseAnnouncing {
			appLog.Warn("reminder no longer applicable, discarding state",
				"event_id", ev.ID, "status", string(status))
			s.notifier.Stop(ev)
			delete(s.states, ev.ID)
		}
		return status
	}

	// InProgress: enter or continue the announcing lifecycle.
	if st == nil || st.Phase == PhaseIdle {
		st = &State{
			EventID:          ev.ID,
			Phase:            PhaseAnnouncing,
			FirstAnnouncedAt: now,
			LastAnnouncedAt:  now,
		}
		s.states[ev.ID] = st
		appLog.Info("reminder started", "event_id", ev.ID, "title", ev.Title)
		s.notifier.Announce(ev)
		return status
	}

	switch st.Phase {
	case PhaseAnnouncing:
		switch {
		case st.stopRequested.Load():
			ev.Triggered = true
			st.Phase = PhaseStopped
			st.terminalAt = now
			appLog.Info("reminder stopped by request", "event_id", ev.ID)
			s.notifier.Stop(ev)
			if s.OnStopped != nil {
				s.OnStopped(ev)
			}
			// Triggered dominates: the event now classifies Completed.
			return Classify(ev, now, s.windows)

		case now.Sub(st.FirstAnnouncedAt) >= s.windows.AutoStop:
			st.Phase = PhaseExpired
			st.terminalAt = now
			appLog.Info("reminder auto-stopped", "event_id", ev.ID,
				"after", now.Sub(st.FirstAnnouncedAt))
			return model.StatusExpired

		case now.Sub(st.LastAnnouncedAt) >= s.windows.VoiceInterval:
			st.LastAnnouncedAt = now
			s.notifier.Announce(ev)
		}
		return status

	case PhaseExpired:
		// Display override: an auto-stopped reminder shows Expired even
		// while raw classification still computes InProgress.
		return model.StatusExpired

	default: // PhaseStopped
		return status
	}
}

// prune drops states for events that vanished from the store and terminal
// states past the retention grace. Caller holds s.mu.
func (s *Scheduler) prune(seen map[string]bool, now time.Time) {
	for id, st := range s.states {
		if !seen[id] {
			delete(s.states, id)
			continue
		}
		if st.Phase.terminal() && now.Sub(st.terminalAt) >= s.terminalRetention {
			delete(s.states, id)
		}
	}
}

// RequestStop latches a stop request for the given event. Safe to call from
// any goroutine; the actual transition happens on the next tick. Requests
// for unknown, idle or already-terminal reminders are accepted and ignored.
func (s *Scheduler) RequestStop(eventID string) {
	s.mu.RLock()
	st := s.states[eventID]
	s.mu.RUnlock()

	if st == nil {
		appLog.Debug("stop request for unknown reminder", "event_id", eventID)
		return
	}
	st.stopRequested.Store(true)
}

// StopAll latches a stop request on every currently announcing reminder.
// This is what the dashboard stop button and the GPIO button map to.
func (s *Scheduler) StopAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, st := range s.states {
		if st.Phase == PhaseAnnouncing {
			st.stopRequested.Store(true)
		}
	}
}

// Announcing reports whether any reminder is currently in the Announcing
// phase. The voice intent router uses it to prioritize the stop command
// over chat routing.
func (s *Scheduler) Announcing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, st := range s.states {
		if st.Phase == PhaseAnnouncing {
			return true
		}
	}
	return false
}

// Reset discards all reminder state. Called on day rollover, when a fresh
// event set makes every previous lifecycle meaningless.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states = make(map[string]*State)
}

// stateFor returns the live state for an event id, for tests and debugging.
func (s *Scheduler) stateFor(eventID string) *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[eventID]
}
