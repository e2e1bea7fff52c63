package app

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"pireminder/internal/chat"
	"pireminder/internal/config"
	appLog "pireminder/internal/log"
	"pireminder/internal/model"
	"pireminder/internal/reminder"
	"pireminder/internal/store"
	"pireminder/internal/voice"
)

// Speaker is the voice output surface the controller talks to for free-text
// utterances (stop confirmations, chatbot replies).
type Speaker interface {
	Say(text string)
}

// App wires the event store, the reminder scheduler and the voice surfaces
// into one appliance controller. All reminder state transitions happen on
// its tick loop; asynchronous inputs (voice, buttons, HTTP) only latch flags
// or enqueue speech.
type App struct {
	cfg   *config.Config
	loc   *time.Location
	store *store.Store
	sched *reminder.Scheduler

	speaker Speaker
	chatbot *chat.Client
	router  *voice.Router

	// markTriggered, if non-nil, reports a dismissed event upstream
	// (backend write-back). Called on its own goroutine.
	markTriggered func(ctx context.Context, eventID string) error

	mu       sync.RWMutex
	snapshot []model.EventStatus
	tickedAt time.Time
}

// Options carries the collaborators New wires together.
type Options struct {
	Store         *store.Store
	Scheduler     *reminder.Scheduler
	Speaker       Speaker
	Chatbot       *chat.Client
	MarkTriggered func(ctx context.Context, eventID string) error
}

// New builds the controller and hooks the scheduler's stop callback.
func New(cfg *config.Config, loc *time.Location, opts Options) *App {
	if loc == nil {
		loc = time.Local
	}

	a := &App{
		cfg:           cfg,
		loc:           loc,
		store:         opts.Store,
		sched:         opts.Scheduler,
		speaker:       opts.Speaker,
		chatbot:       opts.Chatbot,
		markTriggered: opts.MarkTriggered,
	}

	a.router = voice.NewRouter(cfg.Speech)
	a.router.Announcing = a.sched.Announcing

	a.sched.OnStopped = func(ev *model.Event) {
		if a.speaker != nil {
			a.speaker.Say("Alarm stopped")
		}
		if a.markTriggered != nil {
			id := ev.ID
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := a.markTriggered(ctx, id); err != nil {
					appLog.Error("triggered write-back failed", err, "event_id", id)
				}
			}()
		}
	}

	return a
}

// Tick runs one evaluation: day rollover first, then the scheduler pass over
// the store's events. The resulting (event, status) sequence is published
// for the web layer and returned.
func (a *App) Tick(ctx context.Context, now time.Time) []model.EventStatus {
	if a.store.RolledOver(now) {
		appLog.Info("day rollover, reloading events")
		a.sched.Reset()
		if err := a.store.Reload(ctx, now); err != nil {
			// Already logged by the store; the empty set is correct for a
			// fresh day until the next refresh succeeds.
			_ = err
		}
	}

	statuses := a.sched.Tick(a.store.Events(), now)

	a.mu.Lock()
	a.snapshot = statuses
	a.tickedAt = now
	a.mu.Unlock()

	return statuses
}

// Snapshot returns the last published (event, status) sequence and the tick
// instant it belongs to.
func (a *App) Snapshot() ([]model.EventStatus, time.Time) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot, a.tickedAt
}

// RequestStop latches a stop for one event (dashboard per-event button).
func (a *App) RequestStop(eventID string) {
	a.sched.RequestStop(eventID)
}

// StopAll latches a stop on every announcing reminder (screen stop button,
// GPIO button).
func (a *App) StopAll() {
	a.sched.StopAll()
}

// Chat forwards a message to the chatbot, if configured.
func (a *App) Chat(ctx context.Context, message string) (string, error) {
	return a.chatbot.Chat(ctx, message)
}

// HandleTranscript routes one recognizer transcript line: stop intents latch
// stops, chat intents go to the chatbot and the reply is spoken.
func (a *App) HandleTranscript(line string) {
	decision := a.router.Route(line, time.Now())

	switch decision.Kind {
	case voice.KindStop:
		appLog.Info("voice stop command", "text", line)
		a.StopAll()

	case voice.KindChat:
		if a.chatbot == nil || !a.chatbot.Enabled() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		reply, err := a.chatbot.Chat(ctx, decision.Text)
		if err != nil {
			appLog.Error("chatbot request failed", err)
			return
		}
		appLog.Info("chatbot reply", "text", reply)
		if a.speaker != nil {
			a.speaker.Say(reply)
		}
	}
}

// Run drives the appliance until ctx is canceled: an immediate refresh and
// tick, the cron-scheduled event refresh, and the fixed-cadence evaluation
// loop. Collaborator failures are logged, never fatal; the loop must not
// halt.
func (a *App) Run(ctx context.Context) error {
	// Initial fetch so the screen is populated right away.
	if err := a.store.Refresh(ctx, time.Now()); err != nil {
		appLog.Warn("initial event fetch failed, starting empty")
	}
	a.Tick(ctx, time.Now())

	c := cron.New()
	_, err := c.AddFunc(a.cfg.RefreshCron, func() {
		refreshCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		_ = a.store.Refresh(refreshCtx, time.Now())
	})
	if err != nil {
		return err
	}
	c.Start()
	defer c.Stop()

	tick := time.Duration(a.cfg.Reminder.TickSeconds) * time.Second
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	appLog.Info("evaluation loop started", "tick", tick, "refresh", a.cfg.RefreshCron)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			a.Tick(ctx, now)
		}
	}
}
