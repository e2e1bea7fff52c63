package notify

import (
	"context"
	"os/exec"
	"sync"

	"pireminder/internal/config"
	appLog "pireminder/internal/log"
	"pireminder/internal/model"
)

// queueDepth bounds pending speech. Announcements past this are dropped with
// a warning rather than ever blocking the tick loop.
const queueDepth = 16

// speechRequest is one queued utterance batch for a single event (or free
// text when EventID is empty).
type speechRequest struct {
	eventID string
	lines   []string
}

// Speech speaks through an external TTS command (espeak-ng by default). A
// single worker goroutine serializes playback so utterances never overlap;
// Announce and Stop are non-blocking as the scheduler requires.
type Speech struct {
	command string
	args    []string
	enabled bool

	queue chan speechRequest
	done  chan struct{}

	mu sync.Mutex
	// silenced holds event ids whose pending/current speech was stopped.
	// A later Announce for the same event clears the mark.
	silenced map[string]bool
	// cancelCurrent aborts the in-flight TTS process, if any.
	cancelCurrent context.CancelFunc
	currentEvent  string
}

// NewSpeech constructs the speech notifier and starts its worker.
func NewSpeech(cfg config.TTSConfig) *Speech {
	s := &Speech{
		command:  cfg.Command,
		args:     cfg.Args,
		enabled:  cfg.Enabled,
		queue:    make(chan speechRequest, queueDepth),
		done:     make(chan struct{}),
		silenced: make(map[string]bool),
	}
	go s.worker()
	return s
}

// Announce speaks the reminder for an event: the title, then the description
// if present. Fire-and-forget; never blocks.
func (s *Speech) Announce(ev *model.Event) {
	lines := []string{"Reminder: " + ev.Title}
	if ev.Description != "" {
		lines = append(lines, ev.Description)
	}

	s.mu.Lock()
	delete(s.silenced, ev.ID)
	s.mu.Unlock()

	s.enqueue(speechRequest{eventID: ev.ID, lines: lines})
}

// Stop silences the event: kills the in-flight utterance if it belongs to
// this event and marks its queued utterances to be skipped.
func (s *Speech) Stop(ev *model.Event) {
	s.mu.Lock()
	s.silenced[ev.ID] = true
	if s.currentEvent == ev.ID && s.cancelCurrent != nil {
		s.cancelCurrent()
	}
	s.mu.Unlock()
}

// Say speaks free text (stop confirmations, chatbot replies). Fire-and-forget.
func (s *Speech) Say(text string) {
	if text == "" {
		return
	}
	s.enqueue(speechRequest{lines: []string{text}})
}

// Close stops the worker. Queued speech is abandoned.
func (s *Speech) Close() {
	close(s.done)
}

func (s *Speech) enqueue(req speechRequest) {
	if !s.enabled {
		return
	}
	select {
	case s.queue <- req:
	default:
		appLog.Warn("speech queue full, dropping announcement", "event_id", req.eventID)
	}
}

func (s *Speech) worker() {
	for {
		select {
		case <-s.done:
			return
		case req := <-s.queue:
			s.play(req)
		}
	}
}

func (s *Speech) play(req speechRequest) {
	for _, line := range req.lines {
		s.mu.Lock()
		if req.eventID != "" && s.silenced[req.eventID] {
			s.mu.Unlock()
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		s.cancelCurrent = cancel
		s.currentEvent = req.eventID
		s.mu.Unlock()

		args := append(append([]string{}, s.args...), line)
		cmd := exec.CommandContext(ctx, s.command, args...)

		appLog.Debug("speaking", "event_id", req.eventID, "text", line)
		if err := cmd.Run(); err != nil && ctx.Err() == nil {
			appLog.Error("tts command failed", err, "command", s.command)
		}

		s.mu.Lock()
		s.cancelCurrent = nil
		s.currentEvent = ""
		s.mu.Unlock()

		cancel()
	}
}
