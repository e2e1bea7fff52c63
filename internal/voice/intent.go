package voice

import (
	"strings"
	"time"

	"pireminder/internal/config"
)

// Kind classifies what a transcript line asks the appliance to do.
type Kind int

const (
	// KindIgnore: not addressed to us, or a bare wake word.
	KindIgnore Kind = iota
	// KindStop: dismiss the active reminder.
	KindStop
	// KindChat: free text for the chatbot.
	KindChat
)

// Decision is the routing outcome for one transcript line.
type Decision struct {
	Kind Kind
	// Text is the chatbot payload when Kind is KindChat.
	Text string
}

// Router turns recognizer transcript lines into intents. Wake words open a
// chat session window during which bare text keeps routing to the chatbot;
// the stop command always wins while a reminder is announcing.
//
// Router is used from the listener goroutine only; it is not safe for
// concurrent use.
type Router struct {
	wakeWords   []string
	stopCommand string
	sessionTTL  time.Duration

	// Announcing reports whether any reminder is currently sounding. While
	// true, a transcript containing the stop command is a stop no matter
	// what else it says.
	Announcing func() bool

	sessionUntil time.Time
}

// NewRouter builds a Router from the speech config.
func NewRouter(cfg config.SpeechConfig) *Router {
	words := make([]string, 0, len(cfg.WakeWords))
	for _, w := range cfg.WakeWords {
		words = append(words, strings.ToLower(strings.TrimSpace(w)))
	}
	return &Router{
		wakeWords:   words,
		stopCommand: strings.ToLower(strings.TrimSpace(cfg.StopCommand)),
		sessionTTL:  time.Duration(cfg.SessionTimeoutSeconds) * time.Second,
	}
}

// Route classifies one transcript line at the given instant.
func (r *Router) Route(text string, now time.Time) Decision {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return Decision{Kind: KindIgnore}
	}

	announcing := r.Announcing != nil && r.Announcing()

	// Stop has priority over everything while an alarm is sounding, and a
	// direct "stop" / "assistant stop" works any time.
	if announcing && containsWord(text, r.stopCommand) {
		return Decision{Kind: KindStop}
	}
	if text == r.stopCommand {
		return Decision{Kind: KindStop}
	}

	if wake, remainder, ok := r.matchWake(text); ok {
		r.sessionUntil = now.Add(r.sessionTTL)
		if remainder == r.stopCommand {
			return Decision{Kind: KindStop}
		}
		if remainder == "" {
			// Bare wake word: session opened, nothing to say yet.
			_ = wake
			return Decision{Kind: KindIgnore}
		}
		return Decision{Kind: KindChat, Text: remainder}
	}

	// Inside an open session, bare text keeps going to the chatbot.
	if now.Before(r.sessionUntil) {
		r.sessionUntil = now.Add(r.sessionTTL)
		return Decision{Kind: KindChat, Text: text}
	}

	return Decision{Kind: KindIgnore}
}

// matchWake checks whether the line starts with one of the wake words and
// returns the remainder after it.
func (r *Router) matchWake(text string) (wake, remainder string, ok bool) {
	for _, w := range r.wakeWords {
		if w == "" {
			continue
		}
		if text == w {
			return w, "", true
		}
		if strings.HasPrefix(text, w+" ") {
			return w, strings.TrimSpace(text[len(w):]), true
		}
	}
	return "", "", false
}

// containsWord reports whether word appears in text as a whole word.
func containsWord(text, word string) bool {
	if word == "" {
		return false
	}
	for _, f := range strings.Fields(text) {
		if strings.Trim(f, ".,!?") == word {
			return true
		}
	}
	return false
}
