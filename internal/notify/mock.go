package notify

import (
	"sync"

	"pireminder/internal/model"
)

// Mock records announce/stop calls for tests and dry runs.
type Mock struct {
	mu        sync.Mutex
	announced []string
	stopped   []string
	said      []string
}

// NewMock constructs an empty recording notifier.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Announce(ev *model.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.announced = append(m.announced, ev.ID)
}

func (m *Mock) Stop(ev *model.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = append(m.stopped, ev.ID)
}

func (m *Mock) Say(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.said = append(m.said, text)
}

// Announced returns the event ids passed to Announce, in order.
func (m *Mock) Announced() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.announced...)
}

// Stopped returns the event ids passed to Stop, in order.
func (m *Mock) Stopped() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.stopped...)
}

// Said returns the free-text utterances, in order.
func (m *Mock) Said() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.said...)
}
