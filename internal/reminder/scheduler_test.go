package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pireminder/internal/model"
	"pireminder/internal/notify"
)

func newTestScheduler() (*Scheduler, *notify.Mock) {
	mock := notify.NewMock()
	return NewScheduler(testWindows(), mock), mock
}

func TestTickEmptyDay(t *testing.T) {
	s, mock := newTestScheduler()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	out := s.Tick(nil, now)

	assert.Empty(t, out)
	assert.Empty(t, mock.Announced())
	assert.Empty(t, s.states)
}

func TestTickStartingSoonDoesNotAnnounce(t *testing.T) {
	s, mock := newTestScheduler()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	ev := eventAt(now.Add(200 * time.Second))

	out := s.Tick([]*model.Event{ev}, now)

	require.Len(t, out, 1)
	assert.Equal(t, model.StatusStartingSoon, out[0].Status)
	assert.Empty(t, mock.Announced())
	assert.Nil(t, s.stateFor(ev.ID))
}

func TestEnterInProgressAnnouncesOnce(t *testing.T) {
	s, mock := newTestScheduler()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	ev := eventAt(now.Add(-10 * time.Second))

	out := s.Tick([]*model.Event{ev}, now)

	require.Len(t, out, 1)
	assert.Equal(t, model.StatusInProgress, out[0].Status)
	assert.Equal(t, []string{ev.ID}, mock.Announced())

	st := s.stateFor(ev.ID)
	require.NotNil(t, st)
	assert.Equal(t, PhaseAnnouncing, st.Phase)
	assert.Equal(t, now, st.FirstAnnouncedAt)
	assert.Equal(t, now, st.LastAnnouncedAt)

	// An immediate second tick must not announce again.
	s.Tick([]*model.Event{ev}, now.Add(10*time.Second))
	assert.Len(t, mock.Announced(), 1)
}

func TestRepeatAnnouncementAtInterval(t *testing.T) {
	s, mock := newTestScheduler()
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	ev := eventAt(start)

	s.Tick([]*model.Event{ev}, start)
	require.Len(t, mock.Announced(), 1)

	// Just under the interval: nothing.
	s.Tick([]*model.Event{ev}, start.Add(299*time.Second))
	assert.Len(t, mock.Announced(), 1)

	// Past the interval: exactly one more, not two.
	s.Tick([]*model.Event{ev}, start.Add(305*time.Second))
	assert.Len(t, mock.Announced(), 2)

	// The repeat resets the cadence.
	s.Tick([]*model.Event{ev}, start.Add(310*time.Second))
	assert.Len(t, mock.Announced(), 2)
}

func TestAutoStopExpires(t *testing.T) {
	s, mock := newTestScheduler()
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	ev := eventAt(start)

	s.Tick([]*model.Event{ev}, start)
	require.Len(t, mock.Announced(), 1)

	// 1801s after the first announcement: Expired, no further announce.
	out := s.Tick([]*model.Event{ev}, start.Add(1801*time.Second))
	require.Len(t, out, 1)
	assert.Equal(t, model.StatusExpired, out[0].Status)
	assert.Equal(t, PhaseExpired, s.stateFor(ev.ID).Phase)

	// Display override holds on later ticks even though raw classification
	// still computes InProgress, and nothing announces anymore.
	out = s.Tick([]*model.Event{ev}, start.Add(2000*time.Second))
	assert.Equal(t, model.StatusExpired, out[0].Status)
	assert.Len(t, mock.Announced(), 1)
	assert.False(t, ev.Triggered)
}

func TestRequestStopMidAnnouncing(t *testing.T) {
	s, mock := newTestScheduler()
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	ev := eventAt(start)

	var stoppedEvents []string
	s.OnStopped = func(e *model.Event) { stoppedEvents = append(stoppedEvents, e.ID) }

	s.Tick([]*model.Event{ev}, start)
	s.RequestStop(ev.ID)

	// The transition happens on the next tick, not inside RequestStop.
	assert.False(t, ev.Triggered)

	out := s.Tick([]*model.Event{ev}, start.Add(10*time.Second))
	require.Len(t, out, 1)
	assert.True(t, ev.Triggered)
	assert.Equal(t, model.StatusCompleted, out[0].Status)
	assert.Equal(t, PhaseStopped, s.stateFor(ev.ID).Phase)
	assert.Equal(t, []string{ev.ID}, mock.Stopped())
	assert.Equal(t, []string{ev.ID}, stoppedEvents)

	// Thereafter the event stays Completed and silent.
	out = s.Tick([]*model.Event{ev}, start.Add(600*time.Second))
	assert.Equal(t, model.StatusCompleted, out[0].Status)
	assert.Len(t, mock.Announced(), 1)
	assert.Len(t, mock.Stopped(), 1)
}

func TestRequestStopIdempotent(t *testing.T) {
	s, mock := newTestScheduler()
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	ev := eventAt(start)

	s.Tick([]*model.Event{ev}, start)
	s.RequestStop(ev.ID)
	s.RequestStop(ev.ID)
	s.Tick([]*model.Event{ev}, start.Add(10*time.Second))

	// A stop after the terminal transition is accepted and ignored.
	s.RequestStop(ev.ID)
	s.Tick([]*model.Event{ev}, start.Add(20*time.Second))

	assert.Len(t, mock.Stopped(), 1)
	assert.Equal(t, PhaseStopped, s.stateFor(ev.ID).Phase)
}

func TestRequestStopUnknownTarget(t *testing.T) {
	s, _ := newTestScheduler()

	// Must neither panic nor create state.
	s.RequestStop("no-such-event")
	assert.Empty(t, s.states)
}

func TestStopBeforeAnnouncingIsIgnored(t *testing.T) {
	s, mock := newTestScheduler()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	ev := eventAt(now.Add(200 * time.Second)) // StartingSoon, no state yet

	s.RequestStop(ev.ID)
	out := s.Tick([]*model.Event{ev}, now)

	assert.Equal(t, model.StatusStartingSoon, out[0].Status)
	assert.False(t, ev.Triggered)
	assert.Empty(t, mock.Stopped())
}

func TestClassificationLeavingInProgressDiscardsState(t *testing.T) {
	s, mock := newTestScheduler()
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	ev := eventAt(start)

	s.Tick([]*model.Event{ev}, start)
	require.Equal(t, PhaseAnnouncing, s.stateFor(ev.ID).Phase)

	// The event gets rescheduled upstream to later today: classification
	// leaves InProgress, so the scheduler must silence and forget.
	ev.ScheduledTime = start.Add(2 * time.Hour)
	out := s.Tick([]*model.Event{ev}, start.Add(10*time.Second))

	assert.Equal(t, model.StatusUpcoming, out[0].Status)
	assert.Equal(t, []string{ev.ID}, mock.Stopped())
	assert.Nil(t, s.stateFor(ev.ID))
}

func TestStopAllOnlyAffectsAnnouncing(t *testing.T) {
	s, _ := newTestScheduler()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	active := eventAt(now)
	active.ID = "active"
	upcoming := eventAt(now.Add(2 * time.Hour))
	upcoming.ID = "upcoming"

	s.Tick([]*model.Event{active, upcoming}, now)
	s.StopAll()

	out := s.Tick([]*model.Event{active, upcoming}, now.Add(10*time.Second))
	assert.True(t, active.Triggered)
	assert.False(t, upcoming.Triggered)
	assert.Equal(t, model.StatusCompleted, out[0].Status)
	assert.Equal(t, model.StatusUpcoming, out[1].Status)
}

func TestAnnouncing(t *testing.T) {
	s, _ := newTestScheduler()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	ev := eventAt(now)

	assert.False(t, s.Announcing())

	s.Tick([]*model.Event{ev}, now)
	assert.True(t, s.Announcing())

	s.RequestStop(ev.ID)
	s.Tick([]*model.Event{ev}, now.Add(10*time.Second))
	assert.False(t, s.Announcing())
}

func TestVanishedEventStateIsPruned(t *testing.T) {
	s, _ := newTestScheduler()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	ev := eventAt(now)

	s.Tick([]*model.Event{ev}, now)
	require.NotNil(t, s.stateFor(ev.ID))

	// Event no longer returned by the store: state goes with it.
	s.Tick(nil, now.Add(10*time.Second))
	assert.Nil(t, s.stateFor(ev.ID))
}

func TestTerminalStateRetentionBlocksReentry(t *testing.T) {
	s, mock := newTestScheduler()
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	ev := eventAt(start)

	s.Tick([]*model.Event{ev}, start)
	s.Tick([]*model.Event{ev}, start.Add(1801*time.Second)) // Expired
	require.Equal(t, PhaseExpired, s.stateFor(ev.ID).Phase)

	// While retained, a late tick inside the raw InProgress window must not
	// restart announcing.
	s.Tick([]*model.Event{ev}, start.Add(1900*time.Second))
	assert.Len(t, mock.Announced(), 1)

	// Past the grace period the terminal state is pruned.
	s.terminalRetention = 100 * time.Second
	s.Tick([]*model.Event{ev}, start.Add(4000*time.Second))
	assert.Nil(t, s.stateFor(ev.ID))
}

func TestReset(t *testing.T) {
	s, _ := newTestScheduler()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	ev := eventAt(now)

	s.Tick([]*model.Event{ev}, now)
	require.NotNil(t, s.stateFor(ev.ID))

	s.Reset()
	assert.Nil(t, s.stateFor(ev.ID))
}
