package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pireminder/internal/model"
)

// fakeSource serves a scripted sequence of fetch results.
type fakeSource struct {
	results [][]*model.Event
	errs    []error
	calls   int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchTodayEvents(ctx context.Context) ([]*model.Event, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return nil, nil
}

func ev(id string, at time.Time) *model.Event {
	return &model.Event{ID: id, Title: "Event " + id, ScheduledTime: at}
}

func TestRefreshOrdersByTime(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	src := &fakeSource{results: [][]*model.Event{{
		ev("b", now.Add(2*time.Hour)),
		ev("a", now.Add(1*time.Hour)),
		ev("c", now.Add(3*time.Hour)),
	}}}
	s := New(src, time.UTC)

	require.NoError(t, s.Refresh(context.Background(), now))

	got := s.Events()
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "c", got[2].ID)
}

func TestRefreshErrorKeepsPreviousList(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	src := &fakeSource{
		results: [][]*model.Event{{ev("a", now.Add(time.Hour))}, nil},
		errs:    []error{nil, errors.New("backend unreachable")},
	}
	s := New(src, time.UTC)

	require.NoError(t, s.Refresh(context.Background(), now))
	require.Len(t, s.Events(), 1)

	err := s.Refresh(context.Background(), now.Add(time.Minute))
	require.Error(t, err)

	got := s.Events()
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestRefreshCarriesTriggeredForward(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	src := &fakeSource{results: [][]*model.Event{
		{ev("a", now.Add(time.Hour)), ev("b", now.Add(2*time.Hour))},
		{ev("a", now.Add(time.Hour)), ev("b", now.Add(2*time.Hour))},
	}}
	s := New(src, time.UTC)

	require.NoError(t, s.Refresh(context.Background(), now))
	s.Find("a").Triggered = true

	// Server still reports a untriggered; the local dismissal must survive.
	require.NoError(t, s.Refresh(context.Background(), now.Add(time.Minute)))

	assert.True(t, s.Find("a").Triggered)
	assert.False(t, s.Find("b").Triggered)
}

func TestRefreshTriggeredFromSourceSticks(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	triggered := ev("a", now.Add(time.Hour))
	triggered.Triggered = true
	src := &fakeSource{results: [][]*model.Event{{triggered}}}
	s := New(src, time.UTC)

	require.NoError(t, s.Refresh(context.Background(), now))
	assert.True(t, s.Find("a").Triggered)
}

func TestEventsCopiesSliceSharesRecords(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	src := &fakeSource{results: [][]*model.Event{{ev("a", now.Add(time.Hour))}}}
	s := New(src, time.UTC)
	require.NoError(t, s.Refresh(context.Background(), now))

	got := s.Events()
	got[0].Triggered = true

	// The scheduler flips Triggered through the handed-out pointer and the
	// store must observe it.
	assert.True(t, s.Find("a").Triggered)

	got2 := append(s.Events(), ev("x", now))
	assert.Len(t, got2, 2)
	assert.Len(t, s.Events(), 1)
}

func TestFindUnknown(t *testing.T) {
	s := New(&fakeSource{}, time.UTC)
	assert.Nil(t, s.Find("nope"))
}

func TestRolledOver(t *testing.T) {
	now := time.Date(2025, 6, 1, 23, 50, 0, 0, time.UTC)
	src := &fakeSource{results: [][]*model.Event{nil}}
	s := New(src, time.UTC)

	// Nothing loaded yet: never rolled over.
	assert.False(t, s.RolledOver(now))

	require.NoError(t, s.Refresh(context.Background(), now))
	assert.False(t, s.RolledOver(now.Add(5*time.Minute)))
	assert.True(t, s.RolledOver(now.Add(15*time.Minute)))
}

func TestReloadDropsSetEvenOnFailure(t *testing.T) {
	day1 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	src := &fakeSource{
		results: [][]*model.Event{{ev("a", day1.Add(time.Hour))}, nil},
		errs:    []error{nil, errors.New("down")},
	}
	s := New(src, time.UTC)

	require.NoError(t, s.Refresh(context.Background(), day1))
	require.Len(t, s.Events(), 1)

	// Yesterday's list must not survive a rollover reload, even a failed one.
	err := s.Reload(context.Background(), day2)
	require.Error(t, err)
	assert.Empty(t, s.Events())
	assert.False(t, s.RolledOver(day2))
}

func TestEmptyDay(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	src := &fakeSource{results: [][]*model.Event{{}}}
	s := New(src, time.UTC)

	require.NoError(t, s.Refresh(context.Background(), now))
	assert.Empty(t, s.Events())
}
