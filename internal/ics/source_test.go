package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(t *testing.T, date string) (time.Time, time.Time) {
	t.Helper()
	start, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	require.NoError(t, err)
	return start, start.Add(24 * time.Hour)
}

func TestExpandSingleEvent(t *testing.T) {
	dayStart, dayEnd := day(t, "2025-06-01")

	ev := parsedEvent{
		SourceID: "work",
		UID:      "uid-1",
		Summary:  "Standup",
		Start:    time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
	}

	out := expandToday([]parsedEvent{ev}, dayStart, dayEnd)
	require.Len(t, out, 1)
	assert.Equal(t, "work/uid-1@"+"1748770200", out[0].ID)
	assert.Equal(t, "Standup", out[0].Title)
	assert.Equal(t, ev.Start, out[0].ScheduledTime)
}

func TestExpandSkipsOtherDays(t *testing.T) {
	dayStart, dayEnd := day(t, "2025-06-01")

	yesterday := parsedEvent{SourceID: "w", UID: "a", Start: time.Date(2025, 5, 31, 9, 0, 0, 0, time.UTC)}
	tomorrow := parsedEvent{SourceID: "w", UID: "b", Start: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)}
	midnight := parsedEvent{SourceID: "w", UID: "c", Start: dayStart}

	out := expandToday([]parsedEvent{yesterday, tomorrow, midnight}, dayStart, dayEnd)
	require.Len(t, out, 1)
	assert.Equal(t, dayStart, out[0].ScheduledTime)
}

func TestExpandDailyRecurrence(t *testing.T) {
	dayStart, dayEnd := day(t, "2025-06-05")

	ev := parsedEvent{
		SourceID: "work",
		UID:      "uid-d",
		Summary:  "Standup",
		Start:    time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
		RawRRule: "FREQ=DAILY",
	}

	out := expandToday([]parsedEvent{ev}, dayStart, dayEnd)
	require.Len(t, out, 1)
	assert.Equal(t, time.Date(2025, 6, 5, 9, 30, 0, 0, time.UTC), out[0].ScheduledTime)
}

func TestExpandRespectsExdate(t *testing.T) {
	dayStart, dayEnd := day(t, "2025-06-05")

	ev := parsedEvent{
		SourceID: "work",
		UID:      "uid-x",
		Start:    time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
		RawRRule: "FREQ=DAILY",
		ExDates:  []time.Time{time.Date(2025, 6, 5, 9, 30, 0, 0, time.UTC)},
	}

	out := expandToday([]parsedEvent{ev}, dayStart, dayEnd)
	assert.Empty(t, out)
}

func TestExpandAppliesOverride(t *testing.T) {
	dayStart, dayEnd := day(t, "2025-06-05")
	recurrence := time.Date(2025, 6, 5, 9, 30, 0, 0, time.UTC)

	base := parsedEvent{
		SourceID: "work",
		UID:      "uid-o",
		Summary:  "Standup",
		Start:    time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
		RawRRule: "FREQ=DAILY",
	}
	override := parsedEvent{
		SourceID:   "work",
		UID:        "uid-o",
		Summary:    "Standup (moved)",
		Start:      time.Date(2025, 6, 5, 14, 0, 0, 0, time.UTC),
		Recurrence: &recurrence,
		IsOverride: true,
	}

	out := expandToday([]parsedEvent{base, override}, dayStart, dayEnd)
	require.Len(t, out, 1)
	assert.Equal(t, "Standup (moved)", out[0].Title)
	assert.Equal(t, override.Start, out[0].ScheduledTime)
}

func TestExpandOverrideMovedOffDay(t *testing.T) {
	dayStart, dayEnd := day(t, "2025-06-05")
	recurrence := time.Date(2025, 6, 5, 9, 30, 0, 0, time.UTC)

	base := parsedEvent{
		SourceID: "work",
		UID:      "uid-m",
		Start:    time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
		RawRRule: "FREQ=DAILY",
	}
	override := parsedEvent{
		SourceID:   "work",
		UID:        "uid-m",
		Start:      time.Date(2025, 6, 6, 9, 30, 0, 0, time.UTC),
		Recurrence: &recurrence,
		IsOverride: true,
	}

	// The instance moved to tomorrow, so today shows nothing for it.
	out := expandToday([]parsedEvent{base, override}, dayStart, dayEnd)
	assert.Empty(t, out)
}

func TestExpandBadRRule(t *testing.T) {
	dayStart, dayEnd := day(t, "2025-06-05")

	ev := parsedEvent{
		SourceID: "work",
		UID:      "uid-bad",
		Start:    time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
		RawRRule: "FREQ=NEVERLY",
	}

	assert.Empty(t, expandToday([]parsedEvent{ev}, dayStart, dayEnd))
}

func TestParseICS(t *testing.T) {
	payload := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:uid-1",
		"SUMMARY:Dentist",
		"DESCRIPTION:bring insurance card",
		"DTSTART:20250601T093000Z",
		"RRULE:FREQ=WEEKLY",
		"EXDATE:20250608T093000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"SUMMARY:no uid, skipped",
		"DTSTART:20250601T100000Z",
		"END:VEVENT",
		"END:VCALENDAR",
	}, "\r\n")

	events, err := parseICS("personal", []byte(payload))
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "personal", ev.SourceID)
	assert.Equal(t, "uid-1", ev.UID)
	assert.Equal(t, "Dentist", ev.Summary)
	assert.Equal(t, "bring insurance card", ev.Description)
	assert.Equal(t, time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC), ev.Start.UTC())
	assert.False(t, ev.AllDay)
	assert.Equal(t, "FREQ=WEEKLY", ev.RawRRule)
	require.Len(t, ev.ExDates, 1)
	assert.Equal(t, time.Date(2025, 6, 8, 9, 30, 0, 0, time.UTC), ev.ExDates[0])
	assert.False(t, ev.IsOverride)
}

func TestParseICSEmpty(t *testing.T) {
	_, err := parseICS("x", nil)
	require.Error(t, err)
}

func TestParseICSTime(t *testing.T) {
	ts, err := parseICSTime("20250601T093000Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC), ts)

	ts, err = parseICSTime("20250601")
	require.NoError(t, err)
	assert.Equal(t, 2025, ts.Year())

	_, err = parseICSTime("")
	require.Error(t, err)
}
