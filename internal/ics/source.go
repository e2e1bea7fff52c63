package ics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/teambition/rrule-go"

	"pireminder/internal/config"
	appLog "pireminder/internal/log"
	"pireminder/internal/model"
)

// maxOccurrencesPerDay caps recurrence expansion per event, a safety net
// against pathological RRULEs (e.g. FREQ=SECONDLY).
const maxOccurrencesPerDay = 500

// Source is an ICS-subscription event source. Each configured feed is
// fetched, parsed and recurrence-expanded into the current day's
// occurrences.
type Source struct {
	feeds  []config.ICSConfig
	client *http.Client
	loc    *time.Location
}

// NewSource creates an ICS Source over the configured feeds. loc is the
// display timezone; nil means time.Local.
func NewSource(feeds []config.ICSConfig, loc *time.Location) *Source {
	if loc == nil {
		loc = time.Local
	}
	return &Source{
		feeds: feeds,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		loc: loc,
	}
}

// Name implements store.Source.
func (s *Source) Name() string { return "ics" }

// FetchTodayEvents implements store.Source: every occurrence of every feed
// that starts today, with deterministic ids (source/uid@start-unix) so the
// same logical occurrence keeps its id across refreshes.
func (s *Source) FetchTodayEvents(ctx context.Context) ([]*model.Event, error) {
	now := time.Now().In(s.loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	dayEnd := dayStart.Add(24 * time.Hour)

	events := make([]*model.Event, 0)
	var firstErr error

	for _, feed := range s.feeds {
		body, err := s.fetchFeed(ctx, feed)
		if err != nil {
			appLog.Error("ics fetch failed", err, "id", feed.ID)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		parsed, err := parseICS(feed.ID, body)
		if err != nil {
			appLog.Error("ics parse failed", err, "id", feed.ID)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		events = append(events, expandToday(parsed, dayStart, dayEnd)...)
	}

	// All feeds down is a transient fetch failure; partial results win
	// over none.
	if len(events) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return events, nil
}

func (s *Source) fetchFeed(ctx context.Context, feed config.ICSConfig) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ics: feed %s returned %s", feed.ID, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// expandToday turns parsed VEVENTs into concrete events starting within
// [dayStart, dayEnd). Overrides (RECURRENCE-ID) replace matching base
// instances; EXDATE removes them.
func expandToday(parsed []parsedEvent, dayStart, dayEnd time.Time) []*model.Event {
	loc := dayStart.Location()

	overridesByUID := make(map[string][]parsedEvent)
	bases := make([]parsedEvent, 0, len(parsed))
	for _, ev := range parsed {
		if ev.IsOverride {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		bases = append(bases, ev)
	}

	out := make([]*model.Event, 0)
	for _, ev := range bases {
		for _, start := range occurrenceStarts(ev, dayStart, dayEnd) {
			title := ev.Summary
			desc := ev.Description
			occStart := start

			if o, ok := overrideForStart(overridesByUID[ev.UID], start); ok {
				title = o.Summary
				desc = o.Description
				occStart = o.Start
			}
			if occStart.Before(dayStart) || !occStart.Before(dayEnd) {
				continue
			}

			occStart = occStart.In(loc)
			out = append(out, &model.Event{
				ID:            ev.SourceID + "/" + ev.UID + "@" + strconv.FormatInt(occStart.Unix(), 10),
				Title:         title,
				Description:   desc,
				ScheduledTime: occStart,
			})
		}
	}
	return out
}

// occurrenceStarts returns the start times of ev within [dayStart, dayEnd),
// expanding RRULE and applying EXDATE when present.
func occurrenceStarts(ev parsedEvent, dayStart, dayEnd time.Time) []time.Time {
	if ev.RawRRule == "" {
		if ev.Start.Before(dayStart) || !ev.Start.Before(dayEnd) {
			return nil
		}
		return []time.Time{ev.Start}
	}

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Between() works in the event's own location; dayEnd is exclusive.
	starts := set.Between(
		dayStart.In(ev.Start.Location()),
		dayEnd.In(ev.Start.Location()).Add(-time.Nanosecond),
		true,
	)
	if len(starts) > maxOccurrencesPerDay {
		appLog.Warn("ics: occurrence cap hit", "uid", ev.UID, "cap", maxOccurrencesPerDay)
		starts = starts[:maxOccurrencesPerDay]
	}
	return starts
}

// overrideForStart finds an override whose RECURRENCE-ID matches the given
// base start with exact time equality.
func overrideForStart(overrides []parsedEvent, baseStart time.Time) (parsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence == nil {
			continue
		}
		if ov.Recurrence.In(baseStart.Location()).Equal(baseStart) {
			return ov, true
		}
	}
	return parsedEvent{}, false
}
