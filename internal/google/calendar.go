package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"pireminder/internal/config"
	appLog "pireminder/internal/log"
	"pireminder/internal/model"
)

// Source fetches today's events from a Google Calendar. OAuth credential
// acquisition is out of scope here: the credentials file and a previously
// authorized token file must already exist.
type Source struct {
	service    *calendar.Service
	calendarID string
	loc        *time.Location
}

// NewSource builds an authenticated calendar client from the stored
// credentials and token files. loc is the display timezone; nil means
// time.Local.
func NewSource(ctx context.Context, cfg config.GoogleConfig, loc *time.Location) (*Source, error) {
	if loc == nil {
		loc = time.Local
	}

	b, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("google: read credentials: %w", err)
	}

	oauthCfg, err := google.ConfigFromJSON(b, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("google: parse credentials: %w", err)
	}

	token, err := tokenFromFile(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("google: load token (run the authorization flow first): %w", err)
	}

	service, err := calendar.NewService(ctx, option.WithHTTPClient(oauthCfg.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("google: create calendar service: %w", err)
	}

	return &Source{
		service:    service,
		calendarID: cfg.CalendarID,
		loc:        loc,
	}, nil
}

// Name implements store.Source.
func (s *Source) Name() string { return "google" }

// FetchTodayEvents implements store.Source: timed events of the current
// local day. All-day entries carry no start instant to remind at and are
// skipped.
func (s *Source) FetchTodayEvents(ctx context.Context) ([]*model.Event, error) {
	now := time.Now().In(s.loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	dayEnd := dayStart.Add(24 * time.Hour)

	list, err := s.service.Events.List(s.calendarID).
		Context(ctx).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(dayStart.Format(time.RFC3339)).
		TimeMax(dayEnd.Format(time.RFC3339)).
		OrderBy("startTime").
		Do()
	if err != nil {
		return nil, fmt.Errorf("google: list events: %w", err)
	}

	events := make([]*model.Event, 0, len(list.Items))
	for _, item := range list.Items {
		if item.Start == nil || item.Start.DateTime == "" {
			continue
		}
		start, terr := time.Parse(time.RFC3339, item.Start.DateTime)
		if terr != nil {
			appLog.Error("google event has bad start time", terr, "event_id", item.Id)
			continue
		}

		title := item.Summary
		if title == "" {
			title = "Untitled Event"
		}

		events = append(events, &model.Event{
			ID:            item.Id,
			Title:         title,
			Description:   item.Description,
			ScheduledTime: start.In(s.loc),
		})
	}

	appLog.Debug("google fetch completed", "calendar_id", s.calendarID, "event_count", len(events))
	return events, nil
}

// tokenFromFile retrieves a stored OAuth token.
func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, err
	}
	return token, nil
}
