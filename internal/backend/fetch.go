package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pireminder/internal/config"
	appLog "pireminder/internal/log"
	"pireminder/internal/model"
)

// Fetcher is the JSON reminder-backend event source. The backend exposes:
//
//	GET  {url}{events_endpoint}            -> {"events": [...]}
//	POST {url}/events/{id}/triggered       -> 2xx on success
type Fetcher struct {
	baseURL        string
	eventsEndpoint string
	client         *http.Client
	loc            *time.Location
}

// wireEvent is the backend's JSON event shape. Times arrive either as RFC3339
// ("event_time") or as "2006-01-02 15:04:05"; older backends use "time" as
// the key.
type wireEvent struct {
	ID          json.Number `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	EventTime   string      `json:"event_time"`
	Time        string      `json:"time"`
	Triggered   bool        `json:"triggered"`
}

type wireEnvelope struct {
	Events []wireEvent `json:"events"`
}

// NewFetcher creates a backend Fetcher from config. loc is the display
// timezone used when the backend sends zone-less timestamps; nil means
// time.Local.
func NewFetcher(cfg config.BackendConfig, loc *time.Location) *Fetcher {
	if loc == nil {
		loc = time.Local
	}
	return &Fetcher{
		baseURL:        strings.TrimRight(cfg.URL, "/"),
		eventsEndpoint: cfg.EventsEndpoint,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		loc: loc,
	}
}

// Name implements store.Source.
func (f *Fetcher) Name() string { return "backend" }

// FetchTodayEvents implements store.Source.
func (f *Fetcher) FetchTodayEvents(ctx context.Context) ([]*model.Event, error) {
	url := f.baseURL + f.eventsEndpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend: %s returned %s", redactURL(url), resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var envelope wireEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("backend: decode events: %w", err)
	}

	events := make([]*model.Event, 0, len(envelope.Events))
	for _, we := range envelope.Events {
		ev, perr := f.parseEvent(we)
		if perr != nil {
			// Log and skip this record, but keep the rest of the day usable.
			appLog.Error("backend event parse failed", perr, "id", we.ID.String())
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("backend fetch completed", "url", redactURL(url), "event_count", len(events))
	return events, nil
}

func (f *Fetcher) parseEvent(we wireEvent) (*model.Event, error) {
	if we.ID.String() == "" {
		return nil, errors.New("missing id")
	}

	raw := we.EventTime
	if raw == "" {
		raw = we.Time
	}
	if raw == "" {
		return nil, errors.New("missing event_time")
	}

	ts, err := parseEventTime(raw, f.loc)
	if err != nil {
		return nil, fmt.Errorf("bad event_time %q: %w", raw, err)
	}

	title := we.Title
	if title == "" {
		title = "Untitled Event"
	}

	return &model.Event{
		ID:            we.ID.String(),
		Title:         title,
		Description:   we.Description,
		ScheduledTime: ts,
		Triggered:     we.Triggered,
	}, nil
}

// MarkTriggered tells the backend an event was dismissed. Failures are the
// caller's to log; local state is authoritative either way.
func (f *Fetcher) MarkTriggered(ctx context.Context, eventID string) error {
	url := fmt.Sprintf("%s/events/%s/triggered", f.baseURL, eventID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend: mark triggered returned %s", resp.Status)
	}

	appLog.Info("event marked triggered on backend", "event_id", eventID)
	return nil
}

// parseEventTime accepts RFC3339 or the backend's legacy zone-less form.
func parseEventTime(raw string, loc *time.Location) (time.Time, error) {
	if strings.Contains(raw, "T") {
		return time.Parse(time.RFC3339, raw)
	}
	return time.ParseInLocation("2006-01-02 15:04:05", raw, loc)
}

// redactURL hides sensitive parts of a backend URL for logging purposes.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := strings.Index(u, "://")
	if i == -1 {
		return "backend://...(redacted)"
	}

	rest := u[i+3:]
	j := strings.IndexByte(rest, '/')
	if j == -1 {
		return u
	}
	return u[:i+3+j] + redactedSuffix
}
