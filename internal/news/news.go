package news

import (
	"context"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"

	"pireminder/internal/config"
	appLog "pireminder/internal/log"
)

// Item is one headline for the dashboard's news tab.
type Item struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Link        string    `json:"link"`
	Published   time.Time `json:"published"`
	Source      string    `json:"source"`
}

// Fetcher pulls headlines from the configured RSS feeds.
type Fetcher struct {
	feeds           map[string]string
	maxItemsPerFeed int
	parser          *gofeed.Parser
}

// NewFetcher creates a Fetcher from the news config.
func NewFetcher(cfg config.NewsConfig) *Fetcher {
	return &Fetcher{
		feeds:           cfg.Feeds,
		maxItemsPerFeed: cfg.MaxItemsPerFeed,
		parser:          gofeed.NewParser(),
	}
}

// Fetch pulls every configured feed and returns the merged headlines, newest
// first. Individual feed failures are logged and skipped; a fully failed
// fetch returns an empty slice, never an error, since news is decorative.
func (f *Fetcher) Fetch(ctx context.Context) []Item {
	items := make([]Item, 0)

	for source, url := range f.feeds {
		feed, err := f.parser.ParseURLWithContext(url, ctx)
		if err != nil {
			appLog.Error("news feed fetch failed", err, "source", source)
			continue
		}

		count := 0
		for _, entry := range feed.Items {
			if count >= f.maxItemsPerFeed {
				break
			}
			published := time.Time{}
			if entry.PublishedParsed != nil {
				published = *entry.PublishedParsed
			}
			items = append(items, Item{
				Title:       entry.Title,
				Description: entry.Description,
				Link:        entry.Link,
				Published:   published,
				Source:      source,
			})
			count++
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Published.After(items[j].Published)
	})

	appLog.Debug("news fetch completed", "feed_count", len(f.feeds), "item_count", len(items))
	return items
}
