package client

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"

	"github.com/nightgrid/event-pipeline/internal/config"
	"github.com/nightgrid/event-pipeline/pkg/metrics"
	"github.com/nightgrid/event-pipeline/pkg/retry"
)

// ScrapedEvent is the raw listing returned by the scraper collaborator.
type ScrapedEvent struct {
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	StartTimestamp int64            `json:"startTimestamp"`
	EndTimestamp   int64            `json:"endTimestamp"`
	Location       *ScrapedLocation `json:"location"`
	Hosts          []ScrapedHost    `json:"hosts"`
	Photo          *ScrapedPhoto    `json:"photo"`
	TicketURL      string           `json:"ticketUrl"`
}

type ScrapedLocation struct {
	Name      string   `json:"name"`
	Address   string   `json:"address"`
	City      string   `json:"city"`
	Country   string   `json:"country"`
	Latitude  *float64 `json:"lat"`
	Longitude *float64 `json:"lng"`
}

type ScrapedHost struct {
	Name string `json:"name"`
	ID   string `json:"id"`
	URL  string `json:"url"`
}

type ScrapedPhoto struct {
	URL string `json:"url"`
}

// StartTime converts the unix timestamp, nil when the listing has none.
func (e *ScrapedEvent) StartTime() *time.Time {
	if e.StartTimestamp == 0 {
		return nil
	}
	ts := time.Unix(e.StartTimestamp, 0).UTC()
	return &ts
}

func (e *ScrapedEvent) EndTime() *time.Time {
	if e.EndTimestamp == 0 {
		return nil
	}
	ts := time.Unix(e.EndTimestamp, 0).UTC()
	return &ts
}

// Scraper fetches event listings from the scraping collaborator. Calls run
// through a circuit breaker: a dead scraper trips open instead of burning
// the retry budget of every queued job.
type Scraper struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker[*ScrapedEvent]
}

func NewScraper(cfg *config.Config) *Scraper {
	client := resty.New().
		SetBaseURL(cfg.Clients.ScraperURL).
		SetTimeout(cfg.Clients.HTTPTimeout)
	return &Scraper{
		client:  client,
		breaker: retry.NewBreaker[*ScrapedEvent]("scraper"),
	}
}

type scrapeRequest struct {
	URL string `json:"url"`
}

// Scrape fetches the listing behind sourceURL. The call is idempotent and
// side-effect-free on the collaborator.
func (s *Scraper) Scrape(ctx context.Context, sourceURL string) (*ScrapedEvent, error) {
	event, err := s.breaker.Execute(func() (*ScrapedEvent, error) {
		return s.scrape(ctx, sourceURL)
	})
	return event, openCircuit(err)
}

func (s *Scraper) scrape(ctx context.Context, sourceURL string) (*ScrapedEvent, error) {
	var out ScrapedEvent
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(scrapeRequest{URL: sourceURL}).
		SetResult(&out).
		Post("/scrape")
	metrics.IncreaseExternalCallsMetric("scraper", callResult(resp, err))
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("scrape %s: %w", sourceURL, err))
	}
	if resp.IsError() {
		return nil, retry.FromStatus(resp.StatusCode(), fmt.Errorf("scrape %s: status %d: %s", sourceURL, resp.StatusCode(), resp.String()))
	}
	return &out, nil
}
