package client

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"

	"github.com/nightgrid/event-pipeline/internal/config"
	"github.com/nightgrid/event-pipeline/pkg/metrics"
	"github.com/nightgrid/event-pipeline/pkg/retry"
)

// DirectoryEntry is one festival known to the community timetable directory.
type DirectoryEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Desc string `json:"desc"`
}

// TimetableDirectory lists community-maintained festival timetables and
// fetches their raw CSV exports. Both calls share one circuit breaker since
// they hit the same upstream.
type TimetableDirectory struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker[*resty.Response]
}

func NewTimetableDirectory(cfg *config.Config) *TimetableDirectory {
	client := resty.New().
		SetBaseURL(cfg.Clients.TimetableDirectoryURL).
		SetTimeout(cfg.Clients.HTTPTimeout)
	return &TimetableDirectory{
		client:  client,
		breaker: retry.NewBreaker[*resty.Response]("timetable-directory"),
	}
}

// ListAll returns every festival the directory knows about.
func (d *TimetableDirectory) ListAll(ctx context.Context) ([]DirectoryEntry, error) {
	var out []DirectoryEntry
	_, err := d.breaker.Execute(func() (*resty.Response, error) {
		resp, err := d.client.R().
			SetContext(ctx).
			SetResult(&out).
			Get("/festivals")
		metrics.IncreaseExternalCallsMetric("timetable_directory", callResult(resp, err))
		if err != nil {
			return nil, retry.Transient(fmt.Errorf("list timetable directory: %w", err))
		}
		if resp.IsError() {
			return nil, retry.FromStatus(resp.StatusCode(), fmt.Errorf("list timetable directory: status %d", resp.StatusCode()))
		}
		return resp, nil
	})
	if err != nil {
		return nil, openCircuit(err)
	}
	return out, nil
}

// FetchTimetable downloads the raw CSV timetable of one directory entry.
func (d *TimetableDirectory) FetchTimetable(ctx context.Context, id string) ([]byte, error) {
	resp, err := d.breaker.Execute(func() (*resty.Response, error) {
		resp, err := d.client.R().
			SetContext(ctx).
			SetPathParam("id", id).
			Get("/festivals/{id}/timetable.csv")
		metrics.IncreaseExternalCallsMetric("timetable_directory", callResult(resp, err))
		if err != nil {
			return nil, retry.Transient(fmt.Errorf("fetch timetable %s: %w", id, err))
		}
		if resp.IsError() {
			return nil, retry.FromStatus(resp.StatusCode(), fmt.Errorf("fetch timetable %s: status %d", id, resp.StatusCode()))
		}
		return resp, nil
	})
	if err != nil {
		return nil, openCircuit(err)
	}
	return resp.Body(), nil
}
