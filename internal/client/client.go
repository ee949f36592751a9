// Package client holds the HTTP collaborators the pipeline consumes: the
// event scraper, the artist search, the geocoder, the timetable directory
// and the lineup extractor. Every client classifies failures for pkg/retry
// and reports each call to the external-calls metric.
package client

import (
	"errors"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"

	"github.com/nightgrid/event-pipeline/pkg/retry"
)

func callResult(resp *resty.Response, err error) string {
	switch {
	case err != nil:
		return "error"
	case resp.IsError():
		return strconv.Itoa(resp.StatusCode())
	default:
		return "ok"
	}
}

// openCircuit turns gobreaker rejections into transient errors so callers
// back off instead of counting them against the job's retry budget.
func openCircuit(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return retry.Transient(err)
	}
	return err
}
