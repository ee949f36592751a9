package store

import (
	"gorm.io/gorm"
)

type SortOrder int

const (
	Unsorted SortOrder = iota
	SortByPriority
	SortByCreatedTime
	SortByNewestFirst
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

type JobQueryFilter BaseQuerier

func NewJobQueryFilter() *JobQueryFilter {
	return &JobQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *JobQueryFilter) ByStatus(status string) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status = ?", status)
	})
	return qf
}

func (qf *JobQueryFilter) BySourceURL(sourceURL string) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("source_url = ?", sourceURL)
	})
	return qf
}

// ByRetryExhausted keeps only terminally failed jobs, the "failures" view.
func (qf *JobQueryFilter) ByRetryExhausted() *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status = ? AND retry_count >= max_retries", "failed")
	})
	return qf
}

type JobQueryOptions BaseQuerier

func NewJobQueryOptions() *JobQueryOptions {
	return &JobQueryOptions{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (o *JobQueryOptions) WithLimit(limit int) *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Limit(limit)
	})
	return o
}

func (o *JobQueryOptions) WithSortOrder(sort SortOrder) *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		switch sort {
		case SortByPriority:
			return tx.Order("priority DESC, created_at ASC")
		case SortByCreatedTime:
			return tx.Order("created_at ASC")
		case SortByNewestFirst:
			return tx.Order("created_at DESC")
		default:
			return tx
		}
	})
	return o
}

type EventQueryFilter BaseQuerier

func NewEventQueryFilter() *EventQueryFilter {
	return &EventQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *EventQueryFilter) ByEventType(eventType string) *EventQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("event_type = ?", eventType)
	})
	return qf
}

func (qf *EventQueryFilter) ByVenueID(venueID string) *EventQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("venue_id = ?", venueID)
	})
	return qf
}
