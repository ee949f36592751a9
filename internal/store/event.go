package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nightgrid/event-pipeline/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Event interface {
	Upsert(ctx context.Context, event model.Event) (*model.Event, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Event, error)
	GetBySourceURL(ctx context.Context, sourceURL string) (*model.Event, error)
	List(ctx context.Context, filter *EventQueryFilter) (model.EventList, error)
	ReplaceSlots(ctx context.Context, eventID uuid.UUID, slots []model.EventArtist) error
	SetLineup(ctx context.Context, eventID uuid.UUID, lineup model.Lineup) error
	ReplaceGenres(ctx context.Context, eventID uuid.UUID, genres []model.Genre) error
	ReplacePromoters(ctx context.Context, eventID uuid.UUID, promoters []model.Promoter) error
	InitialMigration(ctx context.Context) error
}

type EventStore struct {
	db *gorm.DB
}

// Make sure we conform to Event interface
var _ Event = (*EventStore)(nil)

func NewEventStore(db *gorm.DB) Event {
	return &EventStore{db: db}
}

func (s *EventStore) InitialMigration(ctx context.Context) error {
	return s.getDB(ctx).AutoMigrate(&model.Event{}, &model.EventArtist{})
}

// Upsert creates the event or, when its source URL is already known, updates
// the existing row in place. Replays of the same listing stay idempotent.
func (s *EventStore) Upsert(ctx context.Context, event model.Event) (*model.Event, error) {
	if event.ID == (uuid.UUID{}) {
		event.ID = uuid.New()
	}
	// associations go through the Replace methods; on conflict the insert id
	// is discarded and association writes would target the wrong row
	if err := s.getDB(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "source_url"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "description", "event_type", "image_url", "ticket_url",
				"starts_at", "ends_at", "venue_id", "updated_at",
			}),
		}).
		Create(&event).Error; err != nil {
		return nil, fmt.Errorf("upserting event: %w", err)
	}

	// the insert id is discarded on conflict, so read the surviving row back
	return s.GetBySourceURL(ctx, event.SourceURL)
}

func (s *EventStore) Get(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	var event model.Event
	err := s.getDB(ctx).
		Preload("Venue").
		Preload("Promoters").
		Preload("Genres").
		Preload("Slots").
		Preload("Slots.Artist").
		First(&event, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying event: %w", err)
	}
	return &event, nil
}

func (s *EventStore) GetBySourceURL(ctx context.Context, sourceURL string) (*model.Event, error) {
	var event model.Event
	err := s.getDB(ctx).First(&event, "source_url = ?", sourceURL).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying event by source url: %w", err)
	}
	return &event, nil
}

func (s *EventStore) List(ctx context.Context, filter *EventQueryFilter) (model.EventList, error) {
	var events model.EventList
	tx := s.getDB(ctx)

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Model(&events).Order("starts_at").Find(&events).Error; err != nil {
		return nil, err
	}

	return events, nil
}

// ReplaceSlots swaps the event's performance slots for the given set, so a
// re-imported timetable never accumulates stale slots.
func (s *EventStore) ReplaceSlots(ctx context.Context, eventID uuid.UUID, slots []model.EventArtist) error {
	db := s.getDB(ctx)

	if err := db.Where("event_id = ?", eventID).Delete(&model.EventArtist{}).Error; err != nil {
		return fmt.Errorf("clearing event slots: %w", err)
	}
	if len(slots) == 0 {
		return nil
	}

	for i := range slots {
		slots[i].EventID = eventID
		if slots[i].ID == (uuid.UUID{}) {
			slots[i].ID = uuid.New()
		}
	}
	if err := db.Create(&slots).Error; err != nil {
		return fmt.Errorf("inserting event slots: %w", err)
	}
	return nil
}

func (s *EventStore) SetLineup(ctx context.Context, eventID uuid.UUID, lineup model.Lineup) error {
	result := s.getDB(ctx).Model(&model.Event{}).
		Where("id = ?", eventID).
		Update("lineup", model.MakeJSONField(lineup))
	if result.Error != nil {
		return fmt.Errorf("updating event lineup: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *EventStore) ReplaceGenres(ctx context.Context, eventID uuid.UUID, genres []model.Genre) error {
	event := model.Event{ID: eventID}
	if err := s.getDB(ctx).Model(&event).Association("Genres").Replace(genres); err != nil {
		return fmt.Errorf("replacing event genres: %w", err)
	}
	return nil
}

func (s *EventStore) ReplacePromoters(ctx context.Context, eventID uuid.UUID, promoters []model.Promoter) error {
	event := model.Event{ID: eventID}
	if err := s.getDB(ctx).Model(&event).Association("Promoters").Replace(promoters); err != nil {
		return fmt.Errorf("replacing event promoters: %w", err)
	}
	return nil
}

func (s *EventStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
