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

type Venue interface {
	Create(ctx context.Context, venue model.Venue) (*model.Venue, error)
	Update(ctx context.Context, venue model.Venue) (*model.Venue, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Venue, error)
	GetByExternalID(ctx context.Context, externalID string) (*model.Venue, error)
	GetByNormalizedName(ctx context.Context, name string) (*model.Venue, error)
	Names(ctx context.Context) ([]model.EntityName, error)
	InitialMigration(ctx context.Context) error
}

type VenueStore struct {
	db *gorm.DB
}

// Make sure we conform to Venue interface
var _ Venue = (*VenueStore)(nil)

func NewVenueStore(db *gorm.DB) Venue {
	return &VenueStore{db: db}
}

func (s *VenueStore) InitialMigration(ctx context.Context) error {
	return s.getDB(ctx).AutoMigrate(&model.Venue{})
}

func (s *VenueStore) Create(ctx context.Context, venue model.Venue) (*model.Venue, error) {
	if venue.ID == (uuid.UUID{}) {
		venue.ID = uuid.New()
	}
	if err := s.getDB(ctx).Create(&venue).Error; err != nil {
		return nil, fmt.Errorf("creating venue: %w", err)
	}
	return &venue, nil
}

func (s *VenueStore) Update(ctx context.Context, venue model.Venue) (*model.Venue, error) {
	if err := s.getDB(ctx).First(&model.Venue{}, "id = ?", venue.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	if tx := s.getDB(ctx).Clauses(clause.Returning{}).Updates(&venue); tx.Error != nil {
		return nil, tx.Error
	}

	return &venue, nil
}

func (s *VenueStore) Get(ctx context.Context, id uuid.UUID) (*model.Venue, error) {
	var venue model.Venue
	if err := s.getDB(ctx).First(&venue, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying venue: %w", err)
	}
	return &venue, nil
}

func (s *VenueStore) GetByExternalID(ctx context.Context, externalID string) (*model.Venue, error) {
	var venue model.Venue
	if err := s.getDB(ctx).First(&venue, "external_id = ?", externalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying venue by external id: %w", err)
	}
	return &venue, nil
}

func (s *VenueStore) GetByNormalizedName(ctx context.Context, name string) (*model.Venue, error) {
	var venue model.Venue
	if err := s.getDB(ctx).First(&venue, "normalized_name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying venue by name: %w", err)
	}
	return &venue, nil
}

func (s *VenueStore) Names(ctx context.Context) ([]model.EntityName, error) {
	var names []model.EntityName
	err := s.getDB(ctx).Model(&model.Venue{}).
		Select("id, normalized_name as name").
		Scan(&names).Error
	if err != nil {
		return nil, fmt.Errorf("listing venue names: %w", err)
	}
	return names, nil
}

func (s *VenueStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
