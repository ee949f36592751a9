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

type Promoter interface {
	Create(ctx context.Context, promoter model.Promoter) (*model.Promoter, error)
	Update(ctx context.Context, promoter model.Promoter) (*model.Promoter, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Promoter, error)
	GetByExternalID(ctx context.Context, externalID string) (*model.Promoter, error)
	GetByNormalizedName(ctx context.Context, name string) (*model.Promoter, error)
	Names(ctx context.Context) ([]model.EntityName, error)
	LinkVenue(ctx context.Context, promoterID, venueID uuid.UUID) error
	ReplaceGenres(ctx context.Context, promoterID uuid.UUID, genres []model.Genre) error
	InitialMigration(ctx context.Context) error
}

type PromoterStore struct {
	db *gorm.DB
}

// Make sure we conform to Promoter interface
var _ Promoter = (*PromoterStore)(nil)

func NewPromoterStore(db *gorm.DB) Promoter {
	return &PromoterStore{db: db}
}

func (s *PromoterStore) InitialMigration(ctx context.Context) error {
	return s.getDB(ctx).AutoMigrate(&model.Promoter{})
}

func (s *PromoterStore) Create(ctx context.Context, promoter model.Promoter) (*model.Promoter, error) {
	if promoter.ID == (uuid.UUID{}) {
		promoter.ID = uuid.New()
	}
	if err := s.getDB(ctx).Create(&promoter).Error; err != nil {
		return nil, fmt.Errorf("creating promoter: %w", err)
	}
	return &promoter, nil
}

func (s *PromoterStore) Update(ctx context.Context, promoter model.Promoter) (*model.Promoter, error) {
	if err := s.getDB(ctx).First(&model.Promoter{}, "id = ?", promoter.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	if tx := s.getDB(ctx).Clauses(clause.Returning{}).Updates(&promoter); tx.Error != nil {
		return nil, tx.Error
	}

	return &promoter, nil
}

func (s *PromoterStore) Get(ctx context.Context, id uuid.UUID) (*model.Promoter, error) {
	var promoter model.Promoter
	if err := s.getDB(ctx).Preload("Genres").First(&promoter, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying promoter: %w", err)
	}
	return &promoter, nil
}

func (s *PromoterStore) GetByExternalID(ctx context.Context, externalID string) (*model.Promoter, error) {
	var promoter model.Promoter
	if err := s.getDB(ctx).First(&promoter, "external_id = ?", externalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying promoter by external id: %w", err)
	}
	return &promoter, nil
}

func (s *PromoterStore) GetByNormalizedName(ctx context.Context, name string) (*model.Promoter, error) {
	var promoter model.Promoter
	if err := s.getDB(ctx).First(&promoter, "normalized_name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying promoter by name: %w", err)
	}
	return &promoter, nil
}

func (s *PromoterStore) Names(ctx context.Context) ([]model.EntityName, error) {
	var names []model.EntityName
	err := s.getDB(ctx).Model(&model.Promoter{}).
		Select("id, normalized_name as name").
		Scan(&names).Error
	if err != nil {
		return nil, fmt.Errorf("listing promoter names: %w", err)
	}
	return names, nil
}

// LinkVenue marks the promoter as the operator of the venue.
func (s *PromoterStore) LinkVenue(ctx context.Context, promoterID, venueID uuid.UUID) error {
	result := s.getDB(ctx).Model(&model.Promoter{}).
		Where("id = ?", promoterID).
		Update("linked_venue_id", venueID)
	if result.Error != nil {
		return fmt.Errorf("linking promoter to venue: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *PromoterStore) ReplaceGenres(ctx context.Context, promoterID uuid.UUID, genres []model.Genre) error {
	promoter := model.Promoter{ID: promoterID}
	if err := s.getDB(ctx).Model(&promoter).Association("Genres").Replace(genres); err != nil {
		return fmt.Errorf("replacing promoter genres: %w", err)
	}
	return nil
}

func (s *PromoterStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
