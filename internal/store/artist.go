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

type Artist interface {
	Create(ctx context.Context, artist model.Artist) (*model.Artist, error)
	Update(ctx context.Context, artist model.Artist) (*model.Artist, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Artist, error)
	GetByExternalID(ctx context.Context, externalID string) (*model.Artist, error)
	GetByNormalizedName(ctx context.Context, name string) (*model.Artist, error)
	Names(ctx context.Context) ([]model.EntityName, error)
	ReplaceGenres(ctx context.Context, artistID uuid.UUID, genres []model.Genre) error
	InitialMigration(ctx context.Context) error
}

type ArtistStore struct {
	db *gorm.DB
}

// Make sure we conform to Artist interface
var _ Artist = (*ArtistStore)(nil)

func NewArtistStore(db *gorm.DB) Artist {
	return &ArtistStore{db: db}
}

func (s *ArtistStore) InitialMigration(ctx context.Context) error {
	return s.getDB(ctx).AutoMigrate(&model.Artist{})
}

func (s *ArtistStore) Create(ctx context.Context, artist model.Artist) (*model.Artist, error) {
	if artist.ID == (uuid.UUID{}) {
		artist.ID = uuid.New()
	}
	if err := s.getDB(ctx).Create(&artist).Error; err != nil {
		return nil, fmt.Errorf("creating artist: %w", err)
	}
	return &artist, nil
}

func (s *ArtistStore) Update(ctx context.Context, artist model.Artist) (*model.Artist, error) {
	if err := s.getDB(ctx).First(&model.Artist{}, "id = ?", artist.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	if tx := s.getDB(ctx).Clauses(clause.Returning{}).Updates(&artist); tx.Error != nil {
		return nil, tx.Error
	}

	return &artist, nil
}

func (s *ArtistStore) Get(ctx context.Context, id uuid.UUID) (*model.Artist, error) {
	var artist model.Artist
	if err := s.getDB(ctx).Preload("Genres").First(&artist, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying artist: %w", err)
	}
	return &artist, nil
}

func (s *ArtistStore) GetByExternalID(ctx context.Context, externalID string) (*model.Artist, error) {
	var artist model.Artist
	if err := s.getDB(ctx).First(&artist, "external_id = ?", externalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying artist by external id: %w", err)
	}
	return &artist, nil
}

func (s *ArtistStore) GetByNormalizedName(ctx context.Context, name string) (*model.Artist, error) {
	var artist model.Artist
	if err := s.getDB(ctx).First(&artist, "normalized_name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying artist by name: %w", err)
	}
	return &artist, nil
}

// Names returns every (id, normalized name) pair for fuzzy scanning.
func (s *ArtistStore) Names(ctx context.Context) ([]model.EntityName, error) {
	var names []model.EntityName
	err := s.getDB(ctx).Model(&model.Artist{}).
		Select("id, normalized_name as name").
		Scan(&names).Error
	if err != nil {
		return nil, fmt.Errorf("listing artist names: %w", err)
	}
	return names, nil
}

func (s *ArtistStore) ReplaceGenres(ctx context.Context, artistID uuid.UUID, genres []model.Genre) error {
	artist := model.Artist{ID: artistID}
	if err := s.getDB(ctx).Model(&artist).Association("Genres").Replace(genres); err != nil {
		return fmt.Errorf("replacing artist genres: %w", err)
	}
	return nil
}

func (s *ArtistStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
