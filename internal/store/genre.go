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

type Genre interface {
	GetOrCreate(ctx context.Context, name string) (*model.Genre, error)
	GetByName(ctx context.Context, name string) (*model.Genre, error)
	List(ctx context.Context) (model.GenreList, error)
	InitialMigration(ctx context.Context) error
}

type GenreStore struct {
	db *gorm.DB
}

// Make sure we conform to Genre interface
var _ Genre = (*GenreStore)(nil)

func NewGenreStore(db *gorm.DB) Genre {
	return &GenreStore{db: db}
}

func (s *GenreStore) InitialMigration(ctx context.Context) error {
	return s.getDB(ctx).AutoMigrate(&model.Genre{})
}

// GetOrCreate inserts the genre if absent and returns the surviving row either
// way, so concurrent jobs can link the same tag without coordination.
func (s *GenreStore) GetOrCreate(ctx context.Context, name string) (*model.Genre, error) {
	genre := model.Genre{ID: uuid.New(), Name: name}
	if err := s.getDB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).
		Create(&genre).Error; err != nil {
		return nil, fmt.Errorf("creating genre: %w", err)
	}
	return s.GetByName(ctx, name)
}

func (s *GenreStore) GetByName(ctx context.Context, name string) (*model.Genre, error) {
	var genre model.Genre
	if err := s.getDB(ctx).First(&genre, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying genre: %w", err)
	}
	return &genre, nil
}

func (s *GenreStore) List(ctx context.Context) (model.GenreList, error) {
	var genres model.GenreList
	if err := s.getDB(ctx).Order("name").Find(&genres).Error; err != nil {
		return nil, err
	}
	return genres, nil
}

func (s *GenreStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
