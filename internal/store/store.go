package store

import (
	"context"

	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Job() Job
	Event() Event
	Artist() Artist
	Venue() Venue
	Promoter() Promoter
	Genre() Genre
	InitialMigration(ctx context.Context) error
	Close() error
}

type DataStore struct {
	db       *gorm.DB
	job      Job
	event    Event
	artist   Artist
	venue    Venue
	promoter Promoter
	genre    Genre
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		db:       db,
		job:      NewJobStore(db),
		event:    NewEventStore(db),
		artist:   NewArtistStore(db),
		venue:    NewVenueStore(db),
		promoter: NewPromoterStore(db),
		genre:    NewGenreStore(db),
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) Event() Event {
	return s.event
}

func (s *DataStore) Artist() Artist {
	return s.artist
}

func (s *DataStore) Venue() Venue {
	return s.venue
}

func (s *DataStore) Promoter() Promoter {
	return s.promoter
}

func (s *DataStore) Genre() Genre {
	return s.genre
}

// InitialMigration creates or upgrades the schema for every store.
func (s *DataStore) InitialMigration(ctx context.Context) error {
	for _, m := range []interface{ InitialMigration(context.Context) error }{
		s.genre, s.artist, s.venue, s.promoter, s.event, s.job,
	} {
		if err := m.InitialMigration(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
