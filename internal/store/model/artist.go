package model

import (
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Artist struct {
	gorm.Model
	ID             uuid.UUID `gorm:"primaryKey"`
	Name           string    `gorm:"not null"`
	NormalizedName string    `gorm:"index;not null"`
	ExternalID     *string   `gorm:"index"`
	ExternalURL    string
	ImageURL       string
	Followers      int
	City           string
	Country        string
	Genres         []Genre `gorm:"many2many:artist_genres;"`
}

type ArtistList []Artist

func (a Artist) String() string {
	v, _ := json.Marshal(a)
	return string(v)
}

// EntityName pairs a catalog row id with its normalized name; the resolver
// scans these when looking for a fuzzy match.
type EntityName struct {
	ID   uuid.UUID
	Name string
}
