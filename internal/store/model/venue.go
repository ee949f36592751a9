package model

import (
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Venue struct {
	gorm.Model
	ID             uuid.UUID `gorm:"primaryKey"`
	Name           string    `gorm:"not null"`
	NormalizedName string    `gorm:"index;not null"`
	Address        string
	City           string
	Country        string
	Latitude       *float64
	Longitude      *float64
	ExternalID     *string `gorm:"index"`
	ImageURL       string
	Genres         []Genre `gorm:"many2many:venue_genres;"`
}

type VenueList []Venue

func (v Venue) String() string {
	val, _ := json.Marshal(v)
	return string(val)
}

// HasCoordinates reports whether the venue already carries a geocoded position.
func (v *Venue) HasCoordinates() bool {
	return v.Latitude != nil && v.Longitude != nil
}
