package model

import (
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Promoter struct {
	gorm.Model
	ID             uuid.UUID `gorm:"primaryKey"`
	Name           string    `gorm:"not null"`
	NormalizedName string    `gorm:"index;not null"`
	ExternalID     *string   `gorm:"index"`
	ExternalURL    string
	ImageURL       string
	// LinkedVenueID is set when the promoter and a venue share a normalized
	// name, i.e. the same operator runs both.
	LinkedVenueID *uuid.UUID
	Genres        []Genre `gorm:"many2many:promoter_genres;"`
}

type PromoterList []Promoter

func (p Promoter) String() string {
	v, _ := json.Marshal(p)
	return string(v)
}
