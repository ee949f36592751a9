package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Event is a normalized listing, upserted by source URL so replays are idempotent.
type Event struct {
	gorm.Model
	ID          uuid.UUID `gorm:"primaryKey"`
	Title       string    `gorm:"not null"`
	Description string
	EventType   string
	SourceURL   string `gorm:"uniqueIndex;not null"`
	ImageURL    string
	TicketURL   string
	StartsAt    *time.Time
	EndsAt      *time.Time
	VenueID     *uuid.UUID
	Venue       *Venue             `gorm:"constraint:OnDelete:SET NULL;"`
	Lineup      *JSONField[Lineup] `gorm:"type:jsonb"`
	Slots       []EventArtist      `gorm:"constraint:OnDelete:CASCADE;"`
	Promoters   []Promoter         `gorm:"many2many:event_promoters;"`
	Genres      []Genre            `gorm:"many2many:event_genres;"`
}

type EventList []Event

func (e Event) String() string {
	v, _ := json.Marshal(e)
	return string(v)
}

// EventArtist is one performance slot linking an artist to an event, carrying
// the timetable placement when one is known.
type EventArtist struct {
	ID       uuid.UUID `gorm:"primaryKey"`
	EventID  uuid.UUID `gorm:"index;not null"`
	ArtistID uuid.UUID `gorm:"index;not null"`
	Artist   Artist
	Stage    string
	StartsAt *time.Time
	EndsAt   *time.Time
	// Day is the 1-based festival day holding the slot, 0 when the event has
	// no day segmentation.
	Day int
	// Mode tags a shared slot (B2B, B3B, F2F, VS); empty for a solo set.
	Mode string
	// CustomName preserves the combined billing a shared slot was split from.
	CustomName string
}

// Lineup is the timetable summary persisted on a festival event.
type Lineup struct {
	Stages       []string      `json:"stages,omitempty"`
	FestivalDays []FestivalDay `json:"festivalDays,omitempty"`
}

// FestivalDay is one contiguous run of programming within a festival.
type FestivalDay struct {
	Index    int       `json:"index"`
	StartsAt time.Time `json:"startsAt"`
	EndsAt   time.Time `json:"endsAt"`
}
