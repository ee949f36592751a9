package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Genre struct {
	gorm.Model
	ID   uuid.UUID `gorm:"primaryKey"`
	Name string    `gorm:"uniqueIndex;not null"`
}

type GenreList []Genre
