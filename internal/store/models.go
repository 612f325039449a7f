package store

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("store not found")

// Store is a partner business where rewards are redeemed.
type Store struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	Discount   string    `json:"discount"`
	Address    string    `json:"address"`
	Phone      string    `json:"phone"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	DistanceKm *float64  `json:"distance_km,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Query filters the store directory. Near is only applied when both Lat and
// Lng are set.
type Query struct {
	Lat      *float64
	Lng      *float64
	RadiusKm float64
	Category string
	Text     string
}
