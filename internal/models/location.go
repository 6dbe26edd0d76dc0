package models

import "time"

// LocationUpdate is one entry of the append-only location feed.
type LocationUpdate struct {
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
}
