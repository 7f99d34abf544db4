package models

import "time"

// Video is an ordered item within a module. Position follows the same dense
// 1..N invariant as Module within its own scope.
type Video struct {
	ID              string    `db:"id" json:"id"`
	ModuleID        string    `db:"module_id" json:"module_id"`
	Title           string    `db:"title" json:"title"`
	URL             string    `db:"url" json:"url"`
	DurationSeconds int       `db:"duration_seconds" json:"duration_seconds"`
	Position        int       `db:"position" json:"position"`
	Published       bool      `db:"published" json:"published"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
