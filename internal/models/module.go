package models

import "time"

// Module is an ordered unit of course content. Position is assigned and
// maintained by the ordering layer; within one course the positions of live
// modules are always exactly 1..N.
type Module struct {
	ID          string    `db:"id" json:"id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	Title       string    `db:"title" json:"title"`
	Description *string   `db:"description" json:"description,omitempty"`
	Position    int       `db:"position" json:"position"`
	Published   bool      `db:"published" json:"published"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ModuleDetail enriches a module with its video count.
type ModuleDetail struct {
	Module
	VideoCount int `db:"video_count" json:"video_count"`
}
