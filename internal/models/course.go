package models

import "time"

// Course is the top-level container of ordered modules.
type Course struct {
	ID           string    `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	Description  *string   `db:"description" json:"description,omitempty"`
	InstructorID string    `db:"instructor_id" json:"instructor_id"`
	Published    bool      `db:"published" json:"published"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// CourseDetail enriches a course with instructor info and module count.
type CourseDetail struct {
	Course
	InstructorName string `db:"instructor_name" json:"instructor_name"`
	ModuleCount    int    `db:"module_count" json:"module_count"`
}

// CourseFilter provides filters for listing courses.
type CourseFilter struct {
	InstructorID string
	Published    *bool
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
