package models

import "time"

// VideoProgress records one user's watch state for one video, upserted on
// every watch event. watched_seconds is last-write-wins: rewinding a video
// legitimately reports a smaller value than a previous event.
type VideoProgress struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	VideoID        string    `db:"video_id" json:"video_id"`
	WatchedSeconds int       `db:"watched_seconds" json:"watched_seconds"`
	IsCompleted    bool      `db:"is_completed" json:"is_completed"`
	LastWatchedAt  time.Time `db:"last_watched_at" json:"last_watched_at"`
}

// CourseCompletion aggregates a student's module completion for a course.
type CourseCompletion struct {
	CourseID         string  `json:"course_id"`
	StudentID        string  `json:"student_id"`
	CompletedModules int     `json:"completed_modules"`
	TotalModules     int     `json:"total_modules"`
	Percentage       float64 `json:"percentage"`
}
