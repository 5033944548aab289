package entity

import "time"

// ReviewComment is a remark left on a version during authoring or review
type ReviewComment struct {
	ID        string    `json:"id"`
	VersionID string    `json:"version_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
