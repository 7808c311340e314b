package forum

import "time"

// Category is a forum category row.
type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Topic is a forum topic row. Images holds the relative paths of attached
// media as served by the HTTP layer (e.g. "/uploads/<name>.jpg").
type Topic struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	AuthorID   int64     `json:"author_id"`
	CategoryID int64     `json:"category_id"`
	Images     []string  `json:"images"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateTopicInput carries the data needed to materialize one topic.
type CreateTopicInput struct {
	Title      string
	Content    string
	AuthorID   int64
	CategoryID int64
	Images     []string
}
