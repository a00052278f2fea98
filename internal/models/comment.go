package models

import "time"

// Comment is a single entry in a post's comment sequence. Insertion order is
// arrival order: an optimistic local append precedes server confirmation.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	Content   string    `json:"content"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}
