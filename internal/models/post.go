// Package models contains the typed documents the client runtime caches and renders from.
package models

import (
	"time"
)

// Post is a cached post document as delivered by the feed and post queries.
// Aggregate counts and membership sets are kept consistent with each other by
// the reconciler; they must never be mutated independently.
type Post struct {
	ID        string    `json:"id"`
	Media     string    `json:"media"`
	Caption   string    `json:"caption"`
	Location  string    `json:"location,omitempty"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`

	// LikerIDs and SaverIDs are the membership sets backing the like/save icon
	// state for the current viewer.
	LikerIDs []string `json:"liker_ids"`
	SaverIDs []string `json:"saver_ids"`

	LikesCount    int       `json:"likes_count"`
	CommentsCount int       `json:"comments_count"`
	Comments      []Comment `json:"comments"`
}

// LikedBy reports whether userID is in the post's liker membership set.
func (p *Post) LikedBy(userID string) bool {
	for _, id := range p.LikerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// SavedBy reports whether userID is in the post's saver membership set.
func (p *Post) SavedBy(userID string) bool {
	for _, id := range p.SaverIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the post. The reconciler snapshots posts before
// applying tentative edits so a rejected mutation can be rolled back exactly.
func (p *Post) Clone() *Post {
	cp := *p
	cp.LikerIDs = append([]string(nil), p.LikerIDs...)
	cp.SaverIDs = append([]string(nil), p.SaverIDs...)
	cp.Comments = append([]Comment(nil), p.Comments...)
	return &cp
}
