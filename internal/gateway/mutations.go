package gateway

import (
	"context"
)

// InsertUser registers the profile document for a newly created identity.
func (c *Client) InsertUser(ctx context.Context, userID, name, username, email, profileImage string) error {
	vars := Variables{
		"userId":       userID,
		"name":         name,
		"username":     username,
		"email":        email,
		"bio":          "",
		"website":      "",
		"profileImage": profileImage,
		"phoneNumber":  "",
	}
	return c.Do(ctx, CreateUser, vars, nil)
}

// EditUserInput is the editable slice of a profile document.
type EditUserInput struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Username    string `json:"username"`
	Bio         string `json:"bio"`
	Email       string `json:"email"`
	Website     string `json:"website"`
	PhoneNumber string `json:"phone_number"`
}

// UpdateUser edits the mutable profile fields.
func (c *Client) UpdateUser(ctx context.Context, in EditUserInput) error {
	vars := Variables{
		"id":          in.ID,
		"name":        in.Name,
		"username":    in.Username,
		"bio":         in.Bio,
		"email":       in.Email,
		"website":     in.Website,
		"phoneNumber": in.PhoneNumber,
	}
	return c.Do(ctx, EditUser, vars, nil)
}

// UpdateAvatar points the profile at a newly uploaded image URL.
func (c *Client) UpdateAvatar(ctx context.Context, profileID, imageURL string) error {
	return c.Do(ctx, EditUserAvatar, Variables{"id": profileID, "profileImage": imageURL}, nil)
}

// RemovePost deletes a post with its likes, comments, and saves, then drops
// it from the cache so every document stops rendering it.
func (c *Client) RemovePost(ctx context.Context, postID string) error {
	if err := c.Do(ctx, DeletePost, Variables{"postId": postID}, nil); err != nil {
		return err
	}
	c.cache.RemovePost(postID)
	return nil
}

// Follow creates the follower/following edge pair.
func (c *Client) Follow(ctx context.Context, userIDToFollow, currentUserID string) error {
	vars := Variables{"userIdToFollow": userIDToFollow, "currentUserId": currentUserID}
	return c.Do(ctx, FollowUser, vars, nil)
}

// Unfollow removes the follower/following edge pair.
func (c *Client) Unfollow(ctx context.Context, userIDToUnfollow, currentUserID string) error {
	vars := Variables{"userIdToFollow": userIDToUnfollow, "currentUserId": currentUserID}
	return c.Do(ctx, UnfollowUser, vars, nil)
}
