package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"photogram/internal/models"
)

// Wire shapes mirror the remote schema's result documents. They are decoded
// once at the transport boundary and converted to models before anything else
// sees them.

type wireUser struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Username     string `json:"username"`
	Name         string `json:"name"`
	ProfileImage string `json:"profile_image"`
}

func (u wireUser) toModel() models.User {
	return models.User{
		ID:           u.ID,
		Username:     u.Username,
		Name:         u.Name,
		ProfileImage: u.ProfileImage,
	}
}

type wireMembership struct {
	UserID string `json:"user_id"`
}

type wireAggregate struct {
	Aggregate struct {
		Count int `json:"count"`
	} `json:"aggregate"`
}

type wireComment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	User      wireUser  `json:"user"`
}

func (c wireComment) toModel() models.Comment {
	return models.Comment{
		ID:        c.ID,
		PostID:    c.PostID,
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
		User:      c.User.toModel(),
	}
}

type wirePost struct {
	ID                string           `json:"id"`
	Media             string           `json:"media"`
	Caption           string           `json:"caption"`
	Location          string           `json:"location"`
	CreatedAt         time.Time        `json:"created_at"`
	User              wireUser         `json:"user"`
	Likes             []wireMembership `json:"likes"`
	SavedPosts        []wireMembership `json:"saved_posts"`
	LikesAggregate    wireAggregate    `json:"likes_aggregate"`
	CommentsAggregate wireAggregate    `json:"comments_aggregate"`
	Comments          []wireComment    `json:"comments"`
}

func (p wirePost) toModel() *models.Post {
	post := &models.Post{
		ID:            p.ID,
		Media:         p.Media,
		Caption:       p.Caption,
		Location:      p.Location,
		CreatedAt:     p.CreatedAt,
		User:          p.User.toModel(),
		LikesCount:    p.LikesAggregate.Aggregate.Count,
		CommentsCount: p.CommentsAggregate.Aggregate.Count,
	}
	for _, m := range p.Likes {
		post.LikerIDs = append(post.LikerIDs, m.UserID)
	}
	for _, m := range p.SavedPosts {
		post.SaverIDs = append(post.SaverIDs, m.UserID)
	}
	for _, c := range p.Comments {
		post.Comments = append(post.Comments, c.toModel())
	}
	return post
}

func wirePostsToModels(posts []wirePost) []*models.Post {
	out := make([]*models.Post, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.toModel())
	}
	return out
}

type wireFollowEdge struct {
	User wireUser `json:"user"`
}

type wireProfile struct {
	wireUser
	Email       string           `json:"email"`
	Bio         string           `json:"bio"`
	Website     string           `json:"website"`
	PhoneNumber string           `json:"phone_number"`
	LastChecked time.Time        `json:"last_checked"`
	Followers   []wireFollowEdge `json:"followers"`
	Following   []wireFollowEdge `json:"following"`
	Posts       []wirePost       `json:"posts"`
	SavedPosts  []struct {
		Post wirePost `json:"post"`
	} `json:"saved_posts"`
}

func (p wireProfile) toModel() *models.Profile {
	profile := &models.Profile{
		User:        p.wireUser.toModel(),
		Email:       p.Email,
		Bio:         p.Bio,
		Website:     p.Website,
		PhoneNumber: p.PhoneNumber,
		LastChecked: p.LastChecked,
	}
	for _, e := range p.Following {
		profile.Following = append(profile.Following, e.User.toModel())
	}
	for _, e := range p.Followers {
		profile.Followers = append(profile.Followers, e.User.toModel())
	}
	for _, wp := range p.Posts {
		profile.Posts = append(profile.Posts, *wp.toModel())
	}
	for _, sp := range p.SavedPosts {
		profile.SavedPosts = append(profile.SavedPosts, *sp.Post.toModel())
	}
	return profile
}

// DecodeMeSnapshot decodes an identity subscription frame into a profile
// document. The subscription returns a single-element users list.
func DecodeMeSnapshot(data []byte) (*models.Profile, error) {
	var payload struct {
		Users []wireProfile `json:"users"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	if len(payload.Users) == 0 {
		return nil, fmt.Errorf("identity snapshot contained no user")
	}
	return payload.Users[0].toModel(), nil
}

// DecodePostSnapshot decodes a live post subscription frame.
func DecodePostSnapshot(data []byte) (*models.Post, error) {
	var payload struct {
		Post *wirePost `json:"posts_by_pk"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	if payload.Post == nil {
		return nil, fmt.Errorf("post snapshot was empty")
	}
	return payload.Post.toModel(), nil
}
