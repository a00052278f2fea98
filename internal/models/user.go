package models

import "time"

// User is the public profile shape embedded in posts, comments, and suggestion lists.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Name         string `json:"name"`
	ProfileImage string `json:"profile_image"`
}

// Profile is the full profile document returned by the profile query and the
// identity subscription. Following/Followers carry the edge targets only; the
// session derives its id sets from them.
type Profile struct {
	User
	Email       string    `json:"email"`
	Bio         string    `json:"bio"`
	Website     string    `json:"website"`
	PhoneNumber string    `json:"phone_number"`
	Following   []User    `json:"following"`
	Followers   []User    `json:"followers"`
	Posts       []Post    `json:"posts"`
	SavedPosts  []Post    `json:"saved_posts"`
	LastChecked time.Time `json:"last_checked"`
}

// Clone returns a deep copy of the profile document.
func (p *Profile) Clone() *Profile {
	cp := *p
	cp.Following = append([]User(nil), p.Following...)
	cp.Followers = append([]User(nil), p.Followers...)
	cp.Posts = clonePosts(p.Posts)
	cp.SavedPosts = clonePosts(p.SavedPosts)
	return &cp
}

func clonePosts(posts []Post) []Post {
	if posts == nil {
		return nil
	}
	out := make([]Post, len(posts))
	for i := range posts {
		out[i] = *posts[i].Clone()
	}
	return out
}
