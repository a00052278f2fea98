// Package session holds the authenticated identity and its derived
// relationship sets for the lifetime of a sign-in. The session object is
// constructed once after authentication and passed explicitly to every
// component that needs it; there is no ambient global identity.
package session

import (
	"sync"

	"photogram/internal/models"
)

// Session is the viewer's identity plus the id sets derived from the live
// identity document. Two id spaces meet here: authUID is the identity
// provider's uid (the token subject, and the identity subscription's filter),
// while userID is the viewer's row id in the users table, adopted from the
// first snapshot. Relationship and feed sets are row ids throughout; mixing
// the provider uid into them would break the feed filter and every mutation
// keyed by row id.
type Session struct {
	mu      sync.RWMutex
	authUID string
	userID  string
	profile *models.Profile

	followingIDs []string
	followersIDs []string
	feedIDs      []string

	ready     chan struct{}
	readyOnce sync.Once
}

// NewSession creates a session for the given provider uid. The domain user id
// and the relationship sets are empty until the first identity snapshot
// arrives.
func NewSession(authUID string) *Session {
	return &Session{authUID: authUID, ready: make(chan struct{})}
}

// Ready returns a channel closed once the first identity snapshot has been
// applied and the row id and feed membership are known.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// AuthUID returns the identity provider's uid for the viewer.
func (s *Session) AuthUID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authUID
}

// UserID returns the viewer's row id, "" before the first identity snapshot.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Profile returns the latest identity snapshot, nil before the first one.
func (s *Session) Profile() *models.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// FollowingIDs returns a copy of the ids the viewer follows.
func (s *Session) FollowingIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.followingIDs...)
}

// FollowersIDs returns a copy of the ids following the viewer.
func (s *Session) FollowersIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.followersIDs...)
}

// FeedIDs returns a copy of the ids whose posts populate the viewer's feed.
func (s *Session) FeedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.feedIDs...)
}

// Follows reports whether the viewer currently follows userID.
func (s *Session) Follows(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.followingIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ApplySnapshot rederives every id set from an authoritative identity
// document. The viewer's row id is adopted from the document; the feed set is
// always the following set plus that row id. Snapshots are applied in arrival
// order and replace any optimistic follow state wholesale.
func (s *Session) ApplySnapshot(profile *models.Profile) {
	following := make([]string, 0, len(profile.Following))
	for _, u := range profile.Following {
		following = append(following, u.ID)
	}
	followers := make([]string, 0, len(profile.Followers))
	for _, u := range profile.Followers {
		followers = append(followers, u.ID)
	}

	s.mu.Lock()
	s.profile = profile
	s.userID = profile.ID
	s.followingIDs = following
	s.followersIDs = followers
	s.feedIDs = append(append([]string(nil), following...), profile.ID)
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.ready) })
}

// OptimisticFollow adds userID to the following set (and to the feed set)
// ahead of the next authoritative snapshot. Only the follow action handlers
// call this; nothing else mutates the relationship sets.
func (s *Session) OptimisticFollow(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.followingIDs {
		if id == user.ID {
			return
		}
	}
	s.followingIDs = append(s.followingIDs, user.ID)
	s.feedIDs = s.deriveFeedIDsLocked()
	if s.profile != nil {
		s.profile.Following = append(s.profile.Following, user)
	}
}

// OptimisticUnfollow removes userID from the following and feed sets ahead of
// the next authoritative snapshot.
func (s *Session) OptimisticUnfollow(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.followingIDs[:0]
	for _, id := range s.followingIDs {
		if id != userID {
			kept = append(kept, id)
		}
	}
	s.followingIDs = kept
	s.feedIDs = s.deriveFeedIDsLocked()
	if s.profile != nil {
		edges := s.profile.Following[:0]
		for _, u := range s.profile.Following {
			if u.ID != userID {
				edges = append(edges, u)
			}
		}
		s.profile.Following = edges
	}
}

func (s *Session) deriveFeedIDsLocked() []string {
	ids := append([]string(nil), s.followingIDs...)
	if s.userID != "" {
		ids = append(ids, s.userID)
	}
	return ids
}
