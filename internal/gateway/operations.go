package gateway

// OperationKind distinguishes queries, mutations, and subscriptions.
type OperationKind string

const (
	KindQuery        OperationKind = "query"
	KindMutation     OperationKind = "mutation"
	KindSubscription OperationKind = "subscription"
)

// Operation is a named remote operation with a fixed document. Every remote
// interaction in the runtime goes through one of the operations below.
type Operation struct {
	Name string
	Kind OperationKind
	Doc  string
}

// Variables carries the operation's variable values.
type Variables map[string]interface{}

var (
	// GetFeed pages the home feed for the session's feed ids, newest first.
	// lastTimestamp is the created_at of the oldest loaded post.
	GetFeed = Operation{
		Name: "getFeed",
		Kind: KindQuery,
		Doc: `query getFeed($feedIds: [String!]!, $limit: Int!, $lastTimestamp: timestamptz) {
  posts(where: {user_id: {_in: $feedIds}, created_at: {_lt: $lastTimestamp}},
        order_by: {created_at: desc}, limit: $limit) {
    id media caption location created_at
    user { id username name profile_image }
    likes { user_id }
    saved_posts { user_id }
    likes_aggregate { aggregate { count } }
    comments_aggregate { aggregate { count } }
    comments(order_by: {created_at: asc}) {
      id post_id content created_at
      user { id username name profile_image }
    }
  }
}`,
	}

	// GetPost fetches a single post document.
	GetPost = Operation{
		Name: "getPost",
		Kind: KindQuery,
		Doc: `query getPost($postId: uuid!) {
  posts_by_pk(id: $postId) {
    id media caption location created_at
    user { id username name profile_image }
    likes { user_id }
    saved_posts { user_id }
    likes_aggregate { aggregate { count } }
    comments_aggregate { aggregate { count } }
    comments(order_by: {created_at: asc}) {
      id post_id content created_at
      user { id username name profile_image }
    }
  }
}`,
	}

	// GetMorePostsFromUser lists other posts by a post's author.
	GetMorePostsFromUser = Operation{
		Name: "getMorePostsFromUser",
		Kind: KindQuery,
		Doc: `query getMorePostsFromUser($userId: String!, $postId: uuid!) {
  posts(where: {user_id: {_eq: $userId}, id: {_neq: $postId}},
        order_by: {created_at: desc}, limit: 6) {
    id media likes_aggregate { aggregate { count } } comments_aggregate { aggregate { count } }
  }
}`,
	}

	// ExplorePosts lists posts from users the viewer does not follow.
	ExplorePosts = Operation{
		Name: "explorePosts",
		Kind: KindQuery,
		Doc: `query explorePosts($feedIds: [String!]!) {
  posts(where: {user_id: {_nin: $feedIds}},
        order_by: [{created_at: desc}, {likes_aggregate: {count: desc}}], limit: 21) {
    id media likes_aggregate { aggregate { count } } comments_aggregate { aggregate { count } }
  }
}`,
	}

	// GetProfile fetches a user's profile page document by username.
	GetProfile = Operation{
		Name: "getProfile",
		Kind: KindQuery,
		Doc: `query getProfile($username: String!) {
  users(where: {username: {_eq: $username}}) {
    id username name profile_image bio website
    posts(order_by: {created_at: desc}) { id media }
    saved_posts(order_by: {created_at: desc}) { post { id media } }
    followers { user { id username name profile_image } }
    following { user { id username name profile_image } }
  }
}`,
	}

	// SearchUsers matches usernames and names against a query string.
	SearchUsers = Operation{
		Name: "searchUsers",
		Kind: KindQuery,
		Doc: `query searchUsers($query: String!) {
  users(where: {_or: [{username: {_ilike: $query}}, {name: {_ilike: $query}}]}) {
    id username name profile_image
  }
}`,
	}

	// SuggestUsers lists accounts the viewer might want to follow.
	SuggestUsers = Operation{
		Name: "suggestUsers",
		Kind: KindQuery,
		Doc: `query suggestUsers($limit: Int!, $followerIds: [String!]!, $createdAt: timestamptz!) {
  users(limit: $limit, where: {_or: [{id: {_in: $followerIds}}, {created_at: {_gt: $createdAt}}]}) {
    id username name profile_image
  }
}`,
	}

	// CheckUsernameTaken returns matches for an exact username; an empty
	// result means the username is free.
	CheckUsernameTaken = Operation{
		Name: "checkUsernameTaken",
		Kind: KindQuery,
		Doc: `query checkUsernameTaken($username: String!) {
  users(where: {username: {_eq: $username}}) { id }
}`,
	}

	LikePost = Operation{
		Name: "likePost",
		Kind: KindMutation,
		Doc: `mutation likePost($postId: uuid!, $userId: String!, $profileId: String!) {
  insert_likes(objects: {post_id: $postId, user_id: $userId}) { affected_rows }
  insert_notifications(objects: {post_id: $postId, user_id: $userId, profile_id: $profileId, type: "like"}) { affected_rows }
}`,
	}

	UnlikePost = Operation{
		Name: "unlikePost",
		Kind: KindMutation,
		Doc: `mutation unlikePost($postId: uuid!, $userId: String!, $profileId: String!) {
  delete_likes(where: {post_id: {_eq: $postId}, user_id: {_eq: $userId}}) { affected_rows }
  delete_notifications(where: {post_id: {_eq: $postId}, user_id: {_eq: $userId}, type: {_eq: "like"}}) { affected_rows }
}`,
	}

	SavePost = Operation{
		Name: "savePost",
		Kind: KindMutation,
		Doc: `mutation savePost($postId: uuid!, $userId: String!) {
  insert_saved_posts(objects: {post_id: $postId, user_id: $userId}) { affected_rows }
}`,
	}

	UnsavePost = Operation{
		Name: "unsavePost",
		Kind: KindMutation,
		Doc: `mutation unsavePost($postId: uuid!, $userId: String!) {
  delete_saved_posts(where: {post_id: {_eq: $postId}, user_id: {_eq: $userId}}) { affected_rows }
}`,
	}

	CreateComment = Operation{
		Name: "createComment",
		Kind: KindMutation,
		Doc: `mutation createComment($postId: uuid!, $userId: String!, $content: String!) {
  insert_comments(objects: {post_id: $postId, user_id: $userId, content: $content}) {
    returning {
      id post_id content created_at
      user { id username name profile_image }
    }
  }
}`,
	}

	CreatePost = Operation{
		Name: "createPost",
		Kind: KindMutation,
		Doc: `mutation createPost($userId: String!, $media: String!, $caption: String!, $location: String!) {
  insert_posts(objects: {user_id: $userId, media: $media, caption: $caption, location: $location}) {
    returning { id }
  }
}`,
	}

	DeletePost = Operation{
		Name: "deletePost",
		Kind: KindMutation,
		Doc: `mutation deletePost($postId: uuid!) {
  delete_posts(where: {id: {_eq: $postId}}) { affected_rows }
  delete_likes(where: {post_id: {_eq: $postId}}) { affected_rows }
  delete_comments(where: {post_id: {_eq: $postId}}) { affected_rows }
  delete_saved_posts(where: {post_id: {_eq: $postId}}) { affected_rows }
}`,
	}

	CreateUser = Operation{
		Name: "createUser",
		Kind: KindMutation,
		Doc: `mutation createUser($userId: String!, $name: String!, $username: String!, $email: String!,
                     $bio: String!, $website: String!, $profileImage: String!, $phoneNumber: String!) {
  insert_users(objects: {user_id: $userId, name: $name, username: $username, email: $email,
               bio: $bio, website: $website, profile_image: $profileImage, phone_number: $phoneNumber}) {
    affected_rows
  }
}`,
	}

	EditUser = Operation{
		Name: "editUser",
		Kind: KindMutation,
		Doc: `mutation editUser($id: uuid!, $name: String!, $username: String!, $bio: String!,
                   $email: String!, $website: String!, $phoneNumber: String!) {
  update_users(where: {id: {_eq: $id}}, _set: {name: $name, username: $username, bio: $bio,
               email: $email, website: $website, phone_number: $phoneNumber}) {
    affected_rows
  }
}`,
	}

	EditUserAvatar = Operation{
		Name: "editUserAvatar",
		Kind: KindMutation,
		Doc: `mutation editUserAvatar($id: uuid!, $profileImage: String!) {
  update_users(where: {id: {_eq: $id}}, _set: {profile_image: $profileImage}) { affected_rows }
}`,
	}

	FollowUser = Operation{
		Name: "followUser",
		Kind: KindMutation,
		Doc: `mutation followUser($userIdToFollow: String!, $currentUserId: String!) {
  insert_followers(objects: {user_id: $userIdToFollow, profile_id: $currentUserId}) { affected_rows }
  insert_following(objects: {user_id: $currentUserId, profile_id: $userIdToFollow}) { affected_rows }
}`,
	}

	UnfollowUser = Operation{
		Name: "unfollowUser",
		Kind: KindMutation,
		Doc: `mutation unfollowUser($userIdToFollow: String!, $currentUserId: String!) {
  delete_followers(where: {user_id: {_eq: $userIdToFollow}, profile_id: {_eq: $currentUserId}}) { affected_rows }
  delete_following(where: {user_id: {_eq: $currentUserId}, profile_id: {_eq: $userIdToFollow}}) { affected_rows }
}`,
	}

	// Me streams the viewer's identity document, including follow edges; the
	// session rederives its id sets from every snapshot.
	Me = Operation{
		Name: "me",
		Kind: KindSubscription,
		Doc: `subscription me($userId: String!) {
  users(where: {user_id: {_eq: $userId}}) {
    id user_id username name profile_image last_checked
    followers { user { id username name profile_image } }
    following { user { id username name profile_image } }
  }
}`,
	}

	// GetPostLive streams a single post document for the post-detail view.
	GetPostLive = Operation{
		Name: "getPostLive",
		Kind: KindSubscription,
		Doc: `subscription getPostLive($postId: uuid!) {
  posts_by_pk(id: $postId) {
    id media caption location created_at
    user { id username name profile_image }
    likes { user_id }
    saved_posts { user_id }
    likes_aggregate { aggregate { count } }
    comments_aggregate { aggregate { count } }
    comments(order_by: {created_at: asc}) {
      id post_id content created_at
      user { id username name profile_image }
    }
  }
}`,
	}
)
