package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"photogram/internal/models"
	"photogram/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

// TokenSource supplies the current bearer token, or "" when signed out.
type TokenSource func() string

// Client executes queries and mutations against the remote gateway over HTTP
// and keeps the normalized cache populated from their results.
type Client struct {
	endpoint string
	http     *http.Client
	token    TokenSource
	cache    *Cache
	logger   *observability.GatewayLogger
}

// NewClient creates a gateway client for the given GraphQL endpoint.
func NewClient(endpoint string, token TokenSource, cache *Cache) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
		token:    token,
		cache:    cache,
		logger:   observability.NewGatewayLogger("http"),
	}
}

// Cache exposes the normalized cache shared with the reconciler and paginator.
func (c *Client) Cache() *Cache {
	return c.cache
}

type requestEnvelope struct {
	OperationName string    `json:"operationName"`
	Query         string    `json:"query"`
	Variables     Variables `json:"variables,omitempty"`
}

type responseEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// RemoteError is a non-transport failure reported by the gateway.
type RemoteError struct {
	Operation string
	Messages  []string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Operation, strings.Join(e.Messages, "; "))
}

// Do executes op with vars and decodes the result document into out. The
// calling task suspends here until the response arrives; out may be nil for
// mutations whose result document is not needed.
func (c *Client) Do(ctx context.Context, op Operation, vars Variables, out interface{}) error {
	span, ctx := observability.NewSpan(ctx, "gateway."+op.Name)
	defer span.End()
	span.AddAttributes(attribute.String("operation.kind", string(op.Kind)))

	start := time.Now()
	err := c.do(ctx, op, vars, out)
	observability.GatewayOperationLatency.WithLabelValues(op.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		span.SetError(err)
		observability.GatewayOperations.WithLabelValues(op.Name, "error").Inc()
		c.logger.LogError(ctx, err, op.Name)
		return err
	}

	observability.GatewayOperations.WithLabelValues(op.Name, "ok").Inc()
	c.logger.LogOperation(ctx, op.Name, map[string]interface{}{"kind": op.Kind})
	return nil
}

func (c *Client) do(ctx context.Context, op Operation, vars Variables, out interface{}) error {
	body, err := json.Marshal(requestEnvelope{
		OperationName: op.Name,
		Query:         op.Doc,
		Variables:     vars,
	})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", op.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op.Name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", op.Name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", op.Name, resp.StatusCode)
	}

	var envelope responseEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", op.Name, err)
	}
	if len(envelope.Errors) > 0 {
		remote := &RemoteError{Operation: op.Name}
		for _, e := range envelope.Errors {
			remote.Messages = append(remote.Messages, e.Message)
		}
		return remote
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode %s data: %w", op.Name, err)
		}
	}
	return nil
}

// FetchFeedPage requests one feed page. A nil lastTimestamp fetches the first
// page; otherwise only posts strictly older than lastTimestamp are returned.
// Results are written through to the cache under the GetFeed document.
func (c *Client) FetchFeedPage(ctx context.Context, feedIDs []string, limit int, lastTimestamp *time.Time) ([]*models.Post, error) {
	vars := Variables{"feedIds": feedIDs, "limit": limit}
	if lastTimestamp != nil {
		vars["lastTimestamp"] = lastTimestamp.UTC().Format(time.RFC3339Nano)
	}

	var payload struct {
		Posts []wirePost `json:"posts"`
	}
	if err := c.Do(ctx, GetFeed, vars, &payload); err != nil {
		return nil, err
	}

	posts := wirePostsToModels(payload.Posts)
	firstPage := Variables{"feedIds": feedIDs, "limit": limit}
	if lastTimestamp == nil {
		c.cache.WritePosts(GetFeed, firstPage, posts)
	} else {
		c.cache.AppendPosts(GetFeed, firstPage, posts)
	}
	return posts, nil
}

// FetchPost fetches and caches a single post document.
func (c *Client) FetchPost(ctx context.Context, postID string) (*models.Post, error) {
	var payload struct {
		Post *wirePost `json:"posts_by_pk"`
	}
	if err := c.Do(ctx, GetPost, Variables{"postId": postID}, &payload); err != nil {
		return nil, err
	}
	if payload.Post == nil {
		return nil, models.NewNotFoundError("post", postID)
	}
	post := payload.Post.toModel()
	c.cache.WritePosts(GetPost, Variables{"postId": postID}, []*models.Post{post})
	return post, nil
}

// FetchMorePostsFromUser fetches the author's other posts for the detail page.
func (c *Client) FetchMorePostsFromUser(ctx context.Context, userID, postID string) ([]*models.Post, error) {
	vars := Variables{"userId": userID, "postId": postID}
	var payload struct {
		Posts []wirePost `json:"posts"`
	}
	if err := c.Do(ctx, GetMorePostsFromUser, vars, &payload); err != nil {
		return nil, err
	}
	// The grid selection is partial; a field-wise merge keeps full documents
	// already cached for these posts intact.
	posts := wirePostsToModels(payload.Posts)
	c.cache.WritePartialPosts(GetMorePostsFromUser, vars, posts)
	return posts, nil
}

// FetchExplore fetches the explore grid for a viewer's feed ids.
func (c *Client) FetchExplore(ctx context.Context, feedIDs []string) ([]*models.Post, error) {
	vars := Variables{"feedIds": feedIDs}
	var payload struct {
		Posts []wirePost `json:"posts"`
	}
	if err := c.Do(ctx, ExplorePosts, vars, &payload); err != nil {
		return nil, err
	}
	posts := wirePostsToModels(payload.Posts)
	c.cache.WritePartialPosts(ExplorePosts, vars, posts)
	return posts, nil
}

// FetchProfile fetches and caches a profile page document.
func (c *Client) FetchProfile(ctx context.Context, username string) (*models.Profile, error) {
	vars := Variables{"username": username}
	var payload struct {
		Users []wireProfile `json:"users"`
	}
	if err := c.Do(ctx, GetProfile, vars, &payload); err != nil {
		return nil, err
	}
	if len(payload.Users) == 0 {
		return nil, models.NewNotFoundError("user", username)
	}
	profile := payload.Users[0].toModel()
	c.cache.WriteProfile(GetProfile, vars, profile)
	return profile, nil
}

// SearchUsers matches profiles against a free-text query.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	vars := Variables{"query": "%" + query + "%"}
	var payload struct {
		Users []wireUser `json:"users"`
	}
	if err := c.Do(ctx, SearchUsers, vars, &payload); err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(payload.Users))
	for _, u := range payload.Users {
		users = append(users, u.toModel())
	}
	c.cache.WriteUsers(SearchUsers, vars, users)
	return users, nil
}

// SuggestUsers lists follow suggestions: the viewer's followers plus recently
// created accounts, excluding anyone already followed.
func (c *Client) SuggestUsers(ctx context.Context, limit int, followerIDs []string, createdAt time.Time) ([]models.User, error) {
	vars := Variables{
		"limit":       limit,
		"followerIds": followerIDs,
		"createdAt":   createdAt.UTC().Format(time.RFC3339Nano),
	}
	var payload struct {
		Users []wireUser `json:"users"`
	}
	if err := c.Do(ctx, SuggestUsers, vars, &payload); err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(payload.Users))
	for _, u := range payload.Users {
		users = append(users, u.toModel())
	}
	return users, nil
}

// UsernameTaken reports whether the exact username already exists.
func (c *Client) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var payload struct {
		Users []wireUser `json:"users"`
	}
	if err := c.Do(ctx, CheckUsernameTaken, Variables{"username": username}, &payload); err != nil {
		return false, err
	}
	return len(payload.Users) > 0, nil
}

// InsertComment runs the createComment mutation and returns the confirmed
// comment document.
func (c *Client) InsertComment(ctx context.Context, postID, userID, content string) (*models.Comment, error) {
	var payload struct {
		Insert struct {
			Returning []wireComment `json:"returning"`
		} `json:"insert_comments"`
	}
	vars := Variables{"postId": postID, "userId": userID, "content": content}
	if err := c.Do(ctx, CreateComment, vars, &payload); err != nil {
		return nil, err
	}
	if len(payload.Insert.Returning) == 0 {
		return nil, &RemoteError{Operation: CreateComment.Name, Messages: []string{"empty returning set"}}
	}
	comment := payload.Insert.Returning[0].toModel()
	return &comment, nil
}

// InsertPost creates a post and returns its id.
func (c *Client) InsertPost(ctx context.Context, userID, media, caption, location string) (string, error) {
	var payload struct {
		Insert struct {
			Returning []struct {
				ID string `json:"id"`
			} `json:"returning"`
		} `json:"insert_posts"`
	}
	vars := Variables{"userId": userID, "media": media, "caption": caption, "location": location}
	if err := c.Do(ctx, CreatePost, vars, &payload); err != nil {
		return "", err
	}
	if len(payload.Insert.Returning) == 0 {
		return "", &RemoteError{Operation: CreatePost.Name, Messages: []string{"empty returning set"}}
	}
	return payload.Insert.Returning[0].ID, nil
}
