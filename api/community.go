package api

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// FeedItem is a shared recipe on the public community feed.
type FeedItem struct {
	ShareID           int64  `json:"shareId"`
	UserID            int64  `json:"userId"`
	UserName          string `json:"userName,omitempty"`
	RecipeID          int64  `json:"recipeId"`
	RecipeTitle       string `json:"recipeTitle,omitempty"`
	RecipeDescription string `json:"recipeDescription,omitempty"`
	RecipeImageURL    string `json:"recipeImageUrl,omitempty"`
	RecipeCalories    int    `json:"recipeCalories,omitempty"`
	ShareMessage      string `json:"shareMessage,omitempty"`
	SharedAt          string `json:"sharedAt,omitempty"`
}

// Post is a community board post.
type Post struct {
	ID        int64  `json:"id,omitempty"`
	Title     string `json:"title"`
	Content   string `json:"content,omitempty"`
	Likes     int    `json:"likes,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// Feed returns the public community feed.
func (c *Client) Feed(ctx context.Context) ([]FeedItem, error) {
	var feed []FeedItem
	if err := c.getJSON(ctx, "/community/feed", &feed); err != nil {
		return nil, errors.Wrap(err, "[Client.Feed]")
	}
	return feed, nil
}

// Posts lists community posts.
func (c *Client) Posts(ctx context.Context) ([]Post, error) {
	var posts []Post
	if err := c.getJSON(ctx, "/community/posts", &posts); err != nil {
		return nil, errors.Wrap(err, "[Client.Posts]")
	}
	return posts, nil
}

// CreatePost publishes a community post.
func (c *Client) CreatePost(ctx context.Context, post Post) (*Post, error) {
	var stored Post
	if err := c.postJSON(ctx, "/community/posts", post, &stored); err != nil {
		return nil, errors.Wrap(err, "[Client.CreatePost]")
	}
	return &stored, nil
}

// ToggleLike flips the caller's like on a post and returns the new like count.
func (c *Client) ToggleLike(ctx context.Context, postID int64) (int, error) {
	path := fmt.Sprintf("/community/posts/%d/like", postID)
	var resp struct {
		Likes int `json:"likes"`
	}
	if err := c.postJSON(ctx, path, nil, &resp); err != nil {
		return 0, errors.Wrap(err, "[Client.ToggleLike]")
	}
	return resp.Likes, nil
}
