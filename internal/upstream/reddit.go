package upstream

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/coinpulse/pulsefeed/internal/domain"
	"github.com/coinpulse/pulsefeed/internal/ingest"
)

// redditListing mirrors the subreddit /new listing payload.
type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				ID          string  `json:"id"`
				Subreddit   string  `json:"subreddit"`
				Title       string  `json:"title"`
				SelfText    string  `json:"selftext"`
				Author      string  `json:"author"`
				Score       *int    `json:"score"`
				NumComments *int    `json:"num_comments"`
				AuthorKarma int64   `json:"author_karma"`
				CreatedUTC  float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// RedditClient fetches recent posts per whitelisted subreddit.
type RedditClient struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
}

// NewRedditClient builds a client against baseURL. Reddit requires a
// descriptive user agent.
func NewRedditClient(baseURL, userAgent, proxyURL string) *RedditClient {
	client := newClient(baseURL, proxyURL).SetHeader("User-Agent", userAgent)
	return &RedditClient{http: client, breaker: newBreaker("reddit")}
}

// FetchPosts implements ingest.RedditFetcher.
func (c *RedditClient) FetchPosts(ctx context.Context, entry domain.SourceEntry, cursor domain.Cursor, limit int) ([]ingest.RedditPost, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		req := c.http.R().
			SetContext(ctx).
			SetQueryParam("limit", strconv.Itoa(limit)).
			SetResult(&redditListing{})
		if cursor.LastProcessedID != "" {
			req.SetQueryParam("before", "t3_"+cursor.LastProcessedID)
		}

		resp, err := req.Get("/r/" + entry.Handle + "/new.json")
		if err != nil {
			return nil, fmt.Errorf("reddit fetch %s: %w", entry.Handle, err)
		}
		if err := checkStatus(resp, "reddit fetch"); err != nil {
			return nil, err
		}
		return resp.Result().(*redditListing), nil
	})
	if err != nil {
		return nil, err
	}

	listing := out.(*redditListing)
	posts := make([]ingest.RedditPost, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		d := child.Data
		ts := ""
		if d.CreatedUTC > 0 {
			ts = time.Unix(int64(d.CreatedUTC), 0).UTC().Format(time.RFC3339)
		}
		posts = append(posts, ingest.RedditPost{
			ID:          d.ID,
			Subreddit:   d.Subreddit,
			Title:       d.Title,
			Body:        d.SelfText,
			Author:      d.Author,
			Score:       d.Score,
			NumComments: d.NumComments,
			AuthorKarma: d.AuthorKarma,
			Timestamp:   ts,
		})
	}
	return posts, nil
}
