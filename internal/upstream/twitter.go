package upstream

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/coinpulse/pulsefeed/internal/domain"
	"github.com/coinpulse/pulsefeed/internal/ingest"
)

// twitterTweet mirrors the upstream search payload.
type twitterTweet struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
	Author    struct {
		Handle    string `json:"username"`
		Followers int    `json:"followers_count"`
		Protected bool   `json:"protected"`
	} `json:"author"`
	Metrics struct {
		Likes    int `json:"like_count"`
		Retweets int `json:"retweet_count"`
		Replies  int `json:"reply_count"`
	} `json:"public_metrics"`
	Retweeted  bool   `json:"is_retweet"`
	QuotedText string `json:"quoted_text"`
	Promoted   bool   `json:"promoted"`
}

type twitterResponse struct {
	Tweets []twitterTweet `json:"data"`
}

// TwitterClient fetches recent tweets per whitelisted entry.
type TwitterClient struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
}

// NewTwitterClient builds a client against baseURL with bearerToken.
func NewTwitterClient(baseURL, bearerToken, proxyURL string) *TwitterClient {
	client := newClient(baseURL, proxyURL).SetAuthToken(bearerToken)
	return &TwitterClient{http: client, breaker: newBreaker("twitter")}
}

// FetchTweets implements ingest.TwitterFetcher.
func (c *TwitterClient) FetchTweets(ctx context.Context, entry domain.SourceEntry, cursor domain.Cursor, limit int) ([]ingest.Tweet, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		req := c.http.R().
			SetContext(ctx).
			SetQueryParam("limit", strconv.Itoa(limit)).
			SetResult(&twitterResponse{})
		if cursor.LastProcessedID != "" {
			req.SetQueryParam("since_id", cursor.LastProcessedID)
		}

		var path string
		switch entry.Kind {
		case domain.EntryList:
			path = "/2/lists/" + entry.Handle + "/tweets"
		case domain.EntryQuery:
			req.SetQueryParam("query", entry.Handle)
			path = "/2/tweets/search/recent"
		default:
			path = "/2/users/by/" + entry.Handle + "/tweets"
		}

		resp, err := req.Get(path)
		if err != nil {
			return nil, fmt.Errorf("twitter fetch %s: %w", entry.Handle, err)
		}
		if err := checkStatus(resp, "twitter fetch"); err != nil {
			return nil, err
		}
		return resp.Result().(*twitterResponse), nil
	})
	if err != nil {
		return nil, err
	}

	payload := out.(*twitterResponse)
	tweets := make([]ingest.Tweet, 0, len(payload.Tweets))
	for _, t := range payload.Tweets {
		tweets = append(tweets, ingest.Tweet{
			ID:              t.ID,
			AuthorHandle:    t.Author.Handle,
			Text:            t.Text,
			Timestamp:       t.CreatedAt,
			Likes:           t.Metrics.Likes,
			Retweets:        t.Metrics.Retweets,
			Replies:         t.Metrics.Replies,
			AuthorFollowers: t.Author.Followers,
			IsRetweet:       t.Retweeted,
			QuotedText:      t.QuotedText,
			AuthorProtected: t.Author.Protected,
			Promoted:        t.Promoted,
		})
	}
	return tweets, nil
}
