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

// telegramMessage mirrors the bridge's channel history payload. The
// bridge sits in front of MTProto and exposes whitelisted chats over
// plain HTTP.
type telegramMessage struct {
	ID       int64  `json:"id"`
	Chat     string `json:"chat"`
	Text     string `json:"text"`
	Date     string `json:"date"`
	Forward  bool   `json:"is_forward"`
	ForwFrom string `json:"forward_from"`
	ViaBot   bool   `json:"via_bot"`
}

type telegramResponse struct {
	Messages []telegramMessage `json:"messages"`
}

// TelegramClient fetches recent messages per whitelisted chat.
type TelegramClient struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
}

// NewTelegramClient builds a client against the bridge at baseURL.
func NewTelegramClient(baseURL, apiKey, proxyURL string) *TelegramClient {
	client := newClient(baseURL, proxyURL)
	if apiKey != "" {
		client.SetHeader("X-Api-Key", apiKey)
	}
	return &TelegramClient{http: client, breaker: newBreaker("telegram")}
}

// FetchMessages implements ingest.TelegramFetcher.
func (c *TelegramClient) FetchMessages(ctx context.Context, entry domain.SourceEntry, cursor domain.Cursor, limit int) ([]ingest.TelegramMessage, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		req := c.http.R().
			SetContext(ctx).
			SetQueryParam("limit", strconv.Itoa(limit)).
			SetResult(&telegramResponse{})
		if cursor.LastProcessedID != "" {
			req.SetQueryParam("min_id", cursor.LastProcessedID)
		}

		resp, err := req.Get("/v1/chats/" + entry.Handle + "/messages")
		if err != nil {
			return nil, fmt.Errorf("telegram fetch %s: %w", entry.Handle, err)
		}
		if err := checkStatus(resp, "telegram fetch"); err != nil {
			return nil, err
		}
		return resp.Result().(*telegramResponse), nil
	})
	if err != nil {
		return nil, err
	}

	payload := out.(*telegramResponse)
	msgs := make([]ingest.TelegramMessage, 0, len(payload.Messages))
	for _, m := range payload.Messages {
		ts := m.Date
		if unix, err := strconv.ParseInt(m.Date, 10, 64); err == nil {
			// Some bridge builds emit epoch seconds instead of RFC 3339.
			ts = time.Unix(unix, 0).UTC().Format(time.RFC3339)
		}
		msgs = append(msgs, ingest.TelegramMessage{
			ID:            strconv.FormatInt(m.ID, 10),
			ChatHandle:    m.Chat,
			Text:          m.Text,
			Timestamp:     ts,
			IsForward:     m.Forward,
			ForwardSource: m.ForwFrom,
			FromBot:       m.ViaBot,
		})
	}
	return msgs, nil
}
