package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Classification is the fixed LLM contract: a label in {-1, 0, +1}
// and a confidence in [0, 1].
type Classification struct {
	Label      int     `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classifier is the optional fallback invoked only when rule matching
// produced zero lexicon hits. A nil result means no opinion; the
// pipeline behaves identically with or without one.
type Classifier interface {
	Classify(ctx context.Context, text string) (*Classification, error)
}

// NoopClassifier never has an opinion. It is the default when no LLM
// key is configured.
type NoopClassifier struct{}

func (NoopClassifier) Classify(ctx context.Context, text string) (*Classification, error) {
	return nil, nil
}

// HTTPClassifier calls an external classification endpoint.
type HTTPClassifier struct {
	client *resty.Client
}

// NewHTTPClassifier builds a classifier against baseURL authenticated
// with apiKey.
func NewHTTPClassifier(baseURL, apiKey string) *HTTPClassifier {
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetTimeout(10 * time.Second).
		SetRetryCount(0)
	return &HTTPClassifier{client: client}
}

func (c *HTTPClassifier) Classify(ctx context.Context, text string) (*Classification, error) {
	var out Classification
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": text}).
		SetResult(&out).
		Post("/v1/classify")
	if err != nil {
		return nil, fmt.Errorf("llm classify: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("llm classify: status %d", resp.StatusCode())
	}
	if out.Label < -1 || out.Label > 1 || out.Confidence < 0 || out.Confidence > 1 {
		log.Warn().Int("label", out.Label).Float64("confidence", out.Confidence).Msg("llm returned out-of-contract values, ignoring")
		return nil, nil
	}
	return &out, nil
}
