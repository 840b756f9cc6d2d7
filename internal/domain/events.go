// Package domain holds the event model shared by the ingestion
// workers, the time-sync guard, the enrichment pipeline and the store.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Source identifies an upstream platform.
type Source string

const (
	SourceTwitter  Source = "twitter"
	SourceReddit   Source = "reddit"
	SourceTelegram Source = "telegram"
)

// Sources lists every supported platform in canonical order.
var Sources = []Source{SourceTwitter, SourceReddit, SourceTelegram}

// Valid reports whether s is a known platform.
func (s Source) Valid() bool {
	switch s {
	case SourceTwitter, SourceReddit, SourceTelegram:
		return true
	}
	return false
}

// Reliability returns the constant reliability bound to the source
// kind. Values are fixed product constants, not tunables.
func (s Source) Reliability() float64 {
	switch s {
	case SourceTwitter:
		return 0.5
	case SourceReddit:
		return 0.7
	case SourceTelegram:
		return 0.3
	}
	return 0
}

// RawEvent is an accepted social post after ingestion filtering.
// Telegram events carry nil engagement and author weights.
type RawEvent struct {
	ID                uuid.UUID `db:"id" json:"id"`
	Source            Source    `db:"source" json:"source"`
	SourceReliability float64   `db:"source_reliability" json:"source_reliability"`
	Asset             string    `db:"asset" json:"asset"`
	EventTime         time.Time `db:"event_time" json:"event_time"`
	IngestTime        time.Time `db:"ingest_time" json:"ingest_time"`
	Text              string    `db:"text" json:"text"`
	EngagementWeight  *float64  `db:"engagement_weight" json:"engagement_weight,omitempty"`
	AuthorWeight      *float64  `db:"author_weight" json:"author_weight,omitempty"`
	Velocity          float64   `db:"velocity" json:"velocity"`
	ManipulationFlag  bool      `db:"manipulation_flag" json:"manipulation_flag"`
	Fingerprint       string    `db:"fingerprint" json:"fingerprint"`
	Dropped           bool      `db:"dropped" json:"dropped,omitempty"`
}

// SentimentCounts holds whole-word lexicon match counts.
type SentimentCounts struct {
	Bullish int `db:"bullish" json:"bullish"`
	Bearish int `db:"bearish" json:"bearish"`
	Fear    int `db:"fear" json:"fear"`
	Greed   int `db:"greed" json:"greed"`
}

// Total returns the total lexicon matches.
func (c SentimentCounts) Total() int {
	return c.Bullish + c.Bearish + c.Fear + c.Greed
}

// SentimentEvent is the stage-2 output for one raw event.
type SentimentEvent struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	RawEventID      uuid.UUID       `db:"raw_event_id" json:"raw_event_id"`
	EventTime       time.Time       `db:"event_time" json:"event_time"`
	Counts          SentimentCounts `json:"counts"`
	RawScore        float64         `db:"raw_score" json:"raw_score"`
	NormalizedScore float64         `db:"normalized_score" json:"normalized_score"`
	RuleLabel       int             `db:"rule_label" json:"rule_label"`
	LLMUsed         bool            `db:"llm_used" json:"llm_used"`
	LLMLabel        *int            `db:"llm_label" json:"llm_label,omitempty"`
	LLMConfidence   *float64        `db:"llm_confidence" json:"llm_confidence,omitempty"`
	FinalLabel      int             `db:"final_label" json:"final_label"`
	FinalConfidence float64         `db:"final_confidence" json:"final_confidence"`
}

// SentimentReliability classifies stage-3 confidence.
type SentimentReliability string

const (
	ReliabilityLow    SentimentReliability = "low"
	ReliabilityNormal SentimentReliability = "normal"
)

// FearGreedZone buckets the externally supplied fear/greed index.
type FearGreedZone string

const (
	ZoneUnknown      FearGreedZone = "unknown"
	ZoneExtremeFear  FearGreedZone = "extreme_fear"
	ZoneNormal       FearGreedZone = "normal"
	ZoneExtremeGreed FearGreedZone = "extreme_greed"
)

// RiskEvent is the stage-3 output for one raw event.
type RiskEvent struct {
	ID                   uuid.UUID            `db:"id" json:"id"`
	RawEventID           uuid.UUID            `db:"raw_event_id" json:"raw_event_id"`
	EventTime            time.Time            `db:"event_time" json:"event_time"`
	SentimentLabel       int                  `db:"sentiment_label" json:"sentiment_label"`
	SentimentConfidence  float64              `db:"sentiment_confidence" json:"sentiment_confidence"`
	SentimentReliability SentimentReliability `db:"sentiment_reliability" json:"sentiment_reliability"`
	SocialOverheat       bool                 `db:"social_overheat" json:"social_overheat"`
	PanicRisk            bool                 `db:"panic_risk" json:"panic_risk"`
	FOMORisk             bool                 `db:"fomo_risk" json:"fomo_risk"`
	FearGreedIndex       *int                 `db:"fear_greed_index" json:"fear_greed_index,omitempty"`
	FearGreedZone        FearGreedZone        `db:"fear_greed_zone" json:"fear_greed_zone"`
}

// Availability status per source and overall.
type Availability string

const (
	AvailabilityOK       Availability = "ok"
	AvailabilityDegraded Availability = "degraded"
	AvailabilityDown     Availability = "down"
)

// TimeIntegrity status derived from the guard's late-drop rate.
type TimeIntegrity string

const (
	TimeIntegrityOK       TimeIntegrity = "ok"
	TimeIntegrityUnstable TimeIntegrity = "unstable"
	TimeIntegrityCritical TimeIntegrity = "critical"
)

// VolumeStatus of the current window against the baseline.
type VolumeStatus string

const (
	VolumeNormal         VolumeStatus = "normal"
	VolumeAbnormallyLow  VolumeStatus = "abnormally_low"
	VolumeAbnormallyHigh VolumeStatus = "abnormally_high"
)

// BalanceStatus of the per-source event mix.
type BalanceStatus string

const (
	BalanceNormal     BalanceStatus = "normal"
	BalanceImbalanced BalanceStatus = "imbalanced"
)

// AnomalyStatus of the risk-flag frequency.
type AnomalyStatus string

const (
	AnomalyNormal     AnomalyStatus = "normal"
	AnomalyPersistent AnomalyStatus = "persistent"
)

// OverallQuality aggregates the five dimensions.
type OverallQuality string

const (
	QualityHealthy  OverallQuality = "healthy"
	QualityDegraded OverallQuality = "degraded"
	QualityCritical OverallQuality = "critical"
)

// QualityEvent is one DQM emission.
type QualityEvent struct {
	ID               uuid.UUID      `db:"id" json:"id"`
	EventTime        time.Time      `db:"event_time" json:"event_time"`
	Overall          OverallQuality `db:"overall" json:"overall"`
	Availability     Availability   `db:"availability" json:"availability"`
	TimeIntegrity    TimeIntegrity  `db:"time_integrity" json:"time_integrity"`
	Volume           VolumeStatus   `db:"volume" json:"volume"`
	SourceBalance    BalanceStatus  `db:"source_balance" json:"source_balance"`
	AnomalyFrequency AnomalyStatus  `db:"anomaly_frequency" json:"anomaly_frequency"`
}
