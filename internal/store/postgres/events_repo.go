// Package postgres is the production EventStore backed by PostgreSQL.
// The unique fingerprint constraint on raw_events provides dedup even
// under concurrent inserts; the three enriched rows commit in one
// transaction.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/coinpulse/pulsefeed/internal/domain"
	"github.com/coinpulse/pulsefeed/internal/store"
)

type eventsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewEventsRepo creates a PostgreSQL-backed event store.
func NewEventsRepo(db *sqlx.DB, timeout time.Duration) store.EventStore {
	return &eventsRepo{db: db, timeout: timeout}
}

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}

// InsertEnriched writes raw, sentiment and risk rows atomically. A
// fingerprint collision rolls back and maps to the sentinel so the
// pipeline can abort silently.
func (r *eventsRepo) InsertEnriched(ctx context.Context, raw domain.RawEvent, sent domain.SentimentEvent, risk domain.RiskEvent) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO raw_events (id, source, source_reliability, asset, event_time, ingest_time,
			text, engagement_weight, author_weight, velocity, manipulation_flag, fingerprint, dropped)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		raw.ID, raw.Source, raw.SourceReliability, raw.Asset, raw.EventTime, raw.IngestTime,
		raw.Text, raw.EngagementWeight, raw.AuthorWeight, raw.Velocity, raw.ManipulationFlag,
		raw.Fingerprint, raw.Dropped)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateFingerprint
		}
		return fmt.Errorf("failed to insert raw event: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sentiment_events (id, raw_event_id, event_time, bullish, bearish, fear, greed,
			raw_score, normalized_score, rule_label, llm_used, llm_label, llm_confidence,
			final_label, final_confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		sent.ID, sent.RawEventID, sent.EventTime, sent.Counts.Bullish, sent.Counts.Bearish,
		sent.Counts.Fear, sent.Counts.Greed, sent.RawScore, sent.NormalizedScore, sent.RuleLabel,
		sent.LLMUsed, sent.LLMLabel, sent.LLMConfidence, sent.FinalLabel, sent.FinalConfidence)
	if err != nil {
		return fmt.Errorf("failed to insert sentiment event: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO risk_events (id, raw_event_id, event_time, sentiment_label, sentiment_confidence,
			sentiment_reliability, social_overheat, panic_risk, fomo_risk, fear_greed_index, fear_greed_zone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		risk.ID, risk.RawEventID, risk.EventTime, risk.SentimentLabel, risk.SentimentConfidence,
		risk.SentimentReliability, risk.SocialOverheat, risk.PanicRisk, risk.FOMORisk,
		risk.FearGreedIndex, risk.FearGreedZone)
	if err != nil {
		return fmt.Errorf("failed to insert risk event: %w", err)
	}

	return tx.Commit()
}

func (r *eventsRepo) InsertQuality(ctx context.Context, q domain.QualityEvent) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO quality_events (id, event_time, overall, availability, time_integrity,
			volume, source_balance, anomaly_frequency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		q.ID, q.EventTime, q.Overall, q.Availability, q.TimeIntegrity,
		q.Volume, q.SourceBalance, q.AnomalyFrequency)
	if err != nil {
		return fmt.Errorf("failed to insert quality event: %w", err)
	}
	return nil
}

// QueryEnriched joins the three event rows in ascending event-time
// order. Pure read.
func (r *eventsRepo) QueryEnriched(ctx context.Context, f store.QueryFilter) ([]store.EnrichedRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT r.id, r.source, r.source_reliability, r.asset, r.event_time, r.ingest_time,
			r.text, r.engagement_weight, r.author_weight, r.velocity, r.manipulation_flag,
			r.fingerprint, r.dropped,
			s.id, s.bullish, s.bearish, s.fear, s.greed, s.raw_score, s.normalized_score,
			s.rule_label, s.llm_used, s.llm_label, s.llm_confidence, s.final_label, s.final_confidence,
			k.id, k.sentiment_label, k.sentiment_confidence, k.sentiment_reliability,
			k.social_overheat, k.panic_risk, k.fomo_risk, k.fear_greed_index, k.fear_greed_zone
		FROM raw_events r
		JOIN sentiment_events s ON s.raw_event_id = r.id
		JOIN risk_events k ON k.raw_event_id = r.id
		WHERE r.asset = $1 AND r.event_time >= $2 AND r.event_time <= $3
			AND ($4::text IS NULL OR r.source = $4)
			AND ($5::boolean OR NOT r.dropped)
		ORDER BY r.event_time ASC`

	var src *string
	if f.Source != nil {
		s := string(*f.Source)
		src = &s
	}

	rows, err := r.db.QueryxContext(ctx, query, f.Asset, f.From, f.To, src, f.IncludeDropped)
	if err != nil {
		return nil, fmt.Errorf("failed to query enriched events: %w", err)
	}
	defer rows.Close()

	var out []store.EnrichedRecord
	for rows.Next() {
		rec, err := scanEnriched(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func (r *eventsRepo) QueryQuality(ctx context.Context, from, to time.Time) ([]domain.QualityEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []domain.QualityEvent
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, event_time, overall, availability, time_integrity, volume, source_balance, anomaly_frequency
		FROM quality_events
		WHERE event_time >= $1 AND event_time <= $2
		ORDER BY event_time ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query quality events: %w", err)
	}
	return out, nil
}

func (r *eventsRepo) MarkDropped(ctx context.Context, rawID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `UPDATE raw_events SET dropped = true WHERE id = $1`, rawID)
	if err != nil {
		return fmt.Errorf("failed to mark event dropped: %w", err)
	}
	return nil
}

func scanEnriched(rows *sqlx.Rows) (store.EnrichedRecord, error) {
	var rec store.EnrichedRecord
	err := rows.Scan(
		&rec.Raw.ID, &rec.Raw.Source, &rec.Raw.SourceReliability, &rec.Raw.Asset,
		&rec.Raw.EventTime, &rec.Raw.IngestTime, &rec.Raw.Text, &rec.Raw.EngagementWeight,
		&rec.Raw.AuthorWeight, &rec.Raw.Velocity, &rec.Raw.ManipulationFlag,
		&rec.Raw.Fingerprint, &rec.Raw.Dropped,
		&rec.Sentiment.ID, &rec.Sentiment.Counts.Bullish, &rec.Sentiment.Counts.Bearish,
		&rec.Sentiment.Counts.Fear, &rec.Sentiment.Counts.Greed, &rec.Sentiment.RawScore,
		&rec.Sentiment.NormalizedScore, &rec.Sentiment.RuleLabel, &rec.Sentiment.LLMUsed,
		&rec.Sentiment.LLMLabel, &rec.Sentiment.LLMConfidence, &rec.Sentiment.FinalLabel,
		&rec.Sentiment.FinalConfidence,
		&rec.Risk.ID, &rec.Risk.SentimentLabel, &rec.Risk.SentimentConfidence,
		&rec.Risk.SentimentReliability, &rec.Risk.SocialOverheat, &rec.Risk.PanicRisk,
		&rec.Risk.FOMORisk, &rec.Risk.FearGreedIndex, &rec.Risk.FearGreedZone)
	if err != nil {
		return rec, fmt.Errorf("failed to scan enriched record: %w", err)
	}
	rec.Sentiment.RawEventID = rec.Raw.ID
	rec.Sentiment.EventTime = rec.Raw.EventTime
	rec.Risk.RawEventID = rec.Raw.ID
	rec.Risk.EventTime = rec.Raw.EventTime
	return rec, nil
}
