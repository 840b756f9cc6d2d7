package enrich

import "github.com/coinpulse/pulsefeed/internal/domain"

// Risk-stage thresholds.
const (
	overheatVelocity = 3.0
	panicVelocity    = 2.0
	fomoIndexFloor   = 70
	lowConfidence    = 0.6
)

// FearGreedZone buckets an index value; both extreme boundaries are
// inclusive and a nil index is unknown.
func FearGreedZone(index *int) domain.FearGreedZone {
	switch {
	case index == nil:
		return domain.ZoneUnknown
	case *index <= 20:
		return domain.ZoneExtremeFear
	case *index >= 80:
		return domain.ZoneExtremeGreed
	default:
		return domain.ZoneNormal
	}
}

// DeriveRisk computes the stage-3 indicators for one enriched event.
// fearGreedIndex is an optional external input; when absent the flags
// that depend on it stay false and the zone is unknown.
func DeriveRisk(raw domain.RawEvent, sent domain.SentimentEvent, fearGreedIndex *int) domain.RiskEvent {
	reliability := domain.ReliabilityNormal
	if sent.FinalConfidence < lowConfidence {
		reliability = domain.ReliabilityLow
	}

	return domain.RiskEvent{
		RawEventID:           raw.ID,
		EventTime:            raw.EventTime,
		SentimentLabel:       sent.FinalLabel,
		SentimentConfidence:  sent.FinalConfidence,
		SentimentReliability: reliability,
		SocialOverheat:       raw.Velocity >= overheatVelocity && raw.ManipulationFlag,
		PanicRisk:            sent.FinalLabel == -1 && raw.Velocity >= panicVelocity,
		FOMORisk:             sent.FinalLabel == 1 && fearGreedIndex != nil && *fearGreedIndex >= fomoIndexFloor,
		FearGreedIndex:       fearGreedIndex,
		FearGreedZone:        FearGreedZone(fearGreedIndex),
	}
}
