package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/coinpulse/pulsefeed/internal/clock"
	"github.com/coinpulse/pulsefeed/internal/domain"
	"github.com/coinpulse/pulsefeed/internal/ratelimit"
	"github.com/coinpulse/pulsefeed/internal/registry"
)

// TelegramMessage is the upstream shape handed over by the Telegram
// client.
type TelegramMessage struct {
	ID            string
	ChatHandle    string
	Text          string
	Timestamp     string
	IsForward     bool
	ForwardSource string
	FromBot       bool
}

// TelegramFetcher pulls a bounded batch of recent messages for one
// whitelisted chat.
type TelegramFetcher interface {
	FetchMessages(ctx context.Context, entry domain.SourceEntry, cursor domain.Cursor, limit int) ([]TelegramMessage, error)
}

// TelegramCaps are the default rolling-window caps.
var TelegramCaps = ratelimit.Caps{PerEntry: 30, Global: 100, Window: time.Minute}

// TelegramWorker ingests from whitelisted channels and groups and
// runs the cross-chat manipulation detector.
type TelegramWorker struct {
	fetcher      TelegramFetcher
	sources      *registry.SourceRegistry
	assets       *registry.AssetRegistry
	limiter      *ratelimit.SourceLimiter
	velocity     *VelocityTracker
	manipulation *ManipulationDetector
	sink         Sink
	clk          clock.Clock
	batchCap     int
}

// NewTelegramWorker wires a worker with its exclusively owned state.
func NewTelegramWorker(fetcher TelegramFetcher, sources *registry.SourceRegistry, assets *registry.AssetRegistry, sink Sink, clk clock.Clock) *TelegramWorker {
	return &TelegramWorker{
		fetcher:      fetcher,
		sources:      sources,
		assets:       assets,
		limiter:      ratelimit.NewSourceLimiter(TelegramCaps, clk),
		velocity:     NewVelocityTracker(10*time.Minute, time.Hour, 6),
		manipulation: NewManipulationDetector(clk),
		sink:         sink,
		clk:          clk,
		batchCap:     100,
	}
}

func (w *TelegramWorker) Source() domain.Source { return domain.SourceTelegram }

// RunCycle fetches one bounded batch per enabled chat, filters it and
// releases survivors in ascending event-time order.
func (w *TelegramWorker) RunCycle(ctx context.Context, now time.Time, cursor domain.Cursor) (CycleMetrics, error) {
	m := newCycleMetrics(domain.SourceTelegram)
	var batch []domain.InboundEvent
	seen := make(map[string]struct{})

	for _, entry := range w.sources.EnabledSources() {
		msgs, err := w.fetcher.FetchMessages(ctx, entry, cursor, w.batchCap)
		if err != nil {
			return m, err
		}
		m.Fetched += len(msgs)
		for _, msg := range msgs {
			if ev, ok := w.filter(msg, entry, seen, &m); ok {
				batch = append(batch, ev)
				m.accept(msg.ID, ev.Event.EventTime)
			}
		}
	}

	if err := release(ctx, w.sink, batch); err != nil {
		return m, err
	}
	log.Debug().Int("fetched", m.Fetched).Int("accepted", m.Accepted).Msg("telegram cycle complete")
	return m, nil
}

// filter applies the Telegram drop chain in its fixed evaluation
// order, then runs manipulation detection on survivors.
func (w *TelegramWorker) filter(msg TelegramMessage, entry domain.SourceEntry, seen map[string]struct{}, m *CycleMetrics) (domain.InboundEvent, bool) {
	if looked, exists := w.sources.Lookup(msg.ChatHandle); !exists {
		m.drop(DropNotWhitelisted)
		return domain.InboundEvent{}, false
	} else if !looked.Enabled {
		m.drop(DropSourceDisabled)
		return domain.InboundEvent{}, false
	}
	if !w.limiter.AllowGlobal() {
		m.drop(DropGlobalRate)
		return domain.InboundEvent{}, false
	}
	if !w.limiter.AllowEntryCapped(entry.Handle, entry.PerRunCap) {
		m.drop(DropSourceRate)
		return domain.InboundEvent{}, false
	}
	if strings.TrimSpace(msg.Text) == "" {
		m.drop(DropEmptyText)
		return domain.InboundEvent{}, false
	}
	asset := w.assets.DetectAsset(msg.Text)
	if asset == "" {
		m.drop(DropNoAssetMatch)
		return domain.InboundEvent{}, false
	}
	eventTime, err := parseEventTime(msg.Timestamp)
	if err != nil {
		m.drop(DropBadTimestamp)
		return domain.InboundEvent{}, false
	}
	if msg.IsForward && strings.TrimSpace(msg.ForwardSource) == "" {
		m.drop(DropForwardUnknown)
		return domain.InboundEvent{}, false
	}
	if msg.FromBot {
		m.drop(DropBotAuthor)
		return domain.InboundEvent{}, false
	}
	key := msg.ChatHandle + "/" + msg.ID
	if _, dup := seen[key]; dup {
		m.drop(DropBatchDuplicate)
		return domain.InboundEvent{}, false
	}
	seen[key] = struct{}{}

	manipulated := w.manipulation.Observe(domain.NormalizedFingerprint(msg.Text), msg.ChatHandle)

	// Telegram carries no engagement or author signal; both weights
	// stay null by contract.
	raw := domain.RawEvent{
		ID:                uuid.New(),
		Source:            domain.SourceTelegram,
		SourceReliability: domain.SourceTelegram.Reliability(),
		Asset:             asset,
		EventTime:         eventTime,
		IngestTime:        w.clk.Now(),
		Text:              msg.Text,
		Velocity:          w.velocity.Observe(entry.Handle, asset, eventTime),
		ManipulationFlag:  manipulated,
		Fingerprint:       domain.FingerprintEvent(domain.SourceTelegram, msg.Text, eventTime),
	}
	return domain.InboundEvent{Event: raw, RawTimestamp: msg.Timestamp}, true
}
