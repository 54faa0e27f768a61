package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Sternrassler/credly-ingest/pkg/credly"
	"github.com/Sternrassler/credly-ingest/pkg/schema"
	"github.com/Sternrassler/credly-ingest/pkg/state"
	"github.com/rs/zerolog"
)

// BadgeStepConfig configures the badge step.
type BadgeStepConfig struct {
	Dataset string

	// WatermarkKey is the committed watermark. The window end of a daily run
	// in progress is kept under WatermarkKey + "/pending" and the start of a
	// historical run under WatermarkKey + "/historical_run". Cursor pages
	// take their partition date from these keys.
	WatermarkKey string

	// Overlap is subtracted from the stored watermark to form the start of
	// the next daily window.
	Overlap time.Duration

	// HistoricalStart is the window start in historical mode.
	HistoricalStart time.Time
}

// DefaultBadgeStepConfig returns the standard configuration.
func DefaultBadgeStepConfig() BadgeStepConfig {
	return BadgeStepConfig{
		Dataset:         DefaultDatasets().Badges,
		WatermarkKey:    "badges",
		Overlap:         15 * time.Minute,
		HistoricalStart: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// BadgeStep loads one page of issued badges per call.
//
// Daily watermarks are committed only when a run reaches its last page: the
// first page stores the window end as pending and the last page promotes
// it. A run that fails part way leaves the committed watermark where it was,
// so the next daily run covers the missed window again.
//
// Every page of a run writes to the partition of the run's first page, also
// when later pages are processed after midnight.
type BadgeStep struct {
	fetcher    PageFetcher
	writer     PartitionWriter
	watermarks state.WatermarkStore
	parts      PartSource
	config     BadgeStepConfig
	now        func() time.Time
	logger     zerolog.Logger
}

// NewBadgeStep creates a badge step.
func NewBadgeStep(fetcher PageFetcher, writer PartitionWriter, watermarks state.WatermarkStore, parts PartSource, cfg BadgeStepConfig, logger zerolog.Logger) *BadgeStep {
	def := DefaultBadgeStepConfig()
	if cfg.Dataset == "" {
		cfg.Dataset = def.Dataset
	}
	if cfg.WatermarkKey == "" {
		cfg.WatermarkKey = def.WatermarkKey
	}
	if cfg.Overlap <= 0 {
		cfg.Overlap = def.Overlap
	}
	if cfg.HistoricalStart.IsZero() {
		cfg.HistoricalStart = def.HistoricalStart
	}
	return &BadgeStep{
		fetcher:    fetcher,
		writer:     writer,
		watermarks: watermarks,
		parts:      parts,
		config:     cfg,
		now:        time.Now,
		logger:     logger.With().Str("dataset", cfg.Dataset).Logger(),
	}
}

// window is the date range of one daily run.
type window struct {
	start time.Time
	end   time.Time
}

// Run processes the page at cursor, or the first page when cursor is empty.
func (s *BadgeStep) Run(ctx context.Context, mode Mode, cursor string) (*StepResult, error) {
	logger := loggerFrom(ctx, &s.logger)
	first := cursor == ""
	now := s.now().UTC()

	logger.Info().
		Str("mode", string(mode)).
		Bool("cursor_present", !first).
		Msg("Processing badge page")

	var (
		params url.Values
		win    *window
		marker *time.Time
		date   = now
	)
	if first {
		switch mode {
		case ModeHistorical:
			params = url.Values{"start_date": {state.FormatWatermark(s.config.HistoricalStart)}}
		case ModeDaily:
			w, err := s.dailyWindow(ctx, now)
			if err != nil {
				return nil, err
			}
			win = w
			params = url.Values{
				"start_date": {state.FormatWatermark(w.start)},
				"end_date":   {state.FormatWatermark(w.end)},
			}
		default:
			return nil, &InvalidEventError{Field: "mode", Value: string(mode)}
		}

		s.writer.ClearPartition(ctx, s.config.Dataset, date)
	} else {
		m, err := s.runMarker(ctx, mode)
		if err != nil {
			return nil, err
		}
		marker = m
		if m != nil {
			date = *m
		} else {
			logger.Warn().Msg("No run marker found, writing to the current partition")
		}
	}

	page, err := s.fetcher.FetchPage(ctx, credly.ResourceBadges, params, cursor)
	if err != nil {
		return nil, err
	}
	last := page.NextCursor == ""

	badges, err := credly.DecodeBadges(page.Items)
	if err != nil {
		return nil, err
	}
	if len(badges) > 0 {
		rows := schema.MapBadges(badges)
		if err := s.writer.Write(ctx, s.config.Dataset, schema.Records(rows), date, s.parts.Next()); err != nil {
			return nil, err
		}
	}
	recordsTotal.WithLabelValues(s.config.Dataset).Add(float64(len(badges)))

	switch mode {
	case ModeDaily:
		if err := s.advanceWatermark(ctx, logger, win, marker, last); err != nil {
			return nil, err
		}
	case ModeHistorical:
		if first && !last {
			if err := s.watermarks.PutWatermark(ctx, s.markerKey(mode), now); err != nil {
				return nil, fmt.Errorf("store run marker: %w", err)
			}
		}
	}

	logger.Info().
		Int("records", len(badges)).
		Bool("has_next", !last).
		Str("partition_date", date.Format("20060102")).
		Msg("Processed badge page")

	return &StepResult{RecordsProcessed: len(badges), NextCursor: page.NextCursor}, nil
}

// markerKey is where the first page of a run leaves its time for the
// run's cursor pages.
func (s *BadgeStep) markerKey(mode Mode) string {
	if mode == ModeHistorical {
		return s.config.WatermarkKey + "/historical_run"
	}
	return s.config.WatermarkKey + "/pending"
}

// runMarker returns the time stored by the run's first page, or nil when
// there is none.
func (s *BadgeStep) runMarker(ctx context.Context, mode Mode) (*time.Time, error) {
	if mode != ModeDaily && mode != ModeHistorical {
		return nil, &InvalidEventError{Field: "mode", Value: string(mode)}
	}
	m, err := s.watermarks.GetWatermark(ctx, s.markerKey(mode))
	if errors.Is(err, state.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read run marker: %w", err)
	}
	t := m.Watermark.UTC()
	return &t, nil
}

// dailyWindow starts at the stored watermark minus the overlap, or at
// yesterday 00:00 when there is none, and ends now.
func (s *BadgeStep) dailyWindow(ctx context.Context, now time.Time) (*window, error) {
	logger := loggerFrom(ctx, &s.logger)

	wm, err := s.watermarks.GetWatermark(ctx, s.config.WatermarkKey)
	switch {
	case errors.Is(err, state.ErrNotFound):
		y := now.AddDate(0, 0, -1)
		start := time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, time.UTC)
		logger.Info().Str("start_date", state.FormatWatermark(start)).Msg("No watermark found, starting from yesterday")
		return &window{start: start, end: now}, nil
	case err != nil:
		return nil, fmt.Errorf("read watermark: %w", err)
	}

	start := wm.Watermark.Add(-s.config.Overlap)
	logger.Info().
		Str("watermark", state.FormatWatermark(wm.Watermark)).
		Str("start_date", state.FormatWatermark(start)).
		Msg("Using watermark with overlap")
	return &window{start: start, end: now}, nil
}

// advanceWatermark records the window end as pending on the first page and
// commits it on the last page. win is set only on the first page and pending
// only on cursor pages that found one.
func (s *BadgeStep) advanceWatermark(ctx context.Context, logger *zerolog.Logger, win *window, pending *time.Time, last bool) error {
	switch {
	case win != nil && last:
		return s.commit(ctx, logger, win.end)

	case win != nil:
		if err := s.watermarks.PutWatermark(ctx, s.markerKey(ModeDaily), win.end); err != nil {
			return fmt.Errorf("store pending watermark: %w", err)
		}
		logger.Debug().Str("pending", state.FormatWatermark(win.end)).Msg("Stored pending watermark")
		return nil

	case last && pending == nil:
		logger.Warn().Msg("Run finished without a pending watermark, watermark not advanced")
		return nil

	case last:
		return s.commit(ctx, logger, *pending)
	}
	return nil
}

func (s *BadgeStep) commit(ctx context.Context, logger *zerolog.Logger, end time.Time) error {
	if err := s.watermarks.PutWatermark(ctx, s.config.WatermarkKey, end); err != nil {
		return fmt.Errorf("commit watermark: %w", err)
	}
	logger.Info().Str("watermark", state.FormatWatermark(end)).Msg("Committed watermark")
	return nil
}
