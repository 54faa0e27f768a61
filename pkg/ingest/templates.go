package ingest

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/Sternrassler/credly-ingest/pkg/credly"
	"github.com/Sternrassler/credly-ingest/pkg/pagination"
	"github.com/Sternrassler/credly-ingest/pkg/partition"
	"github.com/Sternrassler/credly-ingest/pkg/schema"
	"github.com/Sternrassler/credly-ingest/pkg/state"
	"github.com/rs/zerolog"
)

// DefaultChunkSize is the number of templates per part file.
const DefaultChunkSize = 1000

// TemplateRunConfig configures the template run.
type TemplateRunConfig struct {
	Templates          string
	TemplateActivities string
	ChunkSize          int
}

// DefaultTemplateRunConfig returns the standard configuration.
func DefaultTemplateRunConfig() TemplateRunConfig {
	ds := DefaultDatasets()
	return TemplateRunConfig{
		Templates:          ds.Templates,
		TemplateActivities: ds.TemplateActivities,
		ChunkSize:          DefaultChunkSize,
	}
}

// Collector walks every page of a resource.
// *pagination.Collector implements it.
type Collector interface {
	Collect(ctx context.Context, resource credly.Resource, params url.Values) (*pagination.Result, error)
}

// TemplateRun reloads the template snapshot when it has changed.
type TemplateRun struct {
	collector    Collector
	writer       PartitionWriter
	fingerprints state.FingerprintStore
	config       TemplateRunConfig
	now          func() time.Time
	logger       zerolog.Logger
}

// NewTemplateRun creates a template run.
func NewTemplateRun(collector Collector, writer PartitionWriter, fingerprints state.FingerprintStore, cfg TemplateRunConfig, logger zerolog.Logger) *TemplateRun {
	def := DefaultTemplateRunConfig()
	if cfg.Templates == "" {
		cfg.Templates = def.Templates
	}
	if cfg.TemplateActivities == "" {
		cfg.TemplateActivities = def.TemplateActivities
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	return &TemplateRun{
		collector:    collector,
		writer:       writer,
		fingerprints: fingerprints,
		config:       cfg,
		now:          time.Now,
		logger:       logger.With().Str("dataset", cfg.Templates).Logger(),
	}
}

// Run fetches every template, compares the snapshot fingerprint with the
// stored one and, when it differs, replaces both template partitions.
func (r *TemplateRun) Run(ctx context.Context, mode Mode) (*StepResult, error) {
	logger := loggerFrom(ctx, &r.logger)
	logger.Info().Str("mode", string(mode)).Msg("Starting template run")

	collected, err := r.collector.Collect(ctx, credly.ResourceTemplates, nil)
	if err != nil {
		return nil, err
	}
	templates, err := credly.DecodeTemplates(collected.Items)
	if err != nil {
		return nil, err
	}

	ids := make([]state.Identity, len(templates))
	for i, t := range templates {
		ids[i] = state.Identity{ID: t.ID.String(), UpdatedAt: t.UpdatedAt.String()}
	}
	hash := state.ComputeFingerprint(ids)

	stored, err := r.fingerprints.GetFingerprint(ctx, r.config.Templates)
	switch {
	case errors.Is(err, state.ErrNotFound):
		stored = nil
	case err != nil:
		// An unreadable fingerprint forces a reload rather than a skip.
		logger.Warn().Err(err).Msg("Failed to read stored fingerprint, reloading")
		stored = nil
	}
	if stored != nil && stored.PayloadHash == hash && !collected.Truncated {
		fingerprintSkips.Inc()
		logger.Info().
			Int("records", len(templates)).
			Str("payload_hash", hash).
			Msg("Templates unchanged, skipping load")
		return &StepResult{}, nil
	}

	date := r.now().UTC()
	r.writer.ClearPartition(ctx, r.config.Templates, date)
	r.writer.ClearPartition(ctx, r.config.TemplateActivities, date)

	var parts partition.Counter
	for start := 0; start < len(templates); start += r.config.ChunkSize {
		end := min(start+r.config.ChunkSize, len(templates))
		rows, activities := schema.MapTemplates(templates[start:end])
		part := parts.Next()

		if err := r.writer.Write(ctx, r.config.Templates, schema.Records(rows), date, part); err != nil {
			return nil, err
		}
		if err := r.writer.Write(ctx, r.config.TemplateActivities, schema.Records(activities), date, part); err != nil {
			return nil, err
		}
		recordsTotal.WithLabelValues(r.config.TemplateActivities).Add(float64(len(activities)))
	}
	recordsTotal.WithLabelValues(r.config.Templates).Add(float64(len(templates)))

	if collected.Truncated {
		logger.Warn().Int("pages", collected.Pages).Msg("Template walk truncated, fingerprint not stored")
		return &StepResult{RecordsProcessed: len(templates)}, nil
	}

	if err := r.fingerprints.PutFingerprint(ctx, state.Fingerprint{
		Dataset:       r.config.Templates,
		PayloadHash:   hash,
		RecordCount:   len(templates),
		LastUpdatedAt: r.now().UTC(),
	}); err != nil {
		return nil, err
	}

	logger.Info().
		Int("records", len(templates)).
		Int("pages", collected.Pages).
		Msg("Template run complete")

	return &StepResult{RecordsProcessed: len(templates)}, nil
}
