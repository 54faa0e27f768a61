package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/credly-ingest/pkg/logging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Load types accepted in Event.LoadType.
const (
	LoadTypeBadges    = "badges"
	LoadTypeTemplates = "templates"
)

// Event is the invocation payload.
type Event struct {
	LoadType string `json:"load_type"`
	Mode     string `json:"mode,omitempty"`

	// Page is the cursor returned by the previous badge invocation.
	Page string `json:"page,omitempty"`
}

// Response is returned for every successful invocation.
type Response struct {
	StatusCode int          `json:"statusCode"`
	Body       ResponseBody `json:"body"`
}

// ResponseBody carries the step result. NextPage is null when the run is
// complete.
type ResponseBody struct {
	Message          string  `json:"message"`
	RecordsProcessed int     `json:"records_processed"`
	NextPage         *string `json:"next_page"`
}

// BadgeRunner processes one badge page. *BadgeStep implements it.
type BadgeRunner interface {
	Run(ctx context.Context, mode Mode, cursor string) (*StepResult, error)
}

// TemplateRunner loads the template snapshot. *TemplateRun implements it.
type TemplateRunner interface {
	Run(ctx context.Context, mode Mode) (*StepResult, error)
}

// Handler validates invocation payloads and dispatches them.
type Handler struct {
	badges    BadgeRunner
	templates TemplateRunner
	logger    zerolog.Logger
}

// NewHandler creates a handler.
func NewHandler(badges BadgeRunner, templates TemplateRunner, logger zerolog.Logger) *Handler {
	return &Handler{
		badges:    badges,
		templates: templates,
		logger:    logger,
	}
}

// Invoke runs one invocation. Every error is returned unchanged; there is
// no partial-success response.
func (h *Handler) Invoke(ctx context.Context, event Event) (Response, error) {
	if event.LoadType == "" {
		failuresTotal.WithLabelValues("invalid").Inc()
		return Response{}, &InvalidEventError{Field: "load_type"}
	}
	if event.LoadType != LoadTypeBadges && event.LoadType != LoadTypeTemplates {
		failuresTotal.WithLabelValues("invalid").Inc()
		return Response{}, &InvalidEventError{Field: "load_type", Value: event.LoadType}
	}
	mode, err := ParseMode(event.Mode)
	if err != nil {
		failuresTotal.WithLabelValues(event.LoadType).Inc()
		return Response{}, err
	}

	logger := logging.WithRun(h.logger, uuid.NewString(), event.LoadType, string(mode))
	ctx = logger.WithContext(ctx)

	logger.Info().Bool("cursor_present", event.Page != "").Msg("Ingestion started")
	start := time.Now()

	var result *StepResult
	switch event.LoadType {
	case LoadTypeBadges:
		result, err = h.badges.Run(ctx, mode, event.Page)
	case LoadTypeTemplates:
		result, err = h.templates.Run(ctx, mode)
	}
	invocationDuration.WithLabelValues(event.LoadType).Observe(time.Since(start).Seconds())

	if err != nil {
		failuresTotal.WithLabelValues(event.LoadType).Inc()
		logger.Error().Err(err).Msg("Ingestion failed")
		return Response{}, err
	}

	body := ResponseBody{
		Message:          fmt.Sprintf("Successfully processed %s in %s mode", event.LoadType, mode),
		RecordsProcessed: result.RecordsProcessed,
	}
	if result.NextCursor != "" {
		next := result.NextCursor
		body.NextPage = &next
	}

	logger.Info().
		Int("records", result.RecordsProcessed).
		Bool("has_next", body.NextPage != nil).
		Dur("duration", time.Since(start)).
		Msg("Ingestion finished")

	return Response{StatusCode: 200, Body: body}, nil
}
