// Command credly-lambda serves ingestion invocations as an AWS Lambda
// function. The event payload is {"load_type", "mode", "page"}.
package main

import (
	"context"
	"os"

	"github.com/Sternrassler/credly-ingest/internal/app"
	"github.com/Sternrassler/credly-ingest/internal/config"
	"github.com/Sternrassler/credly-ingest/pkg/ingest"
	"github.com/Sternrassler/credly-ingest/pkg/logging"
	"github.com/Sternrassler/credly-ingest/pkg/metrics"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(cfg.LogLevel)
	logCfg.Pretty = cfg.LogPretty
	logCfg.Service = "credly-lambda"
	logger := logging.Setup(logCfg)

	// Components are built once per container and reused across
	// invocations, so secrets and tokens are cached between them.
	a, err := app.New(context.Background(), cfg, app.Overrides{}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build ingester")
	}
	defer a.Close()

	handler := func(ctx context.Context, event ingest.Event) (ingest.Response, error) {
		resp, err := a.Handler.Invoke(ctx, event)
		if err := metrics.Push(ctx, cfg.PushgatewayURL, "credly-lambda"); err != nil {
			logger.Warn().Err(err).Msg("Metrics push failed")
		}
		return resp, err
	}

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") == "" {
		logger.Warn().Msg("AWS_LAMBDA_RUNTIME_API not set, use credly-ingest for local runs")
	}
	lambda.Start(handler)
}
