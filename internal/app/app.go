// Package app assembles the ingester from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/credly-ingest/internal/awsutil"
	"github.com/Sternrassler/credly-ingest/internal/config"
	"github.com/Sternrassler/credly-ingest/pkg/auth"
	"github.com/Sternrassler/credly-ingest/pkg/client"
	"github.com/Sternrassler/credly-ingest/pkg/credly"
	"github.com/Sternrassler/credly-ingest/pkg/ingest"
	"github.com/Sternrassler/credly-ingest/pkg/pagination"
	"github.com/Sternrassler/credly-ingest/pkg/partition"
	"github.com/Sternrassler/credly-ingest/pkg/ratelimit"
	"github.com/Sternrassler/credly-ingest/pkg/secrets"
	"github.com/Sternrassler/credly-ingest/pkg/sink"
	"github.com/Sternrassler/credly-ingest/pkg/state"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Overrides replaces components that would otherwise be built from the
// configuration. Nil fields are built normally.
type Overrides struct {
	Secrets      secrets.Store
	Sink         sink.Sink
	Watermarks   state.WatermarkStore
	Fingerprints state.FingerprintStore
}

// App is a fully wired ingester.
type App struct {
	Handler   *ingest.Handler
	Badges    *ingest.BadgeStep
	Templates *ingest.TemplateRun
	Config    *config.Config

	closers []func() error
	logger  zerolog.Logger
}

// New builds every component from cfg.
func New(ctx context.Context, cfg *config.Config, overrides Overrides, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, logger: logger}

	var clients *awsutil.Clients
	awsClients := func() (*awsutil.Clients, error) {
		if clients != nil {
			return clients, nil
		}
		awsCfg, err := awsutil.LoadConfig(ctx, awsutil.Options{
			Region:          cfg.AWSRegion,
			Endpoint:        cfg.LocalstackEndpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		clients = awsutil.NewClients(awsCfg, cfg.LocalstackEndpoint)
		return clients, nil
	}

	store := overrides.Secrets
	if store == nil {
		c, err := awsClients()
		if err != nil {
			return nil, err
		}
		store = secrets.NewAWSStore(c.SecretsManager, logger.With().Str("component", "secrets").Logger())
	}

	clientCfg := client.DefaultConfig()
	clientCfg.Timeout = cfg.HTTPTimeout
	clientCfg.Retry.MaxAttempts = cfg.MaxRetries
	if cfg.RetryInitialBackoff > 0 {
		clientCfg.Retry.InitialBackoff = cfg.RetryInitialBackoff
	}
	clientCfg.Limiter = ratelimit.NewLimiter(cfg.RequestsPerSecond, 1, logger.With().Str("component", "ratelimit").Logger())
	httpClient, err := client.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}

	provider := auth.New(cfg.Env, store, cfg.SecretName, httpClient, logger.With().Str("component", "auth").Logger())

	api, err := credly.New(httpClient, provider, credly.Config{
		BaseURL: cfg.CredlyBaseURL,
		OrgID:   cfg.CredlyOrgID,
	}, logger.With().Str("component", "credly").Logger())
	if err != nil {
		return nil, fmt.Errorf("create credly client: %w", err)
	}

	blobs := overrides.Sink
	if blobs == nil {
		c, err := awsClients()
		if err != nil {
			return nil, err
		}
		blobs = sink.NewS3Sink(c.S3, cfg.Bucket, logger.With().Str("component", "s3").Logger())
	}
	writer := partition.NewWriter(blobs, partition.NewParquetEncoder(), cfg.PartitionPrefix, logger.With().Str("component", "partition").Logger())

	watermarks, fingerprints, err := a.stateStores(ctx, cfg, overrides, awsClients)
	if err != nil {
		return nil, err
	}

	a.Badges = ingest.NewBadgeStep(api, writer, watermarks, partition.NewTimestampParts(),
		ingest.DefaultBadgeStepConfig(), logger.With().Str("component", "badges").Logger())

	collectorCfg := pagination.DefaultConfig()
	collectorCfg.MaxPages = cfg.TemplateMaxPages
	templateCfg := ingest.DefaultTemplateRunConfig()
	templateCfg.ChunkSize = cfg.TemplateChunkSize
	a.Templates = ingest.NewTemplateRun(pagination.NewCollector(api, collectorCfg), writer, fingerprints,
		templateCfg, logger.With().Str("component", "templates").Logger())

	a.Handler = ingest.NewHandler(a.Badges, a.Templates, logger)

	logger.Info().
		Str("env", cfg.Env).
		Str("state_backend", cfg.StateBackend).
		Str("bucket", cfg.Bucket).
		Bool("production_auth", auth.IsProduction(cfg.Env)).
		Msg("Ingester ready")

	return a, nil
}

// stateStores builds the watermark and fingerprint stores of the configured
// backend.
func (a *App) stateStores(ctx context.Context, cfg *config.Config, overrides Overrides, awsClients func() (*awsutil.Clients, error)) (state.WatermarkStore, state.FingerprintStore, error) {
	watermarks, fingerprints := overrides.Watermarks, overrides.Fingerprints
	if watermarks != nil && fingerprints != nil {
		return watermarks, fingerprints, nil
	}

	switch cfg.StateBackend {
	case config.StateBackendAWS:
		c, err := awsClients()
		if err != nil {
			return nil, nil, err
		}
		if watermarks == nil {
			watermarks = state.NewSSMWatermarkStore(c.SSM, cfg.WatermarkPrefix, a.logger.With().Str("component", "ssm").Logger())
		}
		if fingerprints == nil {
			fingerprints = state.NewDynamoFingerprintStore(c.DynamoDB, cfg.MetadataTable, a.logger.With().Str("component", "dynamodb").Logger())
		}

	case config.StateBackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		rs := state.NewRedisStore(rdb, "")
		if watermarks == nil {
			watermarks = rs
		}
		if fingerprints == nil {
			fingerprints = rs
		}

	case config.StateBackendMemory:
		ms := state.NewMemoryStore()
		if watermarks == nil {
			watermarks = ms
		}
		if fingerprints == nil {
			fingerprints = ms
		}

	default:
		return nil, nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
	return watermarks, fingerprints, nil
}

// Close releases connections opened by New.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
