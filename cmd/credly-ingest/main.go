// Command credly-ingest runs Credly ingestion invocations from the command
// line, as a workflow-style loop, or behind an HTTP endpoint.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Sternrassler/credly-ingest/internal/app"
	"github.com/Sternrassler/credly-ingest/internal/config"
	"github.com/Sternrassler/credly-ingest/pkg/ingest"
	"github.com/Sternrassler/credly-ingest/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
)

func main() {
	if err := rootCommand(buildEnv).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand(build builder) *cli.Command {
	return &cli.Command{
		Name:  "credly-ingest",
		Usage: "load Credly badges and badge templates into the data lake",
		Commands: []*cli.Command{
			invokeCommand(build),
			runCommand(build),
			serveCommand(build),
		},
	}
}

// Invoker runs one invocation. *ingest.Handler implements it.
type Invoker interface {
	Invoke(ctx context.Context, event ingest.Event) (ingest.Response, error)
}

// env is what every command needs from the wired ingester.
type env struct {
	invoker        Invoker
	logger         zerolog.Logger
	pushgatewayURL string
	listenAddr     string
	close          func() error
}

// builder creates the command environment. Tests replace it.
type builder func(ctx context.Context) (*env, error)

func buildEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(cfg.LogLevel)
	logCfg.Pretty = cfg.LogPretty
	logger := logging.Setup(logCfg)

	a, err := app.New(ctx, cfg, app.Overrides{}, logger)
	if err != nil {
		return nil, err
	}
	return &env{
		invoker:        a.Handler,
		logger:         logger,
		pushgatewayURL: cfg.PushgatewayURL,
		listenAddr:     cfg.ListenAddr,
		close:          a.Close,
	}, nil
}
