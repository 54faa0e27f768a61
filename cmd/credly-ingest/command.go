package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/credly-ingest/pkg/ingest"
	"github.com/Sternrassler/credly-ingest/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/segmentio/encoding/json"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const pushJob = "credly-ingest"

func eventFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "load-type",
			Usage:   "badges or templates",
			Sources: cli.EnvVars("LOAD_TYPE"),
			Value:   ingest.LoadTypeBadges,
		},
		&cli.StringFlag{
			Name:    "mode",
			Usage:   "daily or historical",
			Sources: cli.EnvVars("MODE"),
			Value:   string(ingest.ModeDaily),
		},
	}
}

func invokeCommand(build builder) *cli.Command {
	flags := append(eventFlags(), &cli.StringFlag{
		Name:  "page",
		Usage: "cursor returned by the previous badge invocation",
	})
	return &cli.Command{
		Name:  "invoke",
		Usage: "run a single invocation and print the response",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := build(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			event := ingest.Event{
				LoadType: cmd.String("load-type"),
				Mode:     cmd.String("mode"),
				Page:     cmd.String("page"),
			}
			resp, err := e.invoker.Invoke(ctx, event)
			if err != nil {
				return err
			}
			return writeJSON(cmd.Root().Writer, resp)
		},
	}
}

func runCommand(build builder) *cli.Command {
	flags := append(eventFlags(), &cli.IntFlag{
		Name:  "max-pages",
		Usage: "stop after this many badge pages (0 = until done)",
	})
	return &cli.Command{
		Name:  "run",
		Usage: "invoke repeatedly until the badge cursor is exhausted",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := build(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			event := ingest.Event{LoadType: cmd.String("load-type"), Mode: cmd.String("mode")}
			maxPages := int(cmd.Int("max-pages"))

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				return signalHandler(ctx, e.logger)
			})
			eg.Go(func() error {
				defer pushMetrics(e)
				sum, err := runLoop(ctx, e.invoker, event, maxPages, e.logger)
				if err != nil {
					return err
				}
				if err := writeJSON(cmd.Root().Writer, sum); err != nil {
					return err
				}
				return errDone
			})
			return finish(eg.Wait())
		},
	}
}

func serveCommand(build builder) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "accept invocations over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "listen address (default LISTEN_ADDR)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := build(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			addr := e.listenAddr
			if a := cmd.String("addr"); a != "" {
				addr = a
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           newMux(e.invoker, e.logger),
				ReadHeaderTimeout: 10 * time.Second,
			}

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				return signalHandler(ctx, e.logger)
			})
			eg.Go(func() error {
				e.logger.Info().Str("addr", addr).Msg("Listening for invocations")
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			eg.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return finish(eg.Wait())
		},
	}
}

// runSummary is printed when a run loop ends.
type runSummary struct {
	LoadType         string  `json:"load_type"`
	Mode             string  `json:"mode"`
	Invocations      int     `json:"invocations"`
	RecordsProcessed int     `json:"records_processed"`
	NextPage         *string `json:"next_page"`
}

// runLoop feeds each response's next_page into the next invocation until it
// is null, maxPages invocations have run, or ctx is cancelled. NextPage in the
// summary is non-nil only when the loop stopped early.
func runLoop(ctx context.Context, inv Invoker, event ingest.Event, maxPages int, logger zerolog.Logger) (*runSummary, error) {
	sum := &runSummary{LoadType: event.LoadType, Mode: event.Mode}
	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		resp, err := inv.Invoke(ctx, event)
		if err != nil {
			return sum, err
		}
		sum.Invocations++
		sum.RecordsProcessed += resp.Body.RecordsProcessed
		sum.NextPage = resp.Body.NextPage

		if resp.Body.NextPage == nil {
			return sum, nil
		}
		if maxPages > 0 && sum.Invocations >= maxPages {
			logger.Warn().Int("max_pages", maxPages).Msg("Page limit reached, run left resumable")
			return sum, nil
		}
		event.Page = *resp.Body.NextPage
	}
}

// newMux serves POST /invoke plus health and metrics endpoints.
func newMux(inv Invoker, logger zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /invoke", invokeHandler(inv, logger))
	return mux
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func invokeHandler(inv Invoker, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var event ingest.Event
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&event); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid event: %v", err))
			return
		}

		resp, err := inv.Invoke(r.Context(), event)
		if err != nil {
			var invalid *ingest.InvalidEventError
			if errors.As(err, &invalid) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			logger.Error().Err(err).Str("load_type", event.LoadType).Msg("Invocation failed")
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := writeJSON(w, resp); err != nil {
			logger.Error().Err(err).Msg("Failed to write response")
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// errDone ends the errgroup once the work finished so the signal handler
// returns.
var errDone = errors.New("done")

var errSignal = errors.New("received the quit signal")

func signalHandler(ctx context.Context, logger zerolog.Logger) error {
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigint)

	select {
	case <-ctx.Done():
		return nil
	case sig := <-sigint:
		logger.Warn().Str("signal", sig.String()).Msg("Shutting down")
		return errSignal
	}
}

func finish(err error) error {
	if errors.Is(err, errDone) || errors.Is(err, errSignal) {
		return nil
	}
	return err
}

func pushMetrics(e *env) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metrics.Push(ctx, e.pushgatewayURL, pushJob); err != nil {
		e.logger.Warn().Err(err).Msg("Metrics push failed")
	}
}
