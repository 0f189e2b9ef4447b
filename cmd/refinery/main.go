// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Command refinery refines staged source files into a chunked corpus and a
// vector index.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/poiesic/refinery"
	"github.com/poiesic/refinery/config"
	"github.com/poiesic/refinery/core"
	"github.com/poiesic/refinery/metrics"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "refinery",
		Usage: "Refine staged government-source files into chunks and a vector index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Value:   "refinery.yaml",
				EnvVars: []string{"REFINERY_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Optional .env file with the embedding API key",
				Value: ".env",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Refine staged sources (all of them when none are named)",
				ArgsUsage: "[source...]",
				Action:    runCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "metrics-file",
						Usage: "Write run metrics in the Prometheus text format to this file",
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Embed all stored chunks into the index of the configured model",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "embedding-model",
						Usage: "Embedding model to build the index for (overrides the config file)",
					},
					&cli.StringFlag{
						Name:  "metrics-file",
						Usage: "Write metrics in the Prometheus text format to this file",
					},
				},
			},
			{
				Name:   "verify",
				Usage:  "Check the index of the configured model against the stored chunks",
				Action: verifyCommand,
			},
			{
				Name:   "remove",
				Usage:  "Remove a record, its chunks and its index entries",
				Action: removeCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "source",
						Aliases:  []string{"s"},
						Usage:    "Source the record belongs to",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Record id (16 hex digits)",
						Required: true,
					},
				},
			},
			{
				Name:      "init",
				Usage:     "Write the default configuration file",
				ArgsUsage: "[path]",
				Action:    initCommand,
			},
		},
	}
}

// setup configures logging and loads the optional env file.
func setup(c *cli.Context) error {
	if err := setupLogger(c); err != nil {
		return err
	}
	if path := c.String("env-file"); path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return nil
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func open(c *cli.Context, opts ...refinery.Option) (*refinery.Refinery, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if model := c.String("embedding-model"); model != "" {
		cfg.Embedding.Model = model
		cfg.Embedding.Dimensions = 0
	}
	return refinery.Open(cfg, opts...)
}

func writeMetrics(c *cli.Context, m *metrics.Metrics) {
	path := c.String("metrics-file")
	if path == "" {
		return
	}
	if err := m.WriteTextfile(path); err != nil {
		slog.Error("failed to write metrics", "path", path, "err", err)
	}
}

func runCommand(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	m := metrics.New()
	r, err := open(c, refinery.WithMetrics(m))
	if err != nil {
		return err
	}
	defer r.Close()

	summary, runErr := r.Run(ctx, c.Args().Slice()...)
	if summary != nil {
		if _, err := summary.WriteTo(c.App.Writer); err != nil {
			return err
		}
		writeMetrics(c, m)
	}
	return runErr
}

func reindexCommand(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	m := metrics.New()
	r, err := open(c, refinery.WithMetrics(m))
	if err != nil {
		return err
	}
	defer r.Close()

	fmt.Fprintf(c.App.ErrWriter, "Model: %s\n", r.Config().Embedding.Model)
	fmt.Fprintf(c.App.ErrWriter, "Index: %s\n", r.IndexPath())
	stats, err := r.Reindex(ctx, c.App.ErrWriter)
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	writeMetrics(c, m)
	fmt.Fprintf(c.App.Writer, "chunks: %d, indexed: %d, already indexed: %d, failed: %d\n",
		stats.Chunks, stats.Indexed, stats.Skipped, stats.Failed)
	if stats.Failed > 0 {
		return fmt.Errorf("%d chunks could not be embedded; rerun reindex to retry them", stats.Failed)
	}
	return nil
}

func verifyCommand(c *cli.Context) error {
	r, err := open(c)
	if err != nil {
		return err
	}
	defer r.Close()

	report, err := r.Verify(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "stored chunks: %d, indexed chunks: %d\n", report.Stored, report.Indexed)
	for _, id := range report.Missing {
		fmt.Fprintf(c.App.Writer, "missing from index: %s\n", id)
	}
	for _, id := range report.Orphaned {
		fmt.Fprintf(c.App.Writer, "not in store: %s\n", id)
	}
	if !report.OK() {
		return fmt.Errorf("%w: %d missing, %d orphaned", core.ErrIndexCorrupt, len(report.Missing), len(report.Orphaned))
	}
	fmt.Fprintln(c.App.Writer, "index matches store")
	return nil
}

func removeCommand(c *cli.Context) error {
	id, err := core.ParseID(c.String("id"))
	if err != nil {
		return err
	}
	r, err := open(c)
	if err != nil {
		return err
	}
	defer r.Close()

	n, err := r.Remove(c.Context, c.String("source"), id)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", id, err)
	}
	fmt.Fprintf(c.App.Writer, "removed record %s and %d indexed chunks\n", id, n)
	return nil
}

func initCommand(c *cli.Context) error {
	path := c.String("config")
	if c.Args().Present() {
		path = c.Args().First()
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := config.Save(path, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
	return nil
}
