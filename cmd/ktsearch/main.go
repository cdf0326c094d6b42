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


package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/ktsearch"
	"github.com/poiesic/ktsearch/config"
	"github.com/poiesic/ktsearch/core"
	"github.com/poiesic/ktsearch/metrics"
	"github.com/poiesic/ktsearch/reindex"
)

func main() {
	app := &cli.App{
		Name:  "ktsearch",
		Usage: "RAG search over SAP knowledge-transfer meeting transcripts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to the chunk store directory (overrides config)",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "Run a synchronous search",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the full response as JSON",
					},
				},
			},
			{
				Name:      "staged",
				Usage:     "Run a search through the staged pipeline with an embedded worker",
				ArgsUsage: "<query>",
				Action:    stagedCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the full response as JSON",
					},
				},
			},
			{
				Name:   "worker",
				Usage:  "Run a standalone stage worker",
				Action: workerCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "Serve Prometheus metrics on this address (overrides config)",
					},
				},
			},
			{
				Name:   "discover",
				Usage:  "List the clients known to the chunk store",
				Action: discoverCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "refresh",
						Usage: "Bypass the discovery cache",
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Print chunk store statistics",
				Action: statsCommand,
			},
			{
				Name:   "reindex",
				Usage:  "Re-embed every stored chunk with the configured embedding model",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.BoolFlag{
						Name:  "resume",
						Usage: "Continue from the last saved checkpoint",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// setup loads the configuration and installs the default logger. CLI
// flags win over config file and environment values.
func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if level := c.String("log-level"); level != "" {
		cfg.LogLevel = strings.ToLower(level)
	}
	if db := c.String("db"); db != "" {
		cfg.DataDir = db
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	c.App.Metadata = map[string]any{"config": cfg}
	return nil
}

func configFrom(c *cli.Context) *config.Config {
	return c.App.Metadata["config"].(*config.Config)
}

func openEngine(c *cli.Context) (*ktsearch.Engine, error) {
	engine, err := ktsearch.NewEngine(configFrom(c))
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return engine, nil
}

func queryArg(c *cli.Context) (string, error) {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return "", cli.Exit("a query is required", 2)
	}
	return query, nil
}

func searchCommand(c *cli.Context) error {
	query, err := queryArg(c)
	if err != nil {
		return err
	}

	cfg := configFrom(c)
	if err := core.ValidateQuery(query, cfg.Search.MinQueryLength); err != nil {
		return cli.Exit(fmt.Sprintf("invalid query: %v", err), 2)
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	response := engine.NewOrchestrator().Search(c.Context, query)
	return printResponse(response, c.Bool("json"))
}

func stagedCommand(c *cli.Context) error {
	query, err := queryArg(c)
	if err != nil {
		return err
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	queue, err := engine.NewQueue()
	if err != nil {
		return fmt.Errorf("failed to connect job queue: %w", err)
	}
	sessions, err := engine.NewSessionRepository()
	if err != nil {
		return fmt.Errorf("failed to connect session store: %w", err)
	}
	defer sessions.Close()

	worker, err := engine.NewWorker(queue, sessions)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}
	defer worker.Close()

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	go func() {
		if err := worker.Run(ctx); err != nil {
			slog.Error("worker stopped", "err", err)
		}
	}()

	sessionID, response, err := engine.NewCoordinator(queue, sessions).Run(ctx, query)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid query: %v", err), 2)
	}

	fmt.Fprintf(os.Stderr, "session: %s\n", sessionID)
	return printResponse(response, c.Bool("json"))
}

func workerCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	queue, err := engine.NewQueue()
	if err != nil {
		return fmt.Errorf("failed to connect job queue: %w", err)
	}
	sessions, err := engine.NewSessionRepository()
	if err != nil {
		return fmt.Errorf("failed to connect session store: %w", err)
	}
	defer sessions.Close()

	worker, err := engine.NewWorker(queue, sessions)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}
	defer worker.Close()

	metricsAddr := c.String("metrics-addr")
	if metricsAddr == "" {
		metricsAddr = configFrom(c).Worker.MetricsAddr
	}
	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			slog.Info("serving metrics", "addr", metricsAddr)
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				slog.Error("metrics listener stopped", "err", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("worker started", "queue", configFrom(c).Redis.Addr)
	return worker.Run(ctx)
}

func discoverCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	discovery := engine.NewDiscovery()
	var entities map[string]*core.EntityInfo
	if c.Bool("refresh") {
		entities, err = discovery.ForceRefresh(c.Context)
	} else {
		entities, err = discovery.Discover(c.Context)
	}
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	if len(entities) == 0 {
		fmt.Println("No clients found in the chunk store.")
		return nil
	}

	names := make([]string, 0, len(entities))
	for name := range entities {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("%d known clients:\n", len(names))
	for _, name := range names {
		entity := entities[name]
		line := fmt.Sprintf("  %s (%d chunks", entity.Name, entity.ChunkCount)
		if entity.LatestMeetingDate != "" {
			line += ", latest meeting " + entity.LatestMeetingDate
		}
		line += ")"
		if len(entity.Modules) > 0 {
			line += " modules: " + strings.Join(entity.Modules, ", ")
		}
		fmt.Println(line)
	}
	return nil
}

func statsCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	repo := engine.ChunkRepository()
	total, err := repo.CountChunks(c.Context)
	if err != nil {
		return fmt.Errorf("failed to count chunks: %w", err)
	}
	fmt.Printf("chunks: %d\n", total)

	byClient, err := repo.CountBy(c.Context, core.MetaClientName)
	if err != nil {
		return fmt.Errorf("failed to count by client: %w", err)
	}
	if len(byClient) > 0 {
		clients := make([]string, 0, len(byClient))
		for client := range byClient {
			clients = append(clients, client)
		}
		sort.Strings(clients)
		fmt.Println("chunks per client:")
		for _, client := range clients {
			fmt.Printf("  %s: %d\n", client, byClient[client])
		}
	}

	videos, err := repo.ListDistinct(c.Context, core.MetaVideoName)
	if err != nil {
		return fmt.Errorf("failed to list meetings: %w", err)
	}
	fmt.Printf("meetings: %d\n", len(videos))

	speakers, err := repo.ListDistinct(c.Context, core.MetaSpeaker)
	if err != nil {
		return fmt.Errorf("failed to list speakers: %w", err)
	}
	if len(speakers) > 0 {
		fmt.Printf("speakers: %s\n", strings.Join(speakers, ", "))
	}
	return nil
}

func reindexCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	reindexConfig := &reindex.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		Resume:         c.Bool("resume"),
	}
	if reindexConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reindexConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reindexConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	reindexer := engine.NewReindexer(reindexConfig, os.Stderr)
	if err := reindexer.Run(c.Context); err != nil {
		return fmt.Errorf("reindexing failed: %w", err)
	}
	return nil
}

// printResponse renders a terminal search response. Unknown-entity
// early exits are successful outcomes and exit zero; internal failures
// exit non-zero with the client-safe message.
func printResponse(response *core.SearchResponse, asJSON bool) error {
	if asJSON {
		encoded, err := json.MarshalIndent(response, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
		if !response.Success {
			return cli.Exit("", 1)
		}
		return nil
	}

	if !response.Success {
		return cli.Exit(fmt.Sprintf("search failed: %s", response.ErrorMessage), 1)
	}

	fmt.Println(response.Answer)
	if response.Details != "" {
		fmt.Println()
		fmt.Println(response.Details)
	}
	if len(response.Contexts) > 0 {
		fmt.Printf("\n%d contexts (%s, %v):\n",
			len(response.Contexts), response.QueryType, response.ProcessingTime.Round(time.Millisecond))
		for _, hit := range response.Contexts {
			header := fmt.Sprintf("  [%d]", hit.Rank)
			if hit.Client != "" {
				header += " " + hit.Client
			}
			if hit.VideoName != "" {
				header += " / " + hit.VideoName
			}
			fmt.Printf("%s (%.2f)\n", header, hit.QualityScore)
		}
	}
	return nil
}
