package main

import (
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/forum-responder/internal/clients/airtable"
	"github.com/jonathan/forum-responder/internal/clients/forumpost"
	"github.com/jonathan/forum-responder/internal/clients/lookup"
	"github.com/jonathan/forum-responder/internal/clients/teams"
	"github.com/jonathan/forum-responder/internal/config"
	"github.com/jonathan/forum-responder/internal/images"
	"github.com/jonathan/forum-responder/internal/ledger"
	"github.com/jonathan/forum-responder/internal/llm"
	"github.com/jonathan/forum-responder/internal/metrics"
	"github.com/jonathan/forum-responder/internal/processor"
	"github.com/jonathan/forum-responder/internal/queue"
	"github.com/jonathan/forum-responder/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook gateway and worker pool",
	Long:  `Start the HTTP gateway that accepts forum webhooks and the worker pool that processes queued jobs.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := llm.NewClient(ctx, llm.DefaultConfig(), cfg.GeminiAPIKey)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	defer func() { _ = client.Close() }()

	transcriber, err := images.NewVisionTranscriber(client)
	if err != nil {
		return fmt.Errorf("failed to create transcriber: %w", err)
	}

	// Optional collaborators stay nil interfaces when not configured.
	var records processor.RecordStore
	if cfg.Airtable.Enabled() {
		records = airtable.New(airtable.Config{
			APIKey:       cfg.Airtable.APIKey,
			BaseID:       cfg.Airtable.BaseID,
			Table:        cfg.Airtable.Table,
			OutputsTable: cfg.Airtable.OutputsTable,
		})
		log.Println("Airtable result store enabled")
	}

	var poster processor.ForumPoster
	if cfg.ForumPost.Enabled() {
		poster = forumpost.New(forumpost.Config{
			BaseURL: cfg.ForumPost.BaseURL,
			APIKey:  cfg.ForumPost.APIKey,
		})
		log.Println("Forum posting enabled")
	}

	var notifier processor.Notifier
	if cfg.Teams.Enabled() {
		notifier = teams.New(teams.Config{
			WebhookURL: cfg.Teams.WebhookURL,
			ChatID:     cfg.Teams.ChatID,
			Email:      cfg.Teams.Email,
		})
		log.Println("Teams notifications enabled")
	}

	var finder server.LookupClient
	if cfg.Lookup.Enabled() {
		finder = lookup.New(lookup.Config{
			BaseURL: cfg.Lookup.BaseURL,
			APIKey:  cfg.Lookup.APIKey,
		})
		log.Println("Payload lookup enabled")
	}

	var jobLedger processor.Ledger
	var gatewayLedger server.LedgerStore
	if cfg.DatabaseURL != "" {
		store, err := ledger.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer store.Close()
		if err := store.Init(ctx); err != nil {
			return fmt.Errorf("failed to initialize ledger schema: %w", err)
		}
		jobLedger = store
		gatewayLedger = store
		log.Println("Processing ledger enabled")
	} else {
		log.Println("DATABASE_URL not set, processing ledger disabled")
	}

	agg := metrics.New()
	proc := processor.New(client, transcriber)
	pub := processor.NewPublisher(records, poster, notifier)
	runner := processor.NewRunner(proc, pub, jobLedger, agg)
	pool := queue.NewPool(cfg.MaxQueueSize, cfg.Workers, runner.Handle)
	srv := server.New(server.Config{Port: cfg.Port, APIKey: cfg.WebhookAPIKey}, pool, runner, finder, gatewayLedger, agg)

	log.Printf("Starting with %d workers, queue capacity %d", cfg.Workers, cfg.MaxQueueSize)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Start(ctx) })
	g.Go(func() error { return srv.Start(ctx) })
	return g.Wait()
}
