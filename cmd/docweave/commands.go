package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"docweave/internal/assemble"
	"docweave/internal/config"
	"docweave/internal/ctxlog"
	"docweave/internal/generate"
	"docweave/internal/jobstore"
	"docweave/internal/manifest"
	"docweave/internal/model"
	"docweave/internal/orchestrate"
	"docweave/internal/progress"
	"docweave/internal/publish"
	"docweave/internal/render"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a generation job from a manifest",
	Long: `Run a generation job from a manifest.

The manifest carries the abstractions and relationships extracted from the
analyzed codebase. A fresh job ID is minted unless --job-id is given.

Examples:
  docweave run --manifest ./extracted.yaml
  docweave run --manifest ./extracted.yaml --job-id job-11111111-2222-3333-4444-555555555555`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		manifestPath, _ := cmd.Flags().GetString("manifest")
		jobID, _ := cmd.Flags().GetString("job-id")
		if jobID == "" {
			jobID = "job-" + uuid.NewString()
		}
		return runJob(cmd.Context(), manifestPath, jobID)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a partially completed job under its original job ID",
	RunE: func(cmd *cobra.Command, _ []string) error {
		manifestPath, _ := cmd.Flags().GetString("manifest")
		jobID, _ := cmd.Flags().GetString("job-id")
		if jobID == "" {
			return fmt.Errorf("--job-id is required to resume")
		}
		return runJob(cmd.Context(), manifestPath, jobID)
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print a stored job's state as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		jobID, _ := cmd.Flags().GetString("job-id")
		if jobID == "" {
			return fmt.Errorf("--job-id is required")
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		job, err := store.LoadJob(cmd.Context(), jobID)
		if errors.Is(err, jobstore.ErrNotFound) {
			return fmt.Errorf("no job found with id %s", jobID)
		}
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

func init() {
	for _, c := range []*cobra.Command{runCmd, resumeCmd} {
		c.Flags().String("manifest", "", "path to the extracted abstractions manifest (required)")
		c.Flags().String("job-id", "", "job identifier, stable across retries")
		_ = c.MarkFlagRequired("manifest")
	}
	inspectCmd.Flags().String("job-id", "", "job identifier")
}

func runJob(parent context.Context, manifestPath, jobID string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = ctxlog.WithLogger(ctx, logger)

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}
	logger.Info("loaded manifest", "abstractions", len(m.Abstractions), "relationships", len(m.Relationships))

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	gen, err := buildGenerator(ctx, cfg)
	if err != nil {
		return err
	}
	defer gen.Close()

	var events func(orchestrate.Event)
	if cfg.Run.WatchAddr != "" {
		hub := progress.NewHub()
		events = hub.Publish
		srv := &http.Server{Addr: cfg.Run.WatchAddr, Handler: hub.Handler()}
		go func() {
			logger.Info("progress endpoint listening", "addr", cfg.Run.WatchAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("progress endpoint failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	orch := orchestrate.New(gen, orchestrate.Options{
		Workers:     cfg.Run.Workers,
		MaxAttempts: cfg.Run.MaxAttempts,
		BackoffBase: cfg.Run.BackoffBase,
		Store:       store,
		Events:      events,
	})
	res, err := orch.Run(ctx, jobID, m.Abstractions, m.Relationships)
	if err != nil {
		return err
	}

	set := assemble.Assemble(res.Job, res.Graph, res.Plans, res.Outputs)
	jobDir, err := render.WriteDocumentSet(cfg.Run.OutDir, set)
	if err != nil {
		return err
	}
	logger.Info("documents written", "dir", jobDir, "chapters", len(set.Chapters), "status", res.Job.Status)

	if cfg.Publish.Enabled {
		pub, err := publish.NewS3Publisher(publish.S3Config{
			Endpoint:  cfg.Publish.Endpoint,
			Region:    cfg.Publish.Region,
			AccessKey: cfg.Publish.AccessKey,
			SecretKey: cfg.Publish.SecretKey,
			Bucket:    cfg.Publish.Bucket,
			UseSSL:    cfg.Publish.UseSSL,
		})
		if err != nil {
			return err
		}
		if err := pub.Publish(ctx, set); err != nil {
			return fmt.Errorf("publishing documents: %w", err)
		}
		logger.Info("documents published", "bucket", cfg.Publish.Bucket, "prefix", set.JobID)
	}

	switch res.Job.Status {
	case model.JobSucceeded:
		return nil
	case model.JobPartiallyFailed:
		return fmt.Errorf("job %s completed with failed chapters", jobID)
	case model.JobCancelled:
		return fmt.Errorf("job %s was cancelled; resume with --job-id %s", jobID, jobID)
	default:
		return fmt.Errorf("job %s failed", jobID)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (jobstore.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return jobstore.NewMemoryStore(), nil
	case "postgres":
		return jobstore.OpenPostgres(ctx, cfg.Store.PostgresDSN)
	default:
		return jobstore.OpenSQLite(cfg.Store.DataDir)
	}
}

func buildGenerator(ctx context.Context, cfg *config.Config) (generate.ChapterGenerator, error) {
	var (
		gen generate.ChapterGenerator
		err error
	)
	switch cfg.Generator.Provider {
	case "gemini":
		gen, err = generate.NewGeminiGenerator(ctx, cfg.Generator.Model)
	case "openai":
		gen, err = generate.NewOpenAIGenerator(cfg.Generator.OpenAIAPIKey, cfg.Generator.Model)
	default:
		gen = generate.NewFakeGenerator()
	}
	if err != nil {
		return nil, err
	}
	return generate.Chain(gen, generate.WithLogging(), generate.WithCache(cfg.Generator.CacheSize)), nil
}
