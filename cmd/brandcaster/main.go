package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mejba13/brandcaster-ai/internal/api"
	"github.com/mejba13/brandcaster-ai/internal/model"
	"github.com/mejba13/brandcaster-ai/internal/pipeline"
	"github.com/mejba13/brandcaster-ai/internal/publish"
	"github.com/mejba13/brandcaster-ai/internal/scheduler"
	"github.com/mejba13/brandcaster-ai/internal/topics"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "brandcaster",
		Short:         "Multi-brand AI content generation and publishing engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		serveCmd(),
		migrateCmd(),
		discoverCmd(),
		generateCmd(),
		scheduleCmd(),
		versionCmd(),
	)
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, job queue workers, and background maintenance",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildBase(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			a.buildDiscovery()
			if err := a.buildPipeline(); err != nil {
				return err
			}

			handler := api.NewHandler(a.store, a.cache, a.discovery, a.pipeline, a.orch, a.logger)
			mw := api.NewMiddleware(a.logger, a.metrics)
			mux := handler.Routes(mw, a.mux, a.cfg.Security.CORSAllowedOrigins, a.cfg.Security.RateLimitRPM)

			srv := &http.Server{
				Addr:         a.cfg.HTTPAddr,
				Handler:      mux,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  120 * time.Second,
			}

			errCh := make(chan error, 2)
			go func() {
				a.logger.Infow("http server listening", "addr", srv.Addr, "env", a.cfg.Env)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()
			go func() {
				if err := a.queue.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					errCh <- err
				}
			}()
			a.maint.Start(ctx)

			select {
			case <-ctx.Done():
				a.logger.Infow("shutdown signal received")
			case err := <-errCh:
				stop()
				a.logger.Errorw("fatal component error", "error", err)
			}

			shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutCtx); err != nil {
				a.logger.Warnw("http shutdown", "error", err)
			}
			a.maint.Wait()
			a.logger.Infow("bye")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildBase(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			switch args[0] {
			case "up":
				return a.store.Migrate(ctx)
			case "down":
				return a.store.MigrateDown(ctx)
			case "status":
				return a.store.MigrationStatus(ctx)
			default:
				return fmt.Errorf("unknown migrate direction %q", args[0])
			}
		},
	}
	return cmd
}

func discoverCmd() *cobra.Command {
	var brandID string
	var all bool

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Run topic discovery for one brand or every active brand",
		RunE: func(cmd *cobra.Command, args []string) error {
			if brandID == "" && !all {
				return errors.New("one of --brand or --all is required")
			}
			ctx := cmd.Context()
			a, err := buildBase(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			a.buildDiscovery()

			if all {
				brands, err := a.store.ListActiveBrands(ctx)
				if err != nil {
					return err
				}
				for _, b := range brands {
					res, err := a.discovery.Run(ctx, b.ID)
					if err != nil {
						a.logger.Errorw("discovery failed", "brand_id", b.ID, "error", err)
						continue
					}
					printDiscovery(cmd, b.Name, res)
				}
				return nil
			}

			brand, err := a.store.GetBrand(ctx, brandID)
			if err != nil {
				return err
			}
			res, err := a.discovery.Run(ctx, brand.ID)
			if err != nil {
				return err
			}
			printDiscovery(cmd, brand.Name, res)
			return nil
		},
	}
	cmd.Flags().StringVar(&brandID, "brand", "", "brand id to discover for")
	cmd.Flags().BoolVar(&all, "all", false, "discover for every active brand")
	return cmd
}

func generateCmd() *cobra.Command {
	var opts pipeline.GenerateOptions
	var brandID string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Queue content generation for a brand's discovered topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if brandID == "" {
				return errors.New("--brand is required")
			}
			ctx := cmd.Context()
			a, err := buildBase(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			a.buildDiscovery()
			if err := a.buildPipeline(); err != nil {
				return err
			}

			res, err := a.pipeline.StartGeneration(ctx, brandID, opts)
			if err != nil {
				return err
			}
			mode := "queued"
			if res.DryRun {
				mode = "dry-run"
			}
			cmd.Printf("%s: %d topics processed, %d queued, %d errors\n",
				mode, res.Processed, res.Queued, res.Errors)
			for _, item := range res.Items {
				if item.Error != "" {
					cmd.Printf("  %s  %q  error: %s\n", item.TopicID, item.Title, item.Error)
					continue
				}
				cmd.Printf("  %s  %q\n", item.TopicID, item.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&brandID, "brand", "", "brand id to generate for")
	cmd.Flags().StringVar(&opts.CategoryID, "category", "", "restrict to one category")
	cmd.Flags().IntVar(&opts.Limit, "limit", 1, "number of topics to consume")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report topics without claiming them")
	cmd.Flags().BoolVar(&opts.Run.AutoApprove, "auto-approve", false, "approve above the brand threshold even if the brand has auto-approval off")
	cmd.Flags().BoolVar(&opts.Run.Schedule, "schedule", false, "schedule publishing once drafts are approved")
	cmd.Flags().BoolVar(&opts.Run.Immediate, "immediate", false, "publish approved drafts right away instead of at the next slot")
	return cmd
}

func scheduleCmd() *cobra.Command {
	var brandID string
	var days int
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Place a brand's approved drafts into upcoming posting slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			if brandID == "" {
				return errors.New("--brand is required")
			}
			ctx := cmd.Context()
			a, err := buildBase(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			brand, err := a.store.GetBrand(ctx, brandID)
			if err != nil {
				return err
			}

			if dryRun {
				day := time.Now().In(brand.Settings.Location())
				for i := 0; i < days; i++ {
					cmd.Printf("%s\n", day.Format("Mon 2006-01-02"))
					for slot := 0; slot < postsPerDay(*brand); slot++ {
						t := scheduler.CalculateSlot(*brand, day, slot)
						cmd.Printf("  %s\n", t.Format("15:04"))
					}
					day = day.AddDate(0, 0, 1)
				}
				return nil
			}

			a.buildDiscovery()
			if err := a.buildPipeline(); err != nil {
				return err
			}

			capacity := postsPerDay(*brand) * days
			drafts, err := a.store.ListApprovedDrafts(ctx, brandID, capacity)
			if err != nil {
				return err
			}
			if len(drafts) == 0 {
				cmd.Println("no approved drafts waiting")
				return nil
			}

			horizon := time.Now().AddDate(0, 0, days)
			scheduled := 0
			for _, draft := range drafts {
				slot, err := a.pipeline.SchedulePublish(ctx, draft.ID, *brand, publish.AllTargets())
				if err != nil {
					cmd.Printf("  %s  %q  error: %v\n", draft.ID, draft.Title, err)
					continue
				}
				if slot.After(horizon) {
					cmd.Printf("  %s  %q  %s (beyond %d-day window)\n",
						draft.ID, draft.Title, slot.Format(time.RFC3339), days)
				} else {
					cmd.Printf("  %s  %q  %s\n", draft.ID, draft.Title, slot.Format(time.RFC3339))
				}
				scheduled++
			}
			cmd.Printf("%d of %d drafts scheduled\n", scheduled, len(drafts))
			return nil
		},
	}
	cmd.Flags().StringVar(&brandID, "brand", "", "brand id to schedule for")
	cmd.Flags().IntVar(&days, "days", 7, "scheduling window in days")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print slot times without scheduling anything")
	return cmd
}

func postsPerDay(b model.Brand) int {
	if b.Settings.PostsPerDay > 0 {
		return b.Settings.PostsPerDay
	}
	return 1
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("brandcaster", version)
		},
	}
}

func printDiscovery(cmd *cobra.Command, brandName string, res *topics.Result) {
	cmd.Printf("%s: %d candidates, %d duplicates, %d low score, %d stored\n",
		brandName, res.Candidates, res.Duplicates, res.LowScore, res.Stored)
}
