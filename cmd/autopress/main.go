package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/autopress/autopress/internal/config"
	"github.com/autopress/autopress/internal/models"
	"github.com/autopress/autopress/internal/server"
	"github.com/autopress/autopress/internal/service"
	"github.com/autopress/autopress/internal/service/deliverer"
	"github.com/autopress/autopress/pkg/logger"
)

var (
	configPath string
	version    = "0.1.0"
	gitCommit  = "unknown"
	buildTime  = "unknown"

	planDate  string
	planCount int
	planRunID string

	deliverArticle  uint
	deliverPlatform string
)

var rootCmd = &cobra.Command{
	Use:   "autopress",
	Short: "AutoPress - Daily content generation and delivery pipeline",
	Long:  `AutoPress plans daily content runs, generates deduplicated articles and delivers them to the configured platforms with bounded retries.`,
	RunE:  runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("AutoPress %s\n", version)
		fmt.Printf("Git commit: %s\n", gitCommit)
		fmt.Printf("Build time: %s\n", buildTime)
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Run one planning cycle and exit",
	RunE:  runPlan,
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Sweep due delivery retries once and exit",
	RunE:  runRetry,
}

var deliverCmd = &cobra.Command{
	Use:   "deliver",
	Short: "Re-drive a single article's delivery to one platform",
	RunE:  runDeliver,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/server.yaml", "config file path")

	planCmd.Flags().StringVar(&planDate, "date", "", "run date (YYYY-MM-DD, default today)")
	planCmd.Flags().IntVar(&planCount, "count", 0, "articles to plan (default from config)")
	planCmd.Flags().StringVar(&planRunID, "run-id", "", "run id (default derived from date)")

	deliverCmd.Flags().UintVar(&deliverArticle, "article", 0, "article id")
	deliverCmd.Flags().StringVar(&deliverPlatform, "platform", "", "platform name")

	rootCmd.AddCommand(versionCmd, planCmd, retryCmd, deliverCmd)
}

func runServer(*cobra.Command, []string) error {
	cfg, appLogger, err := bootstrap()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	appLogger.Info("Starting AutoPress server", zap.String("version", version))

	srv, err := server.NewServer(cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := srv.Start(ctx); err != nil {
			appLogger.Error("Server failed to start", zap.Error(err))
			cancel()
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		appLogger.Info("Shutting down server...")
	case <-ctx.Done():
		appLogger.Info("Server context cancelled")
	}

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	appLogger.Info("Server exited")
	return nil
}

func runPlan(*cobra.Command, []string) error {
	cfg, appLogger, err := bootstrap()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	srv, err := server.NewServer(cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	runDate := time.Now().UTC().Truncate(24 * time.Hour)
	if planDate != "" {
		runDate, err = time.Parse("2006-01-02", planDate)
		if err != nil {
			return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", planDate)
		}
	}
	runID := planRunID
	if runID == "" {
		runID = service.DailyRunID(runDate)
	}

	run, err := srv.Planner.Plan(context.Background(), runID, runDate, planCount)
	if err != nil {
		if errors.Is(err, service.ErrDuplicateRun) {
			fmt.Printf("Run %s already %s, nothing to do\n", run.RunID, run.Status)
			return nil
		}
		return err
	}

	fmt.Printf("Run %s finished: %s (planned %d, consumed %d, added %d)\n",
		run.RunID, run.Status, run.PlannedCount, run.ConsumedCount, run.AddedCount)
	if run.Error != "" {
		fmt.Printf("Reason: %s\n", run.Error)
	}
	switch run.Status {
	case models.RunStatusSuccess:
		return nil
	case models.RunStatusPartial:
		os.Exit(2)
	default:
		os.Exit(1)
	}
	return nil
}

func runRetry(*cobra.Command, []string) error {
	cfg, appLogger, err := bootstrap()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	srv, err := server.NewServer(cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	n := srv.Retry.Sweep(context.Background())
	fmt.Printf("Re-drove %d delivery attempts\n", n)
	return nil
}

func runDeliver(*cobra.Command, []string) error {
	if deliverArticle == 0 || deliverPlatform == "" {
		return fmt.Errorf("--article and --platform are required")
	}

	cfg, appLogger, err := bootstrap()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	srv, err := server.NewServer(cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	var article models.Article
	if err := srv.DB.First(&article, deliverArticle).Error; err != nil {
		return fmt.Errorf("article %d: %w", deliverArticle, err)
	}

	d, err := srv.Registry.Get(deliverPlatform)
	if err != nil {
		return err
	}

	payload := deliverer.Payload{
		ArticleID: article.ID,
		Title:     article.Title,
		Body:      article.Body,
		Role:      article.Role,
		Work:      article.Work,
		Keyword:   article.Keyword,
		Lang:      article.Lang,
	}
	if _, err := srv.Delivery.Request(article.ID, deliverPlatform, payload); err != nil {
		return err
	}
	res, deliverErr := d.Deliver(context.Background(), payload, srv.Registry.Credentials(deliverPlatform))
	if err := srv.Delivery.RecordOutcome(article.ID, deliverPlatform, res, deliverErr); err != nil {
		return err
	}
	if deliverErr != nil {
		return fmt.Errorf("delivery failed: %w", deliverErr)
	}

	fmt.Printf("Delivered article %d to %s: %s\n", article.ID, deliverPlatform, res.Status)
	return nil
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, appLogger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
