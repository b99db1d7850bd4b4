package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jupark12/docqueue/config"
	"github.com/jupark12/docqueue/gateway"
	"github.com/jupark12/docqueue/observability"
	"github.com/jupark12/docqueue/office"
	"github.com/jupark12/docqueue/operations"
	"github.com/jupark12/docqueue/queue"
	"github.com/jupark12/docqueue/server"
	"github.com/jupark12/docqueue/worker"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "docqueue",
	Short: "Document processing dashboard backed by a job queue",
	Long: `docqueue serves a dashboard API for merging, splitting, compressing,
rotating, watermarking and converting documents. Each upload becomes a job
run by a pool of workers; progress is streamed over a websocket.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	log := observability.NewLogger(cfg.LogSettings())

	settings := cfg.OperationSettings()
	if cfg.Word.Printer == "chrome" {
		printer, err := office.NewChromePrinter(cfg.Word.ChromePath, cfg.Word.Timeout)
		if err != nil {
			log.Warn().Err(err).Msg("Chrome unavailable, Word documents will be drawn as text")
		} else {
			defer printer.Close()
			settings.Printer = printer
		}
	}

	runner := operations.NewRunner(gateway.NewPDFGateway(), settings, log)
	orch := worker.NewOrchestrator(runner, cfg.Jobs.FlattenErrors, log)
	jobQueue := queue.NewJobQueue(log)

	srv := server.NewServer(jobQueue, orch, cfg.ServerSettings(), log)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	log.Info().Int("workers", cfg.Server.Workers).Msg("Document processing broker started")

	<-ctx.Done()
	log.Info().Msg("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
