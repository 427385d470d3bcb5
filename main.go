package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/bassamadnan/gmail-ingest/config"
	"github.com/bassamadnan/gmail-ingest/cursor"
	"github.com/bassamadnan/gmail-ingest/gate"
	"github.com/bassamadnan/gmail-ingest/gmail"
	"github.com/bassamadnan/gmail-ingest/ingest"
	"github.com/bassamadnan/gmail-ingest/scheduler"
	"github.com/bassamadnan/gmail-ingest/sink"
	"github.com/bassamadnan/gmail-ingest/tui"
)

const defaultConfigPath = "config.yaml"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "gmail-ingest",
		Short:         "Fetch matching Gmail messages into a CSV table on a daily schedule",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to the YAML config file")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logFile, err := openLogFile(cfg.System.LogFile)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()
	logger := log.NewWithOptions(logFile, log.Options{
		ReportTimestamp: true,
		Prefix:          "gmail-ingest",
	})
	logger.Info("Application starting...", "config", configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cancelling context...")
		cancel()
	}()

	job, mode, err := buildJob(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize ingestion job", "error", err)
		return err
	}

	gates := []gate.Gate{
		gate.Network{Addr: cfg.Conditions.NetworkProbe, Timeout: 3 * time.Second},
		gate.Memory{MinFreePercent: cfg.Conditions.MinRAMPercentFree},
		gate.Idle{MaxIdle: cfg.MaxIdle(), Detector: gate.NewIdleDetector()},
	}
	sched := scheduler.New(scheduler.Config{
		Hour:   cfg.Schedule.Hour,
		Minute: cfg.Schedule.Minute,
	}, job, gates, logger)

	// Jobs get their own context: a run in progress is allowed to finish.
	if err := sched.Start(context.Background()); err != nil {
		logger.Error("Failed to start scheduler", "error", err)
		return err
	}

	fmt.Println(tui.StartBanner(tui.BannerInfo{
		ConfigPath: configPath,
		Schedule:   fmt.Sprintf("daily at %02d:%02d", cfg.Schedule.Hour, cfg.Schedule.Minute),
		Next:       sched.Next(),
		Output:     cfg.Paths.OutputCSV,
		Mode:       mode,
	}))

	ticker := time.NewTicker(cfg.CheckInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := sched.Stop(context.Background()); err != nil {
				logger.Error("Scheduler did not stop cleanly", "error", err)
			}
			fmt.Println(tui.StopBanner())
			logger.Info("Application stopped. Exiting.")
			return nil
		case <-ticker.C:
			logger.Debug("Scheduler alive", "next", sched.Next())
		}
	}
}

// buildJob returns the external script job when one is configured, and the
// in-process Gmail ingestion otherwise.
func buildJob(cfg *config.Config, logger *log.Logger) (scheduler.Job, string, error) {
	if cfg.System.ScriptName != "" {
		cmdCfg := scheduler.CommandConfig{
			ProjectDir:   cfg.System.ProjectDir,
			ScriptName:   cfg.System.ScriptName,
			VenvActivate: cfg.System.VenvActivate,
		}
		return scheduler.CommandJob(cmdCfg, logger), "command: " + cmdCfg.ShellLine(), nil
	}

	for _, dir := range []string{cfg.Paths.AttachmentDir, filepath.Dir(cfg.Paths.OutputCSV)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, "", fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	client, err := gmail.NewClient(context.Background(), gmail.AuthConfig{
		CredentialsFile: cfg.Auth.CredentialsFile,
		TokenFile:       cfg.Auth.TokenFile,
	}, logger.WithPrefix("gmail"))
	if err != nil {
		return nil, "", fmt.Errorf("failed to initialize Gmail client: %w. Ensure %s is present and valid", err, cfg.Auth.CredentialsFile)
	}
	logger.Info("Gmail client initialized.")

	runner := ingest.NewRunner(ingest.Config{
		Preferences:   cfg.Preferences(),
		Incremental:   cfg.Email.Incremental,
		AttachmentDir: cfg.Paths.AttachmentDir,
	},
		client,
		cursor.NewStore(cfg.Paths.LastRunTracker),
		sink.NewCSV(cfg.Paths.OutputCSV),
		sink.NewStats(cfg.Paths.JobStats),
		logger,
	)

	job := func(ctx context.Context) error {
		res := runner.Run(ctx)
		fmt.Println(tui.RunSummary(res))
		return res.Err
	}
	return job, "in-process", nil
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0660)
}
