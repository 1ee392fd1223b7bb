package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/app"
	"github.com/ternarybob/mekong/internal/common"
	"github.com/ternarybob/mekong/internal/models"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	runOnce      = flag.Bool("once", false, "Run one pipeline pass and exit")
	verbose      = flag.Bool("verbose", false, "Enable debug logging")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

// main only parses flags and exits; run owns the application lifecycle so
// deferred cleanup (recorder drain, storage close) always executes before
// the process exits.
func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Mekong version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	os.Exit(run())
}

func run() int {
	// Auto-discover a config file next to the binary when none is given
	if len(configFiles) == 0 {
		if _, err := os.Stat("mekong.toml"); err == nil {
			configFiles = append(configFiles, "mekong.toml")
		} else if _, err := os.Stat("config/mekong.toml"); err == nil {
			configFiles = append(configFiles, "config/mekong.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Error().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		return 1
	}

	common.ApplyFlagOverrides(config, *verbose)

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Strs("config_files", configFiles).
		Str("environment", config.Environment).
		Str("llm_provider", config.LLM.Provider).
		Msg("Application configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		return 1
	}
	defer application.Close()

	if *runOnce {
		return runSinglePass(application, logger)
	}

	if !config.Scheduler.Enabled {
		logger.Error().Msg("Scheduler disabled in config, use -once for a manual pass")
		return 1
	}

	if err := application.Scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start scheduler")
		return 1
	}

	logger.Info().Msg("Mekong running - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received, shutting down")
	application.Scheduler.Stop()
	logger.Info().Msg("Mekong stopped")
	return 0
}

// runSinglePass executes one synchronous pipeline pass. The exit code is 0
// for success or partial success, 1 for a failed run.
func runSinglePass(application *app.App, logger arbor.ILogger) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	run, err := application.Scheduler.RunOnce(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Pipeline pass failed")
		return 1
	}

	logger.Info().
		Str("run_id", run.ID).
		Str("status", string(run.Status)).
		Str("summary", run.Summary).
		Msg("Pipeline pass complete")

	if run.Status == models.RunFailed {
		return 1
	}
	return 0
}
