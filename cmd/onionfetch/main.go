// Package main is the CLI entry point for onionfetch.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	fetchapp "github.com/magicaleks/onionfetch/internal/app/fetch"
	"github.com/magicaleks/onionfetch/internal/config"
	"github.com/magicaleks/onionfetch/internal/domain"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "onionfetch",
	Short: "Batched media downloads over a rotating anonymizing circuit",
	Long: `onionfetch downloads short-form videos one link at a time through a locally
managed tor daemon, asking for a new circuit after every link, and returns the
results as a single zip archive.`,
	Version:      config.Version,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the download API over HTTP",
	RunE:  runServe,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <link>...",
	Short: "Run one batch locally and write the archive to a file",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFetch,
}

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Start tor, request a new circuit once and stop it again",
	RunE:  runRotate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

var (
	configPath string
	outputPath string
	debug      bool
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "onionfetch.toml", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	fetchCmd.Flags().StringVarP(&outputPath, "output", "o", "videos.zip", "Where to write the archive")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(rotateCmd)
	rootCmd.AddCommand(versionCmd)
}

func setup() (*fetchapp.Application, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("configuration error: %w", err)
	}
	cfg.Log.Debug = cfg.Log.Debug || debug

	logger, err := config.NewLogger(cfg, "onionfetch")
	if err != nil {
		return nil, nil, fmt.Errorf("logger error: %w", err)
	}

	logger.Info("starting onionfetch",
		zap.String("version", config.Version),
		zap.String("build_time", config.BuildTime),
		zap.Bool("debug", cfg.Log.Debug),
	)

	app, err := fetchapp.NewApplication(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return app, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	app, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signalContext()
	defer cancel()

	if err := app.Serve(ctx); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		return err
	}
	logger.Info("onionfetch stopped cleanly")
	return nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	app, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signalContext()
	defer cancel()
	defer app.Close()

	result := app.Download(ctx, args)
	if !result.HasArchive() {
		return fmt.Errorf("%s", result.Summary)
	}

	if err := os.WriteFile(outputPath, result.Archive, 0o644); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	fmt.Printf("%s Archive written to %s\n", result.Summary, outputPath)
	return nil
}

func runRotate(cmd *cobra.Command, args []string) error {
	app, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signalContext()
	defer cancel()

	ip, err := app.Rotate(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", domain.MsgTorRotate, err)
	}
	if ip != "" {
		fmt.Printf("New exit address: %s\n", ip)
		return nil
	}
	fmt.Println("Circuit rotated.")
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		out, _ := json.Marshal(map[string]string{
			"version":    config.Version,
			"build_time": config.BuildTime,
		})
		fmt.Println(string(out))
		return
	}
	fmt.Printf("onionfetch %s (built %s)\n", config.Version, config.BuildTime)
}
