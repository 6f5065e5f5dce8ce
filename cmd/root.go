package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"flacsweep/backend"
	"flacsweep/config"
	"flacsweep/logger"
)

var (
	cfg *config.Config

	flagLibrary  string
	flagLogLevel string
	flagLogFile  string
	flagQuiet    bool
	flagJSON     bool
)

var rootCmd = &cobra.Command{
	Use:   "flacsweep",
	Short: "Duplicate finder and lossless upgrade scout for audio libraries",
	Long: `flacsweep scans an audio library for duplicate recordings, ranks each
group by technical quality, and matches lossy files against the Spotify
catalog to find where a lossless version can be sourced.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		if cmd.Flags().Changed("library") {
			cfg.LibraryPath = flagLibrary
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = flagLogLevel
		}
		if cmd.Flags().Changed("log-file") {
			cfg.LogFile = flagLogFile
		}
		logger.InitLogger(logger.Config{
			Level:      logger.LogLevel(cfg.LogLevel),
			OutputPath: cfg.LogFile,
			Quiet:      flagQuiet,
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		})
		if cfg.CacheDir != "" {
			backend.SetCacheDir(cfg.CacheDir)
		}
	},
}

// Execute runs the root command.
func Execute() {
	err := rootCmd.Execute()
	backend.FlushScanCaches()
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLibrary, "library", "",
		"library root used when a command gets no path argument")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "",
		"write JSON logs to this file")
	rootCmd.PersistentFlags().BoolVar(&flagQuiet, "quiet", false,
		"suppress console log output")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false,
		"print results as JSON")
}

// resolveRoot picks the working root: explicit argument first, then the
// configured library path.
func resolveRoot(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if cfg.LibraryPath != "" {
		return cfg.LibraryPath, nil
	}
	return "", fmt.Errorf("no root given; pass a path or set --library / FLACSWEEP_LIBRARY")
}

// signalContext returns a context cancelled by Ctrl-C or SIGTERM, so long
// scans stop cleanly with partial results.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func humanSize(size int64) string {
	switch {
	case size >= 1<<30:
		return fmt.Sprintf("%.2f GB", float64(size)/(1<<30))
	case size >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}
