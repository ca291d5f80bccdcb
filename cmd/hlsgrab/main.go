// Command hlsgrab is the CLI front end (spec §6): a thin Cobra wrapper
// around the orchestrator that exposes the download and info
// subcommands plus a config init command for writing a default config
// file. Grounded on the teacher's cmd/greg/main.go
// rootCmd/PersistentPreRunE wiring (config load, logger init, a viper
// config-file watcher that logs changes; the loaded Config is not
// re-read), trimmed to the surface this spec names — no TUI launch,
// no provider/search/auth/watchparty commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/efferion/hlsgrab/internal/apperrors"
	"github.com/efferion/hlsgrab/internal/concat"
	"github.com/efferion/hlsgrab/internal/config"
	"github.com/efferion/hlsgrab/internal/fsutil"
	"github.com/efferion/hlsgrab/internal/httpclient"
	"github.com/efferion/hlsgrab/internal/orchestrator"
	"github.com/efferion/hlsgrab/internal/registry"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	cfgFile  string
	logLevel string
	noColor  bool
	verbose  bool

	cfg    config.Config
	logger *slog.Logger
	svc    *registry.Registry
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "hlsgrab",
	Short:   "Download HLS (M3U8) streams to a single video file",
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var v *viper.Viper
		var err error
		cfg, v, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if logLevel != "" {
			cfg.Logging.Level = config.ParseLogLevel(logLevel)
		}
		if verbose {
			cfg.Logging.Level = config.LogVerbose
		}
		cfg.Logging.Color = !noColor

		logger, err = config.InitLogger(&cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		slog.SetDefault(logger)

		if v != nil && cfgFile != "" {
			v.WatchConfig()
			v.OnConfigChange(func(e fsnotify.Event) {
				logger.Info("config file changed", "name", e.Name)
			})
		}

		svc = registry.New()
		registry.RegisterSingleton(svc, func() *httpclient.Client {
			return httpclient.New(cfg)
		})
		registry.RegisterSingleton(svc, func() *concat.Concatenator {
			return concat.NewConcatenator(cfg.ToolConcatPath)
		})
		registry.RegisterSingleton(svc, func() *fsutil.FileSystem {
			return fsutil.New()
		})

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: none, built-in performance defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: none, error, info, debug, verbose, trace")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored log output")

	downloadCmd.Flags().StringVar(&downloadName, "name", "", "output file name (without extension)")
	downloadCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(configCmd)
}

var downloadName string

var downloadCmd = &cobra.Command{
	Use:   "download <url>",
	Short: "Download an HLS playlist URL to a single video file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := args[0]

		savedDir, err := downloadsDir()
		if err != nil {
			return fmt.Errorf("failed to resolve downloads directory: %w", err)
		}

		client, err := registry.Resolve[*httpclient.Client](svc)
		if err != nil {
			return fmt.Errorf("failed to resolve HTTP client: %w", err)
		}
		concatenator, err := registry.Resolve[*concat.Concatenator](svc)
		if err != nil {
			return fmt.Errorf("failed to resolve concatenator: %w", err)
		}
		fs, err := registry.Resolve[*fsutil.FileSystem](svc)
		if err != nil {
			return fmt.Errorf("failed to resolve filesystem collaborator: %w", err)
		}

		o := orchestrator.New(cfg, client,
			orchestrator.WithLogger(logger),
			orchestrator.WithCombine(func(ctx context.Context, _ string, dir string, order []string, output string) error {
				return concatenator.Combine(ctx, dir, order, output)
			}),
			orchestrator.WithReadLocal(fs.ReadFile),
		)

		req := orchestrator.Request{
			URL:            url,
			SavedDirectory: savedDir,
			FileName:       downloadName,
			Source:         orchestrator.SourceWeb,
			Verbose:        verbose,
		}

		if err := o.CreateTask(cmd.Context(), req); err != nil {
			if apperrors.IsCancellation(err) {
				return fmt.Errorf("download cancelled: %w", err)
			}
			var rs interface{ RecoverySuggestion() string }
			if errors.As(err, &rs) {
				fmt.Fprintln(os.Stderr, rs.RecoverySuggestion())
			}
			return fmt.Errorf("download failed: %w", err)
		}

		id := orchestrator.ID(url)
		if metrics, ok := o.TaskMetrics(id); ok {
			fmt.Printf("saved to %s (%s, %d segments, download %s, concat %s)\n",
				savedDir,
				humanize.Bytes(uint64(metrics.TotalBytes)),
				metrics.SegmentCount,
				metrics.DownloadDuration.Round(time.Second),
				metrics.ProcessingDuration.Round(time.Second))
		} else {
			fmt.Printf("saved to %s\n", savedDir)
		}
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print tool metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("hlsgrab %s (commit: %s, built: %s)\n", version, commit, date)
		fmt.Println("HLS (M3U8) video downloader: fetch, parse, download, concatenate.")
		return nil
	},
}

// configCmd groups configuration file management, mirroring the
// teacher's configCmd/configInitCmd split.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration file management",
}

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Generate a default configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := config.SaveDefault(path); err != nil {
			if errors.Is(err, os.ErrExist) {
				return fmt.Errorf("configuration file already exists: %s", path)
			}
			return fmt.Errorf("failed to write default configuration: %w", err)
		}
		fmt.Printf("default configuration written to %s\n", path)
		return nil
	},
}

// downloadsDir resolves the OS-default user Downloads directory, per
// spec §6.
func downloadsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, "Downloads")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	return dir, nil
}
