package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"photodedup/internal/config"
	"photodedup/internal/engine"
	"photodedup/internal/logging"
)

var (
	cfgFile string
	quiet   bool
	v       = viper.New()
	cfg     *config.Config
	logger  = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "photodedup",
	Short: "Find duplicate photos and sort them by date",
	Long: `photodedup finds duplicate or visually similar images and organizes
photo collections into date-based folders.

Identical files are matched by content digest; similar images (resized,
recompressed) are matched by perceptual hash within a Hamming distance
threshold. Hashes are cached so unchanged files are never hashed twice.

Example usage:
  photodedup scan ./photos                 # Scan a folder for duplicates
  photodedup list                          # List duplicate groups
  photodedup clean --dry-run               # Preview what would be removed
  photodedup sort ./photos ./sorted --day  # Sort into yyyy/MM/dd folders`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default ~/.config/photodedup/config.yaml)")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Do not show progress bars")
	flags.String("db", "", "Path to SQLite cache database (default ~/.photodedup/images.db)")
	flags.Int("threshold", 10, "Hamming distance threshold (0-64, lower = stricter)")
	flags.Int("workers", 0, "Parallel hashing workers (default: CPU count)")
	flags.Int("io-workers", 0, "Parallel metadata readers (default: half the CPU count)")
	flags.String("algorithm", "perception", "Perceptual hash: average, difference or perception")
	flags.String("strategy", "bktree", "Matching strategy: pairwise, bktree or bucket")
	flags.String("policy", "created", "Which image to keep: created, path or quality")
	flags.Bool("no-cache", false, "Do not read or write the hash cache")
	flags.String("log-level", "warn", "Log level: debug, info, warn, error")
	flags.String("log-format", "console", "Log format: console or json")

	for key, flag := range map[string]string{
		"db":         "db",
		"threshold":  "threshold",
		"workers":    "workers",
		"io_workers": "io-workers",
		"algorithm":  "algorithm",
		"strategy":   "strategy",
		"policy":     "policy",
		"no_cache":   "no-cache",
		"log_level":  "log-level",
		"log_format": "log-format",
	} {
		v.BindPFlag(key, flags.Lookup(flag))
	}
}

// loadConfig merges defaults, config file, environment and flags. Flags
// only override when set explicitly.
func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded

	l, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	logger = l
	return nil
}

func openEngine() (*engine.Engine, error) {
	e, err := engine.New(cfg, engine.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}
	logger.Debug("engine ready", zap.Stringer("matching", e))
	return e, nil
}
