// Package cli wires optiq's cobra commands to the config/coordinator/
// watcher packages, following the teacher's root.go: one package-level
// Config a RunE mutates via flags, signal handling that cancels a shared
// context, and thin subcommands that delegate to already-built APIs.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/surfgoffdude/optiq/internal/config"
	"github.com/surfgoffdude/optiq/internal/coordinator"
	"github.com/surfgoffdude/optiq/internal/storage"
)

// Version and BuildTime are set at build time via -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var cfg = config.DefaultConfig()

// NewRootCmd builds optiq's root command and every subcommand.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "optiq",
		Short: "Local batch image optimization engine",
		Long: `optiq optimizes images in place or into a mirrored output tree,
searching each file's encoder quality for the smallest output that still
clears a perceptual similarity guardrail.

Examples:
  # Optimize a folder, writing results into an "Optimized" folder under the inputs' common root
  optiq run --in ./photos

  # Convert everything to WebP as well, using the design export preset
  optiq run --in ./photos --preset design --mode optimizeAndWebp

  # Smart search targeting visually-lossless quality
  optiq run --in ./photos --mode smart --smart-target visually-lossless

  # Dry run: report planned actions without writing anything
  optiq run --in ./photos --dry-run`,
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newPreviewCmd())
	rootCmd.AddCommand(newRestoreCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newPresetsCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func bindRunFlags(flags *pflag.FlagSet, configPath *string) {
	flags.StringSliceVar(&cfg.Inputs, "in", nil, "Input files and directories to process (required)")
	flags.StringVar(&cfg.OutputDir, "out", "optimized", "Output dir setting; not read by the path planner, which writes subfolder output to <common root>/Optimized")
	flags.StringVar((*string)(&cfg.OutputMode), "output-mode", string(config.OutputSubfolder), "Output disposition: subfolder or replace")
	flags.StringVar((*string)(&cfg.Mode), "mode", string(config.ModeOptimize), "Run mode: optimize, convertWebp, optimizeAndWebp, smart, responsive")
	flags.StringVar((*string)(&cfg.ExportPreset), "preset", string(config.PresetWeb), "Export preset: original, web, design")
	flags.IntVar(&cfg.JPEGQuality, "jpeg-quality", 0, "Explicit JPEG quality [1,100] (overrides the preset)")
	flags.IntVar(&cfg.WebPQuality, "webp-quality", 0, "Explicit WebP quality [1,100] (overrides the preset)")
	flags.IntVar(&cfg.WebPEffort, "webp-effort", 5, "WebP encode effort [4,6]")
	flags.BoolVar(&cfg.NearLossless, "near-lossless", false, "Use WebP near-lossless mode")
	flags.BoolVar(&cfg.AggressivePNG, "aggressive-png", false, "Relax the PNG SSIM guardrail for smaller output")
	flags.BoolVar(&cfg.AllowLargerOutput, "allow-larger", false, "Keep a candidate even if it is larger than the source")
	flags.BoolVar(&cfg.DisableSSIMGuard, "disable-ssim-guard", false, "Accept the first candidate regardless of similarity score")
	flags.StringVar((*string)(&cfg.SmartTarget), "smart-target", string(config.TargetBalanced), "Smart search target: visually-lossless, high, balanced, small, custom")
	flags.IntVar(&cfg.CustomGuardrail, "custom-guardrail", 95, "MSSIM guardrail percentage for smart-target=custom")
	flags.StringVar((*string)(&cfg.Speed), "speed", string(config.SpeedBalanced), "Search thoroughness: fast, balanced, thorough")
	flags.IntVar(&cfg.Concurrency.N, "workers", 0, "Worker count (0 = auto)")
	flags.StringVar(&cfg.DBPath, "db", "optiq.sqlite", "Path to the SQLite job/index database")
	flags.BoolVar(&cfg.DryRun, "dry-run", false, "Report planned actions without writing output")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Emit per-file diagnostic logging")
	flags.BoolVar(&cfg.NoProgress, "no-progress", false, "Disable the progress bar")
	flags.IntVar(&cfg.MaxMemoryMB, "max-memory", 0, "Cap estimated memory reserved by concurrently-running jobs, in MB (0 = unlimited)")
	flags.StringVar(configPath, "config", "", "Path to a YAML config file (defaults to optiq.yaml if present)")

	// Responsive Derivative Engine flags, only meaningful under --mode responsive.
	flags.StringVar((*string)(&cfg.Responsive.Mode), "responsive-mode", string(config.ResponsiveModeWidth), "Responsive plan shape: width or dpr")
	flags.IntSliceVar(&cfg.Responsive.Widths, "responsive-widths", nil, "Target widths in pixels for --responsive-mode width")
	flags.IntVar(&cfg.Responsive.DPRBaseWidth, "responsive-dpr-base", 0, "Base width in pixels for --responsive-mode dpr (1x); 0 uses the source width")
	flags.StringVar((*string)(&cfg.Responsive.FormatPolicy), "responsive-format", string(config.FormatPolicyWebPFallback), "Derivative format policy: keep, webp-fallback, webp-only")
	flags.BoolVar(&cfg.Responsive.AllowUpscale, "responsive-allow-upscale", false, "Allow a plan wider than the source image")
	flags.BoolVar(&cfg.Responsive.IncludeOriginal, "responsive-include-original", false, "Also emit a derivative at the source's own width")
	flags.StringVar((*string)(&cfg.Responsive.OptimizationPreset), "responsive-preset", string(config.PresetWeb), "Export preset the Responsive Derivative Engine encodes at")
	flags.StringVar(&cfg.Responsive.SizesTemplate, "responsive-sizes-template", "", "Named sizes-attribute template: full-width, half-width, thumbnail")
	flags.StringVar(&cfg.Responsive.CustomSizes, "responsive-custom-sizes", "", "Literal sizes attribute, overriding --responsive-sizes-template")
}

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Optimize every file under the given inputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context())
		},
	}
	bindRunFlags(cmd.Flags(), &configPath)

	// Binding a flag writes its literal default into cfg, so config-file
	// values are layered onto cfg after binding: a field the file sets keeps
	// the file's value, and an explicit flag still wins when the user passes
	// one — cobra parses flags before any RunE runs, so loading the file
	// inside RunE would be too late to let flags override it.
	if err := applyConfigFile(scanFlagValue(os.Args[1:], "config")); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

// scanFlagValue looks up "--name value" or "--name=value" in args without
// going through a full flag parse, so a config file's path can be known
// before cobra parses the flags that should override it.
func scanFlagValue(args []string, name string) string {
	prefix := "--" + name
	for i, a := range args {
		if a == prefix && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(a, prefix+"=") {
			return strings.TrimPrefix(a, prefix+"=")
		}
	}
	return ""
}

func runOnce(ctx context.Context) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nreceived interrupt, finishing in-flight files...")
		cancel()
	}()

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = store.Close() }()

	co := coordinator.New(cfg, store)

	fmt.Printf("optimizing %v\n", cfg.Inputs)
	fmt.Printf("  mode: %s  preset: %s  output-mode: %s\n", cfg.Mode, cfg.ExportPreset, cfg.OutputMode)
	if cfg.DryRun {
		fmt.Println("  dry-run: no files will be written")
	}

	summary, err := co.StartRun(runCtx)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("run %s finished in %s\n", summary.RunID, summary.Duration.Round(1e6))
	fmt.Printf("  processed: %d  skipped: %d  failed: %d\n",
		summary.Stats.Processed, summary.Stats.Skipped, summary.Stats.Failed)
	fmt.Printf("  %s -> %s (%s saved, %.1f%%)\n",
		summary.Stats.FormatBytes(summary.Stats.InputBytes),
		summary.Stats.FormatBytes(summary.Stats.OutputBytes),
		summary.Stats.FormatBytes(summary.Stats.SavedBytes()),
		summary.Stats.SavedPercent())

	if summary.Stats.Failed > 0 {
		return fmt.Errorf("completed with %d failures", summary.Stats.Failed)
	}
	return nil
}

func applyConfigFile(configPath string) error {
	fc, _, err := config.FindAndLoadConfig(configPath)
	if err != nil {
		return err
	}
	fc.ApplyToConfig(cfg)
	return nil
}

func newScanCmd() *cobra.Command {
	var inputs []string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Count eligible files under the given inputs without processing them",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := &config.Config{Inputs: inputs}
			co := coordinator.New(c, nil)
			count, err := co.ScanPaths()
			if err != nil {
				return err
			}
			fmt.Printf("%d eligible files\n", count)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&inputs, "in", nil, "Paths to scan")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func newPreviewCmd() *cobra.Command {
	var out string
	previewCfg := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "preview <path>",
		Short: "Smart-search a single file and report the result without writing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			co := coordinator.New(previewCfg, nil)
			result, err := co.Preview(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("quality: %s  mssim: %.4f  size: %d bytes\n", result.QualityLabel, result.SSIM, result.Size)
			if out != "" {
				if err := os.WriteFile(out, result.Buffer, 0644); err != nil {
					return fmt.Errorf("writing preview buffer to %s: %w", out, err)
				}
				fmt.Printf("wrote preview buffer to %s\n", out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar((*string)(&previewCfg.ExportPreset), "preset", string(config.PresetWeb), "Export preset: original, web, design")
	cmd.Flags().StringVar(&out, "out", "", "If set, also write the preview buffer to this path")
	return cmd
}

func newRestoreCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Undo the most recent run by restoring backed-up originals",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.New(dbPath)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer func() { _ = store.Close() }()

			co := coordinator.New(&config.Config{}, store)
			restored, removed, err := co.RestoreLastRun()
			if err != nil {
				return err
			}
			fmt.Printf("restored %d files, removed %d outputs with no backup\n", restored, removed)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "optiq.sqlite", "Path to the SQLite job/index database")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("optiq %s (built %s)\n", Version, BuildTime)
		},
	}
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show job counts recorded in the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, _ := cmd.Flags().GetString("db")
			store, err := storage.New(dbPath)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer func() { _ = store.Close() }()

			total, ok, failed, skipped, inProgress, err := store.GetStats()
			if err != nil {
				return fmt.Errorf("reading stats: %w", err)
			}

			fmt.Printf("total: %d  ok: %d  failed: %d  skipped: %d  in-progress: %d\n",
				total, ok, failed, skipped, inProgress)
			return nil
		},
	}
	cmd.Flags().String("db", "optiq.sqlite", "Path to the SQLite job/index database")
	return cmd
}

// Execute runs the CLI and exits the process on error, matching the
// teacher's Execute: cobra has already printed the error, so don't repeat it.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
