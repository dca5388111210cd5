package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmylchreest/subarr/internal/config"
	"github.com/jmylchreest/subarr/internal/observability"
)

// processCmd runs the pipeline over the files given as arguments.
var processCmd = &cobra.Command{
	Use:   "process <file>...",
	Short: "Subtitle one or more video files",
	Long: `Process runs each file through the full pipeline and writes the
subtitled copy next to the input. Already-computed intermediate artifacts
in the cache directory are reused, so re-running a partially processed
batch is cheap.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().String("engine", "", "translation engine (llm, free)")
	processCmd.Flags().String("target-language", "", "translation target language (BCP 47 tag)")
	processCmd.Flags().Int("workers", 0, "maximum concurrent files")
	processCmd.Flags().Bool("skip-burn", false, "stop after writing the bilingual SRT")
	processCmd.Flags().Bool("skip-translation", false, "produce monolingual subtitles only")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyProcessFlags(cmd.Flags(), cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := observability.NewLogger(cfg.Logging)

	for _, path := range args {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("input file: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	snap := cfg.Snapshot()
	for _, path := range args {
		if _, err := a.sched.Submit(path, snap); err != nil {
			return fmt.Errorf("submitting %s: %w", path, err)
		}
	}

	go func() {
		<-ctx.Done()
		a.sched.StopAll()
	}()

	completed, failed, skipped := a.renderEvents(ctx, len(args))
	fmt.Printf("\n%d completed, %d failed, %d skipped\n", completed, failed, skipped)

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}

// applyProcessFlags overrides configuration with explicitly set CLI flags.
// Flags are not bound to viper so that an untouched flag never shadows an
// environment or file value.
func applyProcessFlags(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("engine") {
		cfg.Translation.Engine, _ = flags.GetString("engine")
	}
	if flags.Changed("target-language") {
		cfg.Translation.TargetLanguage, _ = flags.GetString("target-language")
	}
	if flags.Changed("workers") {
		cfg.Scheduler.MaxWorkers, _ = flags.GetInt("workers")
	}
	if flags.Changed("skip-burn") {
		cfg.Pipeline.SkipBurn, _ = flags.GetBool("skip-burn")
	}
	if flags.Changed("skip-translation") {
		cfg.Pipeline.SkipTranslation, _ = flags.GetBool("skip-translation")
	}
}
