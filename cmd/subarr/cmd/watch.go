package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/subarr/internal/observability"
	"github.com/jmylchreest/subarr/internal/scheduler"
)

// watchCmd keeps subarr running and subtitles files dropped into a directory.
var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Watch a directory and subtitle new video files",
	Long: `Watch rescans the given directory on the configured schedule and
submits every new video file it finds. The command runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.Logging)

	dir := args[0]
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("watch target %s is not a directory", dir)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	snap := cfg.Snapshot()
	watcher, err := scheduler.NewWatcher(dir, cfg.Watch, func(path string) error {
		_, err := a.sched.Submit(path, snap)
		return err
	}, logger)
	if err != nil {
		return err
	}

	watcher.Start()
	defer watcher.Stop()

	fmt.Printf("Watching %s, press Ctrl-C to stop.\n", dir)

	// Run until interrupted; expected=0 means render indefinitely.
	completed, failed, skipped := a.renderEvents(ctx, 0)

	a.sched.StopAll()
	fmt.Printf("\n%d completed, %d failed, %d skipped\n", completed, failed, skipped)
	return nil
}
