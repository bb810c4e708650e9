package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"photocleanup/internal"
)

var debounceFlag time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [folder...]",
	Short: "Scan folders, then keep the snapshot current as files change",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, folder := range args {
			info, err := os.Stat(folder)
			if err != nil || !info.IsDir() {
				return fmt.Errorf("folder does not exist or is not a directory: %s", folder)
			}
		}

		conf, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Close()

		applyEngineFlags(conf)
		snapshot := snapshotPath(conf)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		reg, err := openRegistry(conf, logger, snapshot)
		if err != nil {
			return err
		}
		defer reg.Close()

		session, err := internal.NewScanSession(conf.StateDir, strings.Join(args, string(os.PathListSeparator)))
		if err != nil {
			return err
		}
		defer session.Close()

		opts := scanOptions{Resume: true, Progress: !noProgressFlag}
		if err := scanFolders(ctx, reg, session, args, opts, cmd.ErrOrStderr()); err != nil {
			return err
		}
		reg.BuildTree()
		if err := reg.SaveSnapshot(snapshot); err != nil {
			return err
		}

		w, err := internal.NewWatcher(reg.Classifier(), args...)
		if err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		defer w.Close()

		logger.WithField("folders", args).Info("Watching for changes")
		err = internal.ApplyWatchEvents(ctx, reg, w, debounceFlag, func(t *internal.Tree) {
			if err := reg.SaveSnapshot(snapshot); err != nil {
				logger.WithError(err).Error("Failed to save snapshot")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d unique files, %d placed in tree\n",
				time.Now().Format(time.TimeOnly), reg.Len(), len(t.CrossReference))
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	watchCmd.Flags().StringVar(&snapshotFlag, "snapshot", "", "Snapshot file, .json or .yaml (default from config)")
	watchCmd.Flags().DurationVar(&debounceFlag, "debounce", 2*time.Second, "Quiet period before applying a batch of changes")
	watchCmd.Flags().IntVar(&workersFlag, "workers", 0, "Concurrent workers (default from config)")
	watchCmd.Flags().BoolVar(&useExifTool, "exiftool", false, "Force to use exiftool binary")
	watchCmd.Flags().BoolVar(&noProgressFlag, "no-progress", false, "Hide the progress bar of the initial scan")

	rootCmd.AddCommand(watchCmd)
}
