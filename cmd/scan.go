package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"photocleanup/internal"
)

var (
	snapshotFlag      string
	resumeFlag        bool
	treeFlag          bool
	linkFlag          string
	formatFlag        string
	metricsFileFlag   string
	workersFlag       int
	useExifTool       bool
	noProgressFlag    bool
	maxDepthFlag      int
	includeHiddenFlag bool
)

// scanOptions controls scanFolders.
type scanOptions struct {
	Resume   bool
	Progress bool
	Walk     internal.ScanOptions
}

var scanCmd = &cobra.Command{
	Use:   "scan [folder...]",
	Short: "Scan folders for duplicates and dates",
	Long: `Scan folders recursively, register every media file by content, parse
sidecar files, resolve a date for each unique file and save a snapshot.
With --resume the previous snapshot is loaded first and known paths are skipped.`,
	Args: cobra.MinimumNArgs(1),
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

		loadFrom := ""
		if resumeFlag {
			loadFrom = snapshot
		}
		reg, err := openRegistry(conf, logger, loadFrom)
		if err != nil {
			return err
		}
		defer reg.Close()

		session, err := internal.NewScanSession(conf.StateDir, strings.Join(args, string(os.PathListSeparator)))
		if err != nil {
			return err
		}
		defer session.Close()

		opts := scanOptions{
			Resume:   resumeFlag,
			Progress: !noProgressFlag,
			Walk:     internal.ScanOptions{MaxDepth: maxDepthFlag, IncludeHidden: includeHiddenFlag},
		}
		scanErr := scanFolders(ctx, reg, session, args, opts, cmd.ErrOrStderr())

		// A cancelled scan still leaves every committed entry consistent, so save it.
		tree := reg.BuildTree()
		if err := reg.SaveSnapshot(snapshot); err != nil {
			return err
		}
		if scanErr != nil {
			return scanErr
		}

		out := cmd.OutOrStdout()
		if treeFlag {
			if _, err := tree.WriteTo(out); err != nil {
				return err
			}
			fmt.Fprintln(out)
		}
		if linkFlag != "" {
			n, err := internal.LinkTree(tree, reg, linkFlag)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "📂 Linked %d files into %s\n\n", n, linkFlag)
		}
		if err := internal.WriteReport(out, reg.Report(), formatFlag); err != nil {
			return err
		}
		if metricsFileFlag != "" {
			if err := internal.WriteMetricsFile(metricsFileFlag); err != nil {
				return fmt.Errorf("failed to write metrics: %w", err)
			}
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Snapshot saved to %s, manifest in %s\n", snapshot, session.SessionDir)
		return nil
	},
}

// scanFolders discovers files below folders, registers them concurrently and
// analyzes the new entries. Every file outcome goes to the session manifest.
func scanFolders(ctx context.Context, reg *internal.Registry, session *internal.ScanSession, folders []string, opts scanOptions, progress io.Writer) error {
	var files []internal.FileRef
	for _, folder := range folders {
		res, err := internal.ScanMediaFiles(folder, reg.Classifier(), opts.Walk, true)
		if err != nil {
			return err
		}
		for _, f := range res.Files {
			if opts.Resume && reg.Known(f.Path) {
				session.LogSkipped(f.Path)
				continue
			}
			files = append(files, f)
		}
	}

	if err := session.LogSessionStart(len(files)); err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if opts.Progress {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetWriter(progress),
			progressbar.OptionSetDescription("Scanning"),
			progressbar.OptionSetWidth(20),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionClearOnFinish(),
		)
	} else {
		bar = progressbar.DefaultSilent(int64(len(files)))
	}

	err := reg.AddAll(ctx, files, func(f internal.FileRef, outcome internal.AddOutcome, err error) {
		fingerprint := ""
		if e, ok := reg.Lookup(f.Path); ok {
			fingerprint = e.Fingerprint
		}
		session.LogOutcome(f, outcome, fingerprint, err)
		bar.Add(1)
	})
	bar.Finish()
	if err != nil {
		return err
	}

	if err := reg.Update(ctx); err != nil {
		return err
	}
	return session.LogSessionEnd()
}

// applyEngineFlags overrides config values with explicitly set flags.
func applyEngineFlags(conf *internal.Config) {
	if workersFlag > 0 {
		conf.Workers = workersFlag
	}
	if useExifTool {
		conf.UseExifTool = true
	}
}

func snapshotPath(conf *internal.Config) string {
	if snapshotFlag != "" {
		return snapshotFlag
	}
	return conf.Snapshot
}

func init() {
	scanCmd.Flags().StringVar(&snapshotFlag, "snapshot", "", "Snapshot file, .json or .yaml (default from config)")
	scanCmd.Flags().BoolVar(&resumeFlag, "resume", false, "Load the snapshot first and skip known paths")
	scanCmd.Flags().BoolVar(&treeFlag, "tree", false, "Print the recommended tree")
	scanCmd.Flags().StringVar(&linkFlag, "link", "", "Create a hardlink preview of the recommended tree in this folder")
	scanCmd.Flags().StringVar(&formatFlag, "format", "table", "Output format: table, json")
	scanCmd.Flags().StringVar(&metricsFileFlag, "metrics-file", "", "Write Prometheus metrics to this textfile")
	scanCmd.Flags().IntVar(&workersFlag, "workers", 0, "Concurrent workers (default from config)")
	scanCmd.Flags().BoolVar(&useExifTool, "exiftool", false, "Force to use exiftool binary")
	scanCmd.Flags().BoolVar(&noProgressFlag, "no-progress", false, "Hide the progress bar")
	scanCmd.Flags().IntVar(&maxDepthFlag, "max-depth", 0, "Maximum recursion depth (0 = unlimited)")
	scanCmd.Flags().BoolVar(&includeHiddenFlag, "include-hidden", false, "Include hidden files and folders")

	rootCmd.AddCommand(scanCmd)
}
