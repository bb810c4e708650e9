package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"photocleanup/internal"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show statistics and duplicates recorded in the snapshot",
	Long: `Show the counters, duplicate sets and files without a date recorded in the
snapshot. --format plain prints only the name: count listing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Close()

		reg, err := internal.NewRegistry(conf, internal.WithLogger(logger))
		if err != nil {
			return err
		}
		defer reg.Close()
		if err := reg.LoadSnapshot(snapshotPath(conf)); err != nil {
			return fmt.Errorf("failed to load snapshot: %w", err)
		}

		switch formatFlag {
		case "plain":
			return internal.WriteStatistics(cmd.OutOrStdout(), reg.Stats(), "plain")
		case "table", "json":
			return internal.WriteReport(cmd.OutOrStdout(), reg.Report(), formatFlag)
		}
		return fmt.Errorf("unknown format %q", formatFlag)
	},
}

func init() {
	statsCmd.Flags().StringVar(&snapshotFlag, "snapshot", "", "Snapshot file, .json or .yaml (default from config)")
	statsCmd.Flags().StringVar(&formatFlag, "format", "table", "Output format: table, json, plain")

	rootCmd.AddCommand(statsCmd)
}
