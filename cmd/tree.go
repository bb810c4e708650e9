package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"photocleanup/internal"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the recommended Year/Month/Day tree from the snapshot",
	Args:  cobra.NoArgs,
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

		tree := reg.BuildTree()
		out := cmd.OutOrStdout()
		if linkFlag != "" {
			n, err := internal.LinkTree(tree, reg, linkFlag)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "📂 Linked %d files into %s\n", n, linkFlag)
			return nil
		}
		_, err = tree.WriteTo(out)
		return err
	},
}

func init() {
	treeCmd.Flags().StringVar(&snapshotFlag, "snapshot", "", "Snapshot file, .json or .yaml (default from config)")
	treeCmd.Flags().StringVar(&linkFlag, "link", "", "Create a hardlink preview of the tree in this folder instead of printing it")

	rootCmd.AddCommand(treeCmd)
}
