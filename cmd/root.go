package cmd

import (
	"errors"
	"io/fs"

	"github.com/spf13/cobra"

	"photocleanup/internal"
)

// Version is replaced at build time or from the embedded VERSION file.
var Version = "dev"

var (
	configFlag  string
	verboseFlag bool
	logFileFlag string
)

var rootCmd = &cobra.Command{
	Use:   "photocleanup",
	Short: "Find duplicate media and recommend a Year/Month/Day layout",
	Long: `photocleanup scans photo and video folders, detects duplicate content,
infers the most likely date of every unique file from embedded metadata, file
and folder names, and modification time, and recommends a dated layout.
Files are never moved.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

// ApplyVersion copies Version onto the root command.
func ApplyVersion() {
	rootCmd.Version = Version
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default <config dir>/photocleanup/photocleanup.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log every file")
	rootCmd.PersistentFlags().StringVar(&logFileFlag, "log-file", "", "Write logs to this file instead of stderr")
	ApplyVersion()
}

// setup loads the config, applies persistent flag overrides and opens the logger.
func setup() (*internal.Config, *internal.Logger, error) {
	conf, err := internal.LoadConfig(configFlag)
	if err != nil {
		return nil, nil, err
	}
	if verboseFlag {
		conf.Verbose = true
	}
	if logFileFlag != "" {
		conf.LogFile = logFileFlag
	}

	logger, err := internal.NewLogger(conf.LogFile, conf.Verbose)
	if err != nil {
		return nil, nil, err
	}
	return conf, logger, nil
}

// openRegistry creates a registry and merges the snapshot at path when it exists.
func openRegistry(conf *internal.Config, logger *internal.Logger, path string) (*internal.Registry, error) {
	reg, err := internal.NewRegistry(conf, internal.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if path == "" {
		return reg, nil
	}
	if err := reg.LoadSnapshot(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		reg.Close()
		return nil, err
	}
	return reg, nil
}
