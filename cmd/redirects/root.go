package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger = zap.NewNop()

func newRootCmd() *cobra.Command {
	var (
		verbose bool
		root    string
	)

	rootCmd := &cobra.Command{
		Use:          "redirects",
		Short:        "Maintain the kernel function redirection table",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config := zap.NewProductionConfig()
			if verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}

			l, err := config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&root, "root", ".", "Module root containing the kernel sources")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "count",
			Short: "Print the number of redirected functions",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				redirects, err := scanModule(root)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%d", len(redirects))
				return nil
			},
		},
		&cobra.Command{
			Use:   "populate <kernel image>",
			Short: "Write the resolved redirection table into a kernel image",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				redirects, err := scanModule(root)
				if err != nil {
					return err
				}

				return populateTable(args[0], redirects)
			},
		},
	)

	return rootCmd
}

func execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
