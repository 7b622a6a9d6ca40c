package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:                   "cbomctl [command]",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "cbomctl scans a repository or package and prints its CBOM.",
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $CONFIG_PATH or config.yaml)")
	rootCmd.AddCommand(newScanCmd(), newVersionCmd())
}

func main() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the cbomctl version.",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
