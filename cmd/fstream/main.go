// Command fstream runs the media streaming server and its client tools.
package main

import (
	"fmt"
	"os"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debug bool
	logger := log.NewLogger()

	root := &cobra.Command{
		Use:           "fstream",
		Short:         "Stream media files between clients and pluggable storage",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			logger.EnableDebugLog(debug)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(logger),
		newPushCmd(logger),
		newFetchCmd(logger),
		newPruneCmd(logger),
	)
	return root
}
