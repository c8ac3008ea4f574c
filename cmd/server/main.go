package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const AppVersion = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "lookbook",
		Short:         "Lookbook catalog and push notification backend",
		Version:       AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")

	serve := newServeCmd(&configPath)
	root.AddCommand(serve, newVAPIDKeysCmd(&configPath), newHashPasswordCmd())
	// Running the binary without a subcommand starts the server.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())
	return root
}
