package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/chatserve/cmd/chatserve/config"
	servecmder "github.com/papercomputeco/chatserve/cmd/chatserve/serve"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "chatserve",
		Short:        "chatserve - OpenAI-compatible chat completion server",
		SilenceUsage: true,
	}

	root.AddCommand(servecmder.NewServeCmd())
	root.AddCommand(configcmder.NewConfigCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the chatserve version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "chatserve", version)
		},
	})

	return root
}
