package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatserve/pkg/config"
)

const configShortDesc string = "Manage the chatserve configuration file"

const initLongDesc string = `Write the default configuration as TOML.

The file is written to the given path, or to ./chatserve.toml when no path
is given. An existing file is only replaced with --force.

Examples:
  chatserve config init
  chatserve config init ~/.config/chatserve/chatserve.toml`

const showLongDesc string = `Print the effective configuration as TOML.

Values are resolved from the config file, CHATSERVE_* environment
variables and defaults, in the same way serve resolves them.`

type initCommander struct {
	force bool
}

type showCommander struct {
	configFile string
}

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newShowCmd())

	return cmd
}

func newInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration file",
		Long:  initLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Name + ".toml"
			if len(args) == 1 {
				path = args[0]
			}
			return cmder.run(cmd, path)
		},
	}

	cmd.Flags().BoolVarP(&cmder.force, "force", "f", false, "Overwrite an existing file")

	return cmd
}

func (c *initCommander) run(cmd *cobra.Command, path string) error {
	if err := config.Write(path, config.Default(), c.force); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
	return nil
}

func newShowCmd() *cobra.Command {
	cmder := &showCommander{}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  showLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.configFile, "config", "c", "", "Path to a TOML config file")

	return cmd
}

func (c *showCommander) run(cmd *cobra.Command) error {
	v, err := config.NewViper(c.configFile)
	if err != nil {
		return err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	return config.Encode(cmd.OutOrStdout(), cfg)
}
