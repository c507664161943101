// Command multireact runs the Slack multi-reaction app.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ccaruceru/slack-multireact/internal/config"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "multireact",
		Short: "Save a list of reactions and add them all to a Slack message at once",
		Long: `multireact is a Slack app. Users save a list of emoji with a slash command
and add all of them to any message through a message shortcut.

Configuration is read from a JSON or TOML file (--config or MULTIREACT_CONFIG)
and overridden by MULTIREACT_* environment variables and flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "path to a JSON or TOML config file")
	v.BindPFlag(config.KeyConfigFile, root.PersistentFlags().Lookup("config"))

	root.AddCommand(newServeCmd(v))
	root.AddCommand(newCheckConfigCmd(v))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "multireact", version)
		},
	})
	return root
}

// loadConfig binds the environment on v and loads the configuration.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	if err := config.BindEnv(v); err != nil {
		return nil, err
	}
	return config.Load(v)
}

func newCheckConfigCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: mode=%s store=%s command=%s\n",
				cfg.Slack.Mode, cfg.Store.Backend, cfg.Slack.Command)
			return nil
		},
	}
}
