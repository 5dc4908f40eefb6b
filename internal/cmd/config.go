package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/flowboard/internal/config"
	"github.com/felixgeelhaar/flowboard/internal/errors"
	"github.com/felixgeelhaar/flowboard/internal/log"
	"github.com/felixgeelhaar/flowboard/internal/ux"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or edit flowboard configuration",
	Long: `Manage flowboard configuration stored at $FLOWBOARD_HOME/config.yaml
(~/.flowboard/config.yaml by default).

Every key can also be set with an environment variable: store.path is
FLOWBOARD_STORE_PATH, board.debounce is FLOWBOARD_BOARD_DEBOUNCE.

Examples:
  # View the effective configuration
  flowboard config view

  # Get a specific value
  flowboard config get store.path

  # Set a specific value
  flowboard config set user.id alice

  # Show configuration file path
  flowboard config path
`,
	// Configuration commands must work while the file is broken, so they
	// skip the root setup.
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		current.logger = log.Nop()
		if _, err := ux.NewFormatter(outputFormat(cmd), nil); err != nil {
			return errors.Wrap(errors.ErrCodeConfigInvalid, "invalid --output", err)
		}
		return nil
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Display the effective configuration",
	Long:  `Display the configuration after defaults, the config file and environment overrides.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigView,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a specific configuration value",
	Long: `Set the value of a configuration key using dot notation, e.g.
'board.debounce 100ms'. The file is only written if the result is valid.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configViewCmd, configGetCmd, configSetCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}

func runConfigView(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if outputFormat(cmd) == "text" {
		f, err := ux.NewFormatter("yaml", &ux.FormatterOptions{Writer: cmd.OutOrStdout()})
		if err != nil {
			return err
		}
		return f.Format(cfg)
	}
	return render(cmd, cfg, nil)
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := strings.ToLower(args[0])
	if _, err := config.ParseValue(key, ""); errors.HasCode(err, errors.ErrCodeConfigKey) {
		return err
	}
	v, err := config.New(cfgFile)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), v.GetString(key))
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	path := configPath()
	if err := config.Set(path, strings.ToLower(args[0]), args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s = %s in %s\n", args[0], args[1], path)
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	fmt.Fprintln(cmd.OutOrStdout(), configPath())
	return nil
}
