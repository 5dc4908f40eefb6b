package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/flowboard/internal/config"
	"github.com/felixgeelhaar/flowboard/internal/errors"
	"github.com/felixgeelhaar/flowboard/internal/log"
	"github.com/felixgeelhaar/flowboard/internal/telemetry"
	"github.com/felixgeelhaar/flowboard/internal/ux"
)

var rootCmd = &cobra.Command{
	Use:   "flowboard",
	Short: "Shared task-flow boards",
	Long: `flowboard edits task-flow graphs: tasks placed on a canvas, connected by
"next task" arrows, shared with a team.

Projects live in a local SQLite database, or behind 'flowboard serve' when
--server (or server.url) is set. Edits made by collaborators reach an open
board live.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// flagKeys binds global flags to configuration keys.
var flagKeys = map[string]string{
	"user":      "user.id",
	"server":    "server.url",
	"db":        "store.path",
	"log-level": "log.level",
}

var cfgFile string

// invocation is the state one command run sets up and tears down.
type invocation struct {
	cfg     *config.Config
	logger  *log.Logger
	span    trace.Span
	started time.Time
	cleanup []func()
}

var current = &invocation{}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $FLOWBOARD_HOME/config.yaml)")
	pf.String("user", "", "acting user ID")
	pf.String("server", "", "flowboard server URL; empty uses the local database")
	pf.String("db", "", "SQLite database path")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.StringP("output", "o", "text", "output format (text, json, yaml)")
}

// setup loads configuration, then starts logging, telemetry and the
// command span.
func setup(cmd *cobra.Command, _ []string) error {
	if _, err := ux.NewFormatter(outputFormat(cmd), nil); err != nil {
		return errors.Wrap(errors.ErrCodeConfigInvalid, "invalid --output", err)
	}

	v, err := config.New(cfgFile)
	if err != nil {
		return err
	}
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return errors.Wrap(errors.ErrCodeConfigInvalid, "failed to bind --"+name, err)
			}
		}
	}
	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}
	current.cfg = cfg

	logger, closeLog := setupLogging(cmd, cfg)
	current.logger = logger
	current.cleanup = append(current.cleanup, closeLog)
	current.cleanup = append(current.cleanup, setupTelemetry(cmd.Context(), cfg, logger))

	ctx, span := telemetry.StartCommandSpan(cmd.Context(), cmd.CommandPath())
	current.span = span
	current.started = time.Now()
	cmd.SetContext(log.IntoContext(ctx, logger))

	logger.Debug("command started", "command", cmd.CommandPath(), "user", cfg.User.ID, "server", cfg.Server.URL)
	return nil
}

// finish records the outcome of the command that ran and releases what
// setup acquired.
func finish(ctx context.Context, cmd *cobra.Command, err error) {
	inv := current
	current = &invocation{}

	if inv.span != nil && cmd != nil {
		name := cmd.CommandPath()
		status := "success"
		if err != nil {
			status = "error"
			telemetry.RecordCommandError(ctx, name, string(errors.CodeOf(err)))
			telemetry.RecordError(inv.span, err)
			inv.logger.LogError(ctx, "command failed", err)
		} else {
			telemetry.RecordSuccess(inv.span)
		}
		telemetry.RecordCommandInvocation(ctx, name, status)
		telemetry.RecordCommandDuration(ctx, name, time.Since(inv.started))
		inv.span.End()
	}

	for i := len(inv.cleanup) - 1; i >= 0; i-- {
		inv.cleanup[i]()
	}
}

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx, which is cancelled on
// interrupt.
func ExecuteContext(ctx context.Context) error {
	current = &invocation{}
	cmd, err := rootCmd.ExecuteContextC(ctx)
	finish(ctx, cmd, err)
	if cmd != nil {
		// cobra only hands the root context down to commands without one.
		cmd.SetContext(nil)
	}
	return err
}

func outputFormat(cmd *cobra.Command) string {
	format, err := cmd.Flags().GetString("output")
	if err != nil {
		return "text"
	}
	return format
}
