package cmd

import (
	"context"
	stderrors "errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/flowboard/internal/errors"
	"github.com/felixgeelhaar/flowboard/internal/interaction"
	"github.com/felixgeelhaar/flowboard/internal/tui"
)

var boardCmd = &cobra.Command{
	Use:   "board <project>",
	Short: "Open a project's board in the terminal",
	Long: `Open a project's board. Move tasks with H/J/K/L, connect them with c,
cycle status with s, undo with u and save with ctrl+s. Press ? for every key.

Edits stay on the board until saved. When someone else saves the project,
the board reloads it and unsaved edits are lost.

Viewers and anonymous users of public projects get a read-only board.
Logs go to $FLOWBOARD_HOME/flowboard.log.`,
	Args: cobra.ExactArgs(1),
	RunE: runBoard,
}

func init() {
	rootCmd.AddCommand(boardCmd)
}

func runBoard(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, logger := current.cfg, current.logger

	conn, err := openBackend(cmd, connectOptions{anonymous: true, live: true})
	if err != nil {
		return err
	}
	defer conn.Close()

	relay := &tui.Relay{}
	defer relay.Close()
	board := tui.NewBoard(ctx, tui.BoardConfig{
		ProjectID:  args[0],
		Backend:    conn.backend,
		Notifier:   conn.notifier,
		Dispatcher: relay,
		Scheduler:  relay,
		Canvas: interaction.Canvas{
			Width:  cfg.Board.CanvasWidth,
			Height: cfg.Board.CanvasHeight,
		},
		Debounce:     cfg.Board.Debounce,
		HistoryLimit: cfg.Board.HistoryLimit,
		Logger:       logger,
	})
	defer board.Close()

	program := tea.NewProgram(board,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	relay.Bind(program)

	_, err = program.Run()
	return boardRunError(ctx, err)
}

// boardRunError maps how the terminal program ended to the command result.
func boardRunError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.Wrap(errors.ErrCodeTerminal, "board failed", err).
		WithSuggestion("flowboard board needs an interactive terminal")
}
