package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/flowboard/internal/interaction"
	"github.com/felixgeelhaar/flowboard/internal/loop"
	"github.com/felixgeelhaar/flowboard/internal/replay"
	"github.com/felixgeelhaar/flowboard/internal/telemetry"
	"github.com/felixgeelhaar/flowboard/internal/ux"
)

var replayCmd = &cobra.Command{
	Use:   "replay <project> <script.yaml>",
	Short: "Play a gesture script against a project's board",
	Long: `Open a project's board without a screen and play the gestures in a
YAML script: drags, pointer connects, status changes, undo and redo. The
edits are only written back with --save.

Pointer positions are viewport coordinates; a scroll step moves the
viewport.

Example script:
  steps:
    - {op: drag, node: design, from: {x: 10, y: 10}, to: {x: 410, y: 10}}
    - {op: link, node: design, to: {x: 620, y: 30}}
    - {op: status, node: design, status: next}
    - {op: add, node: review, title: Review, to: {x: 800, y: 200}}
    - {op: connect, node: build, target: review}
    - {op: undo}
    - {op: layout}`,
	Args: cobra.ExactArgs(2),
	RunE: runReplay,
}

var replaySave bool

func init() {
	replayCmd.Flags().BoolVar(&replaySave, "save", false, "save the resulting board to the project")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	projectID, path := args[0], args[1]
	cfg, logger := current.cfg, current.logger

	script, err := replay.Load(path)
	if err != nil {
		return err
	}

	conn, err := openBackend(cmd, connectOptions{anonymous: !replaySave})
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	lp := loop.New(0, logger)
	go func() { _ = lp.Run(ctx) }()

	runner := replay.NewRunner(replay.Config{
		Backend: conn.backend,
		Loop:    lp,
		Canvas: interaction.Canvas{
			Width:  cfg.Board.CanvasWidth,
			Height: cfg.Board.CanvasHeight,
		},
		Debounce:     cfg.Board.Debounce,
		HistoryLimit: cfg.Board.HistoryLimit,
		Logger:       logger,
	})
	defer runner.Close()

	report, err := telemetry.TraceFunction(ctx, "replay.run", func(ctx context.Context) (*replay.Report, error) {
		return runner.Run(ctx, projectID, script, replaySave)
	})
	if err != nil {
		return err
	}

	return render(cmd, report, func() string { return replayText(report) })
}

func replayText(r *replay.Report) string {
	var b strings.Builder
	t := &ux.Table{Headers: []string{"STEP", "GESTURE", "RESULT"}}
	for _, s := range r.Steps {
		result := "applied"
		switch {
		case s.Error != "":
			result = "failed: " + s.Error
		case !s.Applied:
			result = "no change"
		}
		t.AddRow(fmt.Sprint(s.Step), s.Gesture, result)
	}
	b.WriteString(t.String())
	role := r.Role
	if role == "" {
		role = "guest"
	}
	fmt.Fprintf(&b, "\n\n%d of %d steps applied as %s. Board: %d tasks, %d connectors.",
		r.Applied, len(r.Steps), role, r.Tasks, r.Connectors)
	if r.Saved {
		b.WriteString("\n✓ Saved")
	}
	return b.String()
}
