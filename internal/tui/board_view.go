package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/flowboard/internal/domain"
	"github.com/felixgeelhaar/flowboard/internal/flow"
	"github.com/felixgeelhaar/flowboard/internal/geometry"
	"github.com/felixgeelhaar/flowboard/internal/interaction"
)

const (
	mapCols = 48
	mapRows = 12
	markers = "123456789abcdefghijklmnopqrstuvwxyz"
)

// marker is the one-character name a task gets on the map and in the list.
func marker(i int) rune {
	if i < len(markers) {
		return rune(markers[i])
	}
	return '*'
}

// View renders the board.
func (b *Board) View() string {
	if b.quitting {
		return ""
	}
	if !b.loaded {
		if b.loadErr != nil {
			return b.styles.Error.Render("Could not open project: "+b.loadErr.Error()) + "\n" +
				b.styles.Muted.Render("Press q to quit.") + "\n"
		}
		return "Loading project...\n"
	}

	var s strings.Builder
	s.WriteString(b.renderHeader())
	s.WriteString("\n\n")

	nodes := b.store.Nodes()
	left := b.styles.Border.Render(b.renderTaskList(nodes))
	right := b.styles.Border.Render(b.renderDetails())
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right))
	s.WriteString("\n")

	connectors := b.engine.Connectors()
	s.WriteString(b.styles.Border.Render(strings.Join(renderMap(nodes, connectors, b.ctrl.Canvas(), mapCols, mapRows), "\n")))
	s.WriteString("\n")
	s.WriteString(b.renderStatusLine(len(connectors)))
	s.WriteString("\n")
	s.WriteString(b.styles.Help.Render(b.help.View(b.keys)))
	s.WriteString("\n")
	return s.String()
}

func (b *Board) renderHeader() string {
	title := "Untitled"
	if b.project != nil && b.project.Title != "" {
		title = b.project.Title
	}
	parts := []string{b.styles.Title.Render(title)}

	caps := b.ctrl.Capabilities()
	role := string(caps.Role)
	if role == "" {
		role = "guest"
	}
	if !caps.CanEdit {
		role += ", read-only"
	}
	parts = append(parts, b.styles.Subtitle.Render("("+role+")"))

	if b.project != nil && b.project.IsPublic {
		parts = append(parts, b.styles.Muted.Render("public"))
	}
	if b.members > 0 {
		parts = append(parts, b.styles.Muted.Render(fmt.Sprintf("%d members", b.members)))
	}
	if b.dirty {
		parts = append(parts, b.styles.Warning.Render("● unsaved"))
	}
	return strings.Join(parts, " ")
}

func (b *Board) renderTaskList(nodes []flow.TaskNode) string {
	if len(nodes) == 0 {
		return b.styles.Muted.Render("No tasks yet. Press a to add one.")
	}
	target := domain.TaskID("")
	if len(b.candidates) > 0 {
		target = b.candidates[b.cursor]
	}

	var s strings.Builder
	s.WriteString(b.styles.Subtitle.Render("Tasks"))
	s.WriteString("\n")
	for i, n := range nodes {
		cursor := "  "
		switch n.ID {
		case target:
			cursor = "→ "
		case b.selected:
			cursor = "▸ "
		}
		line := fmt.Sprintf("%s%c %s", cursor, marker(i), n.Title)
		if n.ID == b.selected {
			line = b.styles.Highlighted.Render(line)
		}
		s.WriteString(line)
		s.WriteString(" ")
		s.WriteString(b.styles.StatusStyle(n.Status).Render("[" + n.Status.Label() + "]"))
		s.WriteString("\n")
	}
	return strings.TrimRight(s.String(), "\n")
}

func (b *Board) renderDetails() string {
	n, ok := b.store.Node(b.selected)
	if !ok {
		return b.styles.Muted.Render("Nothing selected")
	}

	var s strings.Builder
	s.WriteString(b.styles.Title.Render(n.Title))
	s.WriteString("\n")
	s.WriteString(b.styles.StatusStyle(n.Status).Render(n.Status.Label()))
	s.WriteString(b.styles.Muted.Render(fmt.Sprintf("  at (%.0f, %.0f)", n.Position.X, n.Position.Y)))
	s.WriteString("\n")
	if n.Description != "" {
		s.WriteString("\n")
		s.WriteString(n.Description)
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(b.styles.Subtitle.Render("Next: "))
	s.WriteString(b.titles(n.NextTaskIDs))
	s.WriteString("\n")

	var incoming []domain.TaskID
	for _, e := range b.store.Edges() {
		if e.Target == n.ID {
			incoming = append(incoming, e.Source)
		}
	}
	s.WriteString(b.styles.Subtitle.Render("After: "))
	s.WriteString(b.titles(incoming))
	return s.String()
}

func (b *Board) titles(ids []domain.TaskID) string {
	if len(ids) == 0 {
		return b.styles.Muted.Render("none")
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if n, ok := b.store.Node(id); ok {
			names = append(names, n.Title)
		}
	}
	return strings.Join(names, ", ")
}

func (b *Board) renderStatusLine(connectors int) string {
	var s strings.Builder
	switch b.mode {
	case modeConnect:
		from, _ := b.store.Node(b.selected)
		to, _ := b.store.Node(b.candidates[b.cursor])
		s.WriteString(b.styles.Status.Render(fmt.Sprintf("Connect %s → %s", from.Title, to.Title)))
		s.WriteString(b.styles.Muted.Render("  ↑/↓ pick • enter connect • esc cancel"))
	case modeDisconnect:
		to, _ := b.store.Node(b.candidates[b.cursor])
		s.WriteString(b.styles.Status.Render("Disconnect from " + to.Title))
		s.WriteString(b.styles.Muted.Render("  ↑/↓ pick • enter remove • esc cancel"))
	case modeAdd:
		s.WriteString(b.styles.Status.Render("New task: "))
		s.WriteString(b.input.View())
	default:
		summary := fmt.Sprintf("%d tasks • %d connectors", b.store.Len(), connectors)
		if b.engine.Pending() {
			summary += " • updating"
		}
		s.WriteString(b.styles.Muted.Render(summary))
	}

	if b.flash != "" {
		s.WriteString("\n")
		if b.flashErr {
			s.WriteString(b.styles.Error.Render("✗ " + b.flash))
		} else {
			s.WriteString(b.styles.Warning.Render(b.flash))
		}
	}
	return s.String()
}

// renderMap draws the canvas scaled onto a cols x rows character grid:
// connectors as dotted lines ending in an arrow, nodes as their markers.
func renderMap(nodes []flow.TaskNode, connectors []geometry.Connector, canvas interaction.Canvas, cols, rows int) []string {
	grid := make([][]rune, rows)
	for y := range grid {
		grid[y] = []rune(strings.Repeat(" ", cols))
	}
	if canvas.Width <= 0 || canvas.Height <= 0 || cols < 2 || rows < 2 {
		return gridLines(grid)
	}

	cell := func(p domain.Point) (int, int) {
		x := int(math.Round(p.X / canvas.Width * float64(cols-1)))
		y := int(math.Round(p.Y / canvas.Height * float64(rows-1)))
		return clampInt(x, 0, cols-1), clampInt(y, 0, rows-1)
	}

	for _, c := range connectors {
		x0, y0 := cell(c.From)
		x1, y1 := cell(c.To)
		steps := max(abs(x1-x0), abs(y1-y0))
		for i := 0; i <= steps; i++ {
			t := 0.0
			if steps > 0 {
				t = float64(i) / float64(steps)
			}
			x := x0 + int(math.Round(t*float64(x1-x0)))
			y := y0 + int(math.Round(t*float64(y1-y0)))
			grid[y][x] = '·'
		}
		head := '▸'
		if x1 < x0 {
			head = '◂'
		}
		grid[y1][x1] = head
	}

	for i, n := range nodes {
		x, y := cell(n.Position)
		grid[y][x] = marker(i)
	}
	return gridLines(grid)
}

func gridLines(grid [][]rune) []string {
	lines := make([]string, len(grid))
	for i, row := range grid {
		lines[i] = string(row)
	}
	return lines
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
