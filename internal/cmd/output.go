package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/flowboard/internal/collab"
	"github.com/felixgeelhaar/flowboard/internal/domain"
	"github.com/felixgeelhaar/flowboard/internal/ux"
)

// render writes data with the --output formatter. Text output uses text
// instead, so records can have a readable layout of their own.
func render(cmd *cobra.Command, data any, text func() string) error {
	format := outputFormat(cmd)
	f, err := ux.NewFormatter(format, &ux.FormatterOptions{Writer: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	if format == "text" || format == "" {
		return f.Format(text())
	}
	return f.Format(data)
}

func projectsTable(projects []collab.Project) *ux.Table {
	t := &ux.Table{
		Headers: []string{"ID", "TITLE", "TASKS", "VISIBILITY", "UPDATED"},
		Empty:   "No projects yet. Create one with: flowboard project create",
	}
	for _, p := range projects {
		t.AddRow(p.ID, p.Title, fmt.Sprint(len(p.Tasks)), visibility(p.IsPublic), formatTime(p.UpdatedAt))
	}
	return t
}

func projectText(p *collab.Project) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", p.Title)
	fmt.Fprintf(&b, "  ID:         %s\n", p.ID)
	fmt.Fprintf(&b, "  Owner:      %s\n", p.OwnerID)
	fmt.Fprintf(&b, "  Visibility: %s\n", visibility(p.IsPublic))
	if p.Goal != "" {
		fmt.Fprintf(&b, "  Goal:       %s\n", p.Goal)
	}
	if p.TargetDate != "" {
		fmt.Fprintf(&b, "  Target:     %s\n", p.TargetDate)
	}
	fmt.Fprintf(&b, "  Updated:    %s\n\n", formatTime(p.UpdatedAt))

	titles := make(map[domain.TaskID]string, len(p.Tasks))
	for _, n := range p.Tasks {
		titles[n.ID] = n.Title
	}
	t := &ux.Table{
		Headers: []string{"TASK", "TITLE", "STATUS", "NEXT"},
		Empty:   "No tasks",
	}
	for _, n := range p.Tasks {
		next := make([]string, 0, len(n.NextTaskIDs))
		for _, id := range n.NextTaskIDs {
			if title, ok := titles[id]; ok {
				next = append(next, title)
			}
		}
		t.AddRow(string(n.ID), n.Title, n.Status.Label(), strings.Join(next, ", "))
	}
	b.WriteString(t.String())
	return b.String()
}

func membersTable(members []collab.Member) *ux.Table {
	t := &ux.Table{Headers: []string{"USER", "ROLE", "JOINED"}}
	for _, m := range members {
		t.AddRow(m.UserID, string(m.Role), formatTime(m.JoinedAt))
	}
	return t
}

func invitationsTable(invitations []collab.Invitation) *ux.Table {
	t := &ux.Table{
		Headers: []string{"INVITATION", "EMAIL", "ROLE", "INVITED BY", "EXPIRES"},
		Empty:   "No pending invitations",
	}
	for _, inv := range invitations {
		t.AddRow(inv.ID, inv.Email, string(inv.Role), inv.InvitedBy, formatTime(inv.ExpiresAt))
	}
	return t
}

func visibility(public bool) string {
	if public {
		return "public"
	}
	return "private"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
