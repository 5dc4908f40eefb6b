package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/flowboard/internal/authz"
	"github.com/felixgeelhaar/flowboard/internal/collab"
	"github.com/felixgeelhaar/flowboard/internal/errors"
	"github.com/felixgeelhaar/flowboard/internal/tui"
)

var memberCmd = &cobra.Command{
	Use:   "member",
	Short: "Share projects: invitations, members and roles",
	Long: `Share a project with other users.

Roles:
  owner   full control, including visibility and deletion
  admin   edit the board and manage members
  editor  edit the board
  viewer  read-only`,
}

var memberInviteCmd = &cobra.Command{
	Use:   "invite <project> <email>",
	Short: "Invite someone to a project",
	Long: `Invite someone to a project. The printed token is what they pass to
'flowboard member accept'; it is shown only once.`,
	Args: cobra.ExactArgs(2),
	RunE: runMemberInvite,
}

var memberListCmd = &cobra.Command{
	Use:   "list <project>",
	Short: "List members and pending invitations",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemberList,
}

var memberRoleCmd = &cobra.Command{
	Use:   "role <project> <user> <role>",
	Short: "Change a member's role",
	Args:  cobra.ExactArgs(3),
	RunE:  runMemberRole,
}

var memberRemoveCmd = &cobra.Command{
	Use:   "remove <project> <user>",
	Short: "Remove a member from a project",
	Args:  cobra.ExactArgs(2),
	RunE:  runMemberRemove,
}

var memberCancelCmd = &cobra.Command{
	Use:   "cancel <project> <invitation>",
	Short: "Cancel a pending invitation",
	Args:  cobra.ExactArgs(2),
	RunE:  runMemberCancel,
}

var memberAcceptCmd = &cobra.Command{
	Use:   "accept <token>",
	Short: "Accept an invitation as the acting user",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemberAccept,
}

var (
	memberRole      string
	memberRemoveYes bool
)

func init() {
	memberInviteCmd.Flags().StringVarP(&memberRole, "role", "r", "", "role to grant (admin, editor, viewer)")
	memberRemoveCmd.Flags().BoolVarP(&memberRemoveYes, "yes", "y", false, "do not ask for confirmation")

	memberCmd.AddCommand(memberInviteCmd, memberListCmd, memberRoleCmd, memberRemoveCmd, memberCancelCmd, memberAcceptCmd)
	rootCmd.AddCommand(memberCmd)
}

func parseAssignableRole(s string) (authz.Role, error) {
	role, err := authz.ParseRole(s)
	if err != nil || !role.Assignable() {
		return "", errors.NewMemberRoleInvalidError(s)
	}
	return role, nil
}

func runMemberInvite(cmd *cobra.Command, args []string) error {
	projectID, email := args[0], args[1]

	var role authz.Role
	switch {
	case memberRole != "":
		r, err := parseAssignableRole(memberRole)
		if err != nil {
			return err
		}
		role = r
	case tui.ShouldPrompt():
		r, err := tui.PromptForRole(fmt.Sprintf("Role for %s", email))
		if err != nil {
			return err
		}
		role = r
	default:
		role = authz.RoleViewer
	}

	conn, err := openBackend(cmd, connectOptions{})
	if err != nil {
		return err
	}
	defer conn.Close()

	inv, err := conn.backend.Invite(cmd.Context(), projectID, email, role)
	if err != nil {
		return err
	}
	return render(cmd, inv, func() string {
		return fmt.Sprintf("✓ Invited %s as %s\n  Token:   %s\n  Expires: %s\n\nThey join with: flowboard member accept %s --user <their id>",
			inv.Email, inv.Role, inv.Token, formatTime(inv.ExpiresAt), inv.Token)
	})
}

func runMemberList(cmd *cobra.Command, args []string) error {
	conn, err := openBackend(cmd, connectOptions{})
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := cmd.Context()
	members, err := conn.backend.ListMembers(ctx, args[0])
	if err != nil {
		return err
	}

	// Only members who may manage the project see invitations.
	var invitations []collab.Invitation
	caps, err := conn.backend.Capabilities(ctx, args[0])
	if err != nil {
		return err
	}
	if caps.CanManage {
		if invitations, err = conn.backend.ListInvitations(ctx, args[0]); err != nil {
			return err
		}
	}

	data := struct {
		Members     []collab.Member     `json:"members" yaml:"members"`
		Invitations []collab.Invitation `json:"invitations,omitempty" yaml:"invitations,omitempty"`
	}{members, invitations}
	return render(cmd, data, func() string {
		out := membersTable(members).String()
		if caps.CanManage {
			out += "\n\n" + invitationsTable(invitations).String()
		}
		return out
	})
}

func runMemberRole(cmd *cobra.Command, args []string) error {
	role, err := parseAssignableRole(args[2])
	if err != nil {
		return err
	}

	conn, err := openBackend(cmd, connectOptions{})
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.backend.UpdateRole(cmd.Context(), args[0], args[1], role); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is now %s\n", args[1], role)
	return nil
}

func runMemberRemove(cmd *cobra.Command, args []string) error {
	if !memberRemoveYes && tui.ShouldPrompt() {
		ok, err := tui.PromptForConfirmation(fmt.Sprintf("Remove %s from %s?", args[1], args[0]), false)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
			return nil
		}
	}

	conn, err := openBackend(cmd, connectOptions{})
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.backend.RemoveMember(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %s\n", args[1])
	return nil
}

func runMemberCancel(cmd *cobra.Command, args []string) error {
	conn, err := openBackend(cmd, connectOptions{})
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.backend.CancelInvitation(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Cancelled invitation %s\n", args[1])
	return nil
}

func runMemberAccept(cmd *cobra.Command, args []string) error {
	conn, err := openBackend(cmd, connectOptions{})
	if err != nil {
		return err
	}
	defer conn.Close()

	m, err := conn.backend.AcceptInvitation(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return render(cmd, m, func() string {
		return fmt.Sprintf("✓ Joined project %s as %s", m.ProjectID, m.Role)
	})
}
