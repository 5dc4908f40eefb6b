package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/flowboard/internal/authz"
	"github.com/felixgeelhaar/flowboard/internal/collab"
	"github.com/felixgeelhaar/flowboard/internal/errors"
)

// UserRole returns userID's role on projectID. ok is false for non-members.
func (s *Store) UserRole(ctx context.Context, projectID, userID string) (role authz.Role, ok bool, err error) {
	ctx, done := s.observe(ctx, "user_role")
	defer func() { done(err) }()

	var raw string
	err = s.database.QueryRowContext(ctx, `
		SELECT role FROM project_members WHERE project_id = ? AND user_id = ?
	`, projectID, userID).Scan(&raw)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, queryError("user_role", err)
	}
	return authz.Role(raw), true, nil
}

// Invite creates a pending invitation and returns it with its plain token.
// Only the token digest is stored.
func (s *Store) Invite(ctx context.Context, projectID, invitedBy, email string, role authz.Role) (invitation *collab.Invitation, err error) {
	ctx, done := s.observe(ctx, "invite")
	defer func() { done(err) }()

	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, errors.New(errors.ErrCodeInvitationInvalid, "a valid email address is required")
	}
	if !role.Assignable() {
		return nil, errors.NewMemberRoleInvalidError(string(role))
	}
	if _, err := s.getProject(ctx, s.database, projectID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	invitation = &collab.Invitation{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Email:     email,
		Role:      role,
		InvitedBy: invitedBy,
		Token:     uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	if _, err := s.database.ExecContext(ctx, `
		INSERT INTO project_invitations (id, project_id, email, role, invited_by, token_digest, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		invitation.ID,
		projectID,
		email,
		string(role),
		invitedBy,
		tokenDigest(invitation.Token),
		invitation.CreatedAt.Format(time.RFC3339Nano),
		invitation.ExpiresAt.Format(time.RFC3339Nano),
	); err != nil {
		return nil, queryError("invite", err)
	}

	s.logger.Info("invitation created", "project_id", projectID, "invitation_id", invitation.ID, "role", role)
	s.publish(collab.Event{Table: collab.TableInvitations, EventType: collab.EventInsert, ProjectID: projectID})
	return invitation, nil
}

// ListMembers returns the project's members, owner first.
func (s *Store) ListMembers(ctx context.Context, projectID string) (members []collab.Member, err error) {
	ctx, done := s.observe(ctx, "list_members")
	defer func() { done(err) }()

	rows, err := s.database.QueryContext(ctx, `
		SELECT project_id, user_id, role, joined_at
		FROM project_members
		WHERE project_id = ?
		ORDER BY CASE role WHEN 'owner' THEN 0 ELSE 1 END, joined_at, user_id
	`, projectID)
	if err != nil {
		return nil, queryError("list_members", err)
	}
	defer rows.Close()

	members = []collab.Member{}
	for rows.Next() {
		var (
			member   collab.Member
			role     string
			joinedAt string
		)
		if err := rows.Scan(&member.ProjectID, &member.UserID, &role, &joinedAt); err != nil {
			return nil, queryError("list_members", err)
		}
		member.Role = authz.Role(role)
		member.JoinedAt = parseTimestamp(joinedAt)
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("list_members", err)
	}
	return members, nil
}

// ListInvitations returns the project's invitations that are still pending.
func (s *Store) ListInvitations(ctx context.Context, projectID string) (invitations []collab.Invitation, err error) {
	ctx, done := s.observe(ctx, "list_invitations")
	defer func() { done(err) }()

	rows, err := s.database.QueryContext(ctx, `
		SELECT id, project_id, email, role, invited_by, created_at, expires_at, accepted_at
		FROM project_invitations
		WHERE project_id = ? AND accepted_at IS NULL
		ORDER BY created_at, id
	`, projectID)
	if err != nil {
		return nil, queryError("list_invitations", err)
	}
	defer rows.Close()

	now := s.now()
	invitations = []collab.Invitation{}
	for rows.Next() {
		invitation, err := scanInvitation(rows)
		if err != nil {
			return nil, queryError("list_invitations", err)
		}
		if invitation.Pending(now) {
			invitations = append(invitations, *invitation)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("list_invitations", err)
	}
	return invitations, nil
}

func scanInvitation(row rowScanner) (*collab.Invitation, error) {
	var (
		invitation collab.Invitation
		role       string
		createdAt  string
		expiresAt  string
		acceptedAt sql.NullString
	)
	if err := row.Scan(
		&invitation.ID,
		&invitation.ProjectID,
		&invitation.Email,
		&role,
		&invitation.InvitedBy,
		&createdAt,
		&expiresAt,
		&acceptedAt,
	); err != nil {
		return nil, err
	}
	invitation.Role = authz.Role(role)
	invitation.CreatedAt = parseTimestamp(createdAt)
	invitation.ExpiresAt = parseTimestamp(expiresAt)
	invitation.AcceptedAt = nullableTimestamp(acceptedAt)
	return &invitation, nil
}

// UpdateRole changes a member's role. The owner's role cannot be changed and
// nobody can be made owner.
func (s *Store) UpdateRole(ctx context.Context, projectID, userID string, role authz.Role) (err error) {
	ctx, done := s.observe(ctx, "update_role")
	defer func() { done(err) }()

	if !role.Assignable() {
		return errors.NewMemberRoleInvalidError(string(role))
	}

	transaction, err := s.database.BeginTx(ctx, nil)
	if err != nil {
		return queryError("update_role", err)
	}
	defer transaction.Rollback()

	if err := requireNonOwnerMember(ctx, transaction, projectID, userID); err != nil {
		return err
	}
	if _, err := transaction.ExecContext(ctx, `
		UPDATE project_members SET role = ? WHERE project_id = ? AND user_id = ?
	`, string(role), projectID, userID); err != nil {
		return queryError("update_role", err)
	}
	if err := transaction.Commit(); err != nil {
		return queryError("update_role", err)
	}

	s.logger.Info("member role changed", "project_id", projectID, "user_id", userID, "role", role)
	s.publish(collab.Event{Table: collab.TableMembers, EventType: collab.EventUpdate, ProjectID: projectID})
	return nil
}

// RemoveMember removes a non-owner member.
func (s *Store) RemoveMember(ctx context.Context, projectID, userID string) (err error) {
	ctx, done := s.observe(ctx, "remove_member")
	defer func() { done(err) }()

	transaction, err := s.database.BeginTx(ctx, nil)
	if err != nil {
		return queryError("remove_member", err)
	}
	defer transaction.Rollback()

	if err := requireNonOwnerMember(ctx, transaction, projectID, userID); err != nil {
		return err
	}
	if _, err := transaction.ExecContext(ctx, `
		DELETE FROM project_members WHERE project_id = ? AND user_id = ?
	`, projectID, userID); err != nil {
		return queryError("remove_member", err)
	}
	if err := transaction.Commit(); err != nil {
		return queryError("remove_member", err)
	}

	s.logger.Info("member removed", "project_id", projectID, "user_id", userID)
	s.publish(collab.Event{Table: collab.TableMembers, EventType: collab.EventDelete, ProjectID: projectID})
	return nil
}

func requireNonOwnerMember(ctx context.Context, transaction *sql.Tx, projectID, userID string) error {
	var role string
	err := transaction.QueryRowContext(ctx, `
		SELECT role FROM project_members WHERE project_id = ? AND user_id = ?
	`, projectID, userID).Scan(&role)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.New(errors.ErrCodeMemberNotFound, "user "+userID+" is not a member of project "+projectID)
	}
	if err != nil {
		return queryError("member_lookup", err)
	}
	if authz.Role(role) == authz.RoleOwner {
		return errors.New(errors.ErrCodeMemberOwnerRequired, "the project owner cannot be changed or removed").
			WithSuggestion("Every project keeps exactly one owner")
	}
	return nil
}

// CancelInvitation deletes a pending invitation.
func (s *Store) CancelInvitation(ctx context.Context, projectID, invitationID string) (err error) {
	ctx, done := s.observe(ctx, "cancel_invitation")
	defer func() { done(err) }()

	result, err := s.database.ExecContext(ctx, `
		DELETE FROM project_invitations
		WHERE id = ? AND project_id = ? AND accepted_at IS NULL
	`, invitationID, projectID)
	if err != nil {
		return queryError("cancel_invitation", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.New(errors.ErrCodeInvitationNotFound, "no pending invitation "+invitationID)
	}

	s.logger.Info("invitation cancelled", "project_id", projectID, "invitation_id", invitationID)
	s.publish(collab.Event{Table: collab.TableInvitations, EventType: collab.EventDelete, ProjectID: projectID})
	return nil
}

// AcceptInvitation redeems token for userID. Accepting a project one already
// belongs to marks the invitation used without changing the existing role.
func (s *Store) AcceptInvitation(ctx context.Context, token, userID string) (member *collab.Member, err error) {
	ctx, done := s.observe(ctx, "accept_invitation")
	defer func() { done(err) }()

	if strings.TrimSpace(token) == "" || userID == "" {
		return nil, errors.NewInvitationInvalidError()
	}

	transaction, err := s.database.BeginTx(ctx, nil)
	if err != nil {
		return nil, queryError("accept_invitation", err)
	}
	defer transaction.Rollback()

	row := transaction.QueryRowContext(ctx, `
		SELECT id, project_id, email, role, invited_by, created_at, expires_at, accepted_at
		FROM project_invitations
		WHERE token_digest = ?
	`, tokenDigest(token))
	invitation, err := scanInvitation(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewInvitationInvalidError()
	}
	if err != nil {
		return nil, queryError("accept_invitation", err)
	}

	now := s.now().UTC()
	if !invitation.Pending(now) {
		return nil, errors.NewInvitationInvalidError()
	}
	stamp := now.Format(time.RFC3339Nano)

	if _, err := transaction.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id, user_id) DO NOTHING
	`, invitation.ProjectID, userID, string(invitation.Role), stamp); err != nil {
		return nil, queryError("accept_invitation", err)
	}
	if _, err := transaction.ExecContext(ctx, `
		UPDATE project_invitations SET accepted_at = ? WHERE id = ?
	`, stamp, invitation.ID); err != nil {
		return nil, queryError("accept_invitation", err)
	}

	member = &collab.Member{ProjectID: invitation.ProjectID, UserID: userID}
	var role, joinedAt string
	if err := transaction.QueryRowContext(ctx, `
		SELECT role, joined_at FROM project_members WHERE project_id = ? AND user_id = ?
	`, invitation.ProjectID, userID).Scan(&role, &joinedAt); err != nil {
		return nil, queryError("accept_invitation", err)
	}
	member.Role = authz.Role(role)
	member.JoinedAt = parseTimestamp(joinedAt)

	if err := transaction.Commit(); err != nil {
		return nil, queryError("accept_invitation", err)
	}

	s.logger.Info("invitation accepted", "project_id", invitation.ProjectID, "user_id", userID)
	s.publish(
		collab.Event{Table: collab.TableMembers, EventType: collab.EventInsert, ProjectID: invitation.ProjectID},
		collab.Event{Table: collab.TableInvitations, EventType: collab.EventUpdate, ProjectID: invitation.ProjectID},
	)
	return member, nil
}
