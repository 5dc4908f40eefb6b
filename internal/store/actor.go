package store

import (
	"context"

	"github.com/felixgeelhaar/flowboard/internal/authz"
	"github.com/felixgeelhaar/flowboard/internal/collab"
	"github.com/felixgeelhaar/flowboard/internal/errors"
)

// Actor is the store seen by one user. Every call is checked against that
// user's capabilities on the project it touches.
type Actor struct {
	store  *Store
	userID string
}

var _ collab.Collaborator = (*Actor)(nil)

// As returns the store acting as userID.
func (s *Store) As(userID string) *Actor {
	return &Actor{store: s, userID: userID}
}

// UserID returns the acting user.
func (a *Actor) UserID() string {
	return a.userID
}

// Capabilities resolves what the acting user may do on projectID. It fails
// with a not-found error when the project does not exist.
func (a *Actor) Capabilities(ctx context.Context, projectID string) (authz.Capabilities, error) {
	project, err := a.store.GetProject(ctx, projectID)
	if err != nil {
		return authz.None, err
	}
	return a.capabilitiesFor(ctx, project)
}

func (a *Actor) capabilitiesFor(ctx context.Context, project *collab.Project) (authz.Capabilities, error) {
	role, member, err := a.store.UserRole(ctx, project.ID, a.userID)
	if err != nil {
		return authz.None, err
	}
	return authz.Resolve(role, member, project.IsPublic), nil
}

func (a *Actor) require(ctx context.Context, projectID string, action authz.Action) (*collab.Project, authz.Capabilities, error) {
	project, err := a.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, authz.None, err
	}
	caps, err := a.capabilitiesFor(ctx, project)
	if err != nil {
		return nil, authz.None, err
	}
	if !caps.Allows(action) {
		return nil, caps, errors.NewProjectForbiddenError(projectID, string(action))
	}
	return project, caps, nil
}

// CreateProject creates a project owned by the acting user.
func (a *Actor) CreateProject(ctx context.Context, np collab.NewProject) (*collab.Project, error) {
	return a.store.CreateProject(ctx, a.userID, np)
}

// GetProject returns the project when the acting user may view it.
func (a *Actor) GetProject(ctx context.Context, id string) (*collab.Project, error) {
	project, _, err := a.require(ctx, id, authz.ActionView)
	return project, err
}

// UpdateProject requires edit rights.
func (a *Actor) UpdateProject(ctx context.Context, id string, patch collab.ProjectPatch) (*collab.Project, error) {
	if _, _, err := a.require(ctx, id, authz.ActionEdit); err != nil {
		return nil, err
	}
	return a.store.UpdateProject(ctx, id, patch)
}

// UpdateProjectIfMatch requires edit rights and an unchanged ETag.
func (a *Actor) UpdateProjectIfMatch(ctx context.Context, id, etag string, patch collab.ProjectPatch) (*collab.Project, error) {
	if _, _, err := a.require(ctx, id, authz.ActionEdit); err != nil {
		return nil, err
	}
	return a.store.UpdateProjectIfMatch(ctx, id, etag, patch)
}

// ToggleVisibility requires management rights.
func (a *Actor) ToggleVisibility(ctx context.Context, id string) (bool, error) {
	if _, _, err := a.require(ctx, id, authz.ActionToggleVisibility); err != nil {
		return false, err
	}
	return a.store.ToggleVisibility(ctx, id)
}

// DeleteProject is reserved to the owner.
func (a *Actor) DeleteProject(ctx context.Context, id string) error {
	_, caps, err := a.require(ctx, id, authz.ActionManageMembers)
	if err != nil {
		return err
	}
	if caps.Role != authz.RoleOwner {
		return errors.NewProjectForbiddenError(id, "delete")
	}
	return a.store.DeleteProject(ctx, id)
}

// ListProjects returns the projects the acting user belongs to.
func (a *Actor) ListProjects(ctx context.Context) ([]collab.Project, error) {
	return a.store.ListProjects(ctx, a.userID)
}

// GetUserRole returns the acting user's role on projectID.
func (a *Actor) GetUserRole(ctx context.Context, projectID string) (authz.Role, bool, error) {
	return a.store.UserRole(ctx, projectID, a.userID)
}

// Invite requires management rights.
func (a *Actor) Invite(ctx context.Context, projectID, email string, role authz.Role) (*collab.Invitation, error) {
	if _, _, err := a.require(ctx, projectID, authz.ActionManageMembers); err != nil {
		return nil, err
	}
	return a.store.Invite(ctx, projectID, a.userID, email, role)
}

// ListMembers is open to anyone who can view the project.
func (a *Actor) ListMembers(ctx context.Context, projectID string) ([]collab.Member, error) {
	if _, _, err := a.require(ctx, projectID, authz.ActionView); err != nil {
		return nil, err
	}
	return a.store.ListMembers(ctx, projectID)
}

// ListInvitations requires management rights.
func (a *Actor) ListInvitations(ctx context.Context, projectID string) ([]collab.Invitation, error) {
	if _, _, err := a.require(ctx, projectID, authz.ActionManageMembers); err != nil {
		return nil, err
	}
	return a.store.ListInvitations(ctx, projectID)
}

// UpdateRole requires management rights.
func (a *Actor) UpdateRole(ctx context.Context, projectID, userID string, role authz.Role) error {
	if _, _, err := a.require(ctx, projectID, authz.ActionManageMembers); err != nil {
		return err
	}
	return a.store.UpdateRole(ctx, projectID, userID, role)
}

// RemoveMember requires management rights, except that members may always
// remove themselves.
func (a *Actor) RemoveMember(ctx context.Context, projectID, userID string) error {
	if userID != a.userID {
		if _, _, err := a.require(ctx, projectID, authz.ActionManageMembers); err != nil {
			return err
		}
	}
	return a.store.RemoveMember(ctx, projectID, userID)
}

// CancelInvitation requires management rights.
func (a *Actor) CancelInvitation(ctx context.Context, projectID, invitationID string) error {
	if _, _, err := a.require(ctx, projectID, authz.ActionManageMembers); err != nil {
		return err
	}
	return a.store.CancelInvitation(ctx, projectID, invitationID)
}

// AcceptInvitation redeems token for the acting user.
func (a *Actor) AcceptInvitation(ctx context.Context, token string) (*collab.Member, error) {
	return a.store.AcceptInvitation(ctx, token, a.userID)
}
