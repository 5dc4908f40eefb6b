// Package collab connects an open board to the people and services it is
// shared with: the project record, the acting user's role, membership and
// the change notifications other collaborators cause.
package collab

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/felixgeelhaar/flowboard/internal/authz"
	"github.com/felixgeelhaar/flowboard/internal/errors"
	"github.com/felixgeelhaar/flowboard/internal/flow"
)

// Project is a persisted task-flow graph with its metadata.
type Project struct {
	ID         string          `json:"id" yaml:"id"`
	Title      string          `json:"title" yaml:"title"`
	Goal       string          `json:"goal,omitempty" yaml:"goal,omitempty"`
	TargetDate string          `json:"targetDate,omitempty" yaml:"targetDate,omitempty"`
	Tasks      []flow.TaskNode `json:"tasks" yaml:"tasks"`
	GanttData  map[string]any  `json:"ganttData,omitempty" yaml:"ganttData,omitempty"`
	IsPublic   bool            `json:"isPublic" yaml:"isPublic"`
	OwnerID    string          `json:"ownerId" yaml:"ownerId"`
	CreatedAt  time.Time       `json:"createdAt" yaml:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt" yaml:"updatedAt"`
}

// ETag is a strong validator over p's JSON form. The encoded body is
// returned with it so a response can carry exactly what was tagged.
func ETag(p *Project) (string, []byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", nil, err
	}
	sum := blake3.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`, body, nil
}

// NewProject is the input to CreateProject.
type NewProject struct {
	Title      string          `json:"title" yaml:"title"`
	Goal       string          `json:"goal,omitempty" yaml:"goal,omitempty"`
	TargetDate string          `json:"targetDate,omitempty" yaml:"targetDate,omitempty"`
	Tasks      []flow.TaskNode `json:"tasks,omitempty" yaml:"tasks,omitempty"`
	GanttData  map[string]any  `json:"ganttData,omitempty" yaml:"ganttData,omitempty"`
}

// Validate checks the fields a project cannot be created without.
func (p NewProject) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return errors.NewProjectInvalidError("title is required")
	}
	return validateTargetDate(p.TargetDate)
}

// ProjectPatch is a partial update. Nil fields are left unchanged.
type ProjectPatch struct {
	Title      *string          `json:"title,omitempty"`
	Goal       *string          `json:"goal,omitempty"`
	TargetDate *string          `json:"targetDate,omitempty"`
	Tasks      *[]flow.TaskNode `json:"tasks,omitempty"`
	GanttData  map[string]any   `json:"ganttData,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ProjectPatch) Empty() bool {
	return p.Title == nil && p.Goal == nil && p.TargetDate == nil && p.Tasks == nil && p.GanttData == nil
}

// Validate checks the fields that are set.
func (p ProjectPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return errors.NewProjectInvalidError("title cannot be empty")
	}
	if p.TargetDate != nil {
		return validateTargetDate(*p.TargetDate)
	}
	return nil
}

// Apply returns a copy of project with the patch applied.
func (p ProjectPatch) Apply(project Project) Project {
	if p.Title != nil {
		project.Title = *p.Title
	}
	if p.Goal != nil {
		project.Goal = *p.Goal
	}
	if p.TargetDate != nil {
		project.TargetDate = *p.TargetDate
	}
	if p.Tasks != nil {
		project.Tasks = *p.Tasks
	}
	if p.GanttData != nil {
		project.GanttData = p.GanttData
	}
	return project
}

// TasksPatch is the patch a board save sends.
func TasksPatch(tasks []flow.TaskNode) ProjectPatch {
	if tasks == nil {
		tasks = []flow.TaskNode{}
	}
	return ProjectPatch{Tasks: &tasks}
}

func validateTargetDate(s string) error {
	if s == "" {
		return nil
	}
	if _, err := time.Parse(time.DateOnly, s); err != nil {
		return errors.NewProjectInvalidError("target date must be YYYY-MM-DD")
	}
	return nil
}

// Member is a user's role on a project.
type Member struct {
	ProjectID string     `json:"projectId" yaml:"projectId"`
	UserID    string     `json:"userId" yaml:"userId"`
	Role      authz.Role `json:"role" yaml:"role"`
	JoinedAt  time.Time  `json:"joinedAt" yaml:"joinedAt"`
}

// Invitation is a pending offer to join a project. Token is only populated
// in the response to Invite; afterwards only its digest is stored.
type Invitation struct {
	ID         string     `json:"id" yaml:"id"`
	ProjectID  string     `json:"projectId" yaml:"projectId"`
	Email      string     `json:"email" yaml:"email"`
	Role       authz.Role `json:"role" yaml:"role"`
	InvitedBy  string     `json:"invitedBy" yaml:"invitedBy"`
	Token      string     `json:"token,omitempty" yaml:"token,omitempty"`
	CreatedAt  time.Time  `json:"createdAt" yaml:"createdAt"`
	ExpiresAt  time.Time  `json:"expiresAt" yaml:"expiresAt"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty" yaml:"acceptedAt,omitempty"`
}

// Pending reports whether the invitation can still be accepted at now.
func (i Invitation) Pending(now time.Time) bool {
	return i.AcceptedAt == nil && now.Before(i.ExpiresAt)
}

// ProjectSource persists projects.
type ProjectSource interface {
	CreateProject(ctx context.Context, p NewProject) (*Project, error)
	GetProject(ctx context.Context, id string) (*Project, error)
	UpdateProject(ctx context.Context, id string, patch ProjectPatch) (*Project, error)
	// ToggleVisibility flips the public flag and returns the new value.
	ToggleVisibility(ctx context.Context, id string) (bool, error)
}

// RoleSource resolves the acting user's role. ok is false when the user is
// not a member.
type RoleSource interface {
	GetUserRole(ctx context.Context, projectID string) (role authz.Role, ok bool, err error)
}

// Membership manages who a project is shared with.
type Membership interface {
	Invite(ctx context.Context, projectID, email string, role authz.Role) (*Invitation, error)
	ListMembers(ctx context.Context, projectID string) ([]Member, error)
	ListInvitations(ctx context.Context, projectID string) ([]Invitation, error)
	UpdateRole(ctx context.Context, projectID, userID string, role authz.Role) error
	RemoveMember(ctx context.Context, projectID, userID string) error
	CancelInvitation(ctx context.Context, projectID, invitationID string) error
	AcceptInvitation(ctx context.Context, token string) (*Member, error)
}

// Collaborator is everything a board needs from its backend, acting as one
// user. The SQLite store and the HTTP client both provide it.
type Collaborator interface {
	ProjectSource
	RoleSource
	Membership
}
