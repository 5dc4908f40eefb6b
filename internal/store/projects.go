package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/flowboard/internal/authz"
	"github.com/felixgeelhaar/flowboard/internal/collab"
	"github.com/felixgeelhaar/flowboard/internal/errors"
	"github.com/felixgeelhaar/flowboard/internal/flow"
)

const projectColumns = `id, title, goal, target_date, tasks_json, gantt_json, is_public, owner_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*collab.Project, error) {
	var (
		project   collab.Project
		tasksJSON string
		ganttJSON sql.NullString
		isPublic  int
		createdAt string
		updatedAt string
	)
	if err := row.Scan(
		&project.ID,
		&project.Title,
		&project.Goal,
		&project.TargetDate,
		&tasksJSON,
		&ganttJSON,
		&isPublic,
		&project.OwnerID,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	project.Tasks = []flow.TaskNode{}
	if tasksJSON != "" {
		if err := json.Unmarshal([]byte(tasksJSON), &project.Tasks); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreEncode, "stored task list is corrupt", err)
		}
	}
	if ganttJSON.Valid && ganttJSON.String != "" {
		if err := json.Unmarshal([]byte(ganttJSON.String), &project.GanttData); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreEncode, "stored gantt data is corrupt", err)
		}
	}
	project.IsPublic = isPublic != 0
	project.CreatedAt = parseTimestamp(createdAt)
	project.UpdatedAt = parseTimestamp(updatedAt)
	return &project, nil
}

func encodeTasks(tasks []flow.TaskNode) (string, error) {
	if tasks == nil {
		tasks = []flow.TaskNode{}
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return "", encodeError("tasks", err)
	}
	return string(data), nil
}

func encodeGantt(gantt map[string]any) (any, error) {
	if gantt == nil {
		return nil, nil
	}
	data, err := json.Marshal(gantt)
	if err != nil {
		return nil, encodeError("gantt data", err)
	}
	return string(data), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CreateProject inserts a project owned by ownerID and makes the owner its
// first member.
func (s *Store) CreateProject(ctx context.Context, ownerID string, np collab.NewProject) (project *collab.Project, err error) {
	ctx, done := s.observe(ctx, "create_project")
	defer func() { done(err) }()

	if err := np.Validate(); err != nil {
		return nil, err
	}
	if ownerID == "" {
		return nil, errors.New(errors.ErrCodeMemberOwnerRequired, "a project needs an owner")
	}

	tasksJSON, err := encodeTasks(np.Tasks)
	if err != nil {
		return nil, err
	}
	ganttJSON, err := encodeGantt(np.GanttData)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	now := s.timestamp()

	transaction, err := s.database.BeginTx(ctx, nil)
	if err != nil {
		return nil, queryError("create_project", err)
	}
	defer transaction.Rollback()

	if _, err := transaction.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
	`, id, np.Title, np.Goal, np.TargetDate, tasksJSON, ganttJSON, ownerID, now, now); err != nil {
		return nil, queryError("create_project", err)
	}
	if _, err := transaction.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)
	`, id, ownerID, string(authz.RoleOwner), now); err != nil {
		return nil, queryError("create_project", err)
	}
	if err := transaction.Commit(); err != nil {
		return nil, queryError("create_project", err)
	}

	s.logger.Info("project created", "project_id", id, "owner_id", ownerID)
	s.publish(
		collab.Event{Table: collab.TableProjects, EventType: collab.EventInsert, ProjectID: id},
		collab.Event{Table: collab.TableMembers, EventType: collab.EventInsert, ProjectID: id},
	)
	return s.getProject(ctx, s.database, id)
}

// GetProject loads one project.
func (s *Store) GetProject(ctx context.Context, id string) (project *collab.Project, err error) {
	ctx, done := s.observe(ctx, "get_project")
	defer func() { done(err) }()
	return s.getProject(ctx, s.database, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getProject(ctx context.Context, q querier, id string) (*collab.Project, error) {
	row := q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	project, err := scanProject(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewProjectNotFoundError(id)
	}
	if err != nil {
		return nil, queryError("get_project", err)
	}
	return project, nil
}

// UpdateProject applies patch and returns the stored result. An empty patch
// returns the project unchanged without publishing.
func (s *Store) UpdateProject(ctx context.Context, id string, patch collab.ProjectPatch) (*collab.Project, error) {
	return s.updateProject(ctx, id, "", patch)
}

// UpdateProjectIfMatch is UpdateProject guarded by the project's ETag: it
// fails with a conflict unless the stored project still tags as etag. The
// check and the write share one transaction.
func (s *Store) UpdateProjectIfMatch(ctx context.Context, id, etag string, patch collab.ProjectPatch) (*collab.Project, error) {
	return s.updateProject(ctx, id, etag, patch)
}

func (s *Store) updateProject(ctx context.Context, id, etag string, patch collab.ProjectPatch) (project *collab.Project, err error) {
	ctx, done := s.observe(ctx, "update_project")
	defer func() { done(err) }()

	if err := patch.Validate(); err != nil {
		return nil, err
	}

	transaction, err := s.database.BeginTx(ctx, nil)
	if err != nil {
		return nil, queryError("update_project", err)
	}
	defer transaction.Rollback()

	current, err := s.getProject(ctx, transaction, id)
	if err != nil {
		return nil, err
	}
	if etag != "" {
		if currentTag, _, err := collab.ETag(current); err != nil || currentTag != etag {
			return nil, errors.New(errors.ErrCodeProjectConflict, "project changed since it was loaded").
				WithSuggestion("Reload the project and apply your change again")
		}
	}
	if patch.Empty() {
		return current, nil
	}

	updated := patch.Apply(*current)
	tasksJSON, err := encodeTasks(updated.Tasks)
	if err != nil {
		return nil, err
	}
	ganttJSON, err := encodeGantt(updated.GanttData)
	if err != nil {
		return nil, err
	}

	if _, err := transaction.ExecContext(ctx, `
		UPDATE projects
		SET title = ?, goal = ?, target_date = ?, tasks_json = ?, gantt_json = ?, updated_at = ?
		WHERE id = ?
	`, updated.Title, updated.Goal, updated.TargetDate, tasksJSON, ganttJSON, s.timestamp(), id); err != nil {
		return nil, queryError("update_project", err)
	}
	if err := transaction.Commit(); err != nil {
		return nil, queryError("update_project", err)
	}

	s.logger.Debug("project updated", "project_id", id, "tasks", len(updated.Tasks))
	s.publish(collab.Event{Table: collab.TableProjects, EventType: collab.EventUpdate, ProjectID: id})
	return s.getProject(ctx, s.database, id)
}

// ToggleVisibility flips the public flag and returns the new value.
func (s *Store) ToggleVisibility(ctx context.Context, id string) (public bool, err error) {
	ctx, done := s.observe(ctx, "toggle_visibility")
	defer func() { done(err) }()

	transaction, err := s.database.BeginTx(ctx, nil)
	if err != nil {
		return false, queryError("toggle_visibility", err)
	}
	defer transaction.Rollback()

	current, err := s.getProject(ctx, transaction, id)
	if err != nil {
		return false, err
	}
	public = !current.IsPublic

	if _, err := transaction.ExecContext(ctx, `
		UPDATE projects SET is_public = ?, updated_at = ? WHERE id = ?
	`, boolInt(public), s.timestamp(), id); err != nil {
		return false, queryError("toggle_visibility", err)
	}
	if err := transaction.Commit(); err != nil {
		return false, queryError("toggle_visibility", err)
	}

	s.logger.Info("project visibility changed", "project_id", id, "public", public)
	s.publish(collab.Event{Table: collab.TableProjects, EventType: collab.EventUpdate, ProjectID: id})
	return public, nil
}

// DeleteProject removes a project with its members and invitations.
func (s *Store) DeleteProject(ctx context.Context, id string) (err error) {
	ctx, done := s.observe(ctx, "delete_project")
	defer func() { done(err) }()

	result, err := s.database.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return queryError("delete_project", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.NewProjectNotFoundError(id)
	}

	s.logger.Info("project deleted", "project_id", id)
	s.publish(collab.Event{Table: collab.TableProjects, EventType: collab.EventDelete, ProjectID: id})
	return nil
}

// ListProjects returns the projects userID is a member of, most recently
// updated first.
func (s *Store) ListProjects(ctx context.Context, userID string) (projects []collab.Project, err error) {
	ctx, done := s.observe(ctx, "list_projects")
	defer func() { done(err) }()

	rows, err := s.database.QueryContext(ctx, `
		SELECT p.id, p.title, p.goal, p.target_date, p.tasks_json, p.gantt_json,
		       p.is_public, p.owner_id, p.created_at, p.updated_at
		FROM projects p
		JOIN project_members m ON m.project_id = p.id
		WHERE m.user_id = ?
		ORDER BY p.updated_at DESC, p.id
	`, userID)
	if err != nil {
		return nil, queryError("list_projects", err)
	}
	defer rows.Close()

	projects = []collab.Project{}
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, queryError("list_projects", err)
		}
		projects = append(projects, *project)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("list_projects", err)
	}
	return projects, nil
}
