package collab

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/flowboard/internal/authz"
	"github.com/felixgeelhaar/flowboard/internal/errors"
	"github.com/felixgeelhaar/flowboard/internal/flow"
	"github.com/felixgeelhaar/flowboard/internal/history"
	"github.com/felixgeelhaar/flowboard/internal/log"
	"github.com/felixgeelhaar/flowboard/internal/metrics"
)

// Dispatcher runs fn on the goroutine that owns the graph store.
// *loop.Loop satisfies it.
type Dispatcher interface {
	Post(fn func()) bool
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(fn func()) bool

// Post implements Dispatcher.
func (f DispatchFunc) Post(fn func()) bool { return f(fn) }

// Inline runs posted work immediately on the caller's goroutine. Only for
// single-goroutine callers such as tests and one-shot commands.
var Inline Dispatcher = DispatchFunc(func(fn func()) bool {
	fn()
	return true
})

// Hooks tell the caller what the session did. Every hook runs on the
// dispatcher. Any of them may be nil.
type Hooks struct {
	// OnLoad runs after Enter and after every full reload, once the graph
	// store holds the project's tasks.
	OnLoad func(p *Project, caps authz.Capabilities)
	// OnReload runs in addition to OnLoad when the load was caused by a
	// remote change.
	OnReload func(p *Project)
	// OnMembership runs with fresh member and invitation lists.
	OnMembership func(members []Member, invitations []Invitation)
	// OnCapabilities runs when the acting user's role changed.
	OnCapabilities func(caps authz.Capabilities)
	// OnError reports collaborator failures as user-visible messages. The
	// graph is never touched on failure.
	OnError func(err error)
}

// SessionConfig wires a Session.
type SessionConfig struct {
	Projects   ProjectSource
	Roles      RoleSource
	Membership Membership // optional
	Notifier   Notifier   // optional; without it no remote changes arrive
	Store      *flow.Store
	History    *history.History
	Dispatcher Dispatcher
	Hooks      Hooks
	Logger     *log.Logger
	Metrics    *metrics.Metrics
}

// Session keeps one open project in step with its backend.
//
// Remote changes to the project row discard the local graph and reload it
// wholesale, unsaved local edits included. There is no merge: the last
// reload wins. Member and invitation changes only refetch those lists.
type Session struct {
	cfg    SessionConfig
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	projectID string
	project   *Project
	caps      authz.Capabilities
	sub       Subscription
	closed    bool
}

// NewSession creates a session. Projects, Roles, Store and History are
// required.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = Inline
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:    cfg,
		logger: logger.Component("collab"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Enter opens projectID: it resolves the acting user's role and the
// project, loads the tasks into the graph store, clears history and
// subscribes to changes. Fetching happens on the calling goroutine; the
// store is only touched through the dispatcher.
func (s *Session) Enter(ctx context.Context, projectID string) (*Project, authz.Capabilities, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, authz.None, errors.New(errors.ErrCodeSyncSubscribe, "session is closed")
	}
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
	s.projectID = projectID
	s.mu.Unlock()

	p, caps, err := s.fetch(ctx, projectID)
	if err != nil {
		return nil, authz.None, err
	}

	s.cfg.Dispatcher.Post(func() { s.apply(p, caps, false) })

	if s.cfg.Notifier != nil {
		sub, err := s.cfg.Notifier.Subscribe(projectID, s.handle)
		if err != nil {
			// The board still works, it just will not see remote edits.
			werr := errors.Wrap(errors.ErrCodeSyncSubscribe, "live updates are unavailable", err)
			s.logger.LogError(ctx, "subscribe failed", werr)
			s.report(werr)
		} else {
			s.mu.Lock()
			s.sub = sub
			s.mu.Unlock()
		}
	}

	s.logger.Info("project opened", "project_id", projectID, "role", string(caps.Role), "can_edit", caps.CanEdit)
	return p, caps, nil
}

// fetch resolves role and project and derives the capability set.
func (s *Session) fetch(ctx context.Context, projectID string) (*Project, authz.Capabilities, error) {
	role, member, err := s.cfg.Roles.GetUserRole(ctx, projectID)
	if err != nil {
		return nil, authz.None, errors.Wrap(errors.ErrCodeSyncRole, "failed to resolve your role", err)
	}
	p, err := s.cfg.Projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, authz.None, err
	}
	caps := authz.Resolve(role, member, p.IsPublic)
	if !caps.CanView {
		return nil, authz.None, errors.NewProjectForbiddenError(projectID, "view")
	}
	return p, caps, nil
}

// apply runs on the dispatcher.
func (s *Session) apply(p *Project, caps authz.Capabilities, remote bool) {
	s.mu.Lock()
	if s.closed || s.projectID != p.ID {
		s.mu.Unlock()
		return
	}
	s.project = p
	s.caps = caps
	s.mu.Unlock()

	s.cfg.Store.Replace(p.Tasks)
	s.cfg.History.Clear()

	if remote && s.cfg.Hooks.OnReload != nil {
		s.cfg.Hooks.OnReload(p)
	}
	if s.cfg.Hooks.OnLoad != nil {
		s.cfg.Hooks.OnLoad(p, caps)
	}
}

// handle receives notifications on the notifier's goroutine.
func (s *Session) handle(ev Event) {
	s.mu.Lock()
	current, closed := s.projectID, s.closed
	s.mu.Unlock()
	if closed || ev.ProjectID != current {
		return
	}

	s.cfg.Metrics.SyncEvent(string(ev.Table), string(ev.EventType))
	s.logger.Debug("change notification", "event", ev.String())

	switch {
	case ev.ReloadsProject():
		s.Reload(s.ctx)
	case ev.TouchesMembership():
		s.RefreshMembership(s.ctx)
	}
}

// Reload discards the local graph and history and loads the project again.
func (s *Session) Reload(ctx context.Context) {
	s.mu.Lock()
	projectID := s.projectID
	s.mu.Unlock()
	if projectID == "" {
		return
	}

	p, caps, err := s.fetch(ctx, projectID)
	if err != nil {
		werr := errors.Wrap(errors.ErrCodeSyncReload, "failed to reload the project after a remote change", err)
		s.logger.LogError(ctx, "reload failed", werr)
		s.cfg.Metrics.Error(string(errors.ErrCodeSyncReload))
		s.report(werr)
		return
	}
	s.cfg.Metrics.SyncReload()
	s.cfg.Dispatcher.Post(func() { s.apply(p, caps, true) })
}

// RefreshMembership refetches members, invitations and the acting user's
// role. The graph is left alone.
func (s *Session) RefreshMembership(ctx context.Context) {
	s.mu.Lock()
	projectID, project, prev := s.projectID, s.project, s.caps
	s.mu.Unlock()
	if projectID == "" {
		return
	}

	role, member, err := s.cfg.Roles.GetUserRole(ctx, projectID)
	if err != nil {
		s.report(errors.Wrap(errors.ErrCodeSyncRole, "failed to refresh your role", err))
		return
	}
	public := project != nil && project.IsPublic
	caps := authz.Resolve(role, member, public)

	var (
		members     []Member
		invitations []Invitation
	)
	if s.cfg.Membership != nil && caps.CanView {
		if members, err = s.cfg.Membership.ListMembers(ctx, projectID); err == nil && caps.CanManage {
			invitations, err = s.cfg.Membership.ListInvitations(ctx, projectID)
		}
		if err != nil {
			s.report(errors.Wrap(errors.ErrCodeSyncReload, "failed to refresh project members", err))
			return
		}
	}

	s.cfg.Dispatcher.Post(func() {
		s.mu.Lock()
		if s.closed || s.projectID != projectID {
			s.mu.Unlock()
			return
		}
		s.caps = caps
		s.mu.Unlock()

		if caps != prev && s.cfg.Hooks.OnCapabilities != nil {
			s.cfg.Hooks.OnCapabilities(caps)
		}
		if s.cfg.Hooks.OnMembership != nil {
			s.cfg.Hooks.OnMembership(members, invitations)
		}
	})
}

// Save writes the store's tasks back to the project. It is meant to be
// plugged into the interaction controller's OnSaveProject hook.
func (s *Session) Save(ctx context.Context, tasks []flow.TaskNode) error {
	s.mu.Lock()
	projectID, caps := s.projectID, s.caps
	s.mu.Unlock()
	if projectID == "" {
		return errors.New(errors.ErrCodeSyncSave, "no project is open")
	}
	if !caps.CanEdit {
		return errors.NewProjectForbiddenError(projectID, "edit")
	}
	p, err := s.cfg.Projects.UpdateProject(ctx, projectID, TasksPatch(tasks))
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.projectID == projectID {
		s.project = p
	}
	s.mu.Unlock()
	return nil
}

// Project returns the last loaded project record.
func (s *Session) Project() *Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project
}

// Capabilities returns the acting user's current capability set.
func (s *Session) Capabilities() authz.Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps
}

// Close unsubscribes and stops background reloads. It is safe to call more
// than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	s.cancel()
}

func (s *Session) report(err error) {
	if s.cfg.Hooks.OnError == nil {
		return
	}
	s.cfg.Dispatcher.Post(func() { s.cfg.Hooks.OnError(err) })
}
