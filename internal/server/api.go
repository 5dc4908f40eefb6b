package server

import (
	"net/http"
	"strings"

	"github.com/felixgeelhaar/flowboard/internal/authz"
	"github.com/felixgeelhaar/flowboard/internal/collab"
	"github.com/felixgeelhaar/flowboard/internal/errors"
	"github.com/felixgeelhaar/flowboard/internal/store"
)

// route is one API endpoint. The same table registers the mux and builds
// the OpenAPI document.
type route struct {
	method   string
	path     string
	summary  string
	anon     bool // allowed without UserHeader
	request  string
	response string
	status   int
	handler  func(*Server, http.ResponseWriter, *http.Request)
}

func (rt route) pattern() string { return rt.method + " " + rt.path }

var apiRoutes = []route{
	{method: "GET", path: "/api/projects", summary: "List the caller's projects", response: "ProjectList", handler: (*Server).listProjects},
	{method: "POST", path: "/api/projects", summary: "Create a project owned by the caller", request: "NewProject", response: "Project", status: http.StatusCreated, handler: (*Server).createProject},
	{method: "GET", path: "/api/projects/{id}", summary: "Fetch a project", anon: true, response: "Project", handler: (*Server).getProject},
	{method: "PATCH", path: "/api/projects/{id}", summary: "Update project fields or tasks", request: "ProjectPatch", response: "Project", handler: (*Server).updateProject},
	{method: "DELETE", path: "/api/projects/{id}", summary: "Delete a project", status: http.StatusNoContent, handler: (*Server).deleteProject},
	{method: "POST", path: "/api/projects/{id}/visibility", summary: "Toggle public visibility", response: "Visibility", handler: (*Server).toggleVisibility},
	{method: "GET", path: "/api/projects/{id}/role", summary: "The caller's role and capabilities", anon: true, response: "Role", handler: (*Server).getRole},
	{method: "GET", path: "/api/projects/{id}/members", summary: "List members", anon: true, response: "MemberList", handler: (*Server).listMembers},
	{method: "POST", path: "/api/projects/{id}/members", summary: "Invite someone by email", request: "InviteRequest", response: "Invitation", status: http.StatusCreated, handler: (*Server).invite},
	{method: "PATCH", path: "/api/projects/{id}/members/{user}", summary: "Change a member's role", request: "RoleRequest", status: http.StatusNoContent, handler: (*Server).updateRole},
	{method: "DELETE", path: "/api/projects/{id}/members/{user}", summary: "Remove a member", status: http.StatusNoContent, handler: (*Server).removeMember},
	{method: "GET", path: "/api/projects/{id}/invitations", summary: "List pending invitations", response: "InvitationList", handler: (*Server).listInvitations},
	{method: "DELETE", path: "/api/projects/{id}/invitations/{invitation}", summary: "Cancel an invitation", status: http.StatusNoContent, handler: (*Server).cancelInvitation},
	{method: "POST", path: "/api/invitations/{token}/accept", summary: "Accept an invitation as the caller", response: "Member", handler: (*Server).acceptInvitation},
}

// actor resolves the calling user. Routes not marked anon reject callers
// without UserHeader before reaching the handler.
func (s *Server) actor(r *http.Request) *store.Actor {
	return s.store.As(strings.TrimSpace(r.Header.Get(UserHeader)))
}

func (s *Server) writeProject(w http.ResponseWriter, r *http.Request, status int, p *collab.Project) {
	etag, body, err := collab.ETag(p)
	if err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeAPIResponse, "failed to encode project", err))
		return
	}
	w.Header().Set("ETag", etag)
	if status == http.StatusOK && r.Method == http.MethodGet && r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.actor(r).ListProjects(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var np collab.NewProject
	if err := decodeJSON(r, &np); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.actor(r).CreateProject(r.Context(), np)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/projects/"+p.ID)
	s.writeProject(w, r, http.StatusCreated, p)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.actor(r).GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeProject(w, r, http.StatusOK, p)
}

// updateProject honours If-Match so a client can refuse to overwrite a
// version it has not seen.
func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var patch collab.ProjectPatch
	if err := decodeJSON(r, &patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	actor := s.actor(r)

	var (
		p   *collab.Project
		err error
	)
	if ifMatch := r.Header.Get("If-Match"); ifMatch != "" {
		p, err = actor.UpdateProjectIfMatch(r.Context(), id, ifMatch, patch)
	} else {
		p, err = actor.UpdateProject(r.Context(), id, patch)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeProject(w, r, http.StatusOK, p)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.actor(r).DeleteProject(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) toggleVisibility(w http.ResponseWriter, r *http.Request) {
	public, err := s.actor(r).ToggleVisibility(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VisibilityResponse{IsPublic: public})
}

func (s *Server) getRole(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	actor := s.actor(r)
	caps, err := actor.Capabilities(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	role, member, err := actor.GetUserRole(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RoleResponse{
		Role:      role,
		Member:    member,
		CanView:   caps.CanView,
		CanEdit:   caps.CanEdit,
		CanManage: caps.CanManage,
	})
}

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.actor(r).ListMembers(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (s *Server) invite(w http.ResponseWriter, r *http.Request) {
	var req InviteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	inv, err := s.actor(r).Invite(r.Context(), r.PathValue("id"), req.Email, req.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (s *Server) updateRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := authz.ParseRole(string(req.Role)); err != nil {
		s.writeError(w, r, errors.NewMemberRoleInvalidError(string(req.Role)))
		return
	}
	if err := s.actor(r).UpdateRole(r.Context(), r.PathValue("id"), r.PathValue("user"), req.Role); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	if err := s.actor(r).RemoveMember(r.Context(), r.PathValue("id"), r.PathValue("user")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listInvitations(w http.ResponseWriter, r *http.Request) {
	invitations, err := s.actor(r).ListInvitations(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invitations)
}

func (s *Server) cancelInvitation(w http.ResponseWriter, r *http.Request) {
	if err := s.actor(r).CancelInvitation(r.Context(), r.PathValue("id"), r.PathValue("invitation")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	member, err := s.actor(r).AcceptInvitation(r.Context(), r.PathValue("token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}
