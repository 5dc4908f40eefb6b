package server

import (
	"github.com/felixgeelhaar/flowboard/internal/authz"
	"github.com/felixgeelhaar/flowboard/internal/errors"
)

// UserHeader carries the acting user's id. flowboard serve trusts it; put an
// authenticating proxy in front when the server is exposed.
const UserHeader = "X-User-ID"

// ErrorBody is the JSON body of every non-2xx API response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail mirrors errors.FlowError on the wire.
type ErrorDetail struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// AsError turns a decoded body back into a coded error.
func (d ErrorDetail) AsError() error {
	code := errors.ErrorCode(d.Code)
	if code == "" {
		code = errors.ErrCodeAPIResponse
	}
	return errors.New(code, d.Message).WithSuggestions(d.Suggestions...)
}

// RoleResponse answers GET /api/projects/{id}/role.
type RoleResponse struct {
	Role      authz.Role `json:"role,omitempty"`
	Member    bool       `json:"member"`
	CanView   bool       `json:"canView"`
	CanEdit   bool       `json:"canEdit"`
	CanManage bool       `json:"canManage"`
}

// VisibilityResponse answers POST /api/projects/{id}/visibility.
type VisibilityResponse struct {
	IsPublic bool `json:"isPublic"`
}

// InviteRequest is the body of POST /api/projects/{id}/members.
type InviteRequest struct {
	Email string     `json:"email"`
	Role  authz.Role `json:"role"`
}

// RoleRequest is the body of PATCH /api/projects/{id}/members/{user}.
type RoleRequest struct {
	Role authz.Role `json:"role"`
}
