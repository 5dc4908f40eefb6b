package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/felixgeelhaar/flowboard/internal/errors"
)

const maxBodyBytes = 4 << 20

// statusFor maps an error code to the HTTP status the API answers with.
func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeProjectNotFound, errors.ErrCodeMemberNotFound, errors.ErrCodeInvitationNotFound:
		return http.StatusNotFound
	case errors.ErrCodeProjectInvalid, errors.ErrCodeMemberRoleInvalid, errors.ErrCodeInvitationInvalid, errors.ErrCodeAPIRequest:
		return http.StatusBadRequest
	case errors.ErrCodeProjectForbidden:
		return http.StatusForbidden
	case errors.ErrCodeProjectConflict:
		return http.StatusPreconditionFailed
	case errors.ErrCodeMemberExists, errors.ErrCodeMemberOwnerRequired:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError answers with the coded error. Internal failures keep their code
// but not their cause.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	detail := ErrorDetail{Code: string(errors.CodeOf(err)), Message: err.Error()}
	if flowErr, ok := errors.AsFlowError(err); ok {
		detail.Message = flowErr.Message
		detail.Suggestions = flowErr.Suggestions
	}
	if detail.Code == "" {
		detail.Code = string(errors.ErrCodeAPIResponse)
		detail.Message = "internal error"
	}

	status := statusFor(errors.ErrorCode(detail.Code))
	if status >= http.StatusInternalServerError {
		s.logger.LogError(r.Context(), "request failed", err)
	}
	writeJSON(w, status, ErrorBody{Error: detail})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(errors.ErrCodeAPIRequest, "request body is not valid JSON for this endpoint", err)
	}
	return nil
}
