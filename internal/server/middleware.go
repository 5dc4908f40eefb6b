package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/flowboard/internal/errors"
	"github.com/felixgeelhaar/flowboard/internal/telemetry"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// instrument traces and counts requests under the route pattern.
func (s *Server) instrument(rt route, next http.HandlerFunc) http.HandlerFunc {
	label := rt.pattern()
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := telemetry.StartHTTPSpan(r.Context(), rt.method, rt.path)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w}
		next(rec, r.WithContext(ctx))

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		s.metrics.HTTPRequest(label, strconv.Itoa(rec.status), time.Since(start))
		if rec.status >= http.StatusInternalServerError {
			telemetry.RecordError(span, errors.New(errors.ErrCodeAPIResponse, http.StatusText(rec.status)))
		} else {
			telemetry.RecordSuccess(span)
		}
		s.logger.Debug("request", "route", label, "status", rec.status, "duration", time.Since(start))
	}
}

// requireUser rejects requests without UserHeader.
func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(r.Header.Get(UserHeader)) == "" {
			writeJSON(w, http.StatusUnauthorized, ErrorBody{Error: ErrorDetail{
				Code:        string(errors.ErrCodeAPIRequest),
				Message:     UserHeader + " header is required",
				Suggestions: []string{"Set user.id in the flowboard config or pass --user"},
			}})
			return
		}
		next(w, r)
	}
}
