package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/sessionkit/pkg/logger"
)

const maxBodyBytes = 4 << 10

type handler struct {
	sessions Sessions
	cleanup  Cleanup
	logger   *slog.Logger
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, public := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "admin request failed",
			slog.String("path", r.URL.Path),
			logger.Error(err),
		)
	}
	writeError(w, status, public)
}

func (h *handler) healthz(checks []func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if err := check(r.Context()); err != nil {
				h.logger.ErrorContext(r.Context(), "readiness check failed", logger.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (h *handler) cleanupStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cleanup.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := cleanupStatsResponse{TotalExpired: stats.TotalExpired, InRetention: stats.InRetention}
	if !stats.OldestExpiredAt.IsZero() {
		resp.OldestExpiredAt = &stats.OldestExpiredAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) forceCleanup(w http.ResponseWriter, r *http.Request) {
	res, err := h.cleanup.ForceCleanup(r.Context())
	if err != nil && !res.Aborted {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cleanupResultResponse(res))
}

func (h *handler) userSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.sessions.UserSessions(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]sessionResponse, 0, len(list))
	for _, s := range list {
		out = append(out, toSessionResponse(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// terminateUserSessions accepts an optional ?except=<sessionID>.
func (h *handler) terminateUserSessions(w http.ResponseWriter, r *http.Request) {
	n, err := h.sessions.TerminateUserSessions(r.Context(), chi.URLParam(r, "userID"), r.URL.Query().Get("except"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, terminatedResponse{Terminated: n})
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(s))
}

type validateRequest struct {
	Fingerprint string `json:"fingerprint"`
}

// validateSession reads an optional {"fingerprint": "..."} body. Without
// one the fingerprint check is skipped.
func (h *handler) validateSession(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if r.Body != nil {
		err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req)
		if err != nil && !errors.Is(err, io.EOF) {
			h.fail(w, r, errors.Join(errBadRequest, err))
			return
		}
	}

	res, err := h.sessions.Validate(r.Context(), chi.URLParam(r, "id"), req.Fingerprint)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, validationResponse{
		Valid:       res.IsValid,
		Reason:      res.Reason,
		RemainingMS: res.RemainingTime.Milliseconds(),
	})
}

func (h *handler) destroySession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Destroy(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
