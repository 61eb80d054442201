package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/session"
)

var (
	errUnauthorized = errors.New("admin.unauthorized")
	errBadRequest   = errors.New("admin.bad_request")
)

type errorResponse struct {
	Error string `json:"error"`
}

type sessionResponse struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id,omitempty"`
	IsAuthenticated  bool           `json:"is_authenticated"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	LastActivity     time.Time      `json:"last_activity"`
	ExpiresAt        time.Time      `json:"expires_at"`
	Metadata         map[string]any `json:"metadata"`
	FingerprintBound bool           `json:"fingerprint_bound"`
	ExpireNotified   bool           `json:"expire_notified"`
}

// The stored fingerprint is never echoed back.
func toSessionResponse(s *session.Session) sessionResponse {
	return sessionResponse{
		ID:               s.ID,
		UserID:           s.UserID,
		IsAuthenticated:  s.IsAuthenticated,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
		LastActivity:     s.LastActivity,
		ExpiresAt:        s.ExpiresAt,
		Metadata:         s.Metadata,
		FingerprintBound: s.Fingerprint != "",
		ExpireNotified:   s.ExpireNotified,
	}
}

type validationResponse struct {
	Valid       bool           `json:"valid"`
	Reason      session.Reason `json:"reason,omitempty"`
	RemainingMS int64          `json:"remaining_ms"`
}

type cleanupStatsResponse struct {
	TotalExpired    int        `json:"total_expired"`
	OldestExpiredAt *time.Time `json:"oldest_expired_at,omitempty"`
	InRetention     int        `json:"in_retention"`
}

type cleanupResultResponse struct {
	Scanned  int  `json:"scanned"`
	Removed  int  `json:"removed"`
	Retained int  `json:"retained"`
	Failed   int  `json:"failed"`
	Aborted  bool `json:"aborted"`
}

type terminatedResponse struct {
	Terminated int `json:"terminated"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps engine errors onto HTTP status codes. Storage faults are
// reported as 503 without the driver message.
func statusFor(err error) (int, error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, session.ErrSessionNotFound
	case errors.Is(err, session.ErrStorage):
		return http.StatusServiceUnavailable, session.ErrStorage
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, errBadRequest
	default:
		return http.StatusInternalServerError, errors.New("admin.internal_error")
	}
}
