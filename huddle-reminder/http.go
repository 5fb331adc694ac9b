package huddlereminder

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// UserHeader carries the caller's user id, set by the authorizer in front of
// the reminder routes.
const UserHeader = "X-Huddle-User"

type Notifier interface {
	Notify(ctx context.Context, reminderID string) (NotifyOutcome, error)
}

// NotifyHandler is the callback timers fire into.
type NotifyHandler struct {
	Notifier Notifier
	Token    string
}

// Routes registers the notify callback on router.
func (h *NotifyHandler) Routes(router chi.Router) {
	router.Post("/reminders/notify/{id}", h.notify)
}

func (h *NotifyHandler) notify(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	reminderID := chi.URLParam(req, "id")
	logger := zerolog.Ctx(ctx).With().Str("reminder_id", reminderID).Logger()

	if !h.authorized(req) {
		logger.Warn().Msg("rejected notify callback with bad token")
		writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
		return
	}

	outcome, err := h.Notifier.Notify(ctx, reminderID)
	switch {
	case err == nil:
		logger.Info().Str("outcome", string(outcome)).Msg("notify callback handled")
		writeJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
	case errors.Is(err, ErrReminderNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, ErrPremature):
		logger.Warn().Err(err).Msg("timer fired early")
		writeJSON(w, http.StatusTooEarly, errorBody(err.Error()))
	default:
		logger.Error().Err(err).Msg("failed to notify reminder")
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// authorized compares the bearer token in constant time. An unconfigured
// token rejects every caller.
func (h *NotifyHandler) authorized(req *http.Request) bool {
	if h.Token == "" {
		return false
	}
	header := req.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return false
	}
	got := strings.TrimPrefix(header, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.Token)) == 1
}

// ReminderHandler exposes reminder CRUD to their owners.
type ReminderHandler struct {
	Service *Service
}

func (h *ReminderHandler) Routes(router chi.Router) {
	router.Route("/reminders", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

func (h *ReminderHandler) list(w http.ResponseWriter, req *http.Request) {
	userID, ok := caller(w, req)
	if !ok {
		return
	}
	rs, err := h.Service.List(req.Context(), userID)
	if err != nil {
		writeError(req.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (h *ReminderHandler) get(w http.ResponseWriter, req *http.Request) {
	userID, ok := caller(w, req)
	if !ok {
		return
	}
	r, err := h.Service.Get(req.Context(), userID, chi.URLParam(req, "id"))
	if err != nil {
		writeError(req.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, r)
}

func (h *ReminderHandler) create(w http.ResponseWriter, req *http.Request) {
	userID, ok := caller(w, req)
	if !ok {
		return
	}
	var in ReminderInput
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid body"))
		return
	}
	r, err := h.Service.Create(req.Context(), userID, in)
	if err != nil {
		writeError(req.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, r)
}

func (h *ReminderHandler) update(w http.ResponseWriter, req *http.Request) {
	userID, ok := caller(w, req)
	if !ok {
		return
	}
	var in ReminderInput
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid body"))
		return
	}
	r, err := h.Service.Update(req.Context(), userID, chi.URLParam(req, "id"), in)
	if err != nil {
		writeError(req.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, r)
}

func (h *ReminderHandler) delete(w http.ResponseWriter, req *http.Request) {
	userID, ok := caller(w, req)
	if !ok {
		return
	}
	if err := h.Service.Delete(req.Context(), userID, chi.URLParam(req, "id")); err != nil {
		writeError(req.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func caller(w http.ResponseWriter, req *http.Request) (string, bool) {
	userID := req.Header.Get(UserHeader)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
		return "", false
	}
	return userID, true
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidReminder):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, ErrReminderNotFound), errors.Is(err, ErrNotOwner):
		writeJSON(w, http.StatusNotFound, errorBody("reminder not found"))
	default:
		zerolog.Ctx(ctx).Error().Err(err).Msg("reminder request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
