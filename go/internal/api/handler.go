// Package api exposes the session engine over HTTP/JSON.
package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/mcdev12/pokerleague/go/internal/auth"
	"github.com/mcdev12/pokerleague/go/internal/elimination"
	"github.com/mcdev12/pokerleague/go/internal/models"
	"github.com/mcdev12/pokerleague/go/internal/session"
	"github.com/mcdev12/pokerleague/go/internal/timer"
)

// Handler serves the session, timer and ledger endpoints
type Handler struct {
	sessions *session.App
	timer    *timer.App
	ledger   *elimination.App
}

// NewHandler creates a new API handler
func NewHandler(sessions *session.App, timerApp *timer.App, ledger *elimination.App) *Handler {
	return &Handler{sessions: sessions, timer: timerApp, ledger: ledger}
}

// RegisterRoutes registers every API route with mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// session lifecycle
	mux.HandleFunc("POST /api/sessions", h.createSession)
	mux.HandleFunc("GET /api/sessions/{id}", h.getSession)
	mux.HandleFunc("PUT /api/sessions/{id}/config", h.configureSession)
	mux.HandleFunc("GET /api/sessions/{id}/levels", h.listBlindLevels)
	mux.HandleFunc("POST /api/sessions/{id}/start", h.startSession)
	mux.HandleFunc("POST /api/sessions/{id}/complete", h.completeSession)
	mux.HandleFunc("POST /api/sessions/{id}/cancel", h.cancelSession)

	// timer
	mux.HandleFunc("GET /api/sessions/{id}/timer", h.getTimer)
	mux.HandleFunc("GET /api/sessions/{id}/timer/history", h.timerHistory)
	mux.HandleFunc("POST /api/sessions/{id}/timer/pause", h.pauseTimer)
	mux.HandleFunc("POST /api/sessions/{id}/timer/resume", h.resumeTimer)
	mux.HandleFunc("POST /api/sessions/{id}/timer/advance", h.advanceTimer)
	mux.HandleFunc("POST /api/sessions/{id}/timer/reset", h.resetTimer)

	// ledger
	mux.HandleFunc("POST /api/sessions/{id}/eliminations", h.registerElimination)
	mux.HandleFunc("GET /api/sessions/{id}/eliminations", h.listEliminations)
	mux.HandleFunc("GET /api/sessions/{id}/standings", h.standings)
	mux.HandleFunc("PATCH /api/eliminations/{id}", h.updateElimination)
	mux.HandleFunc("DELETE /api/eliminations/{id}", h.deleteElimination)
}

// Routes returns the API wrapped in the identity middleware
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return auth.Middleware(mux)
}

type sessionCommandFunc func(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Session, error)

type timerCommandFunc func(ctx context.Context, actor auth.Actor, id uuid.UUID) (*timer.Snapshot, error)

func (h *Handler) sessionCommand(w http.ResponseWriter, r *http.Request, fn sessionCommandFunc) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := fn(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) timerCommand(w http.ResponseWriter, r *http.Request, fn timerCommandFunc) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := fn(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// --- sessions ---

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateSessionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := h.sessions.CreateSession(r.Context(), auth.FromContext(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := h.sessions.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) configureSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req session.ConfigureSessionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := h.sessions.Configure(r.Context(), auth.FromContext(r.Context()), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) listBlindLevels(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	levels, err := h.sessions.ListBlindLevels(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, levels)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	h.sessionCommand(w, r, h.sessions.Start)
}

func (h *Handler) completeSession(w http.ResponseWriter, r *http.Request) {
	h.sessionCommand(w, r, h.sessions.Complete)
}

func (h *Handler) cancelSession(w http.ResponseWriter, r *http.Request) {
	h.sessionCommand(w, r, h.sessions.Cancel)
}

// --- timer ---

func (h *Handler) getTimer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.timer.GetState(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) timerHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	history, err := h.timer.History(r.Context(), id, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handler) pauseTimer(w http.ResponseWriter, r *http.Request) {
	h.timerCommand(w, r, h.timer.Pause)
}

func (h *Handler) resumeTimer(w http.ResponseWriter, r *http.Request) {
	h.timerCommand(w, r, h.timer.Resume)
}

func (h *Handler) resetTimer(w http.ResponseWriter, r *http.Request) {
	h.timerCommand(w, r, h.timer.Reset)
}

func (h *Handler) advanceTimer(w http.ResponseWriter, r *http.Request) {
	var req timer.AdvanceLevelRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.timerCommand(w, r, func(ctx context.Context, actor auth.Actor, id uuid.UUID) (*timer.Snapshot, error) {
		return h.timer.AdvanceLevel(ctx, actor, id, req.TargetLevel)
	})
}

// --- ledger ---

func (h *Handler) registerElimination(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req elimination.RegisterRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.ledger.Register(r.Context(), auth.FromContext(r.Context()), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) listEliminations(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	views, err := h.ledger.List(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) standings(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	standings, err := h.ledger.Standings(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, standings)
}

func (h *Handler) updateElimination(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req elimination.UpdateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.ledger.Update(r.Context(), auth.FromContext(r.Context()), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) deleteElimination(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.ledger.Delete(r.Context(), auth.FromContext(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
