package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ngasani/shadeview/internal/session"
	"github.com/ngasani/shadeview/internal/simulate"
	"github.com/ngasani/shadeview/model"
)

// handleSetMode stores the simulation mode. Selecting automatic mode starts
// the recommendation run immediately; manual mode waits for an explicit
// simulate request.
func handleSetMode(engine *session.Engine, orch *simulate.Orchestrator) http.HandlerFunc {
	type modeRequest struct {
		Mode model.SimulationMode `json:"mode"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req modeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		if req.Mode != model.ModeManual && req.Mode != model.ModeAutomatic {
			WriteValidationError(w, []model.FieldError{{Field: "mode", Message: "mode must be manual or automatic"}})
			return
		}

		sessionID := chi.URLParam(r, "sessionId")
		if _, err := engine.SetMode(r.Context(), sessionID, req.Mode); err != nil {
			WriteError(w, err)
			return
		}

		if req.Mode == model.ModeAutomatic {
			if _, err := orch.RunAuto(r.Context(), sessionID, idempotencyKey(r, sessionID)); err != nil {
				WriteError(w, err)
				return
			}
		}
		writeDescriptor(w, r, engine)
	}
}

// handleSimulate starts a run for the session's current mode.
func handleSimulate(engine *session.Engine, orch *simulate.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionId")
		sess, err := engine.Load(r.Context(), sessionID)
		if err != nil {
			WriteError(w, err)
			return
		}

		key := idempotencyKey(r, sessionID)
		if sess.Mode == model.ModeAutomatic {
			_, err = orch.RunAuto(r.Context(), sessionID, key)
		} else {
			_, err = orch.RunManual(r.Context(), sessionID, key)
		}
		if err != nil {
			WriteError(w, err)
			return
		}
		writeDescriptor(w, r, engine)
	}
}

// idempotencyKey builds the dedup key from the client-supplied header, or
// returns "" when the client sent none.
func idempotencyKey(r *http.Request, sessionID string) string {
	raw := r.Header.Get("X-Idempotency-Key")
	if raw == "" {
		return ""
	}
	return simulate.FormatIdempotencyKey(sessionID, raw)
}
