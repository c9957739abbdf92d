package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
	"github.com/hackgods/opd-token-allocation/internal/journal"
)

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func allocateTokenHandler(eng Engine, j *journal.Journal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AllocateTokenRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.PatientID == "" || req.PatientName == "" || req.DoctorID == "" || req.Source == "" {
			writeError(w, http.StatusBadRequest, "missing_fields", "patient_id, patient_name, doctor_id and source are required")
			return
		}

		tok, err := eng.AllocateToken(req.PatientID, req.PatientName, req.DoctorID, req.PreferredSlotID, allocation.Source(req.Source))
		if err != nil {
			handleEngineError(w, err)
			return
		}

		j.Token(r.Context(), journal.EventTokenAllocated, tok, map[string]any{
			"source":            tok.Source,
			"token_number":      tok.TokenNumber,
			"preferred_slot_id": req.PreferredSlotID,
		})
		writeJSON(w, http.StatusCreated, toTokenResponse(tok))
	}
}

func reallocateTokenHandler(eng Engine, j *journal.Journal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenID := chi.URLParam(r, "tokenID")

		var req ReallocateTokenRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.NewSlotID == "" {
			writeError(w, http.StatusBadRequest, "missing_fields", "new_slot_id is required")
			return
		}

		tok, err := eng.ReallocateToken(tokenID, req.NewSlotID)
		if err != nil {
			handleEngineError(w, err)
			return
		}

		j.Token(r.Context(), journal.EventTokenReallocated, tok, nil)
		writeJSON(w, http.StatusOK, toTokenResponse(tok))
	}
}

// tokenTransitionHandler serves the id-only commands: cancel, no-show, complete.
func tokenTransitionHandler(op func(string) (allocation.Token, error), j *journal.Journal, eventType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, err := op(chi.URLParam(r, "tokenID"))
		if err != nil {
			handleEngineError(w, err)
			return
		}

		j.Token(r.Context(), eventType, tok, map[string]any{"status": tok.Status})
		writeJSON(w, http.StatusOK, toTokenResponse(tok))
	}
}

func emergencyTokenHandler(eng Engine, j *journal.Journal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EmergencyTokenRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.PatientID == "" || req.PatientName == "" || req.DoctorID == "" {
			writeError(w, http.StatusBadRequest, "missing_fields", "patient_id, patient_name and doctor_id are required")
			return
		}

		tok, err := eng.AddEmergencyToken(req.PatientID, req.PatientName, req.DoctorID)
		if err != nil {
			handleEngineError(w, err)
			return
		}

		j.Token(r.Context(), journal.EventTokenEmergency, tok, map[string]any{
			"priority":     tok.Priority,
			"token_number": tok.TokenNumber,
		})
		writeJSON(w, http.StatusCreated, toTokenResponse(tok))
	}
}

func getTokenHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		details, err := eng.GetTokenDetails(chi.URLParam(r, "tokenID"))
		if err != nil {
			handleEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, details)
	}
}

func getSlotHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := eng.GetSlotStatus(chi.URLParam(r, "slotID"))
		if err != nil {
			handleEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func closeSlotHandler(eng Engine, j *journal.Journal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := eng.CloseSlot(chi.URLParam(r, "slotID"))
		if err != nil {
			handleEngineError(w, err)
			return
		}

		j.Record(r.Context(), journal.Event{
			Type:     journal.EventSlotClosed,
			SlotID:   view.SlotID,
			DoctorID: view.DoctorID,
			Payload:  map[string]any{"current_capacity": view.CurrentCapacity},
		})
		writeJSON(w, http.StatusOK, view)
	}
}

func doctorScheduleHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sched, err := eng.GetDoctorSchedule(chi.URLParam(r, "doctorID"))
		if err != nil {
			handleEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sched)
	}
}

func allSchedulesHandler(eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, eng.GetAllSchedules())
	}
}

func handleEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, allocation.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, allocation.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, allocation.ErrTokenNotFound):
		writeError(w, http.StatusNotFound, "token_not_found", err.Error())
	case errors.Is(err, allocation.ErrNoAvailableSlot):
		writeError(w, http.StatusConflict, "no_available_slot", err.Error())
	case errors.Is(err, allocation.ErrNoActiveSlot):
		writeError(w, http.StatusConflict, "no_active_slot", err.Error())
	case errors.Is(err, allocation.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, allocation.ErrCapacityExhausted):
		writeError(w, http.StatusConflict, "capacity_exhausted", err.Error())
	case errors.Is(err, allocation.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, allocation.ErrInvalidSource):
		writeError(w, http.StatusBadRequest, "invalid_source", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
