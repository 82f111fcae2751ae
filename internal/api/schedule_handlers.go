package api

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/auth"
	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

type scheduleHandler struct {
	svc    ScheduleService
	logger *zap.Logger
}

func (h *scheduleHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.logger, err)
}

func (h *scheduleHandler) createTimeSlot(w http.ResponseWriter, r *http.Request) {
	providerID, err := pathID(r, "doctorID")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req TimeSlotRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	slot, err := h.svc.CreateTimeSlot(r.Context(), auth.ActorFrom(r.Context()), providerID, req.StartTime, req.EndTime, req.Capacity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}

func (h *scheduleHandler) listTimeSlots(w http.ResponseWriter, r *http.Request) {
	providerID, err := pathID(r, "doctorID")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	slots, err := h.svc.ListTimeSlots(r.Context(), providerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (h *scheduleHandler) deleteTimeSlot(w http.ResponseWriter, r *http.Request) {
	providerID, err := pathID(r, "doctorID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	slotID, err := pathID(r, "slotID")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.svc.DeleteTimeSlot(r.Context(), auth.ActorFrom(r.Context()), providerID, slotID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *scheduleHandler) createEntry(w http.ResponseWriter, r *http.Request) {
	providerID, err := pathID(r, "doctorID")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req ScheduleEntryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	slotIDs := make([]uuid.UUID, 0, len(req.TimeSlots))
	for _, raw := range req.TimeSlots {
		id, err := parseUUIDField("time_slots", raw)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		slotIDs = append(slotIDs, id)
	}

	day, ok := schedule.ParseDay(req.Day)
	if !ok {
		day = schedule.Day(req.Day)
	}

	entry, err := h.svc.AddScheduleEntry(r.Context(), auth.ActorFrom(r.Context()), providerID, day, slotIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *scheduleHandler) getSchedule(w http.ResponseWriter, r *http.Request) {
	providerID, err := pathID(r, "doctorID")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	avail, err := h.svc.GetAvailability(r.Context(), providerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, avail)
}

func (h *scheduleHandler) deleteEntry(w http.ResponseWriter, r *http.Request) {
	providerID, err := pathID(r, "doctorID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entryID, err := pathID(r, "entryID")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.svc.DeleteScheduleEntry(r.Context(), auth.ActorFrom(r.Context()), providerID, entryID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
