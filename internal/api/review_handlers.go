package api

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/auth"
	"github.com/hackgods/clinic-appointment-scheduling/internal/review"
)

type reviewHandler struct {
	svc    ReviewService
	logger *zap.Logger
}

func (h *reviewHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.logger, err)
}

// path resolves {doctorID}, {reviewID} and, when withReply, {replyID}.
func (h *reviewHandler) path(r *http.Request, withReply bool) (providerID, reviewID, replyID uuid.UUID, err error) {
	if providerID, err = pathID(r, "doctorID"); err != nil {
		return
	}
	if reviewID, err = pathID(r, "reviewID"); err != nil {
		return
	}
	if withReply {
		replyID, err = pathID(r, "replyID")
	}
	return
}

func (h *reviewHandler) list(w http.ResponseWriter, r *http.Request) {
	providerID, err := pathID(r, "doctorID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, offset := pagination(r)

	out, err := h.svc.ListReviews(r.Context(), auth.ActorFrom(r.Context()), providerID, limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *reviewHandler) create(w http.ResponseWriter, r *http.Request) {
	providerID, err := pathID(r, "doctorID")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req CreateReviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	appointmentID, err := parseUUIDField("appointment_id", req.AppointmentID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	rv, err := h.svc.CreateReview(r.Context(), auth.ActorFrom(r.Context()), providerID, review.CreateInput{
		AppointmentID: appointmentID,
		Rating:        req.Rating,
		Recommend:     req.Recommend,
		Text:          req.Text,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rv)
}

func (h *reviewHandler) get(w http.ResponseWriter, r *http.Request) {
	providerID, reviewID, _, err := h.path(r, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	rv, err := h.svc.GetReview(r.Context(), auth.ActorFrom(r.Context()), providerID, reviewID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rv)
}

func (h *reviewHandler) update(w http.ResponseWriter, r *http.Request) {
	providerID, reviewID, _, err := h.path(r, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req UpdateReviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	rv, err := h.svc.UpdateReview(r.Context(), auth.ActorFrom(r.Context()), providerID, reviewID, review.Patch{
		Rating:    req.Rating,
		Recommend: req.Recommend,
		Text:      req.Text,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rv)
}

func (h *reviewHandler) delete(w http.ResponseWriter, r *http.Request) {
	providerID, reviewID, _, err := h.path(r, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.svc.DeleteReview(r.Context(), auth.ActorFrom(r.Context()), providerID, reviewID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *reviewHandler) react(w http.ResponseWriter, r *http.Request) {
	providerID, reviewID, _, err := h.path(r, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req ReactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	re, err := h.svc.ReactToReview(r.Context(), auth.ActorFrom(r.Context()), providerID, reviewID, req.Recommend)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, re)
}

func (h *reviewHandler) unreact(w http.ResponseWriter, r *http.Request) {
	providerID, reviewID, _, err := h.path(r, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.svc.UnreactReview(r.Context(), auth.ActorFrom(r.Context()), providerID, reviewID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Replies

func (h *reviewHandler) listReplies(w http.ResponseWriter, r *http.Request) {
	providerID, reviewID, _, err := h.path(r, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out, err := h.svc.ListReplies(r.Context(), auth.ActorFrom(r.Context()), providerID, reviewID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *reviewHandler) createReply(w http.ResponseWriter, r *http.Request) {
	providerID, reviewID, _, err := h.path(r, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req ReplyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	rp, err := h.svc.CreateReply(r.Context(), auth.ActorFrom(r.Context()), providerID, reviewID, req.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rp)
}

func (h *reviewHandler) getReply(w http.ResponseWriter, r *http.Request) {
	providerID, reviewID, replyID, err := h.path(r, true)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	rp, err := h.svc.GetReply(r.Context(), auth.ActorFrom(r.Context()), providerID, reviewID, replyID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rp)
}

func (h *reviewHandler) updateReply(w http.ResponseWriter, r *http.Request) {
	providerID, reviewID, replyID, err := h.path(r, true)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req ReplyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	rp, err := h.svc.UpdateReply(r.Context(), auth.ActorFrom(r.Context()), providerID, reviewID, replyID, req.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rp)
}

func (h *reviewHandler) deleteReply(w http.ResponseWriter, r *http.Request) {
	providerID, reviewID, replyID, err := h.path(r, true)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.svc.DeleteReply(r.Context(), auth.ActorFrom(r.Context()), providerID, reviewID, replyID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *reviewHandler) reactReply(w http.ResponseWriter, r *http.Request) {
	providerID, reviewID, replyID, err := h.path(r, true)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req ReactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	re, err := h.svc.ReactToReply(r.Context(), auth.ActorFrom(r.Context()), providerID, reviewID, replyID, req.Recommend)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, re)
}

func (h *reviewHandler) unreactReply(w http.ResponseWriter, r *http.Request) {
	providerID, reviewID, replyID, err := h.path(r, true)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.svc.UnreactReply(r.Context(), auth.ActorFrom(r.Context()), providerID, reviewID, replyID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
