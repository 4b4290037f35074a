package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ReconcileResponse reports the decision taken for an event's session.
type ReconcileResponse struct {
	EventID string `json:"event_id"`
	Outcome string `json:"outcome" example:"started"`
}

// StopResponse reports how many broadcasts were stopped.
type StopResponse struct {
	EventID string `json:"event_id"`
	Stopped int    `json:"stopped" example:"1"`
}

func eventID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "event id required")
		return "", false
	}
	return id, true
}

// ReconcileEventBroadcast godoc
// @ID          reconcileEventBroadcast
// @Summary     Reconcile an event's broadcast
// @Description Converges the provider broadcasts of the event's session onto its live channel.
// @Tags        Events
// @Produce     json
//
// @Param       id  path  string  true  "Event ID"
//
// @Success     200  {object}  handlers.ReconcileResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid ingest URI"
// @Failure     404  {object}  handlers.ErrorResponse  "Event, session or channel missing"
// @Failure     409  {object}  handlers.ErrorResponse  "More than one event on air for the session"
// @Failure     502  {object}  handlers.ErrorResponse  "Provider unavailable"
// @Router      /events/{id}/broadcast/reconcile [post]
func (h *Handlers) ReconcileEventBroadcast(c *gin.Context) {
	id, proceed := eventID(c)
	if !proceed {
		return
	}
	outcome, err := h.broadcasts.ReconcileEvent(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ReconcileResponse{EventID: id, Outcome: outcome.String()})
}

// StopEventBroadcast godoc
// @ID          stopEventBroadcast
// @Summary     Stop an event's broadcasts
// @Description Stops every started broadcast of the event's session.
// @Tags        Events
// @Produce     json
//
// @Param       id  path  string  true  "Event ID"
//
// @Success     200  {object}  handlers.StopResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Event or session missing"
// @Failure     502  {object}  handlers.ErrorResponse  "Provider unavailable"
// @Router      /events/{id}/broadcast/stop [post]
func (h *Handlers) StopEventBroadcast(c *gin.Context) {
	id, proceed := eventID(c)
	if !proceed {
		return
	}
	n, err := h.broadcasts.StopEventBroadcasts(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, StopResponse{EventID: id, Stopped: n})
}
