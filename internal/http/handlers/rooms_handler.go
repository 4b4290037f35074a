package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenRequest asks for a session token on behalf of a registrant.
type TokenRequest struct {
	RegistrantID string `json:"registrant_id" binding:"required,max=255" example:"reg-42"`
	// Role is publisher, subscriber or moderator; publisher when empty.
	Role string `json:"role" example:"publisher"`
}

// ParticipantCountResponse is the number of registrants present in a room.
type ParticipantCountResponse struct {
	RoomID string `json:"room_id"`
	Count  int64  `json:"count" example:"3"`
}

// IssueRoomToken godoc
// @ID          issueRoomToken
// @Summary     Issue a session token
// @Description Returns the room's media session id and a client token whose connection data identifies the registrant. Creates the session on first use.
// @Tags        Rooms
// @Accept      json
// @Produce     json
//
// @Param       id    path  string                     true  "Room ID"
// @Param       body  body  handlers.TokenRequest      true  "Registrant and role"
//
// @Success     200  {object}  services.TokenGrant
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Failure     502  {object}  handlers.ErrorResponse  "Provider unavailable"
// @Router      /rooms/{id}/token [post]
func (h *Handlers) IssueRoomToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.RegistrantID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "registrant_id required")
		return
	}
	grant, err := h.rooms.IssueToken(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.RegistrantID), strings.TrimSpace(req.Role))
	if err != nil {
		failErr(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	ok(c, http.StatusOK, grant)
}

// RoomParticipantCount godoc
// @ID          roomParticipantCount
// @Summary     Count present registrants
// @Tags        Rooms
// @Produce     json
//
// @Param       id  path  string  true  "Room ID"
//
// @Success     200  {object}  handlers.ParticipantCountResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /rooms/{id}/participants/count [get]
func (h *Handlers) RoomParticipantCount(c *gin.Context) {
	roomID := c.Param("id")
	n, err := h.rooms.ParticipantCount(c.Request.Context(), roomID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ParticipantCountResponse{RoomID: roomID, Count: n})
}
