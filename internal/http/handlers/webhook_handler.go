package handlers

import (
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-live-presence/internal/http/middleware"
	"github.com/tbourn/go-live-presence/internal/services"
)

// WebhookAck is the body of every accepted callback. Failed dispatches are
// still acknowledged with 200 so the provider does not redeliver them; Code
// carries the failure class for operators.
type WebhookAck struct {
	OK   bool   `json:"ok"`
	Code string `json:"code,omitempty" example:"transient"`
}

// authorized compares the path token with the configured secret in constant
// time. An empty secret authorizes nothing.
func (h *Handlers) authorized(c *gin.Context) bool {
	if h.webhookSecret == "" {
		return false
	}
	got := c.Param("token")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) == 1
}

// readCallback checks the token and reads the body. It writes the error
// response itself and reports false when the handler must stop.
func (h *Handlers) readCallback(c *gin.Context) ([]byte, bool) {
	if !h.authorized(c) {
		fail(c, http.StatusForbidden, ErrCodeAccessDenied, "access denied")
		return nil, false
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable body")
		return nil, false
	}
	return body, true
}

// SessionWebhook godoc
// @ID          sessionWebhook
// @Summary     Session monitoring callback
// @Description Receives connectionCreated, connectionDestroyed, streamCreated and streamDestroyed events. Processing failures are acknowledged with ok=false.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Param       token  path  string  true  "Shared webhook secret"
//
// @Success     200  {object}  handlers.WebhookAck
// @Failure     403  {object}  handlers.ErrorResponse  "Bad token"
// @Router      /webhooks/{token}/session [post]
func (h *Handlers) SessionWebhook(c *gin.Context) {
	body, proceed := h.readCallback(c)
	if !proceed {
		return
	}
	if err := h.webhooks.Dispatch(c.Request.Context(), body); err != nil {
		kind := services.Classify(err)
		lg := middleware.LoggerFrom(c)
		ev := lg.Warn()
		if kind == services.KindInternal {
			ev = lg.Error()
		}
		ev.Err(err).Str("kind", kind.String()).Msg("session event not applied")
		ok(c, http.StatusOK, WebhookAck{OK: false, Code: kind.String()})
		return
	}
	ok(c, http.StatusOK, WebhookAck{OK: true})
}

// ArchiveWebhook godoc
// @ID          archiveWebhook
// @Summary     Archive status callback
// @Description Records archive status changes. The payload is logged and never rejected once authorized.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Param       token  path  string  true  "Shared webhook secret"
//
// @Success     200  {object}  handlers.WebhookAck
// @Failure     403  {object}  handlers.ErrorResponse  "Bad token"
// @Router      /webhooks/{token}/archive [post]
func (h *Handlers) ArchiveWebhook(c *gin.Context) {
	body, proceed := h.readCallback(c)
	if !proceed {
		return
	}
	h.webhooks.DispatchArchive(c.Request.Context(), body)
	ok(c, http.StatusOK, WebhookAck{OK: true})
}
