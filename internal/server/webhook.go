package server

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gitlab.com/kantoorbase/api/call-events-service/internal/apperrors"
	"gitlab.com/kantoorbase/api/call-events-service/internal/model"
	"gitlab.com/kantoorbase/api/call-events-service/pkg/logger"
	"gitlab.com/kantoorbase/api/call-events-service/pkg/utils"
)

// maxWebhookBody caps the inbound payload size; telephony events are tiny.
const maxWebhookBody = 1 << 20

const secretHeader = "X-Webhook-Secret"

// webhookResponse is the body returned to the telephony platform.
type webhookResponse struct {
	Success      bool   `json:"success"`
	CallID       string `json:"callId,omitempty"`
	ContactFound bool   `json:"contactFound"`
	ContactName  string `json:"contactName,omitempty"`
	EventType    string `json:"eventType,omitempty"`
	Connections  int    `json:"connections"`
	Error        string `json:"error,omitempty"`
}

// handleCallWebhook ingests one call lifecycle event from the telephony
// platform. 400 for a missing call_id, 401 for a bad shared secret, 500 when
// the call row cannot be persisted (so the platform retries delivery).
func (s *Server) handleCallWebhook(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	if secret := s.cfg.Webhook.Secret; secret != "" {
		provided := c.GetHeader(secretHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			log.Warn("Webhook rejected, shared secret mismatch")
			c.JSON(http.StatusUnauthorized, webhookResponse{Success: false, Error: "unauthorized"})
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		log.Error("Failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusInternalServerError, webhookResponse{Success: false, Error: "failed to read request body"})
		return
	}

	payload, err := model.ParseCallEventPayload(body, utils.Now())
	if err != nil {
		log.Warn("Rejected malformed webhook payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, webhookResponse{Success: false, Error: err.Error()})
		return
	}

	result, err := s.service.ProcessCallEvent(ctx, payload)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrValidation), errors.Is(err, apperrors.ErrBadRequest):
			c.JSON(http.StatusBadRequest, webhookResponse{Success: false, Error: err.Error()})
		default:
			log.Error("Webhook processing failed",
				zap.String("call_id", payload.CallID),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, webhookResponse{Success: false, Error: "internal error"})
		}
		return
	}

	c.JSON(http.StatusOK, webhookResponse{
		Success:      true,
		CallID:       result.Call.ExternalCallID,
		ContactFound: result.ContactFound,
		ContactName:  result.ContactName,
		EventType:    string(result.EventType),
		Connections:  result.Connections,
	})
}
