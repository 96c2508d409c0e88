package server

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gitlab.com/kantoorbase/api/call-events-service/internal/model"
	"gitlab.com/kantoorbase/api/call-events-service/internal/observer"
	"gitlab.com/kantoorbase/api/call-events-service/pkg/logger"
	"gitlab.com/kantoorbase/api/call-events-service/pkg/utils"
)

// handleCallStream serves one long-lived SSE connection. The client gets an
// immediate "connected" acknowledgement, then one message per broadcast event
// and a comment-style keep-alive on a fixed interval. Teardown (client gone,
// write failure, server shutdown) unsubscribes and stops the ticker; nothing
// outlives the connection.
func (s *Server) handleCallStream(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	events, unsubscribe := s.broadcaster.Subscribe()
	defer unsubscribe()

	keepAlive := s.cfg.Stream.KeepAliveInterval
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	observer.StreamConnectionsActive.Inc()
	defer observer.StreamConnectionsActive.Dec()

	if err := s.writeStreamMessage(c, map[string]interface{}{
		"type":      string(model.EventConnected),
		"timestamp": utils.FormatISO8601(utils.Now()),
	}); err != nil {
		log.Debug("Stream client gone before acknowledgement", zap.Error(err))
		return
	}

	log.Info("Stream connection opened", zap.Int("connections", s.broadcaster.Count()))
	defer log.Info("Stream connection closed")

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				// Dropped by the broadcaster (slow consumer); let the
				// client reconnect.
				return
			}
			if err := s.writeStreamMessage(c, event); err != nil {
				log.Debug("Stream write failed, closing connection", zap.Error(err))
				return
			}
		case <-ticker.C:
			// Comment line per the SSE spec; clients must not parse it as
			// an event.
			if _, err := fmt.Fprint(c.Writer, ": keep-alive\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

func (s *Server) writeStreamMessage(c *gin.Context, payload interface{}) error {
	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", utils.MustMarshalJSON(payload)); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}
