package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	chatdomain "github.com/iamafoodie/buddy/internal/chat/domain"
)

// WhatsAppVerify answers the platform's subscription handshake: echo the
// challenge when the verify token matches, 403 otherwise.
func (s *Server) WhatsAppVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token != "" && token == s.cfg.WhatsApp.VerifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	AbortWithError(c, ErrForbidden)
}

type whatsAppEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					ID   string `json:"id"`
					From string `json:"from"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// WhatsAppWebhook unwraps the platform envelope and feeds each text
// message into the chat flow. The platform re-delivers on anything but a
// 2xx, so the response is success no matter what happened per message;
// the delivery dedup makes those re-deliveries harmless.
func (s *Server) WhatsAppWebhook(c *gin.Context) {
	var envelope whatsAppEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		s.log.Warn("unparseable webhook payload", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "success"})
		return
	}

	if envelope.Object != "" && envelope.Object != "whatsapp_business_account" {
		c.JSON(http.StatusOK, gin.H{"status": "success"})
		return
	}

	for _, entry := range envelope.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if msg.Type != "" && msg.Type != "text" {
					continue
				}
				_, err := s.chatSvc.HandleInbound(c.Request.Context(), chatdomain.InboundMessage{
					MessageID: msg.ID,
					From:      msg.From,
					Text:      msg.Text.Body,
				})
				if err != nil {
					s.log.Error("inbound message handling failed",
						zap.String("message_id", msg.ID),
						zap.Error(err),
					)
				}
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

type sendRequest struct {
	To   string `json:"to" binding:"required"`
	Body string `json:"body" binding:"required"`
}

// WhatsAppSend lets an operator push an arbitrary message, mostly for
// verifying platform credentials after deploys.
func (s *Server) WhatsAppSend(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.sender.SendText(c.Request.Context(), req.To, req.Body); err != nil {
		s.log.Error("manual send failed", zap.Error(err))
		AbortWithError(c, ErrInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

// PurgeDeliveryRecords clears the dedup table. External housekeeping
// calls this during quiet hours; re-delivery of very old messages after a
// purge is acceptable.
func (s *Server) PurgeDeliveryRecords(c *gin.Context) {
	purged, err := s.inboxRepo.PurgeAll(c.Request.Context(), s.db)
	if err != nil {
		AbortWithError(c, ErrInternal)
		return
	}
	s.log.Info("delivery records purged", zap.Int64("count", purged))
	c.JSON(http.StatusOK, gin.H{"purged": purged})
}
