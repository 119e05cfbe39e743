package server

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/iamafoodie/buddy/internal/config"
)

const maxWebhookBody = 1 << 20

// Header and body locations where the provider has been observed to put
// its shared secret, depending on dashboard configuration and API era.
var (
	tokenHeaders = []string{
		"X-Webhook-Token",
		"X-Webhook-Secret",
		"X-PlugAndPay-Token",
		"X-Plug-And-Pay-Token",
	}
	tokenBodyKeys = []string{
		"webhook_token",
		"verify_token",
		"secret",
		"token",
		"webhook_secret",
	}
)

func (s *Server) PaymentMountCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "endpoint": "plugpay"})
}

// PaymentWebhookProbe answers the provider's reachability checks. Probes
// always get a 200 so a misconfigured secret never makes the endpoint look
// unreachable; the body says whether the token checked out. Any challenge
// parameter is echoed back.
func (s *Server) PaymentWebhookProbe(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if challenge := c.Query("hub.challenge"); challenge != "" {
		resp["challenge"] = challenge
	}
	if token := c.Query("verify_token"); token != "" && s.cfg.Payment.VerifyMode == config.VerifyToken {
		if tokenMatches(token, s.cfg.Payment.WebhookToken) {
			resp["verified"] = true
		} else {
			resp["status"] = "invalid_token"
		}
	}
	c.JSON(http.StatusOK, resp)
}

// PaymentWebhook ingests a payment provider event. Verification failures
// are the only rejection; once a payload is in, the provider always gets
// a 200 so it stops re-delivering, and the body says what happened.
func (s *Server) PaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if !s.verifyPaymentToken(c, body) {
		AbortWithError(c, ErrForbidden)
		return
	}

	event := s.extractor.Extract(c.Request.Context(), payload)
	handled, err := s.paymentSvc.Dispatch(c.Request.Context(), event, payload)

	status := "ignored"
	switch {
	case err != nil:
		// The provider retries on 5xx, and since payment events are not
		// deduplicated a retry would double-apply once storage recovers.
		// Answer 200 and leave recovery to the audit trail.
		s.log.Error("payment event dispatch failed",
			zap.String("kind", event.Kind),
			zap.Error(err),
		)
		status = "error"
	case handled:
		status = "processed"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     status,
		"event_type": event.Kind,
	})
}

// verifyPaymentToken applies the configured verification mode. In token
// mode a request that carries no token at all is still accepted; the
// provider only sends the secret when the dashboard has one configured.
func (s *Server) verifyPaymentToken(c *gin.Context, body map[string]any) bool {
	if s.cfg.Payment.VerifyMode != config.VerifyToken {
		return true
	}

	provided := collectTokens(c, body)
	if len(provided) == 0 {
		return true
	}
	for _, token := range provided {
		if tokenMatches(token, s.cfg.Payment.WebhookToken) {
			return true
		}
	}
	return false
}

func collectTokens(c *gin.Context, body map[string]any) []string {
	var tokens []string
	for _, header := range tokenHeaders {
		if v := strings.TrimSpace(c.GetHeader(header)); v != "" {
			tokens = append(tokens, v)
		}
	}
	if auth := strings.TrimSpace(c.GetHeader("Authorization")); auth != "" {
		tokens = append(tokens, strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")))
	}
	for _, key := range tokenBodyKeys {
		if v, ok := body[key].(string); ok && strings.TrimSpace(v) != "" {
			tokens = append(tokens, strings.TrimSpace(v))
		}
	}
	return tokens
}

func tokenMatches(provided, expected string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}
