package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	BaseURL     string
	APIVersion  string
	PhoneID     string
	AccessToken string
}

// GraphProvider sends messages through the Cloud API.
type GraphProvider struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

func NewGraph(cfg Config, log *zap.Logger) *GraphProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.facebook.com"
	}
	return &GraphProvider{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
		log:  log.Named("providers.whatsapp"),
	}
}

type textMessage struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

func (p *GraphProvider) SendText(ctx context.Context, to string, body string) error {
	payload, err := json.Marshal(textMessage{
		MessagingProduct: "whatsapp",
		To:               strings.TrimPrefix(to, "+"),
		Type:             "text",
		Text:             textBody{Body: body},
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s/%s/messages",
		strings.TrimRight(p.cfg.BaseURL, "/"), p.cfg.APIVersion, p.cfg.PhoneID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		p.log.Warn("platform rejected message",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", detail),
		)
		return fmt.Errorf("send message: unexpected status %d", resp.StatusCode)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
