package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	chatdomain "github.com/iamafoodie/buddy/internal/chat/domain"
	"github.com/iamafoodie/buddy/internal/config"
	"github.com/iamafoodie/buddy/internal/payment/domain"
	"github.com/iamafoodie/buddy/internal/payment/extract"
)

type fakeDispatcher struct {
	events  []domain.NormalizedEvent
	handled bool
	err     error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, event domain.NormalizedEvent, payload []byte) (bool, error) {
	f.events = append(f.events, event)
	return f.handled, f.err
}

type fakeChat struct {
	messages []chatdomain.InboundMessage
}

func (f *fakeChat) HandleInbound(ctx context.Context, msg chatdomain.InboundMessage) (bool, error) {
	f.messages = append(f.messages, msg)
	return true, nil
}

type fakeSender struct {
	sends []string
	err   error
}

func (f *fakeSender) SendText(ctx context.Context, to string, body string) error {
	f.sends = append(f.sends, body)
	return f.err
}

type fakeInbox struct {
	purged int64
}

func (f *fakeInbox) Admit(ctx context.Context, db *gorm.DB, messageID string) (bool, error) {
	return true, nil
}

func (f *fakeInbox) PurgeAll(ctx context.Context, db *gorm.DB) (int64, error) {
	return f.purged, nil
}

type serverFixture struct {
	server     *Server
	dispatcher *fakeDispatcher
	chat       *fakeChat
	sender     *fakeSender
	inbox      *fakeInbox
}

func newTestServer(t *testing.T, cfg config.Config) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	fx := &serverFixture{
		dispatcher: &fakeDispatcher{handled: true},
		chat:       &fakeChat{},
		sender:     &fakeSender{},
		inbox:      &fakeInbox{purged: 2},
	}
	fx.server = NewServer(ServerParams{
		Gin:        engine,
		Cfg:        cfg,
		Log:        zap.NewNop(),
		Extractor:  extract.New(nil, zap.NewNop()),
		PaymentSvc: fx.dispatcher,
		ChatSvc:    fx.chat,
		InboxRepo:  fx.inbox,
		Sender:     fx.sender,
	})
	return fx
}

func perform(engine *gin.Engine, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func tokenConfig() config.Config {
	return config.Config{
		Payment: config.PaymentConfig{
			VerifyMode:   config.VerifyToken,
			WebhookToken: "sekrit",
		},
		WhatsApp: config.WhatsAppConfig{VerifyToken: "meta-verify"},
	}
}

func TestPaymentWebhookProcessesEvent(t *testing.T) {
	fx := newTestServer(t, tokenConfig())

	payload := []byte(`{
		"type": "new_simple_sale",
		"data": {"order": {"custom_fields": {"whatsapp_number": "+31612345678"}, "product_title": "Buddy Start", "credits": 15}}
	}`)
	w := perform(fx.server.Engine(), http.MethodPost, "/plugpay/webhook", payload,
		map[string]string{"X-Webhook-Token": "sekrit"})

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "processed", resp["status"])
	assert.Equal(t, "new_simple_sale", resp["event_type"])

	require.Len(t, fx.dispatcher.events, 1)
	assert.Equal(t, "+31612345678", fx.dispatcher.events[0].IdentityRaw)
}

func TestPaymentWebhookRejectsBadToken(t *testing.T) {
	fx := newTestServer(t, tokenConfig())

	w := perform(fx.server.Engine(), http.MethodPost, "/plugpay/webhook",
		[]byte(`{"type":"new_simple_sale"}`),
		map[string]string{"X-Webhook-Token": "wrong"})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, fx.dispatcher.events)
}

func TestPaymentWebhookAcceptsBodyToken(t *testing.T) {
	fx := newTestServer(t, tokenConfig())

	w := perform(fx.server.Engine(), http.MethodPost, "/plugpay/webhook",
		[]byte(`{"type":"new_simple_sale","webhook_token":"sekrit"}`), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, fx.dispatcher.events, 1)
}

func TestPaymentWebhookAcceptsTokenlessDelivery(t *testing.T) {
	// Token mode still accepts deliveries that carry no token at all;
	// the provider only sends one when the dashboard has it configured.
	fx := newTestServer(t, tokenConfig())

	w := perform(fx.server.Engine(), http.MethodPost, "/plugpay/webhook",
		[]byte(`{"type":"new_simple_sale"}`), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, fx.dispatcher.events, 1)
}

func TestPaymentWebhookVerifyModeNone(t *testing.T) {
	cfg := tokenConfig()
	cfg.Payment.VerifyMode = config.VerifyNone
	fx := newTestServer(t, cfg)

	w := perform(fx.server.Engine(), http.MethodPost, "/plugpay/webhook",
		[]byte(`{"type":"new_simple_sale"}`),
		map[string]string{"X-Webhook-Token": "wrong"})

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPaymentWebhookMalformedBody(t *testing.T) {
	fx := newTestServer(t, tokenConfig())

	w := perform(fx.server.Engine(), http.MethodPost, "/plugpay/webhook",
		[]byte(`not json`), nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, fx.dispatcher.events)
}

func TestPaymentWebhookBusinessErrorStays200(t *testing.T) {
	fx := newTestServer(t, tokenConfig())
	fx.dispatcher.handled = false
	fx.dispatcher.err = assert.AnError

	w := perform(fx.server.Engine(), http.MethodPost, "/plugpay/webhook",
		[]byte(`{"type":"new_simple_sale"}`), nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp["status"])
}

func TestPaymentWebhookProbe(t *testing.T) {
	fx := newTestServer(t, tokenConfig())

	w := perform(fx.server.Engine(), http.MethodGet, "/plugpay/webhook?verify_token=sekrit", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, true, resp["verified"])

	// A wrong token never turns the probe into an error status code; the
	// body carries the verdict instead.
	w = perform(fx.server.Engine(), http.MethodGet, "/plugpay/webhook?verify_token=nope", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = map[string]any{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_token", resp["status"])

	w = perform(fx.server.Engine(), http.MethodGet, "/plugpay/webhook?hub.challenge=4242", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = map[string]any{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "4242", resp["challenge"])

	w = perform(fx.server.Engine(), http.MethodGet, "/plugpay/webhook", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWhatsAppVerifyHandshake(t *testing.T) {
	fx := newTestServer(t, tokenConfig())

	w := perform(fx.server.Engine(), http.MethodGet,
		"/whatsapp/webhook?hub.mode=subscribe&hub.verify_token=meta-verify&hub.challenge=12345", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "12345", w.Body.String())

	w = perform(fx.server.Engine(), http.MethodGet,
		"/whatsapp/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWhatsAppWebhookFeedsChat(t *testing.T) {
	fx := newTestServer(t, tokenConfig())

	payload := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {"messages": [
			{"id": "wamid.1", "from": "31612345678", "type": "text", "text": {"body": "Hoi Buddy"}}
		]}}]}]
	}`)
	w := perform(fx.server.Engine(), http.MethodPost, "/whatsapp/webhook", payload, nil)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, fx.chat.messages, 1)
	assert.Equal(t, "wamid.1", fx.chat.messages[0].MessageID)
	assert.Equal(t, "31612345678", fx.chat.messages[0].From)
	assert.Equal(t, "Hoi Buddy", fx.chat.messages[0].Text)
}

func TestWhatsAppWebhookIgnoresNonText(t *testing.T) {
	fx := newTestServer(t, tokenConfig())

	payload := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {"messages": [
			{"id": "wamid.2", "from": "31612345678", "type": "image"}
		]}}]}]
	}`)
	w := perform(fx.server.Engine(), http.MethodPost, "/whatsapp/webhook", payload, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, fx.chat.messages)
}

func TestWhatsAppWebhookAlwaysSucceeds(t *testing.T) {
	fx := newTestServer(t, tokenConfig())

	w := perform(fx.server.Engine(), http.MethodPost, "/whatsapp/webhook", []byte(`garbage`), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWhatsAppSendValidation(t *testing.T) {
	fx := newTestServer(t, tokenConfig())

	w := perform(fx.server.Engine(), http.MethodPost, "/whatsapp/send",
		[]byte(`{"to":"+31612345678"}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(fx.server.Engine(), http.MethodPost, "/whatsapp/send",
		[]byte(`{"to":"+31612345678","body":"test"}`), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"test"}, fx.sender.sends)
}

func TestPurgeDeliveryRecords(t *testing.T) {
	fx := newTestServer(t, tokenConfig())

	w := perform(fx.server.Engine(), http.MethodPost, "/internal/housekeeping/delivery-records", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]int64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(2), resp["purged"])
}
