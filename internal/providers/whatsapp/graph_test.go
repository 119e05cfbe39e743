package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSendText(t *testing.T) {
	var got textMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21.0/123456/messages", r.URL.Path)
		assert.Equal(t, "Bearer access-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"messages":[{"id":"wamid.out"}]}`))
	}))
	defer srv.Close()

	provider := NewGraph(Config{
		BaseURL:     srv.URL,
		APIVersion:  "v21.0",
		PhoneID:     "123456",
		AccessToken: "access-token",
	}, zap.NewNop())

	err := provider.SendText(context.Background(), "+31612345678", "Hoi!")
	require.NoError(t, err)

	assert.Equal(t, "whatsapp", got.MessagingProduct)
	assert.Equal(t, "31612345678", got.To)
	assert.Equal(t, "text", got.Type)
	assert.Equal(t, "Hoi!", got.Text.Body)
}

func TestSendTextPlatformError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"invalid recipient"}}`))
	}))
	defer srv.Close()

	provider := NewGraph(Config{
		BaseURL:     srv.URL,
		APIVersion:  "v21.0",
		PhoneID:     "123456",
		AccessToken: "access-token",
	}, zap.NewNop())

	err := provider.SendText(context.Background(), "+31612345678", "Hoi!")
	assert.Error(t, err)
}
