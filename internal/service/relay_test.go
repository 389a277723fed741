package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	apperrors "crmbridge/internal/errors"
	"crmbridge/internal/models"
	"crmbridge/pkg/whatsapp/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type crmServer struct {
	mu       sync.Mutex
	payloads []models.RelayPayload
	status   int
	delay    time.Duration
}

func newCRMServer(t *testing.T) (*crmServer, *httptest.Server) {
	crm := &crmServer{status: http.StatusOK}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload models.RelayPayload
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		crm.mu.Lock()
		crm.payloads = append(crm.payloads, payload)
		status, delay := crm.status, crm.delay
		crm.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return crm, server
}

func (c *crmServer) received() []models.RelayPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.RelayPayload(nil), c.payloads...)
}

func newTestRelay(url string) *Relay {
	r := NewRelay(RelayConfig{
		WebhookURL: url,
		SyncKey:    "secret",
		Timeout:    time.Second,
		Location:   time.UTC,
	}, quietLogger())
	r.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	return r
}

func TestRelay_DeliversPayload(t *testing.T) {
	crm, server := newCRMServer(t)
	relay := newTestRelay(server.URL)

	err := relay.Handle(context.Background(), &types.InboundMessage{
		ID:        "m1",
		From:      "5511999999999@c.us",
		Body:      "Olá",
		Type:      types.MessageTypeChat,
		Timestamp: 1700000000,
	})
	require.NoError(t, err)

	got := crm.received()
	require.Len(t, got, 1)
	assert.Equal(t, models.RelayPayload{
		SyncKey:   "secret",
		Phone:     "5511999999999",
		Message:   "Olá",
		Sender:    "customer",
		Timestamp: "2023-11-14 22:13:20",
	}, got[0])
}

func TestRelay_FiltersNonDirectMessages(t *testing.T) {
	crm, server := newCRMServer(t)
	relay := newTestRelay(server.URL)

	messages := []*types.InboundMessage{
		{ID: "g", From: "120363012345@g.us", Body: "group"},
		{ID: "b", From: "status@broadcast", Body: "status"},
		{ID: "n", From: "120363999@newsletter", Body: "channel"},
		{ID: "me", From: "5511999999999@c.us", Body: "mine", FromMe: true},
	}
	for _, msg := range messages {
		assert.NoError(t, relay.Handle(context.Background(), msg))
	}

	assert.Empty(t, crm.received())
}

func TestRelay_DeliveryFailures(t *testing.T) {
	t.Run("non-2xx", func(t *testing.T) {
		crm, server := newCRMServer(t)
		crm.status = http.StatusInternalServerError
		relay := newTestRelay(server.URL)

		err := relay.Handle(context.Background(), &types.InboundMessage{ID: "m", From: "5511999999999@c.us", Body: "x"})
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeDeliveryFailed, apperrors.GetCode(err))
		assert.Contains(t, err.Error(), "500")
		assert.Len(t, crm.received(), 1, "a failed delivery is not retried")
	})

	t.Run("transport error", func(t *testing.T) {
		relay := newTestRelay("http://127.0.0.1:1/webhook")

		err := relay.Handle(context.Background(), &types.InboundMessage{ID: "m", From: "5511999999999@c.us", Body: "x"})
		assert.Equal(t, apperrors.ErrCodeDeliveryFailed, apperrors.GetCode(err))
	})

	t.Run("timeout", func(t *testing.T) {
		crm, server := newCRMServer(t)
		crm.delay = 300 * time.Millisecond
		relay := newTestRelay(server.URL)
		relay.config.Timeout = 50 * time.Millisecond

		err := relay.Handle(context.Background(), &types.InboundMessage{ID: "m", From: "5511999999999@c.us", Body: "x"})
		assert.Equal(t, apperrors.ErrCodeDeliveryFailed, apperrors.GetCode(err))
	})
}

func TestRelay_QueuePreservesOrderAndSurvivesPanics(t *testing.T) {
	crm, server := newCRMServer(t)
	relay := newTestRelay(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	relay.Start(ctx)

	relay.Enqueue(&types.InboundMessage{ID: "1", From: "5511000000001@c.us", Body: "first"})
	relay.Enqueue(nil)
	relay.Enqueue(&types.InboundMessage{ID: "2", From: "5511000000002@c.us", Body: "second"})
	relay.Enqueue(&types.InboundMessage{ID: "3", From: "5511000000003@c.us", Body: "third"})

	require.Eventually(t, func() bool { return len(crm.received()) == 3 }, 2*time.Second, 5*time.Millisecond)
	got := crm.received()
	assert.Equal(t, "first", got[0].Message)
	assert.Equal(t, "second", got[1].Message)
	assert.Equal(t, "third", got[2].Message)

	require.NoError(t, relay.Stop(context.Background()))
	require.NoError(t, relay.Stop(context.Background()))
}

func TestRelay_StopWithoutStart(t *testing.T) {
	relay := newTestRelay("http://127.0.0.1:1")
	assert.NoError(t, relay.Stop(context.Background()))
}

func TestMessageText(t *testing.T) {
	tests := []struct {
		name string
		msg  types.InboundMessage
		want string
	}{
		{"body wins", types.InboundMessage{Body: "hello", Caption: "cap", Type: types.MessageTypeImage}, "hello"},
		{"caption", types.InboundMessage{Caption: "see this", Type: types.MessageTypeImage}, "see this"},
		{"audio", types.InboundMessage{Type: types.MessageTypeAudio}, "[Audio]"},
		{"voice note", types.InboundMessage{Type: types.MessageTypePTT}, "[Audio]"},
		{"image", types.InboundMessage{Type: types.MessageTypeImage}, "[Image]"},
		{"video", types.InboundMessage{Type: types.MessageTypeVideo}, "[Video]"},
		{"document", types.InboundMessage{Type: types.MessageTypeDocument, FileName: "contract.pdf"}, "[Document: contract.pdf]"},
		{"location", types.InboundMessage{Type: types.MessageTypeLocation, HasLocation: true, Latitude: -23.55, Longitude: -46.633}, "[Location: -23.55, -46.633]"},
		{"sticker", types.InboundMessage{Type: types.MessageTypeSticker}, "[Unsupported message: sticker]"},
		{"location without coordinates", types.InboundMessage{Type: types.MessageTypeLocation}, "[Location]"},
		{"document without file name", types.InboundMessage{Type: types.MessageTypeDocument}, "[Document]"},
		{"empty message without type", types.InboundMessage{}, "[Unsupported message: unknown]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			assert.Equal(t, tt.want, MessageText(&msg))
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	assert.Equal(t, "2023-11-14 22:13:20", FormatTimestamp(1700000000, time.UTC, now))
	assert.Equal(t, "2026-03-04 05:06:07", FormatTimestamp(0, time.UTC, now))

	saoPaulo := time.FixedZone("BRT", -3*60*60)
	assert.Equal(t, "2023-11-14 19:13:20", FormatTimestamp(1700000000, saoPaulo, now))
}

func TestRelay_BuildPayloadUsesNowWhenTimestampMissing(t *testing.T) {
	relay := newTestRelay("http://crm.invalid")

	payload, ok := relay.BuildPayload(&types.InboundMessage{From: "5511999999999:3@c.us", Type: types.MessageTypeImage})
	require.True(t, ok)
	assert.Equal(t, "5511999999999", payload.Phone)
	assert.Equal(t, "[Image]", payload.Message)
	assert.Equal(t, "2026-03-04 05:06:07", payload.Timestamp)
}
