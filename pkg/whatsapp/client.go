package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"crmbridge/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultEventBuffer = 64
	maxErrorBodyBytes  = 4096
)

// ErrClientClosed is returned by operations on a closed client
var ErrClientClosed = errors.New("whatsapp client closed")

// WhatsAppClient drives one WAHA session over its HTTP API and event websocket
type WhatsAppClient struct {
	baseURL     string
	apiKey      string
	sessionName string
	client      *http.Client
	logger      logrus.FieldLogger

	events    chan types.Event
	closed    chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	stream *eventStream
}

// NewClient creates a client for the configured session
func NewClient(config types.ClientConfig, logger logrus.FieldLogger) *WhatsAppClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	buffer := config.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &WhatsAppClient{
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		apiKey:      config.APIKey,
		sessionName: config.SessionName,
		client:      &http.Client{Timeout: timeout},
		logger:      logger.WithField("session", config.SessionName),
		events:      make(chan types.Event, buffer),
		closed:      make(chan struct{}),
	}
}

// Events returns the ordered event channel. It is never closed.
func (c *WhatsAppClient) Events() <-chan types.Event {
	return c.events
}

// Start subscribes to the event stream, then starts (or creates) the session and
// reports its immediate status: CONNECTED when already working, or an auth challenge
// when pairing is required. Any other progress arrives later on the stream.
func (c *WhatsAppClient) Start(ctx context.Context) error {
	if c.isClosed() {
		return ErrClientClosed
	}

	if err := c.ensureStream(ctx); err != nil {
		return err
	}

	if err := c.startSession(ctx); err != nil {
		return err
	}

	info, err := c.GetSession(ctx)
	if err != nil {
		return err
	}

	switch info.Status {
	case types.StatusWorking:
		c.emit(ctx, types.StateChanged(types.StateConnected, info.Status))
	case types.StatusScanQRCode:
		c.emitChallenge(ctx)
	case types.StatusFailed:
		return fmt.Errorf("session %s failed to start", c.sessionName)
	}
	return nil
}

func (c *WhatsAppClient) startSession(ctx context.Context) error {
	path := fmt.Sprintf("%s%s/%s/start", types.APIBase, types.EndpointSessions, url.PathEscape(c.sessionName))
	status, body, err := c.do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	switch {
	case status == http.StatusNotFound:
		return c.createSession(ctx)
	// 422 is returned when the session is already running
	case status == http.StatusUnprocessableEntity, status >= 200 && status < 300:
		return nil
	default:
		return fmt.Errorf("failed to start session, status %d: %s", status, errorDetail(body))
	}
}

func (c *WhatsAppClient) createSession(ctx context.Context) error {
	req := types.CreateSessionRequest{Name: c.sessionName, Start: true}
	status, body, err := c.do(ctx, http.MethodPost, types.APIBase+types.EndpointSessions, req)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("failed to create session, status %d: %s", status, errorDetail(body))
	}
	return nil
}

// GetSession fetches the current session resource
func (c *WhatsAppClient) GetSession(ctx context.Context) (*types.SessionInfo, error) {
	path := fmt.Sprintf("%s%s/%s", types.APIBase, types.EndpointSessions, url.PathEscape(c.sessionName))
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("failed to get session, status %d: %s", status, errorDetail(body))
	}

	var info types.SessionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}
	return &info, nil
}

// Probe succeeds only while the session reports WORKING
func (c *WhatsAppClient) Probe(ctx context.Context) error {
	info, err := c.GetSession(ctx)
	if err != nil {
		return err
	}
	if info.Status != types.StatusWorking {
		return fmt.Errorf("session status is %s", info.Status)
	}
	return nil
}

// QRCode fetches the raw pairing code for the session
func (c *WhatsAppClient) QRCode(ctx context.Context) (string, error) {
	path := fmt.Sprintf("%s/%s%s?format=raw", types.APIBase, url.PathEscape(c.sessionName), types.EndpointAuthQR)
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get QR code: %w", err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("failed to get QR code, status %d: %s", status, errorDetail(body))
	}

	var qr types.QRResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return "", fmt.Errorf("failed to decode QR response: %w", err)
	}
	if qr.Value == "" {
		return "", errors.New("empty QR code")
	}
	return qr.Value, nil
}

// SendText sends a text message to a chat
func (c *WhatsAppClient) SendText(ctx context.Context, chatID, message string) (*types.SendMessageResponse, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}

	payload := types.SendMessageRequest{
		ChatID:  chatID,
		Text:    message,
		Session: c.sessionName,
	}
	status, body, err := c.do(ctx, http.MethodPost, types.APIBase+types.EndpointSendText, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to send text: %w", err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("send text failed with status %d: %s", status, errorDetail(body))
	}

	var wahaResp types.WAHAMessageResponse
	if err := json.Unmarshal(body, &wahaResp); err != nil {
		return nil, fmt.Errorf("failed to decode send response: %w", err)
	}
	return &types.SendMessageResponse{
		MessageID: wahaResp.MessageID(),
		Status:    "sent",
	}, nil
}

// Close stops the event stream and asks WAHA to stop the session. Safe to call twice.
func (c *WhatsAppClient) Close(ctx context.Context) error {
	var first bool
	c.closeOnce.Do(func() {
		first = true
		close(c.closed)
	})
	if !first {
		return nil
	}

	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()
	if stream != nil {
		stream.stop()
	}

	path := fmt.Sprintf("%s%s/%s/stop", types.APIBase, types.EndpointSessions, url.PathEscape(c.sessionName))
	status, body, err := c.do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return fmt.Errorf("failed to stop session: %w", err)
	}
	if status != http.StatusNotFound && (status < 200 || status >= 300) {
		return fmt.Errorf("failed to stop session, status %d: %s", status, errorDetail(body))
	}
	return nil
}

func (c *WhatsAppClient) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// emit delivers an event in order, giving up if ctx ends or the client closes
func (c *WhatsAppClient) emit(ctx context.Context, ev types.Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	case <-c.closed:
	}
}

func (c *WhatsAppClient) emitChallenge(ctx context.Context) {
	code, err := c.QRCode(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Session requires pairing but the QR code could not be fetched")
		return
	}
	c.emit(ctx, types.AuthChallenge(code))
}

func (c *WhatsAppClient) do(ctx context.Context, method, path string, payload interface{}) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func errorDetail(body []byte) string {
	var wahaErr types.WAHAErrorResponse
	if err := json.Unmarshal(body, &wahaErr); err == nil {
		if wahaErr.Message != "" {
			return wahaErr.Message
		}
		if wahaErr.Error != "" {
			return wahaErr.Error
		}
	}
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}
	return strings.TrimSpace(string(body))
}
