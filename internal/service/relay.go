package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"crmbridge/internal/constants"
	apperrors "crmbridge/internal/errors"
	"crmbridge/internal/metrics"
	"crmbridge/internal/models"
	"crmbridge/internal/tracing"
	"crmbridge/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// RelayConfig describes where and how inbound messages are delivered
type RelayConfig struct {
	WebhookURL string
	SyncKey    string
	Timeout    time.Duration
	QueueSize  int
	Location   *time.Location
	Verbose    bool
}

// Relay forwards inbound messages to the CRM webhook, one at a time and in
// arrival order. Each message gets a single delivery attempt.
type Relay struct {
	config RelayConfig
	client *http.Client
	logger *logrus.Logger
	now    func() time.Time

	queue    chan *types.InboundMessage
	stopCh   chan struct{}
	done     chan struct{}
	startMu  sync.Mutex
	running  bool
	stopOnce sync.Once
}

// NewRelay creates a relay. Call Start to begin consuming.
func NewRelay(config RelayConfig, logger *logrus.Logger) *Relay {
	if config.Timeout <= 0 {
		config.Timeout = time.Duration(constants.DefaultWebhookTimeoutSec) * time.Second
	}
	if config.QueueSize <= 0 {
		config.QueueSize = constants.DefaultRelayQueueSize
	}
	if config.Location == nil {
		config.Location = time.Local
	}

	return &Relay{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
		now:    time.Now,
		queue:  make(chan *types.InboundMessage, config.QueueSize),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Enqueue hands a message to the consumer without blocking the caller
func (r *Relay) Enqueue(msg *types.InboundMessage) {
	select {
	case r.queue <- msg:
	default:
		metrics.IncrementCounter(metrics.RelayMessagesTotal, map[string]string{"result": "queue_full"}, "Inbound messages by outcome")
		r.logger.WithField(LogFieldMessageID, msg.ID).Warn("Relay queue full, dropping inbound message")
	}
}

// Start launches the single consumer goroutine
func (r *Relay) Start(ctx context.Context) {
	r.startMu.Lock()
	defer r.startMu.Unlock()
	if r.running {
		return
	}
	r.running = true

	go func() {
		defer close(r.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case msg := <-r.queue:
				r.process(ctx, msg)
			}
		}
	}()
}

// Stop ends the consumer after the message in progress
func (r *Relay) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.stopCh) })

	r.startMu.Lock()
	running := r.running
	r.startMu.Unlock()
	if !running {
		return nil
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relay) process(ctx context.Context, msg *types.InboundMessage) {
	defer recoverAndLog(r.logger, "relay")

	if err := r.Handle(ctx, msg); err != nil {
		apperrors.WithError(r.logger, err).WithField(LogFieldMessageID, msg.ID).Warn("Failed to relay inbound message")
	}
}

// Handle filters, converts and delivers one message. Filtered messages return nil.
func (r *Relay) Handle(ctx context.Context, msg *types.InboundMessage) error {
	payload, ok := r.BuildPayload(msg)
	if !ok {
		metrics.IncrementCounter(metrics.RelayMessagesTotal, map[string]string{"result": "filtered"}, "Inbound messages by outcome")
		r.logger.WithFields(logrus.Fields{
			LogFieldMessageID: msg.ID,
			LogFieldChatID:    ChatIDForLog(r.config.Verbose, msg.From),
		}).Debug("Skipping inbound message: not a direct chat")
		return nil
	}

	start := time.Now()
	err := r.deliver(ctx, payload)
	metrics.RecordTimer(metrics.RelayDeliveryDuration, time.Since(start), nil)
	if err != nil {
		metrics.IncrementCounter(metrics.RelayMessagesTotal, map[string]string{"result": "failed"}, "Inbound messages by outcome")
		return err
	}

	metrics.IncrementCounter(metrics.RelayMessagesTotal, map[string]string{"result": "delivered"}, "Inbound messages by outcome")
	r.logger.WithFields(logrus.Fields{
		LogFieldMessageID:   msg.ID,
		LogFieldPhone:       PhoneForLog(r.config.Verbose, payload.Phone),
		LogFieldMessageType: msg.Type,
		LogFieldDirection:   "inbound",
		LogFieldDuration:    time.Since(start).Milliseconds(),
	}).Info("Relayed inbound message")
	return nil
}

// BuildPayload converts a message into the webhook body. It returns false for
// group, broadcast and own messages, which are never relayed.
func (r *Relay) BuildPayload(msg *types.InboundMessage) (models.RelayPayload, bool) {
	if msg == nil || msg.FromMe || msg.IsGroup() || msg.IsBroadcast() {
		return models.RelayPayload{}, false
	}

	return models.RelayPayload{
		SyncKey:   r.config.SyncKey,
		Phone:     NormalizePhone(msg.From),
		Message:   MessageText(msg),
		Sender:    models.SenderCustomer,
		Timestamp: FormatTimestamp(msg.Timestamp, r.config.Location, r.now),
	}, true
}

// MessageText picks the text sent to the CRM: body, then caption, then a
// placeholder describing the media.
func MessageText(msg *types.InboundMessage) string {
	if msg.Body != "" {
		return msg.Body
	}
	if msg.Caption != "" {
		return msg.Caption
	}

	switch msg.Type {
	case types.MessageTypeAudio, types.MessageTypePTT:
		return "[Audio]"
	case types.MessageTypeImage:
		return "[Image]"
	case types.MessageTypeVideo:
		return "[Video]"
	case types.MessageTypeDocument:
		if msg.FileName == "" {
			return "[Document]"
		}
		return fmt.Sprintf("[Document: %s]", msg.FileName)
	case types.MessageTypeLocation:
		if msg.HasLocation {
			return fmt.Sprintf("[Location: %s, %s]", formatCoord(msg.Latitude), formatCoord(msg.Longitude))
		}
		return "[Location]"
	case "":
		return "[Unsupported message: unknown]"
	}
	return fmt.Sprintf("[Unsupported message: %s]", msg.Type)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatTimestamp renders epoch seconds in loc; a zero timestamp uses now
func FormatTimestamp(epochSeconds int64, loc *time.Location, now func() time.Time) string {
	var t time.Time
	if epochSeconds > 0 {
		t = time.Unix(epochSeconds, 0)
	} else {
		t = now()
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(constants.DefaultTimestampLayout)
}

func (r *Relay) deliver(ctx context.Context, payload models.RelayPayload) error {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	ctx, span := tracing.StartSpan(ctx, "relay.deliver",
		attribute.String("webhook.host", r.webhookHost()),
	)
	defer span.End()

	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.NewDeliveryFailed(0, fmt.Errorf("failed to marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return apperrors.NewDeliveryFailed(0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if requestID := tracing.GetRequestID(ctx); requestID != "" {
		req.Header.Set(tracing.RequestIDHeader, requestID)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		tracing.RecordError(ctx, err)
		return apperrors.NewDeliveryFailed(0, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	tracing.AddSpanAttributes(ctx, attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := apperrors.NewDeliveryFailed(resp.StatusCode, nil)
		tracing.RecordError(ctx, err)
		return err
	}
	return nil
}

func (r *Relay) webhookHost() string {
	u, err := url.Parse(r.config.WebhookURL)
	if err != nil {
		return ""
	}
	return u.Host
}
