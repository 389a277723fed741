package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crmbridge/internal/constants"
	apperrors "crmbridge/internal/errors"
	"crmbridge/internal/metrics"
	"crmbridge/internal/models"
	"crmbridge/internal/security"
	"crmbridge/internal/tracing"
	"crmbridge/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// TextSender is the part of the messaging client the gateway needs
type TextSender interface {
	SendText(ctx context.Context, chatID, message string) (*types.SendMessageResponse, error)
}

// SessionView exposes the supervised session read-only
type SessionView interface {
	Snapshot() models.Session
}

// GatewayConfig holds the shared key and send limits
type GatewayConfig struct {
	SyncKey     string
	SendTimeout time.Duration
	Verbose     bool
}

// Gateway validates CRM send requests and hands them to the messaging client
type Gateway struct {
	sender  TextSender
	session SessionView
	config  GatewayConfig
	logger  *logrus.Logger
}

// NewGateway creates an outbound gateway
func NewGateway(sender TextSender, session SessionView, config GatewayConfig, logger *logrus.Logger) *Gateway {
	if config.SendTimeout <= 0 {
		config.SendTimeout = time.Duration(constants.DefaultSendTimeoutSec) * time.Second
	}
	return &Gateway{
		sender:  sender,
		session: session,
		config:  config,
		logger:  logger,
	}
}

// Send checks the key first, then the input, then the session, and only then
// calls the client. Sends are not deduplicated.
func (g *Gateway) Send(ctx context.Context, req models.SendRequest) (*models.SendResult, error) {
	if !security.KeysMatch(req.Key, g.config.SyncKey) {
		g.count("unauthorized")
		return nil, apperrors.NewUnauthorized()
	}

	phone, err := validateSendRequest(req)
	if err != nil {
		g.count("invalid")
		return nil, err
	}

	snapshot := g.session.Snapshot()
	if !snapshot.Connected() {
		g.count("not_connected")
		return nil, apperrors.NewNotConnected(string(snapshot.State))
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.SendTimeout)
	defer cancel()
	ctx, span := tracing.StartSpan(ctx, "gateway.send",
		attribute.Int("message.length", len(req.Message)),
	)
	defer span.End()

	start := time.Now()
	resp, err := g.sender.SendText(ctx, types.ChatID(phone), req.Message)
	metrics.RecordTimer(metrics.GatewaySendDuration, time.Since(start), nil)
	if err != nil {
		tracing.RecordError(ctx, err)
		g.count("failed")
		return nil, apperrors.NewSendFailed(err)
	}

	result := &models.SendResult{Phone: phone}
	if resp != nil {
		result.MessageID = resp.MessageID
	}

	g.count("sent")
	g.logger.WithFields(logrus.Fields{
		LogFieldPhone:     PhoneForLog(g.config.Verbose, phone),
		LogFieldMessageID: result.MessageID,
		LogFieldDirection: "outbound",
		LogFieldRequestID: tracing.GetRequestID(ctx),
		LogFieldDuration:  time.Since(start).Milliseconds(),
	}).Info("Sent outbound message")
	return result, nil
}

func validateSendRequest(req models.SendRequest) (string, error) {
	if strings.TrimSpace(req.Phone) == "" {
		return "", apperrors.NewInvalidRequest("phone", "is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return "", apperrors.NewInvalidRequest("message", "is required")
	}

	phone := NormalizePhone(req.Phone)
	if len(phone) < constants.MinPhoneDigits {
		return "", apperrors.NewInvalidRequest("phone", fmt.Sprintf("must contain at least %d digits", constants.MinPhoneDigits))
	}
	return phone, nil
}

func (g *Gateway) count(result string) {
	metrics.IncrementCounter(metrics.GatewaySendsTotal, map[string]string{"result": result}, "Outbound sends by outcome")
}
