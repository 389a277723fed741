package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"crmbridge/pkg/whatsapp/types"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const streamReadLimit = 4 << 20

// StreamClosedCause is reported when the event websocket drops
const StreamClosedCause = "STREAM_CLOSED"

type eventStream struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *eventStream) stop() {
	s.cancel()
	<-s.done
}

func (s *eventStream) alive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// ensureStream dials the event websocket unless a live one exists
func (c *WhatsAppClient) ensureStream(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil && c.stream.alive() {
		return nil
	}

	wsURL, err := c.streamURL()
	if err != nil {
		return err
	}

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("X-Api-Key", c.apiKey)
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, c.client.Timeout)
	defer cancelDial()
	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("failed to open event stream: %w", err)
	}
	conn.SetReadLimit(streamReadLimit)

	streamCtx, cancel := context.WithCancel(context.Background())
	s := &eventStream{conn: conn, cancel: cancel, done: make(chan struct{})}
	c.stream = s
	go c.readStream(streamCtx, s)
	return nil
}

func (c *WhatsAppClient) streamURL() (string, error) {
	u, err := url.Parse(c.baseURL + types.EndpointEvents)
	if err != nil {
		return "", fmt.Errorf("invalid adapter URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	q := url.Values{}
	q.Set("session", c.sessionName)
	q.Add("events", types.EventMessage)
	q.Add("events", types.EventSessionStatus)
	q.Add("events", types.EventStateChange)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *WhatsAppClient) readStream(ctx context.Context, s *eventStream) {
	defer close(s.done)
	defer s.conn.CloseNow()

	for {
		var env types.StreamEnvelope
		if err := wsjson.Read(ctx, s.conn, &env); err != nil {
			if ctx.Err() != nil {
				_ = s.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			c.logger.WithError(err).Warn("Event stream closed")
			c.emit(ctx, types.StateChanged(types.StateDisconnected, StreamClosedCause))
			return
		}

		if env.Session != "" && env.Session != c.sessionName {
			continue
		}
		c.dispatch(ctx, env)
	}
}

func (c *WhatsAppClient) dispatch(ctx context.Context, env types.StreamEnvelope) {
	switch env.Event {
	case types.EventMessage:
		var payload types.MessagePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			c.logger.WithError(err).Warn("Dropping undecodable message event")
			return
		}
		c.emit(ctx, types.MessageReceived(payload.ToInbound()))

	case types.EventSessionStatus:
		var payload types.SessionStatusPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			c.logger.WithError(err).Warn("Dropping undecodable session status event")
			return
		}
		if payload.Status == types.StatusScanQRCode {
			c.emitChallenge(ctx)
			return
		}
		if state, ok := types.MapConnState(payload.Status); ok {
			c.emit(ctx, types.StateChanged(state, payload.Status))
		}

	case types.EventStateChange:
		var payload types.StateChangePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			c.logger.WithError(err).Warn("Dropping undecodable state change event")
			return
		}
		if state, ok := types.MapConnState(strings.ToUpper(payload.State)); ok {
			c.emit(ctx, types.StateChanged(state, payload.State))
		}

	default:
		c.logger.WithField("event", env.Event).Debug("Ignoring stream event")
	}
}
