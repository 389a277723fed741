package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"crmbridge/internal/constants"
	apperrors "crmbridge/internal/errors"
	"crmbridge/internal/metrics"
	"crmbridge/internal/models"
	"crmbridge/internal/tracing"

	"github.com/sirupsen/logrus"
)

type sendMessageResponse struct {
	OK        bool   `json:"ok"`
	Message   string `json:"message,omitempty"`
	Phone     string `json:"phone,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
	Details   string `json:"details,omitempty"`
	Connected *bool  `json:"connected,omitempty"`
}

type statusResponse struct {
	Connected            bool                `json:"connected"`
	Session              string              `json:"session"`
	State                models.SessionState `json:"state"`
	ReconnectAttempts    int                 `json:"reconnectAttempts"`
	MaxReconnectAttempts int                 `json:"maxReconnectAttempts"`
	LastConnectedAt      *time.Time          `json:"lastConnectedAt"`
	LastCause            string              `json:"lastCause,omitempty"`
	Timestamp            time.Time           `json:"timestamp"`
	Port                 int                 `json:"port"`
	Mode                 string              `json:"mode"`
	WebhookConfigured    bool                `json:"webhookConfigured"`
	BrowserPath          string              `json:"browserPath,omitempty"`
	RunID                string              `json:"runId,omitempty"`
	RecentTransitions    []transitionView    `json:"recentTransitions,omitempty"`
}

type transitionView struct {
	From    models.SessionState `json:"from"`
	To      models.SessionState `json:"to"`
	Cause   string              `json:"cause,omitempty"`
	Attempt int                 `json:"attempt"`
	RunID   string              `json:"runId"`
	At      time.Time           `json:"at"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Connected bool      `json:"connected"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    float64   `json:"uptime"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, http.StatusRequestEntityTooLarge, sendMessageResponse{Error: "Request body too large"})
				return
			}
			writeJSON(w, http.StatusBadRequest, sendMessageResponse{Error: "Invalid JSON body"})
			return
		}

		result, err := s.sender.Send(r.Context(), req)
		if err != nil {
			s.writeSendError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, sendMessageResponse{
			OK:        true,
			Message:   "Message sent",
			Phone:     result.Phone,
			MessageID: result.MessageID,
		})
	}
}

func (s *Server) writeSendError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	resp := sendMessageResponse{Error: apperrors.GetUserMessage(err)}

	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeNotConnected:
		connected := false
		resp.Connected = &connected
	case apperrors.ErrCodeSendFailed:
		if cause := errors.Unwrap(err); cause != nil {
			resp.Details = cause.Error()
		}
	}

	entry := apperrors.WithError(s.logger, err).WithField("request_id", tracing.GetRequestID(r.Context()))
	if status >= http.StatusInternalServerError {
		entry.Error("Outbound send failed")
	} else {
		entry.Warn("Outbound send rejected")
	}

	writeJSON(w, status, resp)
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := s.session.Snapshot()

		resp := statusResponse{
			Connected:            snap.Connected(),
			Session:              snap.ID,
			State:                snap.State,
			ReconnectAttempts:    snap.ReconnectAttempts,
			MaxReconnectAttempts: s.session.MaxReconnectAttempts(),
			LastCause:            snap.LastCause,
			Timestamp:            time.Now().UTC(),
			Port:                 s.cfg.Server.Port,
			Mode:                 s.cfg.Mode,
			WebhookConfigured:    s.cfg.CRM.WebhookURL != "",
			BrowserPath:          s.cfg.Adapter.BrowserPath,
		}
		if !snap.LastConnectedAt.IsZero() {
			last := snap.LastConnectedAt.UTC()
			resp.LastConnectedAt = &last
		}
		if s.history != nil {
			resp.RunID = s.history.RunID()
			resp.RecentTransitions = s.recentTransitions(r.Context(), snap.ID)
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// recentTransitions reads the journal; a failed read only drops the history
func (s *Server) recentTransitions(ctx context.Context, sessionID string) []transitionView {
	transitions, err := s.history.Recent(ctx, sessionID, constants.StatusRecentTransitions)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read session transitions")
		return nil
	}

	views := make([]transitionView, 0, len(transitions))
	for _, t := range transitions {
		views = append(views, transitionView{
			From:    t.FromState,
			To:      t.ToState,
			Cause:   t.Cause,
			Attempt: t.Attempt,
			RunID:   t.RunID,
			At:      t.CreatedAt.UTC(),
		})
	}
	return views
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{
			Status:    "ok",
			Connected: s.session.Snapshot().Connected(),
			Timestamp: time.Now().UTC(),
			Uptime:    time.Since(s.started).Seconds(),
		})
	}
}

// handleQR never returns the pairing code; it only says where to find it
func (s *Server) handleQR() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := s.session.Snapshot()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"state":        snap.State,
			"awaitingAuth": snap.State == models.SessionAwaitingAuth,
			"message":      "The QR code is printed to the bridge process output when authentication is required",
		})
	}
}

func (s *Server) handleRoot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"name":    "crmbridge",
			"version": Version,
			"session": s.cfg.Session.Name,
			"endpoints": []map[string]string{
				{"method": http.MethodPost, "path": "/send-message", "description": "Send a text message to a phone number"},
				{"method": http.MethodGet, "path": "/status", "description": "Session state and bridge configuration"},
				{"method": http.MethodGet, "path": "/health", "description": "Liveness of the HTTP server"},
				{"method": http.MethodGet, "path": "/qr", "description": "Where to find the authentication QR code"},
				{"method": http.MethodGet, "path": "/metrics", "description": "In-process counters and timers"},
			},
		})
	}
}

func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

		snapshot := metrics.GetAllMetrics()
		w.Header().Set("Content-Type", "application/json")
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(snapshot); err != nil {
			s.logger.WithFields(logrus.Fields{
				"request_id": tracing.GetRequestID(r.Context()),
				"error":      err,
			}).Error("Failed to encode metrics response")
		}
	}
}
