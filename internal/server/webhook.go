package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/meetstream/meeting-gateway/internal/observability"
	"github.com/meetstream/meeting-gateway/internal/session"
	"github.com/meetstream/meeting-gateway/internal/transcript"
)

// SignatureHeader is the HTTP header name carrying the HMAC signature.
const SignatureHeader = "X-Gateway-Signature-256"

// Sign produces an HMAC-SHA256 signature in the format "sha256=<hex>".
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))
}

// VerifySignature checks that the given signature matches the expected
// HMAC. Constant-time comparison.
func VerifySignature(secret string, payload []byte, signature string) bool {
	expected := Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

type transcriptReadyEvent struct {
	MeetingID   string `json:"meetingId"`
	EventType   string `json:"eventType"`
	MeetingName string `json:"meetingName"`
}

// handleTranscriptReady receives the external notification that a meeting
// bot has a transcript feed available and starts a bot-realtime session
// for it. When a webhook secret is configured the signature is mandatory.
func (s *Server) handleTranscriptReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if s.cfg.WebhookSecret != "" {
		signature := r.Header.Get(SignatureHeader)
		if !VerifySignature(s.cfg.WebhookSecret, body, signature) {
			observability.RecordWebhookVerification("rejected")
			s.logger.Warn().Str("remote", r.RemoteAddr).Msg("Webhook signature verification failed")
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
		observability.RecordWebhookVerification("verified")
	} else {
		observability.RecordWebhookVerification("skipped")
		s.logger.Warn().Msg("Webhook secret not configured, accepting unsigned webhook")
	}

	var event transcriptReadyEvent
	if err := json.Unmarshal(body, &event); err != nil || event.MeetingID == "" {
		writeError(w, http.StatusBadRequest, "meetingId is required")
		return
	}

	id, err := s.registry.Create(session.StartRequest{
		Source:       transcript.SourceBotRealtime,
		Name:         event.MeetingName,
		TranscriptID: event.MeetingID,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("meeting_id", event.MeetingID).Msg("Failed to start session from webhook")
		writeError(w, http.StatusInternalServerError, "failed to start session")
		return
	}

	s.logger.Info().
		Str("session_id", id).
		Str("meeting_id", event.MeetingID).
		Str("event_type", event.EventType).
		Msg("Session started from webhook")
	writeJSON(w, http.StatusOK, startResponse{SessionID: id, Status: "started"})
}
