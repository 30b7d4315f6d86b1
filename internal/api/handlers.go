// Package api provides HTTP handlers for ackrelay endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/orbitdesk/ackrelay/internal/ack"
	"github.com/orbitdesk/ackrelay/internal/models"
)

// ackWebhookRequest is the provider acknowledgment callback payload.
type ackWebhookRequest struct {
	ProviderMessageID  string `json:"provider_message_id"`
	AckCode            string `json:"ack_code"`
	ChannelConfigToken string `json:"channel_config_token"`
	Hash               string `json:"hash,omitempty"`
	WorkspaceID        string `json:"workspace_id,omitempty"`
	PhoneNumber        string `json:"phone_number,omitempty"`
	Timestamp          int64  `json:"timestamp"`
}

// messageWebhookRequest is the provider inbound-message payload.
type messageWebhookRequest struct {
	ProviderMessageID string `json:"provider_message_id"`
	ConversationID    string `json:"conversation_id"`
	WaID              string `json:"wa_id"`
	Body              string `json:"body"`
	Timestamp         int64  `json:"timestamp"`
}

func (s *Server) ackWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req ackWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.ackWebhookHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	code, err := models.ParseAckCode(req.AckCode)
	if err != nil {
		slog.Warn("Server.ackWebhookHandler: unknown ack code", "ack_code", req.AckCode)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown ack code"))
		return
	}

	hash, err := s.updater.ApplyAck(r.Context(), ack.Webhook{
		ProviderMessageID:  req.ProviderMessageID,
		AckCode:            code,
		ChannelConfigToken: req.ChannelConfigToken,
		Hash:               req.Hash,
		WorkspaceID:        req.WorkspaceID,
		PhoneNumber:        req.PhoneNumber,
		Timestamp:          req.Timestamp,
	})
	if err != nil {
		if errors.Is(err, models.ErrCorrelationNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("No correlation for provider message id"))
			return
		}
		slog.Error("Server.ackWebhookHandler: apply ack failed", "error", err, "providerMessageID", req.ProviderMessageID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to apply ack"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"hash": hash}))
}

func (s *Server) messageWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req messageWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.messageWebhookHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.WaID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("wa_id is required"))
		return
	}

	candidates, err := s.resolver.CandidateForms(req.WaID)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	participant, err := s.conv.FindParticipantByCandidateIDs(r.Context(), req.ConversationID, candidates)
	if err != nil {
		slog.Error("Server.messageWebhookHandler: participant lookup failed", "error", err, "conversationID", req.ConversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Participant lookup failed"))
		return
	}
	if participant == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("No participant matches the sender identity"))
		return
	}

	// The provider used a different textual form than the one we track:
	// learn the pair so the next resolution is exact.
	if participant.PhoneNumber != req.WaID {
		s.resolver.RecordMismatch(participant.PhoneNumber, req.WaID)
	}

	slog.Debug("Server.messageWebhookHandler: participant resolved", "participantID", participant.ID, "waID", req.WaID)
	writeJSONResponse(w, http.StatusOK, models.Success(participant))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}
