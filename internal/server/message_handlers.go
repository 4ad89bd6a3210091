package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"campusnet/internal/community"
)

type sendMessageRequest struct {
	ReceiverID string `json:"receiverId"`
	Body       string `json:"body"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())

	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ReceiverID == "" || strings.TrimSpace(req.Body) == "" {
		writeError(w, http.StatusBadRequest, "receiverId and body are required")
		return
	}
	if req.ReceiverID == ident.User.ID {
		writeError(w, http.StatusBadRequest, "Cannot message yourself")
		return
	}

	receiver, err := s.Store.FindUserByID(r.Context(), req.ReceiverID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to send message")
		return
	}
	if receiver == nil {
		writeError(w, http.StatusNotFound, "Recipient not found")
		return
	}

	msg := &community.Message{
		SenderID:   ident.User.ID,
		ReceiverID: req.ReceiverID,
		Body:       req.Body,
	}
	if err := s.Community.CreateMessage(r.Context(), msg); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to send message")
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())

	conversations, err := s.Community.ListConversations(r.Context(), ident.User.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list conversations")
		return
	}
	if conversations == nil {
		conversations = []community.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"conversations": conversations})
}

func (s *Server) handleThread(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())
	peerID := chi.URLParam(r, "peerId")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	messages, err := s.Community.ListThread(r.Context(), ident.User.ID, peerID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load thread")
		return
	}
	if messages == nil {
		messages = []community.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}
