package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"chatsync/internal/constants"
	"chatsync/internal/service"
	"chatsync/internal/store"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Server exposes a local HTTP surface for inspecting the running engine:
// health, metrics and a read-only view of the synchronized state.
type Server struct {
	router   *mux.Router
	logger   *logrus.Logger
	store    *store.Store
	convs    *service.ConversationAggregator
	pipeline *service.SendPipeline
	server   *http.Server
}

func NewServer(st *store.Store, convs *service.ConversationAggregator, pipeline *service.SendPipeline, logger *logrus.Logger) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		logger:   logger,
		store:    st,
		convs:    convs,
		pipeline: pipeline,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	debug := s.router.PathPrefix("/debug").Subrouter()
	debug.HandleFunc("/conversations", s.handleConversations()).Methods(http.MethodGet)
	debug.HandleFunc("/conversations/{id}/messages", s.handleMessages()).Methods(http.MethodGet)
	debug.HandleFunc("/conversations/{id}/messages", s.handleSendMessage()).Methods(http.MethodPost)
	debug.HandleFunc("/conversations/{id}/messages/{key}/retry", s.handleRetry()).Methods(http.MethodPost)
}

func (s *Server) Start(port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  constants.DefaultServerReadTimeoutSec * time.Second,
		WriteTimeout: constants.DefaultServerWriteTimeoutSec * time.Second,
		IdleTimeout:  constants.DefaultServerIdleTimeoutSec * time.Second,
	}

	s.logger.Infof("Starting debug server on port %d", port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

func (s *Server) handleConversations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, s.convs.List())
	}
}

func (s *Server) handleMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversationID := mux.Vars(r)["id"]
		msgs := s.store.Messages(conversationID)
		if len(msgs) == 0 {
			if _, ok := s.convs.Get(conversationID); !ok {
				http.Error(w, "conversation not found", http.StatusNotFound)
				return
			}
		}
		s.writeJSON(w, msgs)
	}
}

func (s *Server) handleSendMessage() http.HandlerFunc {
	type sendRequest struct {
		ReceiverID string `json:"receiver_id"`
		Body       string `json:"body"`
	}
	type sendResponse struct {
		ProvisionalID string `json:"provisional_id"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conversationID := mux.Vars(r)["id"]
		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		provisionalID := s.pipeline.SendText(conversationID, req.ReceiverID, req.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		if err := json.NewEncoder(w).Encode(sendResponse{ProvisionalID: provisionalID}); err != nil {
			s.logger.WithError(err).Error("Failed to encode send response")
		}
	}
}

func (s *Server) handleRetry() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		if !s.pipeline.Retry(vars["id"], vars["key"]) {
			http.Error(w, "message is not retryable", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode debug response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
