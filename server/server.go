// Package server exposes the gateway over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/switchyard-ai/switchyard"
	"github.com/switchyard-ai/switchyard/audit"
	"github.com/switchyard-ai/switchyard/gateway"
)

// Router is the chat-routing surface the server fronts.
type Router interface {
	Chat(ctx context.Context, message string, opts switchyard.ChatOptions) (*switchyard.ChatResult, error)
	Embed(ctx context.Context, text string, opts switchyard.EmbedOptions) (*switchyard.EmbedResult, error)
	Stats(ctx context.Context) gateway.Stats
	Audit(limit int) []audit.Entry
	Optimizations() audit.Optimizations
}

// Decomposer is the fan-out surface the server fronts.
type Decomposer interface {
	Decompose(ctx context.Context, task string, opts switchyard.DecomposeOptions) (*switchyard.DecomposeResult, error)
}

// Server translates HTTP requests into gateway calls. Authentication uses a
// single bearer key; an empty key disables auth.
type Server struct {
	router     Router
	decomposer Decomposer
	apiKey     string
	logger     *zap.SugaredLogger
}

func New(router Router, decomposer Decomposer, apiKey string, logger *zap.SugaredLogger) *Server {
	return &Server{
		router:     router,
		decomposer: decomposer,
		apiKey:     apiKey,
		logger:     logger,
	}
}

// RegisterRoutes attaches every endpoint to the given mux router.
func (s *Server) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/v1/chat", s.HandleAuthentication(s.HandleChat)).Methods("POST")
	router.HandleFunc("/v1/embed", s.HandleAuthentication(s.HandleEmbed)).Methods("POST")
	router.HandleFunc("/v1/decompose", s.HandleAuthentication(s.HandleDecompose)).Methods("POST")
	router.HandleFunc("/v1/stats", s.HandleAuthentication(s.HandleStats)).Methods("GET")
	router.HandleFunc("/v1/audit", s.HandleAuthentication(s.HandleAudit)).Methods("GET")
	router.HandleFunc("/v1/optimizations", s.HandleAuthentication(s.HandleOptimizations)).Methods("GET")
	router.HandleFunc("/health", s.HandleHealth).Methods("GET")
}

type chatRequest struct {
	Message string                 `json:"message"`
	Options switchyard.ChatOptions `json:"options"`
}

type embedRequest struct {
	Text    string                  `json:"text"`
	Options switchyard.EmbedOptions `json:"options"`
}

type decomposeRequest struct {
	Task    string                      `json:"task"`
	Options switchyard.DecomposeOptions `json:"options"`
}

func (s *Server) HandleChat(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	var request chatRequest
	if !s.decodeBody(httpResponse, httpRequest, &request) {
		return
	}
	if request.Message == "" {
		writeError(httpResponse, http.StatusBadRequest, "message-required")
		return
	}

	result, err := s.router.Chat(httpRequest.Context(), request.Message, request.Options)
	if err != nil {
		s.writeGatewayError(httpResponse, err)
		return
	}
	writeOk(httpResponse, result)
}

func (s *Server) HandleEmbed(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	var request embedRequest
	if !s.decodeBody(httpResponse, httpRequest, &request) {
		return
	}
	if request.Text == "" {
		writeError(httpResponse, http.StatusBadRequest, "text-required")
		return
	}

	result, err := s.router.Embed(httpRequest.Context(), request.Text, request.Options)
	if err != nil {
		s.writeGatewayError(httpResponse, err)
		return
	}
	writeOk(httpResponse, result)
}

func (s *Server) HandleDecompose(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	var request decomposeRequest
	if !s.decodeBody(httpResponse, httpRequest, &request) {
		return
	}
	if request.Task == "" {
		writeError(httpResponse, http.StatusBadRequest, "task-required")
		return
	}

	result, err := s.decomposer.Decompose(httpRequest.Context(), request.Task, request.Options)
	if err != nil {
		s.writeGatewayError(httpResponse, err)
		return
	}
	writeOk(httpResponse, result)
}

func (s *Server) HandleStats(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	writeOk(httpResponse, s.router.Stats(httpRequest.Context()))
}

func (s *Server) HandleAudit(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	limit := 0
	if raw := httpRequest.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(httpResponse, http.StatusBadRequest, "invalid-limit")
			return
		}
		limit = parsed
	}
	writeOk(httpResponse, map[string]any{"entries": s.router.Audit(limit)})
}

func (s *Server) HandleOptimizations(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	writeOk(httpResponse, s.router.Optimizations())
}

func (s *Server) HandleHealth(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	writeOk(httpResponse, map[string]string{"status": "ok"})
}

// HandleAuthentication wraps a handler with bearer key verification.
func (s *Server) HandleAuthentication(handler http.HandlerFunc) http.HandlerFunc {
	return func(httpResponse http.ResponseWriter, httpRequest *http.Request) {
		if s.apiKey == "" {
			handler(httpResponse, httpRequest)
			return
		}

		headerSplit := strings.Split(httpRequest.Header.Get("Authorization"), " ")
		if len(headerSplit) != 2 ||
			strings.ToLower(headerSplit[0]) != "bearer" ||
			headerSplit[1] != s.apiKey {
			writeError(httpResponse, http.StatusUnauthorized, "unauthorized")
			return
		}

		handler(httpResponse, httpRequest)
	}
}

func (s *Server) decodeBody(httpResponse http.ResponseWriter, httpRequest *http.Request, out any) bool {
	defer httpRequest.Body.Close()

	bodyBytes, err := io.ReadAll(httpRequest.Body)
	if err != nil {
		s.logger.Warnw("Failed to read request body", "error", err)
		writeError(httpResponse, http.StatusBadRequest, "invalid-request-body")
		return false
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		s.logger.Warnw("Invalid request body", "error", err)
		writeError(httpResponse, http.StatusBadRequest, "invalid-request-body")
		return false
	}
	return true
}

func (s *Server) writeGatewayError(httpResponse http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, switchyard.ErrNoProvidersAvailable):
		writeError(httpResponse, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, switchyard.ErrNoEmbeddingProvider):
		writeError(httpResponse, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, switchyard.ErrAllProvidersFailed):
		writeError(httpResponse, http.StatusBadGateway, err.Error())
	case errors.Is(err, switchyard.ErrAllSubtasksFailed):
		writeError(httpResponse, http.StatusBadGateway, err.Error())
	default:
		s.logger.Errorw("Unexpected gateway error", "error", err)
		writeError(httpResponse, http.StatusInternalServerError, "internal-error")
	}
}

type okEnvelope struct {
	Ok     bool `json:"ok"`
	Result any  `json:"result"`
}

type errorEnvelope struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error"`
}

func writeOk(httpResponse http.ResponseWriter, result any) {
	httpResponse.Header().Set("Content-Type", "application/json")
	json.NewEncoder(httpResponse).Encode(okEnvelope{Ok: true, Result: result})
}

func writeError(httpResponse http.ResponseWriter, status int, code string) {
	httpResponse.Header().Set("Content-Type", "application/json")
	httpResponse.WriteHeader(status)
	json.NewEncoder(httpResponse).Encode(errorEnvelope{Ok: false, Error: code})
}
