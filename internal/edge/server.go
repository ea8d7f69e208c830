package edge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ocx/modelrun/internal/dispatch"
	"github.com/ocx/modelrun/internal/registry"
)

// Server is the HTTP/JSON-RPC ingress fronting a Dispatcher: a thin
// struct holding the services it routes to, wired once at startup.
type Server struct {
	dispatcher  *dispatch.Dispatcher
	rateLimiter *RateLimiter
	corsOrigins []string
	hub         *StreamHub
}

// NewServer builds a Server. corsOrigins mirrors config.ServerConfig's
// CORSAllowOrigins. A StreamHub is created and started internally so
// text-to-image's diffusion previews have somewhere to fan out to.
func NewServer(d *dispatch.Dispatcher, rl *RateLimiter, corsOrigins []string) *Server {
	hub := NewStreamHub(corsOrigins)
	go hub.Run()
	return &Server{dispatcher: d, rateLimiter: rl, corsOrigins: corsOrigins, hub: hub}
}

// Router builds the mux.Router the daemon binds to addr.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.corsMiddleware)
	if s.rateLimiter != nil {
		r.Use(s.rateLimiter.Middleware)
	}

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/v1/rpc", s.handleJSONRPC).Methods(http.MethodPost)
	r.HandleFunc("/v1/chat/completions", s.handleChatCompletions).Methods(http.MethodPost)
	r.HandleFunc("/v1/images/generate", s.handleImageGenerate).Methods(http.MethodPost)
	r.HandleFunc("/v1/stream/ws", s.hub.HandleWebSocket)

	return r
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.corsOrigins) > 0 {
			origin = s.corsOrigins[0]
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Tenant-ID, X-Agent-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func getTenantID(r *http.Request) string {
	if tid := r.Header.Get("X-Tenant-ID"); tid != "" {
		return tid
	}
	return "default"
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"pools":  s.dispatcher.Snapshot(),
		"stream": s.hub.Stats(),
	})
}

// rpcRequest is a JSON-RPC 2.0 request carrying a (capability, registry_key,
// op, args) tuple in Params.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  rpcParams       `json:"params"`
}

type rpcParams struct {
	Capability  string          `json:"capability"`
	RegistryKey string          `json:"registry_key"`
	Op          string          `json:"op"`
	Args        json.RawMessage `json:"args"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

func capabilityFromString(s string) (registry.Capability, bool) {
	switch s {
	case "text_embedding":
		return registry.TextEmbedding, true
	case "image_embedding":
		return registry.ImageEmbedding, true
	case "vision":
		return registry.Vision, true
	case "text_to_image":
		return registry.TextToImage, true
	case "text_generation":
		return registry.TextGeneration, true
	default:
		return 0, false
	}
}

func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	tenantID := getTenantID(r)
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, nil, http.StatusBadRequest, RPCError{Code: -32700, Type: "parse_error", Message: err.Error()})
		return
	}

	cap, ok := capabilityFromString(req.Params.Capability)
	if !ok {
		writeRPCError(w, req.ID, http.StatusBadRequest, RPCError{Code: -32602, Type: "invalid_request_error", Message: fmt.Sprintf("unknown capability %q", req.Params.Capability)})
		return
	}

	key := registry.Key(req.Params.RegistryKey)
	if err := s.dispatcher.EnsureWorkers(key, cap); err != nil {
		status, body := ToRPCError(err)
		writeRPCError(w, req.ID, status, body)
		return
	}

	result, err := s.route(key, cap, req.Params.Op, req.Params.Args)
	if err != nil {
		status, body := ToRPCError(err)
		writeRPCError(w, req.ID, status, body)
		return
	}

	slog.Info("edge: rpc call", "tenant_id", tenantID, "capability", req.Params.Capability, "registry_key", req.Params.RegistryKey, "op", req.Params.Op)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
}

// route dispatches op against the capability pool matching cap, decoding
// args into the expected per-op shape.
func (s *Server) route(key registry.Key, cap registry.Capability, op string, args json.RawMessage) (interface{}, error) {
	switch cap {
	case registry.TextEmbedding:
		var p struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", errInvalidArgs, err)
		}
		return s.dispatcher.TextEmbedding.Embed(key, p.Text)

	case registry.ImageEmbedding:
		var p struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", errInvalidArgs, err)
		}
		return s.dispatcher.ImageEmbedding.EmbedImage(key, p.Path)

	case registry.Vision:
		var p struct {
			Path   string `json:"path"`
			Prompt string `json:"prompt"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", errInvalidArgs, err)
		}
		return s.dispatcher.Vision.DescribeImage(key, p.Path, p.Prompt)

	default:
		return nil, fmt.Errorf("%w: streaming capability %q must use a streaming transport", errInvalidArgs, cap)
	}
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, status int, body RPCError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: id, Error: &body})
}

// handleChatCompletions is an OpenAI-chat-completions-shaped entry point
// onto text_generation, streamed as Server-Sent Events chunk by chunk.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		MaxTokens int `json:"max_tokens"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, nil, http.StatusBadRequest, RPCError{Code: -32700, Type: "parse_error", Message: err.Error()})
		return
	}
	if len(req.Messages) == 0 {
		writeRPCError(w, nil, http.StatusBadRequest, RPCError{Code: -32602, Type: "invalid_request_error", Message: "messages must not be empty"})
		return
	}

	key := registry.Key(req.Model)
	if err := s.dispatcher.EnsureWorkers(key, registry.TextGeneration); err != nil {
		status, body := ToRPCError(err)
		writeRPCError(w, nil, status, body)
		return
	}

	prompt := req.Messages[len(req.Messages)-1].Content
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 256
	}

	stream, err := s.dispatcher.TextGeneration.GenerateText(key, prompt, maxTokens)
	if err != nil {
		status, body := ToRPCError(err)
		writeRPCError(w, nil, status, body)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)

	for res := range stream {
		if res.Err != nil {
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", res.Err.Error())
			if flusher != nil {
				flusher.Flush()
			}
			return
		}
		if res.Done {
			fmt.Fprint(w, "data: [DONE]\n\n")
			if flusher != nil {
				flusher.Flush()
			}
			return
		}
		s.hub.BroadcastTextChunk(string(key), res.Chunk)
		chunk, _ := json.Marshal(res.Chunk)
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// handleImageGenerate triggers a text-to-image generation, relaying every
// diffusion preview frame to the stream hub's websocket subscribers as it
// runs and responding once with the final image's bytes.
func (s *Server) handleImageGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
		Steps  int    `json:"steps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, nil, http.StatusBadRequest, RPCError{Code: -32700, Type: "parse_error", Message: err.Error()})
		return
	}
	if req.Steps == 0 {
		req.Steps = 20
	}

	key := registry.Key(req.Model)
	if err := s.dispatcher.EnsureWorkers(key, registry.TextToImage); err != nil {
		status, body := ToRPCError(err)
		writeRPCError(w, nil, status, body)
		return
	}

	stream, err := s.dispatcher.TextToImage.GenerateImage(key, req.Prompt, req.Steps)
	if err != nil {
		status, body := ToRPCError(err)
		writeRPCError(w, nil, status, body)
		return
	}

	var final []byte
	for res := range stream {
		if res.Err != nil {
			status, body := ToRPCError(res.Err)
			writeRPCError(w, nil, status, body)
			return
		}
		if res.Done {
			continue
		}
		s.hub.BroadcastDiffusionStep(req.Model, res.Chunk)
		if len(res.Chunk.Final) > 0 {
			final = res.Chunk.Final
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"image": final})
}

