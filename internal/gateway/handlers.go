package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// fillerText is the canned assistant reply served for every completion.
const fillerText = "Certainly. I've reviewed the request and everything looks good on my side. Let me know if there is anything else you need."

// route records the request, then dispatches it. Recording happens before
// routing so even unmatched probes become attack records.
func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.handleWS(w, r)
		return
	}

	body := s.readBody(r)
	s.store.RecordHTTPRequest(remoteIP(r), r.Method, r.URL.Path, headerMap(r), body, r.UserAgent())

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/":
		s.handleRoot(w)
	case r.Method == http.MethodGet && r.URL.Path == "/v1/models":
		s.handleModels(w)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/chat/completions":
		s.handleChatCompletions(w, r, body)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/responses":
		s.handleResponses(w, body)
	case r.Method == http.MethodPost && r.URL.Path == "/tools/invoke":
		s.handleToolInvoke(w, body)
	case r.Method == http.MethodGet && r.URL.Path == "/health":
		s.handleHealth(w)
	case r.Method == http.MethodGet && r.URL.Path == "/api/status":
		s.handleAPIStatus(w)
	case r.Method == http.MethodPost && r.URL.Path == "/hooks/wake":
		s.handleHook(w, "wake")
	case r.Method == http.MethodPost && r.URL.Path == "/hooks/agent":
		s.handleHook(w, "agent")
	case r.Method == http.MethodPost && r.URL.Path == "/hooks/notify":
		s.handleHook(w, "notify")
	case r.Method == http.MethodGet && r.URL.Path == "/hooks/status":
		s.handleHooksStatus(w)
	default:
		respondJSON(w, http.StatusNotFound, map[string]any{
			"error": map[string]any{
				"code":    "not_found",
				"message": "no route for " + r.URL.Path,
			},
		})
	}
}

// readBody drains up to maxBodyBytes of the request body. Read errors yield
// whatever was read; the decoy answers regardless.
func (s *Server) readBody(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	data, _ := io.ReadAll(io.LimitReader(r.Body, s.maxBodyBytes))
	r.Body.Close()
	return string(data)
}

func (s *Server) handleRoot(w http.ResponseWriter) {
	respondJSON(w, http.StatusOK, map[string]any{
		"service": s.profile.DisplayName,
		"version": s.profile.Version,
		"status":  "running",
		"uptime":  int(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleModels(w http.ResponseWriter) {
	created := s.startTime.Unix()
	respondJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": s.profile.Slug + "-main", "object": "model", "created": created, "owned_by": s.profile.Slug},
			{"id": "claude-3-5-sonnet-20241022", "object": "model", "created": created, "owned_by": "anthropic"},
			{"id": "gpt-4o", "object": "model", "created": created, "owned_by": "openai"},
			{"id": "llama-3.1-70b", "object": "model", "created": created, "owned_by": "meta"},
		},
	})
}

type chatRequest struct {
	Model    string `json:"model"`
	Stream   bool   `json:"stream"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request, body string) {
	var req chatRequest
	// A malformed body still gets a valid completion; the request was
	// already recorded with the raw payload.
	json.Unmarshal([]byte(body), &req)

	model := req.Model
	if model == "" {
		model = s.profile.Slug + "-main"
	}

	if req.Stream {
		s.streamChatCompletion(w, r, model)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"id":      "chatcmpl-" + uuid.NewString()[:8],
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": fillerText,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     21,
			"completion_tokens": 27,
			"total_tokens":      48,
		},
	})
}

type responsesRequest struct {
	Model string          `json:"model"`
	Input json.RawMessage `json:"input"`
	Tools json.RawMessage `json:"tools"`
}

func (s *Server) handleResponses(w http.ResponseWriter, body string) {
	var req responsesRequest
	json.Unmarshal([]byte(body), &req)

	model := req.Model
	if model == "" {
		model = s.profile.Slug + "-main"
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"id":         "resp_" + uuid.NewString()[:12],
		"object":     "response",
		"created_at": time.Now().Unix(),
		"status":     "completed",
		"model":      model,
		"output": []map[string]any{
			{
				"type":   "message",
				"id":     "msg_" + uuid.NewString()[:12],
				"role":   "assistant",
				"status": "completed",
				"content": []map[string]any{
					{"type": "output_text", "text": fillerText},
				},
			},
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"uptime":  int(time.Since(s.startTime).Seconds()),
		"version": s.profile.Version,
		"gateway": map[string]any{
			"port":            s.profile.GatewayPort,
			"protocolVersion": wsProtocolVersion,
			"connections":     1,
		},
	})
}

func (s *Server) handleAPIStatus(w http.ResponseWriter) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.profile.Version,
		"name":    s.profile.DisplayName,
	})
}

func (s *Server) handleHook(w http.ResponseWriter, hook string) {
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"hook":   hook,
		"id":     uuid.NewString(),
		"status": "accepted",
	})
}

func (s *Server) handleHooksStatus(w http.ResponseWriter) {
	respondJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"hooks": map[string]string{
			"wake":   "idle",
			"agent":  "idle",
			"notify": "idle",
		},
	})
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes a JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{
		"error": map[string]any{"message": message},
	})
}
