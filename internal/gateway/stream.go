package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	// streamSliceLen is how many characters each delta chunk carries.
	streamSliceLen = 12
	// streamInterval paces the chunks to look like token generation.
	streamInterval = 30 * time.Millisecond
)

// streamChatCompletion plays the canned reply back as a server-sent event
// stream, one delta chunk at a time, ending with the [DONE] sentinel.
func (s *Server) streamChatCompletion(w http.ResponseWriter, r *http.Request, model string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	id := "chatcmpl-" + uuid.NewString()[:8]
	created := time.Now().Unix()

	chunk := func(delta map[string]any, finish any) map[string]any {
		return map[string]any{
			"id":      id,
			"object":  "chat.completion.chunk",
			"created": created,
			"model":   model,
			"choices": []map[string]any{
				{"index": 0, "delta": delta, "finish_reason": finish},
			},
		}
	}

	// Role chunk first, mirroring the real API's opening frame.
	writeSSE(w, chunk(map[string]any{"role": "assistant", "content": ""}, nil))
	flusher.Flush()

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()
	for i := 0; i < len(fillerText); i += streamSliceLen {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		end := i + streamSliceLen
		if end > len(fillerText) {
			end = len(fillerText)
		}
		writeSSE(w, chunk(map[string]any{"content": fillerText[i:end]}, nil))
		flusher.Flush()
	}

	writeSSE(w, chunk(map[string]any{}, "stop"))
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// writeSSE frames one JSON payload as a server-sent event.
func writeSSE(w http.ResponseWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
