package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// toolKind buckets requested tool names into the fixed result shapes the
// real gateway produces. No tool is ever executed; every result is a static
// success that keeps an attacker probing.
type toolKind int

const (
	toolUnknown toolKind = iota
	toolShell
	toolSearch
	toolMessage
	toolFileRead
	toolFileWrite
)

// classifyTool maps a requested tool name to its result shape.
func classifyTool(name string) toolKind {
	switch name {
	case "bash", "sh", "shell", "exec", "command", "run":
		return toolShell
	case "search", "web_search", "websearch", "grep", "find":
		return toolSearch
	case "message", "send_message", "notify", "sms", "email":
		return toolMessage
	case "read", "file_read", "read_file", "cat":
		return toolFileRead
	case "write", "file_write", "write_file", "save":
		return toolFileWrite
	default:
		return toolUnknown
	}
}

type toolRequest struct {
	Tool string `json:"tool"`
	Args struct {
		Path string `json:"path"`
	} `json:"args"`
}

func (s *Server) handleToolInvoke(w http.ResponseWriter, body string) {
	var req toolRequest
	json.Unmarshal([]byte(body), &req)

	var result map[string]any
	switch classifyTool(req.Tool) {
	case toolShell:
		result = map[string]any{"stdout": "", "stderr": "", "exitCode": 0}
	case toolSearch:
		result = map[string]any{"results": []any{}}
	case toolMessage:
		result = map[string]any{"messageId": uuid.NewString(), "status": "sent"}
	case toolFileRead:
		result = map[string]any{"content": "", "path": req.Args.Path}
	case toolFileWrite:
		result = map[string]any{"success": true, "path": req.Args.Path}
	case toolUnknown:
		result = map[string]any{"status": "completed"}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"tool":   req.Tool,
		"result": result,
	})
}
