// Package schema defines the canonical attack record format for trapgate.
// Every observed interaction, over any of the three protocols, is captured
// as one immutable Record before the emulated reply is produced.
package schema

import "time"

// Kind identifies which protocol surface produced a record.
type Kind string

const (
	KindHTTP         Kind = "http"
	KindWSConnection Kind = "ws_connection"
	KindWSMessage    Kind = "ws_message"
	KindMDNSQuery    Kind = "mdns_query"
)

// IsValid checks if the kind is a known value.
func (k Kind) IsValid() bool {
	switch k {
	case KindHTTP, KindWSConnection, KindWSMessage, KindMDNSQuery:
		return true
	}
	return false
}

// Category is the attack classification computed once at record creation.
type Category string

const (
	CategoryToolInvoke      Category = "tool_invoke"
	CategoryPromptInjection Category = "prompt_injection"
	CategoryChatCompletion  Category = "chat_completion"
	CategoryOpenResponses   Category = "openresponses"
	CategoryRecon           Category = "reconnaissance"
	CategoryUIAccess        Category = "ui_access"
	CategoryHealthCheck     Category = "health_check"
	CategoryOther           Category = "other"

	CategoryWSConnection Category = "ws_connection"
	CategoryWSAuth       Category = "ws_auth"
	CategoryWSSend       Category = "ws_send"
	CategoryWSAgent      Category = "ws_agent"
	CategoryWSHealth     Category = "ws_health"
	CategoryWSOther      Category = "ws_other"
	CategoryMalformed    Category = "malformed"

	CategoryDiscovery Category = "discovery"
)

// Record is one immutable, append-only fact about an observed interaction.
// Exactly one of the payload pointers is set, matching Kind.
type Record struct {
	ID        string    `json:"id" validate:"required"`
	Kind      Kind      `json:"kind" validate:"required"`
	Category  Category  `json:"category" validate:"required"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
	SourceIP  string    `json:"sourceIp"`

	HTTP *HTTPPayload         `json:"http,omitempty"`
	WS   *WSConnectionPayload `json:"wsConnection,omitempty"`
	WSM  *WSMessagePayload    `json:"wsMessage,omitempty"`
	MDNS *MDNSPayload         `json:"mdns,omitempty"`
}

// HTTPPayload captures one HTTP request.
type HTTPPayload struct {
	Method    string            `json:"method"`
	Path      string            `json:"path"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      string            `json:"body,omitempty"`
	UserAgent string            `json:"userAgent,omitempty"`
}

// WSConnectionPayload captures a WebSocket connection accept.
type WSConnectionPayload struct {
	Headers map[string]string `json:"headers,omitempty"`
}

// WSMessagePayload captures one inbound WebSocket frame.
type WSMessagePayload struct {
	SessionID string `json:"sessionId"`
	Raw       string `json:"raw"`
	Method    string `json:"method,omitempty"`
}

// MDNSPayload captures one parsed multicast DNS question.
type MDNSPayload struct {
	Port      int    `json:"port"`
	QueryName string `json:"queryName"`
	QueryType uint16 `json:"queryType"`
	TypeName  string `json:"typeName"`
}
