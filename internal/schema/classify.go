package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// injectionIndicators are substrings whose presence in a chat-completion
// body marks the request as a prompt-injection attempt. Matched
// case-insensitively against the raw body.
var injectionIndicators = []string{
	"ignore",
	"system",
	"jailbreak",
	"disregard",
}

// CategorizeHTTP classifies an HTTP request by path and body. Rules are
// evaluated in a fixed priority order and the first match wins; path and
// body matching is case-insensitive.
func CategorizeHTTP(path, body string) Category {
	p := strings.ToLower(path)
	switch {
	case strings.HasPrefix(p, "/tools/invoke"):
		return CategoryToolInvoke
	case strings.HasPrefix(p, "/v1/chat/completions"):
		b := strings.ToLower(body)
		for _, indicator := range injectionIndicators {
			if strings.Contains(b, indicator) {
				return CategoryPromptInjection
			}
		}
		return CategoryChatCompletion
	case strings.HasPrefix(p, "/v1/responses"):
		return CategoryOpenResponses
	case strings.HasPrefix(p, "/v1/models"):
		return CategoryRecon
	case p == "/":
		return CategoryUIAccess
	case strings.HasPrefix(p, "/health"):
		return CategoryHealthCheck
	default:
		return CategoryOther
	}
}

// wsEnvelope is the minimal shape needed to pull the declared method out of
// an inbound frame for classification.
type wsEnvelope struct {
	Method string `json:"method"`
}

// MaxRawExcerpt bounds the raw excerpt stored for malformed frames.
const MaxRawExcerpt = 512

// CategorizeWSMessage classifies an inbound WebSocket frame by its declared
// method field. Unparseable frames classify as malformed; the derived method
// name is returned alongside the category (empty for malformed frames).
func CategorizeWSMessage(raw []byte) (Category, string) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Method == "" {
		return CategoryMalformed, ""
	}
	method := strings.ToLower(env.Method)
	switch {
	case strings.HasPrefix(method, "connect"):
		return CategoryWSAuth, method
	case strings.HasPrefix(method, "send"):
		return CategoryWSSend, method
	case strings.HasPrefix(method, "agent"):
		return CategoryWSAgent, method
	case strings.HasPrefix(method, "health"):
		return CategoryWSHealth, method
	default:
		return CategoryWSOther, method
	}
}

// TruncateRaw bounds a raw excerpt to MaxRawExcerpt bytes.
func TruncateRaw(raw []byte) string {
	if len(raw) > MaxRawExcerpt {
		raw = raw[:MaxRawExcerpt]
	}
	return string(raw)
}

var dnsTypeNames = map[uint16]string{
	1:   "A",
	12:  "PTR",
	16:  "TXT",
	28:  "AAAA",
	33:  "SRV",
	47:  "NSEC",
	255: "ANY",
}

// DNSTypeName maps a numeric DNS query type to its conventional short name.
// Unknown types render as TYPE<n>.
func DNSTypeName(t uint16) string {
	if name, ok := dnsTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TYPE%d", t)
}
