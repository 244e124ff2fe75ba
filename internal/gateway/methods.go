package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// wsMethod enumerates the control-protocol methods the emulator answers.
// Probes check for "method not found" on methods the real service supports,
// so breadth matters more than depth: every known method gets a well-formed
// reply, and only genuinely unknown names get UNKNOWN_METHOD.
type wsMethod int

const (
	methodUnknown wsMethod = iota
	methodConnect
	methodHealth
	methodStatus
	methodModelsList
	methodUsageStatus
	methodSessionsList
	methodSessionsPreview
	methodSessionsDelete
	methodSessionsReset
	methodSessionsCompact
	methodAgent
	methodAgentRun
	methodAgentIdentityGet
	methodAgentWait
	methodAgentsList
	methodSend
	methodChatSend
	methodChatHistory
	methodChatAbort
	methodConfigGet
	methodConfigSet
	methodConfigPatch
	methodConfigSchema
	methodNodeList
	methodNodeDescribe
	methodNodePairRequest
	methodNodePairList
	methodNodePairApprove
)

var wsMethodNames = map[string]wsMethod{
	"connect":            methodConnect,
	"health":             methodHealth,
	"status":             methodStatus,
	"models.list":        methodModelsList,
	"usage.status":       methodUsageStatus,
	"sessions.list":      methodSessionsList,
	"sessions.preview":   methodSessionsPreview,
	"sessions.delete":    methodSessionsDelete,
	"sessions.reset":     methodSessionsReset,
	"sessions.compact":   methodSessionsCompact,
	"agent":              methodAgent,
	"agent.run":          methodAgentRun,
	"agent.identity.get": methodAgentIdentityGet,
	"agent.wait":         methodAgentWait,
	"agents.list":        methodAgentsList,
	"send":               methodSend,
	"chat.send":          methodChatSend,
	"chat.history":       methodChatHistory,
	"chat.abort":         methodChatAbort,
	"config.get":         methodConfigGet,
	"config.set":         methodConfigSet,
	"config.patch":       methodConfigPatch,
	"config.schema":      methodConfigSchema,
	"node.list":          methodNodeList,
	"node.describe":      methodNodeDescribe,
	"node.pair.request":  methodNodePairRequest,
	"node.pair.list":     methodNodePairList,
	"node.pair.approve":  methodNodePairApprove,
}

var wsEventNames = []string{"connect.challenge", "tick", "agent.started", "agent.completed"}

func parseWSMethod(name string) wsMethod {
	return wsMethodNames[name]
}

// supportedMethods lists the method names advertised in the handshake.
func supportedMethods() []string {
	names := make([]string, 0, len(wsMethodNames))
	for name := range wsMethodNames {
		names = append(names, name)
	}
	return names
}

// pairingMethod marks the methods that get logging emphasis: an attacker
// attempting node pairing is probing for lateral movement.
func pairingMethod(m wsMethod) bool {
	switch m {
	case methodNodePairRequest, methodNodePairList, methodNodePairApprove:
		return true
	}
	return false
}

// dispatch answers one parsed request frame.
func (sess *wsSession) dispatch(req *reqFrame) {
	m := parseWSMethod(req.Method)

	if pairingMethod(m) {
		sess.server.logger.Warn("pairing method invoked",
			"session", sess.id,
			"remote", sess.ip,
			"method", req.Method,
		)
	}

	switch m {
	case methodConnect:
		// Any credential is accepted; the handshake never fails.
		sess.respond(req.ID, sess.helloPayload())

	case methodHealth:
		sess.respond(req.ID, map[string]any{
			"status":  "ok",
			"version": sess.server.profile.Version,
			"uptime":  int(time.Since(sess.server.startTime).Seconds()),
		})

	case methodStatus:
		sess.respond(req.ID, map[string]any{
			"status":   "running",
			"name":     sess.server.profile.DisplayName,
			"version":  sess.server.profile.Version,
			"sessions": 0,
		})

	case methodModelsList:
		sess.respond(req.ID, map[string]any{
			"models": []map[string]any{
				{"id": sess.server.profile.Slug + "-main", "provider": sess.server.profile.Slug},
				{"id": "claude-3-5-sonnet-20241022", "provider": "anthropic"},
				{"id": "gpt-4o", "provider": "openai"},
			},
		})

	case methodUsageStatus:
		sess.respond(req.ID, map[string]any{
			"tokensUsed":   0,
			"tokensLimit":  1000000,
			"requestsUsed": 0,
			"resetAt":      time.Now().Add(24 * time.Hour).UnixMilli(),
		})

	case methodSessionsList:
		sess.respond(req.ID, map[string]any{"sessions": []any{}})

	case methodSessionsPreview:
		var params struct {
			SessionID string `json:"sessionId"`
		}
		json.Unmarshal(req.Params, &params)
		sess.respond(req.ID, map[string]any{
			"session": map[string]any{
				"id":       params.SessionID,
				"title":    "",
				"messages": []any{},
				"created":  time.Now().UnixMilli(),
			},
		})

	case methodSessionsDelete, methodSessionsReset, methodSessionsCompact:
		sess.respond(req.ID, map[string]any{"ok": true})

	case methodAgent, methodAgentRun:
		sess.respondAgentRun(req)

	case methodAgentIdentityGet:
		sess.respond(req.ID, map[string]any{
			"name":    sess.server.profile.DisplayName,
			"version": sess.server.profile.Version,
			"nodeId":  uuid.NewString(),
		})

	case methodAgentWait:
		sess.respond(req.ID, map[string]any{"status": "idle"})

	case methodAgentsList:
		sess.respond(req.ID, map[string]any{
			"agents": []map[string]any{
				{"id": "default", "name": sess.server.profile.DisplayName, "status": "idle"},
			},
		})

	case methodSend, methodChatSend:
		sess.respond(req.ID, map[string]any{
			"messageId": uuid.NewString(),
			"status":    "sent",
		})

	case methodChatHistory:
		sess.respond(req.ID, map[string]any{
			"messages": []any{},
			"hasMore":  false,
		})

	case methodChatAbort:
		sess.respond(req.ID, map[string]any{"ok": true})

	case methodConfigGet:
		sess.respond(req.ID, map[string]any{
			"config": map[string]any{
				"model":     sess.server.profile.Slug + "-main",
				"telemetry": false,
				"autoStart": true,
			},
			"features": map[string]any{
				"agents":  true,
				"pairing": true,
				"hooks":   true,
			},
		})

	case methodConfigSet, methodConfigPatch:
		// Input is captured in the attack record; nothing is applied.
		sess.respond(req.ID, map[string]any{"ok": true})

	case methodConfigSchema:
		sess.respond(req.ID, map[string]any{
			"$schema": "http://json-schema.org/draft-07/schema#",
			"type":    "object",
			"properties": map[string]any{
				"model":     map[string]any{"type": "string"},
				"telemetry": map[string]any{"type": "boolean"},
				"autoStart": map[string]any{"type": "boolean"},
			},
		})

	case methodNodeList:
		sess.respond(req.ID, map[string]any{"nodes": []any{}})

	case methodNodeDescribe:
		var params struct {
			NodeID string `json:"nodeId"`
		}
		json.Unmarshal(req.Params, &params)
		sess.respond(req.ID, map[string]any{
			"node": map[string]any{
				"id":     params.NodeID,
				"status": "offline",
			},
		})

	case methodNodePairRequest:
		sess.respond(req.ID, map[string]any{
			"pairingId": uuid.NewString(),
			"status":    "pending",
		})

	case methodNodePairList:
		sess.respond(req.ID, map[string]any{"requests": []any{}})

	case methodNodePairApprove:
		sess.respond(req.ID, map[string]any{"ok": true, "status": "approved"})

	case methodUnknown:
		sess.respondError(req.ID, "UNKNOWN_METHOD", "unknown method: "+req.Method)
	}
}

// respondAgentRun acknowledges immediately, then plays the run lifecycle
// back as unprompted events on the same connection.
func (sess *wsSession) respondAgentRun(req *reqFrame) {
	runID := uuid.NewString()
	sess.respond(req.ID, map[string]any{
		"runId":  runID,
		"status": "queued",
	})

	sess.schedule(agentStartedDelay, func() {
		sess.pushEvent("agent.started", map[string]any{
			"runId": runID,
			"ts":    time.Now().UnixMilli(),
		})
	})
	sess.schedule(agentCompleteDelay, func() {
		sess.pushEvent("agent.completed", map[string]any{
			"runId":  runID,
			"status": "completed",
			"output": fillerText,
			"ts":     time.Now().UnixMilli(),
		})
	})
}

// helloPayload is the connect handshake: identity, full method and event
// catalog, an empty state snapshot, and the policy block.
func (sess *wsSession) helloPayload() map[string]any {
	p := sess.server.profile
	return map[string]any{
		"type":     "hello-ok",
		"protocol": wsProtocolVersion,
		"server": map[string]any{
			"name":    p.DisplayName,
			"version": p.Version,
			"id":      p.Slug,
		},
		"methods": supportedMethods(),
		"events":  wsEventNames,
		"snapshot": map[string]any{
			"sessions": []any{},
			"nodes":    []any{},
			"presence": []any{},
			"health":   map[string]any{"status": "ok"},
		},
		"policy": map[string]any{
			"maxPayloadBytes":  wsMaxPayloadBytes,
			"maxBufferedBytes": wsMaxBufferedBytes,
			"tickIntervalMs":   tickInterval.Milliseconds(),
		},
	}
}
