package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsProtocolVersion = 3

	wsWriteWait  = 5 * time.Second
	wsSendBuffer = 64

	tickInterval       = 30 * time.Second
	agentStartedDelay  = 1 * time.Second
	agentCompleteDelay = 4 * time.Second

	wsMaxPayloadBytes  = 1 << 20
	wsMaxBufferedBytes = 4 << 20
)

// reqFrame is an inbound request envelope. The id is kept raw so numeric
// and string ids echo back exactly as sent.
type reqFrame struct {
	Type   string          `json:"type"`
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type resFrame struct {
	Type    string          `json:"type"`
	ID      json.RawMessage `json:"id"`
	OK      bool            `json:"ok"`
	Payload any             `json:"payload,omitempty"`
	Error   *wsError        `json:"error,omitempty"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type eventFrame struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// wsSession owns one WebSocket connection and every timer scheduled on its
// behalf. Closing the session cancels the timers as a unit, so no event is
// ever delivered to a dead socket.
type wsSession struct {
	id     string
	server *Server
	conn   *websocket.Conn
	ip     string

	sendCh    chan any
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	timers []*time.Timer
}

// handleWS upgrades the connection and runs the session to completion.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ip := remoteIP(r)
	s.store.RecordWSConnection(ip, headerMap(r))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sess := &wsSession{
		id:     uuid.NewString(),
		server: s,
		conn:   conn,
		ip:     ip,
		sendCh: make(chan any, wsSendBuffer),
		done:   make(chan struct{}),
	}

	go sess.writeLoop()
	go sess.tickLoop()

	// The challenge goes out before any request is handled, matching the
	// real gateway's connect sequence.
	sess.pushEvent("connect.challenge", map[string]any{
		"nonce": uuid.NewString(),
		"ts":    time.Now().UnixMilli(),
	})

	sess.readLoop()
}

// readLoop consumes frames until the socket dies. Every frame is recorded
// first; unparseable frames get no reply.
func (sess *wsSession) readLoop() {
	defer sess.close()

	sess.conn.SetReadLimit(wsMaxPayloadBytes)
	for {
		_, raw, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}

		sess.server.store.RecordWSMessage(sess.ip, sess.id, raw)

		var req reqFrame
		if err := json.Unmarshal(raw, &req); err != nil || req.Type != "req" || req.Method == "" {
			continue
		}
		sess.dispatch(&req)
	}
}

// writeLoop is the only goroutine that touches the connection for writes.
func (sess *wsSession) writeLoop() {
	defer sess.conn.Close()
	for {
		select {
		case msg := <-sess.sendCh:
			sess.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := sess.conn.WriteJSON(msg); err != nil {
				sess.close()
				return
			}
		case <-sess.done:
			return
		}
	}
}

// tickLoop pushes the periodic tick event for the life of the connection.
func (sess *wsSession) tickLoop() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sess.pushEvent("tick", map[string]any{"ts": time.Now().UnixMilli()})
		case <-sess.done:
			return
		}
	}
}

// send queues a frame for delivery. A closed session or a full buffer drops
// the frame; a slow or dead consumer must never block the protocol.
func (sess *wsSession) send(msg any) {
	select {
	case <-sess.done:
	case sess.sendCh <- msg:
	default:
		sess.server.logger.Debug("websocket send buffer full, dropping frame", "session", sess.id)
	}
}

func (sess *wsSession) pushEvent(event string, payload any) {
	sess.send(eventFrame{Type: "event", Event: event, Payload: payload})
}

func (sess *wsSession) respond(id json.RawMessage, payload any) {
	sess.send(resFrame{Type: "res", ID: id, OK: true, Payload: payload})
}

func (sess *wsSession) respondError(id json.RawMessage, code, message string) {
	sess.send(resFrame{Type: "res", ID: id, OK: false, Error: &wsError{Code: code, Message: message}})
}

// schedule runs fn after d unless the session closes first. The timer is
// owned by the session and cancelled with it.
func (sess *wsSession) schedule(d time.Duration, fn func()) {
	t := time.AfterFunc(d, func() {
		select {
		case <-sess.done:
		default:
			fn()
		}
	})
	sess.mu.Lock()
	sess.timers = append(sess.timers, t)
	sess.mu.Unlock()
}

// close tears the session down exactly once: pending timers stop, the write
// loop exits, the socket closes.
func (sess *wsSession) close() {
	sess.closeOnce.Do(func() {
		close(sess.done)
		sess.mu.Lock()
		for _, t := range sess.timers {
			t.Stop()
		}
		sess.timers = nil
		sess.mu.Unlock()
		sess.conn.Close()
	})
}
