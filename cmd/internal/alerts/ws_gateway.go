package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"warden/cmd/identity/ids"

	"github.com/coder/websocket"
)

const (
	wsSubprotocolV1 = "warden.alerts.v1"

	wsDefaultSendQueueSize = 64
	wsMinSendQueueSize     = 8

	wsDefaultWriteTimeout      = 5 * time.Second
	wsDefaultHeartbeatInterval = 25 * time.Second
	wsDefaultHeartbeatTimeout  = 5 * time.Second
	wsCloseGrace               = 1 * time.Second

	wsMaxPingFailures = 3

	// Subscribers never send anything meaningful; keep reads tiny.
	wsMaxFrameBytes = 4 << 10

	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// Frame types.
const (
	FrameHello = "hello"
	FrameAlert = "alert"
)

// Frame is the JSON text message written to subscribers.
type Frame struct {
	Type     string    `json:"type"`
	TS       time.Time `json:"ts"`
	ClientID string    `json:"client_id,omitempty"`
	Alert    *Alert    `json:"alert,omitempty"`
}

// WSGateway streams alerts from a Hub to admin WebSocket subscribers.
// Authentication happens before ServeHTTP is reached; the gateway enforces
// origin policy, subprotocol selection and heartbeats.
type WSGateway struct {
	log *slog.Logger
	hub *Hub

	devInsecure    bool
	originRequired bool
	allowedOrigins []string
	originPatterns []string

	writeTimeout  time.Duration
	sendQueueSize int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration
}

// NewWSGateway constructs a gateway configured from WARDEN_WS_* env vars.
func NewWSGateway(log *slog.Logger, hub *Hub) *WSGateway {
	if log == nil {
		log = slog.Default()
	}
	if hub == nil {
		hub = NewHub(log)
	}

	g := &WSGateway{log: log, hub: hub}

	g.devInsecure = envBoolWS("WARDEN_WS_DEV_INSECURE", false)
	g.originRequired = envBoolWS("WARDEN_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	g.allowedOrigins = envCSVWS("WARDEN_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)

	// websocket.Accept runs its own same-host check; cross-origin requests need
	// OriginPatterns, derived here so both layers agree.
	g.originPatterns = deriveOriginPatternsFromAllowedOrigins(g.allowedOrigins)

	g.writeTimeout = envDurationWS("WARDEN_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.sendQueueSize = max(envIntWS("WARDEN_WS_SEND_QUEUE", wsDefaultSendQueueSize), wsMinSendQueueSize)
	g.heartbeatEvery = envDurationWS("WARDEN_WS_HEARTBEAT_INTERVAL", wsDefaultHeartbeatInterval)
	g.heartbeatTimeout = envDurationWS("WARDEN_WS_HEARTBEAT_TIMEOUT", wsDefaultHeartbeatTimeout)

	return g
}

// Hub returns the hub this gateway subscribes clients to.
func (g *WSGateway) Hub() *Hub { return g.hub }

// ServeHTTP upgrades the request and streams alerts until either side goes away.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{wsSubprotocolV1},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != wsSubprotocolV1 {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", wsSubprotocolV1)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}
	conn.SetReadLimit(wsMaxFrameBytes)

	now := time.Now().UTC()
	clientID, err := ids.NewULID(now)
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "id")
		return
	}
	client := NewClient(clientID, g.sendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Unsubscribe(clientID)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	// Subscribe before the hello so nothing broadcast after the hello is missed.
	g.hub.Subscribe(client)
	if err := writeFrame(ctx, conn, Frame{Type: FrameHello, TS: now, ClientID: clientID}, g.writeTimeout); err != nil {
		g.log.Info("ws.write.fail", "client_id", clientID, "err", err)
		shutdown(websocket.StatusAbnormalClosure, "write failed")
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case a := <-client.Send:
				f := Frame{Type: FrameAlert, TS: time.Now().UTC(), Alert: &a}
				if err := writeFrame(ctx, conn, f, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "client_id", clientID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()
				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "client_id", clientID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	// Subscribers are receive-only; the read loop exists to observe close
	// frames and to service pings.
	for {
		_, _, err := conn.Read(ctx)
		if err == nil {
			continue
		}
		switch {
		case websocket.CloseStatus(err) != -1:
			shutdown(websocket.StatusNormalClosure, "peer closed")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			shutdown(websocket.StatusNormalClosure, "context done")
		case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
			shutdown(websocket.StatusAbnormalClosure, "conn closed")
		default:
			g.log.Info("ws.read.fail", "client_id", clientID, "err", err)
			shutdown(websocket.StatusPolicyViolation, "read failed")
		}
		break
	}

	<-writerDone
	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

func writeFrame(parent context.Context, conn *websocket.Conn, f Frame, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)
	for _, a := range g.allowedOrigins {
		if a == "*" {
			return nil
		}
		if origin == a {
			return nil
		}
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	out := make([]string, 0, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" || slices.Contains(out, h) {
			continue
		}
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
