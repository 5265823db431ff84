// Package main provides a CI-friendly smoke test for a running warden server.
//
// It validates:
//   - /healthz and /readyz
//   - a wrong-secret login gets the uniform 401 denial
//   - login, session validation and logout for a known principal
//   - the admin alert stream handshake (subprotocol + hello frame)
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const (
	alertsSubprotocol = "warden.alerts.v1"
	maxReadBytes      = 1 << 20 // 1MiB
)

type smoke struct {
	base    string
	http    *http.Client
	timeout time.Duration
	verbose bool
}

func main() {
	var (
		baseURL    = flag.String("url", "http://127.0.0.1:8080", "Server base URL")
		identifier = flag.String("identifier", "", "Principal handle or email (skips login checks when empty)")
		secret     = flag.String("secret", os.Getenv("WARDEN_SMOKE_SECRET"), "Principal secret")
		adminKey   = flag.String("admin-key", os.Getenv("WARDEN_ADMIN_KEY"), "Admin key (skips alert stream check when empty)")
		adminID    = flag.String("admin-id", "smoke", "Admin id sent with admin requests")
		origin     = flag.String("origin", "http://localhost", "Origin header for the WebSocket handshake")
		timeout    = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose    = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}

	s := &smoke{
		base:    strings.TrimRight(*baseURL, "/"),
		http:    &http.Client{Timeout: *timeout},
		timeout: *timeout,
		verbose: *verbose,
	}
	ctx := context.Background()

	s.mustStatus(ctx, http.MethodGet, "/healthz", nil, nil, http.StatusOK)
	s.mustStatus(ctx, http.MethodGet, "/readyz", nil, nil, http.StatusOK)

	if *identifier != "" {
		s.mustDenyWrongSecret(ctx, *identifier)
		tok := s.mustLogin(ctx, *identifier, *secret)
		bearer := http.Header{"Authorization": []string{"Bearer " + tok}}
		s.mustStatus(ctx, http.MethodGet, "/auth/session", nil, bearer, http.StatusOK)
		s.mustStatus(ctx, http.MethodPost, "/auth/logout", nil, bearer, http.StatusNoContent)
		s.mustStatus(ctx, http.MethodGet, "/auth/session", nil, bearer, http.StatusUnauthorized)
	}

	if *adminKey != "" {
		s.mustAlertHello(ctx, *adminKey, *adminID, *origin)
	}

	fmt.Println("OK: warden smoke passed")
}

func (s *smoke) do(ctx context.Context, method, path string, body any, h http.Header) (int, []byte) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			fatalf("marshal %s body: %v", path, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.base+path, rd)
	if err != nil {
		fatalf("build %s %s: %v", method, path, err)
	}
	for k, vs := range h {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	out, _ := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if s.verbose {
		fmt.Printf("%s %s -> %d %s\n", method, path, resp.StatusCode, strings.TrimSpace(string(out)))
	}
	return resp.StatusCode, out
}

func (s *smoke) mustStatus(ctx context.Context, method, path string, body any, h http.Header, want int) []byte {
	got, out := s.do(ctx, method, path, body, h)
	if got != want {
		fatalf("%s %s: status=%d want=%d body=%s", method, path, got, want, out)
	}
	return out
}

type loginBody struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

func (s *smoke) mustDenyWrongSecret(ctx context.Context, identifier string) {
	out := s.mustStatus(ctx, http.MethodPost, "/auth/login",
		loginBody{Identifier: identifier, Secret: "definitely-not-the-secret"}, nil, http.StatusUnauthorized)

	var res struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(out, &res); err != nil {
		fatalf("decode denial: %v", err)
	}
	if res.OK || res.Message == "" {
		fatalf("denial body unexpected: %s", out)
	}
}

func (s *smoke) mustLogin(ctx context.Context, identifier, secret string) string {
	out := s.mustStatus(ctx, http.MethodPost, "/auth/login",
		loginBody{Identifier: identifier, Secret: secret}, nil, http.StatusOK)

	var res struct {
		OK    bool   `json:"ok"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(out, &res); err != nil {
		fatalf("decode login: %v", err)
	}
	if !res.OK || res.Token == "" {
		fatalf("login body missing token: %s", out)
	}
	return res.Token
}

func (s *smoke) mustAlertHello(ctx context.Context, adminKey, adminID, origin string) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(s.base, "http") + "/admin/alerts/ws"

	h := http.Header{}
	h.Set("X-Admin-Key", adminKey)
	h.Set("X-Admin-ID", adminID)
	if origin != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{alertsSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("alerts dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "smoke done") }()

	if got := conn.Subprotocol(); got != alertsSubprotocol {
		fatalf("alerts subprotocol=%q want=%q", got, alertsSubprotocol)
	}
	conn.SetReadLimit(maxReadBytes)

	mt, data, err := conn.Read(ctx)
	if err != nil {
		fatalf("alerts read: %v", err)
	}
	if mt != websocket.MessageText {
		fatalf("alerts frame type=%v", mt)
	}

	var frame struct {
		Type     string `json:"type"`
		ClientID string `json:"client_id"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		fatalf("alerts decode: %v", err)
	}
	if frame.Type != "hello" || frame.ClientID == "" {
		fatalf("alerts hello unexpected: %s", data)
	}
	if s.verbose {
		fmt.Printf("alerts connected: client_id=%s\n", frame.ClientID)
	}
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
