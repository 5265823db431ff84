package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRuntimeBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "explicit localhost", in: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v4", in: "0.0.0.0:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v6", in: "[::]:9090", want: "http://127.0.0.1:9090"},
		{name: "ipv6 host", in: "[2001:db8::1]:9090", want: "http://[2001:db8::1]:9090"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := runtimeBaseURL(tc.in)
			if got != tc.want {
				t.Fatalf("runtimeBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
			}
		})
	}
}

func TestWSBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "http://127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
		{in: "https://warden.example.com", want: "wss://warden.example.com"},
		{in: "127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
	}

	for _, tc := range cases {
		got := wsBaseURL(tc.in)
		if got != tc.want {
			t.Fatalf("wsBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func testConfig() Config {
	cfg := LoadConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.LogFormat = "json"
	cfg.DatabaseURL = ""
	cfg.RedisURL = ""
	cfg.MetricsEnabled = true
	return cfg
}

func TestApp_InMemoryLoginFlow(t *testing.T) {
	t.Setenv("WARDEN_BOOTSTRAP_HANDLE", "alice")
	t.Setenv("WARDEN_BOOTSTRAP_SECRET", "Correct-Horse-9!")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(context.Background(), testConfig(), log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := a.Handler()

	body := strings.NewReader(`{"identifier":"alice","secret":"Correct-Horse-9!"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("login status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing request id header")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing security headers")
	}

	var login struct {
		OK    bool   `json:"ok"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &login); err != nil || !login.OK || login.Token == "" {
		t.Fatalf("login body=%s err=%v", rr.Body.String(), err)
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("session status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `warden_auth_logins_total{outcome="success"} 1`) {
		t.Fatalf("metrics status=%d", rr.Code)
	}
}

func TestApp_Probes(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(context.Background(), testConfig(), log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for path, want := range map[string]int{"/healthz": http.StatusOK, "/readyz": http.StatusOK} {
		rr := httptest.NewRecorder()
		a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != want {
			t.Fatalf("%s status=%d want=%d", path, rr.Code, want)
		}
	}

	cfg := testConfig()
	cfg.ReadinessRequireDB = true
	a, err = New(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz without db status=%d", rr.Code)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig()
	cfg.LogFormat = "xml"
	if err := cfg.Validate(); !errors.Is(err, ErrConfig) {
		t.Fatalf("log format: err=%v", err)
	}

	cfg = testConfig()
	cfg.CORSAllowedOrigins = []string{"*"}
	cfg.CORSAllowCredentials = true
	if err := cfg.Validate(); !errors.Is(err, ErrConfig) {
		t.Fatalf("cors wildcard with credentials: err=%v", err)
	}
}
