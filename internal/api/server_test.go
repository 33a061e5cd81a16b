package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/fritz-presence/internal/auth"
	"github.com/nerrad567/fritz-presence/internal/bridge"
	"github.com/nerrad567/fritz-presence/internal/device"
	"github.com/nerrad567/fritz-presence/internal/fritzbox"
	"github.com/nerrad567/fritz-presence/internal/infrastructure/config"
	"github.com/nerrad567/fritz-presence/internal/infrastructure/database"
	"github.com/nerrad567/fritz-presence/internal/infrastructure/logging"
	"github.com/nerrad567/fritz-presence/internal/presence"
	_ "github.com/nerrad567/fritz-presence/migrations"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "correct horse"
	testMAC      = "AA:BB:CC:DD:EE:01"
)

var (
	hashOnce sync.Once
	testHash string
)

func passwordHash(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() {
		h, err := auth.HashPassword(testPassword)
		if err != nil {
			t.Fatalf("HashPassword() error = %v", err)
		}
		testHash = h
	})
	return testHash
}

// fakeBridge records calls and returns canned results.
type fakeBridge struct {
	mu       sync.Mutex
	levels   []int
	woken    []string
	polls    int
	err      error
	nextPoll time.Time
}

func (f *fakeBridge) PollNow(context.Context) (bridge.PollResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.err != nil {
		return bridge.PollResult{}, f.err
	}
	return bridge.PollResult{Hosts: 3, Active: 2, Devices: 1, Changed: 1}, nil
}

func (f *fakeBridge) RunAdmin(_ context.Context, level int) (bridge.AdminResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = append(f.levels, level)
	if f.err != nil {
		return bridge.AdminResult{}, f.err
	}
	return bridge.AdminResult{Level: level, Created: 2}, nil
}

func (f *fakeBridge) WakeDevice(_ context.Context, mac string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.woken = append(f.woken, mac)
	return f.err
}

func (f *fakeBridge) NextPoll() time.Time {
	return f.nextPoll
}

func (f *fakeBridge) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeBridge) calls() (levels []int, woken []string, polls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.levels...), append([]string(nil), f.woken...), f.polls
}

type fakeHosts struct {
	hosts []fritzbox.Host
	err   error
}

func (f *fakeHosts) Hosts(_ context.Context, filter string) ([]fritzbox.Host, error) {
	if f.err != nil {
		return nil, f.err
	}
	switch filter {
	case presence.FilterAll:
		return f.hosts, nil
	case presence.FilterActive:
		var out []fritzbox.Host
		for _, h := range f.hosts {
			if h.Active {
				out = append(out, h)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q", presence.ErrUnknownFilter, filter)
}

func (f *fakeHosts) FilterNames() []string {
	return []string{presence.FilterActive, presence.FilterAll}
}

type checkFunc func(context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type testEnv struct {
	server   *Server
	http     *httptest.Server
	registry *device.Registry
	bridge   *fakeBridge
	hosts    *fakeHosts
	token    string
}

func newTestEnv(t *testing.T, health map[string]HealthChecker) *testEnv {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	reg := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	env := &testEnv{
		registry: reg,
		bridge:   &fakeBridge{nextPoll: time.Date(2026, 10, 15, 12, 5, 0, 0, time.UTC)},
		hosts: &fakeHosts{hosts: []fritzbox.Host{
			{MAC: testMAC, HostName: "phone", InterfaceType: fritzbox.InterfaceWiFi, Active: true},
			{MAC: "AA:BB:CC:DD:EE:02", HostName: "nas", InterfaceType: fritzbox.InterfaceEthernet},
		}},
	}

	srv, err := New(Deps{
		WS: config.WebSocketConfig{Path: "/ws", MaxMessageSize: 4096, PingInterval: 30, PongTimeout: 10},
		Security: config.SecurityConfig{
			JWT:   config.JWTConfig{Secret: testSecret, AccessTokenTTL: 5},
			Admin: config.AdminConfig{Username: "admin", PasswordHash: passwordHash(t)},
		},
		Logger:   logging.Discard(),
		Registry: reg,
		Bridge:   env.bridge,
		Hosts:    env.hosts,
		Health:   health,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	env.server = srv
	env.http = httptest.NewServer(srv.Handler())
	t.Cleanup(env.http.Close)

	token, _, err := auth.GenerateAccessToken("admin", testSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	env.token = token
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, authed bool) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.http.URL+path, rdr)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	data, _ := io.ReadAll(resp.Body)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("decoding %s %s body %q: %v", method, path, data, err)
		}
	}
	return resp, out
}

func (e *testEnv) addDevice(t *testing.T, unit int, mac, name string, nValue int) {
	t.Helper()
	d := &device.Device{
		Unit: unit, MAC: mac, Idx: 100 + unit, Name: name,
		Kind: device.KindPresence, NValue: nValue, Used: true,
	}
	if err := e.registry.Create(context.Background(), d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{}},
		{"no registry", Deps{Logger: logging.Discard()}},
		{"no bridge", Deps{Logger: logging.Discard(), Registry: device.NewRegistry(nil)}},
		{"no hosts", Deps{Logger: logging.Discard(), Registry: device.NewRegistry(nil), Bridge: &fakeBridge{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, map[string]HealthChecker{
		"database": checkFunc(func(context.Context) error { return nil }),
		"mqtt":     checkFunc(func(context.Context) error { return errors.New("not connected") }),
	})

	resp, body := env.do(t, http.MethodGet, "/api/v1/health", "", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
	checks, _ := body["checks"].(map[string]any)
	if checks["database"] != "ok" || checks["mqtt"] != "not connected" {
		t.Errorf("checks = %v", checks)
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"valid", `{"username":"admin","password":"correct horse"}`, http.StatusOK},
		{"wrong password", `{"username":"admin","password":"nope"}`, http.StatusUnauthorized},
		{"wrong user", `{"username":"root","password":"correct horse"}`, http.StatusUnauthorized},
		{"missing fields", `{"username":"admin"}`, http.StatusBadRequest},
		{"invalid json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodPost, "/api/v1/auth/login", tt.body, false)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%v)", resp.StatusCode, tt.wantStatus, body)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			token, _ := body["access_token"].(string)
			if _, err := auth.ParseToken(token, testSecret); err != nil {
				t.Errorf("issued token invalid: %v", err)
			}
			if body["token_type"] != "Bearer" {
				t.Errorf("token_type = %v", body["token_type"])
			}
		})
	}
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	env := newTestEnv(t, nil)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/devices"},
		{http.MethodGet, "/api/v1/devices/" + testMAC},
		{http.MethodGet, "/api/v1/devices/" + testMAC + "/history"},
		{http.MethodPost, "/api/v1/devices/" + testMAC + "/wake"},
		{http.MethodPost, "/api/v1/admin/wifi"},
		{http.MethodPost, "/api/v1/poll"},
		{http.MethodGet, "/api/v1/hosts"},
		{http.MethodPost, "/api/v1/auth/ws-ticket"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			resp, _ := env.do(t, rt.method, rt.path, "", false)
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", resp.StatusCode)
			}
		})
	}

	t.Run("forged token", func(t *testing.T) {
		forged, _, err := auth.GenerateAccessToken("admin", "ffffffffffffffffffffffffffffffff", time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		env.token = forged
		resp, _ := env.do(t, http.MethodGet, "/api/v1/devices", "", true)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})
}

func TestListDevices(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addDevice(t, 2, testMAC, "phone", device.Present)
	env.addDevice(t, 3, "AA:BB:CC:DD:EE:02", "nas", device.Absent)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCount  float64
	}{
		{"all", "", http.StatusOK, 2},
		{"presence kind", "?kind=presence", http.StatusOK, 2},
		{"admin kind", "?kind=admin", http.StatusOK, 0},
		{"present", "?present=true", http.StatusOK, 1},
		{"absent", "?present=false", http.StatusOK, 1},
		{"bad kind", "?kind=light", http.StatusBadRequest, 0},
		{"bad present", "?present=maybe", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodGet, "/api/v1/devices"+tt.query, "", true)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if body["count"] != tt.wantCount {
				t.Errorf("count = %v, want %v", body["count"], tt.wantCount)
			}
			if body["next_poll"] != "2026-10-15T12:05:00Z" {
				t.Errorf("next_poll = %v", body["next_poll"])
			}
		})
	}
}

func TestGetDevice(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addDevice(t, 2, testMAC, "phone", device.Present)

	tests := []struct {
		name       string
		mac        string
		wantStatus int
	}{
		{"canonical", testMAC, http.StatusOK},
		{"dashes lower case", "aa-bb-cc-dd-ee-01", http.StatusOK},
		{"unknown", "AA:BB:CC:DD:EE:99", http.StatusNotFound},
		{"invalid", "not-a-mac", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodGet, "/api/v1/devices/"+tt.mac, "", true)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && body["name"] != "phone" {
				t.Errorf("name = %v, want phone", body["name"])
			}
		})
	}
}

func TestDeviceHistory(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addDevice(t, 2, testMAC, "phone", device.Present)

	base := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		ev := device.Event{
			MAC: testMAC, Name: "phone", Present: i%2 == 0,
			Source: device.SourcePoll, OccurredAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := env.registry.RecordEvent(context.Background(), ev); err != nil {
			t.Fatalf("RecordEvent() error = %v", err)
		}
	}

	resp, body := env.do(t, http.MethodGet, "/api/v1/devices/"+testMAC+"/history?limit=2", "", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["count"] != float64(2) {
		t.Errorf("count = %v, want 2", body["count"])
	}
	events, _ := body["events"].([]any)
	if len(events) > 0 {
		first, _ := events[0].(map[string]any)
		if first["present"] != true {
			t.Errorf("newest event present = %v, want true", first["present"])
		}
	}

	resp, _ = env.do(t, http.MethodGet, "/api/v1/devices/"+testMAC+"/history?limit=0", "", true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d, want 400", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/v1/devices/AA:BB:CC:DD:EE:99/history", "", true)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", resp.StatusCode)
	}
}

func TestWakeDevice(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodPost, "/api/v1/devices/aa:bb:cc:dd:ee:01/wake", "", true)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%v)", resp.StatusCode, body)
	}
	if _, woken, _ := env.bridge.calls(); len(woken) != 1 || woken[0] != testMAC {
		t.Errorf("woken = %v, want [%s]", woken, testMAC)
	}

	env.bridge.setErr(device.ErrDeviceNotFound)
	resp, _ = env.do(t, http.MethodPost, "/api/v1/devices/"+testMAC+"/wake", "", true)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", resp.StatusCode)
	}

	env.bridge.setErr(fmt.Errorf("%w: router said no", presence.ErrWakeFailed))
	resp, _ = env.do(t, http.MethodPost, "/api/v1/devices/"+testMAC+"/wake", "", true)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("router failure status = %d, want 502", resp.StatusCode)
	}
}

func TestAdminActions(t *testing.T) {
	tests := []struct {
		action    string
		wantLevel int
	}{
		{"wifi", bridge.LevelWiFi},
		{"ethernet", bridge.LevelEthernet},
		{"active", bridge.LevelActive},
		{"all", bridge.LevelAll},
		{"remove", bridge.LevelRemove},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			env := newTestEnv(t, nil)
			resp, body := env.do(t, http.MethodPost, "/api/v1/admin/"+tt.action, "", true)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}
			if levels, _, _ := env.bridge.calls(); len(levels) != 1 || levels[0] != tt.wantLevel {
				t.Errorf("levels = %v, want [%d]", levels, tt.wantLevel)
			}
			if body["level"] != float64(tt.wantLevel) {
				t.Errorf("level = %v, want %d", body["level"], tt.wantLevel)
			}
		})
	}

	t.Run("unknown action", func(t *testing.T) {
		env := newTestEnv(t, nil)
		resp, _ := env.do(t, http.MethodPost, "/api/v1/admin/reboot", "", true)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
		if levels, _, _ := env.bridge.calls(); len(levels) != 0 {
			t.Errorf("bridge called with %v", levels)
		}
	})

	t.Run("not started", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.bridge.setErr(bridge.ErrNotStarted)
		resp, _ := env.do(t, http.MethodPost, "/api/v1/admin/all", "", true)
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", resp.StatusCode)
		}
	})
}

func TestPoll(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodPost, "/api/v1/poll", "", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["changed"] != float64(1) || body["hosts"] != float64(3) {
		t.Errorf("body = %v", body)
	}
	if _, _, polls := env.bridge.calls(); polls != 1 {
		t.Errorf("polls = %d, want 1", polls)
	}

	env.bridge.setErr(errors.New("connection refused"))
	resp, _ = env.do(t, http.MethodPost, "/api/v1/poll", "", true)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestListHosts(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCount  float64
	}{
		{"default all", "", http.StatusOK, 2},
		{"active", "?filter=active", http.StatusOK, 1},
		{"unknown filter", "?filter=printers", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodGet, "/api/v1/hosts"+tt.query, "", true)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && body["count"] != tt.wantCount {
				t.Errorf("count = %v, want %v", body["count"], tt.wantCount)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, nil)

	req, _ := http.NewRequest(http.MethodOptions, env.http.URL+"/api/v1/devices", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://dashboard.local" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestStartClose(t *testing.T) {
	env := newTestEnv(t, nil)
	env.server.cfg = config.APIConfig{Host: "127.0.0.1", Port: 0, Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5}}

	if err := env.server.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	resp, err := http.Get("http://" + env.server.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if err := env.server.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
