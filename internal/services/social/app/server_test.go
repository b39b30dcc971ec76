package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/townsquare/internal/platform/authn"
	platformgrpc "github.com/louisbranch/townsquare/internal/platform/grpc"
	"github.com/louisbranch/townsquare/internal/services/social/identity"
	"github.com/louisbranch/townsquare/internal/services/social/storage"
	"github.com/louisbranch/townsquare/internal/services/social/users"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func testConfig(t *testing.T, driver storage.Driver, path string) Config {
	t.Helper()
	return Config{
		HTTPAddr:      "127.0.0.1:0",
		HealthAddr:    "127.0.0.1:0",
		StorageDriver: driver,
		DBPath:        path,
		Tokens: authn.Config{
			Secret: testSecret,
			Issuer: "townsquare-test",
			TTL:    time.Hour,
		},
	}
}

func startServer(t *testing.T, cfg Config) (*Server, func()) {
	t.Helper()

	server, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx)
	}()

	if err := platformgrpc.Probe(context.Background(), server.HealthAddr(), HealthService, 3*time.Second); err != nil {
		cancel()
		t.Fatalf("probe health: %v", err)
	}

	stopped := false
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("serve: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for server to stop")
		}
	}
	t.Cleanup(stop)
	return server, stop
}

func issue(t *testing.T, subject string) string {
	t.Helper()
	tokens, err := authn.New(authn.Config{Secret: testSecret, Issuer: "townsquare-test", TTL: time.Hour})
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	token, err := tokens.Issue(subject)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return token
}

func call(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &payload)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestServerServesHTTPAndHealth(t *testing.T) {
	server, _ := startServer(t, testConfig(t, storage.DriverMemory, ""))
	base := "http://" + server.Addr()

	if resp := call(t, http.MethodGet, base+"/healthz", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
	resp := call(t, http.MethodPost, base+"/v1/users", issue(t, "alice-id"), map[string]string{"username": "alice"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create user status = %d", resp.StatusCode)
	}
	if resp := call(t, http.MethodGet, base+"/metrics", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
}

func TestServerStopsOnCancel(t *testing.T) {
	server, stop := startServer(t, testConfig(t, storage.DriverMemory, ""))
	addr := server.Addr()
	stop()

	client := http.Client{Timeout: 500 * time.Millisecond}
	if resp, err := client.Get("http://" + addr + "/healthz"); err == nil {
		_ = resp.Body.Close()
		t.Fatal("expected request to fail after shutdown")
	}
}

func TestServerPersistsAcrossRestarts(t *testing.T) {
	for _, driver := range []storage.Driver{storage.DriverBolt, storage.DriverSQLite} {
		t.Run(string(driver), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "social.db")

			server, stop := startServer(t, testConfig(t, driver, path))
			resp := call(t, http.MethodPost, "http://"+server.Addr()+"/v1/users", issue(t, "alice-id"), map[string]string{"username": "alice"})
			if resp.StatusCode != http.StatusCreated {
				t.Fatalf("create user status = %d", resp.StatusCode)
			}
			stop()

			server, _ = startServer(t, testConfig(t, driver, path))
			resp = call(t, http.MethodGet, "http://"+server.Addr()+"/v1/usernames/alice", "", nil)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("lookup status = %d", resp.StatusCode)
			}
			var profile users.UserProfile
			if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if profile.Identity != identity.Identity("alice-id") {
				t.Fatalf("identity = %q, want alice-id", profile.Identity)
			}
		})
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig(t, storage.DriverMemory, "")
	cfg.Tokens.Secret = []byte("short")
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error for short token secret")
	}

	cfg = testConfig(t, storage.DriverBolt, "")
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error for missing db path")
	}
}

func TestNilServer(t *testing.T) {
	var server *Server
	if server.Addr() != "" || server.HealthAddr() != "" {
		t.Fatal("expected empty addresses")
	}
	if err := server.Serve(context.Background()); err == nil {
		t.Fatal("expected error for nil server")
	}
	server.Close()
}
