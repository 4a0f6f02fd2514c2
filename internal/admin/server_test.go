package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ferrodb/shardgate/internal/ban"
	"github.com/ferrodb/shardgate/internal/config"
	"github.com/ferrodb/shardgate/internal/topology"
)

func buildServerFixture(t *testing.T, secret string) (*topology.Topology, *ban.Registry, *Server) {
	t.Helper()

	shards := [][]*topology.Endpoint{
		{
			{Host: "db-0", Port: 5432, Shard: 0, Role: topology.RolePrimary},
			{Host: "db-0-r1", Port: 5432, Shard: 0, Role: topology.RoleReplica},
			{Host: "db-0-r2", Port: 5432, Shard: 0, Role: topology.RoleReplica},
		},
	}
	topo, err := topology.New(shards)
	if err != nil {
		t.Fatalf("failed to build topology: %v", err)
	}

	registry, err := ban.New(topo.Shards(), false, 60, nil)
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}

	cfg := &config.AdminConfig{
		Address:      ":0",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		JWTSecret:    secret,
	}
	return topo, registry, NewServer(cfg, topo, registry, nil, nil, nil, nil)
}

func doRequest(t *testing.T, server *Server, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)
	return recorder
}

func TestHealthz(t *testing.T) {
	_, _, server := buildServerFixture(t, "")

	resp := doRequest(t, server, http.MethodGet, "/healthz", "", "")
	if resp.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.Code)
	}
}

func TestListBans(t *testing.T) {
	topo, registry, server := buildServerFixture(t, "")

	resp := doRequest(t, server, http.MethodGet, "/v1/bans", "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Bans []banEntry `json:"bans"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Bans) != 0 {
		t.Errorf("expected empty ban list, got %v", body.Bans)
	}

	registry.Ban(topo.Replicas(0)[0], ban.FailedHealthCheck(), nil)

	resp = doRequest(t, server, http.MethodGet, "/v1/bans", "", "")
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Bans) != 1 {
		t.Fatalf("expected 1 ban, got %d", len(body.Bans))
	}
	if body.Bans[0].Host != "db-0-r1" || body.Bans[0].Reason != "failed_health_check" {
		t.Errorf("unexpected ban entry: %+v", body.Bans[0])
	}
}

func TestAdminBan(t *testing.T) {
	topo, registry, server := buildServerFixture(t, "")

	resp := doRequest(t, server, http.MethodPost, "/v1/bans",
		`{"host":"db-0-r1","port":5432,"shard":0,"duration_seconds":30}`, "")
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	replica := topo.Lookup(0, "db-0-r1", 5432)
	if !registry.IsBanned(replica) {
		t.Error("expected replica to be banned")
	}

	bans := registry.Bans()
	if len(bans) != 1 || bans[0].Reason != ban.AdminBan(30) {
		t.Errorf("expected an admin_ban(30s) record, got %v", bans)
	}
}

func TestAdminBanRejectsPrimary(t *testing.T) {
	_, registry, server := buildServerFixture(t, "")

	resp := doRequest(t, server, http.MethodPost, "/v1/bans",
		`{"host":"db-0","port":5432,"shard":0,"duration_seconds":30}`, "")
	if resp.Code != http.StatusConflict {
		t.Errorf("expected 409 for primary, got %d", resp.Code)
	}
	if len(registry.Bans()) != 0 {
		t.Error("expected no ban to be recorded")
	}
}

func TestAdminBanValidation(t *testing.T) {
	_, _, server := buildServerFixture(t, "")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"unknown endpoint", `{"host":"nope","port":1,"shard":0,"duration_seconds":30}`, http.StatusNotFound},
		{"out of range shard", `{"host":"db-0-r1","port":5432,"shard":9,"duration_seconds":30}`, http.StatusNotFound},
		{"missing duration", `{"host":"db-0-r1","port":5432,"shard":0}`, http.StatusBadRequest},
		{"malformed body", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, server, http.MethodPost, "/v1/bans", tt.body, "")
			if resp.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, resp.Code)
			}
		})
	}
}

func TestAdminUnban(t *testing.T) {
	topo, registry, server := buildServerFixture(t, "")
	replica := topo.Replicas(0)[0]
	registry.Ban(replica, ban.StatementTimeout(), nil)

	resp := doRequest(t, server, http.MethodDelete, "/v1/bans",
		`{"host":"db-0-r1","port":5432,"shard":0}`, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if registry.IsBanned(replica) {
		t.Error("expected replica to be unbanned")
	}

	// Unban is idempotent; repeating it succeeds.
	resp = doRequest(t, server, http.MethodDelete, "/v1/bans",
		`{"host":"db-0-r1","port":5432,"shard":0}`, "")
	if resp.Code != http.StatusOK {
		t.Errorf("expected 200 on repeated unban, got %d", resp.Code)
	}
}

func TestJWTAuth(t *testing.T) {
	const secret = "test-secret"
	topo, registry, server := buildServerFixture(t, secret)

	// Reads stay open.
	if resp := doRequest(t, server, http.MethodGet, "/v1/bans", "", ""); resp.Code != http.StatusOK {
		t.Errorf("expected unauthenticated reads to pass, got %d", resp.Code)
	}

	// Mutations without a token are rejected.
	resp := doRequest(t, server, http.MethodPost, "/v1/bans",
		`{"host":"db-0-r1","port":5432,"shard":0,"duration_seconds":30}`, "")
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.Code)
	}

	// A token signed with the wrong key is rejected.
	badToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	resp = doRequest(t, server, http.MethodPost, "/v1/bans",
		`{"host":"db-0-r1","port":5432,"shard":0,"duration_seconds":30}`, badToken)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with bad token, got %d", resp.Code)
	}

	// A valid token passes.
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	resp = doRequest(t, server, http.MethodPost, "/v1/bans",
		`{"host":"db-0-r1","port":5432,"shard":0,"duration_seconds":30}`, token)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 with valid token, got %d: %s", resp.Code, resp.Body.String())
	}
	if !registry.IsBanned(topo.Replicas(0)[0]) {
		t.Error("expected replica to be banned")
	}
}
