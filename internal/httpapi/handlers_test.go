package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"orgdesk.org/internal/auth"
	"orgdesk.org/internal/org"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
	users   *auth.MemoryUserStore
	revoked *auth.MemoryRevocationStore
}

type testOption func(*Deps)

func withThrottle(limit int, window time.Duration) testOption {
	return func(d *Deps) {
		d.ThrottleLimit = limit
		d.ThrottleWindow = window
	}
}

func newTestAPI(t *testing.T, opts ...testOption) *apiClient {
	t.Helper()

	codec, err := auth.NewTokenCodec("test-secret", auth.WithIssuer("test"))
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	users := auth.NewMemoryUserStore()
	revocations := auth.NewMemoryRevocationStore(codec)
	hasher := &auth.Argon2Hasher{Memory: 1024, Iterations: 1, Parallelism: 1, KeyLength: 32, SaltLength: 16}
	svc, err := auth.NewService(users, revocations, codec, auth.WithHasher(hasher))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	guard := auth.NewGuard(codec, revocations, users, auth.WithPublicOperations(PublicOperations()...))

	deps := Deps{
		Auth:           svc,
		Guard:          guard,
		Org:            org.NewService(org.NewMemoryStore()),
		Version:        "test",
		ThrottleLimit:  1000,
		ThrottleWindow: time.Minute,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	api, err := New(deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{baseURL: srv.URL, client: srv.Client(), t: t, users: users, revoked: revocations}
}

func (c *apiClient) do(method, path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) register(username, password string) auth.AuthResult {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/auth/register", auth.RegisterInput{Username: username, Password: password}, "")
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("register %s: status %d", username, resp.StatusCode)
	}
	return decode[auth.AuthResult](c.t, resp)
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectError(t *testing.T, resp *http.Response, status int, code, message string) errorBody {
	t.Helper()
	if resp.StatusCode != status {
		resp.Body.Close()
		t.Fatalf("status=%d want %d", resp.StatusCode, status)
	}
	body := decode[errorBody](t, resp)
	if body.Error.Code != code {
		t.Fatalf("code=%q want %q", body.Error.Code, code)
	}
	if message != "" && body.Error.Message != message {
		t.Fatalf("message=%q want %q", body.Error.Message, message)
	}
	if body.RequestID == "" {
		t.Fatal("missing request_id")
	}
	return body
}

func TestRegisterLoginMe(t *testing.T) {
	c := newTestAPI(t)
	reg := c.register("alice", "secret1")
	if reg.AccessToken == "" || reg.User.Username != "alice" {
		t.Fatalf("unexpected register result: %+v", reg)
	}

	resp := c.do(http.MethodPost, "/auth/login", auth.LoginInput{Username: "alice", Password: "secret1"}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}
	login := decode[auth.AuthResult](t, resp)

	resp = c.do(http.MethodGet, "/auth/me", nil, login.AccessToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status %d", resp.StatusCode)
	}
	raw := decode[map[string]any](t, resp)
	if raw["username"] != "alice" {
		t.Fatalf("unexpected me: %v", raw)
	}
	if _, leaked := raw["passwordHash"]; leaked {
		t.Fatal("password hash exposed")
	}
}

func TestRegisterErrors(t *testing.T) {
	c := newTestAPI(t)
	c.register("alice", "secret1")

	resp := c.do(http.MethodPost, "/auth/register", auth.RegisterInput{Username: "alice", Password: "another"}, "")
	expectError(t, resp, http.StatusConflict, "CONFLICT", "User with this username already exists")

	resp = c.do(http.MethodPost, "/auth/register", auth.RegisterInput{Username: "al", Password: "secret1"}, "")
	body := expectError(t, resp, http.StatusBadRequest, "VALIDATION_ERROR", "")
	if body.Error.Details == nil || len(body.Error.Details.Fields) == 0 || body.Error.Details.Fields[0].Field != "username" {
		t.Fatalf("unexpected details: %+v", body.Error.Details)
	}

	resp = c.do(http.MethodPost, "/auth/register", map[string]any{"username": "bob", "password": "secret1", "role": "admin"}, "")
	expectError(t, resp, http.StatusBadRequest, "VALIDATION_ERROR", "")
}

func TestLoginInvalidCredentials(t *testing.T) {
	c := newTestAPI(t)
	c.register("alice", "secret1")

	resp := c.do(http.MethodPost, "/auth/login", auth.LoginInput{Username: "alice", Password: "wrong!"}, "")
	expectError(t, resp, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid credentials")

	resp = c.do(http.MethodPost, "/auth/login", auth.LoginInput{Username: "nobody", Password: "secret1"}, "")
	expectError(t, resp, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid credentials")
}

func TestGuardRejections(t *testing.T) {
	c := newTestAPI(t)

	resp := c.do(http.MethodGet, "/departments", nil, "")
	expectError(t, resp, http.StatusUnauthorized, "UNAUTHORIZED", "No token provided")

	resp = c.do(http.MethodGet, "/departments", nil, "not-a-jwt")
	expectError(t, resp, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")

	reg := c.register("ghost", "secret1")
	c.users.Delete(reg.User.ID)
	resp = c.do(http.MethodGet, "/auth/me", nil, reg.AccessToken)
	expectError(t, resp, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
}

func TestLogoutRevokesToken(t *testing.T) {
	c := newTestAPI(t)
	reg := c.register("alice", "secret1")

	resp := c.do(http.MethodPost, "/auth/logout", nil, "")
	expectError(t, resp, http.StatusUnauthorized, "UNAUTHORIZED", "No token provided")

	for i := 0; i < 2; i++ {
		resp = c.do(http.MethodPost, "/auth/logout", nil, reg.AccessToken)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("logout #%d status %d", i+1, resp.StatusCode)
		}
		if !decode[successResponse](t, resp).Success {
			t.Fatalf("logout #%d not successful", i+1)
		}
	}

	resp = c.do(http.MethodGet, "/departments", nil, reg.AccessToken)
	expectError(t, resp, http.StatusUnauthorized, "UNAUTHORIZED", "Token has been revoked")

	if c.revoked.Len() != 1 {
		t.Fatalf("blacklist entries=%d want 1", c.revoked.Len())
	}
}

func TestLogoutRejectsForeignTokens(t *testing.T) {
	c := newTestAPI(t)

	attacker, err := auth.NewTokenCodec("attacker-key", auth.WithIssuer("test"), auth.WithTokenTTL(24*365*time.Hour))
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	for i := 0; i < 5; i++ {
		forged, _, err := attacker.Sign(int64(i+1), "mallory")
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		resp := c.do(http.MethodPost, "/auth/logout", nil, forged)
		expectError(t, resp, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
	}
	resp := c.do(http.MethodPost, "/auth/logout", nil, "garbage")
	expectError(t, resp, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")

	if c.revoked.Len() != 0 {
		t.Fatalf("foreign tokens reached the blacklist: %d", c.revoked.Len())
	}
}

func TestDepartmentOwnershipFlow(t *testing.T) {
	c := newTestAPI(t)
	alice := c.register("alice", "secret1").AccessToken
	bob := c.register("bob", "secret1").AccessToken

	resp := c.do(http.MethodPost, "/departments", org.CreateDepartmentInput{
		Name:           "Engineering",
		SubDepartments: []org.SubDepartmentInput{{Name: "Backend"}, {Name: "Frontend"}},
	}, alice)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d", resp.StatusCode)
	}
	dept := decode[org.Department](t, resp)
	if len(dept.SubDepartments) != 2 {
		t.Fatalf("expected 2 sub-departments, got %+v", dept.SubDepartments)
	}
	deptPath := fmt.Sprintf("/departments/%d", dept.ID)

	resp = c.do(http.MethodGet, deptPath, nil, bob)
	expectError(t, resp, http.StatusNotFound, "NOT_FOUND", "Department not found")

	resp = c.do(http.MethodPut, deptPath, renameRequest{Name: "Hijacked"}, bob)
	expectError(t, resp, http.StatusForbidden, "FORBIDDEN", "You do not have permission to update this department")

	resp = c.do(http.MethodDelete, deptPath, nil, bob)
	expectError(t, resp, http.StatusForbidden, "FORBIDDEN", "You do not have permission to delete this department")

	resp = c.do(http.MethodPost, "/sub-departments", org.CreateSubDepartmentInput{DepartmentID: dept.ID, Name: "Shadow"}, bob)
	expectError(t, resp, http.StatusForbidden, "FORBIDDEN", "")

	resp = c.do(http.MethodGet, "/departments", nil, bob)
	if list := decode[[]org.Department](t, resp); len(list) != 0 {
		t.Fatalf("bob sees %d departments", len(list))
	}

	resp = c.do(http.MethodPut, deptPath, renameRequest{Name: "Platform"}, alice)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status %d", resp.StatusCode)
	}
	if got := decode[org.Department](t, resp); got.Name != "Platform" {
		t.Fatalf("name=%q", got.Name)
	}

	resp = c.do(http.MethodDelete, deptPath, nil, alice)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.do(http.MethodGet, fmt.Sprintf("/sub-departments/%d", dept.SubDepartments[0].ID), nil, alice)
	expectError(t, resp, http.StatusNotFound, "NOT_FOUND", "Sub-department not found")

	resp = c.do(http.MethodGet, "/sub-departments", nil, alice)
	if list := decode[[]org.SubDepartment](t, resp); len(list) != 0 {
		t.Fatalf("cascade left %d sub-departments", len(list))
	}
}

func TestInvalidPathID(t *testing.T) {
	c := newTestAPI(t)
	token := c.register("alice", "secret1").AccessToken

	resp := c.do(http.MethodGet, "/departments/abc", nil, token)
	expectError(t, resp, http.StatusNotFound, "NOT_FOUND", "Invalid department ID")

	resp = c.do(http.MethodDelete, "/sub-departments/0", nil, token)
	expectError(t, resp, http.StatusNotFound, "NOT_FOUND", "Invalid sub-department ID")
}

func TestOpsEndpointsArePublic(t *testing.T) {
	c := newTestAPI(t)
	for _, path := range []string{"/healthz", "/readyz", "/v1/info", "/metrics"} {
		resp := c.do(http.MethodGet, path, nil, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp := c.do(http.MethodGet, "/nope", nil, "")
	expectError(t, resp, http.StatusNotFound, "NOT_FOUND", "")
}

func TestAuthEndpointsAreThrottled(t *testing.T) {
	c := newTestAPI(t, withThrottle(2, time.Minute))
	for i := 0; i < 2; i++ {
		resp := c.do(http.MethodPost, "/auth/login", auth.LoginInput{Username: "x", Password: "y"}, "")
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			t.Fatalf("request %d throttled too early", i+1)
		}
	}
	resp := c.do(http.MethodPost, "/auth/login", auth.LoginInput{Username: "x", Password: "y"}, "")
	expectError(t, resp, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "")
}

func TestThrottleIgnoresSpoofedForwardedFor(t *testing.T) {
	c := newTestAPI(t, withThrottle(2, time.Minute))
	body, _ := json.Marshal(auth.LoginInput{Username: "x", Password: "y"})

	throttled := 0
	for i := 1; i <= 6; i++ {
		req, err := http.NewRequest(http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		resp, err := c.client.Do(req)
		if err != nil {
			t.Fatalf("do request: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			throttled++
		}
	}
	if throttled != 4 {
		t.Fatalf("expected 4 throttled logins, got %d", throttled)
	}
}
