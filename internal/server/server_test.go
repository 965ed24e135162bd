package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"taskboard/internal/session"
	"taskboard/internal/store"
	"taskboard/internal/store/docstore"
	"taskboard/internal/task"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	backend, err := docstore.Open(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("could not open backend: %v", err)
	}
	sessions := session.NewManager("test-secret")
	tasks := task.NewService(backend, nil, zerolog.Nop())
	return New(backend, tasks, sessions, zerolog.Nop())
}

// client drives the server through the full middleware chain while carrying
// session cookies between requests, like a browser would.
type client struct {
	t       *testing.T
	srv     *Server
	cookies map[string]*http.Cookie
}

func newClient(t *testing.T, srv *Server) *client {
	return &client{t: t, srv: srv, cookies: map[string]*http.Cookie{}}
}

func (c *client) do(method, path, contentType string, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rr := httptest.NewRecorder()
	c.srv.ServeHTTP(rr, req)
	for _, ck := range rr.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
	return rr
}

func (c *client) postForm(path string, values url.Values) *httptest.ResponseRecorder {
	return c.do(http.MethodPost, path, "application/x-www-form-urlencoded", values.Encode())
}

func (c *client) json(method, path, body string) *httptest.ResponseRecorder {
	return c.do(method, path, "application/json", body)
}

func (c *client) register(username, password string) {
	c.t.Helper()
	rr := c.postForm("/register", url.Values{
		"username":         {username},
		"password":         {password},
		"confirm_password": {password},
	})
	if rr.Code != http.StatusFound {
		c.t.Fatalf("registration of %s failed: status %d, body %s", username, rr.Code, rr.Body.String())
	}
}

func decodeTask(t *testing.T, rr *httptest.ResponseRecorder) store.Task {
	t.Helper()
	var task store.Task
	if err := json.NewDecoder(rr.Body).Decode(&task); err != nil {
		t.Fatalf("could not decode task: %v", err)
	}
	return task
}

func TestFullFlow(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t, srv)

	c.register("alice", "secret1")

	rr := c.json(http.MethodGet, "/api/tasks", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 listing tasks; got %d", rr.Code)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Errorf("expected empty array for new user; got %s", body)
	}

	rr = c.json(http.MethodPost, "/api/tasks", `{"text": "buy milk"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201; got %d, body %s", rr.Code, rr.Body.String())
	}
	created := decodeTask(t, rr)
	if created.ID != 1 || created.Completed || created.Priority != store.PriorityMedium {
		t.Errorf("unexpected created task: %+v", created)
	}

	rr = c.json(http.MethodPut, "/api/tasks/1", `{"completed": true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 updating task; got %d", rr.Code)
	}
	updated := decodeTask(t, rr)
	if !updated.Completed || updated.Text != "buy milk" {
		t.Errorf("unexpected updated task: %+v", updated)
	}

	rr = c.json(http.MethodDelete, "/api/tasks/clear-completed", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 clearing; got %d", rr.Code)
	}
	var cleared map[string]int
	if err := json.NewDecoder(rr.Body).Decode(&cleared); err != nil {
		t.Fatalf("could not decode clear response: %v", err)
	}
	if cleared["removed"] != 1 {
		t.Errorf("expected removed count 1; got %d", cleared["removed"])
	}

	rr = c.json(http.MethodGet, "/api/tasks", "")
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Errorf("expected empty list after clear; got %s", body)
	}
}

func TestAPIRequiresAuthentication(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t, srv)

	testCases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/tasks"},
		{http.MethodPost, "/api/tasks"},
		{http.MethodPut, "/api/tasks/1"},
		{http.MethodDelete, "/api/tasks/1"},
		{http.MethodDelete, "/api/tasks/clear-completed"},
		{http.MethodGet, "/api/user"},
	}
	for _, tc := range testCases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rr := c.json(tc.method, tc.path, "")
			if rr.Code != http.StatusUnauthorized {
				t.Errorf("expected 401; got %d", rr.Code)
			}
			if !strings.Contains(rr.Body.String(), `"error"`) {
				t.Errorf("expected uniform error payload; got %s", rr.Body.String())
			}
		})
	}
}

func TestRegisterValidation(t *testing.T) {
	testCases := []struct {
		name          string
		password      string
		confirm       string
		expectedError string
	}{
		{"too short", "abc12", "abc12", "at least 6"},
		{"mismatch", "secret1", "secret2", "do not match"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := newClient(t, newTestServer(t))
			rr := c.postForm("/register", url.Values{
				"username":         {"alice"},
				"password":         {tc.password},
				"confirm_password": {tc.confirm},
			})
			if rr.Code != http.StatusOK {
				t.Fatalf("expected re-rendered form; got %d", rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tc.expectedError) {
				t.Errorf("expected inline error %q; got %s", tc.expectedError, rr.Body.String())
			}
			// Nothing persisted: the name is still free.
			c.register("alice", "secret1")
		})
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	srv := newTestServer(t)
	first := newClient(t, srv)
	first.register("alice", "secret1")

	second := newClient(t, srv)
	rr := second.postForm("/register", url.Values{
		"username":         {"alice"},
		"password":         {"other-password"},
		"confirm_password": {"other-password"},
	})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "already exists") {
		t.Fatalf("expected duplicate-user error; got %d, %s", rr.Code, rr.Body.String())
	}

	// The original credential still works.
	third := newClient(t, srv)
	login := third.postForm("/login", url.Values{
		"username": {"alice"},
		"password": {"secret1"},
	})
	if login.Code != http.StatusFound {
		t.Errorf("original credential broken by duplicate attempt: %d", login.Code)
	}
}

func TestLoginWrongCredentials(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t, srv)
	c.register("alice", "secret1")

	testCases := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "alice", "wrong"},
		{"unknown user", "nobody", "secret1"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fresh := newClient(t, srv)
			rr := fresh.postForm("/login", url.Values{
				"username": {tc.username},
				"password": {tc.password},
			})
			if rr.Code != http.StatusOK {
				t.Fatalf("expected re-rendered form; got %d", rr.Code)
			}
			if !strings.Contains(rr.Body.String(), "invalid username or password") {
				t.Errorf("expected uniform credential error; got %s", rr.Body.String())
			}
		})
	}
}

func TestLogoutEndsSession(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t, srv)
	c.register("alice", "secret1")

	rr := c.do(http.MethodGet, "/logout", "", "")
	if rr.Code != http.StatusFound {
		t.Fatalf("expected redirect on logout; got %d", rr.Code)
	}
	rr = c.json(http.MethodGet, "/api/tasks", "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout; got %d", rr.Code)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t, srv)
	c.register("alice", "secret1")

	testCases := []struct {
		name string
		body string
	}{
		{"missing text", `{}`},
		{"empty text", `{"text": ""}`},
		{"unknown field", `{"text": "ok", "color": "red"}`},
		{"bad priority", `{"text": "ok", "priority": "urgent"}`},
		{"malformed json", `{"text": "ok"`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := c.json(http.MethodPost, "/api/tasks", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("expected 400; got %d, body %s", rr.Code, rr.Body.String())
			}
		})
	}

	rr := c.json(http.MethodGet, "/api/tasks", "")
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Errorf("rejected creates must not persist; got %s", body)
	}
}

func TestTaskNotFound(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t, srv)
	c.register("alice", "secret1")

	rr := c.json(http.MethodPut, "/api/tasks/99", `{"completed": true}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 updating absent task; got %d", rr.Code)
	}
	rr = c.json(http.MethodDelete, "/api/tasks/99", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 deleting absent task; got %d", rr.Code)
	}
	rr = c.json(http.MethodDelete, "/api/tasks/abc", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed id; got %d", rr.Code)
	}
}

func TestOwnerIsolation(t *testing.T) {
	srv := newTestServer(t)

	alice := newClient(t, srv)
	alice.register("alice", "secret1")
	rr := alice.json(http.MethodPost, "/api/tasks", `{"text": "private"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create failed: %d", rr.Code)
	}

	bob := newClient(t, srv)
	bob.register("bob", "secret2")

	rr = bob.json(http.MethodGet, "/api/tasks", "")
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Errorf("bob sees alice's tasks: %s", body)
	}
	rr = bob.json(http.MethodPut, "/api/tasks/1", `{"completed": true}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected foreign task to look absent; got %d", rr.Code)
	}
	rr = bob.json(http.MethodDelete, "/api/tasks/1", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected foreign delete to look absent; got %d", rr.Code)
	}

	rr = alice.json(http.MethodGet, "/api/tasks", "")
	if !strings.Contains(rr.Body.String(), `"private"`) {
		t.Errorf("alice's task disappeared: %s", rr.Body.String())
	}
}

func TestIndexPage(t *testing.T) {
	srv := newTestServer(t)

	anonymous := newClient(t, srv)
	rr := anonymous.do(http.MethodGet, "/", "", "")
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/login" {
		t.Errorf("expected redirect to /login; got %d -> %q", rr.Code, rr.Header().Get("Location"))
	}

	c := newClient(t, srv)
	c.register("alice", "secret1")
	rr = c.do(http.MethodGet, "/", "", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "alice") {
		t.Errorf("expected index page with username; got %d", rr.Code)
	}
}

func TestGetUser(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t, srv)
	c.register("alice", "secret1")

	rr := c.json(http.MethodGet, "/api/user", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200; got %d", rr.Code)
	}
	var u map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&u); err != nil {
		t.Fatalf("could not decode user: %v", err)
	}
	if u["username"] != "alice" {
		t.Errorf("expected username alice; got %v", u["username"])
	}
	if _, ok := u["password_hash"]; ok {
		t.Error("password hash must never be serialized")
	}
}
