package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"jirahooks/pkg/reconcile"
	"jirahooks/pkg/tracker"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	auth   string
	body   string
}

// fakeJira serves canned responses keyed by "METHOD /path".
type fakeJira struct {
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
	requests []recordedRequest
}

func (f *fakeJira) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	f.requests = append(f.requests, recordedRequest{
		method: r.Method,
		path:   r.URL.Path,
		query:  r.URL.RawQuery,
		auth:   r.Header.Get("Authorization"),
		body:   string(raw),
	})
	handler, ok := f.routes[r.Method+" "+r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errorMessages":["not found"]}`))
		return
	}
	handler(w, r)
}

func writeJSON(status int, v interface{}) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
}

func newTestClient(t *testing.T, fake *fakeJira, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL + "/"
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

var alice = tracker.Identity{Name: "alice", Email: "alice@example.com"}

// TestNewClientRequiresBaseURL tests that an empty base URL is rejected.
func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "  "}); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}

// TestFindIssue tests issue lookup and the not-found path.
func TestFindIssue(t *testing.T) {
	fake := &fakeJira{routes: map[string]func(http.ResponseWriter, *http.Request){
		"GET /rest/api/2/issue/ABC-1": writeJSON(http.StatusOK, map[string]interface{}{
			"id":  "10001",
			"key": "ABC-1",
			"fields": map[string]interface{}{
				"summary": "Broken build",
				"status":  map[string]string{"name": "Open"},
			},
		}),
	}}
	client := newTestClient(t, fake, Config{Username: "svc", Token: "secret", AllowServiceAccount: true})

	result, err := client.FindIssue(context.Background(), alice, "ABC-1")
	if err != nil {
		t.Fatalf("find issue: %v", err)
	}
	if !result.IsValid() || result.Issue == nil {
		t.Fatalf("expected valid result, got %+v", result)
	}
	if result.Issue.ID != "10001" || result.Issue.Status != "Open" || result.Issue.Summary != "Broken build" {
		t.Fatalf("unexpected issue: %+v", result.Issue)
	}
	if !strings.HasPrefix(fake.requests[0].auth, "Basic ") {
		t.Fatalf("expected basic auth, got %q", fake.requests[0].auth)
	}

	missing, err := client.FindIssue(context.Background(), alice, "ABC-2")
	if err != nil {
		t.Fatalf("find missing issue: %v", err)
	}
	if missing.IsValid() || missing.Issue != nil {
		t.Fatalf("expected invalid result for missing issue, got %+v", missing)
	}
	if msgs := missing.ErrorMessages(); len(msgs) != 1 || msgs[0] != "not found" {
		t.Fatalf("unexpected messages: %v", msgs)
	}
}

// TestListAvailableTransitionsKeepsOrder tests that transitions are returned in Jira's order.
func TestListAvailableTransitionsKeepsOrder(t *testing.T) {
	fake := &fakeJira{routes: map[string]func(http.ResponseWriter, *http.Request){
		"GET /rest/api/2/issue/10001/transitions": writeJSON(http.StatusOK, map[string]interface{}{
			"transitions": []map[string]string{
				{"id": "5", "name": "Resolve as Fixed"},
				{"id": "x", "name": "Broken"},
				{"id": "2", "name": "Close"},
			},
		}),
	}}
	client := newTestClient(t, fake, Config{Token: "pat", AllowServiceAccount: true})

	got, err := client.ListAvailableTransitions(context.Background(), tracker.Issue{ID: "10001", Key: "ABC-1"}, alice)
	if err != nil {
		t.Fatalf("list transitions: %v", err)
	}
	if len(got) != 2 || got[0].ID != 5 || got[1].Name != "Close" {
		t.Fatalf("unexpected transitions: %+v", got)
	}
	if fake.requests[0].auth != "Bearer pat" {
		t.Fatalf("expected service bearer token, got %q", fake.requests[0].auth)
	}
}

// TestValidateTransition tests availability and required field checks.
func TestValidateTransition(t *testing.T) {
	fake := &fakeJira{routes: map[string]func(http.ResponseWriter, *http.Request){
		"GET /rest/api/2/issue/10001/transitions": writeJSON(http.StatusOK, map[string]interface{}{
			"transitions": []map[string]interface{}{
				{"id": "5", "name": "Resolve", "fields": map[string]interface{}{
					"resolution": map[string]interface{}{"name": "Resolution", "required": true, "hasDefaultValue": true},
				}},
				{"id": "7", "name": "Reject", "fields": map[string]interface{}{
					"customfield_1": map[string]interface{}{"name": "Reason", "required": true},
				}},
			},
		}),
	}}
	client := newTestClient(t, fake, Config{Token: "pat", AllowServiceAccount: true})
	ctx := context.Background()

	ok, err := client.ValidateTransition(ctx, alice, "10001", 5)
	if err != nil || !ok.IsValid() {
		t.Fatalf("expected valid transition, got %+v err=%v", ok, err)
	}
	if !strings.Contains(fake.requests[0].query, "expand=transitions.fields") {
		t.Fatalf("expected fields expansion, got %q", fake.requests[0].query)
	}

	required, err := client.ValidateTransition(ctx, alice, "10001", 7)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if required.IsValid() || !strings.Contains(required.Messages[0], "Reason") {
		t.Fatalf("expected required field error, got %+v", required)
	}

	gone, err := client.ValidateTransition(ctx, alice, "10001", 99)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if gone.IsValid() {
		t.Fatalf("expected unavailable transition to be invalid")
	}
}

// TestExecuteTransitionPostsID tests the transition request body.
func TestExecuteTransitionPostsID(t *testing.T) {
	fake := &fakeJira{routes: map[string]func(http.ResponseWriter, *http.Request){
		"POST /rest/api/2/issue/10001/transitions": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		},
	}}
	client := newTestClient(t, fake, Config{Token: "pat", AllowServiceAccount: true})

	result, err := client.ExecuteTransition(context.Background(), alice, tracker.TransitionValidation{IssueID: "10001", TransitionID: 5})
	if err != nil || !result.IsValid() {
		t.Fatalf("expected success, got %+v err=%v", result, err)
	}
	if body := fake.requests[0].body; !strings.Contains(body, `"id":"5"`) {
		t.Fatalf("unexpected body: %s", body)
	}

	invalid := tracker.TransitionValidation{IssueID: "10001", TransitionID: 5}
	invalid.Add("nope")
	result, err = client.ExecuteTransition(context.Background(), alice, invalid)
	if err != nil || result.IsValid() {
		t.Fatalf("expected invalid validation to short-circuit, got %+v err=%v", result, err)
	}
	if len(fake.requests) != 1 {
		t.Fatalf("expected no request for invalid validation, got %d", len(fake.requests))
	}
}

// TestExecuteTransitionFailure tests that Jira error envelopes surface as messages.
func TestExecuteTransitionFailure(t *testing.T) {
	fake := &fakeJira{routes: map[string]func(http.ResponseWriter, *http.Request){
		"POST /rest/api/2/issue/10001/transitions": writeJSON(http.StatusBadRequest, map[string]interface{}{
			"errorMessages": []string{"workflow blocked"},
			"errors":        map[string]string{"b": "second", "a": "first"},
		}),
	}}
	client := newTestClient(t, fake, Config{Token: "pat", AllowServiceAccount: true})

	result, err := client.ExecuteTransition(context.Background(), alice, tracker.TransitionValidation{IssueID: "10001", TransitionID: 5})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	want := []string{"workflow blocked", "a: first", "b: second"}
	got := result.ErrorMessages()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

// TestCommentFlow tests comment validation and posting with visibility.
func TestCommentFlow(t *testing.T) {
	fake := &fakeJira{routes: map[string]func(http.ResponseWriter, *http.Request){
		"GET /rest/api/2/mypermissions": writeJSON(http.StatusOK, map[string]interface{}{
			"permissions": map[string]interface{}{
				"ADD_COMMENTS": map[string]bool{"havePermission": true},
			},
		}),
		"POST /rest/api/2/issue/10001/comment": writeJSON(http.StatusCreated, map[string]string{"id": "1"}),
	}}
	client := newTestClient(t, fake, Config{
		Token:                 "pat",
		UserTokens:            map[string]string{"alice": "alice-pat"},
		CommentVisibilityRole: "Developers",
	})
	ctx := context.Background()

	params := client.NewCommentUpdate("[git commit abc|url]\nfix")
	if params.VisibilityRole != "Developers" {
		t.Fatalf("expected visibility role, got %+v", params)
	}
	validation, err := client.ValidateUpdate(ctx, alice, "10001", params)
	if err != nil || !validation.IsValid() {
		t.Fatalf("expected valid update, got %+v err=%v", validation, err)
	}
	result, err := client.ExecuteUpdate(ctx, alice, validation)
	if err != nil || !result.IsValid() {
		t.Fatalf("expected comment added, got %+v err=%v", result, err)
	}

	post := fake.requests[len(fake.requests)-1]
	if post.auth != "Bearer alice-pat" {
		t.Fatalf("expected per-user token, got %q", post.auth)
	}
	var body struct {
		Body       string            `json:"body"`
		Visibility map[string]string `json:"visibility"`
	}
	if err := json.Unmarshal([]byte(post.body), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Body != "[git commit abc|url]\nfix" || body.Visibility["value"] != "Developers" {
		t.Fatalf("unexpected comment body: %+v", body)
	}
}

// TestValidateUpdateRejectsEmptyAndForbidden tests comment validation failures.
func TestValidateUpdateRejectsEmptyAndForbidden(t *testing.T) {
	fake := &fakeJira{routes: map[string]func(http.ResponseWriter, *http.Request){
		"GET /rest/api/2/mypermissions": writeJSON(http.StatusOK, map[string]interface{}{
			"permissions": map[string]interface{}{
				"ADD_COMMENTS": map[string]bool{"havePermission": false},
			},
		}),
	}}
	client := newTestClient(t, fake, Config{Token: "pat", AllowServiceAccount: true})
	ctx := context.Background()

	empty, err := client.ValidateUpdate(ctx, alice, "10001", client.NewCommentUpdate("  "))
	if err != nil || empty.IsValid() {
		t.Fatalf("expected empty comment to be invalid, got %+v err=%v", empty, err)
	}
	if len(fake.requests) != 0 {
		t.Fatalf("expected no request for empty comment")
	}

	forbidden, err := client.ValidateUpdate(ctx, alice, "10001", client.NewCommentUpdate("hi"))
	if err != nil || forbidden.IsValid() {
		t.Fatalf("expected forbidden comment to be invalid, got %+v err=%v", forbidden, err)
	}
}

// TestTransportErrorIsReturned tests that network failures are returned as errors.
func TestTransportErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client, err := NewClient(Config{BaseURL: srv.URL, AllowServiceAccount: true})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.FindIssue(context.Background(), alice, "ABC-1"); err == nil {
		t.Fatalf("expected transport error")
	}
}

// TestCallsWithoutUserTokenFail tests that a user without a personal token is
// never served by the service account unless the fallback is enabled.
func TestCallsWithoutUserTokenFail(t *testing.T) {
	fake := &fakeJira{routes: map[string]func(http.ResponseWriter, *http.Request){
		"GET /rest/api/2/mypermissions": writeJSON(http.StatusOK, map[string]interface{}{
			"permissions": map[string]interface{}{
				"ADD_COMMENTS": map[string]bool{"havePermission": true},
			},
		}),
		"POST /rest/api/2/issue/10/comment": writeJSON(http.StatusCreated, map[string]string{"id": "1"}),
		"GET /rest/api/2/user/search":       writeJSON(http.StatusOK, []map[string]interface{}{}),
	}}
	client := newTestClient(t, fake, Config{Username: "svc-bot", Token: "pw"})
	ctx := context.Background()

	_, err := client.ValidateUpdate(ctx, alice, "10", client.NewCommentUpdate("hi"))
	if !errors.Is(err, ErrNoUserCredentials) {
		t.Fatalf("expected ErrNoUserCredentials, got %v", err)
	}
	_, err = client.ExecuteUpdate(ctx, alice, tracker.UpdateValidation{IssueID: "10", Params: client.NewCommentUpdate("hi")})
	if !errors.Is(err, ErrNoUserCredentials) {
		t.Fatalf("expected ErrNoUserCredentials, got %v", err)
	}
	if len(fake.requests) != 0 {
		t.Fatalf("expected no requests, got %+v", fake.requests)
	}

	if _, err := client.FindUsersByEmail(ctx, "alice@example.com"); err != nil {
		t.Fatalf("user search: %v", err)
	}
	if got := fake.requests[0].auth; !strings.HasPrefix(got, "Basic ") {
		t.Fatalf("expected service account auth for user search, got %q", got)
	}
}

// TestServiceAccountFallbackSendsBasicAuth tests which credentials a user
// without a personal token gets once the fallback is enabled.
func TestServiceAccountFallbackSendsBasicAuth(t *testing.T) {
	fake := &fakeJira{routes: map[string]func(http.ResponseWriter, *http.Request){
		"GET /rest/api/2/mypermissions": writeJSON(http.StatusOK, map[string]interface{}{
			"permissions": map[string]interface{}{
				"ADD_COMMENTS": map[string]bool{"havePermission": true},
			},
		}),
	}}
	client := newTestClient(t, fake, Config{
		Username:            "svc-bot",
		Token:               "pw",
		UserTokens:          map[string]string{"bob": "bob-pat"},
		AllowServiceAccount: true,
	})
	ctx := context.Background()

	if _, err := client.ValidateUpdate(ctx, alice, "10", client.NewCommentUpdate("hi")); err != nil {
		t.Fatalf("validate as alice: %v", err)
	}
	if _, err := client.ValidateUpdate(ctx, tracker.Identity{Name: "bob"}, "10", client.NewCommentUpdate("hi")); err != nil {
		t.Fatalf("validate as bob: %v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("svc-bot", "pw")
	if got := fake.requests[0].auth; got != req.Header.Get("Authorization") {
		t.Fatalf("expected service account basic auth for alice, got %q", got)
	}
	if got := fake.requests[1].auth; got != "Bearer bob-pat" {
		t.Fatalf("expected bob's token, got %q", got)
	}
}

type lineLogger struct {
	lines []string
}

func (l *lineLogger) Printf(format string, args ...interface{}) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

// TestServiceAccountListenerWarnsPerCommit tests the per-commit warning for users without a token.
func TestServiceAccountListenerWarnsPerCommit(t *testing.T) {
	client, err := NewClient(Config{
		BaseURL:             "https://jira.example.com",
		UserTokens:          map[string]string{"bob": "bob-pat"},
		AllowServiceAccount: true,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	logger := &lineLogger{}
	listener := client.ServiceAccountListener(logger)
	ctx := context.Background()
	commit := reconcile.Commit{ID: "abc"}

	listener.OnImpersonate(ctx, commit, alice)
	listener.OnImpersonate(ctx, commit, tracker.Identity{Name: "bob"})
	if len(logger.lines) != 1 {
		t.Fatalf("expected one warning, got %v", logger.lines)
	}
	if !strings.Contains(logger.lines[0], "user=alice") || !strings.Contains(logger.lines[0], "commit=abc") {
		t.Fatalf("unexpected warning: %q", logger.lines[0])
	}
}
