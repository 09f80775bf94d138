package integration

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
)

type projectPage struct {
	Items    []projectData `json:"items"`
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

func TestProjectLifecycleAndLikeToggle(t *testing.T) {
	srv := newTestServer(t)
	owner := enroll(t, newClient(t), srv.baseURL, "Owner", "owner@example.com", "Valid#Pass1234")
	fan := enroll(t, newClient(t), srv.baseURL, "Fan", "fan@example.com", "Valid#Pass1234")
	client := newClient(t)

	resp, env := doJSON(t, client, http.MethodPost, srv.baseURL+"/api/v1/projects", map[string]any{
		"title":       "Campus Map",
		"description": "Find rooms fast",
		"tech_stack":  []string{"Go", "go", " React "},
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected anonymous create 401, got %d", resp.StatusCode)
	}

	resp, env = doJSON(t, client, http.MethodPost, srv.baseURL+"/api/v1/projects", map[string]any{
		"title":       "Campus Map",
		"description": "Find rooms fast",
		"tech_stack":  []string{"Go", "go", " React "},
	}, bearer(owner.Token))
	if resp.StatusCode != http.StatusCreated || !env.Success {
		t.Fatalf("create: %d %s", resp.StatusCode, env.errorCode())
	}
	project := decodeData[projectData](t, env)
	if project.OwnerID != owner.User.ID || len(project.TechStack) != 2 || len(project.Likes) != 0 {
		t.Fatalf("unexpected created project: %+v", project)
	}

	resp, env = doJSON(t, client, http.MethodPost, srv.baseURL+"/api/v1/projects", map[string]any{"title": "  "}, bearer(owner.Token))
	if resp.StatusCode != http.StatusBadRequest || env.errorCode() != "BAD_REQUEST" {
		t.Fatalf("expected blank title rejected, got %d %s", resp.StatusCode, env.errorCode())
	}

	likeURL := srv.baseURL + "/api/v1/projects/" + project.ID + "/like"
	resp, env = doJSON(t, client, http.MethodPost, likeURL, nil, bearer(owner.Token))
	if resp.StatusCode != http.StatusForbidden || env.errorCode() != "SELF_LIKE" {
		t.Fatalf("expected SELF_LIKE, got %d %s", resp.StatusCode, env.errorCode())
	}

	resp, env = doJSON(t, client, http.MethodPost, likeURL, nil, bearer(fan.Token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("like: %d %s", resp.StatusCode, env.errorCode())
	}
	liked := decodeData[struct {
		Likes []string `json:"likes"`
	}](t, env)
	if len(liked.Likes) != 1 || liked.Likes[0] != fan.User.ID {
		t.Fatalf("expected fan in likes, got %v", liked.Likes)
	}

	resp, env = doJSON(t, client, http.MethodGet, srv.baseURL+"/api/v1/projects/"+project.ID, nil, nil)
	if resp.StatusCode != http.StatusOK || len(decodeData[projectData](t, env).Likes) != 1 {
		t.Fatalf("expected public get to show one like, got %d", resp.StatusCode)
	}

	resp, env = doJSON(t, client, http.MethodPost, likeURL, nil, bearer(fan.Token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unlike: %d", resp.StatusCode)
	}
	if unliked := decodeData[struct {
		Likes []string `json:"likes"`
	}](t, env); len(unliked.Likes) != 0 {
		t.Fatalf("expected like removed, got %v", unliked.Likes)
	}

	resp, env = doJSON(t, client, http.MethodPut, srv.baseURL+"/api/v1/projects/"+project.ID, map[string]any{"title": "Hijacked"}, bearer(fan.Token))
	if resp.StatusCode != http.StatusForbidden || env.errorCode() != "FORBIDDEN" {
		t.Fatalf("expected non-owner update forbidden, got %d %s", resp.StatusCode, env.errorCode())
	}

	resp, env = doJSON(t, client, http.MethodPut, srv.baseURL+"/api/v1/projects/"+project.ID, map[string]any{
		"title":     "Campus Map v2",
		"repo_link": "https://github.com/example/campus-map",
	}, bearer(owner.Token))
	if resp.StatusCode != http.StatusOK || decodeData[projectData](t, env).Title != "Campus Map v2" {
		t.Fatalf("owner update: %d %s", resp.StatusCode, env.errorCode())
	}

	resp, env = doJSON(t, client, http.MethodGet, srv.baseURL+"/api/v1/projects/my", nil, bearer(owner.Token))
	if resp.StatusCode != http.StatusOK || decodeData[projectPage](t, env).Total != 1 {
		t.Fatalf("expected owner to see one project, got %d", resp.StatusCode)
	}
	resp, env = doJSON(t, client, http.MethodGet, srv.baseURL+"/api/v1/projects/my", nil, bearer(fan.Token))
	if resp.StatusCode != http.StatusOK || decodeData[projectPage](t, env).Total != 0 {
		t.Fatalf("expected fan to own nothing, got %d", resp.StatusCode)
	}

	resp, env = doJSON(t, client, http.MethodDelete, srv.baseURL+"/api/v1/projects/"+project.ID, nil, bearer(fan.Token))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected non-owner delete forbidden, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, client, http.MethodDelete, srv.baseURL+"/api/v1/projects/"+project.ID, nil, bearer(owner.Token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner delete: %d", resp.StatusCode)
	}
	resp, env = doJSON(t, client, http.MethodGet, srv.baseURL+"/api/v1/projects/"+project.ID, nil, nil)
	if resp.StatusCode != http.StatusNotFound || env.errorCode() != "NOT_FOUND" {
		t.Fatalf("expected deleted project 404, got %d %s", resp.StatusCode, env.errorCode())
	}
	resp, env = doJSON(t, client, http.MethodPost, likeURL, nil, bearer(fan.Token))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected like on deleted project 404, got %d", resp.StatusCode)
	}
}

func TestProjectListingPaginates(t *testing.T) {
	srv := newTestServer(t)
	owner := enroll(t, newClient(t), srv.baseURL, "Owner", "pager@example.com", "Valid#Pass1234")
	client := newClient(t)
	for _, title := range []string{"One", "Two", "Three"} {
		resp, env := doJSON(t, client, http.MethodPost, srv.baseURL+"/api/v1/projects", map[string]any{"title": title}, bearer(owner.Token))
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create %s: %d %s", title, resp.StatusCode, env.errorCode())
		}
	}

	resp, env := doJSON(t, client, http.MethodGet, srv.baseURL+"/api/v1/projects?page=2&page_size=2", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d", resp.StatusCode)
	}
	page := decodeData[projectPage](t, env)
	if page.Total != 3 || page.Page != 2 || len(page.Items) != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}
	// newest first
	if page.Items[0].Title != "One" {
		t.Fatalf("expected oldest project on the last page, got %q", page.Items[0].Title)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)
	client := newClient(t)
	for _, path := range []string{"/health/live", "/health/ready"} {
		resp, env := doJSON(t, client, http.MethodGet, srv.baseURL+path, nil, nil)
		if resp.StatusCode != http.StatusOK || !env.Success {
			t.Fatalf("%s: %d", path, resp.StatusCode)
		}
	}
	resp, env := doJSON(t, client, http.MethodGet, srv.baseURL+"/api/v1/nope", nil, nil)
	if resp.StatusCode != http.StatusNotFound || env.errorCode() != "NOT_FOUND" {
		t.Fatalf("expected enveloped 404, got %d %s", resp.StatusCode, env.errorCode())
	}
}

func TestAuditEventsForEnrollmentAndProjects(t *testing.T) {
	var logBuf syncBuffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(previous) })

	srv := newTestServer(t)
	owner := enroll(t, newClient(t), srv.baseURL, "Audited", "audit@example.com", "Valid#Pass1234")
	resp, _ := doJSON(t, newClient(t), http.MethodPost, srv.baseURL+"/api/v1/projects", map[string]any{"title": "Audited"}, bearer(owner.Token))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, newClient(t), http.MethodPost, srv.baseURL+"/api/v1/auth/login", map[string]string{
		"email":    "audit@example.com",
		"password": "nope",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad login: %d", resp.StatusCode)
	}

	events := parseAuditEvents(t, logBuf.String())
	for _, event := range events {
		for _, key := range []string{"event_name", "event_version", "actor_user_id", "actor_ip", "target_type", "action", "outcome", "reason", "ts"} {
			if _, ok := event[key]; !ok {
				t.Fatalf("missing audit field %q in %#v", key, event)
			}
		}
	}
	assertAuditEvent(t, events, "auth.enrollment.begin", "success", "")
	assertAuditEvent(t, events, "auth.enrollment.verify", "success", "")
	assertAuditEvent(t, events, "auth.enrollment.complete", "success", "")
	assertAuditEvent(t, events, "project.create", "success", "")
	assertAuditEvent(t, events, "auth.login", "failure", "invalid_credentials")
}

func parseAuditEvents(t *testing.T, logs string) []map[string]any {
	t.Helper()
	var events []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(logs))
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if msg, _ := entry["msg"].(string); msg == "audit" {
			events = append(events, entry)
		}
	}
	return events
}

func assertAuditEvent(t *testing.T, events []map[string]any, name, outcome, reason string) {
	t.Helper()
	for _, event := range events {
		if event["event_name"] != name || event["outcome"] != outcome {
			continue
		}
		if reason == "" || event["reason"] == reason {
			return
		}
	}
	t.Fatalf("expected audit event %s outcome=%s reason=%q among %d events", name, outcome, reason, len(events))
}

// syncBuffer guards a bytes.Buffer shared by server goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
