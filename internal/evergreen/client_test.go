package evergreen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(server *httptest.Server) *Client {
	return &Client{
		baseURL: server.URL,
		user:    "test-user",
		apiKey:  "test-key",
		http:    server.Client(),
	}
}

func TestGetProjectsInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v2/projects" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Api-User") != "test-user" || r.Header.Get("Api-Key") != "test-key" {
			t.Error("expected authentication headers on the request")
		}
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"identifier": "mongodb-mongo-master", "owner_name": "10gen", "repo_name": "mongo", "branch_name": "master", "enabled": true},
			{"identifier": "sys-perf", "owner_name": "10gen", "repo_name": "mongo", "branch_name": "master", "enabled": true},
			{"identifier": "mongodb-mongo-v7.0", "owner_name": "10gen", "repo_name": "mongo", "branch_name": "v7.0", "enabled": false},
			{"identifier": "other", "owner_name": "someone", "repo_name": "else", "branch_name": "master", "enabled": true},
		})
	}))
	defer server.Close()

	info, err := testClient(server).GetProjectsInfo(context.Background(), "10gen/mongo", "master")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedBranches := []string{"mongodb-mongo-master", "sys-perf"}
	if got := info.BranchToProjects["master"]; !reflect.DeepEqual(got, expectedBranches) {
		t.Errorf("expected master branch projects %v, got %v", expectedBranches, got)
	}
	if got := info.BranchToProjects["v7.0"]; !reflect.DeepEqual(got, []string{"mongodb-mongo-v7.0"}) {
		t.Errorf("expected v7.0 branch projects, got %v", got)
	}
	if info.TracksProject("mongodb-mongo-v7.0") {
		t.Error("disabled project must not be active")
	}
	if info.TracksProject("other") {
		t.Error("projects of other repositories must be excluded")
	}
	if !info.TracksProject("sys-perf") {
		t.Error("expected sys-perf to be active")
	}
}

func TestGetProjectsInfoRejectsBadRepoFormat(t *testing.T) {
	client := &Client{baseURL: "http://unused", http: http.DefaultClient}
	if _, err := client.GetProjectsInfo(context.Background(), "not-a-repo", "master"); err == nil {
		t.Fatal("expected an error for a repository without owner/name format")
	}
}

func TestGetProjectsInfoFailsWhenBranchUntracked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{})
	}))
	defer server.Close()

	if _, err := testClient(server).GetProjectsInfo(context.Background(), "10gen/mongo", "master"); err == nil {
		t.Fatal("expected an error when no project tracks the branch")
	}
}

func TestGetWaterfallStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v2/projects/mongodb-mongo-master/versions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		query := r.URL.Query()
		if query.Get("requester") != "gitter_request" {
			t.Errorf("expected mainline requester, got %q", query.Get("requester"))
		}
		if query.Get("created_after") == "" || query.Get("created_before") == "" {
			t.Error("expected the window bounds as query parameters")
		}
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{
				"builds": []map[string]interface{}{
					{"status_counts": map[string]int{"succeeded": 10, "failed": 2}},
					{"status_counts": map[string]int{"succeeded": 5, "failed": 1, "undispatched": 3}},
				},
			},
			{
				"builds": []map[string]interface{}{
					{"status_counts": map[string]int{"succeeded": 7}},
				},
			},
		})
	}))
	defer server.Close()

	end := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	statuses, err := testClient(server).GetWaterfallStatus(context.Background(), []string{"mongodb-mongo-master"}, end.AddDate(0, 0, -1), end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(statuses) != 3 {
		t.Fatalf("expected one tally per build, got %d", len(statuses))
	}
	totalFailed := 0
	for _, status := range statuses {
		if status.Project != "mongodb-mongo-master" {
			t.Errorf("expected every tally attributed to the project, got %q", status.Project)
		}
		totalFailed += status.Failed
	}
	if totalFailed != 3 {
		t.Errorf("expected 3 failed tasks across builds, got %d", totalFailed)
	}
}

func TestSendSlackNotification(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rest/v2/notifications/slack" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := testClient(server).SendSlackNotification(context.Background(), "#code-lockdown", "branch is RED")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received["target"] != "#code-lockdown" || received["msg"] != "branch is RED" {
		t.Errorf("unexpected notification payload: %v", received)
	}
}

func TestDoRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode([]map[string]interface{}{})
	}))
	defer server.Close()

	client := testClient(server)
	var out []apiVersion
	if err := client.do(context.Background(), http.MethodGet, "/rest/v2/projects/p/versions", nil, nil, &out); err != nil {
		t.Fatalf("expected the request to succeed after retries, got: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := testClient(server)
	if err := client.do(context.Background(), http.MethodGet, "/rest/v2/projects", nil, nil, nil); err == nil {
		t.Fatal("expected an error for a 401 response")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("client errors must not be retried, got %d attempts", got)
	}
}
