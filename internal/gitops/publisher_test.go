package gitops

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/inframind/inframind/core"
	"github.com/inframind/inframind/schema"
)

// Publish must create the branch, push every file, and open the pull
// request, in that order.
func TestPublisherPublish(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.EscapedPath()
		switch {
		case r.Method == http.MethodGet && path == "/repos/acme/infra/git/ref/heads/main":
			calls = append(calls, "resolve-base")
			_, _ = w.Write([]byte(`{"object":{"sha":"base123"}}`))
		case r.Method == http.MethodPost && path == "/repos/acme/infra/git/refs":
			calls = append(calls, "create-branch")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{}`))
		case r.Method == http.MethodGet && strings.HasPrefix(path, "/repos/acme/infra/contents/"):
			http.NotFound(w, r)
		case r.Method == http.MethodPut && strings.HasPrefix(path, "/repos/acme/infra/contents/"):
			calls = append(calls, "push "+strings.TrimPrefix(path, "/repos/acme/infra/contents/"))
			_, _ = w.Write([]byte(`{}`))
		case r.Method == http.MethodPost && path == "/repos/acme/infra/pulls":
			calls = append(calls, "open-pr")
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["head"] != "inframind/plan-abc123" {
				t.Errorf("pr head = %q", body["head"])
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":300,"number":15,"title":"Deploy","state":"open","html_url":"https://github.com/acme/infra/pull/15","created_at":"2026-02-02T10:00:00Z"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", newTestTokens(t, schema.GitProviderGitHub), nil)
	publisher := NewPublisher(client, nil)
	pr, err := publisher.Publish(context.Background(), core.PublishRequest{
		Repo:   testRepo(schema.GitProviderGitHub),
		Branch: "inframind/plan-abc123",
		Title:  "Deploy",
		Body:   "Automated change set.",
		Files:  map[string]string{"main.tf": "resource {}", "outputs.tf": "output {}"},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if pr.Number != 15 || pr.ID != "300" {
		t.Errorf("pr = %+v", pr)
	}
	want := []string{"resolve-base", "create-branch", "push main.tf", "push outputs.tf", "open-pr"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %s, want %s", i, calls[i], want[i])
		}
	}
}

func TestPublisherRejectsEmptyChangeSet(t *testing.T) {
	publisher := NewPublisher(NewClient("", "", nil, nil), nil)
	if _, err := publisher.Publish(context.Background(), core.PublishRequest{
		Repo:   testRepo(schema.GitProviderGitHub),
		Branch: "inframind/plan-x",
	}); err == nil {
		t.Fatal("expected error for empty change set")
	}
	if _, err := publisher.Publish(context.Background(), core.PublishRequest{
		Repo:  testRepo(schema.GitProviderGitHub),
		Files: map[string]string{"main.tf": "x"},
	}); err == nil {
		t.Fatal("expected error for missing branch")
	}
}

// The fallback publisher must never reach the network and must stamp
// the caller's repository and branch onto the canned pull request.
func TestFallbackPublisherStampsRequest(t *testing.T) {
	publisher := NewFallbackPublisher(nil)
	repo := testRepo(schema.GitProviderGitHub)
	pr, err := publisher.Publish(context.Background(), core.PublishRequest{
		Repo:   repo,
		Branch: "inframind/plan-zz99",
		Title:  "Deploy staging VPC",
		Files:  map[string]string{"main.tf": "resource {}"},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if pr.RepositoryID != repo.ID {
		t.Errorf("repository id = %s, want %s", pr.RepositoryID, repo.ID)
	}
	if pr.Branch != "inframind/plan-zz99" {
		t.Errorf("branch = %s", pr.Branch)
	}
	if pr.Title != "Deploy staging VPC" {
		t.Errorf("title = %s", pr.Title)
	}
	if pr.Number == 0 || pr.URL == "" {
		t.Errorf("canned fields missing: %+v", pr)
	}
	if pr.CreatedAt.IsZero() {
		t.Error("created_at not stamped")
	}
}

func TestPublisherSurfacesPushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.EscapedPath()
		switch {
		case r.Method == http.MethodGet && path == "/repos/acme/infra/git/ref/heads/main":
			_, _ = w.Write([]byte(`{"object":{"sha":"base123"}}`))
		case r.Method == http.MethodPost && path == "/repos/acme/infra/git/refs":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{}`))
		case r.Method == http.MethodGet && strings.HasPrefix(path, "/repos/acme/infra/contents/"):
			http.NotFound(w, r)
		case r.Method == http.MethodPut && strings.HasPrefix(path, "/repos/acme/infra/contents/"):
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"message":"protected branch"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", newTestTokens(t, schema.GitProviderGitHub), nil)
	publisher := NewPublisher(client, nil)
	_, err := publisher.Publish(context.Background(), core.PublishRequest{
		Repo:   testRepo(schema.GitProviderGitHub),
		Branch: "inframind/plan-abc123",
		Title:  "Deploy",
		Files:  map[string]string{"main.tf": "resource {}"},
	})
	if err == nil || !strings.Contains(err.Error(), "push change set") {
		t.Fatalf("err = %v, want push failure", err)
	}
}
