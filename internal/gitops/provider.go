package gitops

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"pkt.systems/pslog"

	"github.com/inframind/inframind/core"
	"github.com/inframind/inframind/schema"
)

// Client talks to the GitHub and GitLab REST APIs with tokens from the
// encrypted TokenStore. Errors come back plain; the service layer decides
// what counts as provider-unavailable.
type Client struct {
	githubAPI string
	gitlabAPI string
	tokens    *TokenStore
	http      *http.Client
	log       pslog.Logger
}

var _ core.ProviderClient = (*Client)(nil)

// NewClient returns a provider client. Base URLs come from config so tests
// and enterprise installs can point at their own hosts.
func NewClient(githubAPI, gitlabAPI string, tokens *TokenStore, logger pslog.Logger) *Client {
	return &Client{
		githubAPI: strings.TrimRight(githubAPI, "/"),
		gitlabAPI: strings.TrimRight(gitlabAPI, "/"),
		tokens:    tokens,
		http:      &http.Client{Timeout: 15 * time.Second},
		log:       logger,
	}
}

// Branch is one branch on a connected repository.
type Branch struct {
	Name    string `json:"name"`
	SHA     string `json:"sha,omitempty"`
	Default bool   `json:"default,omitempty"`
}

// ListPullRequests returns the repository's pull requests, newest first as
// the provider serves them.
func (c *Client) ListPullRequests(ctx context.Context, repo schema.GitRepository) ([]schema.PullRequest, error) {
	switch repo.Provider {
	case schema.GitProviderGitHub:
		return c.githubListPulls(ctx, repo)
	case schema.GitProviderGitLab:
		return c.gitlabListPulls(ctx, repo)
	default:
		return nil, fmt.Errorf("unsupported provider %q", repo.Provider)
	}
}

// CreatePullRequest opens a pull request from an existing branch.
func (c *Client) CreatePullRequest(ctx context.Context, repo schema.GitRepository, input core.CreatePullRequestInput) (schema.PullRequest, error) {
	base := input.Base
	if base == "" {
		base = repo.DefaultBranch
	}
	if base == "" {
		base = "main"
	}
	switch repo.Provider {
	case schema.GitProviderGitHub:
		return c.githubCreatePull(ctx, repo, input, base)
	case schema.GitProviderGitLab:
		return c.gitlabCreatePull(ctx, repo, input, base)
	default:
		return schema.PullRequest{}, fmt.Errorf("unsupported provider %q", repo.Provider)
	}
}

// ListBranches returns the repository's branches with the default one marked.
func (c *Client) ListBranches(ctx context.Context, repo schema.GitRepository) ([]Branch, error) {
	switch repo.Provider {
	case schema.GitProviderGitHub:
		return c.githubListBranches(ctx, repo)
	case schema.GitProviderGitLab:
		return c.gitlabListBranches(ctx, repo)
	default:
		return nil, fmt.Errorf("unsupported provider %q", repo.Provider)
	}
}

// CreateBranch creates branch from the head of base. An already existing
// branch is fine; publish retries land here.
func (c *Client) CreateBranch(ctx context.Context, repo schema.GitRepository, branch, base string) error {
	switch repo.Provider {
	case schema.GitProviderGitHub:
		return c.githubCreateBranch(ctx, repo, branch, base)
	case schema.GitProviderGitLab:
		return c.gitlabCreateBranch(ctx, repo, branch, base)
	default:
		return fmt.Errorf("unsupported provider %q", repo.Provider)
	}
}

// PushFiles commits the files onto branch, creating or updating each path.
func (c *Client) PushFiles(ctx context.Context, repo schema.GitRepository, branch, message string, files map[string]string) error {
	if len(files) == 0 {
		return errors.New("no files to push")
	}
	switch repo.Provider {
	case schema.GitProviderGitHub:
		return c.githubPushFiles(ctx, repo, branch, message, files)
	case schema.GitProviderGitLab:
		return c.gitlabPushFiles(ctx, repo, branch, message, files)
	default:
		return fmt.Errorf("unsupported provider %q", repo.Provider)
	}
}

// GitHub.

type githubRepo struct {
	DefaultBranch string `json:"default_branch"`
}

type githubPull struct {
	ID        int64      `json:"id"`
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	State     string     `json:"state"`
	MergedAt  *time.Time `json:"merged_at"`
	HTMLURL   string     `json:"html_url"`
	CreatedAt time.Time  `json:"created_at"`
	Head      struct {
		Ref string `json:"ref"`
	} `json:"head"`
}

type githubBranch struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

func (c *Client) githubURL(repo schema.GitRepository, parts ...string) string {
	return c.githubAPI + "/repos/" + repo.Name + "/" + strings.Join(parts, "/")
}

func (c *Client) githubListPulls(ctx context.Context, repo schema.GitRepository) ([]schema.PullRequest, error) {
	token, err := c.token(schema.GitProviderGitHub)
	if err != nil {
		return nil, err
	}
	var pulls []githubPull
	if err := c.do(ctx, http.MethodGet, c.githubURL(repo, "pulls")+"?state=all&per_page=50", githubHeaders(token), nil, &pulls); err != nil {
		return nil, err
	}
	out := make([]schema.PullRequest, 0, len(pulls))
	for _, p := range pulls {
		status := schema.PullRequestOpen
		if p.State == "closed" {
			status = schema.PullRequestClosed
			if p.MergedAt != nil {
				status = schema.PullRequestMerged
			}
		}
		out = append(out, schema.PullRequest{
			ID:           schema.PullRequestID(strconv.FormatInt(p.ID, 10)),
			RepositoryID: repo.ID,
			Number:       p.Number,
			Title:        p.Title,
			Branch:       p.Head.Ref,
			Status:       status,
			URL:          p.HTMLURL,
			CreatedAt:    p.CreatedAt,
		})
	}
	if c.log != nil {
		c.log.Debug("github pull request list ok", "repo", repo.Name, "count", len(out))
	}
	return out, nil
}

func (c *Client) githubCreatePull(ctx context.Context, repo schema.GitRepository, input core.CreatePullRequestInput, base string) (schema.PullRequest, error) {
	token, err := c.token(schema.GitProviderGitHub)
	if err != nil {
		return schema.PullRequest{}, err
	}
	payload := map[string]string{
		"title": input.Title,
		"body":  input.Body,
		"head":  input.Branch,
		"base":  base,
	}
	var created githubPull
	if err := c.do(ctx, http.MethodPost, c.githubURL(repo, "pulls"), githubHeaders(token), payload, &created); err != nil {
		return schema.PullRequest{}, err
	}
	if c.log != nil {
		c.log.Info("github pull request opened", "repo", repo.Name, "number", created.Number)
	}
	return schema.PullRequest{
		ID:           schema.PullRequestID(strconv.FormatInt(created.ID, 10)),
		RepositoryID: repo.ID,
		Number:       created.Number,
		Title:        created.Title,
		Branch:       input.Branch,
		Status:       schema.PullRequestOpen,
		URL:          created.HTMLURL,
		CreatedAt:    created.CreatedAt,
	}, nil
}

func (c *Client) githubListBranches(ctx context.Context, repo schema.GitRepository) ([]Branch, error) {
	token, err := c.token(schema.GitProviderGitHub)
	if err != nil {
		return nil, err
	}
	var meta githubRepo
	if err := c.do(ctx, http.MethodGet, c.githubAPI+"/repos/"+repo.Name, githubHeaders(token), nil, &meta); err != nil {
		return nil, err
	}
	var branches []githubBranch
	if err := c.do(ctx, http.MethodGet, c.githubURL(repo, "branches")+"?per_page=100", githubHeaders(token), nil, &branches); err != nil {
		return nil, err
	}
	out := make([]Branch, 0, len(branches))
	for _, b := range branches {
		out = append(out, Branch{Name: b.Name, SHA: b.Commit.SHA, Default: b.Name == meta.DefaultBranch})
	}
	return out, nil
}

func (c *Client) githubCreateBranch(ctx context.Context, repo schema.GitRepository, branch, base string) error {
	token, err := c.token(schema.GitProviderGitHub)
	if err != nil {
		return err
	}
	sha, err := c.githubBranchSHA(ctx, repo, token, base)
	if err != nil {
		return fmt.Errorf("resolve base %s: %w", base, err)
	}
	payload := map[string]string{"ref": "refs/heads/" + branch, "sha": sha}
	if err := c.do(ctx, http.MethodPost, c.githubURL(repo, "git", "refs"), githubHeaders(token), payload, nil); err != nil {
		if _, shaErr := c.githubBranchSHA(ctx, repo, token, branch); shaErr == nil {
			return nil
		}
		return err
	}
	return nil
}

func (c *Client) githubBranchSHA(ctx context.Context, repo schema.GitRepository, token, branch string) (string, error) {
	var ref struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	if err := c.do(ctx, http.MethodGet, c.githubURL(repo, "git", "ref", "heads", branch), githubHeaders(token), nil, &ref); err != nil {
		return "", err
	}
	return ref.Object.SHA, nil
}

func (c *Client) githubPushFiles(ctx context.Context, repo schema.GitRepository, branch, message string, files map[string]string) error {
	token, err := c.token(schema.GitProviderGitHub)
	if err != nil {
		return err
	}
	for _, path := range sortedPaths(files) {
		payload := map[string]string{
			"message": message,
			"content": base64.StdEncoding.EncodeToString([]byte(files[path])),
			"branch":  branch,
		}
		// An existing file needs its blob sha or the contents API rejects
		// the update.
		var existing struct {
			SHA string `json:"sha"`
		}
		contentsURL := c.githubURL(repo, "contents", path)
		err := c.do(ctx, http.MethodGet, contentsURL+"?ref="+url.QueryEscape(branch), githubHeaders(token), nil, &existing)
		switch {
		case err == nil && existing.SHA != "":
			payload["sha"] = existing.SHA
		case err != nil && !isStatus(err, http.StatusNotFound):
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if err := c.do(ctx, http.MethodPut, contentsURL, githubHeaders(token), payload, nil); err != nil {
			return fmt.Errorf("push %s: %w", path, err)
		}
	}
	return nil
}

func githubHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + token,
		"Accept":        "application/vnd.github+json",
	}
}

// GitLab.

type gitlabMergeRequest struct {
	ID           int64     `json:"id"`
	IID          int       `json:"iid"`
	Title        string    `json:"title"`
	State        string    `json:"state"`
	SourceBranch string    `json:"source_branch"`
	WebURL       string    `json:"web_url"`
	CreatedAt    time.Time `json:"created_at"`
}

type gitlabBranch struct {
	Name    string `json:"name"`
	Default bool   `json:"default"`
	Commit  struct {
		ID string `json:"id"`
	} `json:"commit"`
}

func (c *Client) gitlabURL(repo schema.GitRepository, parts ...string) string {
	u := c.gitlabAPI + "/projects/" + url.PathEscape(repo.Name)
	if len(parts) > 0 {
		u += "/" + strings.Join(parts, "/")
	}
	return u
}

func (c *Client) gitlabListPulls(ctx context.Context, repo schema.GitRepository) ([]schema.PullRequest, error) {
	token, err := c.token(schema.GitProviderGitLab)
	if err != nil {
		return nil, err
	}
	var mrs []gitlabMergeRequest
	if err := c.do(ctx, http.MethodGet, c.gitlabURL(repo, "merge_requests")+"?state=all&per_page=50", gitlabHeaders(token), nil, &mrs); err != nil {
		return nil, err
	}
	out := make([]schema.PullRequest, 0, len(mrs))
	for _, mr := range mrs {
		status := schema.PullRequestOpen
		switch mr.State {
		case "merged":
			status = schema.PullRequestMerged
		case "closed":
			status = schema.PullRequestClosed
		}
		out = append(out, schema.PullRequest{
			ID:           schema.PullRequestID(strconv.FormatInt(mr.ID, 10)),
			RepositoryID: repo.ID,
			Number:       mr.IID,
			Title:        mr.Title,
			Branch:       mr.SourceBranch,
			Status:       status,
			URL:          mr.WebURL,
			CreatedAt:    mr.CreatedAt,
		})
	}
	if c.log != nil {
		c.log.Debug("gitlab merge request list ok", "repo", repo.Name, "count", len(out))
	}
	return out, nil
}

func (c *Client) gitlabCreatePull(ctx context.Context, repo schema.GitRepository, input core.CreatePullRequestInput, base string) (schema.PullRequest, error) {
	token, err := c.token(schema.GitProviderGitLab)
	if err != nil {
		return schema.PullRequest{}, err
	}
	payload := map[string]string{
		"title":         input.Title,
		"description":   input.Body,
		"source_branch": input.Branch,
		"target_branch": base,
	}
	var created gitlabMergeRequest
	if err := c.do(ctx, http.MethodPost, c.gitlabURL(repo, "merge_requests"), gitlabHeaders(token), payload, &created); err != nil {
		return schema.PullRequest{}, err
	}
	if c.log != nil {
		c.log.Info("gitlab merge request opened", "repo", repo.Name, "iid", created.IID)
	}
	return schema.PullRequest{
		ID:           schema.PullRequestID(strconv.FormatInt(created.ID, 10)),
		RepositoryID: repo.ID,
		Number:       created.IID,
		Title:        created.Title,
		Branch:       input.Branch,
		Status:       schema.PullRequestOpen,
		URL:          created.WebURL,
		CreatedAt:    created.CreatedAt,
	}, nil
}

func (c *Client) gitlabListBranches(ctx context.Context, repo schema.GitRepository) ([]Branch, error) {
	token, err := c.token(schema.GitProviderGitLab)
	if err != nil {
		return nil, err
	}
	var branches []gitlabBranch
	if err := c.do(ctx, http.MethodGet, c.gitlabURL(repo, "repository", "branches")+"?per_page=100", gitlabHeaders(token), nil, &branches); err != nil {
		return nil, err
	}
	out := make([]Branch, 0, len(branches))
	for _, b := range branches {
		out = append(out, Branch{Name: b.Name, SHA: b.Commit.ID, Default: b.Default})
	}
	return out, nil
}

func (c *Client) gitlabCreateBranch(ctx context.Context, repo schema.GitRepository, branch, base string) error {
	token, err := c.token(schema.GitProviderGitLab)
	if err != nil {
		return err
	}
	u := c.gitlabURL(repo, "repository", "branches") + "?branch=" + url.QueryEscape(branch) + "&ref=" + url.QueryEscape(base)
	if err := c.do(ctx, http.MethodPost, u, gitlabHeaders(token), nil, nil); err != nil {
		var existing gitlabBranch
		checkURL := c.gitlabURL(repo, "repository", "branches", url.PathEscape(branch))
		if checkErr := c.do(ctx, http.MethodGet, checkURL, gitlabHeaders(token), nil, &existing); checkErr == nil {
			return nil
		}
		return err
	}
	return nil
}

func (c *Client) gitlabPushFiles(ctx context.Context, repo schema.GitRepository, branch, message string, files map[string]string) error {
	token, err := c.token(schema.GitProviderGitLab)
	if err != nil {
		return err
	}
	type action struct {
		Action   string `json:"action"`
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}
	actions := make([]action, 0, len(files))
	for _, path := range sortedPaths(files) {
		verb := "create"
		checkURL := c.gitlabURL(repo, "repository", "files", url.PathEscape(path)) + "?ref=" + url.QueryEscape(branch)
		err := c.do(ctx, http.MethodGet, checkURL, gitlabHeaders(token), nil, &struct{}{})
		switch {
		case err == nil:
			verb = "update"
		case !isStatus(err, http.StatusNotFound):
			return fmt.Errorf("stat %s: %w", path, err)
		}
		actions = append(actions, action{Action: verb, FilePath: path, Content: files[path]})
	}
	payload := map[string]any{
		"branch":         branch,
		"commit_message": message,
		"actions":        actions,
	}
	return c.do(ctx, http.MethodPost, c.gitlabURL(repo, "repository", "commits"), gitlabHeaders(token), payload, nil)
}

func gitlabHeaders(token string) map[string]string {
	return map[string]string{"PRIVATE-TOKEN": token}
}

// Shared plumbing.

type statusError struct {
	status int
	url    string
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("request %s failed: %d %s; body=%s", e.url, e.status, http.StatusText(e.status), e.body)
}

func isStatus(err error, status int) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == status
}

func (c *Client) token(provider schema.GitProvider) (string, error) {
	if c.tokens == nil {
		return "", errors.New("token store not configured")
	}
	token, ok, err := c.tokens.Token(provider)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("no %s token configured", provider)
	}
	return token, nil
}

func (c *Client) do(ctx context.Context, method, u string, headers map[string]string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &statusError{status: resp.StatusCode, url: u, body: strings.TrimSpace(string(preview))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func sortedPaths(files map[string]string) []string {
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
