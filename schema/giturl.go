package schema

import (
	"fmt"
	"net/url"
	"strings"
)

// RepoRef is the canonical form of a clone URL: https scheme, .git suffix,
// provider inferred from the host.
type RepoRef struct {
	Provider GitProvider
	Host     string
	// Name is the full path without the .git suffix, e.g. "acme/infra" or
	// "group/subgroup/infra" on GitLab.
	Name     string
	CloneURL string
}

// ParseCloneURL accepts https, ssh, and scp-like clone URLs and normalizes
// them. The explicit provider wins; otherwise it is inferred from the host.
// Hosts that match neither provider fail with ErrInvalidRepoURL.
func ParseCloneURL(raw string, provider GitProvider) (RepoRef, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return RepoRef{}, fmt.Errorf("%w: empty url", ErrInvalidRepoURL)
	}

	var host, path string
	switch {
	case strings.Contains(trimmed, "://"):
		u, err := url.Parse(trimmed)
		if err != nil {
			return RepoRef{}, fmt.Errorf("%w: %v", ErrInvalidRepoURL, err)
		}
		switch u.Scheme {
		case "https", "http", "ssh", "git":
		default:
			return RepoRef{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRepoURL, u.Scheme)
		}
		host = strings.ToLower(u.Hostname())
		path = u.Path
	case strings.Contains(trimmed, "@") && strings.Contains(trimmed, ":"):
		// scp-like: git@host:owner/repo.git
		at := strings.Index(trimmed, "@")
		rest := trimmed[at+1:]
		colon := strings.Index(rest, ":")
		if colon <= 0 {
			return RepoRef{}, fmt.Errorf("%w: malformed scp url", ErrInvalidRepoURL)
		}
		host = strings.ToLower(rest[:colon])
		path = rest[colon+1:]
	default:
		return RepoRef{}, fmt.Errorf("%w: not a clone url", ErrInvalidRepoURL)
	}

	if host == "" {
		return RepoRef{}, fmt.Errorf("%w: missing host", ErrInvalidRepoURL)
	}
	name := strings.Trim(path, "/")
	name = strings.TrimSuffix(name, ".git")
	segments := strings.Split(name, "/")
	if len(segments) < 2 {
		return RepoRef{}, fmt.Errorf("%w: path %q must be owner/repo", ErrInvalidRepoURL, name)
	}
	for _, seg := range segments {
		if seg == "" {
			return RepoRef{}, fmt.Errorf("%w: path %q must be owner/repo", ErrInvalidRepoURL, name)
		}
	}

	if provider == "" {
		inferred, err := inferProvider(host)
		if err != nil {
			return RepoRef{}, err
		}
		provider = inferred
	} else {
		normalized, err := NormalizeGitProvider(string(provider))
		if err != nil {
			return RepoRef{}, err
		}
		provider = normalized
	}

	return RepoRef{
		Provider: provider,
		Host:     host,
		Name:     name,
		CloneURL: "https://" + host + "/" + name + ".git",
	}, nil
}

func inferProvider(host string) (GitProvider, error) {
	switch {
	case host == "github.com" || strings.HasSuffix(host, ".github.com"):
		return GitProviderGitHub, nil
	case host == "gitlab.com" || strings.Contains(host, "gitlab"):
		return GitProviderGitLab, nil
	default:
		return "", fmt.Errorf("%w: cannot infer provider from host %q", ErrInvalidRepoURL, host)
	}
}
