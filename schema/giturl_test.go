package schema

import (
	"errors"
	"testing"
)

func TestParseCloneURL(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		provider GitProvider
		want     RepoRef
	}{
		{
			name: "https github",
			raw:  "https://github.com/acme/infra.git",
			want: RepoRef{
				Provider: GitProviderGitHub,
				Host:     "github.com",
				Name:     "acme/infra",
				CloneURL: "https://github.com/acme/infra.git",
			},
		},
		{
			name: "https without suffix",
			raw:  "https://github.com/acme/infra",
			want: RepoRef{
				Provider: GitProviderGitHub,
				Host:     "github.com",
				Name:     "acme/infra",
				CloneURL: "https://github.com/acme/infra.git",
			},
		},
		{
			name: "scp style",
			raw:  "git@gitlab.com:group/subgroup/infra.git",
			want: RepoRef{
				Provider: GitProviderGitLab,
				Host:     "gitlab.com",
				Name:     "group/subgroup/infra",
				CloneURL: "https://gitlab.com/group/subgroup/infra.git",
			},
		},
		{
			name: "ssh scheme",
			raw:  "ssh://git@github.com/acme/infra.git",
			want: RepoRef{
				Provider: GitProviderGitHub,
				Host:     "github.com",
				Name:     "acme/infra",
				CloneURL: "https://github.com/acme/infra.git",
			},
		},
		{
			name:     "explicit provider wins over host",
			raw:      "https://git.example.com/acme/infra.git",
			provider: GitProviderGitLab,
			want: RepoRef{
				Provider: GitProviderGitLab,
				Host:     "git.example.com",
				Name:     "acme/infra",
				CloneURL: "https://git.example.com/acme/infra.git",
			},
		},
		{
			name: "self hosted gitlab inferred",
			raw:  "https://gitlab.acme.internal/platform/iac.git",
			want: RepoRef{
				Provider: GitProviderGitLab,
				Host:     "gitlab.acme.internal",
				Name:     "platform/iac",
				CloneURL: "https://gitlab.acme.internal/platform/iac.git",
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseCloneURL(tc.raw, tc.provider)
			if err != nil {
				t.Fatalf("ParseCloneURL(%q): %v", tc.raw, err)
			}
			if got != tc.want {
				t.Errorf("ParseCloneURL(%q) = %+v, want %+v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestParseCloneURLRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", "   "},
		{"no path", "https://github.com"},
		{"single segment", "https://github.com/acme.git"},
		{"unknown host", "https://code.example.com/acme/infra.git"},
		{"not a url", "acme/infra"},
		{"bad scheme", "ftp://github.com/acme/infra.git"},
		{"empty segment", "https://github.com/acme//infra.git"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseCloneURL(tc.raw, ""); !errors.Is(err, ErrInvalidRepoURL) {
				t.Fatalf("ParseCloneURL(%q) err = %v, want ErrInvalidRepoURL", tc.raw, err)
			}
		})
	}
}

func TestParseCloneURLRejectsUnknownProvider(t *testing.T) {
	if _, err := ParseCloneURL("https://github.com/acme/infra.git", "bitbucket"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}
