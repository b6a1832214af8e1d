package schema

import (
	"strings"
	"testing"
)

func TestValidateEmail(t *testing.T) {
	cases := []struct {
		name  string
		email string
		valid bool
	}{
		{"simple", "alice@example.com", true},
		{"subdomain", "alice@mail.example.com", true},
		{"plus-tag", "alice+infra@example.com", true},
		{"empty", "", false},
		{"no-at", "alice.example.com", false},
		{"two-ats", "alice@@example.com", false},
		{"no-local", "@example.com", false},
		{"no-domain-dot", "alice@example", false},
		{"dot-at-end", "alice@example.", false},
		{"dot-first-in-domain", "alice@.com", false},
		{"embedded-space", "alice smith@example.com", false},
		{"leading-space", " alice@example.com", false},
		{"trailing-space", "alice@example.com ", false},
	}

	for _, tc := range cases {
		err := ValidateEmail(tc.email)
		if tc.valid && err != nil {
			t.Fatalf("case %q expected valid, got error: %v", tc.name, err)
		}
		if !tc.valid && err == nil {
			t.Fatalf("case %q expected error, got nil", tc.name)
		}
	}
}

func TestNormalizeEmailLowercases(t *testing.T) {
	got, err := NormalizeEmail("Alice@Example.COM")
	if err != nil {
		t.Fatalf("NormalizeEmail: %v", err)
	}
	if got != "alice@example.com" {
		t.Fatalf("expected alice@example.com, got %q", got)
	}
}

func TestValidateMFACode(t *testing.T) {
	cases := []struct {
		name  string
		code  string
		valid bool
	}{
		{"six-digits", "123456", true},
		{"zeros", "000000", true},
		{"too-short", "12345", false},
		{"too-long", "1234567", false},
		{"letters", "12a456", false},
		{"empty", "", false},
		{"spaces", "123 56", false},
		{"unicode-digits", "１２３４５６", false},
	}

	for _, tc := range cases {
		err := ValidateMFACode(tc.code)
		if tc.valid && err != nil {
			t.Fatalf("case %q expected valid, got error: %v", tc.name, err)
		}
		if !tc.valid && err == nil {
			t.Fatalf("case %q expected error, got nil", tc.name)
		}
	}
}

func TestNormalizeBackupCode(t *testing.T) {
	cases := []struct {
		name  string
		code  string
		want  string
		valid bool
	}{
		{"plain", "ABCD2345", "ABCD2345", true},
		{"lowercase", "abcd2345", "ABCD2345", true},
		{"dashed", "ABCD-2345", "ABCD2345", true},
		{"padded", " ABCD2345 ", "ABCD2345", true},
		{"too-short", "ABCD234", "", false},
		{"too-long", "ABCD23456", "", false},
		{"zero-excluded", "ABCD2340", "", false},
		{"one-excluded", "ABCD2341", "", false},
		{"oh-excluded", "ABCDO345", "", false},
		{"eye-excluded", "ABCDI345", "", false},
		{"empty", "", "", false},
	}

	for _, tc := range cases {
		got, err := NormalizeBackupCode(tc.code)
		if tc.valid {
			if err != nil {
				t.Fatalf("case %q expected valid, got error: %v", tc.name, err)
			}
			if got != tc.want {
				t.Fatalf("case %q expected %q, got %q", tc.name, tc.want, got)
			}
			continue
		}
		if err == nil {
			t.Fatalf("case %q expected error, got nil", tc.name)
		}
	}
}

func TestBackupCodeAlphabetExcludesAmbiguous(t *testing.T) {
	for _, r := range "01OI" {
		if strings.ContainsRune(BackupCodeAlphabet, r) {
			t.Fatalf("alphabet must not contain %q", r)
		}
	}
	if len(BackupCodeAlphabet) != 32 {
		t.Fatalf("expected 32 characters, got %d", len(BackupCodeAlphabet))
	}
}

func TestValidateRating(t *testing.T) {
	for rating := 1; rating <= 5; rating++ {
		if err := ValidateRating(rating); err != nil {
			t.Fatalf("rating %d expected valid, got %v", rating, err)
		}
	}
	for _, rating := range []int{0, -1, 6, 100} {
		if err := ValidateRating(rating); err == nil {
			t.Fatalf("rating %d expected error, got nil", rating)
		}
	}
}

func TestNormalizeRole(t *testing.T) {
	cases := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"admin", RoleAdmin, true},
		{"ADMIN", RoleAdmin, true},
		{" analyst ", RoleAnalyst, true},
		{"viewer", RoleViewer, true},
		{"root", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := NormalizeRole(tc.in)
		if tc.ok {
			if err != nil {
				t.Fatalf("role %q: unexpected error %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("role %q: expected %q, got %q", tc.in, tc.want, got)
			}
			continue
		}
		if err == nil {
			t.Fatalf("role %q: expected error", tc.in)
		}
	}
}

func TestNormalizeCloudProvider(t *testing.T) {
	for _, in := range []string{"aws", "AWS", " gcp", "azure "} {
		if _, err := NormalizeCloudProvider(in); err != nil {
			t.Fatalf("provider %q: unexpected error %v", in, err)
		}
	}
	if _, err := NormalizeCloudProvider("digitalocean"); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestNormalizeCategory(t *testing.T) {
	for _, in := range []string{"assessment", "report", "experiment", "gitops", "dashboard", "other"} {
		got, err := NormalizeCategory(in)
		if err != nil {
			t.Fatalf("category %q: unexpected error %v", in, err)
		}
		if string(got) != in {
			t.Fatalf("category %q: got %q", in, got)
		}
	}
	if _, err := NormalizeCategory("billing"); err == nil {
		t.Fatal("expected error for unknown category")
	}
}
