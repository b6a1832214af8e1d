package schema

import (
	"fmt"
	"strings"
)

// BackupCodeLength is the exact length of an MFA backup code.
const BackupCodeLength = 8

// BackupCodeAlphabet is the character set backup codes are drawn from.
// 0, 1, O, and I are excluded to avoid transcription mistakes.
const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// MFACodeLength is the exact length of a TOTP code.
const MFACodeLength = 6

// ValidateEmail checks the minimal shape of an email address: one '@' with a
// non-empty local part and a domain containing at least one dot.
func ValidateEmail(email string) error {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" || trimmed != email {
		return ErrInvalidEmail
	}
	at := strings.Index(email, "@")
	if at <= 0 || at != strings.LastIndex(email, "@") {
		return ErrInvalidEmail
	}
	domain := email[at+1:]
	dot := strings.Index(domain, ".")
	if dot <= 0 || dot == len(domain)-1 {
		return ErrInvalidEmail
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return ErrInvalidEmail
	}
	return nil
}

// NormalizeEmail lowercases and validates an email address.
func NormalizeEmail(email string) (string, error) {
	lowered := strings.ToLower(strings.TrimSpace(email))
	if err := ValidateEmail(lowered); err != nil {
		return "", err
	}
	return lowered, nil
}

// ValidateMFACode ensures a TOTP code is exactly six ASCII digits.
func ValidateMFACode(code string) error {
	if len(code) != MFACodeLength {
		return ErrInvalidMFACode
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return ErrInvalidMFACode
		}
	}
	return nil
}

// NormalizeBackupCode uppercases a backup code and validates it against the
// backup code alphabet. Input may contain a single dash separator.
func NormalizeBackupCode(code string) (string, error) {
	cleaned := strings.ToUpper(strings.TrimSpace(code))
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	if len(cleaned) != BackupCodeLength {
		return "", ErrInvalidBackupCode
	}
	for _, r := range cleaned {
		if !strings.ContainsRune(BackupCodeAlphabet, r) {
			return "", ErrInvalidBackupCode
		}
	}
	return cleaned, nil
}

// ValidateRating ensures a feedback rating is within 1..5.
func ValidateRating(rating int) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	return nil
}

// NormalizeRole validates and normalizes a role name.
// Allowed values: admin, analyst, viewer.
func NormalizeRole(role string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(role))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleAnalyst:
		return RoleAnalyst, nil
	case RoleViewer:
		return RoleViewer, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, role)
	}
}

// NormalizeCloudProvider validates and normalizes a cloud provider name.
// Allowed values: aws, gcp, azure.
func NormalizeCloudProvider(provider string) (CloudProvider, error) {
	switch CloudProvider(strings.ToLower(strings.TrimSpace(provider))) {
	case CloudAWS:
		return CloudAWS, nil
	case CloudGCP:
		return CloudGCP, nil
	case CloudAzure:
		return CloudAzure, nil
	default:
		return "", fmt.Errorf("%w: unknown cloud provider %q", ErrInvalidRequest, provider)
	}
}

// NormalizeGitProvider validates and normalizes a git provider name.
// Allowed values: github, gitlab.
func NormalizeGitProvider(provider string) (GitProvider, error) {
	switch GitProvider(strings.ToLower(strings.TrimSpace(provider))) {
	case GitProviderGitHub:
		return GitProviderGitHub, nil
	case GitProviderGitLab:
		return GitProviderGitLab, nil
	default:
		return "", fmt.Errorf("%w: unknown git provider %q", ErrInvalidRequest, provider)
	}
}

// NormalizeCategory validates and normalizes a feedback category.
// Allowed values: assessment, report, experiment, gitops, dashboard, other.
func NormalizeCategory(category string) (FeedbackCategory, error) {
	switch FeedbackCategory(strings.ToLower(strings.TrimSpace(category))) {
	case FeedbackAssessment:
		return FeedbackAssessment, nil
	case FeedbackReport:
		return FeedbackReport, nil
	case FeedbackExperiment:
		return FeedbackExperiment, nil
	case FeedbackGitOps:
		return FeedbackGitOps, nil
	case FeedbackDashboard:
		return FeedbackDashboard, nil
	case FeedbackOther:
		return FeedbackOther, nil
	default:
		return "", fmt.Errorf("%w: unknown feedback category %q", ErrInvalidRequest, category)
	}
}

// NormalizeTheme validates and normalizes a theme preference.
// Allowed values: dark, light, system.
func NormalizeTheme(theme string) (Theme, error) {
	switch Theme(strings.ToLower(strings.TrimSpace(theme))) {
	case ThemeDark:
		return ThemeDark, nil
	case ThemeLight:
		return ThemeLight, nil
	case ThemeSystem:
		return ThemeSystem, nil
	default:
		return "", fmt.Errorf("%w: unknown theme %q", ErrInvalidRequest, theme)
	}
}

// ValidateUserID ensures a user id is a non-empty opaque identifier with no
// surrounding whitespace.
func ValidateUserID(userID UserID) error {
	raw := string(userID)
	if raw == "" {
		return ErrUserNotFound
	}
	if strings.TrimSpace(raw) != raw {
		return ErrUserNotFound
	}
	return nil
}
