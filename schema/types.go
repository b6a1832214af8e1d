package schema

// UserID identifies a user in the system.
type UserID string

// AssessmentID identifies an infrastructure assessment.
type AssessmentID string

// ExperimentID identifies an A/B experiment.
type ExperimentID string

// VariantID identifies a variant within an experiment.
type VariantID string

// RepositoryID identifies a connected git repository.
type RepositoryID string

// PullRequestID identifies a pull request on a connected repository.
type PullRequestID string

// TemplateID identifies an infrastructure-as-code template.
type TemplateID string

// PlanID identifies a deployment plan.
type PlanID string

// FeedbackID identifies a feedback record.
type FeedbackID string

// Role describes what a user is allowed to do.
type Role string

const (
	// RoleAdmin may manage users, approve plans, and do everything below.
	RoleAdmin Role = "admin"
	// RoleAnalyst may run assessments, experiments, and GitOps flows.
	RoleAnalyst Role = "analyst"
	// RoleViewer has read-only access.
	RoleViewer Role = "viewer"
)

// CloudProvider identifies the cloud platform an assessment targets.
type CloudProvider string

const (
	// CloudAWS is Amazon Web Services.
	CloudAWS CloudProvider = "aws"
	// CloudGCP is Google Cloud Platform.
	CloudGCP CloudProvider = "gcp"
	// CloudAzure is Microsoft Azure.
	CloudAzure CloudProvider = "azure"
)

// GitProvider identifies the forge hosting a connected repository.
type GitProvider string

const (
	// GitProviderGitHub is github.com or a GitHub Enterprise host.
	GitProviderGitHub GitProvider = "github"
	// GitProviderGitLab is gitlab.com or a self-hosted GitLab.
	GitProviderGitLab GitProvider = "gitlab"
)

// Theme identifies a UI color scheme preference.
type Theme string

const (
	// ThemeDark renders the dashboard in dark mode.
	ThemeDark Theme = "dark"
	// ThemeLight renders the dashboard in light mode.
	ThemeLight Theme = "light"
	// ThemeSystem follows the operating system preference.
	ThemeSystem Theme = "system"
)

// ResultSource reports whether a GitOps payload came from the provider or
// from the static fallback catalog.
type ResultSource string

const (
	// SourceLive means the payload came from the git provider API.
	SourceLive ResultSource = "live"
	// SourceFallback means the payload came from the fallback catalog.
	SourceFallback ResultSource = "fallback"
)
