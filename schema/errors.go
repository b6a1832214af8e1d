package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidCredentials indicates a failed email/password check.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked indicates too many failed login attempts.
	ErrAccountLocked = errors.New("account locked")
	// ErrMFARequired indicates the login needs a second factor.
	ErrMFARequired = errors.New("mfa required")
	// ErrInvalidMFACode indicates a rejected TOTP code.
	ErrInvalidMFACode = errors.New("invalid mfa code")
	// ErrInvalidBackupCode indicates a rejected or already used backup code.
	ErrInvalidBackupCode = errors.New("invalid backup code")
	// ErrMFAAlreadyEnabled indicates enrollment was attempted twice.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrMFANotEnrolled indicates the user has no enabled TOTP secret.
	ErrMFANotEnrolled = errors.New("mfa not enrolled")
	// ErrChallengeExpired indicates the MFA challenge is no longer valid.
	ErrChallengeExpired = errors.New("mfa challenge expired")
	// ErrSessionExpired indicates a missing or expired session token.
	ErrSessionExpired = errors.New("session expired")
	// ErrForbidden indicates the user's role does not allow the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrUserNotFound indicates an unknown user id.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists indicates the email is already registered.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidEmail indicates a malformed email address.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrAssessmentNotFound indicates an unknown assessment id.
	ErrAssessmentNotFound = errors.New("assessment not found")
	// ErrInvalidTransition indicates a disallowed status change.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrRevisionConflict indicates a stale draft revision.
	ErrRevisionConflict = errors.New("revision conflict")
	// ErrReportNotFound indicates the assessment has no generated report.
	ErrReportNotFound = errors.New("report not found")
	// ErrExportUnavailable indicates no PDF renderer is configured.
	ErrExportUnavailable = errors.New("pdf export unavailable")
	// ErrExperimentNotFound indicates an unknown experiment id.
	ErrExperimentNotFound = errors.New("experiment not found")
	// ErrVariantWeights indicates variant weights that do not sum to 100.
	ErrVariantWeights = errors.New("variant weights must sum to 100")
	// ErrExperimentNotRunning indicates an operation that needs a running experiment.
	ErrExperimentNotRunning = errors.New("experiment not running")
	// ErrRepositoryExists indicates the repository is already connected.
	ErrRepositoryExists = errors.New("repository already connected")
	// ErrRepositoryNotFound indicates an unknown repository id.
	ErrRepositoryNotFound = errors.New("repository not found")
	// ErrInvalidRepoURL indicates a clone URL that could not be parsed.
	ErrInvalidRepoURL = errors.New("invalid repository url")
	// ErrTemplateNotFound indicates an unknown template id.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrMissingParameter indicates a required template parameter was not provided.
	ErrMissingParameter = errors.New("missing template parameter")
	// ErrPlanNotFound indicates an unknown plan id.
	ErrPlanNotFound = errors.New("plan not found")
	// ErrPlanNotApprovable indicates a plan outside awaiting_approval.
	ErrPlanNotApprovable = errors.New("plan is not awaiting approval")
	// ErrProviderUnavailable indicates the git provider or an external
	// service could not be reached.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrRunnerUnavailable indicates no plan runner is configured.
	ErrRunnerUnavailable = errors.New("runner not configured")
	// ErrInvalidRating indicates a rating outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)
