package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/inframind/inframind/schema"
)

// errorBody is the wire shape of every error response. Code is a stable
// machine string clients branch on; Retryable tells them whether the
// same request can succeed later without changes.
type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type errorClass struct {
	status    int
	code      string
	retryable bool
}

// errorClasses maps every domain sentinel to its HTTP status and machine
// code. Order matters only for wrapped chains carrying several sentinels,
// which does not happen in practice; completeness is enforced by tests.
var errorClasses = []struct {
	sentinel error
	class    errorClass
}{
	{schema.ErrInvalidRequest, errorClass{http.StatusBadRequest, "invalid_request", false}},
	{schema.ErrInvalidCredentials, errorClass{http.StatusUnauthorized, "invalid_credentials", false}},
	{schema.ErrAccountLocked, errorClass{http.StatusLocked, "account_locked", true}},
	{schema.ErrMFARequired, errorClass{http.StatusUnauthorized, "mfa_required", false}},
	{schema.ErrInvalidMFACode, errorClass{http.StatusUnauthorized, "invalid_mfa_code", false}},
	{schema.ErrInvalidBackupCode, errorClass{http.StatusUnauthorized, "invalid_backup_code", false}},
	{schema.ErrMFAAlreadyEnabled, errorClass{http.StatusConflict, "mfa_already_enabled", false}},
	{schema.ErrMFANotEnrolled, errorClass{http.StatusBadRequest, "mfa_not_enrolled", false}},
	{schema.ErrChallengeExpired, errorClass{http.StatusUnauthorized, "challenge_expired", false}},
	{schema.ErrSessionExpired, errorClass{http.StatusUnauthorized, "session_expired", false}},
	{schema.ErrForbidden, errorClass{http.StatusForbidden, "forbidden", false}},
	{schema.ErrUserNotFound, errorClass{http.StatusNotFound, "user_not_found", false}},
	{schema.ErrUserExists, errorClass{http.StatusConflict, "user_exists", false}},
	{schema.ErrInvalidEmail, errorClass{http.StatusBadRequest, "invalid_email", false}},
	{schema.ErrAssessmentNotFound, errorClass{http.StatusNotFound, "assessment_not_found", false}},
	{schema.ErrInvalidTransition, errorClass{http.StatusConflict, "invalid_transition", false}},
	{schema.ErrRevisionConflict, errorClass{http.StatusConflict, "revision_conflict", true}},
	{schema.ErrReportNotFound, errorClass{http.StatusNotFound, "report_not_found", false}},
	{schema.ErrExportUnavailable, errorClass{http.StatusServiceUnavailable, "export_unavailable", false}},
	{schema.ErrExperimentNotFound, errorClass{http.StatusNotFound, "experiment_not_found", false}},
	{schema.ErrVariantWeights, errorClass{http.StatusBadRequest, "variant_weights", false}},
	{schema.ErrExperimentNotRunning, errorClass{http.StatusConflict, "experiment_not_running", false}},
	{schema.ErrRepositoryExists, errorClass{http.StatusConflict, "repository_exists", false}},
	{schema.ErrRepositoryNotFound, errorClass{http.StatusNotFound, "repository_not_found", false}},
	{schema.ErrInvalidRepoURL, errorClass{http.StatusBadRequest, "invalid_repository_url", false}},
	{schema.ErrTemplateNotFound, errorClass{http.StatusNotFound, "template_not_found", false}},
	{schema.ErrMissingParameter, errorClass{http.StatusBadRequest, "missing_parameter", false}},
	{schema.ErrPlanNotFound, errorClass{http.StatusNotFound, "plan_not_found", false}},
	{schema.ErrPlanNotApprovable, errorClass{http.StatusConflict, "plan_not_approvable", false}},
	{schema.ErrProviderUnavailable, errorClass{http.StatusBadGateway, "provider_unavailable", true}},
	{schema.ErrRunnerUnavailable, errorClass{http.StatusServiceUnavailable, "runner_unavailable", false}},
	{schema.ErrInvalidRating, errorClass{http.StatusBadRequest, "invalid_rating", false}},
}

// classify resolves an error to its wire class. Unknown errors are
// internal and retryable, and their text is not exposed.
func classify(err error) (errorClass, string) {
	for _, entry := range errorClasses {
		if errors.Is(err, entry.sentinel) {
			return entry.class, err.Error()
		}
	}
	return errorClass{http.StatusInternalServerError, "internal", true}, "internal error"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError maps a domain error onto the error envelope.
func writeError(w http.ResponseWriter, err error) {
	class, message := classify(err)
	writeJSON(w, class.status, map[string]any{"error": errorBody{
		Code:      class.code,
		Message:   message,
		Retryable: class.retryable,
	}})
}

// writeBadRequest reports a malformed payload without consulting the
// sentinel table.
func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"error": errorBody{
		Code:      "invalid_request",
		Message:   err.Error(),
		Retryable: false,
	}})
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}
