package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/inframind/inframind/internal/auth"
	"github.com/inframind/inframind/internal/logx"
	"github.com/inframind/inframind/schema"
)

const backupCodeCount = 10

// accountPayload converts a stored account to the wire entity. The
// credential fields never leave the auth store.
func accountPayload(user auth.User) schema.User {
	return schema.User{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		Role:        user.Role,
		MFAEnabled:  user.TOTPEnabled,
		CreatedAt:   user.CreatedAt,
		LastLoginAt: user.LastLoginAt,
	}
}

// sessionCookie builds the login cookie. An expiry in the past clears
// it.
func (s *Server) sessionCookie(token string, expires time.Time) *http.Cookie {
	path := "/"
	if s.basePath != "" {
		path = s.basePath + "/"
	}
	cookie := &http.Cookie{
		Name:     s.cfg.SessionCookie,
		Value:    token,
		Path:     path,
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if token == "" {
		cookie.MaxAge = -1
	}
	return cookie
}

// grantSession finishes a successful login: issue the token, set the
// cookie, stamp the account, and return the standard login payload.
func (s *Server) grantSession(w http.ResponseWriter, user auth.User) map[string]any {
	token, sess := s.sessions.create(user.ID)
	http.SetCookie(w, s.sessionCookie(token, sess.expiresAt))
	if err := s.users.TouchLogin(user.Email); err == nil {
		at := time.Now().UTC()
		user.LastLoginAt = &at
	}
	return map[string]any{
		"token":      token,
		"expires_at": sess.expiresAt.UTC().Format(time.RFC3339),
		"user":       accountPayload(user),
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	user, err := s.users.Authenticate(req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	if user.TOTPEnabled {
		token := s.challenges.create(user.Email)
		writeJSON(w, http.StatusOK, map[string]any{
			"mfa_required": true,
			"challenge":    token,
		})
		return
	}
	writeJSON(w, http.StatusOK, s.grantSession(w, user))
}

type mfaVerifyRequest struct {
	Challenge string `json:"challenge"`
	Code      string `json:"code"`
}

func (s *Server) handleMFAVerify(w http.ResponseWriter, r *http.Request) {
	var req mfaVerifyRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	email, err := s.challenges.email(req.Challenge)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.users.ValidateTOTP(email, req.Code); err != nil {
		s.challenges.fail(req.Challenge)
		writeError(w, err)
		return
	}
	user, ok := s.users.Lookup(email)
	if !ok {
		writeError(w, schema.ErrUserNotFound)
		return
	}
	s.challenges.consume(req.Challenge)
	writeJSON(w, http.StatusOK, s.grantSession(w, user))
}

func (s *Server) handleMFABackup(w http.ResponseWriter, r *http.Request) {
	var req mfaVerifyRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	email, err := s.challenges.email(req.Challenge)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.users.ConsumeBackupCode(email, req.Code); err != nil {
		s.challenges.fail(req.Challenge)
		writeError(w, err)
		return
	}
	user, ok := s.users.Lookup(email)
	if !ok {
		writeError(w, schema.ErrUserNotFound)
		return
	}
	s.challenges.consume(req.Challenge)
	remaining, err := s.users.BackupCodesRemaining(email)
	if err != nil {
		remaining = 0
	}
	payload := s.grantSession(w, user)
	payload["backup_codes_remaining"] = remaining
	writeJSON(w, http.StatusOK, payload)
}

type googleLoginRequest struct {
	IDToken string `json:"id_token"`
}

// handleGoogleLogin signs in with a verified Google ID token. Google is
// the identity provider here, so the local TOTP step does not apply.
func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req googleLoginRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	claims, err := s.google.verify(r.Context(), req.IDToken)
	if err != nil {
		writeError(w, err)
		return
	}
	user, ok := s.users.LookupByGoogleSubject(claims.Subject)
	if !ok {
		user, ok = s.users.Lookup(claims.Email)
		if !ok {
			writeError(w, fmt.Errorf("%w: no account for this google identity", schema.ErrInvalidCredentials))
			return
		}
		if err := s.users.LinkGoogleSubject(user.Email, claims.Subject); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.grantSession(w, user))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, p principal) {
	s.sessions.delete(s.sessionToken(r))
	http.SetCookie(w, s.sessionCookie("", time.Unix(0, 0)))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.GetPreferences(r.Context(), schema.GetPreferencesRequest{UserID: p.UserID})
	if err != nil {
		writeError(w, err)
		return
	}
	user, ok := s.users.Get(p.UserID)
	if !ok {
		writeError(w, schema.ErrSessionExpired)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":              accountPayload(user),
		"preferences":       resp.Preferences,
		"active_assessment": resp.ActiveAssessment,
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// handleChangePassword replaces the password and revokes every session
// for the account, then issues a fresh one so the caller stays signed
// in while stolen tokens die.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request, p principal) {
	var req changePasswordRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.users.ChangePassword(p.Email, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	revoked := s.sessions.deleteForUser(p.UserID)
	user, ok := s.users.Get(p.UserID)
	if !ok {
		writeError(w, schema.ErrSessionExpired)
		return
	}
	logx.WithUser(r.Context(), p.UserID).Info("password changed", "sessions_revoked", revoked)
	payload := s.grantSession(w, user)
	payload["sessions_revoked"] = revoked
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleEnrollBegin(w http.ResponseWriter, r *http.Request, p principal) {
	user, ok := s.users.Get(p.UserID)
	if !ok {
		writeError(w, schema.ErrSessionExpired)
		return
	}
	if user.TOTPEnabled {
		writeError(w, schema.ErrMFAAlreadyEnabled)
		return
	}
	key, err := auth.GenerateTOTPKey(s.cfg.TOTPIssuer, p.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	s.enrollments.begin(p.UserID, key.Secret, key.URL)
	logx.WithUser(r.Context(), p.UserID).Info("mfa enrollment started")
	writeJSON(w, http.StatusOK, map[string]any{
		"secret":      key.Secret,
		"otpauth_url": key.URL,
	})
}

type enrollConfirmRequest struct {
	Code string `json:"code"`
}

// handleEnrollConfirm proves the authenticator works before anything is
// persisted. The plaintext backup codes appear in this response and
// nowhere else.
func (s *Server) handleEnrollConfirm(w http.ResponseWriter, r *http.Request, p principal) {
	var req enrollConfirmRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	ent, err := s.enrollments.get(p.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !auth.VerifyTOTPCode(ent.secret, req.Code) {
		writeError(w, schema.ErrInvalidMFACode)
		return
	}
	codes, hashes, err := auth.GenerateBackupCodes(backupCodeCount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.enrollments.confirm(p.UserID, hashes); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backup_codes": codes})
}

func (s *Server) handleEnrollComplete(w http.ResponseWriter, r *http.Request, p principal) {
	ent, err := s.enrollments.get(p.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ent.confirmed {
		writeError(w, fmt.Errorf("%w: enrollment code not confirmed", schema.ErrInvalidRequest))
		return
	}
	if err := s.users.UpdateTOTP(p.Email, ent.secret, true); err != nil {
		writeError(w, err)
		return
	}
	if err := s.users.SetBackupCodes(p.Email, ent.codeHashes); err != nil {
		writeError(w, err)
		return
	}
	s.enrollments.drop(p.UserID)
	logx.WithUser(r.Context(), p.UserID).Info("mfa enabled")
	writeJSON(w, http.StatusOK, map[string]any{"mfa_enabled": true})
}

type regenerateBackupCodesRequest struct {
	Code string `json:"code"`
}

// handleRegenerateBackupCodes mints a fresh backup code set. A current
// TOTP code is required so a hijacked session cannot drain them.
func (s *Server) handleRegenerateBackupCodes(w http.ResponseWriter, r *http.Request, p principal) {
	var req regenerateBackupCodesRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	user, ok := s.users.Get(p.UserID)
	if !ok {
		writeError(w, schema.ErrSessionExpired)
		return
	}
	if !user.TOTPEnabled {
		writeError(w, schema.ErrMFANotEnrolled)
		return
	}
	if err := s.users.ValidateTOTP(p.Email, req.Code); err != nil {
		writeError(w, err)
		return
	}
	codes, hashes, err := auth.GenerateBackupCodes(backupCodeCount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.users.SetBackupCodes(p.Email, hashes); err != nil {
		writeError(w, err)
		return
	}
	logx.WithUser(r.Context(), p.UserID).Info("backup codes regenerated")
	writeJSON(w, http.StatusOK, map[string]any{"backup_codes": codes})
}
